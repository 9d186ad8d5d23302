// Package inventory loads assets and their checks from YAML and reconciles
// them into a store.
package inventory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hamed0406/infrawatch/internal/domain"
	"github.com/hamed0406/infrawatch/internal/repo"
)

type File struct {
	Assets []Asset `yaml:"assets" validate:"dive"`
}

type Asset struct {
	Name        string  `yaml:"name" validate:"required,max=128"`
	Type        string  `yaml:"type" validate:"omitempty,oneof=vm server storage network other"`
	Address     string  `yaml:"address" validate:"max=255"`
	Description string  `yaml:"description"`
	Tags        Tags    `yaml:"tags"`
	Enabled     *bool   `yaml:"enabled"`
	Checks      []Check `yaml:"checks" validate:"dive"`
}

type Check struct {
	Name             string `yaml:"name" validate:"required,max=128"`
	Kind             string `yaml:"kind" validate:"required,oneof=ping tcp_port http ssl_expiry"`
	Target           string `yaml:"target" validate:"max=512"`
	Port             *int   `yaml:"port" validate:"omitempty,min=1,max=65535"`
	IntervalSeconds  int    `yaml:"interval_seconds" validate:"gte=0"`
	TimeoutSeconds   int    `yaml:"timeout_seconds" validate:"gte=0"`
	ExpectedStatus   int    `yaml:"expected_status" validate:"omitempty,min=100,max=599"`
	SSLDaysThreshold *int   `yaml:"ssl_days_threshold" validate:"omitempty,gte=0"`
	Enabled          *bool  `yaml:"enabled"`
}

// Tags accepts either "prod, web" or a YAML sequence and stores the comma
// separated form.
type Tags string

func (t *Tags) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*t = Tags(strings.TrimSpace(n.Value))
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := n.Decode(&items); err != nil {
			return err
		}
		*t = Tags(strings.Join(items, ", "))
		return nil
	}
	return fmt.Errorf("line %d: tags must be a string or a list", n.Line)
}

// Load reads and validates path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse inventory: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field rules and name uniqueness, reporting every problem.
func (f *File) Validate() error {
	var errs error
	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = multierr.Append(errs, fmt.Errorf("%s: failed %q%s", fe.Namespace(), fe.Tag(), param(fe)))
		}
	}
	seen := map[string]bool{}
	for _, a := range f.Assets {
		if seen[a.Name] {
			errs = multierr.Append(errs, fmt.Errorf("asset %q declared twice", a.Name))
		}
		seen[a.Name] = true
		checks := map[string]bool{}
		for _, c := range a.Checks {
			if checks[c.Name] {
				errs = multierr.Append(errs, fmt.Errorf("asset %q: check %q declared twice", a.Name, c.Name))
			}
			checks[c.Name] = true
			if domain.Kind(c.Kind) == domain.KindTCPPort && c.Port == nil {
				errs = multierr.Append(errs, fmt.Errorf("asset %q: check %q: %w", a.Name, c.Name, domain.ErrMissingPort))
			}
		}
	}
	return errs
}

func param(fe validator.FieldError) string {
	if fe.Param() == "" {
		return ""
	}
	return " (" + fe.Param() + ")"
}

func enabled(b *bool) bool { return b == nil || *b }

func (a Asset) toDomain() domain.Asset {
	typ := domain.AssetType(a.Type)
	if typ == "" {
		typ = domain.AssetOther
	}
	return domain.Asset{
		Name:        a.Name,
		Type:        typ,
		Address:     strings.TrimSpace(a.Address),
		Description: a.Description,
		Tags:        string(a.Tags),
		Enabled:     enabled(a.Enabled),
	}
}

func (c Check) toDomain(assetID domain.AssetID) domain.Check {
	out := domain.Check{
		AssetID:          assetID,
		Name:             c.Name,
		Kind:             domain.Kind(c.Kind),
		Target:           strings.TrimSpace(c.Target),
		Port:             c.Port,
		IntervalSeconds:  c.IntervalSeconds,
		TimeoutSeconds:   c.TimeoutSeconds,
		ExpectedStatus:   c.ExpectedStatus,
		SSLDaysThreshold: domain.DefaultSSLDaysThreshold,
		Enabled:          enabled(c.Enabled),
	}
	if out.IntervalSeconds == 0 {
		out.IntervalSeconds = domain.DefaultIntervalSeconds
	}
	if c.SSLDaysThreshold != nil {
		out.SSLDaysThreshold = *c.SSLDaysThreshold
	}
	return out
}

type Stats struct {
	AssetsCreated, AssetsUpdated int
	ChecksCreated, ChecksUpdated int
}

// Seed creates missing assets and checks and updates the configuration of
// existing ones, matched by asset name and check name. Run history is kept.
func Seed(ctx context.Context, store repo.Store, f *File, log *zap.Logger) (Stats, error) {
	var st Stats
	for _, ia := range f.Assets {
		want := ia.toDomain()
		cur, err := store.AssetByName(ctx, ia.Name)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			if err := store.CreateAsset(ctx, &want); err != nil {
				return st, fmt.Errorf("create asset %q: %w", ia.Name, err)
			}
			st.AssetsCreated++
		case err != nil:
			return st, fmt.Errorf("lookup asset %q: %w", ia.Name, err)
		default:
			want.ID, want.CreatedAt = cur.ID, cur.CreatedAt
			if err := store.UpdateAsset(ctx, &want); err != nil {
				return st, fmt.Errorf("update asset %q: %w", ia.Name, err)
			}
			st.AssetsUpdated++
		}

		for _, ic := range ia.Checks {
			wc := ic.toDomain(want.ID)
			cc, err := store.CheckByName(ctx, want.ID, ic.Name)
			switch {
			case errors.Is(err, repo.ErrNotFound):
				if err := store.CreateCheck(ctx, &wc); err != nil {
					return st, fmt.Errorf("create check %s/%s: %w", ia.Name, ic.Name, err)
				}
				st.ChecksCreated++
			case err != nil:
				return st, fmt.Errorf("lookup check %s/%s: %w", ia.Name, ic.Name, err)
			default:
				wc.ID = cc.ID
				if err := store.UpdateCheck(ctx, &wc); err != nil {
					return st, fmt.Errorf("update check %s/%s: %w", ia.Name, ic.Name, err)
				}
				st.ChecksUpdated++
			}
		}
	}
	log.Info("inventory_seeded",
		zap.Int("assets_created", st.AssetsCreated),
		zap.Int("assets_updated", st.AssetsUpdated),
		zap.Int("checks_created", st.ChecksCreated),
		zap.Int("checks_updated", st.ChecksUpdated),
	)
	return st, nil
}
