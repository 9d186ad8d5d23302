package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func intp(i int) *int { return &i }

func TestCheck_Spec(t *testing.T) {
	cases := []struct {
		name    string
		check   Check
		want    Spec
		wantErr string
	}{
		{"ping", Check{Kind: KindPing}, PingSpec{}, ""},
		{"tcp with port", Check{Kind: KindTCPPort, Port: intp(22)}, TCPPortSpec{Port: 22}, ""},
		{"tcp without port", Check{Kind: KindTCPPort}, nil, "Missing port"},
		{"http default status", Check{Kind: KindHTTP}, HTTPSpec{ExpectedStatus: 200}, ""},
		{"http explicit status", Check{Kind: KindHTTP, ExpectedStatus: 204}, HTTPSpec{ExpectedStatus: 204}, ""},
		{"ssl default port", Check{Kind: KindSSLExpiry, SSLDaysThreshold: 14}, SSLExpirySpec{Port: 443, DaysThreshold: 14}, ""},
		{"ssl zero threshold kept", Check{Kind: KindSSLExpiry}, SSLExpirySpec{Port: 443, DaysThreshold: 0}, ""},
		{"ssl custom", Check{Kind: KindSSLExpiry, Port: intp(8443), SSLDaysThreshold: 30}, SSLExpirySpec{Port: 8443, DaysThreshold: 30}, ""},
		{"unknown", Check{Kind: "snmp"}, nil, "Unknown kind: snmp"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := c.check.Spec()
			if c.wantErr != "" {
				if err == nil || err.Error() != c.wantErr {
					t.Fatalf("want error %q, got %v", c.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != c.want {
				t.Fatalf("want %#v, got %#v", c.want, got)
			}
		})
	}
}

func TestCheck_SpecErrorsAreMatchable(t *testing.T) {
	_, err := Check{Kind: KindTCPPort}.Spec()
	if !errors.Is(err, ErrMissingPort) {
		t.Fatalf("want ErrMissingPort, got %v", err)
	}
	_, err = Check{Kind: "dns"}.Spec()
	var uk *UnknownKindError
	if !errors.As(err, &uk) || uk.Kind != "dns" {
		t.Fatalf("want UnknownKindError, got %v", err)
	}
}

func TestCheck_Due(t *testing.T) {
	now := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	ran := func(ago time.Duration) *time.Time {
		ts := now.Add(-ago)
		return &ts
	}
	cases := []struct {
		name  string
		check Check
		want  bool
	}{
		{"never run", Check{IntervalSeconds: 300}, true},
		{"inside interval", Check{IntervalSeconds: 300, LastRunAt: ran(299 * time.Second)}, false},
		{"exactly interval", Check{IntervalSeconds: 300, LastRunAt: ran(300 * time.Second)}, true},
		{"past interval", Check{IntervalSeconds: 60, LastRunAt: ran(10 * time.Minute)}, true},
		{"zero interval uses default", Check{LastRunAt: ran(30 * time.Second)}, false},
	}
	for _, c := range cases {
		if got := c.check.Due(now); got != c.want {
			t.Fatalf("%s: Due=%v want %v", c.name, got, c.want)
		}
	}
}

func TestCheck_HostFallsBackToAsset(t *testing.T) {
	a := Asset{Address: " 10.0.0.5 "}
	if got := (Check{}).Host(a); got != "10.0.0.5" {
		t.Fatalf("want asset address, got %q", got)
	}
	if got := (Check{Target: "example.com"}).Host(a); got != "example.com" {
		t.Fatalf("want override, got %q", got)
	}
}

func TestAsset_TagList(t *testing.T) {
	a := Asset{Tags: " prod, web ,,paris "}
	got := a.TagList()
	if strings.Join(got, "|") != "prod|web|paris" {
		t.Fatalf("unexpected tags: %q", got)
	}
	if (Asset{}).TagList() != nil {
		t.Fatalf("empty tags should give nil")
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", 2500)
	if got := Truncate(long); len(got) != MaxMessageLen {
		t.Fatalf("want %d chars, got %d", MaxMessageLen, len(got))
	}
	if got := Truncate("short"); got != "short" {
		t.Fatalf("short message changed: %q", got)
	}
}
