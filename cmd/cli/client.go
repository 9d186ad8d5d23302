package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hamed0406/infrawatch/internal/metrics"
)

type client struct {
	base string
	key  string
	http *http.Client
}

func newClient(base, key string) *client {
	return &client{
		base: strings.TrimRight(base, "/"),
		key:  key,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

type apiError struct {
	Status int
	Msg    string
}

func (e *apiError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("api returned status %d", e.Status)
	}
	return fmt.Sprintf("api returned status %d: %s", e.Status, e.Msg)
}

func (c *client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(data, &body)
		return &apiError{Status: resp.StatusCode, Msg: body.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *client) series(ctx context.Context, which, assetID string) (*metrics.Series, error) {
	path := "/api/metrics/" + which + "-24h"
	if assetID != "" {
		path = "/api/assets/" + assetID + "/" + which + "-7d"
	}
	var s metrics.Series
	if err := c.do(ctx, http.MethodGet, path, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *client) summary(ctx context.Context) (*metrics.Summary, error) {
	var s metrics.Summary
	if err := c.do(ctx, http.MethodGet, "/api/dashboard", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *client) run(ctx context.Context, checkID string) error {
	return c.do(ctx, http.MethodPost, "/api/checks/"+checkID+"/run", nil)
}
