// Package manifest loads the optional boot manifest: views the daemon
// creates at startup, declared in YAML.
package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"github.com/ThuyDang88/webview/internal/infrastructure/logging"
	"github.com/ThuyDang88/webview/internal/views"
)

// Manifest is the file root.
type Manifest struct {
	Views []View `yaml:"views"`
}

// View declares one view to create at boot. URL and HTML sources are
// mutually exclusive.
type View struct {
	Name string `yaml:"name"`

	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers"`

	HTML    string `yaml:"html"`
	BaseURL string `yaml:"base_url"`

	OriginAllowList []string `yaml:"origin_allow_list"`
	InjectedScript  string   `yaml:"injected_script"`

	EnableBridge bool   `yaml:"enable_bridge"`
	BridgeName   string `yaml:"bridge_name"`

	UserAgent         string `yaml:"user_agent"`
	Incognito         bool   `yaml:"incognito"`
	DisableJavaScript bool   `yaml:"disable_javascript"`
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("manifest: %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates manifest bytes. Validation is strict: a
// manifest that cannot fully apply is rejected whole.
func Parse(data []byte) (*Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &Manifest{}, nil
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks every declared view. An empty manifest is valid.
func (m *Manifest) Validate() error {
	seen := make(map[string]struct{}, len(m.Views))
	for i, v := range m.Views {
		label := v.Name
		if label == "" {
			return fmt.Errorf("view %d: name is required", i)
		}
		if _, dup := seen[label]; dup {
			return fmt.Errorf("view %q: duplicate name", label)
		}
		seen[label] = struct{}{}

		switch {
		case v.URL == "" && v.HTML == "":
			return fmt.Errorf("view %q: a url or html source is required", label)
		case v.URL != "" && v.HTML != "":
			return fmt.Errorf("view %q: url and html are mutually exclusive", label)
		}
		if v.HTML != "" && !containsUniversal(v.OriginAllowList) {
			return fmt.Errorf("view %q: inline html requires the universal %q origin pattern", label, "*")
		}
		if v.Method != "" && v.URL == "" {
			return fmt.Errorf("view %q: method applies only to url sources", label)
		}
		if v.BaseURL != "" && v.HTML == "" {
			return fmt.Errorf("view %q: base_url applies only to html sources", label)
		}
	}
	return nil
}

// Request maps a declaration onto a registry create request.
func (v *View) Request() views.CreateRequest {
	return views.CreateRequest{
		Name:              v.Name,
		URL:               v.URL,
		Method:            v.Method,
		Headers:           v.Headers,
		HTML:              v.HTML,
		BaseURL:           v.BaseURL,
		OriginAllowList:   v.OriginAllowList,
		InjectedScript:    v.InjectedScript,
		EnableBridge:      v.EnableBridge,
		BridgeName:        v.BridgeName,
		UserAgent:         v.UserAgent,
		Incognito:         v.Incognito,
		DisableJavaScript: v.DisableJavaScript,
	}
}

// Seed creates every declared view. Individual creation failures are logged
// and skipped; the count of views actually created is returned. A capacity
// error aborts, since every remaining creation would fail the same way.
func Seed(ctx context.Context, mgr *views.Manager, m *Manifest, log *logging.Logger) (int, error) {
	log = logging.OrNop(log)
	created := 0
	for _, v := range m.Views {
		entry, err := mgr.Create(ctx, v.Request())
		if err != nil {
			if errors.Is(err, views.ErrCapacity) {
				return created, fmt.Errorf("manifest: seed %q: %w", v.Name, err)
			}
			log.Error("manifest view failed to start",
				zap.String("name", v.Name),
				zap.Error(err),
			)
			continue
		}
		created++
		log.Info("manifest view started",
			zap.String("name", v.Name),
			zap.String("view_id", entry.ID().String()),
		)
	}
	return created, nil
}

func containsUniversal(patterns []string) bool {
	for _, p := range patterns {
		if p == "*" {
			return true
		}
	}
	return false
}
