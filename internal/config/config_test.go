package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coffersTech/logbuf/internal/apperrors"
	"github.com/coffersTech/logbuf/internal/model"
)

func TestWithDefaults(t *testing.T) {
	opts := Options{}.WithDefaults()
	if opts.AppKey != model.AnonymousAppKey {
		t.Errorf("Expected anonymous app key, got %q", opts.AppKey)
	}
	if opts.BytesQuota != DefaultBytesQuota {
		t.Errorf("Expected default quota %d, got %d", DefaultBytesQuota, opts.BytesQuota)
	}
	if opts.ReportingEnabled() {
		t.Error("reporting should be disabled without a URL")
	}

	opts = Options{AppKey: "shop", BytesQuota: 1000}.WithDefaults()
	if opts.AppKey != "shop" || opts.BytesQuota != 1000 {
		t.Errorf("explicit values were overwritten: %+v", opts)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		field string
	}{
		{"zero quota", Options{BytesQuota: 0}, "bytesQuota"},
		{"negative quota", Options{BytesQuota: -1}, "bytesQuota"},
		{"bad scheme", Options{BytesQuota: 1, ReportURL: "ftp://example.com"}, "reportUrl"},
		{"negative retention", Options{BytesQuota: 1, RetentionPeriod: -time.Hour}, "retentionPeriod"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			var cfgErr apperrors.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Expected field %q, got %q", tt.field, cfgErr.Field)
			}
		})
	}

	ok := Options{BytesQuota: 1, ReportURL: "https://collector.example.com/api/report"}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid options rejected: %v", err)
	}
}

func TestFromMapTypeChecks(t *testing.T) {
	tests := []struct {
		name  string
		doc   map[string]any
		field string
	}{
		{"quota as string", map[string]any{"bytesQuota": "10"}, "bytesQuota"},
		{"fractional quota", map[string]any{"bytesQuota": 1.5}, "bytesQuota"},
		{"app key as number", map[string]any{"appKey": 7}, "appKey"},
		{"beacon flag as string", map[string]any{"enableSendBeacon": "yes"}, "enableFireAndForgetTransport"},
		{"echo flag as number", map[string]any{"enableDiagnosticEcho": 1}, "enableDiagnosticEcho"},
		{"report url as number", map[string]any{"reportUrl": 5}, "reportUrl"},
		{"retention garbage", map[string]any{"retentionPeriod": "soon"}, "retentionPeriod"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.doc)
			var cfgErr apperrors.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Expected field %q, got %q", tt.field, cfgErr.Field)
			}
		})
	}
}

func TestFromMapAliasesAndFalsyURL(t *testing.T) {
	opts, err := FromMap(map[string]any{
		"appKey":           "shop",
		"bytesQuota":       float64(2048),
		"reportUrl":        false,
		"enableSendBeacon": true,
		"enableConsole":    true,
		"retentionPeriod":  60,
		"unknownKey":       []any{1, 2},
	})
	if err != nil {
		t.Fatalf("FromMap failed: %v", err)
	}
	if opts.AppKey != "shop" || opts.BytesQuota != 2048 {
		t.Errorf("unexpected options %+v", opts)
	}
	if opts.ReportURL != "" {
		t.Errorf("falsy reportUrl should disable reporting, got %q", opts.ReportURL)
	}
	if !opts.EnableFireAndForget || !opts.EnableDiagnosticEcho {
		t.Error("legacy flag aliases were not honored")
	}
	if opts.RetentionPeriod != time.Minute {
		t.Errorf("Expected 60s retention, got %s", opts.RetentionPeriod)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logbuf.yaml")
	content := `
appKey: checkout
bytesQuota: 4096
reportUrl: https://collector.example.com/api/report
retentionPeriod: 72h
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	opts, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if opts.AppKey != "checkout" || opts.BytesQuota != 4096 {
		t.Errorf("unexpected options %+v", opts)
	}
	if opts.RetentionPeriod != 72*time.Hour {
		t.Errorf("Expected 72h retention, got %s", opts.RetentionPeriod)
	}
	if opts.StoragePath != DefaultStoragePath {
		t.Errorf("Expected default storage path, got %q", opts.StoragePath)
	}
}

func TestLoadJSONCWithEnvOverride(t *testing.T) {
	t.Setenv("LOGBUF_APP_KEY", "from-env")
	t.Setenv("LOGBUF_USER_ID", "u-42")
	t.Setenv("LOGBUF_COMPRESS_REPORTS", "yes")

	path := filepath.Join(t.TempDir(), "logbuf.jsonc")
	content := `{
  // quota in bytes
  "appKey": "from-file",
  "bytesQuota": 1000, /* small for tests */
}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	opts, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if opts.AppKey != "from-file" {
		t.Errorf("file value must win over env, got %q", opts.AppKey)
	}
	if opts.UserID != "u-42" {
		t.Errorf("Expected env user id, got %q", opts.UserID)
	}
	if !opts.CompressReports {
		t.Error("Expected compression enabled from env")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("bytesQuota: lots\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	var cfgErr apperrors.ConfigError
	if _, err := Load(bad); !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigError for string quota, got %v", err)
	}

	unknown := filepath.Join(dir, "logbuf.toml")
	if err := os.WriteFile(unknown, []byte(""), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(unknown); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("Expected unsupported format error, got %v", err)
	}
}

func TestStringRedactsAPIKey(t *testing.T) {
	s := Options{APIKey: "secret-token"}.String()
	if strings.Contains(s, "secret-token") {
		t.Errorf("API key leaked: %s", s)
	}
}
