// Package config defines the logbuf options, their defaults, and how they are
// loaded from files and the environment.
//
// Precedence is: explicit values (Go struct or config file) > LOGBUF_*
// environment variables > defaults. Files are YAML or JSON-with-comments and
// are type-checked key by key, so a quota written as a string is rejected
// instead of silently ignored.
package config

import (
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/coffersTech/logbuf/internal/apperrors"
	"github.com/coffersTech/logbuf/internal/model"
)

// MiB is one mebibyte.
const MiB = 1024 * 1024

// DefaultBytesQuota is the per-app storage quota when none is configured.
const DefaultBytesQuota int64 = 10 * MiB

// DefaultStoragePath is where the log database lives when none is configured.
const DefaultStoragePath = "logbuf.db"

// Options configures a Logger.
type Options struct {
	AppKey               string        `json:"appKey" yaml:"appKey"`
	BytesQuota           int64         `json:"bytesQuota" yaml:"bytesQuota"`
	ReportURL            string        `json:"reportUrl" yaml:"reportUrl"` // empty disables reporting
	EnableFireAndForget  bool          `json:"enableFireAndForgetTransport" yaml:"enableFireAndForgetTransport"`
	UserID               string        `json:"userId" yaml:"userId"`
	EnableDiagnosticEcho bool          `json:"enableDiagnosticEcho" yaml:"enableDiagnosticEcho"`
	StoragePath          string        `json:"storagePath" yaml:"storagePath"`
	StateDir             string        `json:"stateDir" yaml:"stateDir"` // holds the instance id; empty uses ~/.logbuf
	OriginURL            string        `json:"originUrl" yaml:"originUrl"`
	APIKey               string        `json:"apiKey" yaml:"apiKey"`
	CompressReports      bool          `json:"compressReports" yaml:"compressReports"`
	RetentionPeriod      time.Duration `json:"retentionPeriod" yaml:"retentionPeriod"` // zero disables retention
}

// Defaults returns the default options.
func Defaults() Options {
	return Options{
		AppKey:      model.AnonymousAppKey,
		BytesQuota:  DefaultBytesQuota,
		StoragePath: DefaultStoragePath,
	}
}

// WithDefaults fills zero-valued fields from Defaults.
func (o Options) WithDefaults() Options {
	d := Defaults()
	o.AppKey = getConfigValue(d.AppKey, o.AppKey)
	o.BytesQuota = getConfigValue(d.BytesQuota, o.BytesQuota)
	o.StoragePath = getConfigValue(d.StoragePath, o.StoragePath)
	return o
}

// Validate checks option values that the type system cannot.
func (o Options) Validate() error {
	if o.BytesQuota <= 0 {
		return apperrors.NewConfigError("bytesQuota", "must be positive, got %d", o.BytesQuota)
	}
	if o.ReportURL != "" {
		u, err := url.Parse(o.ReportURL)
		if err != nil {
			return apperrors.NewConfigError("reportUrl", "%v", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return apperrors.NewConfigError("reportUrl", "scheme must be http or https, got %q", u.Scheme)
		}
	}
	if o.RetentionPeriod < 0 {
		return apperrors.NewConfigError("retentionPeriod", "must not be negative")
	}
	return nil
}

// ReportingEnabled reports whether a collector URL is configured.
func (o Options) ReportingEnabled() bool {
	return o.ReportURL != ""
}

// FromMap builds Options from a decoded config document, checking the type of
// every recognized key. Unknown keys are ignored.
func FromMap(m map[string]any) (Options, error) {
	var o Options
	var err error

	if v, ok := m["appKey"]; ok {
		if o.AppKey, err = asString("appKey", v); err != nil {
			return o, err
		}
	}
	if v, ok := m["bytesQuota"]; ok {
		if o.BytesQuota, err = asInt64("bytesQuota", v); err != nil {
			return o, err
		}
	}
	if v, ok := m["reportUrl"]; ok && !isFalsy(v) {
		if o.ReportURL, err = asString("reportUrl", v); err != nil {
			return o, err
		}
	}
	if v, ok := lookup(m, "enableFireAndForgetTransport", "enableSendBeacon"); ok {
		if o.EnableFireAndForget, err = asBool("enableFireAndForgetTransport", v); err != nil {
			return o, err
		}
	}
	if v, ok := m["userId"]; ok {
		if o.UserID, err = asString("userId", v); err != nil {
			return o, err
		}
	}
	if v, ok := lookup(m, "enableDiagnosticEcho", "enableConsole"); ok {
		if o.EnableDiagnosticEcho, err = asBool("enableDiagnosticEcho", v); err != nil {
			return o, err
		}
	}
	for key, dst := range map[string]*string{
		"storagePath": &o.StoragePath,
		"stateDir":    &o.StateDir,
		"originUrl":   &o.OriginURL,
		"apiKey":      &o.APIKey,
	} {
		if v, ok := m[key]; ok {
			if *dst, err = asString(key, v); err != nil {
				return o, err
			}
		}
	}
	if v, ok := m["compressReports"]; ok {
		if o.CompressReports, err = asBool("compressReports", v); err != nil {
			return o, err
		}
	}
	if v, ok := m["retentionPeriod"]; ok {
		if o.RetentionPeriod, err = asDuration("retentionPeriod", v); err != nil {
			return o, err
		}
	}
	return o, nil
}

// getConfigValue returns defaultVal if cfgVal is the zero value for T.
func getConfigValue[T comparable](defaultVal, cfgVal T) T {
	var zero T
	if cfgVal == zero {
		return defaultVal
	}
	return cfgVal
}

func lookup(m map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func isFalsy(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case int:
		return x == 0
	case float64:
		return x == 0
	}
	return false
}

func asString(field string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", apperrors.NewConfigError(field, "expected string, got %T", v)
	}
	return s, nil
}

func asBool(field string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, apperrors.NewConfigError(field, "expected bool, got %T", v)
	}
	return b, nil
}

func asInt64(field string, v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, apperrors.NewConfigError(field, "value %d overflows int64", x)
		}
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			return 0, apperrors.NewConfigError(field, "expected integer, got %v", x)
		}
		return int64(x), nil
	}
	return 0, apperrors.NewConfigError(field, "expected integer, got %T", v)
}

func asDuration(field string, v any) (time.Duration, error) {
	switch x := v.(type) {
	case string:
		d, err := time.ParseDuration(x)
		if err != nil {
			return 0, apperrors.NewConfigError(field, "%v", err)
		}
		return d, nil
	case int, int64, float64:
		n, err := asInt64(field, x)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * time.Second, nil
	}
	return 0, apperrors.NewConfigError(field, "expected duration, got %T", v)
}

// String renders the options for diagnostics with the API key redacted.
func (o Options) String() string {
	apiKey := ""
	if o.APIKey != "" {
		apiKey = "<redacted>"
	}
	return fmt.Sprintf("{appKey:%s bytesQuota:%d reportUrl:%s fireAndForget:%t storage:%s apiKey:%s retention:%s}",
		o.AppKey, o.BytesQuota, o.ReportURL, o.EnableFireAndForget, o.StoragePath, apiKey, o.RetentionPeriod)
}
