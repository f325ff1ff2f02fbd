package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "LOGBUF_"

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultVal
}

// getEnvBool accepts true/1/yes and false/0/no, case-insensitively.
func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

// applyEnvOverrides sets every option whose config key isSet reports as
// absent from the environment.
//
// Supported variables:
//   - LOGBUF_APP_KEY, LOGBUF_BYTES_QUOTA, LOGBUF_REPORT_URL, LOGBUF_USER_ID
//   - LOGBUF_FIRE_AND_FORGET, LOGBUF_DIAGNOSTIC_ECHO, LOGBUF_COMPRESS_REPORTS
//   - LOGBUF_STORAGE_PATH, LOGBUF_STATE_DIR, LOGBUF_ORIGIN_URL, LOGBUF_API_KEY
//   - LOGBUF_RETENTION (duration: "72h")
func applyEnvOverrides(o *Options, isSet func(key string) bool) {
	if !isSet("appKey") {
		o.AppKey = getEnvString("APP_KEY", o.AppKey)
	}
	if !isSet("bytesQuota") {
		o.BytesQuota = getEnvInt64("BYTES_QUOTA", o.BytesQuota)
	}
	if !isSet("reportUrl") {
		o.ReportURL = getEnvString("REPORT_URL", o.ReportURL)
	}
	if !isSet("userId") {
		o.UserID = getEnvString("USER_ID", o.UserID)
	}
	if !isSet("enableFireAndForgetTransport") {
		o.EnableFireAndForget = getEnvBool("FIRE_AND_FORGET", o.EnableFireAndForget)
	}
	if !isSet("enableDiagnosticEcho") {
		o.EnableDiagnosticEcho = getEnvBool("DIAGNOSTIC_ECHO", o.EnableDiagnosticEcho)
	}
	if !isSet("compressReports") {
		o.CompressReports = getEnvBool("COMPRESS_REPORTS", o.CompressReports)
	}
	if !isSet("storagePath") {
		o.StoragePath = getEnvString("STORAGE_PATH", o.StoragePath)
	}
	if !isSet("stateDir") {
		o.StateDir = getEnvString("STATE_DIR", o.StateDir)
	}
	if !isSet("originUrl") {
		o.OriginURL = getEnvString("ORIGIN_URL", o.OriginURL)
	}
	if !isSet("apiKey") {
		o.APIKey = getEnvString("API_KEY", o.APIKey)
	}
	if !isSet("retentionPeriod") {
		o.RetentionPeriod = getEnvDuration("RETENTION", o.RetentionPeriod)
	}
}
