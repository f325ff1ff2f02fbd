package model

import (
	"fmt"
	"strings"
)

// Level is the severity of a log entry.
type Level uint8

const (
	LevelTrace Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
	LevelAssert
)

var levelNames = [...]string{
	LevelTrace:  "trace",
	LevelInfo:   "info",
	LevelWarn:   "warn",
	LevelError:  "error",
	LevelFatal:  "fatal",
	LevelAssert: "assert",
}

// Levels lists every known level in ascending severity.
func Levels() []Level {
	return []Level{LevelTrace, LevelInfo, LevelWarn, LevelError, LevelFatal, LevelAssert}
}

// String returns the lower-case level name.
func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("level(%d)", uint8(l))
}

// Valid reports whether l is one of the defined levels.
func (l Level) Valid() bool {
	return int(l) < len(levelNames)
}

// ParseLevel converts a level name to a Level. Matching is case-insensitive;
// "debug" maps to trace and "warning" to warn.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug":
		return LevelTrace, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	case "assert":
		return LevelAssert, nil
	default:
		return LevelInfo, fmt.Errorf("unknown level %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid level %d", uint8(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
