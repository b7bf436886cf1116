package config

import (
	"strconv"
	"strings"
)

// CoerceBool interprets the truthy spellings clients send in
// environment variables: "true", "1", "t", "yes", "y", case
// insensitive. Everything else is false.
func CoerceBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "t", "yes", "y":
		return true
	default:
		return false
	}
}

// CoerceSeconds parses a duration in seconds from a client-supplied
// string. Unparseable values and negatives collapse to zero rather
// than failing startup.
func CoerceSeconds(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// ParseList splits a comma-separated list, trimming whitespace and
// dropping empty items.
func ParseList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
