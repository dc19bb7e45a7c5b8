package logger

import (
	"log/slog"
	"net/url"
	"strings"
)

const redacted = "<redacted>"

var secretKeys = []string{"password", "passwd", "secret", "token", "credential", "api_key", "apikey"}

// sanitize redacts the values of secret looking keys, and the password of any URL logged as a string
// (broker URLs carry credentials)
func sanitize(key string, v slog.Value) slog.Value {
	lower := strings.ToLower(key)
	for _, k := range secretKeys {
		if strings.Contains(lower, k) {
			return slog.StringValue(redacted)
		}
	}
	if v.Kind() != slog.KindString {
		return v
	}
	s := v.String()
	if !strings.Contains(s, "://") {
		return v
	}
	u, err := url.Parse(s)
	if err != nil || u.User == nil {
		return v
	}
	return slog.StringValue(u.Redacted())
}
