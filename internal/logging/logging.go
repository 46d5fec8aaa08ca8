// Package logging configures the process-wide slog handler.
package logging

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// secretKeys are attribute keys whose values must never reach the log.
var secretKeys = map[string]bool{
	"api_key":       true,
	"apikey":        true,
	"authorization": true,
	"credential":    true,
	"token":         true,
}

// New returns a tinted stderr logger that masks credential-bearing
// attributes. The classifier key flows through config plumbing, so masking
// at the handler is the backstop against an accidental log of it.
func New(level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:       level,
		TimeFormat:  time.TimeOnly,
		ReplaceAttr: maskSecrets,
	}))
}

func maskSecrets(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[a.Key] {
		return slog.String(a.Key, "***")
	}
	return a
}
