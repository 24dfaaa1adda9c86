// Package monitoring reports unexpected failures to Sentry.
package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
)

// Config holds Sentry settings. An empty DSN leaves reporting disabled.
type Config struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
	Debug       bool
}

// Init configures the global Sentry client. It reports whether reporting is enabled.
func Init(cfg Config) (bool, error) {
	if cfg.DSN == "" {
		return false, nil
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       sampleRate,
		Debug:            cfg.Debug,
		AttachStacktrace: true,
	})
	if err != nil {
		return false, fmt.Errorf("failed to initialize sentry: %w", err)
	}

	return true, nil
}

// Flush waits for buffered events to be delivered
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// CaptureError reports err on the hub attached to ctx, falling back to the global hub
func CaptureError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.CaptureException(err)
}

// Middleware gives every request its own hub and reports panics before
// passing them on to the outer recoverer.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetRequest(r)
		ctx := sentry.SetHubOnContext(r.Context(), hub)

		defer func() {
			if rec := recover(); rec != nil {
				if rec != http.ErrAbortHandler {
					hub.RecoverWithContext(ctx, rec)
				}
				panic(rec)
			}
		}()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
