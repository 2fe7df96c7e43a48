package sentry_integration

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/initia-labs/soldebug/config"
)

// Init configures the global hub. It is a no-op without a DSN.
func Init(cfg *config.Config) error {
	sc := cfg.GetSentryConfig()
	if sc == nil {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:              sc.DSN,
		SampleRate:       sc.SampleRate,
		EnableTracing:    sc.TracesSampleRate > 0,
		TracesSampleRate: sc.TracesSampleRate,
		Environment:      sc.Environment,
		Release:          config.Version,
	})
}

// Flush waits for buffered events before the process exits.
func Flush() {
	sentry.Flush(2 * time.Second)
}

func CaptureCurrentHubException(err error, level sentry.Level) {
	CaptureException(sentry.CurrentHub(), err, level)
}

func CaptureException(hub *sentry.Hub, err error, level sentry.Level) {
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		hub.CaptureException(err)
	})
}

// CaptureStepException attaches the failing step and address before capture.
func CaptureStepException(err error, step int, address string) {
	hub := sentry.CurrentHub()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		scope.SetTag("address", address)
		scope.SetContext("trace", sentry.Context{"step": step})
		hub.CaptureException(err)
	})
}

func StartSentryTransaction(ctx context.Context, operation, description string) (*sentry.Span, context.Context) {
	transaction := sentry.StartTransaction(ctx, operation)
	transaction.Description = description
	return transaction, transaction.Context()
}

func StartSentrySpan(ctx context.Context, operation, description string) (*sentry.Span, context.Context) {
	span := sentry.StartSpan(ctx, operation)
	span.Description = description
	return span, span.Context()
}
