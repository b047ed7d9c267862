package config

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	loadCounterOnce sync.Once
	loadCounter     metric.Int64Counter
)

// recordLoadOutcome counts configuration loads by environment and failure
// class.
func recordLoadOutcome(ctx context.Context, env string, err error) {
	loadCounterOnce.Do(func() {
		counter, cerr := otel.Meter("capture-session-service").Int64Counter("config.load.events")
		if cerr == nil {
			loadCounter = counter
		}
	})
	if loadCounter == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	loadCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("env", envLabel(env)),
		attribute.String("outcome", outcome),
		attribute.String("error_class", errorClass(err)),
	))
}

func envLabel(env string) string {
	v := strings.ToLower(strings.TrimSpace(env))
	if v == "" {
		return "unknown"
	}
	return v
}

func errorClass(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrInvalid):
		return "validation"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrEnvFile):
		return "env_file"
	default:
		return "load"
	}
}
