package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sandeepkv93/capture-session-service/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "capture-session-service"

type AppMetrics struct {
	repositoryOps      metric.Int64Counter
	roomJoins          metric.Int64Counter
	linesRelayed       metric.Int64Counter
	lineSends          metric.Int64Counter
	reaperEvents       metric.Int64Counter
	sweptRooms         metric.Int64Counter
	activeConnections  metric.Int64UpDownCounter
	tokenValidations   metric.Int64Counter
	rateLimitDecisions metric.Int64Counter
	mediaMissCache     metric.Int64Counter
	mediaSessionOps    metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, err
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	var (
		m   AppMetrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
	}{
		{&m.repositoryOps, "repository.operations"},
		{&m.roomJoins, "room.joins"},
		{&m.linesRelayed, "room.lines.relayed"},
		{&m.lineSends, "room.lines.sent"},
		{&m.reaperEvents, "room.reaper.events"},
		{&m.sweptRooms, "room.sweeper.deleted"},
		{&m.tokenValidations, "auth.token.validations"},
		{&m.rateLimitDecisions, "ratelimit.decisions"},
		{&m.mediaMissCache, "media.miss_cache.events"},
		{&m.mediaSessionOps, "media_session.operations"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name)
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", c.name, err)
		}
	}
	m.activeConnections, err = meter.Int64UpDownCounter("realtime.connections.active")
	if err != nil {
		return nil, fmt.Errorf("create updown counter realtime.connections.active: %w", err)
	}
	return &m, nil
}

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.repositoryOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func RecordRoomJoin(ctx context.Context, role, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.roomJoins.Add(ctx, 1, metric.WithAttributes(
		attribute.String("role", role),
		attribute.String("outcome", outcome),
	))
}

func RecordLineSend(ctx context.Context, outcome string, recipients int) {
	m := current()
	if m == nil {
		return
	}
	m.lineSends.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if recipients > 0 {
		m.linesRelayed.Add(ctx, int64(recipients))
	}
}

func RecordReaperEvent(ctx context.Context, action string) {
	m := current()
	if m == nil {
		return
	}
	m.reaperEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

func RecordSweptRooms(ctx context.Context, deleted int64) {
	m := current()
	if m == nil || deleted <= 0 {
		return
	}
	m.sweptRooms.Add(ctx, deleted)
}

func RecordConnectionDelta(ctx context.Context, delta int64) {
	m := current()
	if m == nil {
		return
	}
	m.activeConnections.Add(ctx, delta)
}

func RecordAccessTokenValidation(ctx context.Context, outcome, source string) {
	m := current()
	if m == nil {
		return
	}
	m.tokenValidations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("source", source),
	))
}

func RecordRateLimitDecision(ctx context.Context, scope, decision, mode string) {
	m := current()
	if m == nil {
		return
	}
	m.rateLimitDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("decision", decision),
		attribute.String("mode", mode),
	))
}

func RecordMediaMissCacheEvent(ctx context.Context, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.mediaMissCache.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordMediaSessionOperation(ctx context.Context, operation, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.mediaSessionOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}
