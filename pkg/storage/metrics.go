package storage

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/observability"
)

type startTimeKey struct{}

// metricsHook counts every command and times it. A redis.Nil answer is a
// miss, not a failure, and counts as ok.
type metricsHook struct {
	metrics *observability.Metrics
}

// InstrumentMetrics attaches command counters and latency histograms to the
// client. Call it once, right after NewRedisClient, so the startup ping stays
// out of the numbers.
func InstrumentMetrics(client *redis.Client, m *observability.Metrics) {
	client.AddHook(&metricsHook{metrics: m})
}

func (h *metricsHook) BeforeProcess(ctx context.Context, cmd redis.Cmder) (context.Context, error) {
	return context.WithValue(ctx, startTimeKey{}, time.Now()), nil
}

func (h *metricsHook) AfterProcess(ctx context.Context, cmd redis.Cmder) error {
	h.metrics.RedisCommandsTotal.WithLabelValues(cmd.Name(), commandOutcome(cmd.Err())).Inc()
	if start, ok := ctx.Value(startTimeKey{}).(time.Time); ok {
		h.metrics.RedisCommandDuration.WithLabelValues(cmd.Name()).Observe(time.Since(start).Seconds())
	}
	return nil
}

func (h *metricsHook) BeforeProcessPipeline(ctx context.Context, cmds []redis.Cmder) (context.Context, error) {
	return context.WithValue(ctx, startTimeKey{}, time.Now()), nil
}

// AfterProcessPipeline counts each queued command individually but records a
// single round-trip latency, since the pipeline shares one.
func (h *metricsHook) AfterProcessPipeline(ctx context.Context, cmds []redis.Cmder) error {
	for _, cmd := range cmds {
		h.metrics.RedisCommandsTotal.WithLabelValues(cmd.Name(), commandOutcome(cmd.Err())).Inc()
	}
	if start, ok := ctx.Value(startTimeKey{}).(time.Time); ok {
		h.metrics.RedisCommandDuration.WithLabelValues("pipeline").Observe(time.Since(start).Seconds())
	}
	return nil
}

func commandOutcome(err error) string {
	if err == nil || err == redis.Nil {
		return "ok"
	}
	return "error"
}
