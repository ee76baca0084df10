package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/chorisonobeer/Sado-Matsuri-CalendarMap/internal/service"

// metrics are no-ops until a meter provider is installed.
type metrics struct {
	rowsParsed       metric.Int64Counter
	rowsSkipped      metric.Int64Counter
	refreshApplied   metric.Int64Counter
	refreshDiscarded metric.Int64Counter
	refreshFailed    metric.Int64Counter
	cacheHits        metric.Int64Counter
	cacheMisses      metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	meter := otel.Meter(meterName)
	m := &metrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.rowsParsed, "feed.rows.parsed", "Data rows read from a feed"},
		{&m.rowsSkipped, "feed.rows.skipped", "Rows dropped for missing fields or invalid values"},
		{&m.refreshApplied, "feed.refresh.applied", "Refreshes whose snapshot was applied"},
		{&m.refreshDiscarded, "feed.refresh.discarded", "Refreshes superseded by a newer generation"},
		{&m.refreshFailed, "feed.refresh.failed", "Refreshes that failed to fetch or parse"},
		{&m.cacheHits, "feed.cache.hits", "Session cache hits"},
		{&m.cacheMisses, "feed.cache.misses", "Session cache misses"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func feedAttr(feed string) metric.AddOption {
	return metric.WithAttributes(attribute.String("feed", feed))
}

func (m *metrics) add(ctx context.Context, c metric.Int64Counter, n int, feed string) {
	if n == 0 {
		return
	}
	c.Add(ctx, int64(n), feedAttr(feed))
}
