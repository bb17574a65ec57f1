// Package worker runs the periodic delivery sweep over pending order
// artifacts.
package worker

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/orderdesk/internal/domain/order"
)

// Config holds sweep tunables. Zero values get the defaults below.
type Config struct {
	Interval      time.Duration
	BatchSize     int
	MaxAttempts   int
	MeterProvider metric.MeterProvider
}

const (
	defaultInterval    = 10 * time.Second
	defaultBatchSize   = 10
	defaultMaxAttempts = 3
)

// Delivery sweeps the pending directory on a fixed interval, moving up
// to BatchSize artifacts per tick to the delivered state. Artifacts
// beyond the batch, and artifacts that exhaust their per-tick attempts,
// stay pending and are picked up by later ticks. The design assumes a
// single Delivery instance; the file store's write-before-delete
// ordering is the only concurrency discipline on the directories.
type Delivery struct {
	store       order.FileStore
	lg          *zap.Logger
	interval    time.Duration
	batchSize   int
	maxAttempts int

	delivered metric.Int64Counter
	abandoned metric.Int64Counter
}

// NewDelivery creates the sweep worker.
func NewDelivery(store order.FileStore, lg *zap.Logger, cfg Config) (*Delivery, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = metricnoop.NewMeterProvider()
	}

	meter := cfg.MeterProvider.Meter("orderdesk.worker")
	delivered, err := meter.Int64Counter("orders_delivered_total",
		metric.WithDescription("Artifacts moved to the delivered state"))
	if err != nil {
		return nil, errors.Wrap(err, "orders_delivered_total counter")
	}
	abandoned, err := meter.Int64Counter("sweep_abandoned_total",
		metric.WithDescription("Artifacts abandoned until a later sweep after exhausting attempts"))
	if err != nil {
		return nil, errors.Wrap(err, "sweep_abandoned_total counter")
	}

	return &Delivery{
		store:       store,
		lg:          lg,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		delivered:   delivered,
		abandoned:   abandoned,
	}, nil
}

// Run ticks until ctx is cancelled. It never returns a sweep error; per
// artifact failures are logged and retried on later ticks.
func (d *Delivery) Run(ctx context.Context) error {
	d.lg.Info("Delivery sweep started",
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize))

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.lg.Info("Delivery sweep stopped")
			return nil
		case <-ticker.C:
			d.sweep(ctx)
		}
	}
}

// sweep processes one tick: list a bounded batch and fan out per key.
// Keys are distinct files, so the per-key goroutines share no state
// beyond the filesystem.
func (d *Delivery) sweep(ctx context.Context) {
	keys, err := d.store.ListPending(ctx, d.batchSize)
	if err != nil {
		d.lg.Error("List pending artifacts", zap.Error(err))
		return
	}
	if len(keys) == 0 {
		return
	}

	var g errgroup.Group
	for _, key := range keys {
		g.Go(func() error {
			d.processKey(ctx, key)
			return nil
		})
	}
	_ = g.Wait()
}

// processKey moves one artifact with a bounded retry. After the final
// attempt the artifact is left pending for the next tick.
func (d *Delivery) processKey(ctx context.Context, key string) {
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		err := d.store.MoveToDelivered(ctx, key)
		if err == nil {
			d.delivered.Add(ctx, 1)
			d.lg.Info("Order delivered",
				zap.String("key", key),
				zap.Int("attempt", attempt))
			return
		}
		d.lg.Warn("Deliver attempt failed",
			zap.String("key", key),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	d.abandoned.Add(ctx, 1)
	d.lg.Error("Abandoning artifact until next sweep",
		zap.String("key", key),
		zap.Int("attempts", d.maxAttempts))
}
