package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// defaultProcessingDelay simulates the downstream processing window
// between accepting a submission and persisting it.
const defaultProcessingDelay = 3 * time.Second

// ServiceConfig holds tunables and optional telemetry providers for the
// order service. Zero values get sensible defaults.
type ServiceConfig struct {
	ProcessingDelay time.Duration
	TracerProvider  trace.TracerProvider
	MeterProvider   metric.MeterProvider
}

// Service orchestrates order submission: gate acquisition, number
// generation, the processing delay, the database insert, and the
// pending-artifact write.
type Service struct {
	repo    Repository
	files   FileStore
	gate    *IntakeGate
	numbers *NumberGenerator
	delay   time.Duration
	now     func() time.Time

	tracer    trace.Tracer
	placed    metric.Int64Counter
	conflicts metric.Int64Counter
}

// NewService creates an order Service with the required dependencies.
func NewService(repo Repository, files FileStore, gate *IntakeGate, cfg ServiceConfig) (*Service, error) {
	if cfg.ProcessingDelay <= 0 {
		cfg.ProcessingDelay = defaultProcessingDelay
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = tracenoop.NewTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = metricnoop.NewMeterProvider()
	}

	meter := cfg.MeterProvider.Meter("orderdesk.order")
	placed, err := meter.Int64Counter("orders_placed_total",
		metric.WithDescription("Orders accepted, persisted, and materialized"))
	if err != nil {
		return nil, errors.Wrap(err, "orders_placed_total counter")
	}
	conflicts, err := meter.Int64Counter("orders_conflict_total",
		metric.WithDescription("Submissions rejected while the customer was busy"))
	if err != nil {
		return nil, errors.Wrap(err, "orders_conflict_total counter")
	}

	return &Service{
		repo:      repo,
		files:     files,
		gate:      gate,
		numbers:   NewNumberGenerator(repo),
		delay:     cfg.ProcessingDelay,
		now:       time.Now,
		tracer:    cfg.TracerProvider.Tracer("orderdesk.order"),
		placed:    placed,
		conflicts: conflicts,
	}, nil
}

// Submit runs one order submission end to end. It returns ErrCustomerBusy
// without side effects when another submission for the same customer is
// in flight. The gate is released on every exit path.
func (s *Service) Submit(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Submit",
		trace.WithAttributes(attribute.Int64("order.customer_id", req.CustomerID)))
	defer span.End()

	if !s.gate.TryAcquire(req.CustomerID) {
		s.conflicts.Add(ctx, 1)
		return nil, ErrCustomerBusy
	}
	defer s.gate.Release(req.CustomerID)

	// One clock read per submission: the number's date component and
	// CreatedAt must agree even when the submission straddles midnight.
	now := s.now()
	number, err := s.numbers.Next(ctx, req.CustomerID, now)
	if err != nil {
		return nil, errors.Wrap(err, "generate order number")
	}

	o := &Order{
		Number:      number,
		CustomerID:  req.CustomerID,
		Name:        req.Name,
		Email:       req.Email,
		Address:     req.Address,
		PaymentType: req.PaymentType,
		Items:       []Item{req.Item},
		Total:       req.Item.Price.Mul(decimal.NewFromInt(int64(req.Item.Quantity))),
		Status:      StatusReceived,
		CreatedAt:   now,
	}

	// Simulated downstream processing. The wait is scoped to this request,
	// so submissions for other customers are not held up; the gate for this
	// customer stays held across it.
	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	if err := s.repo.Create(ctx, o); err != nil {
		return nil, errors.Wrapf(err, "insert order %s", number)
	}

	if err := s.files.Write(ctx, o); err != nil {
		// The row exists but the artifact does not. Log what a manual
		// reconciliation would need; there is no automated recovery.
		zctx.From(ctx).Error("Order artifact write failed after insert",
			zap.String("order_number", o.Number),
			zap.Int64("customer_id", o.CustomerID),
			zap.Error(err))
		return nil, errors.Wrapf(err, "write order artifact %s", number)
	}

	s.placed.Add(ctx, 1)
	return o, nil
}
