package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/orderdesk/internal/domain/order"
	"github.com/xenking/orderdesk/internal/handler"
	"github.com/xenking/orderdesk/internal/storage/fsstore"
	"github.com/xenking/orderdesk/internal/storage/postgres"
	"github.com/xenking/orderdesk/internal/worker"
	"github.com/xenking/orderdesk/pkg/health"
	"github.com/xenking/orderdesk/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the delivery sweep and the HTTP
// server, and handles graceful shutdown. It is the single wiring point
// for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Artifact store for pending/delivered orders.
	files, err := fsstore.New(fsstore.Config{
		PendingDir:    cfg.Store.PendingDir,
		DeliveredDir:  cfg.Store.DeliveredDir,
		WriteAttempts: cfg.Store.WriteAttempts,
	}, lg.Named("fsstore"))
	if err != nil {
		return errors.Wrap(err, "create file store")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddReadinessCheck("pending-dir", time.Second, health.DirWritableCheck(cfg.Store.PendingDir))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.SetReady(true)

	// Domain service: one gate instance for the process lifetime.
	repo := postgres.NewOrderRepository(pool)
	gate := order.NewIntakeGate()
	orderService, err := order.NewService(repo, files, gate, order.ServiceConfig{
		ProcessingDelay: cfg.Intake.ProcessingDelay,
		TracerProvider:  m.TracerProvider(),
		MeterProvider:   m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	// Delivery sweep runs in-process for the lifetime of ctx.
	sweep, err := worker.NewDelivery(files, lg.Named("delivery"), worker.Config{
		Interval:      cfg.Sweep.Interval,
		BatchSize:     cfg.Sweep.BatchSize,
		MaxAttempts:   cfg.Sweep.MaxAttempts,
		MeterProvider: m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create delivery worker")
	}
	// The sweep deliberately outlives ctx: orders accepted during the
	// drain window still need their artifacts swept, so it is stopped at
	// the end of the shutdown sequence instead.
	sweepCtx, stopSweep := context.WithCancel(context.WithoutCancel(ctx))
	defer stopSweep()
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		if err := sweep.Run(sweepCtx); err != nil {
			lg.Error("Delivery worker stopped", zap.Error(err))
		}
	}()

	// Mux: health endpoints + order intake on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	handler.New(orderService).Register(mux)

	wrapped := httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.LogRequests(),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(wrapped, "orderdesk",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	shutdownDone := shutdownSequence(ctx, lg, server, healthSvc.SetReady, cfg.Graceful, stopSweep)

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	<-sweepDone
	return nil
}

// shutdownSequence drains and stops the server once ctx is cancelled:
// readiness goes false so load balancers stop routing, the drain delay
// lets in-flight traffic finish, the server shuts down, and only then is
// the delivery sweep stopped so orders accepted while draining are still
// swept. The returned channel closes when the sequence is complete.
func shutdownSequence(ctx context.Context, lg *zap.Logger, server *http.Server, setReady func(bool), cfg GracefulConfig, stopSweep func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()

		setReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.ReadinessDelay))
		time.Sleep(cfg.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		stopSweep()
	}()
	return done
}
