package app

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/dinein/internal/broker/rabbitmq"
	"github.com/xenking/dinein/internal/domain/auth"
	"github.com/xenking/dinein/internal/domain/order"
	"github.com/xenking/dinein/internal/domain/payment"
	"github.com/xenking/dinein/internal/domain/pricing"
	"github.com/xenking/dinein/internal/handler"
	"github.com/xenking/dinein/internal/notify"
	"github.com/xenking/dinein/internal/storage/postgres"
	"github.com/xenking/dinein/internal/vnpay"
	"github.com/xenking/dinein/pkg/health"
	"github.com/xenking/dinein/pkg/httpmiddleware"
)

const ipnPath = "/api/payments/vnpay/ipn"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
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

	// Health check service.
	healthSvc := health.New()
	healthSvc.Add(health.Readiness, "postgres", health.PingCheck(pool), health.WithTimeout(5*time.Second))
	healthSvc.Add(health.Liveness, "goroutines", health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	events, closeEvents, err := newPublisher(cfg.AMQP, lg)
	if err != nil {
		return errors.Wrap(err, "create event publisher")
	}
	defer func() {
		if err := closeEvents.Close(); err != nil {
			lg.Warn("Close event publisher", zap.Error(err))
		}
	}()

	r, err := newRouter(ctx, pool, m, cfg, events, healthSvc)
	if err != nil {
		return err
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           r,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newRouter mounts probes and the API behind the middleware chain.
func newRouter(ctx context.Context, pool *pgxpool.Pool, m httpmiddleware.Telemetry, cfg *Config, events notify.Publisher, healthSvc *health.Health) (chi.Router, error) {
	h, err := newHandler(pool, m, cfg, events)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(
		httpmiddleware.Recovery(),
		chimw.RealIP,
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", handler.APIKeyHeader, httpmiddleware.RequestIDHeader},
			ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
			Exempt: []string{"/livez", "/readyz", ipnPath},
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument("dinein-api", m),
		httpmiddleware.LogRequests(),
	)
	r.Get("/livez", healthSvc.ServeLive)
	r.Get("/readyz", healthSvc.ServeReady)
	h.Routes(r)
	return r, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newPublisher connects to RabbitMQ when configured and discards events
// otherwise.
func newPublisher(cfg AMQPConfig, lg *zap.Logger) (notify.Publisher, io.Closer, error) {
	if cfg.URL == "" {
		lg.Info("AMQP URL not set, order events are discarded")
		return notify.Nop{}, nopCloser{}, nil
	}
	p, err := rabbitmq.Dial(rabbitmq.Config{
		URL:              cfg.URL,
		Exchange:         cfg.Exchange,
		PublishTimeout:   cfg.PublishTimeout,
		FailureThreshold: cfg.FailureThreshold,
		OpenTimeout:      cfg.OpenTimeout,
	}, lg.Named("rabbitmq"))
	if err != nil {
		return nil, nil, err
	}
	lg.Info("Publishing order events", zap.String("exchange", cfg.Exchange))
	return p, p, nil
}

// newHandler builds repositories and domain services on top of the pool.
func newHandler(pool *pgxpool.Pool, m httpmiddleware.Telemetry, cfg *Config, events notify.Publisher) (*handler.Handler, error) {
	transactor := postgres.NewTransactor(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	tableRepo := postgres.NewTableRepository(pool)
	paymentRepo := postgres.NewPaymentRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	tax, err := pricing.FromPercent(decimal.RequireFromString(cfg.Tax.Percent))
	if err != nil {
		return nil, errors.Wrap(err, "tax policy")
	}

	orderService, err := order.NewService(transactor, orderRepo, tableRepo,
		order.WithNumberGenerator(order.NewNumberGenerator(order.WithNumberLocation(cfg.Location()))),
		order.WithTaxPolicy(tax),
		order.WithPublisher(events),
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}

	deps := handler.Deps{
		Orders: orderService,
		Auth:   auth.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper)),
	}

	if !cfg.VNPay.Enabled() {
		deps.Payments = payment.NewService(transactor.Payments(), paymentRepo, nil)
		return handler.New(deps), nil
	}

	signer, err := vnpay.NewSigner(vnpay.Config{
		TmnCode:      cfg.VNPay.TmnCode,
		HashSecret:   cfg.VNPay.HashSecret,
		PaymentURL:   cfg.VNPay.PaymentURL,
		ReturnURL:    cfg.VNPay.ReturnURL,
		Locale:       cfg.VNPay.Locale,
		ExchangeRate: decimal.RequireFromString(cfg.VNPay.ExchangeRate),
		Location:     cfg.Location(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create vnpay signer")
	}
	reconciler, err := payment.NewReconciler(transactor.Payments(), signer,
		payment.WithEvents(events),
		payment.WithTelemetry(m.TracerProvider(), m.MeterProvider()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create reconciler")
	}

	deps.Payments = payment.NewService(transactor.Payments(), paymentRepo, signer)
	deps.Verifier = signer
	deps.Reconciler = reconciler
	return handler.New(deps), nil
}
