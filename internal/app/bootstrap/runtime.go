package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/escrow-milestone-ledger/internal/adapters/cache"
	eventadapter "github.com/viralforge/escrow-milestone-ledger/internal/adapters/events"
	grpcadapter "github.com/viralforge/escrow-milestone-ledger/internal/adapters/grpc"
	httpadapter "github.com/viralforge/escrow-milestone-ledger/internal/adapters/http"
	"github.com/viralforge/escrow-milestone-ledger/internal/adapters/locks"
	"github.com/viralforge/escrow-milestone-ledger/internal/adapters/metrics"
	"github.com/viralforge/escrow-milestone-ledger/internal/adapters/payments"
	"github.com/viralforge/escrow-milestone-ledger/internal/adapters/postgres"
	"github.com/viralforge/escrow-milestone-ledger/internal/adapters/security"
	"github.com/viralforge/escrow-milestone-ledger/internal/application"
	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	outbox     *eventadapter.OutboxWorker
	sweeper    *eventadapter.SettlementSweepWorker
	cleanupFn  func(context.Context)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := postgres.RunMigrations(ctx, db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	var closers []io.Closer
	closers = append(closers, sqlDB)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}

	var (
		redisClient *redis.Client
		locker      ports.AccountLocker
		queue       ports.OperatorQueue
	)
	if cfg.RedisURL != "" {
		redisClient, err = cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, redisClient)
		locker = cache.NewRedisAccountLocker(redisClient, cfg.LockTTL, cfg.LockMaxWait)
		queue = cache.NewRedisOperatorQueue(redisClient)
	} else {
		logger.WarnContext(ctx, "redis not configured, account locks and operator queue are process-local",
			"module", "bootstrap",
			"layer", "bootstrap",
			"operation", "new_runtime",
			"outcome", "degraded",
		)
		locker = locks.NewLocalAccountLocker()
		queue = cache.NewMemoryOperatorQueue()
	}

	verifier, err := security.NewJWTVerifier(security.JWTVerifierConfig{
		HMACSecret:   cfg.JWTSecret,
		PublicKeyPEM: cfg.JWTPublicKeyPEM,
		Issuer:       cfg.JWTIssuer,
		Audience:     cfg.JWTAudience,
	})
	if err != nil {
		closeAll()
		return nil, err
	}

	var processor ports.PaymentProcessor
	switch cfg.PaymentMode {
	case "http":
		processor = payments.NewHTTPProcessor(payments.HTTPProcessorConfig{BaseURL: cfg.PaymentURL, APIKey: cfg.PaymentAPIKey})
	default:
		logger.WarnContext(ctx, "using sandbox payment processor",
			"module", "bootstrap",
			"layer", "bootstrap",
			"operation", "new_runtime",
			"outcome", "degraded",
		)
		processor = payments.NewSandboxProcessor()
	}

	collector := metrics.NewSettlementCollector("escrow")
	store := postgres.NewLedgerStore(db)
	service := application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:    cfg.ServiceID,
			IdempotencyTTL: cfg.IdempotencyTTL,
			Retry: application.RetryPolicy{
				MaxAttempts:    cfg.TransferMaxAttempts,
				InitialBackoff: cfg.TransferInitialBackoff,
				MaxBackoff:     cfg.TransferMaxBackoff,
				AttemptTimeout: cfg.TransferAttemptTimeout,
			},
			Fees:                 domain.FeeSchedule{PlatformBps: cfg.PlatformFeeBps, ProcessingBps: cfg.ProcessingFeeBps},
			StaleSettlementAfter: cfg.StaleSettlementAfter,
		},
		Logger:      logger,
		Store:       store,
		Idempotency: postgres.NewIdempotencyRepository(db),
		Locker:      locker,
		Processor:   processor,
		Queue:       queue,
		Metrics:     collector,
	})

	handler := httpadapter.NewHandler(service, logger)
	router := httpadapter.NewRouter(handler, httpadapter.RouterOptions{
		Verifier: verifier,
		Metrics:  collector.Handler(),
		Logger:   logger,
		Ready: func(r *http.Request) error {
			if err := sqlDB.PingContext(r.Context()); err != nil {
				return fmt.Errorf("database unavailable")
			}
			if redisClient != nil {
				if err := redisClient.Ping(r.Context()).Err(); err != nil {
					return fmt.Errorf("redis unavailable")
				}
			}
			return nil
		},
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(grpcadapter.AuthInterceptor(verifier)))
	grpcadapter.Register(grpcServer, grpcadapter.NewEscrowInternalServer(service))

	publisher := ports.EventPublisher(eventadapter.NewLoggingPublisher(logger))
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, pubErr := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, eventadapter.KafkaTopics{
			Default: cfg.KafkaTopicEvents,
			Ops:     cfg.KafkaTopicOps,
		})
		if pubErr != nil {
			logger.WarnContext(ctx, "kafka publisher disabled, using logging publisher", "error", pubErr)
		} else {
			publisher = kafkaPublisher
			closers = append(closers, kafkaPublisher)
		}
	}
	outbox := eventadapter.NewOutboxWorker(logger, postgres.NewOutboxRepository(db), publisher, cfg.OutboxPollInterval, cfg.OutboxBatchSize)

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		outbox:     outbox,
		sweeper:    eventadapter.NewSettlementSweepWorker(logger, service, cfg.SettlementSweepInterval),
		cleanupFn: func(context.Context) {
			closeAll()
		},
	}, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.GRPCPort))
	if err != nil {
		r.cleanupFn(context.Background())
		return fmt.Errorf("grpc listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = r.httpServer.Shutdown(shutdownCtx)
		r.grpcServer.GracefulStop()
		return nil
	})

	err = g.Wait()
	if err != nil {
		r.logger.ErrorContext(ctx, "runtime failure",
			"module", "bootstrap",
			"layer", "bootstrap",
			"operation", "run_api",
			"outcome", "failure",
			"error", err,
		)
	}
	r.cleanupFn(context.Background())
	return err
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.outbox.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := r.sweeper.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	err := g.Wait()
	r.cleanupFn(context.Background())
	return err
}
