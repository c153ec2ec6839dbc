// Package main is the entry point for the ContractDesk API server.
//
// It loads the configuration, opens the database pool, wires the plan
// service with its catalog, event publisher and metrics, and serves the
// chi router built by the core chassis.
//
// Locally (and in containers) it runs as a standard HTTP server on the
// configured port. Inside AWS Lambda it serves API Gateway HTTP API events
// through the adapter in lambda.go.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"contractdesk/internal/api/handlers"
	"contractdesk/internal/catalog"
	"contractdesk/internal/config"
	"contractdesk/internal/core"
	"contractdesk/internal/db"
	"contractdesk/internal/plans"
	"contractdesk/internal/queue"
	"contractdesk/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(config.NewFileSecretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("contractdesk API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		pool.Close()
		return fmt.Errorf("loading AWS config: %w", err)
	}

	deps := dependencies{
		DB:        pool,
		Pinger:    pool,
		Catalog:   db.NewCatalogRepository(pool),
		Publisher: queue.LogPublisher{Logger: logger},
	}
	if cfg.CatalogSource == "static" {
		logger.Warn("serving the built-in catalog")
		deps.Catalog = catalog.Default()
	}
	if cfg.AWS.PlanEventsQueue != "" {
		sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		deps.Publisher = queue.NewPlanEventPublisher(sqsClient, cfg.AWS, logger)
	} else {
		logger.Warn("SQS_PLAN_EVENTS not set; plan events are logged only")
	}
	var metricsDone chan struct{}
	if cfg.Observability.EnableMetrics {
		cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		deps.Metrics = telemetry.NewCloudWatchMetrics(cwClient, cfg.Observability.MetricNamespace, logger)
		metricsDone = make(chan struct{})
		go func() {
			defer close(metricsDone)
			deps.Metrics.Run(ctx, cfg.Observability.MetricFlushInterval)
		}()
	}

	srv, err := newServer(cfg, logger, deps)
	if err != nil {
		pool.Close()
		return err
	}
	srv.OnShutdown(func() error {
		stop()
		if metricsDone != nil {
			<-metricsDone
		}
		pool.Close()
		return nil
	})

	if isLambdaEnvironment() {
		logger.Info("running in Lambda mode")
		lambda.Start(lambdaHandler(srv.Handler()))
		return nil
	}

	return runHTTPServer(srv, cfg, logger)
}

// dependencies are the external resources newServer wires into the API.
// Metrics may be nil, in which case nothing is recorded.
type dependencies struct {
	DB        db.DBTX
	Pinger    core.Pinger
	Catalog   plans.Catalog
	Publisher plans.EventPublisher
	Metrics   *telemetry.CloudWatchMetrics
}

// newServer builds the core chassis and registers the domain routes.
func newServer(cfg *config.Config, logger *slog.Logger, deps dependencies) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	if deps.DB != nil {
		srv.RateLimitStore = db.NewRateLimitRepository(deps.DB)
		srv.IdempotencyStore = db.NewIdempotencyRepository(deps.DB, cfg.Server.IdempotencyTTL)
	}
	if deps.Pinger != nil {
		srv.HealthProbes = append(srv.HealthProbes, core.PingProbe{Label: "database", Target: deps.Pinger})
	}

	var mutationMetrics plans.MutationMetrics
	if deps.Metrics != nil {
		srv.Metrics = deps.Metrics
		mutationMetrics = deps.Metrics
	}

	svc := plans.NewService(
		db.NewDraftRepository(deps.DB),
		deps.Catalog,
		deps.Publisher,
		mutationMetrics,
		logger,
		nil,
	)

	planHandler := handlers.NewPlanHandler(svc, srv.Validator, logger)
	catalogHandler := handlers.NewCatalogHandler(deps.Catalog, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		planHandler.RegisterRoutes,
		catalogHandler.RegisterRoutes,
	)

	srv.MountRoutes()
	return srv, nil
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Stops the metrics loop (final flush) and closes the pool.
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
