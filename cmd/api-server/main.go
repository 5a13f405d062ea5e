// Package main implements the Upfleet API server
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/upfleet/upfleet/internal/apiserver"
	"github.com/upfleet/upfleet/internal/config"
	"github.com/upfleet/upfleet/internal/events"
	"github.com/upfleet/upfleet/internal/interfaces"
	"github.com/upfleet/upfleet/internal/locking"
	"github.com/upfleet/upfleet/internal/logging"
	"github.com/upfleet/upfleet/internal/metrics"
	"github.com/upfleet/upfleet/internal/report"
	"github.com/upfleet/upfleet/internal/runner"
	"github.com/upfleet/upfleet/internal/workbench"

	_ "github.com/upfleet/upfleet/docs" // swagger docs registration
)

// Version can be set at build time
var Version = "dev"

var logger = logging.NewLogger("api-server")

const (
	queueCapacity = 100
	workerCount   = 4
)

// @title           Upfleet API
// @version         1.0
// @description     REST API for fleet lifecycle orchestration of managed workbench instances
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.url    https://github.com/upfleet/upfleet/issues
// @contact.email  support@upfleet.io

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api/v1

// @schemes http https

// @externalDocs.description  OpenAPI
// @externalDocs.url          https://swagger.io/resources/open-api/
func main() {
	if err := run(); err != nil {
		logger.Errorf("Fatal error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	var port int
	var debug bool
	flag.IntVar(&port, "port", 8080, "Port to listen on")
	flag.BoolVar(&debug, "debug", false, "Enable debug mode")
	flag.Parse()

	// Set the version in config package
	config.AppVersion = Version

	cfg, err := createServerConfig(port, debug)
	if err != nil {
		return err
	}

	logConfiguration(cfg)

	queue, tracker, workerPool, collector, runDefaults, controlPlane, err := initializeComponents(cfg)
	if err != nil {
		return err
	}

	workerPool.Start()

	server, err := apiserver.NewAPIServer(cfg, apiserver.Components{
		Queue:        queue,
		Tracker:      tracker,
		WorkerPool:   workerPool,
		ControlPlane: controlPlane,
		Collector:    collector,
		RunDefaults:  runDefaults,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return runServer(server, queue)
}

func createServerConfig(port int, debug bool) (*config.ServerConfig, error) {
	cfg := config.NewServerConfig()
	cfg.Port = port
	cfg.Debug = debug

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.ExpandPaths(); err != nil {
		return nil, fmt.Errorf("failed to expand paths: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func logConfiguration(cfg *config.ServerConfig) {
	logger.Infof("Starting Upfleet API server v%s", Version)
	logger.Infof("  Port: %d", cfg.Port)
	logger.Infof("  Debug: %t", cfg.Debug)
	logger.Infof("  Queue Type: %s", cfg.Queue.Type)
	logger.Infof("  Report Store: %s", cfg.ReportStore.Type)
	logger.Infof("  Lock Type: %s", cfg.Locking.Type)

	if err := cfg.WriteConfigInfo(); err != nil {
		logger.Warnf("Failed to write config info: %v", err)
	}
}

//nolint:funlen // Component assembly switches on several config axes
func initializeComponents(cfg *config.ServerConfig) (
	interfaces.RunQueue, interfaces.RunTracker, interfaces.WorkerPool,
	*metrics.Collector, *config.RunConfig, *workbench.Client, error,
) {
	collector := metrics.NewCollector()

	runDefaults := config.NewRunConfig()
	if err := runDefaults.LoadFromEnv(); err != nil {
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("failed to load run defaults: %w", err)
	}

	controlPlane := workbench.NewClient(
		runDefaults.Endpoint,
		workbench.StaticTokenSource(runDefaults.APIToken),
		workbench.WithMetrics(collector),
	)

	locks, err := createLockProvider(cfg)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("failed to create lock provider: %w", err)
	}

	store, err := createReportStore(cfg)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("failed to create report store: %w", err)
	}

	executor := runner.NewExecutor(locks,
		runner.WithReportStore(store),
		runner.WithCollector(collector),
	)

	eventBus := events.NewEventBus()
	tracker := runner.NewTracker()
	events.ConnectTrackerToEventBus(eventBus, tracker)

	if cfg.Queue.Type == "distributed" {
		queue, err := runner.NewDistributedQueue(cfg.Queue.RedisURL)
		if err != nil {
			return nil, nil, nil, nil, nil, nil, fmt.Errorf("failed to create distributed queue: %w", err)
		}
		pool, err := runner.NewDistributedWorkerPool(runner.DistributedWorkerPoolConfig{
			RedisURL:  cfg.Queue.RedisURL,
			Tracker:   tracker,
			Executor:  executor,
			EventBus:  eventBus,
			Collector: collector,
		})
		if err != nil {
			return nil, nil, nil, nil, nil, nil, fmt.Errorf("failed to create distributed worker pool: %w", err)
		}
		return queue, tracker, pool, collector, runDefaults, controlPlane, nil
	}

	queue := runner.NewEmbeddedQueue(queueCapacity)
	pool, err := runner.NewEmbeddedWorkerPool(runner.EmbeddedWorkerPoolConfig{
		Workers:   workerCount,
		Queue:     queue,
		Tracker:   tracker,
		Executor:  executor,
		EventBus:  eventBus,
		Collector: collector,
	})
	if err != nil {
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	return queue, tracker, pool, collector, runDefaults, controlPlane, nil
}

func createLockProvider(cfg *config.ServerConfig) (locking.Provider, error) {
	if cfg.Locking.Type == "dynamodb" {
		return locking.NewDynamoDBProvider(locking.DynamoDBConfig{
			TableName: cfg.Locking.Table,
			Region:    cfg.Locking.Region,
			Endpoint:  cfg.Locking.Endpoint,
			TTL:       time.Duration(cfg.Locking.TTLSeconds) * time.Second,
		})
	}
	return locking.NewLocalProvider(), nil
}

func createReportStore(cfg *config.ServerConfig) (report.Store, error) {
	if cfg.ReportStore.Type == "s3" {
		return report.NewS3Store(report.S3StoreConfig{
			Bucket:   cfg.ReportStore.S3.Bucket,
			Region:   cfg.ReportStore.S3.Region,
			Prefix:   cfg.ReportStore.S3.Prefix,
			Endpoint: cfg.ReportStore.S3.Endpoint,
		})
	}
	return report.NewFileStore(cfg.ReportStore.File.Dir)
}

func runServer(server *apiserver.APIServer, queue interfaces.RunQueue) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		logger.Infof("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		if closer, ok := queue.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				logger.Warnf("Failed to close queue: %v", err)
			}
		}
		return nil
	case err := <-errChan:
		return err
	}
}
