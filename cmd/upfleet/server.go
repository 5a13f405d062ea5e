package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
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

// Static errors for err113 compliance
var (
	ErrServerFailedToStart = errors.New("server failed to start, check logs")
	ErrServerNotRunning    = errors.New("server is not running")
)

const (
	embeddedQueueCapacity = 100
	embeddedWorkerCount   = 4
)

// serverComponents holds everything the API server is assembled from plus
// the pieces that need explicit shutdown
type serverComponents struct {
	queue        interfaces.RunQueue
	tracker      interfaces.RunTracker
	workerPool   interfaces.WorkerPool
	collector    *metrics.Collector
	runDefaults  *config.RunConfig
	controlPlane *workbench.Client
}

func runServerForeground(port int, debug bool) error { //nolint:funlen // Server initialization function with comprehensive setup
	// Set the version in config package
	config.AppVersion = version

	logger := logging.NewLogger("server")

	cfg := config.NewServerConfig()
	cfg.Port = port
	cfg.Debug = debug

	if err := cfg.LoadFromEnv(); err != nil {
		return fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.ExpandPaths(); err != nil {
		return fmt.Errorf("failed to expand paths: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Log configuration on startup (without sensitive paths)
	logger.Infof("Starting Upfleet server v%s", version)
	logger.Infof("Configuration:")
	logger.Infof("  Port: %d", cfg.Port)
	logger.Infof("  Debug: %t", cfg.Debug)
	logger.Infof("  Queue Type: %s", cfg.Queue.Type)
	logger.Infof("  Report Store: %s", cfg.ReportStore.Type)
	logger.Infof("  Lock Type: %s", cfg.Locking.Type)

	if cfg.Debug {
		logger.Debugf("Report Directory: %s", cfg.ReportStore.File.Dir)
		logger.Debugf("Log File: %s", cfg.GetLogPath())
	}

	// Write config info file for debugging
	if err := cfg.WriteConfigInfo(); err != nil {
		logger.Warnf("Failed to write config info: %v", err)
	}

	components, err := buildServerComponents(cfg)
	if err != nil {
		return err
	}

	components.workerPool.Start()

	server, err := apiserver.NewAPIServer(cfg, apiserver.Components{
		Queue:        components.queue,
		Tracker:      components.tracker,
		WorkerPool:   components.workerPool,
		ControlPlane: components.controlPlane,
		Collector:    components.collector,
		RunDefaults:  components.runDefaults,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Handle graceful shutdown
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
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		if closer, ok := components.queue.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				logger.Warnf("Failed to close queue: %v", err)
			}
		}
		return nil
	case err := <-errChan:
		return err
	}
}

// buildServerComponents assembles the queue, tracker, worker pool and control
// plane client according to the server configuration
func buildServerComponents(cfg *config.ServerConfig) (*serverComponents, error) { //nolint:funlen // Component assembly switches on several config axes
	collector := metrics.NewCollector()

	// Run defaults come from the environment; the HTTP front door layers
	// per-request overrides on top
	runDefaults := config.NewRunConfig()
	if err := runDefaults.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load run defaults: %w", err)
	}

	controlPlane := workbench.NewClient(
		runDefaults.Endpoint,
		workbench.StaticTokenSource(runDefaults.APIToken),
		workbench.WithMetrics(collector),
	)

	locks, err := createLockProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create lock provider: %w", err)
	}

	store, err := createReportStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create report store: %w", err)
	}

	executor := runner.NewExecutor(locks,
		runner.WithReportStore(store),
		runner.WithCollector(collector),
	)

	eventBus := events.NewEventBus()
	tracker := runner.NewTracker()
	events.ConnectTrackerToEventBus(eventBus, tracker)

	components := &serverComponents{
		tracker:      tracker,
		collector:    collector,
		runDefaults:  runDefaults,
		controlPlane: controlPlane,
	}

	switch cfg.Queue.Type {
	case "distributed":
		queue, err := runner.NewDistributedQueue(cfg.Queue.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create distributed queue: %w", err)
		}
		pool, err := runner.NewDistributedWorkerPool(runner.DistributedWorkerPoolConfig{
			RedisURL:  cfg.Queue.RedisURL,
			Tracker:   tracker,
			Executor:  executor,
			EventBus:  eventBus,
			Collector: collector,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create distributed worker pool: %w", err)
		}
		components.queue = queue
		components.workerPool = pool
	default:
		queue := runner.NewEmbeddedQueue(embeddedQueueCapacity)
		pool, err := runner.NewEmbeddedWorkerPool(runner.EmbeddedWorkerPoolConfig{
			Workers:   embeddedWorkerCount,
			Queue:     queue,
			Tracker:   tracker,
			Executor:  executor,
			EventBus:  eventBus,
			Collector: collector,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create worker pool: %w", err)
		}
		components.queue = queue
		components.workerPool = pool
	}

	return components, nil
}

func createLockProvider(cfg *config.ServerConfig) (locking.Provider, error) {
	switch cfg.Locking.Type {
	case "dynamodb":
		return locking.NewDynamoDBProvider(locking.DynamoDBConfig{
			TableName: cfg.Locking.Table,
			Region:    cfg.Locking.Region,
			Endpoint:  cfg.Locking.Endpoint,
			TTL:       time.Duration(cfg.Locking.TTLSeconds) * time.Second,
		})
	default:
		return locking.NewLocalProvider(), nil
	}
}

func createReportStore(cfg *config.ServerConfig) (report.Store, error) {
	switch cfg.ReportStore.Type {
	case "s3":
		return report.NewS3Store(report.S3StoreConfig{
			Bucket:   cfg.ReportStore.S3.Bucket,
			Region:   cfg.ReportStore.S3.Region,
			Prefix:   cfg.ReportStore.S3.Prefix,
			Endpoint: cfg.ReportStore.S3.Endpoint,
		})
	default:
		return report.NewFileStore(cfg.ReportStore.File.Dir)
	}
}

func runServerDaemon(port int, debug bool) error { //nolint:funlen // Daemon setup function with comprehensive initialization
	logger := logging.NewLogger("server-daemon")

	cfg := config.NewServerConfig()
	cfg.Port = port
	cfg.Debug = debug
	cfg.DaemonMode = true
	if err := cfg.LoadFromEnv(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Note: We don't pre-check if server is running here to avoid TOCTOU race.
	// The savePID function will atomically check and create the PID file.

	if err := cfg.ExpandPaths(); err != nil {
		return fmt.Errorf("failed to expand paths: %w", err)
	}

	// Create log directory if specified with secure permissions
	logPath := cfg.GetLogPath()
	if logPath != "" {
		logDir := filepath.Dir(logPath)
		if err := os.MkdirAll(logDir, 0o700); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) // #nosec G304 - logPath is from config
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	// Fork a child process to run the server
	executable, err := os.Executable()
	if err != nil {
		_ = logFile.Close()
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Start the server process using ourselves
	args := []string{"server", "start", "--port", strconv.Itoa(port)}
	if debug {
		args = append(args, "--debug")
	}
	cmd := exec.Command(executable, args...) // #nosec G204 - executable is self (os.Executable), args are controlled
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	setupServerProcess(cmd)

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return fmt.Errorf("failed to start server: %w", err)
	}
	if err := logFile.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}

	if err := savePID(cmd.Process.Pid, cfg.PIDFile); err != nil {
		if err := cmd.Process.Kill(); err != nil {
			// Process kill failed, but continuing - ignore error
			_ = err
		}
		return fmt.Errorf("failed to save PID: %w", err)
	}

	// Wait a moment to check if server started successfully
	time.Sleep(2 * time.Second)

	if !isServerRunning(cfg.PIDFile) {
		return fmt.Errorf("%w at: %s", ErrServerFailedToStart, logPath)
	}

	logger.Infof("Server started successfully in background")
	logger.Infof("Log file: %s", logPath)
	logger.Infof("PID file: %s", cfg.PIDFile)

	return nil
}

func stopServer(pidFile string) error {
	pid, err := readPIDFromFile(pidFile)
	if err != nil {
		return ErrServerNotRunning
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	// Send SIGTERM for graceful shutdown
	if err := process.Signal(syscall.SIGTERM); err != nil {
		// Process might already be dead
		removePIDFile(pidFile)
		return ErrServerNotRunning
	}

	// Wait for process to exit
	for range 10 {
		if !isProcessRunning(pid) {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	// Force kill if still running
	if isProcessRunning(pid) {
		if err := process.Kill(); err != nil {
			// Force kill failed, but continuing - ignore error
			_ = err
		}
	}

	removePIDFile(pidFile)
	return nil
}

func checkServerStatus(pidFile string, port int) error {
	logger := logging.NewLogger("server-status")

	if !isServerRunning(pidFile) {
		logger.Infof("Server is not running")
		return nil
	}

	pid, _ := readPIDFromFile(pidFile)
	logger.Infof("Server is running (PID %d)", pid)

	// Try to check health endpoint
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("http://localhost:%d/api/v1/system/health", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil
	}

	client := &http.Client{
		Timeout: 5 * time.Second,
	}
	resp, err := client.Do(req)
	if err != nil {
		logger.Warnf("Health endpoint not reachable on port %d: %v", port, err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }() // Ignore error - response cleanup

	logger.Infof("Health endpoint responded with status %d", resp.StatusCode)
	return nil
}

func isServerRunning(pidFile string) bool {
	pid, err := readPIDFromFile(pidFile)
	if err != nil {
		return false
	}
	return isProcessRunning(pid)
}

func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

func savePID(pid int, pidFile string) error {
	// Ensure parent directory exists with secure permissions
	pidDir := filepath.Dir(pidFile)
	if err := os.MkdirAll(pidDir, 0o700); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}

	// Use O_EXCL to atomically check and create - fails if file exists
	file, err := os.OpenFile(pidFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) // #nosec G304 - pidFile path is from config
	if err != nil {
		if os.IsExist(err) {
			// File already exists, check if process is still running
			existingPID, readErr := readPIDFromFile(pidFile)
			if readErr == nil && isProcessRunning(existingPID) {
				return fmt.Errorf("server already running with PID %d (pid file: %s)", existingPID, pidFile)
			}
			// Stale PID file, remove and retry once
			_ = os.Remove(pidFile)                                                     // Ignore error - cleanup operation
			file, err = os.OpenFile(pidFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) // #nosec G304 - pidFile path is from config
			if err != nil {
				return fmt.Errorf("failed to create PID file %s after removing stale file: %w", pidFile, err)
			}
		} else {
			return fmt.Errorf("failed to create PID file %s: %w", pidFile, err)
		}
	}
	defer func() { _ = file.Close() }() // Ignore error - file cleanup in defer

	_, err = fmt.Fprintf(file, "%d\n", pid)
	if err != nil {
		// Clean up file on write error (defer will handle close)
		_ = os.Remove(pidFile) // Ignore error - cleanup on failure
		return fmt.Errorf("failed to write PID: %w", err)
	}

	return nil
}

func readPIDFromFile(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile) // #nosec G304 - pidFile path is from config
	if err != nil {
		return 0, fmt.Errorf("failed to read PID file %s: %w", pidFile, err)
	}
	// Trim whitespace including newlines
	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("failed to parse PID from file %s (content: %q): %w", pidFile, pidStr, err)
	}
	return pid, nil
}

func removePIDFile(pidFile string) {
	_ = os.Remove(pidFile) // Ignore error - cleanup operation
}
