package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	reportStoreTypeFile = "file"
	reportStoreTypeS3   = "s3"

	queueTypeEmbedded    = "embedded"
	queueTypeDistributed = "distributed"
)

// AppVersion is the application version, can be set at build time or runtime
var AppVersion = "dev"

// ServerConfig holds all configuration for the upfleet API server
type ServerConfig struct {
	// Server settings
	Port  int  `json:"port" env:"UPFLEET_PORT" flag:"port" default:"8080" desc:"Server port"`
	Debug bool `json:"debug" env:"UPFLEET_DEBUG" flag:"debug" default:"false" desc:"Enable debug mode"`

	// Log output
	LogFile string `json:"log_file" env:"UPFLEET_LOG_FILE" flag:"log-file" default:"" desc:"Log file path"` // empty = stdout

	// Report store configuration
	ReportStore ReportStoreConfig `json:"report_store"`

	// Run lock configuration
	Locking LockingConfig `json:"locking"`

	// Queue configuration
	Queue QueueConfig `json:"queue"`

	// Daemon settings
	DaemonMode bool   `json:"daemon_mode" flag:"daemon" default:"false" desc:"Run in daemon mode"`
	PIDFile    string `json:"pid_file" env:"UPFLEET_PID_FILE" flag:"pid-file" default:"" desc:"PID file path"`
}

// ReportStoreConfig holds report store specific configuration
type ReportStoreConfig struct {
	Type string            `json:"type" env:"UPFLEET_REPORT_STORE" flag:"report-store" default:"file" desc:"Report store type (file, s3)"`
	File FileReportConfig  `json:"file"`
	S3   S3ReportConfig    `json:"s3"`
}

// FileReportConfig holds file-based report store configuration
type FileReportConfig struct {
	Dir string `json:"dir" env:"UPFLEET_REPORT_DIR" flag:"report-dir" default:"~/.upfleet/reports" desc:"Report directory path"`
}

// S3ReportConfig holds S3-based report store configuration
type S3ReportConfig struct {
	Bucket   string `json:"bucket" env:"UPFLEET_S3_BUCKET" desc:"S3 bucket name for report storage"`
	Region   string `json:"region" env:"UPFLEET_S3_REGION" desc:"AWS region for the report bucket"`
	Prefix   string `json:"prefix" env:"UPFLEET_S3_PREFIX" default:"reports/" desc:"S3 key prefix for report objects"`
	Endpoint string `json:"endpoint" env:"UPFLEET_S3_ENDPOINT" desc:"Custom S3 endpoint (for LocalStack)"`
}

// LockingConfig holds fleet run lock configuration
type LockingConfig struct {
	Type       string `json:"type" env:"UPFLEET_LOCK_TYPE" default:"local" desc:"Run lock type (local, dynamodb)"`
	Table      string `json:"table" env:"UPFLEET_DYNAMODB_TABLE" desc:"DynamoDB table name for run locks"`
	Region     string `json:"region" env:"UPFLEET_DYNAMODB_REGION" desc:"AWS region for the lock table"`
	Endpoint   string `json:"endpoint" env:"UPFLEET_DYNAMODB_ENDPOINT" desc:"Custom DynamoDB endpoint (for LocalStack)"`
	TTLSeconds int    `json:"ttl_seconds" env:"UPFLEET_LOCK_TTL_SECONDS" default:"900" desc:"Lock TTL in seconds"`
}

// QueueConfig holds run queue system configuration
type QueueConfig struct {
	Type     string `json:"type" env:"UPFLEET_QUEUE_TYPE" flag:"queue-type" default:"embedded" desc:"Queue type (embedded, distributed)"`
	RedisURL string `json:"redis_url" env:"UPFLEET_REDIS_URL" flag:"redis-url" default:"" desc:"Redis URL for distributed mode"`
}

// NewServerConfig creates a new server configuration with defaults
func NewServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:    8080,
		Debug:   false,
		LogFile: "",
		ReportStore: ReportStoreConfig{
			Type: reportStoreTypeFile,
			File: FileReportConfig{
				Dir: "~/.upfleet/reports",
			},
			S3: S3ReportConfig{
				Prefix: "reports/",
			},
		},
		Locking: LockingConfig{
			Type:       "local",
			TTLSeconds: 900,
		},
		Queue: QueueConfig{
			Type:     queueTypeEmbedded,
			RedisURL: "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *ServerConfig) LoadFromEnv() error { //nolint:gocognit,gocyclo // Configuration loading function with many environment variables
	// Port
	if port := os.Getenv("UPFLEET_PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err != nil {
			return fmt.Errorf("invalid UPFLEET_PORT value: %s", port)
		}
		c.Port = p
	}

	// Debug
	if debug := os.Getenv("UPFLEET_DEBUG"); debug != "" {
		switch strings.ToLower(debug) {
		case "true", "1", "yes", "on":
			c.Debug = true
		case "false", "0", "no", "off":
			c.Debug = false
		default:
			return fmt.Errorf("invalid UPFLEET_DEBUG value: %s", debug)
		}
	}

	if logFile := os.Getenv("UPFLEET_LOG_FILE"); logFile != "" {
		c.LogFile = logFile
	}

	// Report store
	if reportStore := os.Getenv("UPFLEET_REPORT_STORE"); reportStore != "" {
		c.ReportStore.Type = reportStore
	}
	if dir := os.Getenv("UPFLEET_REPORT_DIR"); dir != "" {
		c.ReportStore.File.Dir = dir
	}
	if bucket := os.Getenv("UPFLEET_S3_BUCKET"); bucket != "" {
		c.ReportStore.S3.Bucket = bucket
	}
	if region := os.Getenv("UPFLEET_S3_REGION"); region != "" {
		c.ReportStore.S3.Region = region
	}
	if prefix := os.Getenv("UPFLEET_S3_PREFIX"); prefix != "" {
		c.ReportStore.S3.Prefix = prefix
	}
	if endpoint := os.Getenv("UPFLEET_S3_ENDPOINT"); endpoint != "" {
		c.ReportStore.S3.Endpoint = endpoint
	}

	// Locking
	if lockType := os.Getenv("UPFLEET_LOCK_TYPE"); lockType != "" {
		c.Locking.Type = lockType
	}
	if table := os.Getenv("UPFLEET_DYNAMODB_TABLE"); table != "" {
		c.Locking.Table = table
	}
	if region := os.Getenv("UPFLEET_DYNAMODB_REGION"); region != "" {
		c.Locking.Region = region
	}
	if endpoint := os.Getenv("UPFLEET_DYNAMODB_ENDPOINT"); endpoint != "" {
		c.Locking.Endpoint = endpoint
	}
	if ttl := os.Getenv("UPFLEET_LOCK_TTL_SECONDS"); ttl != "" {
		if ttlInt, err := strconv.Atoi(ttl); err == nil {
			c.Locking.TTLSeconds = ttlInt
		}
	}

	// Queue
	if queueType := os.Getenv("UPFLEET_QUEUE_TYPE"); queueType != "" {
		c.Queue.Type = queueType
	}
	if redisURL := os.Getenv("UPFLEET_REDIS_URL"); redisURL != "" {
		c.Queue.RedisURL = redisURL
	}

	// PID file
	if pidFile := os.Getenv("UPFLEET_PID_FILE"); pidFile != "" {
		c.PIDFile = pidFile
	}

	return nil
}

// ExpandPaths expands all paths in the configuration (~ to home directory)
func (c *ServerConfig) ExpandPaths() error {
	var err error

	if c.LogFile != "" {
		c.LogFile, err = expandPath(c.LogFile)
		if err != nil {
			return fmt.Errorf("failed to expand log_file: %w", err)
		}
	}

	c.ReportStore.File.Dir, err = expandPath(c.ReportStore.File.Dir)
	if err != nil {
		return fmt.Errorf("failed to expand report_dir: %w", err)
	}

	if c.PIDFile == "" {
		// Default PID file location
		c.PIDFile = filepath.Join(os.TempDir(), "upfleet-server.pid")
	} else {
		c.PIDFile, err = expandPath(c.PIDFile)
		if err != nil {
			return fmt.Errorf("failed to expand pid_file: %w", err)
		}
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	switch c.ReportStore.Type {
	case reportStoreTypeFile, reportStoreTypeS3:
		// Valid types
	default:
		return fmt.Errorf("invalid report store type: %s", c.ReportStore.Type)
	}

	if c.ReportStore.Type == reportStoreTypeS3 {
		if c.ReportStore.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required when using the S3 report store")
		}
		if c.ReportStore.S3.Region == "" {
			return fmt.Errorf("S3 region is required when using the S3 report store")
		}
		if c.ReportStore.S3.Prefix == "" {
			c.ReportStore.S3.Prefix = "reports/"
		}
	}

	switch c.Locking.Type {
	case "local":
		// Valid
	case "dynamodb":
		if c.Locking.Table == "" {
			return fmt.Errorf("DynamoDB table is required when using DynamoDB run locking")
		}
		if c.Locking.Region == "" {
			return fmt.Errorf("DynamoDB region is required when using DynamoDB run locking")
		}
		if c.Locking.TTLSeconds <= 0 {
			return fmt.Errorf("lock TTL seconds must be positive")
		}
	default:
		return fmt.Errorf("invalid lock type: %s", c.Locking.Type)
	}

	switch c.Queue.Type {
	case queueTypeEmbedded:
		// Valid
	case queueTypeDistributed:
		if c.Queue.RedisURL == "" {
			return fmt.Errorf("redis URL is required for distributed queue mode")
		}
	default:
		return fmt.Errorf("invalid queue type: %s", c.Queue.Type)
	}

	return nil
}

// GetLogPath returns the full path for the log file, handling defaults
func (c *ServerConfig) GetLogPath() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	if c.DaemonMode {
		// Default log file for daemon mode
		return filepath.Join(os.TempDir(), "upfleet-server.log")
	}
	return "" // stdout
}

// ToJSON returns the configuration as a JSON string
func (c *ServerConfig) ToJSON() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// GetSanitized returns a sanitized version of the config safe for logging
func (c *ServerConfig) GetSanitized() map[string]interface{} {
	sanitized := map[string]interface{}{
		"port":         c.Port,
		"debug":        c.Debug,
		"daemon_mode":  c.DaemonMode,
		"report_store": c.ReportStore.Type,
		"lock_type":    c.Locking.Type,
		"queue_type":   c.Queue.Type,
	}

	if c.Debug {
		sanitized["log_configured"] = c.GetLogPath() != ""
		if c.ReportStore.Type == reportStoreTypeS3 {
			sanitized["s3_config"] = map[string]interface{}{
				"bucket_configured":   c.ReportStore.S3.Bucket != "",
				"region_configured":   c.ReportStore.S3.Region != "",
				"prefix":              c.ReportStore.S3.Prefix,
				"endpoint_configured": c.ReportStore.S3.Endpoint != "",
			}
		}
		if c.Locking.Type == "dynamodb" {
			sanitized["lock_config"] = map[string]interface{}{
				"table_configured":    c.Locking.Table != "",
				"region_configured":   c.Locking.Region != "",
				"endpoint_configured": c.Locking.Endpoint != "",
				"ttl_seconds":         c.Locking.TTLSeconds,
			}
		}
	}

	return sanitized
}

// expandPath expands ~ to the home directory
func expandPath(path string) (string, error) {
	if path == "" {
		return path, nil
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	return filepath.Clean(path), nil
}

// WriteConfigInfo writes configuration info to a well-known location for debugging
func (c *ServerConfig) WriteConfigInfo() error {
	info := struct {
		StartedAt string                 `json:"started_at"`
		PID       int                    `json:"pid"`
		Version   string                 `json:"version"`
		Config    map[string]interface{} `json:"config"`
	}{
		StartedAt: time.Now().Format(time.RFC3339),
		PID:       os.Getpid(),
		Version:   AppVersion,
		Config:    c.GetSanitized(),
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config info: %w", err)
	}

	infoPath := os.Getenv("UPFLEET_INFO_FILE")
	if infoPath == "" {
		infoPath = filepath.Join(os.TempDir(), "upfleet.info")
	}

	expanded, err := expandPath(infoPath)
	if err == nil {
		infoPath = expanded
	}

	if err := os.WriteFile(infoPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write server info: %w", err)
	}
	return nil
}

// GetPIDPath returns just the PID file path from environment.
// This is a lightweight alternative to loading the full config.
func GetPIDPath() string {
	pidFile := os.Getenv("UPFLEET_PID_FILE")
	if pidFile != "" {
		expanded, err := expandPath(pidFile)
		if err == nil {
			return expanded
		}
		// Fall through to default on error
	}

	return filepath.Join(os.TempDir(), "upfleet-server.pid")
}

// GetPort returns just the port from environment.
// This is a lightweight alternative to loading the full config.
func GetPort() int {
	portStr := os.Getenv("UPFLEET_PORT")
	if portStr == "" {
		return 8080 // default
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return 8080 // default on error
	}

	return port
}
