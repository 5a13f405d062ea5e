package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServerConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := NewServerConfig()

	assert.Equal(t, 8080, cfg.Port)
	assert.False(t, cfg.Debug)
	assert.Equal(t, "file", cfg.ReportStore.Type)
	assert.Equal(t, "~/.upfleet/reports", cfg.ReportStore.File.Dir)
	assert.Equal(t, "reports/", cfg.ReportStore.S3.Prefix)
	assert.Equal(t, "local", cfg.Locking.Type)
	assert.Equal(t, 900, cfg.Locking.TTLSeconds)
	assert.Equal(t, "embedded", cfg.Queue.Type)
}

func TestServerConfig_LoadFromEnv(t *testing.T) { //nolint:paralleltest // Mutates environment
	t.Setenv("UPFLEET_PORT", "9090")
	t.Setenv("UPFLEET_DEBUG", "true")
	t.Setenv("UPFLEET_REPORT_STORE", "s3")
	t.Setenv("UPFLEET_S3_BUCKET", "upfleet-reports")
	t.Setenv("UPFLEET_S3_REGION", "us-east-1")
	t.Setenv("UPFLEET_S3_ENDPOINT", "http://localhost:4566")
	t.Setenv("UPFLEET_LOCK_TYPE", "dynamodb")
	t.Setenv("UPFLEET_DYNAMODB_TABLE", "upfleet-locks")
	t.Setenv("UPFLEET_DYNAMODB_REGION", "us-east-1")
	t.Setenv("UPFLEET_LOCK_TTL_SECONDS", "600")
	t.Setenv("UPFLEET_QUEUE_TYPE", "distributed")
	t.Setenv("UPFLEET_REDIS_URL", "redis://localhost:6379/0")

	cfg := NewServerConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "s3", cfg.ReportStore.Type)
	assert.Equal(t, "upfleet-reports", cfg.ReportStore.S3.Bucket)
	assert.Equal(t, "us-east-1", cfg.ReportStore.S3.Region)
	assert.Equal(t, "http://localhost:4566", cfg.ReportStore.S3.Endpoint)
	assert.Equal(t, "dynamodb", cfg.Locking.Type)
	assert.Equal(t, "upfleet-locks", cfg.Locking.Table)
	assert.Equal(t, 600, cfg.Locking.TTLSeconds)
	assert.Equal(t, "distributed", cfg.Queue.Type)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Queue.RedisURL)

	require.NoError(t, cfg.Validate())
}

func TestServerConfig_LoadFromEnv_InvalidPort(t *testing.T) { //nolint:paralleltest // Mutates environment
	t.Setenv("UPFLEET_PORT", "not-a-port")

	cfg := NewServerConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UPFLEET_PORT")
}

func TestServerConfig_Validate(t *testing.T) {
	t.Parallel()

	t.Run("DefaultsAreValid", func(t *testing.T) {
		t.Parallel()
		cfg := NewServerConfig()
		require.NoError(t, cfg.Validate())
	})

	t.Run("InvalidPort", func(t *testing.T) {
		t.Parallel()
		cfg := NewServerConfig()
		cfg.Port = 0
		require.Error(t, cfg.Validate())
	})

	t.Run("S3StoreRequiresBucket", func(t *testing.T) {
		t.Parallel()
		cfg := NewServerConfig()
		cfg.ReportStore.Type = "s3"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "S3 bucket")
	})

	t.Run("DynamoDBLockRequiresTable", func(t *testing.T) {
		t.Parallel()
		cfg := NewServerConfig()
		cfg.Locking.Type = "dynamodb"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DynamoDB table")
	})

	t.Run("DistributedQueueRequiresRedis", func(t *testing.T) {
		t.Parallel()
		cfg := NewServerConfig()
		cfg.Queue.Type = "distributed"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis URL")
	})

	t.Run("UnknownQueueType", func(t *testing.T) {
		t.Parallel()
		cfg := NewServerConfig()
		cfg.Queue.Type = "carrier-pigeon"
		require.Error(t, cfg.Validate())
	})
}

func TestServerConfig_GetSanitized(t *testing.T) {
	t.Parallel()

	cfg := NewServerConfig()
	cfg.Debug = true
	cfg.ReportStore.Type = "s3"
	cfg.ReportStore.S3.Bucket = "upfleet-reports"

	sanitized := cfg.GetSanitized()
	assert.Equal(t, "s3", sanitized["report_store"])

	s3Config, ok := sanitized["s3_config"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, s3Config["bucket_configured"])
	// Bucket name itself must not leak into sanitized output
	for _, v := range s3Config {
		assert.NotEqual(t, "upfleet-reports", v)
	}
}
