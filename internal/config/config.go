package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env               string        `mapstructure:"ENV"`
	LogMode           string        `mapstructure:"LOG_MODE"`
	ServiceName       string        `mapstructure:"SERVICE_NAME"`
	DatastoresTable   string        `mapstructure:"DATASTORES_TABLE"`
	JobsTable         string        `mapstructure:"JOBS_TABLE"`
	JobsQueueURL      string        `mapstructure:"JOBS_QUEUE_URL"`
	JobTTL            time.Duration `mapstructure:"JOB_TTL"`
	KMSKeyID          string        `mapstructure:"KMS_KEY_ID"`
	DataAccessRoleARN string        `mapstructure:"DATA_ACCESS_ROLE_ARN"`
	BucketPrefix      string        `mapstructure:"BUCKET_PREFIX"`
	PollInterval      time.Duration `mapstructure:"POLL_INTERVAL"`
	PollMaxAttempts   int           `mapstructure:"POLL_MAX_ATTEMPTS"`
	BucketWaitTimeout time.Duration `mapstructure:"BUCKET_WAIT_TIMEOUT"`
	ObjectWaitTimeout time.Duration `mapstructure:"OBJECT_WAIT_TIMEOUT"`
	RedisAddr         string        `mapstructure:"REDIS_ADDR"`
	RedisChannel      string        `mapstructure:"REDIS_CHANNEL"`
	MetricsEnabled    bool          `mapstructure:"METRICS_ENABLED"`
	MetricsNamespace  string        `mapstructure:"METRICS_NAMESPACE"`
	OtelEnabled       bool          `mapstructure:"OTEL_ENABLED"`
	OtelExporter      string        `mapstructure:"OTEL_EXPORTER"`
	ListenAddr        string        `mapstructure:"LISTEN_ADDR"`
	RunLocal          bool          `mapstructure:"RUN_LOCAL"`
	AWSMaxAttempts    int           `mapstructure:"AWS_MAX_ATTEMPTS"`
}

var keys = []string{
	"ENV", "LOG_MODE", "SERVICE_NAME",
	"DATASTORES_TABLE", "JOBS_TABLE", "JOBS_QUEUE_URL", "JOB_TTL",
	"KMS_KEY_ID", "DATA_ACCESS_ROLE_ARN", "BUCKET_PREFIX",
	"POLL_INTERVAL", "POLL_MAX_ATTEMPTS", "BUCKET_WAIT_TIMEOUT", "OBJECT_WAIT_TIMEOUT",
	"REDIS_ADDR", "REDIS_CHANNEL",
	"METRICS_ENABLED", "METRICS_NAMESPACE",
	"OTEL_ENABLED", "OTEL_EXPORTER",
	"LISTEN_ADDR", "RUN_LOCAL",
	"AWS_MAX_ATTEMPTS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_MODE", "development")
	v.SetDefault("SERVICE_NAME", "pintler-va-healthlake")
	v.SetDefault("DATASTORES_TABLE", "HealthLakeDatastore")
	v.SetDefault("JOBS_TABLE", "LifecycleJobs")
	v.SetDefault("JOB_TTL", "48h")
	v.SetDefault("BUCKET_PREFIX", "va-patient-icn")
	v.SetDefault("POLL_INTERVAL", "5s")
	v.SetDefault("POLL_MAX_ATTEMPTS", 0)
	v.SetDefault("BUCKET_WAIT_TIMEOUT", "30s")
	v.SetDefault("OBJECT_WAIT_TIMEOUT", "6s")
	v.SetDefault("REDIS_CHANNEL", "healthlake-datastores")
	v.SetDefault("METRICS_ENABLED", false)
	v.SetDefault("METRICS_NAMESPACE", "PintlerVA/HealthLake")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER", "stdout")
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("RUN_LOCAL", false)
	v.SetDefault("AWS_MAX_ATTEMPTS", 0)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AsyncJobs reports whether operations are queued to the worker instead of run inline.
func (c *Config) AsyncJobs() bool {
	return c.JobsQueueURL != ""
}

func (c *Config) Validate() error {
	if c.DatastoresTable == "" {
		return fmt.Errorf("DATASTORES_TABLE must not be empty")
	}
	if c.AsyncJobs() && c.JobsTable == "" {
		return fmt.Errorf("JOBS_TABLE is required when JOBS_QUEUE_URL is set")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.PollMaxAttempts < 0 {
		return fmt.Errorf("POLL_MAX_ATTEMPTS must be >= 0, got %d", c.PollMaxAttempts)
	}
	if c.AWSMaxAttempts < 0 {
		return fmt.Errorf("AWS_MAX_ATTEMPTS must be >= 0, got %d", c.AWSMaxAttempts)
	}
	if c.BucketWaitTimeout <= 0 || c.ObjectWaitTimeout <= 0 {
		return fmt.Errorf("BUCKET_WAIT_TIMEOUT and OBJECT_WAIT_TIMEOUT must be positive")
	}
	switch c.OtelExporter {
	case "stdout", "otlp":
	default:
		return fmt.Errorf("OTEL_EXPORTER must be \"stdout\" or \"otlp\", got %q", c.OtelExporter)
	}
	return nil
}
