package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for the worker process.
type Config struct {
	Queue      Queue      `mapstructure:"queue"`
	Storage    Storage    `mapstructure:"storage"`
	Webhook    Webhook    `mapstructure:"webhook"`
	Processing Processing `mapstructure:"processing"`
	Retry      Retry      `mapstructure:"retry"`
	Ack        Ack        `mapstructure:"ack"`
	Log        Log        `mapstructure:"log"`
}

// Queue holds SQS consumer configuration.
type Queue struct {
	URL               string        `mapstructure:"url"`
	Region            string        `mapstructure:"region"`
	Endpoint          string        `mapstructure:"endpoint"` // optional override for local brokers
	WaitTimeSeconds   int32         `mapstructure:"wait_time_seconds"`
	VisibilityTimeout int32         `mapstructure:"visibility_timeout"`
	Pollers           int           `mapstructure:"pollers"`
	PollErrorBackoff  time.Duration `mapstructure:"poll_error_backoff"`
}

// Storage holds configuration for the S3-compatible object store.
type Storage struct {
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	BucketName string `mapstructure:"bucket_name"`
	UseSSL     bool   `mapstructure:"use_ssl"`
}

// Webhook holds outbound callback configuration.
type Webhook struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Processing holds audio-processing and temp-resource configuration.
type Processing struct {
	MaxFileSizeMB    int64         `mapstructure:"max_file_size_mb"`
	DefaultPeaks     int           `mapstructure:"default_peaks"`
	AllowedMIMETypes []string      `mapstructure:"allowed_mime_types"`
	DefaultTask      string        `mapstructure:"default_task"`
	WorkDir          string        `mapstructure:"work_dir"`
	TempMaxAge       time.Duration `mapstructure:"temp_max_age"`
	TempHardMaxAge   time.Duration `mapstructure:"temp_hard_max_age"`
}

// Retry defines the task-level attempt policy: failed invocations are
// re-submitted with exponential backoff until MaxRetries is exhausted.
type Retry struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
}

// Ack defines the retry strategy for broker-level calls (poll, ack, probe).
type Ack struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
	Backoff  float64       `mapstructure:"backoff"`
}

// Log holds logging configuration.
type Log struct {
	Level string `mapstructure:"level"`
}

func setDefaults() {
	viper.SetDefault("queue.region", "ap-northeast-2")
	viper.SetDefault("queue.wait_time_seconds", 20)
	viper.SetDefault("queue.visibility_timeout", 300)
	viper.SetDefault("queue.pollers", 1)
	viper.SetDefault("queue.poll_error_backoff", 5*time.Second)

	viper.SetDefault("storage.use_ssl", false)

	viper.SetDefault("webhook.timeout", 10*time.Second)

	viper.SetDefault("processing.max_file_size_mb", 100)
	viper.SetDefault("processing.default_peaks", 1024)
	viper.SetDefault("processing.allowed_mime_types", []string{
		"audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave",
		"audio/mpeg", "audio/flac", "audio/ogg",
	})
	viper.SetDefault("processing.default_task", "hash_and_notify")
	viper.SetDefault("processing.work_dir", "")
	viper.SetDefault("processing.temp_max_age", 1800*time.Second)
	viper.SetDefault("processing.temp_hard_max_age", 7200*time.Second)

	viper.SetDefault("retry.max_retries", 3)
	viper.SetDefault("retry.base_delay", 60*time.Second)
	viper.SetDefault("retry.max_delay", 300*time.Second)

	viper.SetDefault("ack.attempts", 3)
	viper.SetDefault("ack.delay", 500*time.Millisecond)
	viper.SetDefault("ack.backoff", 2.0)

	viper.SetDefault("log.level", "info")
}

// mustBindEnv binds environment variables to viper keys.
//
// It panics if any environment variable cannot be bound.
func mustBindEnv() {
	bindings := map[string]string{
		"queue.url":                     "SQS_QUEUE_URL",
		"queue.region":                  "AWS_REGION",
		"queue.endpoint":                "SQS_ENDPOINT",
		"queue.wait_time_seconds":       "SQS_WAIT_TIME_SECONDS",
		"queue.visibility_timeout":      "SQS_VISIBILITY_TIMEOUT",
		"queue.pollers":                 "POLLERS",
		"queue.poll_error_backoff":      "POLL_ERROR_BACKOFF",
		"storage.endpoint":              "STORAGE_ENDPOINT",
		"storage.access_key":            "STORAGE_ACCESS_KEY",
		"storage.secret_key":            "STORAGE_SECRET_KEY",
		"storage.bucket_name":           "S3_BUCKET_NAME",
		"storage.use_ssl":               "STORAGE_USE_SSL",
		"webhook.base_url":              "WEBHOOK_URL",
		"webhook.timeout":               "WEBHOOK_TIMEOUT",
		"processing.max_file_size_mb":   "MAX_FILE_SIZE_MB",
		"processing.default_peaks":      "DEFAULT_WAVEFORM_PEAKS",
		"processing.allowed_mime_types": "ALLOWED_MIME_TYPES",
		"processing.default_task":       "DEFAULT_TASK",
		"processing.work_dir":           "WORK_DIR",
		"processing.temp_max_age":       "TEMP_MAX_AGE",
		"processing.temp_hard_max_age":  "TEMP_HARD_MAX_AGE",
		"retry.max_retries":             "MAX_RETRIES",
		"retry.base_delay":              "RETRY_BASE_DELAY",
		"retry.max_delay":               "RETRY_MAX_DELAY",
		"log.level":                     "LOG_LEVEL",
	}

	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			zlog.Logger.Panic().Err(err).Msgf("failed to bind env %s", env)
		}
	}
}

// MustLoad loads the configuration from the environment, with an optional
// config file layered underneath. The process exits with a non-zero code
// when a required variable is missing.
func MustLoad() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	setDefaults()
	mustBindEnv()

	// The config file is optional; the worker is normally env-configured.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			zlog.Logger.Fatal().Err(err).Msg("failed to read config file")
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to unmarshal config")
	}

	required := map[string]string{
		"SQS_QUEUE_URL":    cfg.Queue.URL,
		"STORAGE_ENDPOINT": cfg.Storage.Endpoint,
		"S3_BUCKET_NAME":   cfg.Storage.BucketName,
		"WEBHOOK_URL":      cfg.Webhook.BaseURL,
	}

	var missing []string
	for name, value := range required {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		zlog.Logger.Fatal().Msgf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	return &cfg
}
