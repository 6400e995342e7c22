package config

import (
	"time"

	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/tracing"
)

type AppConfig struct {
	APIPort     string `env:"PORT" envDefault:"12222"`
	APIKey      string `env:"API_KEY,required"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
	Logger      *logger.Config
	Tracing     *tracing.JaegerConfig
}

type DatabaseConfig struct {
	Host            string `env:"MAILVAULT_POSTGRES_HOST,required"`
	Port            string `env:"MAILVAULT_POSTGRES_PORT,required"`
	User            string `env:"MAILVAULT_POSTGRES_USER,required"`
	DBName          string `env:"MAILVAULT_POSTGRES_DB_NAME,required"`
	Password        string `env:"MAILVAULT_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"MAILVAULT_POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"MAILVAULT_POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"MAILVAULT_POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"MAILVAULT_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"MAILVAULT_POSTGRES_SSL_MODE"`
}

type RedisConfig struct {
	// Empty URL selects the in-process lease coordinator.
	URL string `env:"REDIS_URL"`
}

type SyncConfig struct {
	CheckIntervalSeconds  int    `env:"SYNC_CHECK_INTERVAL_SECONDS" envDefault:"30"`
	MaxBatchSize          int    `env:"SYNC_MAX_BATCH_SIZE" envDefault:"50"`
	MaxMessagesPerCycle   int    `env:"SYNC_MAX_MESSAGES_PER_CYCLE" envDefault:"500"`
	LeaseTTLSeconds       int    `env:"SYNC_LEASE_TTL_SECONDS" envDefault:"300"`
	BackoffInitialSeconds int    `env:"SYNC_BACKOFF_INITIAL_SECONDS" envDefault:"10"`
	BackoffMaxSeconds     int    `env:"SYNC_BACKOFF_MAX_SECONDS" envDefault:"900"`
	ConnectTimeoutSeconds int    `env:"SYNC_CONNECT_TIMEOUT_SECONDS" envDefault:"30"`
	DefaultFolder         string `env:"SYNC_DEFAULT_FOLDER" envDefault:"INBOX"`
}

type PipelineConfig struct {
	MemoryThresholdBytes     int64  `env:"PIPELINE_MEMORY_THRESHOLD_BYTES" envDefault:"10485760"`
	TempFileThresholdBytes   int64  `env:"PIPELINE_TEMP_FILE_THRESHOLD_BYTES" envDefault:"52428800"`
	ExtractionTimeoutSeconds int    `env:"PIPELINE_EXTRACTION_TIMEOUT_SECONDS" envDefault:"30"`
	Workers                  int    `env:"PIPELINE_WORKERS" envDefault:"4"`
	TempDir                  string `env:"PIPELINE_TEMP_DIR"`
	TempFileMaxAgeSeconds    int    `env:"PIPELINE_TEMP_FILE_MAX_AGE_SECONDS" envDefault:"3600"`
	DedupCacheSize           int    `env:"PIPELINE_DEDUP_CACHE_SIZE" envDefault:"1024"`
	OCREnabled               bool   `env:"PIPELINE_OCR_ENABLED" envDefault:"true"`
	OCRBinary                string `env:"PIPELINE_OCR_BINARY" envDefault:"tesseract"`
}

func (s *SyncConfig) CheckInterval() time.Duration {
	return time.Duration(s.CheckIntervalSeconds) * time.Second
}

func (s *SyncConfig) LeaseTTL() time.Duration {
	return time.Duration(s.LeaseTTLSeconds) * time.Second
}

func (p *PipelineConfig) ExtractionTimeout() time.Duration {
	return time.Duration(p.ExtractionTimeoutSeconds) * time.Second
}

func (p *PipelineConfig) TempFileMaxAge() time.Duration {
	return time.Duration(p.TempFileMaxAgeSeconds) * time.Second
}
