package config

import (
	"github.com/h2linker/sendqueue/internal/logger"
	"github.com/h2linker/sendqueue/internal/tracing"
)

type AppConfig struct {
	APIPort           string `env:"PORT,required" envDefault:"12222"`
	APIKey            string `env:"API_KEY,required"`
	CronToken         string `env:"CRON_SECRET_TOKEN,required"`
	RabbitMQURL       string `env:"RABBITMQ_URL"`
	TrackingPublicUrl string `env:"TRACKING_PUBLIC_URL" envDefault:"https://track.h2linker.com"`
	Logger            *logger.Config
	Tracing           *tracing.JaegerConfig
}

type DatabaseConfig struct {
	Host            string `env:"POSTGRES_HOST,required"`
	Port            string `env:"POSTGRES_PORT,required"`
	User            string `env:"POSTGRES_USER,required"`
	DBName          string `env:"POSTGRES_DB_NAME,required"`
	Password        string `env:"POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"POSTGRES_SSL_MODE"`
}

// RedisConfig is optional. Without an address drains are single-flighted in process.
type RedisConfig struct {
	Address  string `env:"REDIS_ADDRESS"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	LockTTL  int    `env:"REDIS_DRAIN_LOCK_TTL_SECONDS" envDefault:"3600"`
}

type AIConfig struct {
	Provider       string  `env:"AI_PROVIDER" envDefault:"gateway"`
	GatewayURL     string  `env:"AI_GATEWAY_URL" envDefault:"https://ai.gateway.lovable.dev/v1/chat/completions"`
	APIKey         string  `env:"AI_API_KEY"`
	Model          string  `env:"AI_MODEL" envDefault:"google/gemini-2.5-flash"`
	AnthropicModel string  `env:"AI_ANTHROPIC_MODEL" envDefault:"claude-3-5-haiku-latest"`
	TimeoutSeconds int     `env:"AI_TIMEOUT_SECONDS" envDefault:"30"`
	RatePerSecond  float64 `env:"AI_RATE_PER_SECOND" envDefault:"2"`
}

type DNSConfig struct {
	Resolver          string `env:"DNS_RESOLVER" envDefault:"1.1.1.1:53"`
	Attempts          int    `env:"DNS_ATTEMPTS" envDefault:"3"`
	BaseBackoffMillis int    `env:"DNS_BASE_BACKOFF_MS" envDefault:"500"`
	NegativeCacheSecs int    `env:"DNS_NEGATIVE_CACHE_SECONDS" envDefault:"300"`
}

type DrainConfig struct {
	CircuitBreakerThreshold int `env:"DRAIN_CIRCUIT_BREAKER_THRESHOLD" envDefault:"1"`
	CronMaxItems            int `env:"DRAIN_CRON_MAX_ITEMS" envDefault:"2"`
	UserMaxItems            int `env:"DRAIN_USER_MAX_ITEMS" envDefault:"5"`
	MaxQueueIds             int `env:"DRAIN_MAX_QUEUE_IDS" envDefault:"50"`
	Concurrency             int `env:"DRAIN_CONCURRENCY" envDefault:"8"`
	SendWindowStartHour     int `env:"DRAIN_SEND_WINDOW_START_HOUR" envDefault:"8"`
	SendWindowEndHour       int `env:"DRAIN_SEND_WINDOW_END_HOUR" envDefault:"19"`
}

type RadarConfig struct {
	JobLimit    int `env:"RADAR_JOB_LIMIT" envDefault:"500"`
	Concurrency int `env:"RADAR_CONCURRENCY" envDefault:"4"`
}
