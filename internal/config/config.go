package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

type Config struct {
	AppEnv        string `env:"APP_ENV" envDefault:"prod"`
	APIAddr       string `env:"API_ADDR" envDefault:":8080"`
	PostgresDSN   string `env:"POSTGRES_DSN,notEmpty"`
	RedisAddr     string `env:"REDIS_ADDR,notEmpty"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	AutoMigrate   bool   `env:"MIGRATIONS_AUTO" envDefault:"true"`

	SchedulerInterval    time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"5m"`
	SchedulerBatchSize   int           `env:"SCHEDULER_BATCH_SIZE" envDefault:"25"`
	SchedulerConcurrency int           `env:"SCHEDULER_CONCURRENCY" envDefault:"4"`
	SchedulerClaimTTL    time.Duration `env:"SCHEDULER_CLAIM_TTL" envDefault:"10m"`

	YouTubeAPIKey    string `env:"YOUTUBE_API_KEY"`
	YouTubeBaseURL   string `env:"YOUTUBE_BASE_URL" envDefault:"https://www.googleapis.com/youtube/v3"`
	SearchDailyQuota int64  `env:"SEARCH_DAILY_QUOTA" envDefault:"10000"`

	RendererURL          string        `env:"RENDERER_URL"`
	BlobStoreURL         string        `env:"BLOBSTORE_URL"`
	BlobSignedURLTTL     time.Duration `env:"BLOBSTORE_SIGNED_URL_TTL" envDefault:"168h"`
	BillingAPIURL        string        `env:"BILLING_API_URL" envDefault:"https://api.stripe.com"`
	BillingAPIKey        string        `env:"BILLING_API_KEY"`
	BillingWebhookSecret string        `env:"BILLING_WEBHOOK_SECRET"`
	NotifierURL          string        `env:"NOTIFIER_URL"`
	HTTPTimeout          time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"rightsguard.events"`
}

func (c Config) Dev() bool { return c.AppEnv == "dev" }

// Parse reads the configuration from the environment.
func Parse() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	if c.SchedulerInterval <= 0 {
		c.SchedulerInterval = 5 * time.Minute
	}
	if c.SchedulerBatchSize <= 0 {
		c.SchedulerBatchSize = 25
	}
	if c.SchedulerConcurrency <= 0 {
		c.SchedulerConcurrency = 1
	}
	return c, nil
}

// ValidateAPI checks settings only the API process needs.
func (c Config) ValidateAPI() error {
	if c.BillingWebhookSecret == "" {
		return errors.New(`required environment variable "BILLING_WEBHOOK_SECRET" is not set`)
	}
	return nil
}

func Load() Config {
	c, err := Parse()
	if err != nil {
		log.Fatal(err)
	}
	return c
}
