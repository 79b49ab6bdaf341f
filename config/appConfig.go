package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PARTSYNC"

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	SpecDir         string        `yaml:"spec_dir"`
}

type StorefrontConfig struct {
	URL            string        `yaml:"url"`
	ConsumerKey    string        `yaml:"consumer_key"`
	ConsumerSecret string        `yaml:"consumer_secret"`
	Timeout        time.Duration `yaml:"timeout"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Disabled  bool   `yaml:"disabled"`
}

// ClassLimit описывает окно одного класса трафика.
type ClassLimit struct {
	Window      time.Duration `yaml:"window"`
	MaxRequests int           `yaml:"max_requests"`
	MinInterval time.Duration `yaml:"min_interval"`
}

type RateLimitConfig struct {
	General       ClassLimit    `yaml:"general"`
	Storefront    ClassLimit    `yaml:"storefront"`
	PurgeInterval time.Duration `yaml:"purge_interval"`
}

type SyncConfig struct {
	BatchSize      int           `yaml:"batch_size"`
	MaxRetries     *int          `yaml:"max_retries"`
	PageRetryBase  time.Duration `yaml:"page_retry_base"`
	ItemDelay      time.Duration `yaml:"item_delay"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	Retention      time.Duration `yaml:"retention"`
	MaxErrors      int           `yaml:"max_errors"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// Retries - число повторов страницы и элемента; явный 0 отключает повторы.
func (c SyncConfig) Retries() int {
	if c.MaxRetries == nil {
		return 0
	}
	return *c.MaxRetries
}

type ScraperConfig struct {
	LivenessWindow time.Duration `yaml:"liveness_window"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RequestsPerMin int           `yaml:"requests_per_minute"`
}

// PricingConfig: DefaultMargin == nil означает встроенные 15%, явный 0 - продажа без наценки.
type PricingConfig struct {
	DefaultMargin *float64 `yaml:"default_margin"`
}

// FeedConfig - прайс-лист поставщика в формате CSV с inf-файлом времени изменения.
type FeedConfig struct {
	Supplier string        `yaml:"supplier"`
	InfURL   string        `yaml:"inf_url"`
	CSVURL   string        `yaml:"csv_url"`
	Interval time.Duration `yaml:"interval"`
}

type LogConfig struct {
	Environment string `yaml:"environment"`
}

type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    string           `yaml:"storage"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	Storefront StorefrontConfig `yaml:"storefront"`
	Auth       AuthConfig       `yaml:"auth"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit"`
	Sync       SyncConfig       `yaml:"sync"`
	Scraper    ScraperConfig    `yaml:"scraper"`
	Pricing    PricingConfig    `yaml:"pricing"`
	Feeds      []FeedConfig     `yaml:"feeds"`
	Log        LogConfig        `yaml:"log"`
}

// envOverrides - значения, которые можно переопределить через окружение (секреты и адреса).
type envOverrides struct {
	Storage                  string `envconfig:"STORAGE"`
	ServerAddr               string `envconfig:"SERVER_ADDR"`
	PostgresHost             string `envconfig:"POSTGRES_HOST"`
	PostgresPort             string `envconfig:"POSTGRES_PORT"`
	PostgresUser             string `envconfig:"POSTGRES_USER"`
	PostgresPassword         string `envconfig:"POSTGRES_PASSWORD"`
	PostgresDBName           string `envconfig:"POSTGRES_NAME"`
	PostgresDriver           string `envconfig:"POSTGRES_DRIVER"`
	RedisURL                 string `envconfig:"REDIS_URL"`
	StorefrontURL            string `envconfig:"STOREFRONT_URL"`
	StorefrontConsumerKey    string `envconfig:"STOREFRONT_CONSUMER_KEY"`
	StorefrontConsumerSecret string `envconfig:"STOREFRONT_CONSUMER_SECRET"`
	JWTSecret                string `envconfig:"JWT_SECRET"`
	LogEnvironment           string `envconfig:"LOG_ENV"`
}

func LoadConfig(filename string) (*AppConfig, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	config := &AppConfig{}
	if err := decoder.Decode(config); err != nil {
		return nil, err
	}

	config.ApplyDefaults()
	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadDotEnv подгружает .env для локального запуска. Отсутствие файла не является ошибкой.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func (c *AppConfig) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("process environment: %w", err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Storage, env.Storage)
	set(&c.Server.Addr, env.ServerAddr)
	set(&c.Postgres.Host, env.PostgresHost)
	set(&c.Postgres.Port, env.PostgresPort)
	set(&c.Postgres.User, env.PostgresUser)
	set(&c.Postgres.Password, env.PostgresPassword)
	set(&c.Postgres.DBName, env.PostgresDBName)
	set(&c.Postgres.Driver, env.PostgresDriver)
	set(&c.Redis.URL, env.RedisURL)
	set(&c.Storefront.URL, env.StorefrontURL)
	set(&c.Storefront.ConsumerKey, env.StorefrontConsumerKey)
	set(&c.Storefront.ConsumerSecret, env.StorefrontConsumerSecret)
	set(&c.Auth.JWTSecret, env.JWTSecret)
	set(&c.Log.Environment, env.LogEnvironment)
	return nil
}

// ApplyDefaults заполняет незаданные значения.
func (c *AppConfig) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.SpecDir == "" {
		c.Server.SpecDir = "./api"
	}
	if c.Storage == "" {
		c.Storage = "postgres"
	}
	c.Postgres.applyDefaults()

	if c.Storefront.Timeout == 0 {
		c.Storefront.Timeout = 30 * time.Second
	}

	if c.RateLimit.General.Window == 0 {
		c.RateLimit.General.Window = 5 * time.Minute
	}
	if c.RateLimit.General.MaxRequests == 0 {
		c.RateLimit.General.MaxRequests = 500
	}
	if c.RateLimit.Storefront.Window == 0 {
		c.RateLimit.Storefront.Window = 60 * time.Second
	}
	if c.RateLimit.Storefront.MaxRequests == 0 {
		c.RateLimit.Storefront.MaxRequests = 50
	}
	if c.RateLimit.Storefront.MinInterval == 0 {
		c.RateLimit.Storefront.MinInterval = time.Second
	}
	if c.RateLimit.PurgeInterval == 0 {
		c.RateLimit.PurgeInterval = time.Minute
	}

	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = 100
	}
	if c.Sync.MaxRetries == nil {
		retries := 3
		c.Sync.MaxRetries = &retries
	}
	if c.Sync.PageRetryBase == 0 {
		c.Sync.PageRetryBase = 2 * time.Second
	}
	if c.Sync.ItemDelay == 0 {
		c.Sync.ItemDelay = 500 * time.Millisecond
	}
	if c.Sync.PollInterval == 0 {
		c.Sync.PollInterval = time.Second
	}
	if c.Sync.Retention == 0 {
		c.Sync.Retention = time.Hour
	}
	if c.Sync.MaxErrors == 0 {
		c.Sync.MaxErrors = 50
	}
	if c.Sync.ConnectTimeout == 0 {
		c.Sync.ConnectTimeout = 15 * time.Second
	}

	if c.Scraper.LivenessWindow == 0 {
		c.Scraper.LivenessWindow = 60 * time.Second
	}
	if c.Scraper.RequestTimeout == 0 {
		c.Scraper.RequestTimeout = 10 * time.Second
	}
	if c.Scraper.RequestsPerMin == 0 {
		c.Scraper.RequestsPerMin = 30
	}

	if c.Pricing.DefaultMargin == nil {
		margin := 15.0
		c.Pricing.DefaultMargin = &margin
	}
	for i := range c.Feeds {
		if c.Feeds[i].Interval == 0 {
			c.Feeds[i].Interval = time.Hour
		}
	}
	if c.Log.Environment == "" {
		c.Log.Environment = "development"
	}
}
