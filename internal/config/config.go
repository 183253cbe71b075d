package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/ledger-intake/internal/attribution"
	"github.com/sells-group/ledger-intake/internal/cost"
	"github.com/sells-group/ledger-intake/internal/ratelimit"
	"github.com/sells-group/ledger-intake/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig        `yaml:"store" mapstructure:"store"`
	Log         LogConfig          `yaml:"log" mapstructure:"log"`
	Server      ServerConfig       `yaml:"server" mapstructure:"server"`
	Attribution attribution.Config `yaml:"attribution" mapstructure:"attribution"`
	Processing  ProcessingConfig   `yaml:"processing" mapstructure:"processing"`
	RateLimit   RateLimitConfig    `yaml:"ratelimit" mapstructure:"ratelimit"`
	Redis       RedisConfig        `yaml:"redis" mapstructure:"redis"`
	Blob        BlobConfig         `yaml:"blob" mapstructure:"blob"`
	Providers   ProvidersConfig    `yaml:"providers" mapstructure:"providers"`
	Pricing     []cost.Price       `yaml:"pricing" mapstructure:"pricing"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP trigger server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// ProcessingConfig bounds document processing.
type ProcessingConfig struct {
	Concurrency  int   `yaml:"concurrency" mapstructure:"concurrency"`
	MaxFileBytes int64 `yaml:"max_file_bytes" mapstructure:"max_file_bytes"`
}

// RateLimitConfig selects the per-tenant limiter.
type RateLimitConfig struct {
	Backend          string `yaml:"backend" mapstructure:"backend"`
	ratelimit.Limits `yaml:",inline" mapstructure:",squash"`
}

// RedisConfig configures the shared Redis used for rate limits and locks.
type RedisConfig struct {
	Addr         string `yaml:"addr" mapstructure:"addr"`
	Password     string `yaml:"password" mapstructure:"password"`
	DB           int    `yaml:"db" mapstructure:"db"`
	LockTTLSecs  int    `yaml:"lock_ttl_secs" mapstructure:"lock_ttl_secs"`
	LockWaitSecs int    `yaml:"lock_wait_secs" mapstructure:"lock_wait_secs"`
}

// LockTTL returns the tenant-creation lock TTL.
func (c RedisConfig) LockTTL() time.Duration { return time.Duration(c.LockTTLSecs) * time.Second }

// LockWait returns how long a caller waits for the lock.
func (c RedisConfig) LockWait() time.Duration { return time.Duration(c.LockWaitSecs) * time.Second }

// BlobConfig selects the object store holding uploads.
type BlobConfig struct {
	Backend string      `yaml:"backend" mapstructure:"backend"`
	Bucket  string      `yaml:"bucket" mapstructure:"bucket"`
	Minio   MinioConfig `yaml:"minio" mapstructure:"minio"`
	GCS     GCSConfig   `yaml:"gcs" mapstructure:"gcs"`
}

// MinioConfig holds S3-compatible endpoint credentials.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// GCSConfig holds Google Cloud Storage credentials.
type GCSConfig struct {
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
}

// ProvidersConfig holds vision provider credentials and call policy.
type ProvidersConfig struct {
	Anthropic ProviderKey              `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    ProviderKey              `yaml:"openai" mapstructure:"openai"`
	Gemini    ProviderKey              `yaml:"gemini" mapstructure:"gemini"`
	MaxTokens int                      `yaml:"max_tokens" mapstructure:"max_tokens"`
	Retry     resilience.Backoff       `yaml:"retry" mapstructure:"retry"`
	Circuit   resilience.BreakerConfig `yaml:"circuit" mapstructure:"circuit"`
}

// ProviderKey is one provider's API key and fallback model.
type ProviderKey struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("attribution.debug", false)
	v.SetDefault("attribution.confidence_threshold", attribution.DefaultConfidenceThreshold)
	v.SetDefault("processing.concurrency", 4)
	v.SetDefault("processing.max_file_bytes", 20<<20)
	v.SetDefault("ratelimit.backend", "none")
	v.SetDefault("ratelimit.per_minute", 20)
	v.SetDefault("ratelimit.per_hour", 300)
	v.SetDefault("ratelimit.per_day", 2000)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.lock_ttl_secs", 15)
	v.SetDefault("redis.lock_wait_secs", 5)
	v.SetDefault("blob.backend", "minio")
	v.SetDefault("blob.bucket", "documents")
	v.SetDefault("blob.minio.endpoint", "localhost:9000")
	v.SetDefault("blob.minio.use_ssl", false)
	v.SetDefault("providers.anthropic.model", "claude-sonnet-4-5")
	v.SetDefault("providers.openai.model", "gpt-4o")
	v.SetDefault("providers.gemini.model", "gemini-2.0-flash")
	v.SetDefault("providers.max_tokens", 4096)
	v.SetDefault("providers.retry.attempts", 3)
	v.SetDefault("providers.retry.base", time.Second)
	v.SetDefault("providers.retry.max", 20*time.Second)
	v.SetDefault("providers.retry.factor", 2.0)
	v.SetDefault("providers.retry.jitter", 0.2)
	v.SetDefault("providers.circuit.threshold", 5)
	v.SetDefault("providers.circuit.cooldown", 30*time.Second)
	v.SetDefault("providers.circuit.probes", 1)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the keys a command needs. mode is the command name.
func (c *Config) Validate(mode string) error {
	var missing []string
	need := func(ok bool, msg string) {
		if !ok {
			missing = append(missing, msg)
		}
	}

	switch mode {
	case "migrate":
		need(c.Store.DatabaseURL != "", "store.database_url is required")
	case "serve", "process":
		need(c.Store.DatabaseURL != "", "store.database_url is required")
		need(c.Blob.Bucket != "", "blob.bucket is required")
		need(c.Providers.Anthropic.APIKey != "" || c.Providers.OpenAI.APIKey != "" || c.Providers.Gemini.APIKey != "",
			"at least one of providers.{anthropic,openai,gemini}.api_key is required")
		switch c.Blob.Backend {
		case "minio", "gcs":
		default:
			missing = append(missing, fmt.Sprintf("blob.backend %q must be minio or gcs", c.Blob.Backend))
		}
		switch c.RateLimit.Backend {
		case "none", "local":
		case "redis":
			need(c.Redis.Addr != "", "redis.addr is required for ratelimit.backend=redis")
		default:
			missing = append(missing, fmt.Sprintf("ratelimit.backend %q must be none, local or redis", c.RateLimit.Backend))
		}
		if mode == "serve" {
			need(c.Server.Port > 0 && c.Server.Port < 65536, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
		}
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
