package main

import (
	"context"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ledger-intake/internal/attribution"
	"github.com/sells-group/ledger-intake/internal/blob"
	"github.com/sells-group/ledger-intake/internal/config"
	"github.com/sells-group/ledger-intake/internal/cost"
	"github.com/sells-group/ledger-intake/internal/db"
	"github.com/sells-group/ledger-intake/internal/document"
	"github.com/sells-group/ledger-intake/internal/lock"
	"github.com/sells-group/ledger-intake/internal/provider"
	"github.com/sells-group/ledger-intake/internal/ratelimit"
	"github.com/sells-group/ledger-intake/internal/store"
	"github.com/sells-group/ledger-intake/internal/tenant"
	anthropicpkg "github.com/sells-group/ledger-intake/pkg/anthropic"
)

// matcherConcurrency bounds the parallel identifier lookups of one match.
const matcherConcurrency = 4

// intakeEnv holds the store, clients and processor used by the serve and
// process commands.
type intakeEnv struct {
	Store     *store.PostgresStore
	Processor *document.Processor

	closers []func()
}

// Close releases everything initIntake opened, newest first.
func (e *intakeEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func (e *intakeEnv) onClose(f func()) { e.closers = append(e.closers, f) }

// initIntake connects to Postgres, object storage, Redis and the configured
// vision providers and wires the document processor. Callers should defer
// env.Close().
func initIntake(ctx context.Context, mode string) (*intakeEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, db.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, err
	}
	env := &intakeEnv{Store: st}

	blobs, err := initBlobs(ctx, env)
	if err != nil {
		env.Close()
		return nil, err
	}

	registry, err := initProviders(ctx, env)
	if err != nil {
		env.Close()
		return nil, err
	}

	rdb := initRedis(env)
	limiter, err := newLimiter(cfg.RateLimit, rdb)
	if err != nil {
		env.Close()
		return nil, err
	}

	var locker attribution.Locker
	if rdb != nil {
		locker = lock.NewRedis(rdb, cfg.Redis.LockTTL(), cfg.Redis.LockWait())
	}

	tenants := tenant.NewPostgresStore(st.Pool())
	engine := attribution.NewEngine(cfg.Attribution, tenant.NewMatcher(tenants, matcherConcurrency), tenants, locker)

	env.Processor = document.NewProcessor(document.Deps{
		Documents:  st,
		Ledger:     st,
		Settings:   st,
		Usage:      st,
		Blobs:      blobs,
		Extractor:  registry,
		Attributor: engine,
		Limiter:    limiter,
		Costs:      cost.NewCalculator(cost.DefaultRates().With(cfg.Pricing)),
	})

	zap.L().Info("intake environment ready",
		zap.String("blob_backend", cfg.Blob.Backend),
		zap.String("ratelimit_backend", cfg.RateLimit.Backend),
		zap.Strings("providers", registry.Names()),
		zap.Bool("creation_lock", locker != nil),
	)
	return env, nil
}

func initBlobs(ctx context.Context, env *intakeEnv) (blob.Downloader, error) {
	maxBytes := cfg.Processing.MaxFileBytes
	switch cfg.Blob.Backend {
	case "gcs":
		var creds []byte
		if path := cfg.Blob.GCS.CredentialsFile; path != "" {
			b, err := os.ReadFile(path)
			if err != nil {
				return nil, eris.Wrap(err, "read gcs credentials")
			}
			creds = b
		}
		g, err := blob.NewGCS(ctx, cfg.Blob.Bucket, string(creds), maxBytes)
		if err != nil {
			return nil, err
		}
		env.onClose(func() { _ = g.Close() })
		return g, nil
	case "minio":
		m := cfg.Blob.Minio
		mc, err := blob.NewMinio(ctx, blob.MinioConfig{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Bucket:    cfg.Blob.Bucket,
			UseSSL:    m.UseSSL,
		}, maxBytes)
		if err != nil {
			return nil, err
		}
		return mc, nil
	default:
		return nil, eris.Errorf("unsupported blob backend: %s", cfg.Blob.Backend)
	}
}

// initProviders registers an adapter for every provider with an API key.
func initProviders(ctx context.Context, env *intakeEnv) (*provider.Registry, error) {
	p := cfg.Providers
	registry := provider.NewRegistry(p.Retry, p.Circuit)

	if p.Anthropic.APIKey != "" {
		registry.Register(provider.NewAnthropic(anthropicpkg.NewClient(p.Anthropic.APIKey), p.Anthropic.Model, int64(p.MaxTokens)))
	}
	if p.OpenAI.APIKey != "" {
		registry.Register(provider.NewOpenAI("openai", provider.NewOpenAIClient(p.OpenAI.APIKey, p.OpenAI.BaseURL), p.OpenAI.Model, p.MaxTokens))
	}
	if p.Gemini.APIKey != "" {
		gc, err := provider.NewGeminiClient(ctx, p.Gemini.APIKey)
		if err != nil {
			return nil, err
		}
		env.onClose(func() { _ = gc.Close() })
		registry.Register(provider.NewGemini(gc, p.Gemini.Model))
	}
	return registry, nil
}

func initRedis(env *intakeEnv) redis.UniversalClient {
	if cfg.Redis.Addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	env.onClose(func() { _ = rdb.Close() })
	return rdb
}

// newLimiter builds the per-tenant limiter named by rc.Backend.
func newLimiter(rc config.RateLimitConfig, rdb redis.UniversalClient) (ratelimit.Limiter, error) {
	switch rc.Backend {
	case "", "none":
		return ratelimit.None{}, nil
	case "local":
		return ratelimit.NewLocal(rc.Limits), nil
	case "redis":
		if rdb == nil {
			return nil, eris.New("ratelimit backend redis needs redis.addr")
		}
		return ratelimit.NewRedis(ratelimit.NewRedisCounter(rdb), rc.Limits), nil
	default:
		return nil, eris.Errorf("unsupported ratelimit backend: %s", rc.Backend)
	}
}
