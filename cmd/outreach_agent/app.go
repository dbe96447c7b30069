package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonathan/outreach-agent/internal/config"
	"github.com/jonathan/outreach-agent/internal/crawling"
	"github.com/jonathan/outreach-agent/internal/db"
	"github.com/jonathan/outreach-agent/internal/dispatch"
	"github.com/jonathan/outreach-agent/internal/fetch"
	"github.com/jonathan/outreach-agent/internal/logging"
	"github.com/jonathan/outreach-agent/internal/outreach"
	"github.com/jonathan/outreach-agent/internal/scan"
	"github.com/jonathan/outreach-agent/internal/validation"
	"github.com/jonathan/outreach-agent/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds the wired dependencies shared by every command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *db.DB
	redis   *redis.Client
	pool    *worker.Pool
	service *outreach.Service
}

// withApp builds the application for one command run and tears it down afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set database_url in the config file or DATABASE_URL")
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, db: database}

	if cfg.RedisURL != "" {
		a.redis, err = newRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// wire builds the scan and dispatch stacks over the connected stores.
func (a *app) wire(ctx context.Context) error {
	var rdb redis.Cmdable
	if a.redis != nil {
		rdb = a.redis
	}

	sender, err := buildSender(ctx, a.cfg.Mail)
	if err != nil {
		return err
	}
	httpFetcher, browserFetcher := buildFetchers(a.cfg.Crawl, rdb, a.logger)

	scans, err := scan.NewManager(scan.Options{
		Store:     a.db,
		Fetcher:   httpFetcher,
		Browser:   browserFetcher,
		Validator: buildValidator(a.cfg.Validation, rdb, a.logger),
		Logger:    a.logger,
	})
	if err != nil {
		return err
	}

	dispatcher, err := dispatch.NewDispatcher(dispatch.Options{
		Store:   a.db,
		Sender:  sender,
		Locks:   buildLocks(rdb, a.db),
		Logger:  a.logger,
		Workers: a.cfg.Mail.SendWorkers,
	})
	if err != nil {
		return err
	}

	a.pool = worker.NewPool(worker.Config{
		Workers:   a.cfg.Workers.ScanWorkers,
		QueueSize: a.cfg.Workers.QueueSize,
	}, a.logger)

	a.service, err = outreach.NewService(outreach.Options{
		Store:      a.db,
		Scans:      scans,
		Dispatcher: dispatcher,
		Pool:       a.pool,
		Logger:     a.logger,
		SendDelay:  a.cfg.Mail.SendDelay(),
	})
	return err
}

// Close stops background work and releases connections.
func (a *app) Close() {
	if a.pool != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := a.pool.Shutdown(ctx); err != nil {
			a.logger.Warn("worker pool did not drain", zap.Error(err))
		}
		cancel()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	_ = a.logger.Sync()
}

func newRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// buildFetchers returns the plain and the browser-backed page fetchers. Both sit
// behind the same page cache: Redis when configured, in-process memory otherwise.
func buildFetchers(cfg config.CrawlConfig, rdb redis.Cmdable, logger *zap.Logger) (crawling.Fetcher, crawling.Fetcher) {
	opts := fetch.DefaultOptions()
	opts.Timeout = cfg.Timeout()
	opts.Delay = cfg.Delay()
	if cfg.UserAgent != "" {
		opts.UserAgents = []string{cfg.UserAgent}
	}
	base := fetch.NewFetcher(opts)

	var cache fetch.PageCache
	if rdb != nil {
		cache = fetch.NewRedisPageCache(rdb)
	} else {
		cache = fetch.NewMemoryPageCache()
	}
	cacheCfg := fetch.DefaultCachedFetcherConfig()
	cacheCfg.CacheTTL = cfg.PageCacheTTL()
	cacheCfg.SkipCache = cfg.PageCacheTTL() <= 0

	plain := fetch.NewCachedFetcher(base, cache, cacheCfg, logger)
	browser := fetch.NewCachedFetcher(fetch.NewBrowserFetcher(base, logger), cache, cacheCfg, logger)
	if cfg.UseBrowser {
		return browser, browser
	}
	return plain, browser
}

func buildValidator(cfg config.ValidationConfig, rdb redis.Cmdable, logger *zap.Logger) *validation.Validator {
	var cache validation.MXCache
	if rdb != nil {
		cache = validation.NewRedisCache(rdb, cfg.MXCacheTTL())
	} else {
		cache = validation.NewMemoryCache(cfg.MXCacheTTL())
	}
	mx := validation.NewDNSChecker(nil, cache, 0)

	var prober validation.Prober
	if cfg.SMTPProbe {
		prober = validation.NewSMTPProber(nil, validation.ProberOptions{
			HeloName: cfg.HeloName,
			From:     cfg.ProbeFrom,
		})
	}

	policy := validation.DefaultPolicy()
	policy.AssumeValidOnLookupError = cfg.AssumeValid()
	if cfg.MinQualityScore > 0 {
		policy.MinQualityScore = cfg.MinQualityScore
	}
	return validation.NewValidator(policy, mx, prober, logger)
}

func buildSender(ctx context.Context, cfg config.MailConfig) (dispatch.Sender, error) {
	switch cfg.Transport {
	case config.TransportSES:
		return dispatch.NewSESSender(ctx, cfg.SESRegion, cfg.SESConfigurationSet)
	case config.TransportSMTP, "":
		if cfg.SMTPHost == "" {
			return nil, errors.New("smtp_host is required for the smtp transport: set it in the config file or SMTP_HOST")
		}
		return dispatch.NewSMTPSender(dispatch.SMTPConfig{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			Username:   cfg.SMTPUsername,
			Password:   cfg.SMTPPassword,
			RequireTLS: cfg.RequireTLS,
		}), nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.Transport)
	}
}

// buildLocks keeps one dispatch per campaign across processes: Redis locks when Redis
// is configured, Postgres advisory locks otherwise.
func buildLocks(rdb redis.Cmdable, database *db.DB) dispatch.LockFactory {
	if rdb != nil {
		return dispatch.RedisLocks(rdb, dispatch.DefaultLockTTL)
	}
	if database != nil {
		return dispatch.PGAdvisoryLocks(database.Pool())
	}
	return dispatch.NewLocalLocks().Factory()
}
