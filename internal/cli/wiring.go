package cli

import (
	"context"
	"os"
	"strings"
	"time"

	"emsi-preparator/internal/app"
	"emsi-preparator/internal/config"
	"emsi-preparator/internal/gateway"
	"emsi-preparator/internal/infra/memory"
	pgarchive "emsi-preparator/internal/infra/postgres"
	redisstore "emsi-preparator/internal/infra/redis"
	"emsi-preparator/internal/report"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// deps are the collaborators every command is built from.
type deps struct {
	cfg        config.Config
	log        *logrus.Logger
	client     *gateway.Client
	identities app.IdentityStore
	history    app.HistoryRepository
	archive    *pgarchive.AttemptArchive
	reportOpts report.Options
	closers    []func()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// sessionOptions attaches the optional collaborators to a new quiz session.
func (d *deps) sessionOptions() []app.SessionOption {
	opts := []app.SessionOption{app.WithHistory(d.history)}
	if d.archive != nil {
		opts = append(opts, app.WithArchive(d.archive))
	}
	return opts
}

func (d *deps) identity(sessionID string) *app.IdentityProvider {
	return app.NewIdentityProvider(sessionID, d.identities, d.client, d.log)
}

func newLogger(cfg config.Config, levelFlag string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if strings.EqualFold(cfg.Log.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	raw := levelFlag
	if raw == "" {
		raw = cfg.Log.Level
	}
	level, err := logrus.ParseLevel(raw)
	if err != nil {
		level = logrus.WarnLevel
	}
	log.SetLevel(level)
	return log
}

// buildDeps loads config and connects the configured backends. Redis and
// Postgres are optional; without them identities and caches live in memory
// and no local archive is kept.
func buildDeps(ctx context.Context, opts *globalOptions) (*deps, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg, opts.logLevel)
	d := &deps{
		cfg: cfg,
		log: log,
		reportOpts: report.Options{
			LogoPath:  cfg.Report.LogoPath,
			AssetsDir: cfg.Report.AssetsDir,
		},
	}
	d.client = gateway.NewClient(cfg.API.BaseURL, config.TTLDuration(cfg.API.Timeout, 30*time.Second), log)

	var loader app.HistoryLoader = d.client
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, pool.Close)
		d.archive = pgarchive.NewAttemptArchive(pool)
		loader = app.NewFallbackLoader(d.client, d.archive, log)
	}

	historyTTL := config.TTLDuration(cfg.History.TTL, 2*time.Minute)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		d.closers = append(d.closers, func() { _ = client.Close() })
		d.identities = redisstore.NewIdentityStore(client, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))
		d.history = redisstore.NewHistoryRepository(client, loader, historyTTL)
	} else {
		log.Debug("redis not configured, identities are kept in memory")
		d.identities = memory.NewIdentityStore()
		d.history = memory.NewHistoryRepository(loader, historyTTL)
	}
	return d, nil
}
