package main

import (
	"errors"
	"fmt"

	"iganalyzer/internal/worker"
	"iganalyzer/pkg/analyzer"
	"iganalyzer/pkg/auth"
	"iganalyzer/pkg/config"
	"iganalyzer/pkg/instagram"
	"iganalyzer/pkg/logger"
	"iganalyzer/pkg/ratelimit"
	"iganalyzer/pkg/retry"
	"iganalyzer/pkg/session"
	"iganalyzer/pkg/storage"
)

// app holds the wired components shared by every command
type app struct {
	cfg       *config.Config
	log       logger.Logger
	snapshots session.SnapshotStore
	media     *storage.Manager
	sessions  *session.Store
	client    *instagram.Client
	pool      *worker.Pool
	runner    *analyzer.Runner
	service   *analyzer.Service
}

func openSnapshots(cfg *config.SessionConfig) (session.SnapshotStore, error) {
	switch cfg.Backend {
	case "sqlite":
		return session.OpenSQLite(cfg.SQLitePath)
	case "file", "":
		return session.NewFileSnapshots(cfg.Directory)
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

// newApp wires storage, the upstream client and the job service. creds may
// be nil for anonymous upstream access.
func newApp(cfg *config.Config, log logger.Logger, creds *auth.Credentials) (*app, error) {
	snapshots, err := openSnapshots(&cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("failed to open session snapshots: %w", err)
	}
	media, err := storage.NewManager(cfg.Media.Directory, log)
	if err != nil {
		snapshots.Close()
		return nil, err
	}
	sessions := session.NewStore(snapshots, media, cfg.Session.TTL, session.WithLogger(log))

	client := instagram.NewClient(cfg.Instagram.RequestTimeout, log)
	client.SetLimiter(ratelimit.PerMinute(cfg.RateLimit.RequestsPerMinute))
	if cfg.Instagram.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.Instagram.UserAgent)
	}
	if creds != nil {
		client.SetSession(creds.SessionID, creds.CSRFToken)
		if creds.UserAgent != "" {
			client.SetHeader("User-Agent", creds.UserAgent)
		}
	}

	var pacer analyzer.Pacer
	if cfg.Jobs.PaceMax > 0 {
		pacer = ratelimit.NewJitter(cfg.Jobs.PaceMin, cfg.Jobs.PaceMax)
	}
	runner := analyzer.NewRunner(sessions, client, media, analyzer.Options{
		PostLimit:        cfg.Jobs.PostLimit,
		StoryLimit:       cfg.Jobs.StoryLimit,
		MaxDownloadBytes: cfg.Media.MaxDownloadBytes,
		DownloadTimeout:  cfg.Media.DownloadTimeout,
		Retry:            retry.FromConfig(cfg.Retry, log),
		Pacer:            pacer,
	}, log)

	pool := worker.NewPool(cfg.Jobs.Workers, cfg.Jobs.QueueSize, log)

	return &app{
		cfg:       cfg,
		log:       log,
		snapshots: snapshots,
		media:     media,
		sessions:  sessions,
		client:    client,
		pool:      pool,
		runner:    runner,
		service:   analyzer.NewService(sessions, runner, pool, log),
	}, nil
}

// Close stops the pool and releases the snapshot backend
func (a *app) Close() error {
	a.pool.Stop()
	return a.snapshots.Close()
}

// resolveCredentials finds upstream cookies. A broken credential store is
// logged and treated as anonymous access unless an account was named.
func resolveCredentials(cfg *config.Config, log logger.Logger, account string) (*auth.Credentials, error) {
	mgr, err := auth.NewDefaultManager("", log)
	if err != nil {
		if account != "" {
			return nil, err
		}
		log.WithError(err).Warn("Credential store unavailable, continuing without login")
		return auth.NewManager(log).Resolve(&cfg.Instagram, "")
	}
	creds, err := mgr.Resolve(&cfg.Instagram, account)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, fmt.Errorf("no stored credentials for %q, run 'iganalyzer auth login %s'", account, account)
		}
		return nil, err
	}
	if creds == nil {
		log.Info("No Instagram credentials configured, using anonymous requests")
	} else {
		log.InfoWithFields("Using Instagram credentials", map[string]interface{}{
			"account": creds.Username,
		})
	}
	return creds, nil
}
