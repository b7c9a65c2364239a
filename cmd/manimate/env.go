package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"manimate/internal/api"
	"manimate/internal/chat"
	"manimate/internal/config"
	"manimate/internal/history"
	"manimate/internal/poller"
	"manimate/internal/session"
)

// runtimeEnv bundles the wired client components for one CLI invocation.
type runtimeEnv struct {
	Config       *config.Config
	Logger       zerolog.Logger
	Session      *session.Manager
	Jobs         *api.JobClient
	Poller       *poller.Poller
	Orchestrator *chat.Orchestrator
	History      *history.Store
}

func (r *runtimeEnv) Close() {
	if r.History != nil {
		if err := r.History.Close(); err != nil {
			r.Logger.Warn().Err(err).Msg("could not close history store")
		}
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if os.Getenv("MANIMATE_DEBUG") != "" {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// prepareRuntimeEnv loads configuration and wires the session manager, the
// API clients, the poller and the orchestrator together.
func prepareRuntimeEnv(ctx context.Context) (*runtimeEnv, error) {
	logger := newLogger()

	cfgManager, err := config.NewManager()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize config manager: %w", err)
	}
	cfg, err := cfgManager.Load()
	if err != nil {
		logger.Warn().Err(err).Msg("could not load config, using defaults")
		cfg = &config.Config{}
	}
	cfg.ApplyEnv()

	baseURL := cfg.EffectiveBaseURL()
	httpc := &http.Client{Timeout: cfg.EffectiveRequestTimeout()}

	authClient := api.NewAuthClient(baseURL,
		api.WithHTTPClient(httpc),
		api.WithLogger(logger))

	keys := session.NewKeystore(cfgManager.Dir())
	sess := session.NewManager(authClient, keys, logger)

	jobs := api.NewJobClient(baseURL, sess,
		api.WithHTTPClient(httpc),
		api.WithLogger(logger))

	p := poller.New(jobs,
		poller.WithInterval(cfg.EffectivePollInterval()),
		poller.WithLogger(logger))

	// The history cache is a convenience; the CLI works without it.
	var hist *history.Store
	dbPath := filepath.Join(cfgManager.Dir(), "history.db")
	if err := os.MkdirAll(cfgManager.Dir(), 0755); err != nil {
		logger.Warn().Err(err).Msg("could not create config dir, history disabled")
	} else if hist, err = history.NewStore(ctx, dbPath); err != nil {
		logger.Warn().Err(err).Msg("could not open history cache, history disabled")
		hist = nil
	}

	orchOpts := []chat.Option{chat.WithLogger(logger)}
	if hist != nil {
		orchOpts = append(orchOpts, chat.WithHistory(hist))
	}
	orch := chat.New(sess, jobs, p, orchOpts...)

	return &runtimeEnv{
		Config:       cfg,
		Logger:       logger,
		Session:      sess,
		Jobs:         jobs,
		Poller:       p,
		Orchestrator: orch,
		History:      hist,
	}, nil
}

// requireSession restores the persisted session and fails when none is
// usable.
func (r *runtimeEnv) requireSession(ctx context.Context) error {
	if r.Session.Restore(ctx) {
		return nil
	}
	return fmt.Errorf("not logged in (run `manimate login` first)")
}
