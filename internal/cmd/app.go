package cmd

import (
	"path/filepath"

	"github.com/lodestar-dev/lodestar/internal/config"
	"github.com/lodestar-dev/lodestar/internal/logging"
	"github.com/lodestar-dev/lodestar/internal/mode"
	"github.com/lodestar-dev/lodestar/internal/session"
)

// app bundles the wired collaborators behind one command invocation. Every
// dependency is constructed here and passed down explicitly; nothing is a
// process-wide singleton.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	store  *session.Store
}

// newApp loads configuration and wires the logger and the session store
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	stateDir := cfg.Storage.ResolveStateDir()

	logger := logging.NopLogger()
	if cfg.Logging.Enabled {
		logger, err = logging.NewLogger(stateDir, cfg.Logging.Level, logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		})
		if err != nil {
			return nil, err
		}
	}

	store, err := session.NewStore(session.Options{
		LedgerPath: filepath.Join(stateDir, session.LedgerFileName),
		Debounce:   cfg.Storage.Debounce(),
		IDPrefix:   cfg.Storage.SessionPrefix,
		Logger:     logger,
	})
	if err != nil {
		logger.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, store: store}, nil
}

// selector wires the mode selector against the store and the built-in
// heuristic recommender
func (a *app) selector() (*mode.Selector, error) {
	return mode.NewSelector(
		a.store,
		mode.Mode(a.cfg.Mode.Default),
		mode.NewHeuristic(a.cfg.Mode.RemoteThreshold),
		a.logger,
	)
}

// ledgerPath returns the canonical ledger file path
func (a *app) ledgerPath() string {
	return a.store.LedgerPath()
}

// close flushes the store and the logger
func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("store close failed", "error", err)
	}
	a.logger.Close()
}
