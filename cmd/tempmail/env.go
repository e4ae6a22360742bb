package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/nhle/tempmail/internal/credential"
	"github.com/nhle/tempmail/internal/mailbox"
	"github.com/nhle/tempmail/internal/mailtm"
	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/session"
	"github.com/nhle/tempmail/internal/store"
)

// env bundles everything a command needs.
type env struct {
	cfg     *model.AppConfig
	svc     *mailbox.Service
	closers []io.Closer
}

func (e *env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i].Close())
	}
	return errors.Join(errs...)
}

// setup loads the configuration, installs the logger and opens the
// session backend.
func setup(cmd *cli.Command) (*env, error) {
	cfg, err := model.LoadConfig(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg}

	logFile, err := openLog(cfg.Log)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, logFile)

	kv, err := openBackend(cfg.Session)
	if err != nil {
		_ = e.Close()
		return nil, err
	}
	if c, ok := kv.(io.Closer); ok {
		e.closers = append(e.closers, c)
	}

	client := mailtm.NewClient(cfg.Provider.BaseURL, cfg.RequestTimeout())
	e.svc = mailbox.NewService(client, session.NewManager(kv))

	slog.Debug("environment ready",
		"provider", cfg.Provider.BaseURL,
		"backend", cfg.Session.Backend,
	)
	return e, nil
}

// openLog points the default slog logger at the configured file. The
// terminal belongs to the UI, so nothing is logged to stderr.
func openLog(cfg model.LogConfig) (*os.File, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", cfg.File, err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})))
	return f, nil
}

func openBackend(cfg model.SessionConfig) (store.KV, error) {
	if cfg.Backend == model.BackendKeyring {
		return credential.Open()
	}
	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening session database: %w", err)
	}
	return db, nil
}
