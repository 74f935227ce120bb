package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/tonimelisma/ftpsync/internal/config"
	"github.com/tonimelisma/ftpsync/internal/ftpclient"
	"github.com/tonimelisma/ftpsync/internal/journal"
	isync "github.com/tonimelisma/ftpsync/internal/sync"
)

// syncSession bundles the engine with the resources a command opened for it.
type syncSession struct {
	engine  *isync.Engine
	journal *journal.Journal // nil when the journal is disabled
	logger  *slog.Logger
}

// newSyncSession builds an engine for the resolved config. Queued batches
// run under ctx. Extra reporters receive batch and tree reports alongside
// the journal.
func newSyncSession(ctx context.Context, cc *CLIContext, extra ...isync.Reporter) (*syncSession, error) {
	cfg := cc.Cfg
	s := &syncSession{logger: cc.Logger}

	reporters := append([]isync.Reporter(nil), extra...)

	if cfg.Journal.Enabled {
		j, err := journal.Open(ctx, cfg.JournalPath, cc.Logger)
		if err != nil {
			return nil, err
		}

		s.journal = j
		reporters = append(reporters, j)
	}

	engine, err := isync.NewEngine(ctx, &isync.EngineConfig{
		Dial:          newDialFunc(cfg, cc.Logger),
		LocalFs:       afero.NewBasePathFs(afero.NewOsFs(), cfg.LocalRoot),
		RemoteRoot:    cfg.Sync.RemoteRoot,
		Debounce:      cfg.Debounce,
		BatchTimeout:  cfg.BatchTimeout,
		CompareTime:   isync.CompareTime(cfg.Sync.CompareTime),
		PreserveTimes: cfg.Sync.PreserveTimes,
		Bandwidth:     cfg.BandwidthLimit,
		Reporters:     reporters,
		Logger:        cc.Logger,
	})
	if err != nil {
		return nil, errors.Join(err, s.closeJournal())
	}

	s.engine = engine

	return s, nil
}

// newDialFunc adapts the FTP dialer to the engine's DialFunc.
func newDialFunc(cfg *config.Resolved, logger *slog.Logger) isync.DialFunc {
	dialer := ftpclient.NewDialer(ftpclient.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		User:           cfg.Server.User,
		Password:       cfg.Server.Password,
		ConnectTimeout: cfg.ConnectTimeout,
	}, logger)

	return func(ctx context.Context) (isync.Conn, error) {
		conn, err := dialer.Dial(ctx)
		if err != nil {
			// A nil *ftpclient.Conn must not become a non-nil interface.
			return nil, err
		}

		return conn, nil
	}
}

// Close closes the FTP session and the journal.
func (s *syncSession) Close() error {
	return errors.Join(s.engine.Close(), s.closeJournal())
}

func (s *syncSession) closeJournal() error {
	if s.journal == nil {
		return nil
	}

	return s.journal.Close()
}
