package main

import (
	"errors"
	"fmt"
	"log/slog"

	"babil/internal/audio"
	"babil/internal/config"
	"babil/internal/database"
	"babil/internal/identity"
	"babil/internal/markup"
	"babil/internal/page"
	"babil/internal/wiki"
)

// app holds the storage shared by every command.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	pages      page.Repository
	identities identity.Repository
	closers    []func() error
}

// openApp attaches the configured storage backend.
func openApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		db, err := database.New(cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(db); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("database migrated", "dsn", cfg.Storage.DSN)
		a.pages = page.NewSQLRepository(db)
		a.identities = identity.NewSQLRepository(db)
		a.closers = append(a.closers, db.Close)

	case config.BackendBadger:
		db, err := database.OpenBadger(database.BadgerConfig{Dir: cfg.Storage.BadgerDir, Logger: logger})
		if err != nil {
			return nil, err
		}
		a.pages = page.NewBadgerRepository(db)
		a.identities = identity.NewBadgerRepository(db)
		a.closers = append(a.closers, db.Close)

	case config.BackendMemory:
		logger.Warn("using the memory backend, nothing will be persisted")
		a.pages = page.NewMemoryRepository()
		a.identities = identity.NewMemoryRepository()

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrBackendUnknown, cfg.Storage.Backend)
	}
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func (a *app) gate() *identity.Gate {
	return identity.NewGate(a.identities, a.cfg.Identity.HashTokens)
}

// audioRenderer builds the configured synthesizer. It returns nil when audio
// is disabled.
func (a *app) audioRenderer() *audio.Renderer {
	var synth audio.Synthesizer
	switch a.cfg.Audio.Engine {
	case config.EngineEspeak:
		synth = audio.Espeak{Binary: a.cfg.Audio.Binary, Voice: a.cfg.Audio.Voice}
	case config.EngineTone:
		synth = audio.Tone{}
	default:
		return nil
	}
	return audio.NewRenderer(synth, audio.NewFileSink(a.cfg.Audio.Dir), a.cfg.Audio.Timeout)
}

func (a *app) engine(scheduler audio.Scheduler) *wiki.Engine {
	return wiki.New(a.pages, markup.New(), scheduler, a.logger)
}
