package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/config"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/db"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/service"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store/file"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store/memory"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store/sqlite"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

// app is the loaded ledger every command works against.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	ledger  store.Ledger
	engine  *service.Engine
	reports *service.Reports
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	lvl, _ := cfg.SlogLevel()
	hopts := &slog.HandlerOptions{Level: lvl}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// openApp loads configuration, opens the configured backend and rebuilds
// the engine from it. Failures are reported through f and come back as
// ExitCommandError.
func (o *RootOptions) openApp(cmd *cobra.Command, f *OutputFormatter) (*app, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())
	ctx := cmd.Context()

	ledger, err := openLedger(ctx, cfg)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeStorage, "cannot open ledger storage", err)
	}

	if cfg.IsDev() && len(cfg.SeedIdentities) > 0 {
		if err := seedIdentities(ctx, ledger, cfg.SeedIdentities); err != nil {
			ledger.Close()
			return nil, f.Fail(ExitCommandError, ErrCodeConfig, "cannot seed identities", err)
		}
	}

	hasher, err := types.NewCardHasher(cfg.CardHashKey)
	if err != nil {
		ledger.Close()
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, "invalid card hash key", err)
	}
	loc, _ := cfg.Location()

	engine := service.NewEngine(ledger, service.Options{
		Cooldown:      cfg.Cooldown.Std(),
		WriteAttempts: cfg.WriteAttempts,
		Hasher:        hasher,
		Logger:        logger,
	})
	if err := engine.Load(ctx); err != nil {
		ledger.Close()
		return nil, f.Fail(ExitCommandError, ErrCodeStorage, "cannot load ledger", err)
	}
	f.VerboseLog("%s ledger loaded: %d identities, %d inside",
		cfg.Backend, engine.Directory().Len(), len(engine.Occupancy()))

	return &app{
		cfg:     cfg,
		log:     logger,
		ledger:  ledger,
		engine:  engine,
		reports: service.NewReports(engine, ledger, loc),
	}, nil
}

// Close flushes pending snapshot rows and closes the store.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if err := a.engine.Flush(ctx); err != nil {
		a.log.Error("snapshot flush failed on close", "pending", a.engine.Pending(), "err", err)
		errs = append(errs, err)
	}
	if err := a.ledger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func openLedger(ctx context.Context, cfg config.Config) (store.Ledger, error) {
	switch cfg.Backend {
	case "sqlite":
		return sqlite.Open(ctx, db.Config{Path: cfg.DBPath})
	case "file":
		format, err := file.ParseFormat(cfg.LogFormat)
		if err != nil {
			return nil, err
		}
		return file.Open(cfg.DataDir, format)
	case "memory":
		return memory.New(), nil
	}
	return nil, fmt.Errorf("%w: backend %q", config.ErrInvalid, cfg.Backend)
}

// seedIdentities inserts dev identities, leaving existing cards alone.
func seedIdentities(ctx context.Context, ledger store.Ledger, entries []string) error {
	seeds, err := db.ParseSeedIdentities(entries)
	if err != nil {
		return err
	}

	if sq, ok := ledger.(*sqlite.Store); ok {
		return db.SeedDev(ctx, sq.DB(), seeds)
	}

	for _, s := range seeds {
		card, err := types.ParseCardID(s.CardID)
		if err != nil {
			return err
		}
		err = ledger.InsertIdentity(ctx, types.Identity{
			CardID:       card,
			DisplayName:  s.DisplayName,
			ExternalCode: s.ExternalCode,
			TypeCode:     types.TypeEmployee,
		})
		if err != nil && !errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("seed identity %s: %w", s.CardID, err)
		}
	}
	return nil
}
