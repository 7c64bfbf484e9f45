package cli

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/config"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/httpapi"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/service"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/store"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/reader"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/rpc"
)

type runOptions struct {
	Device   string
	HTTPAddr string
	GRPCAddr string
}

func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	ro := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process card reads until interrupted",
		Long: `Reads one card id per line from the reader device (or stdin) and
records each accepted read. The HTTP bridge and the gRPC health service
start alongside when their addresses are set.

When the reader stream ends the command keeps serving the HTTP bridge
until it receives SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedger(rootOpts, ro, cmd)
		},
	}

	cmd.Flags().StringVar(&ro.Device, "device", "", "reader device or replay file (default stdin)")
	cmd.Flags().StringVar(&ro.HTTPAddr, "http-addr", "", "HTTP bridge listen address, or off")
	cmd.Flags().StringVar(&ro.GRPCAddr, "grpc-addr", "", "gRPC health listen address, or off")

	return cmd
}

func runLedger(rootOpts *RootOptions, ro *runOptions, cmd *cobra.Command) error {
	f := rootOpts.formatter(cmd)
	a, err := rootOpts.openApp(cmd, f)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("device") {
		a.cfg.ReaderDevice = ro.Device
	}
	if cmd.Flags().Changed("http-addr") {
		a.cfg.HTTPAddr = ro.HTTPAddr
	}
	if cmd.Flags().Changed("grpc-addr") {
		a.cfg.GRPCAddr = ro.GRPCAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Cleanup runs newest first, once, whatever path leaves this function.
	var cleanups []func()
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()
	cleanups = append(cleanups, func() {
		if err := a.Close(); err != nil {
			a.log.Error("close ledger", "err", err)
		}
	})

	if pr, ok := a.ledger.(store.Pruner); ok {
		pruner := service.NewRetentionPruner(pr, service.PrunerConfig{
			RetentionDays: a.cfg.EventRetentionDays,
			IntervalHours: a.cfg.PruneIntervalHours,
		}, a.log)
		pruner.Start(ctx)
		cleanups = append(cleanups, pruner.Stop)
	}

	if config.Enabled(a.cfg.GRPCAddr) {
		monitor := rpc.NewHealthMonitor(a.ledger, a.cfg.HealthInterval(), a.log)
		srv, err := rpc.Listen(a.cfg.GRPCAddr, monitor)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeConfig, "cannot listen for gRPC", err)
		}
		monitor.Start(ctx)
		go func() {
			a.log.Info("grpc health listening", "addr", srv.Addr().String())
			if err := srv.Serve(); err != nil {
				a.log.Error("grpc server error", "err", err)
			}
		}()
		cleanups = append(cleanups, monitor.Stop, srv.Stop)
	}

	httpOn := config.Enabled(a.cfg.HTTPAddr)
	if httpOn {
		srv := httpapi.NewServer(httpapi.Dependencies{
			Logger:    a.log,
			Addr:      a.cfg.HTTPAddr,
			Engine:    a.engine,
			Reports:   a.reports,
			RateLimit: a.cfg.RateLimitPerSec,
			RateBurst: a.cfg.RateBurst,
		})
		go func() {
			a.log.Info("http bridge listening", "addr", a.cfg.HTTPAddr)
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("http server error", "err", err)
				stop()
			}
		}()
		cleanups = append(cleanups, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}

	var in io.Reader = cmd.InOrStdin()
	if a.cfg.ReaderDevice != "" {
		fh, err := os.Open(a.cfg.ReaderDevice)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeConfig, "cannot open reader device", err)
		}
		cleanups = append(cleanups, func() { fh.Close() })
		in = fh
	}
	src := reader.NewLineSource(in, nil)
	cleanups = append(cleanups, func() { src.Close() })

	loc, _ := a.cfg.Location()
	presenter := NewPresenter(cmd.OutOrStdout(), rootOpts.Format, loc)

	a.log.Info("ledger running",
		"backend", a.cfg.Backend, "cooldown", a.cfg.Cooldown.Std(), "identities", a.engine.Directory().Len())

	if err := a.engine.Run(ctx, src, presenter.Present); err != nil {
		return f.Fail(ExitFailure, ErrCodeGeneric, "reader loop stopped", err)
	}

	if httpOn && ctx.Err() == nil {
		a.log.Info("reader stream ended, serving http bridge until interrupted")
		<-ctx.Done()
	}
	a.log.Info("shutting down", "pending_snapshots", a.engine.Pending())
	return nil
}
