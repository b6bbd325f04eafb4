package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/coeftune/internal/channel"
	"github.com/Iron-Ham/coeftune/internal/config"
	"github.com/Iron-Ham/coeftune/internal/coordinator"
	"github.com/Iron-Ham/coeftune/internal/event"
	"github.com/Iron-Ham/coeftune/internal/logging"
	"github.com/Iron-Ham/coeftune/internal/metrics"
	"github.com/Iron-Ham/coeftune/internal/statusapi"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tuning coordinator",
	Long: `Run the tuning coordinator until interrupted.

The control loop, the status API and the config file watcher run together;
SIGINT or SIGTERM stops all three and flushes the shot log.`,
	RunE: runRun,
}

var runNoWatch bool

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runNoWatch, "no-watch", false, "Do not reload the config file when it changes")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return config.ValidationErrors(errs)
	}

	logger, err := logging.NewLogger(cfg.Logging.Directory, cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	store, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Channel.Backend, err)
	}
	opts := channel.OptionsFromConfig(cfg.Channel)
	opts.Logger = logger
	ch, err := channel.New(store, opts)
	if err != nil {
		_ = store.Close()
		return err
	}

	bus := event.NewBus(func(eventType string, recovered any, stack []byte) {
		logger.Error("event handler panicked", "event", eventType, "panic", recovered, "stack", string(stack))
	})
	metrics.Subscribe(bus)

	coord, err := coordinator.New(cfg, coordinator.Deps{Channel: ch, Bus: bus, Logger: logger})
	if err != nil {
		_ = ch.Close()
		return err
	}
	defer coord.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !ch.Connect(ctx) {
		logger.Warn("channel not reachable yet, will retry", "address", ch.Address(), "error", ch.LastError())
	}

	shots, history := coord.JournalPaths()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session %s\n", coord.Session())
	fmt.Fprintf(out, "  channel: %s (%s)\n", ch.Address(), cfg.Channel.Backend)
	fmt.Fprintf(out, "  shots:   %s\n", shots)
	fmt.Fprintf(out, "  history: %s\n", history)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coord.Run(gctx) })

	if addr := cfg.StatusAPI.ListenAddr; addr != "" {
		srv := statusapi.New(addr, coord.Status, logger)
		g.Go(func() error { return srv.Run(gctx) })
		fmt.Fprintf(out, "  status:  http://%s/status\n", addr)
	}

	if path != "" && !runNoWatch {
		w, err := config.NewWatcher(path, coord.ApplyConfig, func(err error) {
			logger.Warn("config reload rejected", "path", path, "error", err)
		})
		if err != nil {
			logger.Warn("config hot reload unavailable", "path", path, "error", err)
		} else {
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	return g.Wait()
}
