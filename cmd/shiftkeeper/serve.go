package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/shiftkeeper/pkg/api"
	"github.com/cuemby/shiftkeeper/pkg/events"
	"github.com/cuemby/shiftkeeper/pkg/log"
	"github.com/cuemby/shiftkeeper/pkg/metrics"
	"github.com/cuemby/shiftkeeper/pkg/reconciler"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reconciliation daemon and HTTP API",
	Long: `Run the reconciler on its configured interval and serve the HTTP API.

The first tick runs immediately, so a daemon that was down catches up on the
shifts it missed (up to the catch-up lookback) before serving traffic.`,
	RunE: runServe,
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run a single reconciliation tick against local storage",
	Long: `Open the configured storage directly, run one reconciliation tick and
print its summary. Use this from cron instead of running the daemon, or with
--now to replay a past instant.

Do not run it against a bolt data dir while the daemon holds it open.`,
	RunE: runTick,
}

func init() {
	addDaemonFlags(serveCmd)
	serveCmd.Flags().String("api-addr", "", "HTTP API listen address (overrides config)")

	addDaemonFlags(tickCmd)
	tickCmd.Flags().String("now", "", "Evaluate the tick at this RFC3339 instant instead of the current time")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tickCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := log.WithComponent("serve")
	metrics.SetVersion(Version)

	resolver, err := cfg.Resolver()
	if err != nil {
		return err
	}

	store, err := cfg.OpenStore()
	if err != nil {
		metrics.RegisterComponent(metrics.ComponentStorage, false, err.Error())
		return err
	}
	defer store.Close()
	metrics.RegisterComponent(metrics.ComponentStorage, true, cfg.Storage.Driver)

	logger.Info().
		Str("version", Version).
		Str("timezone", cfg.Timezone).
		Str("storage", cfg.Storage.Driver).
		Str("data_dir", cfg.Storage.DataDir).
		Msg("Starting shiftkeeper")

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	go logEvents(sub)

	rec := reconciler.NewReconciler(store, resolver, cfg.ReconcilerConfig(), reconciler.WithBroker(broker))
	rec.Start()
	defer rec.Stop()

	collector := metrics.NewCollector(store)
	collector.Start()
	defer collector.Stop()

	errCh := make(chan error, 2)
	servers := []*api.Server{
		api.NewServer(store, rec, resolver, broker, api.Options{CORSOrigins: cfg.API.CORSOrigins}),
	}
	go func() { errCh <- servers[0].Start(cfg.API.Addr) }()

	if cfg.API.ReadOnlyAddr != "" {
		ro := api.NewServer(store, rec, resolver, broker, api.Options{
			CORSOrigins: cfg.API.CORSOrigins,
			ReadOnly:    true,
		})
		servers = append(servers, ro)
		go func() { errCh <- ro.Start(cfg.API.ReadOnlyAddr) }()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case serveErr = <-errCh:
		logger.Error().Err(serveErr).Msg("API server stopped")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, s := range servers {
		if err := s.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("API server did not shut down cleanly")
		}
	}

	logger.Info().Msg("Shutdown complete")
	return serveErr
}

func logEvents(sub events.Subscriber) {
	logger := log.WithComponent("events")
	for event := range sub {
		e := logger.Debug().
			Str("event_id", event.ID).
			Str("type", string(event.Type))
		for k, v := range event.Metadata {
			e = e.Str(k, v)
		}
		e.Msg(event.Message)
	}
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func runTick(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var opts []reconciler.Option
	if v, _ := cmd.Flags().GetString("now"); v != "" {
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("invalid --now: %w", err)
		}
		opts = append(opts, reconciler.WithClock(fixedClock(at)))
	}

	resolver, err := cfg.Resolver()
	if err != nil {
		return err
	}
	store, err := cfg.OpenStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rec := reconciler.NewReconciler(store, resolver, cfg.ReconcilerConfig(), opts...)
	summary, err := rec.Tick(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
