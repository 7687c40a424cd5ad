package main

import (
	"fmt"
	"os"

	"github.com/cuemby/shiftkeeper/pkg/client"
	"github.com/cuemby/shiftkeeper/pkg/config"
	"github.com/cuemby/shiftkeeper/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shiftkeeper",
	Short: "Shiftkeeper - shift attendance reconciliation for makerspaces",
	Long: `Shiftkeeper turns door tap-ins and tap-outs into shift attendance.

The daemon (shiftkeeper serve) ticks once a minute, matching staffing sessions
against the shift roster and maintaining one attendance row per scheduled
user and occurrence. The remaining commands talk to a running daemon.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Shiftkeeper version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Shiftkeeper version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to shiftkeeper.yaml")
	rootCmd.PersistentFlags().String("env-file", ".env", "Path to a .env file with SHIFTKEEPER_* variables")
	rootCmd.PersistentFlags().String("addr", "127.0.0.1:8080", "Daemon API address for client commands")

	rootCmd.AddCommand(versionCmd)
}

// loadConfig layers command-line flags over the config file and environment
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	cfg, err := config.Load(path, envFile)
	if err != nil {
		return nil, err
	}

	overrides := map[string]*string{
		"data-dir":       &cfg.Storage.DataDir,
		"storage-driver": &cfg.Storage.Driver,
		"timezone":       &cfg.Timezone,
		"log-level":      &cfg.Log.Level,
		"api-addr":       &cfg.API.Addr,
	}
	for name, dst := range overrides {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			*dst = f.Value.String()
		}
	}
	if cmd.Flags().Changed("log-json") {
		cfg.Log.JSON, _ = cmd.Flags().GetBool("log-json")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	return cfg, nil
}

// addDaemonFlags registers the flags of commands that open storage directly
func addDaemonFlags(cmd *cobra.Command) {
	cmd.Flags().String("data-dir", "", "Data directory (overrides config)")
	cmd.Flags().String("storage-driver", "", "Storage driver: bolt or sqlite (overrides config)")
	cmd.Flags().String("timezone", "", "IANA timezone of the roster (overrides config)")
	cmd.Flags().String("log-level", "", "Log level: debug, info, warn, error")
	cmd.Flags().Bool("log-json", false, "Emit JSON logs")
}

func newClient(cmd *cobra.Command) (*client.Client, error) {
	addr, _ := cmd.Flags().GetString("addr")
	c, err := client.NewClient(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return c, nil
}
