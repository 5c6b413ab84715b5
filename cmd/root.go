package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fileferry/internal/config"
	"fileferry/internal/telemetry"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg     *config.Config
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fileferry",
	Short: "Fileferry - concurrent compressed file transfer over TCP",
	Long: `Fileferry moves files from senders to a receiver over plain TCP.

Each file is gzip-compressed, checksummed with SHA-256 over the compressed
bytes, and streamed as one record per connection. The receiver verifies the
checksum before decompressing and saving, and serves many senders at once.

Usage:
  Receive files:       fileferry receive --out ./server-out
  Send files:          fileferry send --file a.bin --file b.bin
  Generate test files: fileferry genfiles --dir ./files2transfer`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Initialize viper configuration
		initConfig()

		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}

		// Initialize configuration
		cfg = config.NewDefaultConfig()
		applyConfigOverrides(cfg)
		if err := cfg.Validate(); err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
	},
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.fileferry.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	// Set up viper environment variable support
	viper.SetEnvPrefix("FILEFERRY")
	viper.AutomaticEnv()
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			logrus.Warnf("Could not find home directory: %v", err)
			return
		}

		// Search config in home directory with name ".fileferry" (without extension)
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".fileferry")
	}

	// Read in environment variables that match
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		logrus.Infof("Using config file: %s", viper.ConfigFileUsed())
	}
}

// applyConfigOverrides layers any values from the config file or
// environment onto the defaults. Flags are bound per-command and applied
// after this.
func applyConfigOverrides(cfg *config.Config) {
	if viper.IsSet("transfer.host") {
		cfg.Transfer.Host = viper.GetString("transfer.host")
	}
	if viper.IsSet("transfer.port") {
		cfg.Transfer.Port = viper.GetInt("transfer.port")
	}
	if viper.IsSet("transfer.output_dir") {
		cfg.Transfer.OutputDir = viper.GetString("transfer.output_dir")
	}
	if viper.IsSet("transfer.chunk_size") {
		cfg.Transfer.ChunkSize = viper.GetInt("transfer.chunk_size")
	}
	if viper.IsSet("transfer.max_payload_bytes") {
		cfg.Transfer.MaxPayloadBytes = viper.GetInt64("transfer.max_payload_bytes")
	}
	if viper.IsSet("transfer.idle_timeout") {
		cfg.Transfer.IdleTimeout = viper.GetDuration("transfer.idle_timeout")
	}
	if viper.IsSet("transfer.dial_timeout") {
		cfg.Transfer.DialTimeout = viper.GetDuration("transfer.dial_timeout")
	}
	if viper.IsSet("telemetry.enabled") {
		cfg.Telemetry.Enabled = viper.GetBool("telemetry.enabled")
	}
	if viper.IsSet("telemetry.service_name") {
		cfg.Telemetry.ServiceName = viper.GetString("telemetry.service_name")
	}
	if viper.IsSet("telemetry.sample_ratio") {
		cfg.Telemetry.SampleRatio = viper.GetFloat64("telemetry.sample_ratio")
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// createContext creates a context that cancels on interrupt signals
func createContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	return ctx
}

// createTelemetry builds the instrumentation sink for the configured mode.
// With telemetry disabled the components get a no-op sink and behave
// identically.
func createTelemetry(ctx context.Context, serviceName string) (*telemetry.Telemetry, error) {
	if !cfg.Telemetry.Enabled {
		return telemetry.NewNoop(), nil
	}
	return telemetry.New(ctx, serviceName, cfg.Telemetry.SampleRatio)
}
