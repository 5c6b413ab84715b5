package cmd

import (
	"fmt"

	"fileferry/internal/app"
	"fileferry/internal/processor"
	"fileferry/internal/transport"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type SendFlags struct {
	Files    []string
	InputDir string
	Host     string
	Port     int
}

var sendFlags SendFlags

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send files to a receiver",
	Long: `Send one or more files to a receiver over TCP. This will:

1. Compress each file with gzip
2. Compute a SHA-256 checksum over the compressed bytes
3. Open a dedicated connection per file and stream the record in chunks

Files are sent concurrently, each over its own connection. Use --file for
individual files and/or --dir to send every file under a directory.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return validateSendFlags(&sendFlags)
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSenderApp(&sendFlags); err != nil {
			logrus.Fatalf("Sender failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	// Define flags with struct binding
	sendCmd.Flags().StringArrayVarP(&sendFlags.Files, "file", "f", nil, "Path to a file to send (repeatable)")
	sendCmd.Flags().StringVarP(&sendFlags.InputDir, "dir", "d", "", "Directory to send recursively")
	sendCmd.Flags().StringVar(&sendFlags.Host, "host", "", "Receiver host (overrides config)")
	sendCmd.Flags().IntVar(&sendFlags.Port, "port", 0, "Receiver port (overrides config)")

	// Bind flags to viper for environment variable support
	viper.BindPFlag("send.dir", sendCmd.Flags().Lookup("dir"))
	viper.BindPFlag("transfer.host", sendCmd.Flags().Lookup("host"))
	viper.BindPFlag("transfer.port", sendCmd.Flags().Lookup("port"))
}

// validateSendFlags validates the send command flags
func validateSendFlags(flags *SendFlags) error {
	if len(flags.Files) == 0 && flags.InputDir == "" {
		return fmt.Errorf("at least one of --file or --dir is required")
	}
	return nil
}

// runSenderApp creates and runs the sender application
func runSenderApp(flags *SendFlags) error {
	ctx := createContext()

	if flags.Host != "" {
		cfg.Transfer.Host = flags.Host
	}
	if flags.Port != 0 {
		cfg.Transfer.Port = flags.Port
	}

	tel, err := createTelemetry(ctx, cfg.Telemetry.ServiceName+"-sender")
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer tel.Shutdown(ctx)

	pipeline := processor.NewPipeline()
	sender := transport.NewSender(cfg, pipeline, tel)

	// Create sender options from flags
	opts := &app.SenderOptions{
		Files:    flags.Files,
		InputDir: flags.InputDir,
	}

	senderApp := app.NewSenderApp(cfg, sender)
	return senderApp.Run(ctx, opts)
}
