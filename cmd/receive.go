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

type ReceiveFlags struct {
	OutputDir string
	Port      int
}

var receiveFlags ReceiveFlags

// receiveCmd represents the receive command
var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Receive files from senders",
	Long: `Run the receiving side of the transfer. This will:

1. Listen on the configured TCP port
2. Serve every connecting sender concurrently
3. Verify each file's checksum, decompress it, and save it under --out

The receiver runs until interrupted.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return validateReceiveFlags(&receiveFlags)
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := runReceiverApp(&receiveFlags); err != nil {
			logrus.Fatalf("Receiver failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(receiveCmd)

	// Define flags with struct binding
	receiveCmd.Flags().StringVarP(&receiveFlags.OutputDir, "out", "o", "", "Directory where received files are saved (overrides config)")
	receiveCmd.Flags().IntVar(&receiveFlags.Port, "port", 0, "Port to listen on (overrides config)")

	// Bind flags to viper for environment variable support
	viper.BindPFlag("transfer.output_dir", receiveCmd.Flags().Lookup("out"))
}

// validateReceiveFlags validates the receive command flags
func validateReceiveFlags(flags *ReceiveFlags) error {
	if flags.Port < 0 || flags.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535")
	}
	return nil
}

// runReceiverApp creates and runs the receiver application
func runReceiverApp(flags *ReceiveFlags) error {
	ctx := createContext()

	if flags.OutputDir != "" {
		cfg.Transfer.OutputDir = flags.OutputDir
	}
	if flags.Port != 0 {
		cfg.Transfer.Port = flags.Port
	}

	tel, err := createTelemetry(ctx, cfg.Telemetry.ServiceName+"-receiver")
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer tel.Shutdown(ctx)

	pipeline := processor.NewPipeline()
	receiver := transport.NewReceiver(cfg, pipeline, tel)

	receiverApp := app.NewReceiverApp(cfg, receiver)
	return receiverApp.Run(ctx, &app.ReceiverOptions{})
}
