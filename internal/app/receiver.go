package app

import (
	"context"

	"fileferry/internal/config"
	"fileferry/internal/transport"
)

// ReceiverOptions configures the receiver application behavior
type ReceiverOptions struct {
	// Future options can be added here:
	// Verbose bool
}

// ReceiverApp runs the receiving side: it listens on the configured port
// and serves connections until the context is cancelled.
type ReceiverApp struct {
	config   *config.Config
	receiver *transport.Receiver
}

// NewReceiverApp creates a new receiver application
func NewReceiverApp(cfg *config.Config, receiver *transport.Receiver) *ReceiverApp {
	return &ReceiverApp{
		config:   cfg,
		receiver: receiver,
	}
}

// Run starts the receiver and blocks until shutdown.
func (r *ReceiverApp) Run(ctx context.Context, opts *ReceiverOptions) error {
	return r.receiver.Listen(ctx)
}
