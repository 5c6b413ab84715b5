package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"fileferry/internal/config"
	"fileferry/internal/processor"
	"fileferry/internal/telemetry"

	"github.com/sirupsen/logrus"
)

// Receiver accepts connections until its context is cancelled and hands
// each one to an independent connection handler goroutine. The accept loop
// never performs payload I/O itself.
type Receiver struct {
	cfg      *config.Config
	pipeline *processor.Pipeline
	tel      *telemetry.Telemetry
}

// NewReceiver creates a new receiver
func NewReceiver(cfg *config.Config, pipeline *processor.Pipeline, tel *telemetry.Telemetry) *Receiver {
	return &Receiver{
		cfg:      cfg,
		pipeline: pipeline,
		tel:      tel,
	}
}

// Listen binds the configured address and serves until ctx is cancelled.
func (r *Receiver) Listen(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", r.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", r.cfg.Addr(), err)
	}
	return r.Serve(ctx, ln)
}

// Serve accepts connections on ln forever. A failed accept is logged and
// the loop continues; handler failures never reach this loop. Serve returns
// nil once ctx is cancelled.
func (r *Receiver) Serve(ctx context.Context, ln net.Listener) error {
	if err := os.MkdirAll(r.cfg.Transfer.OutputDir, 0o755); err != nil {
		ln.Close()
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"addr":       ln.Addr().String(),
		"output_dir": r.cfg.Transfer.OutputDir,
	}).Info("Listening for connections")

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	hcfg := handlerConfig{
		outputDir:   r.cfg.Transfer.OutputDir,
		idleTimeout: r.cfg.Transfer.IdleTimeout,
		maxPayload:  r.cfg.Transfer.MaxPayloadBytes,
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logrus.Info("Receiver shutting down")
				return nil
			}
			logrus.WithError(err).Warn("Failed to accept connection")
			continue
		}

		h := newHandler(conn, hcfg, r.pipeline, r.tel)
		go h.run(ctx)
	}
}
