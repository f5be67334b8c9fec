package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/openblinds/blindctl/internal/logger"
	"github.com/openblinds/blindctl/internal/protocol"
)

// SerialConfig for the UART command link.
type SerialConfig struct {
	Port string
	Baud int
}

// SerialLink reads command frames from a UART and writes replies back.
// This is the wired-controller path; the byte stream may contain noise
// between frames, which the protocol scanner skips.
type SerialLink struct {
	cfg  SerialConfig
	proc *protocol.Processor
	log  *zap.SugaredLogger
}

// NewSerialLink creates the UART link.
func NewSerialLink(cfg SerialConfig, proc *protocol.Processor) *SerialLink {
	return &SerialLink{
		cfg:  cfg,
		proc: proc,
		log:  logger.Sugar().With("component", "serial"),
	}
}

// Run opens the port and services it until ctx is cancelled, reopening
// after transient failures.
func (l *SerialLink) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := l.serve(ctx); err != nil && ctx.Err() == nil {
			l.log.Warnw("serial link failed, retrying", "port", l.cfg.Port, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
	}
}

func (l *SerialLink) serve(ctx context.Context) error {
	mode := &serial.Mode{
		BaudRate: l.cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(l.cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	defer port.Close()

	// Bounded reads so ctx cancellation is noticed between frames.
	if err := port.SetReadTimeout(200 * time.Millisecond); err != nil {
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	l.log.Infow("serial link up", "port", l.cfg.Port, "baud", l.cfg.Baud)

	var scanner protocol.Scanner
	buf := make([]byte, 64)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := port.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				continue
			}
			return fmt.Errorf("serial read failed: %w", err)
		}
		for _, b := range buf[:n] {
			c1, c2, ok := scanner.Feed(b)
			if !ok {
				continue
			}
			if reply := l.proc.Process(c1, c2); reply != nil {
				if _, werr := port.Write(reply); werr != nil {
					return fmt.Errorf("serial write failed: %w", werr)
				}
			}
		}
	}
}
