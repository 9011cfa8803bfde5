package transmit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.bug.st/serial"
)

// SerialConfig configures SerialTransmitter.
type SerialConfig struct {
	Port        string
	Baud        int
	Ack         bool          // wait for an OK/ERR reply line
	AckTimeout  time.Duration // how long to wait for the reply
	ReadTimeout time.Duration // per-read poll interval
}

// port is the subset of serial.Port used by SerialTransmitter.
type port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// SerialTransmitter drives an RF bridge (e.g. a microcontroller with a
// 433 MHz module) over a serial line. Each frame is one text line:
//
//	<ID> <1|0>\n
//
// With Ack enabled the bridge answers "OK" or "ERR <reason>".
type SerialTransmitter struct {
	cfg    SerialConfig
	logger *slog.Logger
	open   func(name string, mode *serial.Mode) (port, error)

	port    port
	pending []byte // bytes read past the last reply line
}

// NewSerialTransmitter creates a transmitter. The port is opened on first use.
func NewSerialTransmitter(cfg SerialConfig, logger *slog.Logger) (*SerialTransmitter, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("serial transmitter: port is required")
	}
	if cfg.Baud == 0 {
		cfg.Baud = 9600
	}
	if cfg.AckTimeout == 0 {
		cfg.AckTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 100 * time.Millisecond
	}
	return &SerialTransmitter{
		cfg:    cfg,
		logger: logger.With("component", "transmit", "port", cfg.Port),
		open: func(name string, mode *serial.Mode) (port, error) {
			return serial.Open(name, mode)
		},
	}, nil
}

func (t *SerialTransmitter) ensureOpen() error {
	if t.port != nil {
		return nil
	}
	mode := &serial.Mode{
		BaudRate: t.cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := t.open(t.cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("serial transmitter: open %s: %w", t.cfg.Port, err)
	}
	if err := p.SetReadTimeout(t.cfg.ReadTimeout); err != nil {
		p.Close()
		return fmt.Errorf("serial transmitter: set read timeout: %w", err)
	}
	t.port = p
	t.pending = t.pending[:0]
	t.logger.Debug("serial port opened", "baud", t.cfg.Baud)
	return nil
}

// Transmit writes one frame and, with Ack enabled, waits for the reply.
func (t *SerialTransmitter) Transmit(ctx context.Context, id uint32, on bool) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}

	state := "0"
	if on {
		state = "1"
	}
	line := FormatID(id) + " " + state + "\n"
	if _, err := io.WriteString(t.port, line); err != nil {
		t.reset()
		return fmt.Errorf("serial transmitter: write: %w", err)
	}
	if !t.cfg.Ack {
		return nil
	}

	reply, err := t.readLine(ctx)
	if err != nil {
		return err
	}
	switch {
	case reply == "OK":
		return nil
	case strings.HasPrefix(reply, "ERR"):
		reason := strings.TrimSpace(strings.TrimPrefix(reply, "ERR"))
		return fmt.Errorf("serial transmitter: %s rejected: %s", FormatID(id), reason)
	default:
		return fmt.Errorf("serial transmitter: unexpected reply %q", reply)
	}
}

// readLine polls the port until a full line arrives, the ack timeout
// expires, or ctx is cancelled. Reads return (0, nil) when the per-read
// timeout elapses without data.
func (t *SerialTransmitter) readLine(ctx context.Context) (string, error) {
	deadline := time.Now().Add(t.cfg.AckTimeout)
	buf := make([]byte, 64)
	for {
		if i := bytes.IndexByte(t.pending, '\n'); i >= 0 {
			line := string(t.pending[:i])
			t.pending = append(t.pending[:0], t.pending[i+1:]...)
			return strings.TrimSpace(line), nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("serial transmitter: no reply within %s", t.cfg.AckTimeout)
		}
		n, err := t.port.Read(buf)
		t.pending = append(t.pending, buf[:n]...)
		if err != nil && err != io.EOF {
			t.reset()
			return "", fmt.Errorf("serial transmitter: read: %w", err)
		}
	}
}

func (t *SerialTransmitter) reset() {
	if t.port != nil {
		t.port.Close()
	}
	t.port = nil
	t.pending = nil
}

// Close releases the serial port.
func (t *SerialTransmitter) Close() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	t.pending = nil
	return err
}
