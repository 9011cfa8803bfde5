package transmit

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// InstallURL documents how to install the emit tool.
const InstallURL = "https://github.com/Oprax/pidom#install"

// ExecConfig configures ExecTransmitter.
type ExecConfig struct {
	Command []string      // binary and leading args, e.g. ["sudo", "emit"]
	Button  string        // receiver button code passed with -b
	Timeout time.Duration // per-invocation timeout
}

// ExecTransmitter runs the external emit command once per state change:
//
//	emit -d <ID> -b <button> [-x]
//
// where -x requests the off frame.
type ExecTransmitter struct {
	cfg    ExecConfig
	logger *slog.Logger
	run    func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewExecTransmitter creates a transmitter invoking cfg.Command.
func NewExecTransmitter(cfg ExecConfig, logger *slog.Logger) (*ExecTransmitter, error) {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, fmt.Errorf("exec transmitter: command is required")
	}
	if cfg.Button == "" {
		cfg.Button = "A1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &ExecTransmitter{
		cfg:    cfg,
		logger: logger.With("component", "transmit"),
		run:    runCommand,
	}, nil
}

// Args returns the argument list (excluding the binary) for a frame.
func (t *ExecTransmitter) Args(id uint32, on bool) []string {
	args := append([]string{}, t.cfg.Command[1:]...)
	args = append(args, "-d", FormatID(id), "-b", t.cfg.Button)
	if !on {
		args = append(args, "-x")
	}
	return args
}

// Transmit runs the command and fails on a non-zero exit.
func (t *ExecTransmitter) Transmit(ctx context.Context, id uint32, on bool) error {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	args := t.Args(id, on)
	t.logger.Debug("emit", "cmd", t.cfg.Command[0], "args", strings.Join(args, " "))

	if out, err := t.run(ctx, t.cfg.Command[0], args...); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("emit %s: timeout after %s", FormatID(id), t.cfg.Timeout)
		}
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("emit %s: %w: %s (see %s)", FormatID(id), err, msg, InstallURL)
		}
		return fmt.Errorf("emit %s: %w (see %s)", FormatID(id), err, InstallURL)
	}
	return nil
}

// runCommand executes name with args and returns its stderr on failure.
func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stderr.Bytes(), err
	}
	return nil, nil
}
