// Package aria2 runs aria2c as the bulk transfer of batch.Queue.
package aria2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"igpull/pkg/batch"
	"igpull/pkg/config"
	"igpull/pkg/logger"
)

// DefaultBinary is looked up on PATH when no path is configured
const DefaultBinary = "aria2c"

// Runner invokes aria2c on a recovery file
type Runner struct {
	Binary                  string
	MaxConnectionsPerServer int
	MaxConcurrent           int
	Quiet                   bool

	log logger.Logger
}

// New creates a Runner from the download config section
func New(cfg config.DownloadConfig, quiet bool, log logger.Logger) *Runner {
	binary := cfg.Aria2Path
	if binary == "" {
		binary = DefaultBinary
	}
	return &Runner{
		Binary:                  binary,
		MaxConnectionsPerServer: cfg.MaxConnectionsPerServer,
		MaxConcurrent:           cfg.MaxConcurrent,
		Quiet:                   quiet,
		log:                     logger.OrNop(log).WithField("component", "aria2"),
	}
}

// Available reports whether the binary can be found
func (r *Runner) Available() bool {
	_, err := exec.LookPath(r.Binary)
	return err == nil
}

// Args returns the aria2c command line for one batch. Downloads resume,
// complete files are never overwritten or renamed.
func (r *Runner) Args(inputFile, dir string) []string {
	args := []string{
		"--input-file=" + inputFile,
		"--dir=" + dir,
		"--max-connection-per-server=" + strconv.Itoa(positive(r.MaxConnectionsPerServer, 4)),
		"--max-concurrent-downloads=" + strconv.Itoa(positive(r.MaxConcurrent, 16)),
		"--continue=true",
		"--auto-file-renaming=false",
		"--allow-overwrite=false",
		"--conditional-get=true",
		"--summary-interval=0",
	}
	if r.Quiet {
		args = append(args, "--quiet=true")
	} else {
		args = append(args, "--console-log-level=warn")
	}
	return args
}

// Run implements batch.Transfer. A missing binary yields
// batch.ErrTransferUnavailable; a non-zero exit is returned with the tail
// of aria2c's output.
func (r *Runner) Run(ctx context.Context, inputFile, dir string) error {
	path, err := exec.LookPath(r.Binary)
	if err != nil {
		return fmt.Errorf("%s: %w", r.Binary, batch.ErrTransferUnavailable)
	}

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, path, r.Args(inputFile, dir)...)
	cmd.Stdout = &output
	cmd.Stderr = &output

	r.log.DebugWithFields("running aria2c", map[string]interface{}{
		"input_file": inputFile,
		"dir":        dir,
	})

	err = cmd.Run()
	if err == nil {
		return nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%s: %w", r.Binary, batch.ErrTransferUnavailable)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	tail := lastLines(output.String(), 5)
	r.log.WarnWithFields("aria2c exited with an error", map[string]interface{}{
		"error":  err.Error(),
		"output": tail,
	})
	return fmt.Errorf("aria2c: %w", err)
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func positive(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
