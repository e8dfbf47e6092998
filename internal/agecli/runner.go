package agecli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"YubiAge/internal/errors"
	"YubiAge/internal/log"
)

// DefaultBinary is looked up on PATH when no tool path is configured.
const DefaultBinary = "age"

// DefaultSettleDelay is how long the runner waits after launch before asking
// the Foregrounder to raise the child's window.
const DefaultSettleDelay = 500 * time.Millisecond

// Result is the outcome of one age invocation.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Success reports whether the tool exited with status 0.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Err converts a non-zero exit into a ToolError carrying stderr.
func (r *Result) Err() error {
	if r.Success() {
		return nil
	}
	return errors.NewToolError(r.ExitCode, r.Stderr)
}

// Foregrounder brings a child process's window to the front so the user can
// answer PIN or touch prompts from hardware-backed identities.
type Foregrounder interface {
	Foreground(pid int) error
}

// Runner launches the age binary.
//
// A non-zero exit is reported through Result, not as an error; Run only fails
// when the process cannot be started or ctx is cancelled. On cancellation the
// child is killed, together with its process group when it runs
// detached from a terminal on Unix.
type Runner struct {
	// Binary is a path or a name resolved on PATH. Empty means DefaultBinary.
	Binary string

	// Env is appended to the inherited environment.
	Env []string

	// Foregrounder is invoked once, SettleDelay after start. Nil disables it.
	Foregrounder Foregrounder
	SettleDelay  time.Duration

	Logger log.Logger
}

// NewRunner creates a Runner for binary with the platform's foreground
// behaviour.
func NewRunner(binary string) *Runner {
	return &Runner{
		Binary:       binary,
		Foregrounder: platformForegrounder(),
		SettleDelay:  DefaultSettleDelay,
	}
}

// Path resolves the configured binary.
func (r *Runner) Path() (string, error) {
	bin := r.Binary
	if bin == "" {
		bin = DefaultBinary
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("%w: %s", errors.ErrToolNotFound, bin)
	}
	return path, nil
}

// Run executes the tool with args and waits for it to exit.
func (r *Runner) Run(ctx context.Context, args []string) (*Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.ErrCancelled
	}

	path, err := r.Path()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(path, args...)
	cmd.Env = append(append(os.Environ(), platformEnv()...), r.Env...)
	configureProcess(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("starting age",
		log.String("path", path),
		log.String("args", strings.Join(args, " ")))

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", path, err)
	}

	done := make(chan error, 1)
	exited := make(chan struct{})
	go func() {
		done <- cmd.Wait()
		close(exited)
	}()

	if r.Foregrounder != nil {
		go r.foreground(cmd.Process.Pid, exited, logger)
	}

	select {
	case <-ctx.Done():
		if err := killProcess(cmd); err != nil {
			logger.Warn("failed to kill age", log.Int("pid", cmd.Process.Pid), log.Err(err))
		}
		<-done
		logger.Info("age cancelled", log.Int("pid", cmd.Process.Pid))
		return nil, errors.ErrCancelled
	case err = <-done:
	}

	exitCode := 0
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("failed to run %s: %w", path, err)
		}
		exitCode = exitErr.ExitCode()
	}

	logger.Debug("age exited",
		log.Int("code", exitCode),
		log.Duration("elapsed", time.Since(start)))

	return &Result{
		ExitCode: exitCode,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}, nil
}

// foreground waits for the settle delay, then raises the child unless it has
// already exited.
func (r *Runner) foreground(pid int, exited <-chan struct{}, logger log.Logger) {
	timer := time.NewTimer(r.SettleDelay)
	defer timer.Stop()

	select {
	case <-exited:
		return
	case <-timer.C:
	}

	if err := r.Foregrounder.Foreground(pid); err != nil {
		logger.Debug("could not raise age window", log.Int("pid", pid), log.Err(err))
	}
}
