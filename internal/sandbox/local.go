package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const defaultWaitDelay = 500 * time.Millisecond

// errTimeLimit is the cancellation cause set when a step outlives its own limit.
var errTimeLimit = errors.New("time limit exceeded")

// LocalSandbox runs steps as child processes of the service. It offers no
// isolation; the deployment is expected to provide the containment boundary.
type LocalSandbox struct {
	logger    *zerolog.Logger
	maxOutput int
	waitDelay time.Duration
}

func NewLocalSandbox(logger *zerolog.Logger, maxOutputBytes int) *LocalSandbox {
	return &LocalSandbox{
		logger:    logger,
		maxOutput: maxOutputBytes,
		waitDelay: defaultWaitDelay,
	}
}

func (s *LocalSandbox) Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	if len(cfg.Cmd) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrSpawn)
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if cfg.TimeLimit > 0 {
		runCtx, cancel = context.WithTimeoutCause(ctx, cfg.TimeLimit, errTimeLimit)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, cfg.Cmd[0], cfg.Cmd[1:]...)
	cmd.Dir = cfg.Dir

	if cfg.StdinFile != "" {
		stdin, err := os.Open(cfg.StdinFile)
		if err != nil {
			return nil, fmt.Errorf("%w: open stdin: %v", ErrSpawn, err)
		}
		defer stdin.Close()
		cmd.Stdin = stdin
	}

	stdout := newCappedBuffer(s.maxOutput)
	stderr := newCappedBuffer(s.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	// Each step leads its own process group so a timeout or exit takes down
	// everything it spawned, not just the direct child.
	setProcessGroup(cmd)
	var timedOut atomic.Bool
	cmd.Cancel = func() error {
		// the caller's own deadline is a cancellation, not a timeout
		if errors.Is(context.Cause(runCtx), errTimeLimit) {
			timedOut.Store(true)
		}
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = s.waitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawn, cfg.Cmd[0], err)
	}
	s.logger.Debug().Int("pid", cmd.Process.Pid).Strs("cmd", cfg.Cmd).Msg("process started")

	err := cmd.Wait()
	elapsed := time.Since(start)
	// reap anything the step left running in the background
	if kerr := killProcessGroup(cmd); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
		s.logger.Warn().Err(kerr).Int("pid", cmd.Process.Pid).Msg("failed to kill process group")
	}

	result := &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		TimeMs:    elapsed.Milliseconds(),
		Truncated: stdout.Truncated() || stderr.Truncated(),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
		result.MemoryKb = maxRSSKb(cmd.ProcessState)
		result.Signal = exitSignal(cmd.ProcessState)
	}

	if timedOut.Load() {
		result.TimedOut = true
		result.ExitCode = -1
		result.Signal = ""
		if cfg.TimeLimit > 0 {
			result.TimeMs = cfg.TimeLimit.Milliseconds()
		}
		return result, nil
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil, errors.Is(err, exec.ErrWaitDelay):
		return result, nil
	case ctx.Err() != nil:
		return nil, fmt.Errorf("step cancelled: %w", ctx.Err())
	case errors.As(err, &exitErr):
		return result, nil
	default:
		return nil, fmt.Errorf("wait for %s: %w", cfg.Cmd[0], err)
	}
}

func (s *LocalSandbox) EnsureImage(ctx context.Context, image string) error {
	return nil
}
