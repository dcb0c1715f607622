package sandbox

import (
	"context"
	"errors"
	"time"
)

// ErrSpawn is returned when a step could not be started at all.
var ErrSpawn = errors.New("failed to start process")

type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimeMs   int64
	MemoryKb int64
	// TimedOut is set when the step was killed because its time limit expired.
	// ExitCode is meaningless in that case.
	TimedOut bool
	// Signal names the signal that terminated the process, e.g. "SIGSEGV".
	// It is empty for a normal exit and for a timeout.
	Signal string
	// Truncated is set when either stream exceeded the output cap.
	Truncated bool
}

func (r *Result) Duration() time.Duration {
	return time.Duration(r.TimeMs) * time.Millisecond
}

type Sandbox interface {
	// Run executes a single command. A non-zero exit or a timeout is reported
	// through Result; an error means the step itself could not be carried out.
	Run(ctx context.Context, config RunConfig) (*Result, error)
	EnsureImage(ctx context.Context, image string) error
}

type RunConfig struct {
	Image     string
	Cmd       []string
	Dir       string
	StdinFile string // empty means no stdin
	TimeLimit time.Duration
}
