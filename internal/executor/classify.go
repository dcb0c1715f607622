package executor

import (
	"fmt"
	"strings"
	"time"

	"github.com/itstheanurag/runbox/internal/sandbox"
	"github.com/itstheanurag/runbox/internal/verdict"
)

const truncatedNote = "\n[output truncated]"

// ClassifyCompile maps a finished compile step to a result. A result whose
// outcome is Success means the run step may proceed.
func ClassifyCompile(raw *sandbox.Result, limit time.Duration, policy verdict.DiagnosticPolicy) *ExecutionResult {
	res := &ExecutionResult{CompileTime: raw.Duration()}
	switch {
	case raw.TimedOut:
		res.Outcome = verdict.CompileError
		res.Details = fmt.Sprintf("compilation exceeded the %d ms limit", limit.Milliseconds())
	case policy.CompileFailed(raw.ExitCode, raw.Stderr):
		res.Outcome = verdict.CompileError
		res.ExitCode = raw.ExitCode
		res.Details = firstNonEmpty(raw.Stderr, raw.Stdout,
			fmt.Sprintf("compiler exited with status %d", raw.ExitCode))
	default:
		res.Outcome = verdict.Success
	}
	return res
}

// ClassifyRun maps a finished run step to a result. Expiry of the time limit
// wins over whatever exit status the killed process reported.
func ClassifyRun(raw *sandbox.Result, limit time.Duration, policy verdict.DiagnosticPolicy) *ExecutionResult {
	res := &ExecutionResult{
		Stdout:        raw.Stdout,
		ExecutionTime: raw.Duration(),
		MemoryKb:      raw.MemoryKb,
		ExitCode:      raw.ExitCode,
	}
	if raw.Truncated {
		res.Stdout += truncatedNote
	}

	switch {
	case raw.TimedOut:
		res.Outcome = verdict.Timeout
		res.TimedOut = true
		res.ExecutionTime = limit
		res.Details = fmt.Sprintf("time limit of %d ms exceeded", limit.Milliseconds())
		if s := strings.TrimSpace(raw.Stderr); s != "" {
			res.Details += "\n" + raw.Stderr
		}
	case raw.ExitCode != 0:
		res.Outcome = verdict.RuntimeError
		res.Details = firstNonEmpty(raw.Stderr, fmt.Sprintf("process exited with status %d", raw.ExitCode))
		if raw.Signal != "" {
			res.Details = "process terminated by signal " + raw.Signal
			if s := strings.TrimSpace(raw.Stderr); s != "" {
				res.Details += "\n" + raw.Stderr
			}
		}
	case policy.RunFailed(raw.ExitCode, raw.Stderr):
		res.Outcome = verdict.RuntimeError
		res.Details = raw.Stderr
	default:
		res.Outcome = verdict.Success
	}
	return res
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
