package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/itstheanurag/runbox/internal/sandbox"
	"github.com/itstheanurag/runbox/internal/verdict"
)

func TestClassifyRun(t *testing.T) {
	limit := time.Second
	tests := []struct {
		name    string
		raw     sandbox.Result
		policy  verdict.DiagnosticPolicy
		outcome verdict.Outcome
		details string
	}{
		{
			name:    "clean exit",
			raw:     sandbox.Result{Stdout: "hi\n", TimeMs: 12},
			policy:  verdict.PolicyDiagnostic,
			outcome: verdict.Success,
		},
		{
			name:    "timeout wins over exit code",
			raw:     sandbox.Result{Stdout: "partial", ExitCode: 0, TimedOut: true, TimeMs: 1000},
			policy:  verdict.PolicyDiagnostic,
			outcome: verdict.Timeout,
			details: "time limit of 1000 ms exceeded",
		},
		{
			name:    "non-zero exit without stderr",
			raw:     sandbox.Result{ExitCode: 2},
			policy:  verdict.PolicyExitCode,
			outcome: verdict.RuntimeError,
			details: "process exited with status 2",
		},
		{
			name:    "non-zero exit with stderr",
			raw:     sandbox.Result{ExitCode: 1, Stderr: "Traceback (most recent call last):\nZeroDivisionError\n"},
			policy:  verdict.PolicyExitCode,
			outcome: verdict.RuntimeError,
			details: "Traceback (most recent call last):\nZeroDivisionError\n",
		},
		{
			name:    "killed by signal",
			raw:     sandbox.Result{ExitCode: -1, Signal: "SIGSEGV"},
			policy:  verdict.PolicyExitCode,
			outcome: verdict.RuntimeError,
			details: "process terminated by signal SIGSEGV",
		},
		{
			name:    "killed by signal after writing stderr",
			raw:     sandbox.Result{ExitCode: -1, Signal: "SIGABRT", Stderr: "assertion failed\n"},
			policy:  verdict.PolicyDiagnostic,
			outcome: verdict.RuntimeError,
			details: "process terminated by signal SIGABRT\nassertion failed\n",
		},
		{
			name:    "zero exit with unrecognised stderr",
			raw:     sandbox.Result{Stderr: "something went wrong\n"},
			policy:  verdict.PolicyDiagnostic,
			outcome: verdict.RuntimeError,
			details: "something went wrong\n",
		},
		{
			name:    "zero exit with stderr under exit code policy",
			raw:     sandbox.Result{Stdout: "ok\n", Stderr: "something went wrong\n"},
			policy:  verdict.PolicyExitCode,
			outcome: verdict.Success,
		},
		{
			name:    "zero exit with warnings only",
			raw:     sandbox.Result{Stdout: "ok\n", Stderr: "app.py:1: DeprecationWarning: old\n"},
			policy:  verdict.PolicyDiagnostic,
			outcome: verdict.Success,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ClassifyRun(&tt.raw, limit, tt.policy)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, tt.details, res.Details)
			assert.Equal(t, tt.raw.Stdout, res.Stdout)
			assert.Equal(t, tt.outcome == verdict.Timeout, res.TimedOut)
		})
	}
}

func TestClassifyRunTimeoutKeepsPartialStderr(t *testing.T) {
	res := ClassifyRun(&sandbox.Result{TimedOut: true, ExitCode: -1, Stderr: "tick\n"}, 500*time.Millisecond, verdict.PolicyDiagnostic)
	assert.Equal(t, verdict.Timeout, res.Outcome)
	assert.Equal(t, 500*time.Millisecond, res.ExecutionTime)
	assert.Equal(t, "time limit of 500 ms exceeded\ntick\n", res.Details)
}

func TestClassifyRunMarksTruncation(t *testing.T) {
	res := ClassifyRun(&sandbox.Result{Stdout: "aaaa", Truncated: true}, time.Second, verdict.PolicyDiagnostic)
	assert.Equal(t, verdict.Success, res.Outcome)
	assert.Equal(t, "aaaa"+truncatedNote, res.Stdout)
}

func TestClassifyCompile(t *testing.T) {
	limit := 30 * time.Second

	res := ClassifyCompile(&sandbox.Result{TimeMs: 250}, limit, verdict.PolicyDiagnostic)
	assert.Equal(t, verdict.Success, res.Outcome)
	assert.Equal(t, 250*time.Millisecond, res.CompileTime)
	assert.Zero(t, res.ExecutionTime)

	res = ClassifyCompile(&sandbox.Result{ExitCode: 1, Stderr: "main.c:1:1: error: expected ';'\n"}, limit, verdict.PolicyDiagnostic)
	assert.Equal(t, verdict.CompileError, res.Outcome)
	assert.Equal(t, "main.c:1:1: error: expected ';'\n", res.Details)
	assert.Zero(t, res.ExecutionTime)

	res = ClassifyCompile(&sandbox.Result{ExitCode: 1, Stdout: "Main.java:3: error: ';' expected\n"}, limit, verdict.PolicyDiagnostic)
	assert.Equal(t, "Main.java:3: error: ';' expected\n", res.Details)

	res = ClassifyCompile(&sandbox.Result{ExitCode: 4}, limit, verdict.PolicyDiagnostic)
	assert.Equal(t, "compiler exited with status 4", res.Details)

	res = ClassifyCompile(&sandbox.Result{TimedOut: true, ExitCode: -1}, limit, verdict.PolicyDiagnostic)
	assert.Equal(t, verdict.CompileError, res.Outcome)
	assert.Equal(t, "compilation exceeded the 30000 ms limit", res.Details)

	warn := "main.c:2:7: warning: unused variable 'x'\n"
	assert.Equal(t, verdict.Success, ClassifyCompile(&sandbox.Result{Stderr: warn}, limit, verdict.PolicyDiagnostic).Outcome)

	overflow := "main.c: In function 'main':\n" +
		"main.c:3:12: warning: overflow in conversion from 'int' to 'char' changes value from '300' to '44' [-Woverflow]\n" +
		"    3 |   char c = 300; printf(\"result: error %d\\n\", c);\n" +
		"      |            ^~~\n"
	assert.Equal(t, verdict.Success, ClassifyCompile(&sandbox.Result{Stderr: overflow}, limit, verdict.PolicyDiagnostic).Outcome)

	errOnZero := "main.c:2:7: error: something odd\n"
	assert.Equal(t, verdict.CompileError, ClassifyCompile(&sandbox.Result{Stderr: errOnZero}, limit, verdict.PolicyDiagnostic).Outcome)
	assert.Equal(t, verdict.Success, ClassifyCompile(&sandbox.Result{Stderr: errOnZero}, limit, verdict.PolicyExitCode).Outcome)
}
