package verdict

import (
	"fmt"
	"regexp"
	"strings"
)

type Outcome string

const (
	Success         Outcome = "success"
	CompileError    Outcome = "compile_error"
	RuntimeError    Outcome = "runtime_error"
	Timeout         Outcome = "timeout"
	ValidationError Outcome = "validation_error"
	InternalError   Outcome = "internal_error"
)

// DiagnosticPolicy decides how stderr content affects a step that exited with status 0.
type DiagnosticPolicy string

const (
	// PolicyExitCode classifies on exit status alone.
	PolicyExitCode DiagnosticPolicy = "exit_code"
	// PolicyDiagnostic additionally fails a zero-exit step whose stderr is not benign.
	PolicyDiagnostic DiagnosticPolicy = "diagnostic"
)

func ParsePolicy(s string) (DiagnosticPolicy, error) {
	switch DiagnosticPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyDiagnostic:
		return PolicyDiagnostic, nil
	case PolicyExitCode:
		return PolicyExitCode, nil
	default:
		return "", fmt.Errorf("unknown diagnostic policy %q", s)
	}
}

var (
	errorPatterns = []*regexp.Regexp{
		// gcc, g++, javac headers: "file:3:5: error: ...", "cc1: fatal error: ...", "error: ..."
		regexp.MustCompile(`^\S[^:]*:\d+(:\d+)?:\s*(fatal\s+)?error:`),
		regexp.MustCompile(`(?i)^(cc1\w*|collect2|ld|javac):\s*(fatal\s+)?error\b`),
		regexp.MustCompile(`(?i)^(fatal\s+)?error:`),
		regexp.MustCompile(`^Traceback \(most recent call last\)`),
		regexp.MustCompile(`^Exception in thread `),
		regexp.MustCompile(`^([a-z_]\w*\.)*[A-Z]\w*(Error|Exception)\b`),
		regexp.MustCompile(`(?i)segmentation fault|core dumped|\baborted\b`),
	}
	warningPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(^|:\s*)(warning|note)\b`),
		regexp.MustCompile(`\b[A-Z]\w*Warning\b`),
	}
	// gcc quotes the offending source under a diagnostic: "    3 |   code" and "      |   ^~~"
	sourceEcho = regexp.MustCompile(`^\s*\d*\s*\|`)
)

// diagnosticLines splits a stream into the lines worth classifying, dropping
// quoted source and caret markers.
func diagnosticLines(stderr string) []string {
	var lines []string
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimRight(line, "\r")
		if sourceEcho.MatchString(line) {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func matchesAny(line string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

// HasErrorDiagnostics reports whether any line of a diagnostic stream carries
// error-level content.
func HasErrorDiagnostics(stderr string) bool {
	for _, line := range diagnosticLines(stderr) {
		if matchesAny(line, errorPatterns) {
			return true
		}
	}
	return false
}

// IsBenign reports whether a diagnostic stream is made of warnings only: it must
// contain at least one warning or note line and no error-level line.
// An empty stream is benign.
func IsBenign(stderr string) bool {
	if strings.TrimSpace(stderr) == "" {
		return true
	}
	warned := false
	for _, line := range diagnosticLines(stderr) {
		if matchesAny(line, errorPatterns) {
			return false
		}
		if matchesAny(line, warningPatterns) {
			warned = true
		}
	}
	return warned
}

// CompileFailed applies the policy to a finished compile step.
func (p DiagnosticPolicy) CompileFailed(exitCode int, stderr string) bool {
	if exitCode != 0 {
		return true
	}
	return p == PolicyDiagnostic && HasErrorDiagnostics(stderr)
}

// RunFailed applies the policy to a run step that finished within its limit.
func (p DiagnosticPolicy) RunFailed(exitCode int, stderr string) bool {
	if exitCode != 0 {
		return true
	}
	return p == PolicyDiagnostic && !IsBenign(stderr)
}
