package executor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/itstheanurag/runbox/internal/languages"
	"github.com/itstheanurag/runbox/internal/metrics"
	"github.com/itstheanurag/runbox/internal/sandbox"
	"github.com/itstheanurag/runbox/internal/verdict"
	"github.com/itstheanurag/runbox/internal/workspace"
)

type State int

const (
	Pending State = iota
	Compiling
	Running
	Completed
	CompileFailed
	RuntimeFailed
	TimedOut
	// Failed is entered when the pipeline itself breaks, e.g. a step cannot be spawned.
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Compiling:
		return "compiling"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case CompileFailed:
		return "compile_error"
	case RuntimeFailed:
		return "runtime_error"
	case TimedOut:
		return "timed_out"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) Terminal() bool {
	return s >= Completed
}

var transitions = map[State][]State{
	Pending:   {Compiling, Running, Failed},
	Compiling: {Running, CompileFailed, Failed},
	Running:   {Completed, RuntimeFailed, TimedOut, Failed},
}

func stateFor(outcome verdict.Outcome) State {
	switch outcome {
	case verdict.Success:
		return Completed
	case verdict.CompileError:
		return CompileFailed
	case verdict.RuntimeError:
		return RuntimeFailed
	case verdict.Timeout:
		return TimedOut
	default:
		return Failed
	}
}

// machine drives one job through compile and run.
type machine struct {
	e      *Executor
	job    *workspace.Job
	lang   languages.Language
	state  State
	logger *zerolog.Logger
}

func newMachine(e *Executor, job *workspace.Job, lang languages.Language, logger *zerolog.Logger) *machine {
	return &machine{e: e, job: job, lang: lang, state: Pending, logger: logger}
}

func (m *machine) transition(to State) {
	for _, allowed := range transitions[m.state] {
		if allowed == to {
			m.logger.Debug().Stringer("from", m.state).Stringer("to", to).Msg("state transition")
			m.state = to
			return
		}
	}
	panic(fmt.Sprintf("illegal state transition %s -> %s", m.state, to))
}

func (m *machine) run(ctx context.Context) *ExecutionResult {
	var compileRes *ExecutionResult
	if m.lang.Compiled() {
		m.transition(Compiling)
		var ok bool
		compileRes, ok = m.compile(ctx)
		if !ok {
			m.transition(stateFor(compileRes.Outcome))
			return compileRes
		}
	}

	m.transition(Running)
	res := m.execute(ctx)
	if compileRes != nil {
		res.CompileTime = compileRes.CompileTime
	}
	m.transition(stateFor(res.Outcome))
	return res
}

// compile returns ok=false with a terminal result when the run step must not happen.
func (m *machine) compile(ctx context.Context) (*ExecutionResult, bool) {
	args, err := m.lang.CompileArgs(m.job.CommandVars())
	if err != nil {
		return m.fail(err), false
	}

	raw, err := m.e.sandbox.Run(ctx, sandbox.RunConfig{
		Image:     m.lang.Config.Image,
		Cmd:       args,
		Dir:       m.job.Dir,
		TimeLimit: m.e.opts.CompileTimeLimit,
	})
	if err != nil {
		return m.fail(err), false
	}
	metrics.ExecutionDuration.WithLabelValues(string(m.lang.ID), "compile").Observe(float64(raw.TimeMs))

	res := ClassifyCompile(raw, m.e.opts.CompileTimeLimit, m.e.opts.Policy)
	if res.Outcome != verdict.Success {
		m.logger.Info().Int("exit_code", raw.ExitCode).Bool("timed_out", raw.TimedOut).Msg("compilation failed")
		return res, false
	}
	return res, true
}

func (m *machine) execute(ctx context.Context) *ExecutionResult {
	args, err := m.lang.RunArgs(m.job.CommandVars())
	if err != nil {
		return m.fail(err)
	}

	raw, err := m.e.sandbox.Run(ctx, sandbox.RunConfig{
		Image:     m.lang.Config.Image,
		Cmd:       args,
		Dir:       m.job.Dir,
		StdinFile: m.job.InputPath,
		TimeLimit: m.job.TimeLimit,
	})
	if err != nil {
		return m.fail(err)
	}
	metrics.ExecutionDuration.WithLabelValues(string(m.lang.ID), "run").Observe(float64(raw.TimeMs))
	if raw.MemoryKb > 0 {
		metrics.MemoryUsage.WithLabelValues(string(m.lang.ID)).Observe(float64(raw.MemoryKb))
	}

	res := ClassifyRun(raw, m.job.TimeLimit, m.e.opts.Policy)
	m.logger.Info().
		Str("outcome", string(res.Outcome)).
		Int("exit_code", raw.ExitCode).
		Str("signal", raw.Signal).
		Int64("time_ms", raw.TimeMs).
		Msg("execution finished")
	return res
}

func (m *machine) fail(err error) *ExecutionResult {
	m.logger.Error().Err(err).Stringer("state", m.state).Msg("execution step failed")
	return newResult(verdict.InternalError, err.Error())
}
