package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/itstheanurag/runbox/internal/languages"
	"github.com/itstheanurag/runbox/internal/metrics"
	"github.com/itstheanurag/runbox/internal/sandbox"
	"github.com/itstheanurag/runbox/internal/verdict"
	"github.com/itstheanurag/runbox/internal/workspace"
)

var ErrValidation = errors.New("invalid request")

type ExecuteOptions struct {
	LanguageID  string `json:"language"`
	SourceCode  string `json:"source"`
	Stdin       string `json:"stdin"`
	TimeLimitMs int    `json:"timeLimitMs"`
}

type ExecutionResult struct {
	JobID         string          `json:"jobId,omitempty"`
	Language      string          `json:"language,omitempty"`
	Outcome       verdict.Outcome `json:"outcome"`
	Stdout        string          `json:"stdout"`
	Details       string          `json:"details"`
	ExitCode      int             `json:"exitCode"`
	ExecutionTime time.Duration   `json:"-"`
	CompileTime   time.Duration   `json:"-"`
	MemoryKb      int64           `json:"memoryKb,omitempty"`
	TimedOut      bool            `json:"timedOut"`
}

func (r ExecutionResult) MarshalJSON() ([]byte, error) {
	type plain ExecutionResult
	return json.Marshal(struct {
		*plain
		ExecutionTimeMs int64 `json:"executionTimeMs"`
		CompileTimeMs   int64 `json:"compileTimeMs,omitempty"`
	}{
		plain:           (*plain)(&r),
		ExecutionTimeMs: r.ExecutionTime.Milliseconds(),
		CompileTimeMs:   r.CompileTime.Milliseconds(),
	})
}

func (r *ExecutionResult) UnmarshalJSON(data []byte) error {
	type plain ExecutionResult
	aux := struct {
		*plain
		ExecutionTimeMs int64 `json:"executionTimeMs"`
		CompileTimeMs   int64 `json:"compileTimeMs"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.ExecutionTime = time.Duration(aux.ExecutionTimeMs) * time.Millisecond
	r.CompileTime = time.Duration(aux.CompileTimeMs) * time.Millisecond
	return nil
}

type Options struct {
	DefaultTimeLimit time.Duration
	MaxTimeLimit     time.Duration
	CompileTimeLimit time.Duration
	Policy           verdict.DiagnosticPolicy
}

func (o *Options) fillIn() {
	if o.DefaultTimeLimit == 0 {
		o.DefaultTimeLimit = 10 * time.Second
	}
	if o.MaxTimeLimit == 0 {
		o.MaxTimeLimit = time.Minute
	}
	if o.CompileTimeLimit == 0 {
		o.CompileTimeLimit = 30 * time.Second
	}
	if o.Policy == "" {
		o.Policy = verdict.PolicyDiagnostic
	}
}

type Executor struct {
	registry     *languages.Registry
	materializer *workspace.Materializer
	sandbox      sandbox.Sandbox
	opts         Options
	logger       *zerolog.Logger
}

func NewExecutor(
	registry *languages.Registry,
	materializer *workspace.Materializer,
	sb sandbox.Sandbox,
	opts Options,
	logger *zerolog.Logger,
) *Executor {
	opts.fillIn()
	return &Executor{
		registry:     registry,
		materializer: materializer,
		sandbox:      sb,
		opts:         opts,
		logger:       logger,
	}
}

// Execute runs one job end to end. It never fails: every problem, including a
// panic inside the pipeline, is reported as an outcome, and the job's files are
// removed before it returns.
func (e *Executor) Execute(ctx context.Context, opts ExecuteOptions) (res *ExecutionResult) {
	started := time.Now()
	lang, limit, err := e.validate(opts)
	if err != nil {
		res = newResult(verdict.ValidationError, err.Error())
		res.Language = opts.LanguageID
		e.observe(res, started)
		return res
	}

	defer func() {
		if p := recover(); p != nil {
			e.logger.Error().
				Str("language", string(lang.ID)).
				Interface("panic", p).
				Bytes("stack", debug.Stack()).
				Msg("execution pipeline panicked")
			jobID := ""
			if res != nil {
				jobID = res.JobID
			}
			res = newResult(verdict.InternalError, fmt.Sprintf("internal error: %v", p))
			res.JobID = jobID
			res.Language = string(lang.ID)
		}
		e.observe(res, started)
	}()

	job, err := e.materializer.Materialize(lang, opts.SourceCode, opts.Stdin, limit)
	if err != nil {
		if errors.Is(err, workspace.ErrInvalidSource) {
			res = newResult(verdict.ValidationError, err.Error())
		} else {
			e.logger.Error().Err(err).Str("language", string(lang.ID)).Msg("failed to stage job")
			res = newResult(verdict.InternalError, err.Error())
		}
		res.Language = string(lang.ID)
		return res
	}
	res = &ExecutionResult{JobID: job.ID, Language: string(lang.ID)}
	defer e.cleanup(job)

	log := e.logger.With().Str("job_id", job.ID).Str("language", string(lang.ID)).Logger()
	m := newMachine(e, job, lang, &log)
	out := m.run(ctx)
	out.JobID = job.ID
	out.Language = string(lang.ID)
	return out
}

func (e *Executor) validate(opts ExecuteOptions) (languages.Language, time.Duration, error) {
	lang, err := e.registry.Resolve(opts.LanguageID)
	if err != nil {
		return languages.Language{}, 0, err
	}
	if strings.TrimSpace(opts.SourceCode) == "" {
		return languages.Language{}, 0, fmt.Errorf("%w: source is required", ErrValidation)
	}
	if opts.TimeLimitMs < 0 {
		return languages.Language{}, 0, fmt.Errorf("%w: timeLimitMs must not be negative", ErrValidation)
	}

	limit := e.opts.DefaultTimeLimit
	if opts.TimeLimitMs > 0 {
		limit = time.Duration(opts.TimeLimitMs) * time.Millisecond
	}
	if limit > e.opts.MaxTimeLimit {
		return languages.Language{}, 0, fmt.Errorf("%w: timeLimitMs exceeds the maximum of %d",
			ErrValidation, e.opts.MaxTimeLimit.Milliseconds())
	}
	return lang, limit, nil
}

func (e *Executor) cleanup(job *workspace.Job) {
	if err := job.Cleanup(); err != nil {
		metrics.CleanupFailures.Inc()
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to clean up job workspace")
	}
}

func (e *Executor) observe(res *ExecutionResult, started time.Time) {
	lang := res.Language
	if _, err := e.registry.Resolve(lang); err != nil {
		// keep label cardinality bounded
		lang = "unknown"
	}
	metrics.ExecutionsTotal.WithLabelValues(lang, string(res.Outcome)).Inc()
	metrics.ExecutionDuration.WithLabelValues(lang, "total").Observe(float64(time.Since(started).Milliseconds()))
}

// Languages exposes the registry to outer layers.
func (e *Executor) Languages() []languages.Language {
	return e.registry.List()
}

func newResult(outcome verdict.Outcome, details string) *ExecutionResult {
	return &ExecutionResult{Outcome: outcome, Details: details}
}
