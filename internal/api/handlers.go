package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/itstheanurag/runbox/internal/executor"
	"github.com/itstheanurag/runbox/internal/languages"
	"github.com/itstheanurag/runbox/internal/queue"
	"github.com/itstheanurag/runbox/internal/verdict"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, opts executor.ExecuteOptions) (*executor.ExecutionResult, error)
}

type LanguageLister interface {
	Languages() []languages.Language
}

type ExecutionRequest struct {
	Language    string `json:"language"`
	Source      string `json:"source"`
	Stdin       string `json:"stdin"`
	TimeLimitMs int    `json:"timeLimitMs"`
}

// CompileRequest is the body accepted by the legacy /compile endpoint, where
// the language is named by its file extension.
type CompileRequest struct {
	Extension string `json:"extension"`
	Content   string `json:"content"`
	Input     string `json:"input"`
}

var legacyExtensions = map[string]string{
	"c":    string(languages.C),
	"cpp":  string(languages.CPP),
	"java": string(languages.Java),
	"py":   string(languages.Python),
}

type Handler struct {
	dispatcher Dispatcher
	languages  LanguageLister
	logger     *zerolog.Logger
}

func NewHandler(dispatcher Dispatcher, langs LanguageLister, logger *zerolog.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		languages:  langs,
		logger:     logger,
	}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/languages", h.Languages)
}

// RegisterExecution mounts the endpoints that start jobs, behind mw.
func (h *Handler) RegisterExecution(r gin.IRouter, mw ...gin.HandlerFunc) {
	g := r.Group("", mw...)
	g.POST("/execute", h.Execute)
	g.POST("/compile", h.Compile)
}

func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

type languageInfo struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Aliases  []string `json:"aliases"`
	Compiled bool     `json:"compiled"`
}

func (h *Handler) Languages(c *gin.Context) {
	langs := h.languages.Languages()
	out := make([]languageInfo, 0, len(langs))
	for _, l := range langs {
		aliases := l.Aliases
		if aliases == nil {
			aliases = []string{}
		}
		out = append(out, languageInfo{ID: string(l.ID), Name: l.Name, Aliases: aliases, Compiled: l.Compiled()})
	}
	c.JSON(http.StatusOK, gin.H{"languages": out})
}

func (h *Handler) Execute(c *gin.Context) {
	var req ExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respErr(c, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	res, ok := h.dispatch(c, executor.ExecuteOptions{
		LanguageID:  req.Language,
		SourceCode:  req.Source,
		Stdin:       req.Stdin,
		TimeLimitMs: req.TimeLimitMs,
	})
	if !ok {
		return
	}
	c.JSON(statusFor(res.Outcome), res)
}

func (h *Handler) Compile(c *gin.Context) {
	var req CompileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body", "details": err.Error()})
		return
	}
	if req.Extension == "" || req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Missing required fields",
			"details": "Both 'extension' and 'content' are required",
		})
		return
	}
	lang, known := legacyExtensions[req.Extension]
	if !known {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid file extension",
			"details": "Supported extensions: c, cpp, java, py",
		})
		return
	}

	res, ok := h.dispatch(c, executor.ExecuteOptions{LanguageID: lang, SourceCode: req.Content, Stdin: req.Input})
	if !ok {
		return
	}

	if res.Outcome == verdict.Success {
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"output":   res.Stdout,
			"jobId":    res.JobID,
			"language": req.Extension,
		})
		return
	}

	var partial any
	if res.Stdout != "" {
		partial = res.Stdout
	}
	status := http.StatusBadRequest
	if res.Outcome == verdict.InternalError {
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{
		"success":       false,
		"error":         legacyErrorLabel(res.Outcome),
		"details":       res.Details,
		"timeout":       res.TimedOut,
		"partialOutput": partial,
	})
}

// dispatch runs a job through the pool and writes the response itself when the
// job could not be run at all.
func (h *Handler) dispatch(c *gin.Context, opts executor.ExecuteOptions) (*executor.ExecutionResult, bool) {
	res, err := h.dispatcher.Dispatch(c.Request.Context(), opts)
	switch {
	case err == nil:
		return res, true
	case errors.Is(err, queue.ErrQueueFull):
		c.Header("Retry-After", "1")
		respErr(c, http.StatusServiceUnavailable, "%v", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.logger.Info().Err(err).Str("language", opts.LanguageID).Msg("client went away before the job finished")
		c.Abort()
	default:
		h.logger.Error().Err(err).Msg("failed to dispatch job")
		respErr(c, http.StatusInternalServerError, "internal error")
	}
	return nil, false
}

func statusFor(outcome verdict.Outcome) int {
	switch outcome {
	case verdict.ValidationError:
		return http.StatusBadRequest
	case verdict.InternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

func legacyErrorLabel(outcome verdict.Outcome) string {
	switch outcome {
	case verdict.CompileError:
		return "Compilation Error"
	case verdict.RuntimeError:
		return "Runtime Error"
	case verdict.Timeout:
		return "Execution Timeout"
	case verdict.ValidationError:
		return "Invalid Request"
	default:
		return "Internal Server Error"
	}
}

func respErr(c *gin.Context, code int, errf string, values ...any) {
	c.AbortWithStatusJSON(code, gin.H{
		"ok":    false,
		"error": fmt.Sprintf(errf, values...),
	})
}
