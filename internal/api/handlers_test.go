package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itstheanurag/runbox/internal/executor"
	"github.com/itstheanurag/runbox/internal/languages"
	"github.com/itstheanurag/runbox/internal/queue"
	"github.com/itstheanurag/runbox/internal/verdict"
)

type fakeDispatcher struct {
	got executor.ExecuteOptions
	res *executor.ExecutionResult
	err error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, opts executor.ExecuteOptions) (*executor.ExecutionResult, error) {
	f.got = opts
	return f.res, f.err
}

type registryLister struct {
	r *languages.Registry
}

func (l registryLister) Languages() []languages.Language { return l.r.List() }

func newRouter(d Dispatcher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zerolog.Nop()
	h := NewHandler(d, registryLister{languages.NewRegistry()}, &logger)
	r := gin.New()
	h.Register(r)
	h.RegisterExecution(r)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestExecuteStatusCodes(t *testing.T) {
	cases := []struct {
		outcome verdict.Outcome
		status  int
	}{
		{verdict.Success, http.StatusOK},
		{verdict.CompileError, http.StatusOK},
		{verdict.RuntimeError, http.StatusOK},
		{verdict.Timeout, http.StatusOK},
		{verdict.ValidationError, http.StatusBadRequest},
		{verdict.InternalError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(string(tc.outcome), func(t *testing.T) {
			d := &fakeDispatcher{res: &executor.ExecutionResult{Outcome: tc.outcome}}
			w := do(newRouter(d), http.MethodPost, "/execute",
				`{"language":"python","source":"print(1)","stdin":"x","timeLimitMs":1500}`)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, string(tc.outcome), decode(t, w)["outcome"])
			assert.Equal(t, executor.ExecuteOptions{LanguageID: "python", SourceCode: "print(1)", Stdin: "x", TimeLimitMs: 1500}, d.got)
		})
	}
}

func TestExecuteResponseShape(t *testing.T) {
	d := &fakeDispatcher{res: &executor.ExecutionResult{Outcome: verdict.Success, Stdout: "1\n", JobID: "abc"}}
	body := decode(t, do(newRouter(d), http.MethodPost, "/execute", `{"language":"python","source":"print(1)"}`))
	for _, key := range []string{"outcome", "stdout", "details", "executionTimeMs", "timedOut"} {
		assert.Contains(t, body, key)
	}
	assert.Equal(t, "", body["details"])
}

func TestExecuteBadBody(t *testing.T) {
	w := do(newRouter(&fakeDispatcher{}), http.MethodPost, "/execute", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExecuteQueueFull(t *testing.T) {
	w := do(newRouter(&fakeDispatcher{err: queue.ErrQueueFull}), http.MethodPost, "/execute", `{"language":"c","source":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestCompileLegacySuccess(t *testing.T) {
	d := &fakeDispatcher{res: &executor.ExecutionResult{Outcome: verdict.Success, Stdout: "hi\n", JobID: "job-1"}}
	w := do(newRouter(d), http.MethodPost, "/compile", `{"extension":"py","content":"print('hi')","input":"in"}`)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "hi\n", body["output"])
	assert.Equal(t, "job-1", body["jobId"])
	assert.Equal(t, "py", body["language"])
	assert.Equal(t, "python", d.got.LanguageID)
	assert.Equal(t, "in", d.got.Stdin)
}

func TestCompileLegacyFailure(t *testing.T) {
	d := &fakeDispatcher{res: &executor.ExecutionResult{Outcome: verdict.Timeout, TimedOut: true, Stdout: "partial"}}
	w := do(newRouter(d), http.MethodPost, "/compile", `{"extension":"cpp","content":"int main(){for(;;);}"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, true, body["timeout"])
	assert.Equal(t, "partial", body["partialOutput"])
	assert.Equal(t, "Execution Timeout", body["error"])
}

func TestCompileLegacyValidation(t *testing.T) {
	r := newRouter(&fakeDispatcher{})

	w := do(r, http.MethodPost, "/compile", `{"extension":"py"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing required fields", decode(t, w)["error"])

	w = do(r, http.MethodPost, "/compile", `{"extension":"rb","content":"puts 1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid file extension", decode(t, w)["error"])
}

func TestLanguagesAndHealth(t *testing.T) {
	r := newRouter(&fakeDispatcher{})

	w := do(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	w = do(r, http.MethodGet, "/languages", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Languages []languageInfo `json:"languages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Languages, 4)
	assert.Equal(t, "c", body.Languages[0].ID)
	assert.True(t, body.Languages[0].Compiled)
	assert.Equal(t, "python", body.Languages[3].ID)
	assert.False(t, body.Languages[3].Compiled)
}
