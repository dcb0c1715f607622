package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itstheanurag/runbox/internal/executor"
	"github.com/itstheanurag/runbox/internal/verdict"
)

func fastClient(url string) *Client {
	return New(url).WithBackOff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(5 * time.Millisecond)
	}, 2*time.Second)
}

func TestExecuteRetriesWhenBusy(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"ok":false,"error":"execution queue is full"}`))
			return
		}
		var req executor.ExecuteOptions
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(&executor.ExecutionResult{
			Outcome:       verdict.Success,
			Stdout:        req.Stdin,
			ExecutionTime: 12 * time.Millisecond,
		})
	}))
	defer srv.Close()

	res, err := fastClient(srv.URL).Execute(context.Background(), executor.ExecuteOptions{LanguageID: "python", SourceCode: "x", Stdin: "echo"})
	require.NoError(t, err)
	assert.Equal(t, verdict.Success, res.Outcome)
	assert.Equal(t, "echo", res.Stdout)
	assert.Equal(t, 12*time.Millisecond, res.ExecutionTime)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecuteReturnsClassifiedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"outcome":"validation_error","stdout":"","details":"unsupported language: \"cobol\"","executionTimeMs":0,"timedOut":false}`))
	}))
	defer srv.Close()

	res, err := fastClient(srv.URL).Execute(context.Background(), executor.ExecuteOptions{LanguageID: "cobol", SourceCode: "x"})
	require.NoError(t, err)
	assert.Equal(t, verdict.ValidationError, res.Outcome)
}

func TestExecuteDoesNotRetryOtherErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error":"invalid request body"}`))
	}))
	defer srv.Close()

	_, err := fastClient(srv.URL).Execute(context.Background(), executor.ExecuteOptions{})
	require.Error(t, err)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Code)
	assert.Equal(t, "invalid request body", apiErr.Message)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestLanguages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/languages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"languages":[{"id":"c","name":"C","aliases":[],"compiled":true}]}`))
	}))
	defer srv.Close()

	langs, err := New(srv.URL).Languages(context.Background())
	require.NoError(t, err)
	require.Len(t, langs, 1)
	assert.Equal(t, "c", langs[0].ID)
	assert.True(t, langs[0].Compiled)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&Error{Code: http.StatusTooManyRequests}))
	assert.True(t, IsRetryable(&Error{Code: http.StatusServiceUnavailable}))
	assert.False(t, IsRetryable(&Error{Code: http.StatusNotFound}))
}
