package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-resty/resty/v2"

	"github.com/itstheanurag/runbox/internal/executor"
)

type Error struct {
	Code    int
	Message string
	Path    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("runbox error, request path: %s, code: %d, message: %s", e.Path, e.Code, e.Message)
}

// Client talks to a runbox server. Requests refused with 429 or 503 are
// retried with exponential backoff.
type Client struct {
	client  *resty.Client
	backOff func() backoff.BackOff
	maxTime time.Duration
}

func New(baseURL string) *Client {
	return &Client{
		client:  resty.New().SetBaseURL(baseURL),
		backOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		maxTime: time.Minute,
	}
}

// WithBackOff replaces the retry policy.
func (c *Client) WithBackOff(newBackOff func() backoff.BackOff, maxElapsed time.Duration) *Client {
	c.backOff = newBackOff
	c.maxTime = maxElapsed
	return c
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) Execute(ctx context.Context, req executor.ExecuteOptions) (*executor.ExecutionResult, error) {
	return backoff.Retry(ctx, func() (*executor.ExecutionResult, error) {
		result := new(executor.ExecutionResult)
		failure := new(errorBody)
		resp, err := c.client.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(result).
			SetError(failure).
			Post("/execute")
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		switch code := resp.StatusCode(); {
		case code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable:
			return nil, &Error{Code: code, Message: failure.Error, Path: "/execute"}
		case code == http.StatusBadRequest || code == http.StatusInternalServerError:
			// classified outcomes still carry a result body
			if json.Unmarshal(resp.Body(), result) == nil && result.Outcome != "" {
				return result, nil
			}
			return nil, backoff.Permanent(&Error{Code: code, Message: failure.Error, Path: "/execute"})
		case resp.IsError():
			return nil, backoff.Permanent(&Error{Code: code, Message: failure.Error, Path: "/execute"})
		}
		return result, nil
	},
		backoff.WithBackOff(c.backOff()),
		backoff.WithMaxElapsedTime(c.maxTime),
	)
}

type LanguageInfo struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Aliases  []string `json:"aliases"`
	Compiled bool     `json:"compiled"`
}

func (c *Client) Languages(ctx context.Context) ([]LanguageInfo, error) {
	var body struct {
		Languages []LanguageInfo `json:"languages"`
	}
	resp, err := c.client.R().SetContext(ctx).SetResult(&body).Get("/languages")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &Error{Code: resp.StatusCode(), Message: resp.String(), Path: "/languages"}
	}
	return body.Languages, nil
}

// IsRetryable reports whether err is a refusal the server may lift later.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && (e.Code == http.StatusTooManyRequests || e.Code == http.StatusServiceUnavailable)
}
