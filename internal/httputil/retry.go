// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides the bounded retry used by collaborator clients.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// RetryBaseDelay is the first backoff interval. Tests override this to
// avoid real sleeps.
var RetryBaseDelay = 2 * time.Second

const defaultMaxRetries = 5

// StatusError reports a non-2xx response that was not retried or that
// exhausted its retries.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d from %s", e.Code, e.URL)
	}
	return fmt.Sprintf("HTTP %d from %s: %s", e.Code, e.URL, e.Body)
}

// Permanent reports whether repeating the request cannot help.
func (e *StatusError) Permanent() bool {
	return !retryable(e.Code)
}

// IsPermanent reports whether err wraps a permanent *StatusError.
func IsPermanent(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Permanent()
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// DoWithRetry executes req and retries on 429 and 5xx with exponential
// backoff: RetryBaseDelay, then doubling each attempt. maxRetries <= 0
// means the default of 5.
//
// A 2xx or 3xx response is returned to the caller, who closes its body.
// Any other status becomes a *StatusError: immediately for 4xx other than
// 429, after the last attempt for retryable codes. Cancelling ctx during
// a backoff returns ctx.Err().
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for attempt := 0; ; attempt++ {
		resp, err := client.Do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 400 {
			return resp, nil
		}

		serr := statusError(req, resp)
		if !retryable(resp.StatusCode) || attempt >= maxRetries {
			return nil, serr
		}

		backoff := RetryBaseDelay << attempt
		slog.Debug("retrying request",
			"component", "httputil", "url", req.URL.String(),
			"status", resp.StatusCode, "backoff", backoff,
			"attempt", attempt+1, "max", maxRetries)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// statusError drains and closes resp.
func statusError(req *http.Request, resp *http.Response) *StatusError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	io.Copy(io.Discard, resp.Body)
	return &StatusError{Code: resp.StatusCode, URL: req.URL.String(), Body: string(body)}
}
