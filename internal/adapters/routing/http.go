package routing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const maxAttempts = 4

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("Code %d: %s", e.Code, e.Body)
}

// IsServerError reports an HTTP 5xx from an external service.
func IsServerError(err error) bool {
	var he *httpStatusError
	return errors.As(err, &he) && he.Code >= 500
}

// client is the shared HTTP plumbing of the routing adapters.
type client struct {
	session *http.Client
	// initial backoff interval; tests shrink it.
	backoff time.Duration
}

func newClient(timeout time.Duration) client {
	return client{
		session: &http.Client{Timeout: timeout},
		backoff: 200 * time.Millisecond,
	}
}

func newRequest(ctx context.Context, method, url, contentType string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	return req, nil
}

// do returns non-2xx responses as *httpStatusError unless keep accepts the status.
func (c client) do(req *http.Request, keep func(int) bool) (*http.Response, error) {
	resp, err := c.session.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 && (keep == nil || !keep(resp.StatusCode)) {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &httpStatusError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(b)),
		}
	}
	return resp, nil
}

func retryable(err error) bool {
	var he *httpStatusError
	if errors.As(err, &he) {
		switch he.Code {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// doWithRetry retries transient failures (network errors, 429 and 5xx responses)
// using exponential backoff while respecting context cancellation.
func (c client) doWithRetry(
	ctx context.Context,
	makeReq func() (*http.Request, error),
	keep func(int) bool,
) (*http.Response, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoff
	b.MaxElapsedTime = 0

	op := func() (*http.Response, error) {
		req, err := makeReq()
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("make request: %w", err))
		}

		resp, err := c.do(req, keep)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, maxAttempts-1), ctx)
	return backoff.RetryWithData(op, policy)
}
