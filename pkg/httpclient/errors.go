package httpclient

import (
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/srivardhan-kondu/EmpathyAI/pkg/errors"
)

// maxErrorBody bounds how much of an upstream error body is kept.
const maxErrorBody = 4 << 10

// UpstreamError describes a non-2xx response from an upstream dependency. It
// wraps apperrors.ErrServiceUnavail so callers map it to a dependency failure
// and never surface the upstream body to clients.
type UpstreamError struct {
	Upstream string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Upstream, e.Status, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return apperrors.ErrServiceUnavail
}

// ParseResponseError consumes and closes the body of a non-2xx response and
// returns an *UpstreamError.
func ParseResponseError(resp *http.Response, upstream string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		body = []byte(fmt.Sprintf("<unreadable body: %v>", err))
	}
	return &UpstreamError{Upstream: upstream, Status: resp.StatusCode, Body: string(body)}
}
