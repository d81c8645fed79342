// Package llm holds the HTTP plumbing and response parsing shared by the
// model clients.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
)

type HTTPStatusError struct {
	Provider   string
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "llm status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("%s %s status: %s", e.Provider, e.Operation, e.Status)
	}
	return fmt.Sprintf("%s %s status: %s: %s", e.Provider, e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// Request describes one JSON POST to a model endpoint.
type Request struct {
	Provider  string
	Operation string
	URL       string
	Headers   map[string]string
	Payload   any
}

// PostJSON sends req and decodes the JSON response into out. Failures are
// returned with a domain error kind: transport problems and non-2xx statuses
// as ErrRemoteTransport, undecodable bodies as ErrRemoteFormat.
func PostJSON(ctx context.Context, client *http.Client, limiter *rate.Limiter, req Request, out any) error {
	body, err := json.Marshal(req.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", req.Operation, err)
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s %s rate limit wait: %w", req.Provider, req.Operation, err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", req.Operation, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return classifyTransportError(req.Operation, fmt.Errorf("%s %s request: %w", req.Provider, req.Operation, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return classifyTransportError(req.Operation, formatHTTPError(req.Provider, req.Operation, resp))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return domain.WrapError(domain.ErrRemoteTransport, req.Operation, err)
		}
		return domain.WrapError(domain.ErrRemoteFormat, req.Operation, fmt.Errorf("decode %s response: %w", req.Operation, err))
	}
	return nil
}

func formatHTTPError(provider, operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Provider:   provider,
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
	}
}

// classifyTransportError labels every failed exchange with the endpoint as a
// remote failure. Rejected credentials are ErrUnauthorized, which is not
// retried; any other status, including 4xx, is ErrRemoteTransport.
func classifyTransportError(operation string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) && rejectsCredentials(statusErr.StatusCode) {
		return domain.WrapError(domain.ErrUnauthorized, operation, err)
	}
	return domain.WrapError(domain.ErrRemoteTransport, operation, err)
}

func rejectsCredentials(statusCode int) bool {
	return statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden
}

// NewLimiter returns nil when rps is not positive.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
