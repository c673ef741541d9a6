// Package provider talks to upstream SMM provider APIs: it sends requests
// built by apispec and normalizes their arbitrary-shaped responses.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smmpanel/panelsync/internal/apispec"
	"github.com/smmpanel/panelsync/internal/customerror"
	"github.com/smmpanel/panelsync/internal/model"
)

const DefaultTimeout = 30 * time.Second

// Caller issues provider requests over a shared HTTP client. Per-call
// deadlines come from the provider's configured timeout, not the client.
type Caller struct {
	Client *http.Client
}

func NewCaller() *Caller {
	return &Caller{Client: &http.Client{}}
}

// Do sends one provider request and returns the raw response body. Transport
// failures are folded into the error taxonomy; a non-2xx answer becomes a
// ProviderRejected carrying the body verbatim.
func (c *Caller) Do(ctx context.Context, req apispec.Request, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("can't build provider request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", customerror.ErrTimeout, req.URL)
		}
		return nil, fmt.Errorf("%w: %v", customerror.ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", customerror.ErrNetwork, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return raw, &customerror.ProviderRejected{
			Message: fmt.Sprintf("http %d: %s", resp.StatusCode, excerpt(raw)),
		}
	}

	return raw, nil
}

func excerpt(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// BuilderFor assembles the request builder for a provider record. The
// provider's own encoding column wins over the specification row.
func BuilderFor(p model.Provider) (*apispec.Builder, error) {
	var raw string
	if p.RequestSpec != nil {
		raw = *p.RequestSpec
	}
	spec, err := apispec.Parse(raw)
	if err != nil {
		return nil, err
	}
	if p.Encoding != "" {
		spec.Encoding = p.Encoding
	}

	endpoints := apispec.Endpoints{
		Services: deref(p.ServicesEndpoint),
		Add:      deref(p.AddEndpoint),
		Status:   deref(p.StatusEndpoint),
		Balance:  deref(p.BalanceEndpoint),
		Refill:   deref(p.RefillEndpoint),
		Cancel:   deref(p.CancelEndpoint),
	}

	return apispec.NewBuilder(spec, endpoints, p.APIURL, p.APIKey, p.HTTPMethod), nil
}

// Timeout returns the provider's per-call deadline.
func Timeout(p model.Provider) time.Duration {
	if p.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
