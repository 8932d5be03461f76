package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPApplier applies mutations against the hosted backend's REST surface.
// The payload is forwarded opaquely; the backend owns the wire format.
type HTTPApplier struct {
	base   string
	client *http.Client
}

// NewHTTPApplier creates an applier for the given base URL.
func NewHTTPApplier(base string) *HTTPApplier {
	return &HTTPApplier{
		base: base,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Create applies a create mutation.
func (a *HTTPApplier) Create(ctx context.Context, entityType, id string, payload []byte) error {
	return a.do(ctx, http.MethodPost, entityType, id, payload)
}

// Update applies an update mutation.
func (a *HTTPApplier) Update(ctx context.Context, entityType, id string, payload []byte) error {
	return a.do(ctx, http.MethodPut, entityType, id, payload)
}

// Delete applies a delete mutation.
func (a *HTTPApplier) Delete(ctx context.Context, entityType, id string) error {
	return a.do(ctx, http.MethodDelete, entityType, id, nil)
}

// Ping checks whether the backend is reachable.
func (a *HTTPApplier) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, a.base+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("backend unhealthy: %s", resp.Status)
	}
	return nil
}

func (a *HTTPApplier) do(ctx context.Context, method, entityType, id string, payload []byte) error {
	u := fmt.Sprintf("%s/%s/%s", a.base, url.PathEscape(entityType), url.PathEscape(id))

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		// Transport failure: retryable by definition.
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return &Error{
			Code:      resp.Status,
			Message:   fmt.Sprintf("%s %s", method, u),
			Retryable: true,
		}
	default:
		// Validation rejection, permission denial: retrying cannot help.
		return &Error{
			Code:      resp.Status,
			Message:   fmt.Sprintf("%s %s", method, u),
			Retryable: false,
		}
	}
}
