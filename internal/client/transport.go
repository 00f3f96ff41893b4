package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds one network exchange. A timeout is treated
// identically to a transport failure, never as a partial success.
const DefaultTimeout = 30 * time.Second

// Transport performs one reconciliation exchange with the remote store.
// Implementations must be safe for use from a single sync round at a
// time; the client guarantees rounds never overlap.
type Transport interface {
	Exchange(ctx context.Context, req *Request) (*Response, error)
}

// HTTPTransport exchanges sync rounds as JSON over HTTP against the
// remindful sync server (POST {base}/api/sync, bearer token auth).
type HTTPTransport struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPTransport creates a transport for the given server base URL.
// A zero timeout selects DefaultTimeout.
func NewHTTPTransport(baseURL, token string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPTransport{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// Exchange implements Transport.
func (t *HTTPTransport) Exchange(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sync request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/api/sync", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build sync request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.token)
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sync exchange failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, fmt.Errorf("sync server returned %d: %s", httpResp.StatusCode, bytes.TrimSpace(msg))
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode sync response: %w", err)
	}
	return &resp, nil
}
