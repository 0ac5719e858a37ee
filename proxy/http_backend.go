package proxy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// Largest analysis document accepted from the backend
const maxResponseBytes = 32 << 20

// HTTPBackend forwards requests to the analysis service's POST /analyze
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBackend creates a backend for the service at baseURL
func NewHTTPBackend(baseURL string, timeout time.Duration) *HTTPBackend {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Endpoint is the URL requests are posted to
func (b *HTTPBackend) Endpoint() string {
	return b.baseURL + "/analyze"
}

// Analyze posts the request body with the client's content type
func (b *HTTPBackend) Analyze(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Endpoint(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, &BackendError{Kind: ErrFailed, Detail: err.Error(), Err: err}
	}
	httpReq.Header.Set("Content-Type", req.ContentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "A11yLens/1.0")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, &BackendError{Kind: ErrUnreachable, Detail: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &BackendError{Kind: ErrUnreachable, Detail: "reading response: " + err.Error(), Err: err}
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}
