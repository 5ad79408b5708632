package rpc

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"time"
)

// Request is the wire-shaped envelope handed to a Transport: the channel
// decides URL, headers and body; the transport only moves bytes.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response carries the raw remote reply back to the channel for
// interpretation.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport is the injected capability that performs one HTTP exchange.
type Transport interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// HTTPSTransport is the production transport over net/http.
type HTTPSTransport struct {
	client *http.Client
}

// NewHTTPSTransport builds a transport with the given per-call timeout.
// Insecure disables certificate verification for test servers.
func NewHTTPSTransport(timeout time.Duration, insecure bool) *HTTPSTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	if insecure {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &HTTPSTransport{client: client}
}

func (t *HTTPSTransport) Do(ctx context.Context, req Request) (Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Response{}, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}
	return Response{StatusCode: resp.StatusCode, Body: body}, nil
}
