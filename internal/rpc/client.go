// Package rpc implements the signed call channel to the payment API: it
// builds the canonical request envelope, attaches the token path and
// identity signature when bound, and interprets the remote envelope. The
// channel performs no retries; retry policy belongs to the caller.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"paylink/go-client/internal/identity"
	"paylink/go-client/internal/platform/ratelimiter"
)

// FacadePublic is the only capability scope that may omit both token and
// identity.
const FacadePublic = "public"

// Client is a channel to one API host, optionally bound to a token and a
// signing identity.
type Client struct {
	host      string
	port      int
	token     string
	identity  *identity.Identity
	transport Transport
	limiter   *ratelimiter.HostLimiter
	logger    *slog.Logger
}

type Option func(*Client)

// WithToken binds an access token; calls then target /api/{token}.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithIdentity binds a signing identity; calls then carry a nonce and the
// X-Identity/X-Signature headers.
func WithIdentity(ident *identity.Identity) Option {
	return func(c *Client) { c.identity = ident }
}

// WithTransport injects the transport capability. Defaults to HTTPS with a
// 30s timeout.
func WithTransport(t Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithLimiter throttles outbound calls per host.
func WithLimiter(l *ratelimiter.HostLimiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithLogger attaches a logger for call tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func New(host string, port int, opts ...Option) *Client {
	c := &Client{host: host, port: port}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = NewHTTPSTransport(0, false)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

func (c *Client) Host() string { return c.host }
func (c *Client) Port() int    { return c.port }

type callPayload struct {
	Method string `json:"method"`
	Params string `json:"params"`
	Nonce  *int64 `json:"nonce,omitempty"`
}

type responseEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error json.RawMessage `json:"error"`
}

// Call performs one RPC round trip. The params object is JSON-encoded into
// the "params" string field of the body; when an identity is bound, the
// absolute URL concatenated with the exact serialized body is signed.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if method == "" {
		return nil, ErrMissingMethod
	}
	if params == nil {
		params = map[string]any{}
	}

	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	payload := callPayload{Method: method, Params: string(paramsJSON)}
	if c.identity != nil {
		payload.Nonce = c.identity.Nonce()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	apiPath := "/api"
	if c.token != "" {
		apiPath += "/" + c.token
	}
	url := c.baseURL() + apiPath

	headers := map[string]string{
		"Content-Type":     "application/json",
		"Cache-Control":    "no-cache",
		"X-Accept-Version": "2.0.0",
	}
	if c.identity != nil {
		headers["X-Identity"] = c.identity.PublicKey()
		headers["X-Signature"] = c.identity.Sign([]byte(url + string(body)))
	}

	c.logger.Debug("rpc call", "rpc_method", method, "host", c.host, "signed", c.identity != nil)

	resp, err := c.transport.Do(ctx, Request{
		Method:  "POST",
		URL:     url,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		observeCall(method, outcomeNetworkError)
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	return c.interpret(method, resp)
}

func (c *Client) interpret(method string, resp Response) (json.RawMessage, error) {
	var env responseEnvelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		observeCall(method, outcomeParseError)
		return nil, ErrParse
	}
	if len(env.Error) > 0 {
		observeCall(method, outcomeRemoteError)
		var message string
		if err := json.Unmarshal(env.Error, &message); err != nil {
			message = string(env.Error)
		}
		return nil, &RemoteError{Message: message}
	}
	if len(env.Data) == 0 {
		// Neither data nor error is a protocol violation.
		observeCall(method, outcomeParseError)
		return nil, ErrParse
	}
	observeCall(method, outcomeOK)
	return env.Data, nil
}

// baseURL builds the absolute origin used both as request target and as the
// prefix of the signed payload. Port 443 is elided to match what the server
// verifies.
func (c *Client) baseURL() string {
	if c.port == 443 {
		return "https://" + c.host
	}
	return fmt.Sprintf("https://%s:%d", c.host, c.port)
}

func (c *Client) throttle(ctx context.Context) error {
	// Wait is nil-safe: an unconfigured limiter admits immediately.
	return c.limiter.Wait(ctx, c.host)
}
