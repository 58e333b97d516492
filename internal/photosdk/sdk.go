package photosdk

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/denisbrodbeck/machineid"
	"github.com/imroc/req/v3"
	"github.com/jonboulle/clockwork"
	"github.com/openmined/photosync/internal/hmacauth"
	"github.com/openmined/photosync/internal/version"
)

const (
	HeaderUserAgent = "User-Agent"
	HeaderDeviceID  = "X-Client-Device-Id"

	// error bodies are truncated to this many bytes in HTTPStatusError
	maxErrorBody = 4 << 10
)

var deviceID = sync.OnceValue(func() string {
	id, err := machineid.ProtectedID("photosync")
	if err != nil {
		slog.Debug("machine id unavailable", "error", err)
		return "unknown"
	}
	return id
})

// Client issues signed requests to the photo server. It never retries.
type Client struct {
	client  *req.Client
	baseURL string
	secret  string
	clock   clockwork.Clock
}

// New creates a Client. The underlying connection pool lives until Close.
func New(cfg *ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	client := req.C().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetUserAgent(version.UserAgent()).
		SetCommonHeader(HeaderDeviceID, deviceID()).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	return &Client{
		client:  client,
		baseURL: cfg.BaseURL,
		secret:  cfg.Secret,
		clock:   clock,
	}, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close releases idle connections.
func (c *Client) Close() {
	c.client.GetTransport().CloseIdleConnections()
}

type requestOptions struct {
	stream bool
}

// RequestOption tweaks a single Request call
type RequestOption func(*requestOptions)

// WithStream leaves the response body unread; the caller must close resp.Body.
func WithStream() RequestOption {
	return func(o *requestOptions) {
		o.stream = true
	}
}

// Request sends a signed request. The signature covers path only; query is
// appended for transmission. A non-2xx status returns *HTTPStatusError and a
// connection or timeout failure returns *TransportError.
func (c *Client) Request(ctx context.Context, method, path string, query url.Values, opts ...RequestOption) (*req.Response, error) {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	signPath := hmacauth.CanonicalPath(path)
	sig := hmacauth.Sign(method, signPath, c.secret, c.clock.Now())

	target := signPath
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}

	r := c.client.R().
		SetContext(ctx).
		SetHeader(hmacauth.HeaderTimestamp, fmt.Sprint(sig.Timestamp)).
		SetHeader(hmacauth.HeaderSignature, sig.Value)
	if o.stream {
		r.DisableAutoReadResponse()
	}

	op := method + " " + signPath
	resp, err := r.Send(method, target)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{Op: op, Status: resp.StatusCode, Body: errorBody(resp, o.stream)}
	}

	return resp, nil
}

func errorBody(resp *req.Response, stream bool) string {
	if !stream {
		body := resp.String()
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return strings.TrimSpace(body)
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return strings.TrimSpace(string(body))
}
