// Package router calls the control-plane API either locally or, when a device is named,
// through the main node's proxy boundary to that device.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 10 << 20

// codeDeviceUnreachable is the code the proxy boundary reports when the target device is down.
const codeDeviceUnreachable = "DEVICE_UNREACHABLE"

// CallOptions describes one routed call.
type CallOptions struct {
	// Method defaults to GET.
	Method string
	// Body is encoded as JSON when non-nil.
	Body any
	// DeviceID selects a remote device; empty calls the main node's own handler.
	DeviceID string
	// Token is the caller's session token, sent as a Bearer credential.
	Token string
}

// RequestError is a non-2xx response. Message is the remote error text when present.
type RequestError struct {
	Status  int
	Message string
	Code    string
}

func (e *RequestError) Error() string {
	return e.Message
}

// TransportError means the call never produced an application response: the main node or
// the target device could not be reached.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure calling %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client routes API calls. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a Client for the main node at baseURL (e.g. http://10.0.0.1:3000).
// httpClient may be nil, in which case a client with a 30s timeout is used.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// Target returns the request URI for path. Without a device the call goes to the local handler
// under /api; with a device the leading /api segment is stripped and the call is sent to
// /api/proxy/<path>?deviceId=<id>, keeping any query parameters of path.
func Target(path, deviceID string) (string, error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("router: invalid path %q: %w", path, err)
	}
	p := "/" + strings.TrimLeft(u.Path, "/")
	if p == "/api" || strings.HasPrefix(p, "/api/") {
		p = "/" + strings.TrimLeft(strings.TrimPrefix(p, "/api"), "/")
	}
	if deviceID == "" {
		u.Path = "/api" + p
		return u.RequestURI(), nil
	}
	q := u.Query()
	q.Set("deviceId", deviceID)
	u.Path = "/api/proxy" + p
	u.RawQuery = q.Encode()
	return u.RequestURI(), nil
}

// Call performs the request and returns the raw 2xx response body. Non-2xx responses yield
// *RequestError; an unreachable main node or device yields *TransportError. Cancelling ctx
// aborts the in-flight call. Calls are never retried.
func (c *Client) Call(ctx context.Context, path string, opts CallOptions) (json.RawMessage, error) {
	target, err := Target(path, opts.DeviceID)
	if err != nil {
		return nil, err
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if opts.Body != nil {
		b, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("router: encode body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	endpoint := c.baseURL + target
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("router: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.Token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransportError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransportError{URL: endpoint, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}

	reqErr := &RequestError{Status: resp.StatusCode, Message: fmt.Sprintf("request failed: %d", resp.StatusCode)}
	var remote struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if json.Unmarshal(raw, &remote) == nil {
		if remote.Error != "" {
			reqErr.Message = remote.Error
		}
		reqErr.Code = remote.Code
	}
	if reqErr.Code == codeDeviceUnreachable {
		// A down device is not a rejected request, so the RequestError is not wrapped.
		return nil, &TransportError{URL: endpoint, Err: errors.New(reqErr.Message)}
	}
	return nil, reqErr
}

// IsTransport reports whether err is a transport failure rather than an application error.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
