// Package transport sends generated cases to the API under test and records
// what went over the wire.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/pyneda/kensa/pkg/generation/cases"
	"github.com/rs/zerolog/log"
)

// maxBodySize caps how much of a response body is kept.
const maxBodySize = 10 << 20

type Options struct {
	BaseURL         string
	Timeout         time.Duration
	Headers         map[string]string
	Proxy           string
	TLSVerify       bool
	HTTP2           bool
	FollowRedirects bool
	PersistCookies  bool
	Auth            *AuthConfig
}

// Transport executes a single case.
type Transport interface {
	Call(ctx context.Context, c *cases.Case) (*Response, error)
}

// Request is the serialized form of a sent request.
type Request struct {
	Method  string      `json:"method" yaml:"method"`
	URL     string      `json:"uri" yaml:"uri"`
	Headers http.Header `json:"headers" yaml:"headers"`
	Body    []byte      `json:"body,omitempty" yaml:"body,omitempty"`
}

type Response struct {
	StatusCode int           `json:"status_code" yaml:"status_code"`
	Message    string        `json:"message" yaml:"message"`
	Headers    http.Header   `json:"headers" yaml:"headers"`
	Body       []byte        `json:"body,omitempty" yaml:"body,omitempty"`
	Elapsed    time.Duration `json:"elapsed" yaml:"elapsed"`
	Verify     bool          `json:"verify_tls" yaml:"verify_tls"`
	Request    *Request      `json:"-" yaml:"-"`
}

// ContentType returns the media type of the response without parameters.
func (r *Response) ContentType() string {
	raw := r.Headers.Get("Content-Type")
	if raw == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return raw
	}
	return mediaType
}

// JSON decodes the response body.
func (r *Response) JSON() (any, error) {
	var out any
	decoder := json.NewDecoder(bytes.NewReader(r.Body))
	decoder.UseNumber()
	if err := decoder.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// RequestError is returned when a request was built but no response came
// back. It keeps the request so it can be reproduced.
type RequestError struct {
	Request *Request
	Err     error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Request.Method, e.Request.URL, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

type HTTPTransport struct {
	Client  *http.Client
	Builder *RequestBuilder
	BaseURL string
	Verify  bool
}

func New(opts Options) *HTTPTransport {
	return &HTTPTransport{
		Client:  CreateHttpClient(opts),
		Builder: NewRequestBuilder().WithHeaders(opts.Headers).WithAuth(opts.Auth),
		BaseURL: opts.BaseURL,
		Verify:  opts.TLSVerify,
	}
}

func (t *HTTPTransport) Call(ctx context.Context, c *cases.Case) (*Response, error) {
	req, err := t.Builder.Build(ctx, t.BaseURL, c)
	if err != nil {
		return nil, err
	}
	recorded := recordRequest(req)

	start := time.Now()
	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, &RequestError{Request: recorded, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &RequestError{Request: recorded, Err: fmt.Errorf("reading response body: %w", err)}
	}
	elapsed := time.Since(start)
	log.Debug().Str("method", recorded.Method).Str("url", recorded.URL).Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("Received response")

	return &Response{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
		Headers:    resp.Header,
		Body:       body,
		Elapsed:    elapsed,
		Verify:     t.Verify,
		Request:    recorded,
	}, nil
}

func recordRequest(req *http.Request) *Request {
	recorded := &Request{
		Method:  req.Method,
		URL:     req.URL.String(),
		Headers: req.Header.Clone(),
	}
	if req.GetBody != nil && req.ContentLength > 0 {
		if body, err := req.GetBody(); err == nil {
			recorded.Body, _ = io.ReadAll(body)
			body.Close()
		}
	}
	return recorded
}
