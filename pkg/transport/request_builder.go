package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/pyneda/kensa/pkg/api/core"
	"github.com/pyneda/kensa/pkg/generation/cases"
	"github.com/pyneda/kensa/pkg/schema"
)

const DefaultUserAgent = "kensa/1.0"

type RequestBuilder struct {
	DefaultHeaders map[string]string
	AuthConfig     *AuthConfig
}

type AuthConfig struct {
	BearerToken   string
	BasicUsername string
	BasicPassword string
	APIKey        string
	APIKeyName    string
	APIKeyIn      string
}

func (a *AuthConfig) IsDefined() bool {
	return a != nil && (a.BearerToken != "" || a.BasicUsername != "" || a.BasicPassword != "" || a.APIKey != "")
}

func NewRequestBuilder() *RequestBuilder {
	return &RequestBuilder{
		DefaultHeaders: map[string]string{
			"User-Agent": DefaultUserAgent,
			"Accept":     "application/json, */*",
		},
	}
}

func (b *RequestBuilder) WithAuth(config *AuthConfig) *RequestBuilder {
	b.AuthConfig = config
	return b
}

// WithHeaders adds headers sent with every request unless the case sets them.
func (b *RequestBuilder) WithHeaders(headers map[string]string) *RequestBuilder {
	for k, v := range headers {
		b.DefaultHeaders[http.CanonicalHeaderKey(k)] = v
	}
	return b
}

// Build creates the HTTP request for a case against baseURL.
func (b *RequestBuilder) Build(ctx context.Context, baseURL string, c *cases.Case) (*http.Request, error) {
	if baseURL == "" && c.Operation != nil {
		baseURL = c.Operation.BaseURL
	}
	if baseURL == "" {
		return nil, fmt.Errorf("building URL for %s %s: no base URL", c.Method, c.Path)
	}
	body, contentType, err := EncodeBody(c)
	if err != nil {
		return nil, fmt.Errorf("building body: %w", err)
	}

	method := c.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), c.URL(baseURL), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.HasBody && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	b.addHeaderParams(req, c)
	b.addCookieParams(req, c)
	b.addDefaultHeaders(req)
	b.applyAuth(req)
	return req, nil
}

func (b *RequestBuilder) addHeaderParams(req *http.Request, c *cases.Case) {
	for _, header := range c.HeaderValues() {
		req.Header[http.CanonicalHeaderKey(header[0])] = []string{header[1]}
	}
}

func (b *RequestBuilder) addCookieParams(req *http.Request, c *cases.Case) {
	for _, name := range schema.SortedKeys(c.Cookies) {
		req.AddCookie(&http.Cookie{
			Name:  name,
			Value: fmt.Sprint(c.Cookies[name]),
		})
	}
}

func (b *RequestBuilder) addDefaultHeaders(req *http.Request) {
	for k, v := range b.DefaultHeaders {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
}

func (b *RequestBuilder) applyAuth(req *http.Request) {
	if !b.AuthConfig.IsDefined() {
		return
	}
	// Explicit credentials in the case win, so negative auth cases still reach the API.
	if b.AuthConfig.BearerToken != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+b.AuthConfig.BearerToken)
	}
	if (b.AuthConfig.BasicUsername != "" || b.AuthConfig.BasicPassword != "") && req.Header.Get("Authorization") == "" {
		req.SetBasicAuth(b.AuthConfig.BasicUsername, b.AuthConfig.BasicPassword)
	}
	if b.AuthConfig.APIKey != "" && b.AuthConfig.APIKeyName != "" {
		switch b.AuthConfig.APIKeyIn {
		case "query":
			q := req.URL.Query()
			if q.Get(b.AuthConfig.APIKeyName) == "" {
				q.Set(b.AuthConfig.APIKeyName, b.AuthConfig.APIKey)
				req.URL.RawQuery = q.Encode()
			}
		case "cookie":
			if _, err := req.Cookie(b.AuthConfig.APIKeyName); err != nil {
				req.AddCookie(&http.Cookie{Name: b.AuthConfig.APIKeyName, Value: b.AuthConfig.APIKey})
			}
		default:
			if req.Header.Get(b.AuthConfig.APIKeyName) == "" {
				req.Header.Set(b.AuthConfig.APIKeyName, b.AuthConfig.APIKey)
			}
		}
	}
}

// EncodeBody serializes the case body for its media type and returns the
// payload with the content type to send. Form encodings need an object;
// other values are sent as text so negative bodies still reach the API.
func EncodeBody(c *cases.Case) ([]byte, string, error) {
	if !c.HasBody {
		return nil, "", nil
	}
	contentType := c.MediaType
	if contentType == "" {
		contentType = "application/json"
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}

	switch {
	case isJSON(mediaType):
		body, err := json.Marshal(c.Body)
		if err != nil {
			return nil, "", fmt.Errorf("marshaling body: %w", err)
		}
		return body, contentType, nil
	case mediaType == "application/x-www-form-urlencoded":
		fields, ok := c.Body.(map[string]any)
		if !ok {
			return []byte(textValue(c.Body)), contentType, nil
		}
		form := url.Values{}
		for _, name := range schema.SortedKeys(fields) {
			switch v := cases.Stringify(fields[name], core.ParameterLocationQuery).(type) {
			case []any:
				for _, item := range v {
					form.Add(name, fmt.Sprint(item))
				}
			default:
				form.Set(name, fmt.Sprint(v))
			}
		}
		return []byte(form.Encode()), contentType, nil
	case mediaType == "multipart/form-data":
		fields, ok := c.Body.(map[string]any)
		if !ok {
			return []byte(textValue(c.Body)), contentType, nil
		}
		buf := new(bytes.Buffer)
		writer := multipart.NewWriter(buf)
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := writer.WriteField(name, textValue(fields[name])); err != nil {
				return nil, "", fmt.Errorf("writing multipart field %s: %w", name, err)
			}
		}
		if err := writer.Close(); err != nil {
			return nil, "", fmt.Errorf("closing multipart writer: %w", err)
		}
		return buf.Bytes(), writer.FormDataContentType(), nil
	case strings.HasPrefix(mediaType, "text/"), mediaType == "application/octet-stream":
		return []byte(textValue(c.Body)), contentType, nil
	}
	body, err := json.Marshal(c.Body)
	if err != nil {
		return nil, "", fmt.Errorf("marshaling body: %w", err)
	}
	return body, contentType, nil
}

func isJSON(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func textValue(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(cases.Stringify(value, core.ParameterLocationHeader))
}
