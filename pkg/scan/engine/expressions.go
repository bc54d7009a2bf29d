package engine

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-openapi/jsonpointer"
	"github.com/pyneda/kensa/pkg/generation/cases"
	"github.com/pyneda/kensa/pkg/transport"
)

// ExpressionContext is what a link runtime expression is evaluated against.
type ExpressionContext struct {
	Case     *cases.Case
	Response *transport.Response
}

// Evaluate resolves a runtime expression such as "$response.body#/id" or
// "$response.header.Location". Values without a leading "$" are literals;
// "{$...}" parts embedded in a string are substituted.
func (c ExpressionContext) Evaluate(expression string) (any, error) {
	if !strings.HasPrefix(expression, "$") {
		if !strings.Contains(expression, "{$") {
			return expression, nil
		}
		return c.embedded(expression)
	}
	switch {
	case expression == "$url":
		if c.Response != nil && c.Response.Request != nil {
			return c.Response.Request.URL, nil
		}
		return nil, fmt.Errorf("no request for %s", expression)
	case expression == "$method":
		return strings.ToUpper(c.Case.Method), nil
	case expression == "$statusCode":
		return c.Response.StatusCode, nil
	case strings.HasPrefix(expression, "$request."):
		return c.request(strings.TrimPrefix(expression, "$request."))
	case strings.HasPrefix(expression, "$response."):
		return c.response(strings.TrimPrefix(expression, "$response."))
	}
	return nil, fmt.Errorf("unknown runtime expression %q", expression)
}

func (c ExpressionContext) embedded(expression string) (any, error) {
	var b strings.Builder
	rest := expression
	for {
		start := strings.Index(rest, "{$")
		if start < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			return nil, fmt.Errorf("unterminated runtime expression in %q", expression)
		}
		b.WriteString(rest[:start])
		value, err := c.Evaluate(rest[start+1 : start+end])
		if err != nil {
			return nil, err
		}
		b.WriteString(fmt.Sprint(cases.Stringify(value, "")))
		rest = rest[start+end+1:]
	}
}

func (c ExpressionContext) request(source string) (any, error) {
	if strings.HasPrefix(source, "body") {
		if !c.Case.HasBody {
			return nil, fmt.Errorf("request has no body")
		}
		return pointer(c.Case.Body, strings.TrimPrefix(source, "body"))
	}
	location, name, ok := strings.Cut(source, ".")
	if !ok {
		return nil, fmt.Errorf("malformed request expression %q", source)
	}
	var container map[string]any
	switch location {
	case "path":
		container = c.Case.PathParameters
	case "query":
		container = c.Case.Query
	case "header":
		for key, value := range c.Case.Headers {
			if strings.EqualFold(key, name) {
				return value, nil
			}
		}
		return nil, fmt.Errorf("request header %q not found", name)
	case "cookie":
		container = c.Case.Cookies
	default:
		return nil, fmt.Errorf("unknown request location %q", location)
	}
	value, found := container[name]
	if !found {
		return nil, fmt.Errorf("request %s parameter %q not found", location, name)
	}
	return value, nil
}

func (c ExpressionContext) response(source string) (any, error) {
	if c.Response == nil {
		return nil, fmt.Errorf("no response")
	}
	if name, ok := strings.CutPrefix(source, "header."); ok {
		value := c.Response.Headers.Get(name)
		if value == "" {
			return nil, fmt.Errorf("response header %q not found", name)
		}
		return value, nil
	}
	if !strings.HasPrefix(source, "body") {
		return nil, fmt.Errorf("malformed response expression %q", source)
	}
	body, err := c.Response.JSON()
	if err != nil {
		return nil, fmt.Errorf("response body is not JSON: %w", err)
	}
	return pointer(body, strings.TrimPrefix(source, "body"))
}

// pointer applies a "#/a/b" fragment to a document. An empty fragment
// selects the whole document.
func pointer(document any, fragment string) (any, error) {
	fragment = strings.TrimPrefix(fragment, "#")
	if fragment == "" {
		return document, nil
	}
	if unescaped, err := url.PathUnescape(fragment); err == nil {
		fragment = unescaped
	}
	ptr, err := jsonpointer.New(fragment)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON pointer %q: %w", fragment, err)
	}
	value, _, err := ptr.Get(document)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", fragment, err)
	}
	return value, nil
}

// statusMatches reports whether a link status such as "201", "2XX" or
// "default" covers a response status.
func statusMatches(expected string, status int) bool {
	expected = strings.ToUpper(expected)
	switch {
	case expected == "" || expected == "DEFAULT":
		return true
	case strings.HasSuffix(expected, "XX") && len(expected) == 3:
		return strconv.Itoa(status)[:1] == expected[:1]
	}
	return expected == strconv.Itoa(status)
}
