package transport

import (
	"net/http"
	"sort"
	"strings"
)

// skippedCurlHeaders are set by curl itself.
var skippedCurlHeaders = map[string]bool{
	"Accept-Encoding": true,
	"Content-Length":  true,
	"User-Agent":      true,
}

// Curl renders the request as a shell command that reproduces it.
func (r *Request) Curl(verify bool) string {
	parts := []string{"curl", "-X", r.Method}
	names := make([]string, 0, len(r.Headers))
	for name := range r.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if skippedCurlHeaders[http.CanonicalHeaderKey(name)] {
			continue
		}
		for _, value := range r.Headers[name] {
			parts = append(parts, "-H", shellQuote(name+": "+value))
		}
	}
	if len(r.Body) > 0 {
		parts = append(parts, "-d", shellQuote(string(r.Body)))
	}
	if !verify {
		parts = append(parts, "--insecure")
	}
	parts = append(parts, shellQuote(r.URL))
	return strings.Join(parts, " ")
}

func shellQuote(value string) string {
	if value != "" && strings.IndexFunc(value, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:=@%+,", r))
	}) < 0 {
		return value
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}
