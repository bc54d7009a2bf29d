package core

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

type Operation struct {
	ID          uuid.UUID   `json:"id"`
	APIType     APIType     `json:"api_type"`
	Method      string      `json:"method"`
	Path        string      `json:"path"`
	BaseURL     string      `json:"base_url"`
	Parameters  []Parameter `json:"parameters"`
	Body        []Body      `json:"body,omitempty"`
	Responses   []Response  `json:"responses,omitempty"`
	Links       []Link      `json:"links,omitempty"`
	Summary     string      `json:"summary,omitempty"`
	OperationID string      `json:"operation_id,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Deprecated  bool        `json:"deprecated,omitempty"`
	// PathMethods holds every method declared for Path, lower case.
	PathMethods []string              `json:"path_methods,omitempty"`
	Security    []SecurityRequirement `json:"security,omitempty"`
}

// Body is one accepted request payload.
type Body struct {
	MediaType string         `json:"media_type"`
	Schema    map[string]any `json:"schema"`
	Required  bool           `json:"required,omitempty"`
	Examples  []any          `json:"examples,omitempty"`
}

// JSONSchema returns a copy of the body schema with named examples merged in.
func (b Body) JSONSchema() map[string]any {
	return Parameter{Schema: b.Schema, Examples: b.Examples}.JSONSchema()
}

// Response describes one documented response.
type Response struct {
	Status      string                    `json:"status"`
	Description string                    `json:"description,omitempty"`
	Content     map[string]map[string]any `json:"content,omitempty"`
	Headers     map[string]map[string]any `json:"headers,omitempty"`
}

// Link connects a response of one operation to the inputs of another.
type Link struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Source string `json:"source"`
	Target string `json:"target"`
	// Parameters maps a target parameter name to a runtime expression such
	// as "$response.body#/id" or "$response.header.Location".
	Parameters map[string]string `json:"parameters"`
	// Inferred links were derived from matching names rather than declared.
	Inferred bool `json:"inferred,omitempty"`
}

type SecurityRequirement struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Scopes []string `json:"scopes,omitempty"`
}

// Label identifies an operation in events and reports, e.g. "GET /users/{id}".
func (o Operation) Label() string {
	return strings.ToUpper(o.Method) + " " + o.Path
}

func (o Operation) String() string {
	return fmt.Sprintf("%s %s %s", o.APIType, o.Method, o.Path)
}

func (o Operation) FullURL() string {
	baseURL := strings.TrimSuffix(o.BaseURL, "/")
	path := o.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return baseURL + path
}

func (o Operation) GetParameterSet() *ParameterSet {
	return NewParameterSet(o.Parameters...)
}

func (o Operation) ParametersAt(location ParameterLocation) *ParameterSet {
	return NewParameterSet(o.GetParameterSet().GetByLocation(location)...)
}

func (o Operation) HasPathParameters() bool {
	for _, p := range o.Parameters {
		if p.Location == ParameterLocationPath {
			return true
		}
	}
	return false
}

func (o Operation) HasRequiredParameters() bool {
	for _, p := range o.Parameters {
		if p.Required {
			return true
		}
	}
	return false
}

func (o Operation) SupportsMethod(method string) bool {
	return strings.EqualFold(o.Method, method)
}

// ResponseFor finds the documented response for a status code, trying the
// exact code, then the "2XX" style range and finally "default".
func (o Operation) ResponseFor(status int) *Response {
	exact := strconv.Itoa(status)
	wildcard := exact[:1] + "XX"
	var fallback *Response
	for i := range o.Responses {
		r := &o.Responses[i]
		switch strings.ToUpper(r.Status) {
		case exact:
			return r
		case wildcard:
			fallback = r
		case "DEFAULT":
			if fallback == nil {
				fallback = r
			}
		}
	}
	return fallback
}

// DocumentedStatuses returns the declared status codes, sorted.
func (o Operation) DocumentedStatuses() []string {
	statuses := make([]string, 0, len(o.Responses))
	for _, r := range o.Responses {
		statuses = append(statuses, r.Status)
	}
	sort.Strings(statuses)
	return statuses
}

type OperationSet struct {
	Operations []Operation
	APIType    APIType
	BaseURL    string
}

func NewOperationSet(apiType APIType, baseURL string) *OperationSet {
	return &OperationSet{
		APIType: apiType,
		BaseURL: baseURL,
	}
}

func (os *OperationSet) Add(op Operation) {
	os.Operations = append(os.Operations, op)
}

func (os *OperationSet) GetByPath(path string) []Operation {
	var result []Operation
	for _, op := range os.Operations {
		if op.Path == path {
			result = append(result, op)
		}
	}
	return result
}

func (os *OperationSet) GetByPathAndMethod(path, method string) *Operation {
	for i := range os.Operations {
		if os.Operations[i].Path == path && strings.EqualFold(os.Operations[i].Method, method) {
			return &os.Operations[i]
		}
	}
	return nil
}

// GetByReference resolves a link endpoint, which is either an operationId
// or an operation label.
func (os *OperationSet) GetByReference(ref string) *Operation {
	for i := range os.Operations {
		op := &os.Operations[i]
		if (op.OperationID != "" && op.OperationID == ref) || op.Label() == ref {
			return op
		}
	}
	return nil
}

func (os *OperationSet) GetByID(id uuid.UUID) *Operation {
	for i := range os.Operations {
		if os.Operations[i].ID == id {
			return &os.Operations[i]
		}
	}
	return nil
}

// Links returns every link of every operation.
func (os *OperationSet) Links() []Link {
	var links []Link
	for _, op := range os.Operations {
		links = append(links, op.Links...)
	}
	return links
}

func (os *OperationSet) Count() int {
	return len(os.Operations)
}
