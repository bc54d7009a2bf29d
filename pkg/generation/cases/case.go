// Package cases turns generated values into complete test cases: one HTTP
// request shape per generation step plus the metadata describing how it was
// produced.
package cases

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pyneda/kensa/pkg/api/core"
	"github.com/pyneda/kensa/pkg/generation"
	"github.com/pyneda/kensa/pkg/schema"
)

// TestPhase names the engine phase a case was generated for.
type TestPhase string

const (
	PhaseExamples TestPhase = "examples"
	PhaseCoverage TestPhase = "coverage"
	PhaseFuzzing  TestPhase = "fuzzing"
	PhaseStateful TestPhase = "stateful"
)

type GenerationInfo struct {
	Time time.Duration   `json:"time"`
	Mode generation.Mode `json:"mode"`
}

type ComponentInfo struct {
	Mode generation.Mode `json:"mode"`
}

// PhaseData is only filled for coverage cases.
type PhaseData struct {
	Description       string                 `json:"description"`
	Location          string                 `json:"location,omitempty"`
	Parameter         string                 `json:"parameter,omitempty"`
	ParameterLocation core.ParameterLocation `json:"parameter_location,omitempty"`
}

type PhaseInfo struct {
	Name TestPhase  `json:"name"`
	Data *PhaseData `json:"data,omitempty"`
}

type CaseMetadata struct {
	Generation GenerationInfo                          `json:"generation"`
	Components map[core.ParameterLocation]ComponentInfo `json:"components"`
	Phase      PhaseInfo                               `json:"phase"`
}

// Description returns the coverage description, if any.
func (m *CaseMetadata) Description() string {
	if m == nil || m.Phase.Data == nil {
		return ""
	}
	return m.Phase.Data.Description
}

// Case is one concrete request for an operation. Container values are
// already serialized for the wire: strings, or lists of strings for
// repeated query parameters.
type Case struct {
	ID             string          `json:"id"`
	Operation      *core.Operation `json:"-"`
	Method         string          `json:"method"`
	Path           string          `json:"path"`
	PathParameters map[string]any  `json:"path_parameters,omitempty"`
	Headers        map[string]any  `json:"headers,omitempty"`
	Cookies        map[string]any  `json:"cookies,omitempty"`
	Query          map[string]any  `json:"query,omitempty"`
	Body           any             `json:"body,omitempty"`
	HasBody        bool            `json:"has_body"`
	MediaType      string          `json:"media_type,omitempty"`
	Meta           *CaseMetadata   `json:"meta,omitempty"`
}

func newCaseID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// Container returns the container that holds parameters of location.
func (c *Case) Container(location core.ParameterLocation) map[string]any {
	switch location {
	case core.ParameterLocationPath:
		return c.PathParameters
	case core.ParameterLocationQuery:
		return c.Query
	case core.ParameterLocationHeader:
		return c.Headers
	case core.ParameterLocationCookie:
		return c.Cookies
	}
	return nil
}

func (c *Case) setContainer(location core.ParameterLocation, container map[string]any) {
	switch location {
	case core.ParameterLocationPath:
		c.PathParameters = container
	case core.ParameterLocationQuery:
		c.Query = container
	case core.ParameterLocationHeader:
		c.Headers = container
	case core.ParameterLocationCookie:
		c.Cookies = container
	}
}

// FormattedPath substitutes path parameters into the path template.
func (c *Case) FormattedPath() string {
	path := c.Path
	for name, value := range c.PathParameters {
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(fmt.Sprint(value)))
	}
	return path
}

// URL builds the full request URL against baseURL.
func (c *Case) URL(baseURL string) string {
	full := strings.TrimSuffix(baseURL, "/")
	path := c.FormattedPath()
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	full += path
	if query := c.EncodedQuery(); query != "" {
		full += "?" + query
	}
	return full
}

// EncodedQuery returns the query string with parameters sorted by name.
func (c *Case) EncodedQuery() string {
	values := url.Values{}
	for name, value := range c.Query {
		switch v := value.(type) {
		case []any:
			for _, item := range v {
				values.Add(name, fmt.Sprint(item))
			}
		case []string:
			for _, item := range v {
				values.Add(name, item)
			}
		default:
			values.Set(name, fmt.Sprint(value))
		}
	}
	return values.Encode()
}

// HeaderValues returns headers as strings, sorted by name.
func (c *Case) HeaderValues() [][2]string {
	names := schema.SortedKeys(c.Headers)
	out := make([][2]string, 0, len(names))
	for _, name := range names {
		out = append(out, [2]string{name, fmt.Sprint(c.Headers[name])})
	}
	return out
}

// Clone returns a deep copy with a fresh ID.
func (c *Case) Clone() *Case {
	out := *c
	out.ID = newCaseID()
	out.PathParameters = schema.CloneMap(c.PathParameters)
	out.Headers = schema.CloneMap(c.Headers)
	out.Cookies = schema.CloneMap(c.Cookies)
	out.Query = schema.CloneMap(c.Query)
	out.Body = schema.Clone(c.Body)
	if c.Meta != nil {
		meta := *c.Meta
		meta.Components = make(map[core.ParameterLocation]ComponentInfo, len(c.Meta.Components))
		for k, v := range c.Meta.Components {
			meta.Components[k] = v
		}
		if c.Meta.Phase.Data != nil {
			data := *c.Meta.Phase.Data
			meta.Phase.Data = &data
		}
		out.Meta = &meta
	}
	return &out
}

// SetParameter replaces one parameter value and revalidates the case.
func (c *Case) SetParameter(location core.ParameterLocation, name string, value any, validator *schema.Validator) {
	container := schema.CloneMap(c.Container(location))
	if container == nil {
		container = make(map[string]any)
	}
	container[name] = Stringify(value, location)
	c.setContainer(location, container)
	c.Revalidate(validator)
}

// RemoveParameter drops one parameter and revalidates the case.
func (c *Case) RemoveParameter(location core.ParameterLocation, name string, validator *schema.Validator) {
	container := schema.CloneMap(c.Container(location))
	delete(container, name)
	c.setContainer(location, container)
	c.Revalidate(validator)
}

// SetBody replaces the body and revalidates the case.
func (c *Case) SetBody(body any, mediaType string, validator *schema.Validator) {
	c.Body = body
	c.HasBody = true
	if mediaType != "" {
		c.MediaType = mediaType
	}
	c.Revalidate(validator)
}

// Revalidate recomputes the generation mode of every component from the
// current values and the operation schemas. Mutators call it; code that
// edits fields directly has to call it itself.
func (c *Case) Revalidate(validator *schema.Validator) {
	if c.Operation == nil {
		return
	}
	if validator == nil {
		validator = schema.DefaultValidator
	}
	if c.Meta == nil {
		c.Meta = &CaseMetadata{}
	}
	components := make(map[core.ParameterLocation]ComponentInfo)
	overall := generation.Positive
	for _, location := range core.Locations {
		var mode generation.Mode
		var present bool
		if location == core.ParameterLocationBody {
			mode, present = c.bodyMode(validator)
		} else {
			mode, present = c.containerMode(location, validator)
		}
		if !present {
			continue
		}
		components[location] = ComponentInfo{Mode: mode}
		if mode == generation.Negative {
			overall = generation.Negative
		}
	}
	c.Meta.Components = components
	c.Meta.Generation.Mode = overall
}

func (c *Case) containerMode(location core.ParameterLocation, validator *schema.Validator) (generation.Mode, bool) {
	params := c.Operation.ParametersAt(location)
	container := c.Container(location)
	if params.Len() == 0 && len(container) == 0 {
		return "", false
	}
	objectSchema := params.ObjectSchema(nil)
	coerced := make(map[string]any, len(container))
	for name, value := range container {
		var paramSchema map[string]any
		if p := params.GetByName(name); p != nil {
			paramSchema = p.Schema
		}
		coerced[name] = coerce(value, paramSchema)
	}
	if validator.IsValid(objectSchema, coerced) {
		return generation.Positive, true
	}
	return generation.Negative, true
}

func (c *Case) bodyMode(validator *schema.Validator) (generation.Mode, bool) {
	if !c.HasBody {
		return "", false
	}
	for _, body := range c.Operation.Body {
		if body.MediaType != c.MediaType {
			continue
		}
		if validator.IsValid(body.Schema, c.Body) {
			return generation.Positive, true
		}
		return generation.Negative, true
	}
	return generation.Negative, true
}

// coerce undoes Stringify for validation: a string is decoded as JSON
// when the schema does not accept strings.
func coerce(value any, paramSchema map[string]any) any {
	switch v := value.(type) {
	case []any:
		items, _ := paramSchema["items"].(map[string]any)
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = coerce(item, items)
		}
		return out
	case string:
		types := schema.Types(paramSchema)
		if paramSchema == nil || len(types) == 0 || schema.Contains(types, "string") {
			return v
		}
		if schema.Contains(types, "array") && !strings.HasPrefix(v, "[") {
			parts := strings.Split(v, ",")
			items, _ := paramSchema["items"].(map[string]any)
			out := make([]any, len(parts))
			for i, part := range parts {
				out[i] = coerce(part, items)
			}
			return out
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			return decoded
		}
		return v
	}
	return value
}

// ComponentModes lists the component modes sorted by location, for display.
func (m *CaseMetadata) ComponentModes() []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m.Components))
	for location, info := range m.Components {
		out = append(out, fmt.Sprintf("%s=%s", location, info.Mode))
	}
	sort.Strings(out)
	return out
}
