package cases

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pyneda/kensa/pkg/api/core"
	"github.com/pyneda/kensa/pkg/generation"
	"github.com/pyneda/kensa/pkg/schema"
)

// Template is the baseline request every coverage case is derived from.
// It keeps raw values; serialization happens when a TemplateValue is made.
type Template struct {
	components map[core.ParameterLocation]ComponentInfo
	containers map[core.ParameterLocation]map[string]any
	body       any
	hasBody    bool
	mediaType  string
}

func NewTemplate() *Template {
	return &Template{
		components: make(map[core.ParameterLocation]ComponentInfo),
		containers: make(map[core.ParameterLocation]map[string]any),
	}
}

// TemplateValue is one fully serialized request shape.
type TemplateValue struct {
	Containers map[core.ParameterLocation]map[string]any
	Body       any
	HasBody    bool
	MediaType  string
	Components map[core.ParameterLocation]ComponentInfo
}

func (t *Template) Has(location core.ParameterLocation) bool {
	if location == core.ParameterLocationBody {
		return t.hasBody
	}
	_, ok := t.containers[location]
	return ok
}

// Container returns a copy of the raw container for location.
func (t *Template) Container(location core.ParameterLocation) map[string]any {
	container := schema.CloneMap(t.containers[location])
	if container == nil {
		container = make(map[string]any)
	}
	return container
}

// AddParameter stores the baseline value of a parameter. A negative value
// makes the whole component negative.
func (t *Template) AddParameter(location core.ParameterLocation, name string, value generation.GeneratedValue) {
	info, ok := t.components[location]
	if !ok || value.Mode == generation.Negative {
		info = ComponentInfo{Mode: value.Mode}
	}
	t.components[location] = info
	container, ok := t.containers[location]
	if !ok {
		container = make(map[string]any)
		t.containers[location] = container
	}
	container[name] = value.Value
}

func (t *Template) SetBody(value generation.GeneratedValue, mediaType string) {
	t.body = value.Value
	t.hasBody = true
	t.mediaType = mediaType
	t.components[core.ParameterLocationBody] = ComponentInfo{Mode: value.Mode}
}

func (t *Template) Unmodified() TemplateValue {
	return t.serialize(t.containers, t.body, t.hasBody, t.mediaType, t.copyComponents())
}

func (t *Template) WithBody(value generation.GeneratedValue, mediaType string) TemplateValue {
	components := t.copyComponents()
	components[core.ParameterLocationBody] = ComponentInfo{Mode: value.Mode}
	return t.serialize(t.containers, value.Value, true, mediaType, components)
}

func (t *Template) WithParameter(location core.ParameterLocation, name string, value generation.GeneratedValue) TemplateValue {
	container := t.Container(location)
	container[name] = value.Value
	return t.WithContainer(location, container, value.Mode)
}

func (t *Template) WithContainer(location core.ParameterLocation, container map[string]any, mode generation.Mode) TemplateValue {
	containers := make(map[core.ParameterLocation]map[string]any, len(t.containers)+1)
	for k, v := range t.containers {
		containers[k] = v
	}
	containers[location] = container
	components := t.copyComponents()
	components[location] = ComponentInfo{Mode: mode}
	return t.serialize(containers, t.body, t.hasBody, t.mediaType, components)
}

func (t *Template) copyComponents() map[core.ParameterLocation]ComponentInfo {
	out := make(map[core.ParameterLocation]ComponentInfo, len(t.components)+1)
	for k, v := range t.components {
		out[k] = v
	}
	return out
}

func (t *Template) serialize(containers map[core.ParameterLocation]map[string]any, body any, hasBody bool, mediaType string, components map[core.ParameterLocation]ComponentInfo) TemplateValue {
	out := TemplateValue{
		Containers: make(map[core.ParameterLocation]map[string]any, len(containers)),
		Body:       schema.Clone(body),
		HasBody:    hasBody,
		MediaType:  mediaType,
		Components: components,
	}
	for location, container := range containers {
		serialized := make(map[string]any, len(container))
		for name, value := range container {
			serialized[name] = Stringify(value, location)
		}
		out.Containers[location] = serialized
	}
	return out
}

// Stringify serializes a parameter value for its location. Query arrays
// stay flat lists so the parameter is repeated, nested arrays included;
// elsewhere arrays are joined with commas. Objects become compact JSON.
func Stringify(value any, location core.ParameterLocation) any {
	switch v := value.(type) {
	case nil:
		return "null"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case []any:
		if location == core.ParameterLocationQuery {
			out := make([]any, 0, len(v))
			for _, item := range v {
				switch item := Stringify(item, location).(type) {
				case []any:
					out = append(out, item...)
				default:
					out = append(out, item)
				}
			}
			return out
		}
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i], _ = Stringify(item, location).(string)
		}
		return strings.Join(parts, ",")
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(encoded)
}

// BuildCase assembles a case from a serialized template value.
func BuildCase(op *core.Operation, method string, value TemplateValue, meta *CaseMetadata) *Case {
	if method == "" {
		method = strings.ToUpper(op.Method)
	}
	c := &Case{
		ID:             newCaseID(),
		Operation:      op,
		Method:         method,
		Path:           op.Path,
		PathParameters: value.Containers[core.ParameterLocationPath],
		Headers:        value.Containers[core.ParameterLocationHeader],
		Cookies:        value.Containers[core.ParameterLocationCookie],
		Query:          value.Containers[core.ParameterLocationQuery],
		Body:           value.Body,
		HasBody:        value.HasBody,
		MediaType:      value.MediaType,
		Meta:           meta,
	}
	if meta != nil && meta.Components == nil {
		meta.Components = value.Components
	}
	return c
}

func coverageMeta(elapsed time.Duration, mode generation.Mode, value TemplateValue, data PhaseData) *CaseMetadata {
	return &CaseMetadata{
		Generation: GenerationInfo{Time: elapsed, Mode: mode},
		Components: value.Components,
		Phase:      PhaseInfo{Name: PhaseCoverage, Data: &data},
	}
}
