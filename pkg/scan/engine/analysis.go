package engine

import (
	"sort"
	"strings"

	"github.com/pyneda/kensa/pkg/api/core"
	"github.com/pyneda/kensa/pkg/scan/events"
	"github.com/rs/zerolog/log"
)

func (e *Engine) runAnalysis(phase *events.Phase, yield func(events.Event) bool) bool {
	inferred := 0
	if e.config.InferLinks && e.spec.Operations != nil {
		inferred = InferLinks(e.spec.Operations)
	}
	log.Info().Int("inferred_links", inferred).Msg("Schema analysis finished")
	return yield(&events.PhaseFinished{
		Base:    events.NewBase(),
		Phase:   phase,
		Status:  events.StatusSuccess,
		Payload: &events.AnalysisPayload{InferredLinks: inferred},
	})
}

// InferLinks connects operations that create a resource to operations that
// take its identifier as a path parameter, e.g. POST /users to
// GET /users/{userId}. Declared links are kept; the new ones are appended
// to the source operations and counted.
func InferLinks(set *core.OperationSet) int {
	existing := make(map[string]bool)
	for _, link := range set.Links() {
		existing[link.Source+"\x00"+link.Target] = true
	}

	added := 0
	for ti := range set.Operations {
		target := &set.Operations[ti]
		for _, param := range target.ParametersAt(core.ParameterLocationPath).Parameters {
			resource := resourceFromParameter(param.Name, target.Path)
			if resource == "" {
				continue
			}
			for si := range set.Operations {
				source := &set.Operations[si]
				if si == ti || !strings.EqualFold(source.Method, "post") {
					continue
				}
				if resourceFromPath(source.Path) != resource {
					continue
				}
				status, field := identifierField(source, param.Name)
				if field == "" {
					continue
				}
				ref := target.Label()
				if target.OperationID != "" {
					ref = target.OperationID
				}
				key := source.Label() + "\x00" + ref
				if existing[key] || existing[source.Label()+"\x00"+target.Label()] {
					continue
				}
				existing[key] = true
				source.Links = append(source.Links, core.Link{
					Name:       "Inferred" + strings.ToUpper(target.Method[:1]) + target.Method[1:] + resourceTitle(resource),
					Status:     status,
					Source:     source.Label(),
					Target:     ref,
					Parameters: map[string]string{param.Name: "$response.body#/" + field},
					Inferred:   true,
				})
				added++
			}
		}
	}
	return added
}

// identifierField finds the success response property holding the
// identifier a parameter refers to.
func identifierField(op *core.Operation, parameter string) (string, string) {
	for _, response := range op.Responses {
		if !strings.HasPrefix(response.Status, "2") {
			continue
		}
		mediaTypes := make([]string, 0, len(response.Content))
		for mediaType := range response.Content {
			mediaTypes = append(mediaTypes, mediaType)
		}
		sort.Strings(mediaTypes)
		for _, mediaType := range mediaTypes {
			if !strings.Contains(mediaType, "json") {
				continue
			}
			props, _ := response.Content[mediaType]["properties"].(map[string]any)
			for _, candidate := range []string{parameter, "id"} {
				if _, ok := props[candidate]; ok {
					return response.Status, candidate
				}
			}
		}
	}
	return "", ""
}

// resourceFromParameter maps "userId", "user_id" or a plain "id" to a
// resource name.
func resourceFromParameter(parameter, path string) string {
	switch {
	case parameter == "id":
		return resourceFromPath(path)
	case strings.HasSuffix(parameter, "Id") && len(parameter) > 2:
		return strings.ToLower(parameter[:len(parameter)-2])
	case strings.HasSuffix(parameter, "_id") && len(parameter) > 3:
		return strings.ToLower(strings.ReplaceAll(parameter[:len(parameter)-3], "_", ""))
	}
	return ""
}

// resourceFromPath returns the singular of the last static path segment.
func resourceFromPath(path string) string {
	segments := strings.Split(path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		segment := segments[i]
		if segment == "" || strings.Contains(segment, "{") {
			continue
		}
		return strings.ToLower(strings.ReplaceAll(singular(segment), "_", ""))
	}
	return ""
}

var irregularPlurals = map[string]string{
	"people":   "person",
	"children": "child",
	"mice":     "mouse",
	"geese":    "goose",
	"teeth":    "tooth",
	"feet":     "foot",
	"men":      "man",
	"women":    "woman",
}

func singular(word string) string {
	lower := strings.ToLower(word)
	if s, ok := irregularPlurals[lower]; ok {
		return s
	}
	switch {
	case strings.HasSuffix(lower, "ies") && len(lower) > 3:
		return lower[:len(lower)-3] + "y"
	case strings.HasSuffix(lower, "sses"), strings.HasSuffix(lower, "xes"), strings.HasSuffix(lower, "ches"), strings.HasSuffix(lower, "shes"):
		return lower[:len(lower)-2]
	case strings.HasSuffix(lower, "ss"):
		return lower
	case strings.HasSuffix(lower, "s") && len(lower) > 1:
		return lower[:len(lower)-1]
	}
	return lower
}

func resourceTitle(resource string) string {
	if resource == "" {
		return ""
	}
	return strings.ToUpper(resource[:1]) + resource[1:]
}
