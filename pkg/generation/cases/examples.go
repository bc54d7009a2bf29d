package cases

import (
	"fmt"
	"time"

	"github.com/pyneda/kensa/pkg/api/core"
	"github.com/pyneda/kensa/pkg/generation"
	"github.com/pyneda/kensa/pkg/schema"
)

// schemaExamples collects the explicit examples of a schema node.
func schemaExamples(s map[string]any) []any {
	var out []any
	if example, ok := s["example"]; ok {
		out = append(out, example)
	}
	if examples, ok := schema.List(s, "examples"); ok {
		out = append(out, examples...)
	}
	return out
}

// ExampleCases builds one case per explicit example. Components without
// examples of their own get a drawn positive value so every case is a
// complete request. Operations without any example produce no cases.
func ExampleCases(op *core.Operation, drawer generation.Drawer) ([]*Case, error) {
	if drawer == nil {
		drawer = generation.NewRapidDrawer(0)
	}
	start := time.Now()

	type source struct {
		param    *core.Parameter
		body     *core.Body
		examples []any
	}
	var sources []source
	count := 0
	for i := range op.Parameters {
		p := &op.Parameters[i]
		examples := schemaExamples(p.JSONSchema())
		sources = append(sources, source{param: p, examples: examples})
		count = max(count, len(examples))
	}
	var body *source
	if len(op.Body) > 0 {
		b := &op.Body[0]
		examples := schemaExamples(b.JSONSchema())
		body = &source{body: b, examples: examples}
		count = max(count, len(examples))
	}
	if count == 0 {
		return nil, nil
	}

	pickValue := func(src source, node map[string]any, index int) (any, bool, error) {
		if len(src.examples) > 0 {
			return schema.Clone(src.examples[min(index, len(src.examples)-1)]), true, nil
		}
		value, err := drawer.Draw(node)
		if err != nil {
			if schema.IsUnfixable(err) {
				return nil, false, nil
			}
			return nil, false, err
		}
		return value, true, nil
	}

	var out []*Case
	for i := 0; i < count; i++ {
		template := NewTemplate()
		for _, src := range sources {
			if !src.param.Required && len(src.examples) == 0 {
				continue
			}
			value, ok, err := pickValue(src, src.param.Schema, i)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", src.param.Name, err)
			}
			if ok {
				template.AddParameter(src.param.Location, src.param.Name, generation.GeneratedValue{Value: value, Mode: generation.Positive})
			}
		}
		if body != nil {
			value, ok, err := pickValue(*body, body.body.Schema, i)
			if err != nil {
				return nil, fmt.Errorf("body %s: %w", body.body.MediaType, err)
			}
			if ok {
				template.SetBody(generation.GeneratedValue{Value: value, Mode: generation.Positive}, body.body.MediaType)
			}
		}
		data := template.Unmodified()
		meta := &CaseMetadata{
			Generation: GenerationInfo{Time: time.Since(start), Mode: generation.Positive},
			Components: data.Components,
			Phase:      PhaseInfo{Name: PhaseExamples},
		}
		out = append(out, BuildCase(op, "", data, meta))
		start = time.Now()
	}
	return out, nil
}
