package cases

import (
	"fmt"
	"iter"
	"time"

	"github.com/pyneda/kensa/pkg/api/core"
	"github.com/pyneda/kensa/pkg/generation"
	"github.com/pyneda/kensa/pkg/schema"
)

// FuzzCases yields up to maxExamples random cases. Modes alternate between
// cases; every case gets its own seed derived from seed and its index.
// A negative case is a positive one with a single component replaced by a
// negative coverage value.
func FuzzCases(op *core.Operation, modes generation.Modes, seed int64, maxExamples int, validator *schema.Validator) iter.Seq2[*Case, error] {
	return func(yield func(*Case, error) bool) {
		if len(modes) == 0 {
			modes = generation.AllModes()
		}
		if validator == nil {
			validator = schema.DefaultValidator
		}
		for i := 0; i < maxExamples; i++ {
			start := time.Now()
			drawer := generation.NewRapidDrawer(seed + int64(i)).WithValidator(validator)
			mode := modes[i%len(modes)]
			c, err := fuzzCase(op, mode, drawer, i)
			if err != nil {
				if schema.IsUnfixable(err) {
					continue
				}
				yield(nil, err)
				return
			}
			if c == nil {
				continue
			}
			c.Meta.Generation.Time = time.Since(start)
			if !yield(c, nil) {
				return
			}
		}
	}
}

func fuzzCase(op *core.Operation, mode generation.Mode, drawer *generation.RapidDrawer, index int) (*Case, error) {
	template := NewTemplate()
	var targets []core.ParameterLocation
	for _, location := range core.Locations {
		if location == core.ParameterLocationBody {
			continue
		}
		params := op.ParametersAt(location)
		if params.Len() == 0 {
			continue
		}
		drawn, err := drawer.Draw(positiveContainerSchema(params))
		if err != nil {
			return nil, fmt.Errorf("%s parameters: %w", location, err)
		}
		container, _ := drawn.(map[string]any)
		for name, value := range container {
			template.AddParameter(location, name, generation.GeneratedValue{Value: value, Mode: generation.Positive})
		}
		if location != core.ParameterLocationPath {
			targets = append(targets, location)
		}
	}
	var body *core.Body
	if len(op.Body) > 0 {
		body = &op.Body[index%len(op.Body)]
		value, err := drawer.Draw(body.Schema)
		if err != nil {
			return nil, fmt.Errorf("body %s: %w", body.MediaType, err)
		}
		template.SetBody(generation.GeneratedValue{Value: value, Mode: generation.Positive}, body.MediaType)
		targets = append(targets, core.ParameterLocationBody)
	}

	meta := &CaseMetadata{
		Generation: GenerationInfo{Mode: generation.Positive},
		Phase:      PhaseInfo{Name: PhaseFuzzing},
	}
	if mode == generation.Positive || len(targets) == 0 {
		data := template.Unmodified()
		meta.Components = data.Components
		return BuildCase(op, "", data, meta), nil
	}

	target := targets[index%len(targets)]
	var node map[string]any
	if target == core.ParameterLocationBody {
		node = body.Schema
	} else {
		node = op.ParametersAt(target).ObjectSchema(nil)
	}
	negatives, err := generation.CoverAll(generation.NewContext(string(target), generation.Modes{generation.Negative}, drawer), node)
	if err != nil {
		return nil, err
	}
	if len(negatives) == 0 {
		return nil, nil
	}
	chosen := negatives[(index/len(targets))%len(negatives)]

	var data TemplateValue
	if target == core.ParameterLocationBody {
		data = template.WithBody(chosen, body.MediaType)
	} else {
		container, ok := chosen.Value.(map[string]any)
		if !ok {
			return nil, nil
		}
		data = template.WithContainer(target, container, generation.Negative)
	}
	meta.Generation.Mode = generation.Negative
	meta.Components = data.Components
	return BuildCase(op, "", data, meta), nil
}

// positiveContainerSchema describes a parameter container as an object
// whose optional members may be left out.
func positiveContainerSchema(params *core.ParameterSet) map[string]any {
	s := params.ObjectSchema(nil)
	s["type"] = "object"
	return s
}
