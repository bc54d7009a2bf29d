package cases

import (
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/pyneda/kensa/pkg/api/core"
	"github.com/pyneda/kensa/pkg/generation"
	"github.com/pyneda/kensa/pkg/schema"
)

// combinations expands the optional parameters of one container: only the
// required ones, required plus each optional one, and required plus every
// selection of 2..N-1 optional ones. Negative variants are generated for the
// first two tiers only.
func (b *coverageBuilder) combinations(location core.ParameterLocation) bool {
	params := b.op.ParametersAt(location)
	if params.Len() == 0 {
		return true
	}
	base := b.template.Container(location)

	required := make(map[string]bool)
	all := make(map[string]bool)
	for _, p := range params.Parameters {
		all[p.Name] = true
		if p.Required {
			required[p.Name] = true
		}
	}
	var optional []string
	for _, name := range sortedNames(all) {
		if !required[name] {
			optional = append(optional, name)
		}
	}

	if len(required) > 0 && len(optional) > 0 {
		onlyRequired := pick(base, func(name string) bool { return required[name] })
		if b.modes.Has(generation.Positive) {
			if !b.emitCombination(location, onlyRequired, "Only required properties", "", generation.Positive, time.Now()) {
				return false
			}
		}
		if b.modes.Has(generation.Negative) {
			if !b.negativeCombination(location, params, onlyRequired) {
				return false
			}
		}
	}

	for _, name := range optional {
		combo := pick(base, func(n string) bool { return required[n] || n == name })
		if schema.Equal(combo, base) {
			continue
		}
		if b.modes.Has(generation.Positive) {
			description := fmt.Sprintf("All required properties and optional '%s'", name)
			if !b.emitCombination(location, combo, description, "", generation.Positive, time.Now()) {
				return false
			}
		}
		if b.modes.Has(generation.Negative) {
			if !b.negativeCombination(location, params, combo) {
				return false
			}
		}
	}

	if len(optional) > 1 && b.modes.Has(generation.Positive) {
		for size := 2; size < len(optional); size++ {
			for selection := range choose(optional, size) {
				selected := make(map[string]bool, len(selection))
				for _, name := range selection {
					selected[name] = true
				}
				combo := pick(base, func(n string) bool { return required[n] || selected[n] })
				if schema.Equal(combo, base) {
					continue
				}
				description := fmt.Sprintf("All required and %d optional properties", size)
				if !b.emitCombination(location, combo, description, "", generation.Positive, time.Now()) {
					return false
				}
			}
		}
	}
	return true
}

func (b *coverageBuilder) emitCombination(location core.ParameterLocation, container map[string]any, description, parameter string, mode generation.Mode, start time.Time) bool {
	data := b.template.WithContainer(location, container, mode)
	meta := coverageMeta(time.Since(start), mode, data, PhaseData{
		Description:       description,
		Parameter:         parameter,
		ParameterLocation: location,
	})
	return b.emit(BuildCase(b.op, "", data, meta))
}

// negativeCombination yields negative containers generated against the
// object schema induced by the parameters present in combo. Missing
// required properties were already covered by the "Missing" cases.
func (b *coverageBuilder) negativeCombination(location core.ParameterLocation, params *core.ParameterSet, combo map[string]any) bool {
	subschema := params.ObjectSchema(func(p core.Parameter) bool {
		_, ok := combo[p.Name]
		return ok
	})
	requiredNames := []any{}
	for _, p := range params.Parameters {
		if p.Required {
			requiredNames = append(requiredNames, p.Name)
		}
	}
	subschema["required"] = requiredNames

	next, stop := iter.Pull2(generation.Cover(b.context(location, generation.Modes{generation.Negative}), subschema))
	defer stop()
	for {
		start := time.Now()
		value, err, ok := next()
		if err != nil {
			b.fail(err)
			return false
		}
		if !ok {
			return true
		}
		if strings.HasPrefix(value.Description, "Missing required property") {
			continue
		}
		container, isObject := value.Value.(map[string]any)
		if !isObject {
			continue
		}
		if !b.emitCombination(location, container, value.Description, value.Parameter, generation.Negative, start) {
			return false
		}
	}
}

func pick(container map[string]any, keep func(string) bool) map[string]any {
	out := make(map[string]any)
	for name, value := range container {
		if keep(name) {
			out[name] = value
		}
	}
	return out
}

// choose yields every selection of size k from items, in lexicographic
// order of indices.
func choose(items []string, k int) iter.Seq[[]string] {
	return func(yield func([]string) bool) {
		n := len(items)
		if k > n || k <= 0 {
			return
		}
		idx := make([]int, k)
		for i := range idx {
			idx[i] = i
		}
		for {
			selection := make([]string, k)
			for i, j := range idx {
				selection[i] = items[j]
			}
			if !yield(selection) {
				return
			}
			i := k - 1
			for i >= 0 && idx[i] == n-k+i {
				i--
			}
			if i < 0 {
				return
			}
			idx[i]++
			for j := i + 1; j < k; j++ {
				idx[j] = idx[j-1] + 1
			}
		}
	}
}
