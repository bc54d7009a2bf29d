package cases

import (
	"fmt"
	"iter"
	"sort"
	"strings"
	"time"

	"github.com/pyneda/kensa/pkg/api/core"
	"github.com/pyneda/kensa/pkg/generation"
)

// httpMethods are the methods tried for "unspecified method" cases, sorted.
var httpMethods = []string{"delete", "get", "options", "patch", "post", "put", "trace"}

type pulled struct {
	location core.ParameterLocation
	name     string
	next     func() (generation.GeneratedValue, error, bool)
	stop     func()
}

// CoverageCases yields the coverage cases of an operation: body variants,
// the default positive case, per-parameter variants, unspecified methods,
// duplicated and missing parameters and finally the combinations of
// optional parameters per container.
func CoverageCases(op *core.Operation, modes generation.Modes, drawer generation.Drawer) iter.Seq2[*Case, error] {
	return func(yield func(*Case, error) bool) {
		if len(modes) == 0 {
			modes = generation.AllModes()
		}
		b := &coverageBuilder{op: op, modes: modes, drawer: drawer, template: NewTemplate(), yield: yield}
		defer b.close()
		b.run()
	}
}

type coverageBuilder struct {
	op         *core.Operation
	modes      generation.Modes
	drawer     generation.Drawer
	template   *Template
	generators []pulled
	yield      func(*Case, error) bool
	stopped    bool
}

func (b *coverageBuilder) close() {
	for _, g := range b.generators {
		g.stop()
	}
}

func (b *coverageBuilder) emit(c *Case) bool {
	if b.stopped {
		return false
	}
	if !b.yield(c, nil) {
		b.stopped = true
	}
	return !b.stopped
}

func (b *coverageBuilder) fail(err error) {
	if !b.stopped {
		b.yield(nil, err)
		b.stopped = true
	}
}

func (b *coverageBuilder) context(location core.ParameterLocation, modes generation.Modes) *generation.Context {
	return generation.NewContext(string(location), modes, b.drawer)
}

func (b *coverageBuilder) run() {
	start := time.Now()
	for _, param := range b.op.Parameters {
		next, stop := iter.Pull2(generation.Cover(b.context(param.Location, b.modes), param.JSONSchema()))
		value, err, ok := next()
		if err != nil {
			stop()
			b.fail(fmt.Errorf("parameter %q at %s: %w", param.Name, param.Location, err))
			return
		}
		if !ok {
			stop()
			continue
		}
		b.template.AddParameter(param.Location, param.Name, value)
		b.generators = append(b.generators, pulled{location: param.Location, name: param.Name, next: next, stop: stop})
	}
	templateTime := time.Since(start)

	if len(b.op.Body) > 0 {
		for _, body := range b.op.Body {
			if !b.bodyCases(body, &templateTime) {
				return
			}
		}
	} else if b.modes.Has(generation.Positive) {
		value := b.template.Unmodified()
		meta := coverageMeta(templateTime, generation.Positive, value, PhaseData{Description: "Default positive test case"})
		if !b.emit(BuildCase(b.op, "", value, meta)) {
			return
		}
	}

	for _, g := range b.generators {
		for {
			start := time.Now()
			value, err, ok := g.next()
			if err != nil {
				b.fail(err)
				return
			}
			if !ok {
				break
			}
			data := b.template.WithParameter(g.location, g.name, value)
			meta := coverageMeta(time.Since(start), value.Mode, data, PhaseData{
				Description:       value.Description,
				Location:          value.Location,
				Parameter:         g.name,
				ParameterLocation: g.location,
			})
			if !b.emit(BuildCase(b.op, "", data, meta)) {
				return
			}
		}
	}

	if b.modes.Has(generation.Negative) {
		if !b.negativeRequestCases() {
			return
		}
	}

	for _, location := range []core.ParameterLocation{core.ParameterLocationQuery, core.ParameterLocationHeader, core.ParameterLocationCookie} {
		if !b.combinations(location) {
			return
		}
	}
}

func (b *coverageBuilder) bodyCases(body core.Body, templateTime *time.Duration) bool {
	start := time.Now()
	next, stop := iter.Pull2(generation.Cover(b.context(core.ParameterLocationBody, b.modes), body.JSONSchema()))
	defer stop()

	value, err, ok := next()
	if err != nil {
		b.fail(fmt.Errorf("body %s: %w", body.MediaType, err))
		return false
	}
	if !ok {
		return true
	}
	elapsed := time.Since(start)
	if !b.template.Has(core.ParameterLocationBody) {
		*templateTime += elapsed
		b.template.SetBody(value, body.MediaType)
	}
	for {
		data := b.template.WithBody(value, body.MediaType)
		meta := coverageMeta(elapsed, value.Mode, data, PhaseData{
			Description:       value.Description,
			Location:          value.Location,
			Parameter:         body.MediaType,
			ParameterLocation: core.ParameterLocationBody,
		})
		if !b.emit(BuildCase(b.op, "", data, meta)) {
			return false
		}

		start = time.Now()
		value, err, ok = next()
		if err != nil {
			b.fail(fmt.Errorf("body %s: %w", body.MediaType, err))
			return false
		}
		if !ok {
			return true
		}
		elapsed = time.Since(start)
	}
}

func (b *coverageBuilder) negativeRequestCases() bool {
	declared := make(map[string]bool)
	for _, method := range b.op.PathMethods {
		declared[strings.ToLower(method)] = true
	}
	declared[strings.ToLower(b.op.Method)] = true
	for _, method := range httpMethods {
		if declared[method] {
			continue
		}
		start := time.Now()
		value := b.template.Unmodified()
		upper := strings.ToUpper(method)
		meta := coverageMeta(time.Since(start), generation.Negative, value, PhaseData{
			Description: "Unspecified HTTP method: " + upper,
		})
		if !b.emit(BuildCase(b.op, upper, value, meta)) {
			return false
		}
	}

	query := b.template.Container(core.ParameterLocationQuery)
	for _, param := range b.op.ParametersAt(core.ParameterLocationQuery).Parameters {
		value, ok := query[param.Name]
		if !ok {
			continue
		}
		start := time.Now()
		duplicated := b.template.Container(core.ParameterLocationQuery)
		duplicated[param.Name] = []any{value, value}
		data := b.template.WithContainer(core.ParameterLocationQuery, duplicated, generation.Negative)
		meta := coverageMeta(time.Since(start), generation.Negative, data, PhaseData{
			Description:       fmt.Sprintf("Duplicate `%s` query parameter", param.Name),
			Parameter:         param.Name,
			ParameterLocation: core.ParameterLocationQuery,
		})
		if !b.emit(BuildCase(b.op, "", data, meta)) {
			return false
		}
	}

	for _, param := range b.op.Parameters {
		if !param.Required || param.Location == core.ParameterLocationPath {
			continue
		}
		start := time.Now()
		container := b.template.Container(param.Location)
		delete(container, param.Name)
		data := b.template.WithContainer(param.Location, container, generation.Negative)
		meta := coverageMeta(time.Since(start), generation.Negative, data, PhaseData{
			Description:       fmt.Sprintf("Missing `%s` at %s", param.Name, param.Location),
			Parameter:         param.Name,
			ParameterLocation: param.Location,
		})
		if !b.emit(BuildCase(b.op, "", data, meta)) {
			return false
		}
	}
	return true
}

func sortedNames(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
