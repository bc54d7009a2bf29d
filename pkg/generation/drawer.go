package generation

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/pyneda/kensa/pkg/schema"
	"pgregory.net/rapid"
)

// Drawer produces single concrete values. It is the only source of
// non-determinism in a coverage walk.
type Drawer interface {
	// Draw returns one value conforming to node.
	Draw(node any) (any, error)
	// DrawFrom returns one value from gen. Equal labels must describe
	// equivalent generators.
	DrawFrom(label string, gen *rapid.Generator[any]) (any, error)
}

// RapidDrawer draws examples from rapid generators with seeds derived from
// a base seed and the thing being drawn, so repeated walks over the same
// schema see the same values.
type RapidDrawer struct {
	seed      int64
	validator *schema.Validator

	mu    sync.Mutex
	cache map[string]any
}

func NewRapidDrawer(seed int64) *RapidDrawer {
	return &RapidDrawer{
		seed:      seed,
		validator: schema.DefaultValidator,
		cache:     make(map[string]any),
	}
}

// WithValidator sets the validator used to filter schema draws.
func (d *RapidDrawer) WithValidator(v *schema.Validator) *RapidDrawer {
	d.validator = v
	return d
}

func (d *RapidDrawer) Seed() int64 {
	return d.seed
}

func (d *RapidDrawer) Draw(node any) (any, error) {
	key := "schema:" + schema.Key(node)
	d.mu.Lock()
	cached, ok := d.cache[key]
	d.mu.Unlock()
	if ok {
		return schema.Clone(cached), nil
	}

	gen, err := FromSchema(node, d.validator)
	if err != nil {
		return nil, err
	}
	value, err := d.example(key, gen)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.cache[key] = value
	d.mu.Unlock()
	return schema.Clone(value), nil
}

func (d *RapidDrawer) DrawFrom(label string, gen *rapid.Generator[any]) (any, error) {
	return d.example(label, gen)
}

func (d *RapidDrawer) example(label string, gen *rapid.Generator[any]) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, fmt.Errorf("%w: %s: %v", schema.ErrUnsatisfiable, label, r)
		}
	}()
	return gen.Example(d.seedFor(label)), nil
}

func (d *RapidDrawer) seedFor(label string) int {
	h := fnv.New64a()
	h.Write([]byte(label))
	return int(h.Sum64()>>1) ^ int(d.seed)
}

// Reseed returns a drawer with the same validator and a different seed.
// Fuzzing uses it to get a fresh value for every example.
func (d *RapidDrawer) Reseed(seed int64) *RapidDrawer {
	return NewRapidDrawer(seed).WithValidator(d.validator)
}
