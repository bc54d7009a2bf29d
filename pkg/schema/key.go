package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Key returns a stable serialization of a JSON value tagged with its JSON
// type. Integers and floats never share a key, so 1 and 1.0 stay distinct,
// both at the top level and inside objects and arrays.
func Key(v any) string {
	var b strings.Builder
	b.WriteString(jsonType(v))
	b.WriteByte(':')
	writeKey(&b, v)
	return b.String()
}

// ValueKey serializes v the way JSON Schema compares values: numerically
// equal numbers share a key.
func ValueKey(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%T:%#v", v, v)
	}
	return string(b)
}

// Equal compares two JSON values with JSON Schema equality.
func Equal(a, b any) bool {
	return ValueKey(a) == ValueKey(b)
}

func jsonType(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case json.Number:
		if strings.ContainsAny(string(x), ".eE") {
			return "number"
		}
		return "integer"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	}
	return fmt.Sprintf("%T", v)
}

func writeKey(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("null")
		return
	case bool:
		b.WriteString(strconv.FormatBool(x))
		return
	case string:
		b.WriteString(strconv.Quote(x))
		return
	case json.Number:
		b.WriteString(string(x))
		return
	case float64:
		writeFloat(b, x)
		return
	case float32:
		writeFloat(b, float64(x))
		return
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			writeKey(b, x[k])
		}
		b.WriteByte('}')
		return
	case []any:
		b.WriteByte('[')
		for i, item := range x {
			if i > 0 {
				b.WriteByte(',')
			}
			writeKey(b, item)
		}
		b.WriteByte(']')
		return
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.WriteString(strconv.FormatInt(rv.Int(), 10))
		return
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		b.WriteString(strconv.FormatUint(rv.Uint(), 10))
		return
	}
	// Other Go types (typed slices and maps, structs) go through their JSON
	// form.
	raw, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(b, "%T:%#v", v, v)
		return
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		b.Write(raw)
		return
	}
	writeKey(b, decoded)
}

// writeFloat always marks floats as such: 1.0 is written "1.0", never "1".
func writeFloat(b *strings.Builder, f float64) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		return
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	b.WriteString(s)
}

// KeySet tracks values that were already produced.
type KeySet map[string]struct{}

// Add records v and reports whether it was new.
func (s KeySet) Add(v any) bool {
	k := Key(v)
	if _, ok := s[k]; ok {
		return false
	}
	s[k] = struct{}{}
	return true
}

func (s KeySet) Has(v any) bool {
	_, ok := s[Key(v)]
	return ok
}

// ValueSet is a set under JSON Schema equality, e.g. the members of an enum.
type ValueSet map[string]struct{}

func (s ValueSet) Add(v any) bool {
	k := ValueKey(v)
	if _, ok := s[k]; ok {
		return false
	}
	s[k] = struct{}{}
	return true
}

func (s ValueSet) Has(v any) bool {
	_, ok := s[ValueKey(v)]
	return ok
}
