// Package generation derives test values from JSON-Schema-shaped definitions.
//
// Cover walks a schema node and yields boundary, near-boundary and negative
// values, each tagged with the mode it was generated for and a description
// that explains where it came from. Concrete example values are drawn through
// a Drawer; the default one is backed by rapid generators.
package generation

import (
	"fmt"
	"strings"
)

// Mode tells whether a value is meant to conform to its schema.
type Mode string

const (
	Positive Mode = "positive"
	Negative Mode = "negative"
)

func (m Mode) String() string {
	return string(m)
}

// ParseMode converts a mode name into a Mode.
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "positive":
		return Positive, nil
	case "negative":
		return Negative, nil
	}
	return "", fmt.Errorf("unknown generation mode: %s", value)
}

// Modes is a set of generation modes. Positive and negative branches are
// independent and may both fire for the same schema node.
type Modes []Mode

func AllModes() Modes {
	return Modes{Positive, Negative}
}

func (ms Modes) Has(m Mode) bool {
	for _, item := range ms {
		if item == m {
			return true
		}
	}
	return false
}

// ParseModes accepts names such as "positive", "negative" or "all".
func ParseModes(values []string) (Modes, error) {
	var out Modes
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), "all") {
			return AllModes(), nil
		}
		m, err := ParseMode(v)
		if err != nil {
			return nil, err
		}
		if !out.Has(m) {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return AllModes(), nil
	}
	return out, nil
}

// GeneratedValue is one candidate value yielded by Cover.
type GeneratedValue struct {
	Value       any    `json:"value"`
	Mode        Mode   `json:"mode"`
	Description string `json:"description"`
	// Location is the schema path the value violates, for negative values.
	Location  string `json:"location,omitempty"`
	Parameter string `json:"parameter,omitempty"`
}

func positiveValue(value any, description string) GeneratedValue {
	return GeneratedValue{Value: value, Mode: Positive, Description: description}
}

func negativeValue(value any, description, location string) GeneratedValue {
	return GeneratedValue{Value: value, Mode: Negative, Description: description, Location: location}
}
