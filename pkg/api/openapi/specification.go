package openapi

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/pyneda/kensa/pkg/api/core"
)

// Feature is an optional capability the engine needs from a definition.
type Feature string

const (
	FeatureExamples Feature = "examples"
	FeatureCoverage Feature = "coverage"
	FeatureFuzzing  Feature = "fuzzing"
	FeatureStateful Feature = "stateful"
	FeatureCookies  Feature = "cookies"
)

var featureConstraints = map[core.APIType]map[Feature]string{
	core.APITypeOpenAPI: {
		FeatureExamples: ">= 3.0.0",
		FeatureCoverage: ">= 3.0.0",
		FeatureFuzzing:  ">= 3.0.0",
		FeatureStateful: ">= 3.0.0",
		FeatureCookies:  ">= 3.0.0",
	},
	core.APITypeSwagger: {
		FeatureExamples: ">= 2.0.0",
		FeatureCoverage: ">= 2.0.0",
		FeatureFuzzing:  ">= 2.0.0",
	},
	core.APITypeGraphQL: {
		FeatureFuzzing: "*",
	},
}

// OperationError is an operation that could not be loaded. Loading goes on
// with the other operations.
type OperationError struct {
	Label string
	Err   error
}

func (e OperationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Label, e.Err)
}

func (e OperationError) Unwrap() error {
	return e.Err
}

// Specification is a loaded API definition.
type Specification struct {
	Kind       core.APIType
	Version    *semver.Version
	Title      string
	Operations *core.OperationSet
	Errors     []OperationError
}

// SupportsFeature reports whether the definition kind and version can
// drive the given feature.
func (s *Specification) SupportsFeature(feature Feature) bool {
	constraints, ok := featureConstraints[s.Kind]
	if !ok {
		return false
	}
	expr, ok := constraints[feature]
	if !ok {
		return false
	}
	if s.Version == nil {
		return expr == "*"
	}
	constraint, err := semver.NewConstraint(expr)
	if err != nil {
		return false
	}
	return constraint.Check(s.Version)
}

func (s *Specification) String() string {
	if s.Version == nil {
		return string(s.Kind)
	}
	return fmt.Sprintf("%s %s", s.Kind, s.Version)
}
