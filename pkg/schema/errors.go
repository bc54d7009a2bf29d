package schema

import "errors"

var (
	// ErrUnsatisfiable means no value can satisfy the schema.
	ErrUnsatisfiable = errors.New("unsatisfiable schema")
	// ErrUnresolvedReference means a $ref was left unresolved by the loader.
	ErrUnresolvedReference = errors.New("unresolvable reference")
	// ErrInvalidRegex covers patterns the regexp engine can not handle.
	ErrInvalidRegex = errors.New("invalid regular expression")
	// ErrCanonicalize is returned when allOf members contradict each other.
	ErrCanonicalize = errors.New("schema can not be canonicalized")
	// ErrInvalidSchema is returned for malformed keyword values.
	ErrInvalidSchema = errors.New("invalid schema")
)

// IsUnfixable reports whether err is a schema condition that only invalidates
// the branch being generated.
func IsUnfixable(err error) bool {
	return errors.Is(err, ErrUnsatisfiable) ||
		errors.Is(err, ErrUnresolvedReference) ||
		errors.Is(err, ErrInvalidRegex) ||
		errors.Is(err, ErrCanonicalize) ||
		errors.Is(err, ErrInvalidSchema)
}
