package schema

import "unicode"

// IsLatin1 reports whether s can be encoded as ISO-8859-1.
func IsLatin1(s string) bool {
	for _, r := range s {
		if r > unicode.MaxLatin1 {
			return false
		}
	}
	return true
}

// HasInvalidHeaderChars reports characters that can not be sent in a header
// value: CR, LF, NUL or leading whitespace.
func HasInvalidHeaderChars(s string) bool {
	for i, r := range s {
		if r == '\r' || r == '\n' || r == 0 {
			return true
		}
		if i == 0 && unicode.IsSpace(r) {
			return true
		}
	}
	return false
}
