// Package psgc implements the positional-code model of the Philippine
// Standard Geographic Code: fixed-width 10-digit identifiers whose
// 2-character segments encode region, province, city/municipality,
// sub-municipality, and barangay.
package psgc

import (
	"math"
	"strconv"
	"strings"
)

// CodeWidth is the canonical identifier width in digits.
const CodeWidth = 10

// Normalize canonicalizes a raw identifier cell into a fixed-width code.
// ok is false for absent, empty, or digit-free input; footnote rows and
// section headers in the source sheet, not errors. truncated is true when
// the input carried more than CodeWidth digits and only the trailing
// CodeWidth were kept; callers surface that, it is never silent.
func Normalize(value any) (code string, ok bool, truncated bool) {
	var raw string
	switch v := value.(type) {
	case nil:
		return "", false, false
	case string:
		raw = strings.TrimSpace(v)
		if raw == "" || strings.EqualFold(raw, "nan") {
			return "", false, false
		}
	case int:
		if v < 0 {
			return "", false, false
		}
		raw = strconv.Itoa(v)
	case int64:
		if v < 0 {
			return "", false, false
		}
		raw = strconv.FormatInt(v, 10)
	case float64:
		// Codes arrive as floats when the sheet stores them numerically.
		// Drop the fractional part rather than round-tripping through a
		// decimal representation.
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return "", false, false
		}
		raw = strconv.FormatInt(int64(v), 10)
	default:
		return "", false, false
	}

	var digits strings.Builder
	for _, ch := range raw {
		if ch >= '0' && ch <= '9' {
			digits.WriteRune(ch)
		}
	}
	s := digits.String()
	if s == "" {
		return "", false, false
	}
	if len(s) > CodeWidth {
		return s[len(s)-CodeWidth:], true, true
	}
	return strings.Repeat("0", CodeWidth-len(s)) + s, true, false
}
