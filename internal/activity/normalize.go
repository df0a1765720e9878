// Package activity turns raw window observations into the program identities
// that usage is counted against.
package activity

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalize converts a raw process name (typically a WM_CLASS string or an
// executable name) into its canonical display form.
//
// Hyphens become spaces, every space separated segment keeps only the text
// after its final '.', and each segment is title cased. Empty segments are
// dropped. The key separator '|' is treated like a hyphen so a normalized
// name can always be embedded in an ActiveProgramKey.
//
// Normalize is total and idempotent.
func Normalize(raw string) string {
	raw = strings.NewReplacer("-", " ", keySeparator, " ").Replace(raw)

	segments := strings.Split(raw, " ")
	out := make([]string, 0, len(segments))
	for _, segment := range segments {
		if i := strings.LastIndex(segment, "."); i >= 0 {
			segment = segment[i+1:]
		}
		if segment == "" {
			continue
		}
		out = append(out, titleCase(segment))
	}

	return strings.Join(out, " ")
}

func titleCase(s string) string {
	first, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(first)) + strings.ToLower(s[size:])
}
