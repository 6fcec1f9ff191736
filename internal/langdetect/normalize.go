package langdetect

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"
)

var twoLetter = regexp.MustCompile(`^[a-z]{2}$`)

// canon folds individual languages into their macrolanguage (arb -> ar,
// cmn -> zh) on top of the default canonicalization.
const canon = language.Default | language.Macro

// Normalize converts a detector tag such as "eng_Latn" to its two-letter
// code ("en"). An empty or undetermined tag yields "". Tags that cannot be
// resolved are returned as their leading segment.
func Normalize(tag string) string {
	if tag == "" {
		return ""
	}
	clean := strings.ToLower(strings.TrimSpace(tag))
	if twoLetter.MatchString(clean) {
		return clean
	}

	if base, ok := exactBase(strings.ReplaceAll(clean, "_", "-")); ok {
		return base
	}

	segment := strings.FieldsFunc(clean, func(r rune) bool { return r == '_' || r == '-' })
	if len(segment) == 0 {
		return clean
	}
	if segment[0] == "und" {
		return ""
	}
	if len(segment[0]) == 3 {
		if base, ok := exactBase(segment[0]); ok {
			return base
		}
	}
	return segment[0]
}

// exactBase returns the base language of s when it is stated rather than
// inferred from the script or region.
func exactBase(s string) (string, bool) {
	t, err := canon.Parse(s)
	if err != nil {
		return "", false
	}
	base, conf := t.Base()
	if conf != language.Exact {
		return "", false
	}
	return base.String(), true
}
