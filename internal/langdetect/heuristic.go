package langdetect

import (
	"strings"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
)

// Heuristic detects languages on-box without any network call. It is used
// when the detection service is unreachable.
type Heuristic struct{}

// Detect returns the two-letter code of text, or "" when the text is too
// short or the language is not recognised.
func (Heuristic) Detect(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < MinTextLength {
		return ""
	}
	info := whatlanggo.Detect(text)
	return Normalize(info.Lang.Iso6391())
}
