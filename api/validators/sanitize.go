package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeString trims input, folds runs of whitespace into one space, drops
// control characters and caps the result at maxLen runes (0 means no cap).
// Display names pass through here before they are stored.
func SanitizeString(input string, maxLen int) string {
	printable := strings.Map(func(r rune) rune {
		if r == utf8.RuneError || (unicode.IsControl(r) && !unicode.IsSpace(r)) {
			return -1
		}
		return r
	}, input)
	out := strings.Join(strings.Fields(printable), " ")

	if maxLen > 0 && utf8.RuneCountInString(out) > maxLen {
		out = strings.TrimRightFunc(string([]rune(out)[:maxLen]), unicode.IsSpace)
	}
	return out
}
