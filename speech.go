package bustime

import (
	"fmt"
	"regexp"
	"strings"
)

// Joins items as "A", "A and B" or "A, B and C".
func Join(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}

// Marks s to be read digit by digit.
func Digits(s string) string {
	return fmt.Sprintf(`<say-as interpret-as="digits">%s</say-as>`, s)
}

// Marks s to be read as a street address.
func Address(s string) string {
	return fmt.Sprintf(`<say-as interpret-as="address">%s</say-as>`, s)
}

var markupRE = regexp.MustCompile(`<[^>]+>`)

// Removes speech markup, for text-only surfaces.
func StripMarkup(s string) string {
	return markupRE.ReplaceAllString(s, "")
}
