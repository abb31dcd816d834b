package enrich

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
)

// BuildPrompt asks for exactly one label from labels, quoting at most
// maxChars characters of text.
func BuildPrompt(labels harvest.LabelSet, text string, maxChars int) string {
	return fmt.Sprintf(
		"Categorize the following research paper text into one of these categories: %s.\n"+
			"Respond with only the label name.\n"+
			"Text:\n%s",
		strings.Join(labels.Names(), ", "),
		Excerpt(text, maxChars),
	)
}

// Excerpt returns the first maxChars characters of text. A non-positive
// maxChars returns text unchanged.
func Excerpt(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	count := 0
	for i := range text {
		if count == maxChars {
			return text[:i]
		}
		count++
	}
	return text
}
