package service

import (
	"regexp"
	"strings"
)

var (
	codeFenceRe  = regexp.MustCompile("(?s)```(?i:markdown)?\\s*(.*?)\\s*```")
	disclaimerRe = regexp.MustCompile(`(?is)\*{3,}(?:[^*]|\*{1,2}[^*])*?\b(?:disclaimer|note)\b(?:[^*]|\*{1,2}[^*])*?\*{3,}`)
	headingRe    = regexp.MustCompile(`(?m)^#+\s`)
)

// Sanitize strips the wrapping the model tends to add around a document:
// code fences, disclaimer blocks between *** markers and any chatter before
// the first Markdown heading. The passes repeat until the text is stable,
// so Sanitize(Sanitize(x)) == Sanitize(x). An empty result is possible.
func Sanitize(text string) string {
	for {
		next := sanitizeOnce(text)
		if next == text {
			return next
		}
		// Every pass only deletes, so this terminates.
		text = next
	}
}

func sanitizeOnce(text string) string {
	text = codeFenceRe.ReplaceAllString(text, "$1")
	text = disclaimerRe.ReplaceAllString(text, "")
	if loc := headingRe.FindStringIndex(text); loc != nil {
		text = text[loc[0]:]
	}
	return strings.TrimSpace(text)
}
