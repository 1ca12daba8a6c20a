package agent

import (
	"regexp"
	"strings"
)

var (
	thinkingBlockRe = regexp.MustCompile(`(?is)<thinking>.*?</thinking>`)
	artifactTagRe   = regexp.MustCompile(`(?i)</?(final|response|answer|output|reply|thinking)>`)
)

// CleanResponse strips internal thinking blocks and stray XML-style
// artifact tags from a final model response.
func CleanResponse(text string) string {
	if text == "" {
		return ""
	}
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = artifactTagRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
