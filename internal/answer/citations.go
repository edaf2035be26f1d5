package answer

import (
	"regexp"
	"strings"
)

// Models occasionally emit citation markers despite being told not to.
// The patterns cover the bracket styles seen in practice: [1], [1:2],
// 【4:0†source】, and (3:1*source).
var citationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[\d+(?::\d+)?\]`),
	regexp.MustCompile(`【[^】]*】`),
	regexp.MustCompile(`\(\d+:\d+\*[^)]*\)`),
}

var (
	multiSpace     = regexp.MustCompile(`[ \t]{2,}`)
	spaceBeforeDot = regexp.MustCompile(` +([.,;:!?])`)
	excessBreaks   = regexp.MustCompile(`\n{3,}`)
)

// StripCitations removes inline citation markers from generated text
// and normalizes the whitespace the model emits: CRLF becomes LF, runs
// of blank lines collapse to one, and the gaps left by marker removal
// close up.
func StripCitations(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	for _, p := range citationPatterns {
		text = p.ReplaceAllString(text, "")
	}
	text = multiSpace.ReplaceAllString(text, " ")
	text = spaceBeforeDot.ReplaceAllString(text, "$1")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return excessBreaks.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
}
