// ABOUTME: Post-processing for generated report text
// ABOUTME: Removes reasoning blocks, wrapping quotes, and runs of blank lines

package report

import (
	"regexp"
	"strings"
)

var (
	thinkBlock = regexp.MustCompile(`(?is)<think>.*?</think>`)
	blankRuns  = regexp.MustCompile(`\n[ \t]*(\n[ \t]*)+\n`)
)

// Clean tidies model output for display in chat.
func Clean(s string) string {
	s = thinkBlock.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'“”")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
