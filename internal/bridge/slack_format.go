package bridge

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	codeBlockRe = regexp.MustCompile("(?s)```.*?```")
	inlineCode  = regexp.MustCompile("`[^`\n]+`")
	headerRe    = regexp.MustCompile(`(?m)^#{1,3}\s+(.+)$`)
	boldRe      = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe    = regexp.MustCompile(`\*([^*\n]+?)\*`)
	strikeRe    = regexp.MustCompile(`~~(.+?)~~`)
	linkRe      = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
)

// boldMark stands in for Slack bold while single-asterisk italics are rewritten.
const boldMark = "\x01"

// formatForSlack converts the model's Markdown to Slack mrkdwn. Roleplay
// actions like *smirks* are Markdown italics, so they become _smirks_ rather
// than Slack bold.
func formatForSlack(text string) string {
	if text == "" {
		return ""
	}

	var protected []string
	protect := func(match string) string {
		idx := len(protected)
		protected = append(protected, match)
		return fmt.Sprintf("\x00CODE_%d\x00", idx)
	}
	text = codeBlockRe.ReplaceAllStringFunc(text, protect)
	text = inlineCode.ReplaceAllStringFunc(text, protect)

	text = headerRe.ReplaceAllStringFunc(text, func(match string) string {
		content := strings.TrimSpace(strings.TrimLeft(match, "#"))
		content = boldRe.ReplaceAllString(content, "$1")
		return boldMark + content + boldMark
	})
	text = boldRe.ReplaceAllString(text, boldMark+"$1"+boldMark)
	text = italicRe.ReplaceAllString(text, "_${1}_")
	text = strings.ReplaceAll(text, boldMark, "*")

	text = strikeRe.ReplaceAllString(text, "~$1~")
	text = linkRe.ReplaceAllString(text, "<$2|$1>")

	for i, block := range protected {
		text = strings.Replace(text, fmt.Sprintf("\x00CODE_%d\x00", i), block, 1)
	}
	return text
}
