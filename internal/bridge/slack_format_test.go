package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatHeaders(t *testing.T) {
	assert.Equal(t, "*Hello*", formatForSlack("# Hello"))
	assert.Equal(t, "*Hello*", formatForSlack("### **Hello**"))
	assert.Equal(t, "Use # wisely", formatForSlack("Use # wisely"))
}

func TestFormatBold(t *testing.T) {
	assert.Equal(t, "this is *bold* text", formatForSlack("this is **bold** text"))
	assert.Equal(t, "a * b", formatForSlack("a * b"))
}

func TestFormatRoleplayItalics(t *testing.T) {
	assert.Equal(t, "_smirks_ Oh, you again?", formatForSlack("*smirks* Oh, you again?"))
	assert.Equal(t, "_sighs_ and _rolls eyes_", formatForSlack("*sighs* and *rolls eyes*"))
	assert.Equal(t, "*bold* then _soft_", formatForSlack("**bold** then *soft*"))
}

func TestFormatStrikethrough(t *testing.T) {
	assert.Equal(t, "this is ~struck~ text", formatForSlack("this is ~~struck~~ text"))
}

func TestFormatLinks(t *testing.T) {
	assert.Equal(t, "click <https://example.com|here>", formatForSlack("click [here](https://example.com)"))
}

func TestFormatCodeProtection(t *testing.T) {
	input := "before\n```\n# Not a header\n**not bold**\n*not italic*\n```\nafter `*x*`"
	result := formatForSlack(input)
	assert.Contains(t, result, "# Not a header")
	assert.Contains(t, result, "**not bold**")
	assert.Contains(t, result, "*not italic*")
	assert.Contains(t, result, "`*x*`")
}

func TestFormatPassthrough(t *testing.T) {
	input := "just plain text with no markdown"
	assert.Equal(t, input, formatForSlack(input))
}

func TestFormatEmpty(t *testing.T) {
	assert.Equal(t, "", formatForSlack(""))
}
