package bridge

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMessage_Short(t *testing.T) {
	assert.Equal(t, []string{"hello world"}, splitMessage("hello world", 3000))
}

func TestSplitMessage_ExactLimit(t *testing.T) {
	text := strings.Repeat("a", 3000)
	assert.Equal(t, []string{text}, splitMessage(text, 3000))
}

func TestSplitMessage_Empty(t *testing.T) {
	assert.Equal(t, []string{""}, splitMessage("", 3000))
}

func TestSplitMessage_PrefersParagraphs(t *testing.T) {
	para1 := strings.TrimSpace(strings.Repeat("word ", 100))
	para2 := strings.TrimSpace(strings.Repeat("text ", 100))
	result := splitMessage(para1+"\n\n"+para2, 600)
	require.Len(t, result, 2)
	assert.Equal(t, para1, result[0])
	assert.Equal(t, para2, result[1])
}

func TestSplitMessage_Newlines(t *testing.T) {
	lines := make([]string, 100)
	for i := range lines {
		lines[i] = strings.Repeat("a", 50)
	}
	result := splitMessage(strings.Join(lines, "\n"), 2000)
	assert.Greater(t, len(result), 1)
	for _, chunk := range result {
		assert.LessOrEqual(t, len(chunk), 2000)
		assert.False(t, strings.HasPrefix(chunk, "\n"))
	}
}

func TestSplitMessage_HardSplit(t *testing.T) {
	result := splitMessage(strings.Repeat("x", 5000), 2000)
	assert.Len(t, result, 3)
	for _, chunk := range result {
		assert.LessOrEqual(t, len(chunk), 2000)
	}
}

func TestSplitMessage_KeepsRunesWhole(t *testing.T) {
	text := strings.Repeat("é", 1000) // 2 bytes each
	result := splitMessage(text, 301)
	total := 0
	for _, chunk := range result {
		assert.True(t, utf8.ValidString(chunk))
		assert.LessOrEqual(t, len(chunk), 301)
		total += utf8.RuneCountInString(chunk)
	}
	assert.Equal(t, 1000, total)
}
