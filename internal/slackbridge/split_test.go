package slackbridge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMessage_ShortTextUnchanged(t *testing.T) {
	chunks := SplitMessage("hello", 100)
	assert.Equal(t, []string{"hello"}, chunks)
}

func TestSplitMessage_PrefersParagraphBreak(t *testing.T) {
	text := strings.Repeat("a", 50) + "\n\n" + strings.Repeat("b", 60)
	chunks := SplitMessage(text, 80)

	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("a", 50), chunks[0])
	assert.Equal(t, strings.Repeat("b", 60), chunks[1])
}

func TestSplitMessage_FallsBackToLineBreak(t *testing.T) {
	text := strings.Repeat("a", 50) + "\n" + strings.Repeat("b", 60)
	chunks := SplitMessage(text, 80)

	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("a", 50), chunks[0])
}

func TestSplitMessage_FallsBackToWordBoundary(t *testing.T) {
	text := strings.Repeat("word ", 50) // 250 chars, no newlines
	chunks := SplitMessage(text, 100)

	assert.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 100)
		assert.False(t, strings.HasPrefix(chunk, " "))
	}
}

func TestSplitMessage_HardSplitWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("x", 250)
	chunks := SplitMessage(text, 100)

	require.Len(t, chunks, 3)
	assert.Equal(t, 100, len(chunks[0]))
	assert.Equal(t, 100, len(chunks[1]))
	assert.Equal(t, 50, len(chunks[2]))
}

func TestSplitMessage_NothingLost(t *testing.T) {
	text := strings.Repeat("alpha beta gamma\n\ndelta epsilon\n", 30)
	chunks := SplitMessage(text, 120)

	var total int
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 120)
		total += len(strings.ReplaceAll(strings.ReplaceAll(chunk, "\n", ""), " ", ""))
	}
	wantTotal := len(strings.ReplaceAll(strings.ReplaceAll(text, "\n", ""), " ", ""))
	assert.Equal(t, wantTotal, total, "splitting should not drop content")
}

func TestStripMention(t *testing.T) {
	b := &Bot{botUserID: "UBOT"}

	assert.Equal(t, "hello there", b.stripMention("<@UBOT> hello there"))
	assert.Equal(t, "hello", b.stripMention("hello <@U123456>"))
	assert.Equal(t, "", b.stripMention("<@UBOT>"))
	assert.Equal(t, "plain text", b.stripMention("plain text"))
}

func TestThreadKey(t *testing.T) {
	assert.Equal(t, "C1:111.222", threadKey("C1", "111.222", "333.444"), "thread reply keeps the root timestamp")
	assert.Equal(t, "C1:333.444", threadKey("C1", "", "333.444"), "top-level message roots its own thread")
	assert.Equal(t, "111.222", threadTimestamp("C1:111.222"))
}
