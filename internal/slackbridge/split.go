// ABOUTME: Splits long reply text into chunks below the Slack message limit
// ABOUTME: Prefers paragraph and line breaks so chunks stay readable

package slackbridge

import "strings"

// MaxMessageLen stays under Slack's 4000-character message limit with room
// for markup expansion.
const MaxMessageLen = 3900

// SplitMessage breaks text into chunks of at most limit characters.
// Splits happen at paragraph breaks when possible, then line breaks, then
// word boundaries, and only mid-word as a last resort.
func SplitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > limit {
		cut := splitPoint(remaining, limit)
		chunks = append(chunks, strings.TrimRight(remaining[:cut], "\n"))
		remaining = strings.TrimLeft(remaining[cut:], "\n")
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

func splitPoint(text string, limit int) int {
	window := text[:limit]

	if i := strings.LastIndex(window, "\n\n"); i > 0 {
		return i
	}
	if i := strings.LastIndex(window, "\n"); i > 0 {
		return i
	}
	if i := strings.LastIndex(window, " "); i > 0 {
		return i
	}
	return limit
}
