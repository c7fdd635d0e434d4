// ABOUTME: Quote-aware tokenizer and Slack markup cleanup for command text
// ABOUTME: Unwraps auto-linked URLs so pasted endpoints parse as plain arguments

package command

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// ErrUnterminatedQuote is returned when command text opens a quote and
// never closes it
var ErrUnterminatedQuote = errors.New("unterminated quote")

// Tokenize splits command text on whitespace, honoring single and double
// quotes so descriptions and URLs with spaces survive as one argument.
func Tokenize(text string) ([]string, error) {
	var tokens []string
	var current strings.Builder
	var quote rune
	inToken := false

	for _, r := range text {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inToken = true
		case unicode.IsSpace(r):
			if inToken {
				tokens = append(tokens, current.String())
				current.Reset()
				inToken = false
			}
		default:
			current.WriteRune(r)
			inToken = true
		}
	}

	if quote != 0 {
		return nil, ErrUnterminatedQuote
	}
	if inToken {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}

// slackLink matches Slack's auto-link markup: <url> or <url|label>
var slackLink = regexp.MustCompile(`<(https?://[^|>]+)(?:\|[^>]*)?>`)

// CleanSlackText strips Slack link markup so a pasted URL becomes the bare
// URL the tokenizer and validators expect.
func CleanSlackText(text string) string {
	return slackLink.ReplaceAllString(text, "$1")
}
