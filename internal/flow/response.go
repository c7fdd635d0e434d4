// ABOUTME: Reply text extraction from agent response JSON
// ABOUTME: Tries known output paths, then falls back to a text-leaf search

package flow

import (
	"strings"

	"github.com/tidwall/gjson"
)

// defaultPaths are the places agent backends put the reply text, most
// specific first. Configured extra paths are tried before these.
var defaultPaths = []string{
	"outputs.0.outputs.0.artifacts.message",
	"outputs.0.outputs.0.messages.0.message",
	"outputs.0.outputs.0.results.message.text",
	"outputs.0.outputs.0.results.message.data.text",
	"outputs.0.outputs.0.results.message",
}

// extractReply pulls the reply text out of a raw agent response body.
// Returns false when no candidate path or fallback search yields a
// non-blank string. Matches are trimmed; whitespace-only text is no reply.
func extractReply(raw []byte, extraPaths []string) (string, bool) {
	if !gjson.ValidBytes(raw) {
		return "", false
	}
	body := gjson.ParseBytes(raw)

	for _, path := range append(append([]string{}, extraPaths...), defaultPaths...) {
		if v := body.Get(path); v.Type == gjson.String {
			if text := strings.TrimSpace(v.Str); text != "" {
				return text, true
			}
		}
	}

	// Unknown shape; look for the first plausible text leaf so a backend
	// schema drift degrades to a best-effort reply instead of an error
	if text, ok := findTextLeaf(body); ok {
		return text, true
	}
	return "", false
}

// textKeys are leaf names worth returning during the fallback search
var textKeys = map[string]bool{
	"message": true,
	"text":    true,
	"output":  true,
	"result":  true,
}

// findTextLeaf walks the JSON depth-first and returns the first non-empty
// string under a known text key.
func findTextLeaf(v gjson.Result) (string, bool) {
	var found string
	v.ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.String && textKeys[key.Str] {
			if text := strings.TrimSpace(value.Str); text != "" {
				found = text
				return false
			}
		}
		if value.IsObject() || value.IsArray() {
			if text, ok := findTextLeaf(value); ok {
				found = text
				return false
			}
		}
		return true
	})
	return found, found != ""
}
