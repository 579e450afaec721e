package agent

import (
	"regexp"
	"strings"
)

// Internal control markup some models interleave with visible text. Think
// blocks are removed wholly; stray tool markup tags are removed but their
// inner text kept.
var (
	thinkBlockRe = regexp.MustCompile(`(?s)<think(?:ing)?>.*?</think(?:ing)?>`)
	openThinkRe  = regexp.MustCompile(`(?s)<think(?:ing)?>.*$`)
	toolTagRe    = regexp.MustCompile(`</?(?:tool_call|tool_result|function_call)>`)
)

// StripMarkup removes internal think/tool markup from model text, leaving
// only the text intended for the user. An unterminated think block is
// stripped to the end of the text.
func StripMarkup(text string) string {
	if text == "" {
		return ""
	}
	out := thinkBlockRe.ReplaceAllString(text, "")
	out = openThinkRe.ReplaceAllString(out, "")
	out = toolTagRe.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}
