// Package shellsafety statically classifies shell commands before execution.
// The classification layers on top of the permission evaluator: a command the
// ruleset would allow can still be denied or escalated to approval here.
package shellsafety

import (
	"regexp"
	"strings"
)

// Verdict is the outcome of classifying a command.
type Verdict string

const (
	// VerdictOK commands run without extra gating.
	VerdictOK Verdict = "ok"

	// VerdictNeedsApproval commands require the approval callback.
	VerdictNeedsApproval Verdict = "needs_approval"

	// VerdictDeny commands are rejected outright.
	VerdictDeny Verdict = "deny"
)

// Pattern definitions for command classification.
var (
	// destructivePattern matches commands that irreversibly destroy data or
	// reconfigure the machine.
	destructivePattern = regexp.MustCompile(
		`(^|[;&|]\s*)(rm\s+(-[a-zA-Z]*[rf][a-zA-Z]*\s+)+/(\s|$)|mkfs|dd\s+.*of=/dev/|shutdown|reboot|:\(\)\s*\{)`)

	// escalationPattern matches privilege escalation prefixes.
	escalationPattern = regexp.MustCompile(`(^|[;&|]\s*)(sudo|doas|su)\s`)

	// mutationPattern matches commands that modify files, processes, or
	// remote state.
	mutationPattern = regexp.MustCompile(
		`(^|[;&|]\s*)(rm|rmdir|mv|chmod|chown|kill|pkill|truncate|curl|wget|git\s+push|git\s+reset|npm\s+publish)\s`)

	// redirectPattern matches output redirection, which writes files.
	redirectPattern = regexp.MustCompile(`(^|[^2&])>{1,2}`)

	// controlChars never belong in a single command line.
	controlChars = regexp.MustCompile(`[\x00\r]`)

	// readOnlyPrefixes are commands safe to run without gating.
	readOnlyPrefixes = []string{
		"ls", "cat", "head", "tail", "wc", "pwd", "echo", "which",
		"grep", "rg", "find", "stat", "file", "diff", "sort", "uniq",
		"git status", "git log", "git diff", "git show", "git branch",
		"go version", "go env",
	}
)

// Classify returns the verdict for one shell command line.
func Classify(command string) Verdict {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" || controlChars.MatchString(trimmed) {
		return VerdictDeny
	}
	if destructivePattern.MatchString(trimmed) {
		return VerdictDeny
	}
	if escalationPattern.MatchString(trimmed) {
		return VerdictDeny
	}
	if mutationPattern.MatchString(trimmed) || redirectPattern.MatchString(trimmed) {
		return VerdictNeedsApproval
	}
	if isReadOnly(trimmed) {
		return VerdictOK
	}
	return VerdictNeedsApproval
}

// isReadOnly reports whether every segment of a pipeline starts with a
// known read-only command.
func isReadOnly(command string) bool {
	for _, segment := range strings.Split(command, "|") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			return false
		}
		ok := false
		for _, prefix := range readOnlyPrefixes {
			if segment == prefix || strings.HasPrefix(segment, prefix+" ") {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
