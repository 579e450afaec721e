package main

import "testing"

func TestJoinPrompt(t *testing.T) {
	if got := joinPrompt([]string{"fix", "the", "build"}); got != "fix the build" {
		t.Fatalf("joinPrompt = %q", got)
	}
	if got := joinPrompt([]string{"single"}); got != "single" {
		t.Fatalf("joinPrompt = %q", got)
	}
}
