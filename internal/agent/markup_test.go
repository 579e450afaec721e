package agent

import "testing"

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "final answer", "final answer"},
		{"think block removed", "<think>private</think>answer", "answer"},
		{"thinking block removed", "before <thinking>x\ny</thinking> after", "before  after"},
		{"unterminated think stripped to end", "answer <think>never closed", "answer"},
		{"tool tags removed, content kept", "<tool_call>run tests</tool_call>", "run tests"},
		{"whitespace trimmed", "  \nanswer\n ", "answer"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripMarkup(tt.in); got != tt.want {
				t.Errorf("StripMarkup(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
