package shellsafety

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		command string
		want    Verdict
	}{
		{"ls -la", VerdictOK},
		{"cat main.go | grep func", VerdictOK},
		{"git status", VerdictOK},
		{"git log --oneline", VerdictOK},
		{"go build ./...", VerdictNeedsApproval},
		{"rm stale.txt", VerdictNeedsApproval},
		{"curl https://example.com", VerdictNeedsApproval},
		{"echo hi > out.txt", VerdictNeedsApproval},
		{"git push origin main", VerdictNeedsApproval},
		{"sudo apt install jq", VerdictDeny},
		{"ls; sudo rm x", VerdictDeny},
		{"dd if=/dev/zero of=/dev/sda", VerdictDeny},
		{"shutdown now", VerdictDeny},
		{"", VerdictDeny},
		{"ls\x00-la", VerdictDeny},
	}
	for _, tt := range tests {
		if got := Classify(tt.command); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.command, got, tt.want)
		}
	}
}

func TestPipelineMixedSafety(t *testing.T) {
	// A pipeline is only read-only if every segment is.
	if got := Classify("cat notes.txt | python process.py"); got != VerdictNeedsApproval {
		t.Fatalf("mixed pipeline = %s, want %s", got, VerdictNeedsApproval)
	}
}
