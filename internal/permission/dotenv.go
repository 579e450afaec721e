package permission

import (
	"path/filepath"
	"regexp"
	"strings"
)

// dotenvRe matches dotenv basenames: ".env", ".env.local", ".env.production"
// and so on, but not ".envrc".
var dotenvRe = regexp.MustCompile(`^\.env(\.|$)`)

// sampleSuffixes are dotenv variants safe to read without approval.
var sampleSuffixes = []string{".example", ".sample", ".template"}

// DotenvPath reports whether the path names a dotenv file that must force
// approval. Sample and template variants are exempt.
func DotenvPath(p string) bool {
	base := filepath.Base(strings.TrimRight(p, "/"))
	if !dotenvRe.MatchString(base) {
		return false
	}
	for _, suffix := range sampleSuffixes {
		if strings.HasSuffix(base, suffix) {
			return false
		}
	}
	return true
}

// DotenvInCommand reports whether any whitespace-delimited token of a shell
// command resolves to a dotenv path. Common shell punctuation around tokens
// is stripped before the check.
func DotenvInCommand(command string) bool {
	for _, token := range strings.Fields(command) {
		token = strings.Trim(token, `"'();|&<>`)
		if token == "" {
			continue
		}
		if DotenvPath(token) {
			return true
		}
	}
	return false
}
