package ticketflow

import (
	"strings"
	"unicode"
)

// DefaultBranchPrefix is prepended to ticket keys when naming work branches.
const DefaultBranchPrefix = "feature/jira-"

// maxBranchSlugLen bounds the sanitized portion of a branch name.
const maxBranchSlugLen = 50

// SanitizeBranchName converts arbitrary text into a git-safe branch slug:
// non-alphanumeric runs collapse into single hyphens, leading and trailing
// hyphens are trimmed, the result is lowercased and capped at 50 characters.
func SanitizeBranchName(name string) string {
	var b strings.Builder
	lastHyphen := false
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			lastHyphen = false
			continue
		}
		if !lastHyphen && b.Len() > 0 {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	s := strings.Trim(b.String(), "-")
	if len(s) > maxBranchSlugLen {
		s = strings.Trim(s[:maxBranchSlugLen], "-")
	}
	return s
}

// BranchName builds the work branch name for a ticket. An empty prefix
// falls back to DefaultBranchPrefix.
func BranchName(prefix, ticketKey string) string {
	if prefix == "" {
		prefix = DefaultBranchPrefix
	}
	return prefix + SanitizeBranchName(ticketKey)
}

// ProtectedBranches are never committed to directly.
var ProtectedBranches = []string{"main", "master"}

// ProtectedBranchPrefixes block whole branch families, release lines mostly.
var ProtectedBranchPrefixes = []string{"release/", "release-"}

// IsProtectedBranch reports whether name is off-limits for automated commits.
func IsProtectedBranch(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range ProtectedBranches {
		if lower == p {
			return true
		}
	}
	for _, prefix := range ProtectedBranchPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
