package ticketflow

import (
	"strings"
	"testing"
)

func TestSanitizeBranchName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain ticket key", "PROJ-123", "proj-123"},
		{"already clean", "proj-123", "proj-123"},
		{"spaces collapse", "Fix  login   bug", "fix-login-bug"},
		{"special chars collapse", "PROJ-1: fix/auth (v2)!", "proj-1-fix-auth-v2"},
		{"leading punctuation trimmed", "--PROJ-1--", "proj-1"},
		{"unicode letters kept", "Ärger-42", "ärger-42"},
		{"empty input", "", ""},
		{"only punctuation", "///---", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeBranchName(tt.input); got != tt.want {
				t.Errorf("SanitizeBranchName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeBranchName_CapsLength(t *testing.T) {
	long := strings.Repeat("abcde-", 20)
	got := SanitizeBranchName(long)

	if len(got) > 50 {
		t.Errorf("len = %d, want <= 50", len(got))
	}
	if strings.HasSuffix(got, "-") {
		t.Errorf("truncated slug %q ends with hyphen", got)
	}
}

func TestBranchName(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{"default prefix", "", "PROJ-42", "feature/jira-proj-42"},
		{"custom prefix", "bot/", "PROJ-42", "bot/proj-42"},
		{"key needs sanitizing", "", "PROJ 42", "feature/jira-proj-42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BranchName(tt.prefix, tt.key); got != tt.want {
				t.Errorf("BranchName(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

func TestIsProtectedBranch(t *testing.T) {
	tests := []struct {
		branch string
		want   bool
	}{
		{"main", true},
		{"master", true},
		{"MAIN", true},
		{"release/1.2", true},
		{"release-2024-08", true},
		{"feature/jira-proj-1", false},
		{"mainline", false},
		{"released-fix", false},
	}

	for _, tt := range tests {
		t.Run(tt.branch, func(t *testing.T) {
			if got := IsProtectedBranch(tt.branch); got != tt.want {
				t.Errorf("IsProtectedBranch(%q) = %v, want %v", tt.branch, got, tt.want)
			}
		})
	}
}
