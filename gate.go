package ticketflow

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// ============================================================================
// Quality gate
// ============================================================================

// GateDecision is the quality gate's verdict on a changeset.
type GateDecision string

const (
	// GatePass clears the change for normal PR creation.
	GatePass GateDecision = "pass"

	// GateNeedsReview opens the PR as a draft awaiting human sign-off.
	GateNeedsReview GateDecision = "needs_review"

	// GateReject ends the ticket run without opening a PR.
	GateReject GateDecision = "reject"
)

// Thresholds bound the size and shape of changesets the gate accepts.
type Thresholds struct {
	MaxFilesChanged int
	MaxLinesChanged int

	// MaxComplexity bounds the 1-10 complexity score.
	MaxComplexity int

	// RequireHumanReview controls whether size and keyword findings gate
	// the change. When false they are logged only; security findings
	// always gate.
	RequireHumanReview bool

	// ForbiddenPathPrefixes are never touched by automated changes.
	ForbiddenPathPrefixes []string

	// AllowedExtensions whitelists what the pipeline may write.
	AllowedExtensions []string
}

// DefaultThresholds are conservative limits for unattended runs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxFilesChanged:       20,
		MaxLinesChanged:       1000,
		MaxComplexity:         7,
		RequireHumanReview:    true,
		ForbiddenPathPrefixes: DefaultForbiddenPathPrefixes,
		AllowedExtensions:     DefaultAllowedExtensions,
	}
}

// ReviewKeywords flag ticket or path content that always requires a human.
var ReviewKeywords = []string{
	"database", "migration", "schema",
	"security", "auth", "authentication", "authorization",
	"payment", "billing",
	"encryption", "secret", "credential",
}

// DefaultForbiddenPathPrefixes are never touched by automated changes.
var DefaultForbiddenPathPrefixes = []string{
	".github/workflows/",
	".git/",
	"secrets/",
	"vendor/",
	"node_modules/",
}

// securityPatterns match content that suggests an unsafe change.
var securityPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"hardcoded credential", regexp.MustCompile(`(?i)(password|passwd|api[_-]?key|secret|token)\s*(:=|=|:)\s*["'][^"']{4,}["']`)},
	{"private key material", regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----`)},
	{"sql string concatenation", regexp.MustCompile(`(?i)(SELECT|INSERT|UPDATE|DELETE)\b[^\n]*["']\s*\+`)},
	{"unsafe html injection", regexp.MustCompile(`(?i)(innerHTML\s*=|dangerouslySetInnerHTML|document\.write\()`)},
	{"shell command interpolation", regexp.MustCompile(`(?i)(os\.system|subprocess\.call|exec)\([^\n]*(%s|\+|f["'])`)},
}

// DefaultAllowedExtensions whitelists what the automated pipeline may write.
// Empty extension is rejected (Makefile-style files stay human territory).
var DefaultAllowedExtensions = []string{
	".go", ".py", ".js", ".ts", ".tsx",
	".jsx", ".java", ".rb", ".rs", ".c",
	".h", ".cpp", ".cs", ".php", ".sh",
	".sql", ".html", ".css", ".scss",
	".json", ".yaml", ".yml", ".toml",
	".md", ".txt", ".proto",
}

// MeasureChange computes gate metrics for a changeset against a ticket.
func MeasureChange(ticket Ticket, change GeneratedChange) QualityMetrics {
	m := QualityMetrics{
		FilesChanged: len(change.Edits),
		LinesChanged: change.LinesChanged(),
	}
	m.Complexity = complexityScore(m.FilesChanged, m.LinesChanged)

	for _, e := range change.Edits {
		for _, p := range securityPatterns {
			if p.re.MatchString(e.Content) {
				m.SecurityFlags = append(m.SecurityFlags, fmt.Sprintf("%s in %s", p.name, e.Path))
			}
		}
	}

	ticketText := strings.ToLower(ticket.Summary + " " + ticket.Description)
	for _, kw := range ReviewKeywords {
		if strings.Contains(ticketText, kw) {
			m.ReviewReasons = append(m.ReviewReasons, "ticket mentions "+kw)
			break
		}
	}
	for _, e := range change.Edits {
		lower := strings.ToLower(e.Path)
		for _, kw := range ReviewKeywords {
			if strings.Contains(lower, kw) {
				m.ReviewReasons = append(m.ReviewReasons, "path touches "+kw+": "+e.Path)
			}
		}
	}
	return m
}

// EvaluateGate decides what happens to a changeset.
//
// Rejection reasons (forbidden paths, disallowed file types, empty change)
// are not recoverable by review; everything else degrades to needs_review
// rather than reject so a human gets the final say. When RequireHumanReview
// is off, size/complexity/keyword findings are returned alongside GatePass
// for logging only; a security finding still forces needs_review.
func EvaluateGate(t Thresholds, change GeneratedChange, m QualityMetrics) (GateDecision, []string) {
	if len(change.Edits) == 0 {
		return GateReject, []string{"empty changeset"}
	}
	for _, e := range change.Edits {
		if forbiddenPath(t.ForbiddenPathPrefixes, e.Path) {
			return GateReject, []string{"forbidden path: " + e.Path}
		}
		if !allowedExtension(t.AllowedExtensions, e.Path) {
			return GateReject, []string{"disallowed file type: " + e.Path}
		}
	}

	var advisory []string
	if m.FilesChanged > t.MaxFilesChanged {
		advisory = append(advisory, fmt.Sprintf("files changed %d exceeds limit %d", m.FilesChanged, t.MaxFilesChanged))
	}
	if m.LinesChanged > t.MaxLinesChanged {
		advisory = append(advisory, fmt.Sprintf("lines changed %d exceeds limit %d", m.LinesChanged, t.MaxLinesChanged))
	}
	if t.MaxComplexity > 0 && m.Complexity > t.MaxComplexity {
		advisory = append(advisory, fmt.Sprintf("complexity %d exceeds limit %d", m.Complexity, t.MaxComplexity))
	}
	advisory = append(advisory, m.ReviewReasons...)

	if len(m.SecurityFlags) > 0 {
		return GateNeedsReview, append(append([]string{}, m.SecurityFlags...), advisory...)
	}
	if len(advisory) > 0 {
		if t.RequireHumanReview {
			return GateNeedsReview, advisory
		}
		return GatePass, advisory
	}
	return GatePass, nil
}

// complexityScore maps a changeset's size onto the 1-10 scale: one point
// per 20 lines plus one per 10 files, floored at 1.
func complexityScore(files, lines int) int {
	score := lines/20 + files/10
	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}
	return score
}

func forbiddenPath(prefixes []string, p string) bool {
	clean := strings.TrimPrefix(path.Clean(p), "./")
	if strings.HasPrefix(clean, "..") {
		return true
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(clean, prefix) || clean+"/" == prefix {
			return true
		}
	}
	return false
}

func allowedExtension(exts []string, p string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
