package ticketflow

import (
	"errors"
	"fmt"
	"strings"
)

// Pipeline errors
var (
	// ErrNoEligibleTickets indicates the sprint has no unassigned tickets left.
	ErrNoEligibleTickets = errors.New("no eligible tickets in active sprint")

	// ErrNoRelevantRepository indicates no repository cleared the relevance threshold.
	ErrNoRelevantRepository = errors.New("no relevant repository for ticket")

	// ErrGenerationFailed indicates the LLM produced an empty or malformed change.
	ErrGenerationFailed = errors.New("code generation failed")

	// ErrBranchExists indicates the branch already exists on the remote.
	ErrBranchExists = errors.New("branch already exists")

	// ErrCommitFailed indicates the commit could not be applied.
	ErrCommitFailed = errors.New("commit failed")

	// ErrProtectedBranch indicates an attempted commit to a protected branch.
	ErrProtectedBranch = errors.New("refusing to commit to protected branch")

	// ErrPRExists indicates a PR already exists for the branch.
	ErrPRExists = errors.New("pull request already exists for this branch")

	// ErrNoChanges indicates the branch has no commits against its base.
	ErrNoChanges = errors.New("no changes between branch and base")

	// ErrChangeRejected indicates the quality gate rejected the change outright.
	ErrChangeRejected = errors.New("change rejected by quality gate")

	// ErrConfigInvalid indicates the run configuration failed validation.
	ErrConfigInvalid = errors.New("invalid configuration")
)

// ErrorKind is the retry-relevant classification of a node failure.
type ErrorKind string

const (
	// KindTransient failures (timeouts, rate limits) are retried with backoff.
	KindTransient ErrorKind = "transient"

	// KindConflict failures mean the desired end state already exists;
	// they are normalized to success at the node boundary.
	KindConflict ErrorKind = "conflict"

	// KindFatal failures end processing for the current ticket.
	KindFatal ErrorKind = "fatal"
)

// ClassifiedError tags an underlying failure with its kind and the node
// that raised it. The retry layer guarantees the router only ever sees
// classified errors.
type ClassifiedError struct {
	Kind   ErrorKind
	Node   string
	Causes []error
}

func (e *ClassifiedError) Error() string {
	if len(e.Causes) == 1 {
		return fmt.Sprintf("%s: %s: %v", e.Node, e.Kind, e.Causes[0])
	}
	msgs := make([]string, len(e.Causes))
	for i, c := range e.Causes {
		msgs[i] = c.Error()
	}
	return fmt.Sprintf("%s: %s: [%s]", e.Node, e.Kind, strings.Join(msgs, "; "))
}

// Unwrap exposes all underlying causes for errors.Is/As.
func (e *ClassifiedError) Unwrap() []error {
	return e.Causes
}

// Classify determines the retry-relevant kind of an error.
//
// Aggregate errors (errors.Join or any multi-cause error) collapse to
// transient only when every cause is transient; otherwise the aggregate is
// fatal. Unknown errors default to fatal so a misclassified failure is never
// retried forever.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Kind
	}

	// Aggregate: all transient => transient, else fatal.
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		causes := multi.Unwrap()
		if len(causes) > 0 {
			for _, c := range causes {
				if Classify(c) != KindTransient {
					return KindFatal
				}
			}
			return KindTransient
		}
	}

	if isConflictError(err) {
		return KindConflict
	}
	if isTransientError(err) {
		return KindTransient
	}
	return KindFatal
}

// isConflictError reports whether the desired end state already exists.
func isConflictError(err error) bool {
	if errors.Is(err, ErrBranchExists) || errors.Is(err, ErrPRExists) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "already exists") ||
		strings.Contains(errStr, "reference already exists")
}

// isTransientError reports whether the failure is worth retrying.
func isTransientError(err error) bool {
	errStr := strings.ToLower(err.Error())
	// Rate limiting
	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") {
		return true
	}
	// Timeouts
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}
	// Transient server / network conditions
	return strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "temporarily unavailable") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503")
}

// IsAuthError checks if an error is authentication-related. Auth failures
// are configuration problems, never worth retrying.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "unauthenticated") ||
		strings.Contains(errStr, "bad credentials") ||
		strings.Contains(errStr, "401")
}
