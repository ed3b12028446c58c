package ticketflow

import (
	"context"
	"fmt"
)

// Params are the per-run tuning knobs nodes read from context. They are
// plain values, not services: a missing Params means defaults.
type Params struct {
	// Org is the hosting organization whose repositories are candidates.
	Org string

	// BranchPrefix is prepended to sanitized ticket keys.
	BranchPrefix string

	// RelevanceThreshold is the minimum score a repository must reach.
	RelevanceThreshold float64

	// MaxRepos caps how many candidate repositories survive analysis.
	MaxRepos int

	// Thresholds bound the quality gate.
	Thresholds Thresholds

	// Tracker status names for transitions.
	InProgressStatus string
	DoneStatus       string
	ReviewStatus     string

	// BotAccountID is the tracker account tickets are assigned to.
	BotAccountID string

	// PRLabels are applied to every opened pull request.
	PRLabels []string
}

// DefaultParams returns production defaults.
func DefaultParams() Params {
	return Params{
		BranchPrefix:       DefaultBranchPrefix,
		RelevanceThreshold: 0.3,
		MaxRepos:           3,
		Thresholds:         DefaultThresholds(),
		InProgressStatus:   "In Progress",
		DoneStatus:         "In Review",
		ReviewStatus:       "Needs Review",
		PRLabels:           []string{"automated"},
	}
}

// Validate checks the knobs that have hard requirements.
func (p Params) Validate() error {
	if p.Org == "" {
		return fmt.Errorf("%w: org is required", ErrConfigInvalid)
	}
	if p.RelevanceThreshold < 0 || p.RelevanceThreshold > 1 {
		return fmt.Errorf("%w: relevance threshold %v outside [0,1]", ErrConfigInvalid, p.RelevanceThreshold)
	}
	if p.MaxRepos < 1 {
		return fmt.Errorf("%w: max repos must be at least 1", ErrConfigInvalid)
	}
	return nil
}

const paramsKey serviceContextKey = "ticketflow.params"

// WithParams returns a context carrying run parameters.
func WithParams(ctx context.Context, p Params) context.Context {
	return context.WithValue(ctx, paramsKey, p)
}

// ParamsFromContext retrieves run parameters, falling back to defaults.
func ParamsFromContext(ctx context.Context) Params {
	if p, ok := ctx.Value(paramsKey).(Params); ok {
		return p
	}
	return DefaultParams()
}
