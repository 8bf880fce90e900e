// Package rationale writes the one-sentence justification attached to each
// recommended action. A Decorator never fails: every error path ends in a
// deterministic rule-based sentence.
package rationale

import (
	"context"
	"strings"
)

// Decorator turns a short context string into a rationale sentence.
type Decorator interface {
	Rationale(ctx context.Context, text string) string
}

// Func adapts a plain function to Decorator.
type Func func(ctx context.Context, text string) string

func (f Func) Rationale(ctx context.Context, text string) string { return f(ctx, text) }

// Canned sentences used by RuleBased.
const (
	StalledSentence = "Deals that sit in one stage this long rarely close on schedule, so a direct follow-up now protects both the close date and the deal value."
	ChurnSentence   = "Accounts showing these warning signs are far cheaper to retain with early outreach than to win back after they cancel."
	SpendSentence   = "Unusual vendor spend caught early is easier to correct before it compounds into budget overruns."
	GenericSentence = "Acting on this signal now lowers the chance that the underlying risk turns into lost revenue."
)

// RuleBased picks a canned sentence by keyword. Churn and spend are checked
// before stage because their contexts also mention a stage.
type RuleBased struct{}

func (RuleBased) Rationale(_ context.Context, text string) string {
	return fallbackSentence(text)
}

func fallbackSentence(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "churn"):
		return ChurnSentence
	case strings.Contains(lower, "spend"):
		return SpendSentence
	case strings.Contains(lower, "stage"):
		return StalledSentence
	default:
		return GenericSentence
	}
}
