// Package policy evaluates retry rules for failed payment attempts.
// Rules are govaluate expressions over the failure kind and attempt number;
// the first matching rule wins. With no rules, or no match, the default
// decision offers a retry, so repeated failures may loop indefinitely by
// design.
package policy

import (
	"fmt"

	"github.com/Knetic/govaluate"

	"github.com/yourorg/walletpay/internal/payment"
)

// Decision is the outcome of a rule evaluation.
type Decision struct {
	OfferRetry bool
}

// Rule pairs a match expression with the decision it yields.
// Expressions see the parameters `kind` (string) and `attempt` (number).
type Rule struct {
	ID         string
	Expression string
	Decision   Decision
}

type compiledRule struct {
	rule Rule
	expr *govaluate.EvaluableExpression
}

// RetryPolicy holds the compiled rule set.
type RetryPolicy struct {
	rules []compiledRule
}

// NewRetryPolicy compiles the rule set. An empty or nil slice is valid and
// yields the default allow-retry decision for every failure.
func NewRetryPolicy(rules []Rule) (*RetryPolicy, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.Expression == "" {
			return nil, fmt.Errorf("policy rule %q has an empty expression", r.ID)
		}
		expr, err := govaluate.NewEvaluableExpression(r.Expression)
		if err != nil {
			return nil, fmt.Errorf("failed to compile rule %q: %w", r.ID, err)
		}
		compiled = append(compiled, compiledRule{rule: r, expr: expr})
	}
	return &RetryPolicy{rules: compiled}, nil
}

// Evaluate returns the decision for a failure of the given kind on the given
// attempt. Rules are checked in order; the first match wins.
func (p *RetryPolicy) Evaluate(kind payment.ErrorKind, attempt int) (Decision, error) {
	params := map[string]interface{}{
		"kind":    string(kind),
		"attempt": float64(attempt),
	}
	for _, c := range p.rules {
		matched, err := c.expr.Evaluate(params)
		if err != nil {
			return Decision{}, fmt.Errorf("evaluating rule %q: %w", c.rule.ID, err)
		}
		if ok, isBool := matched.(bool); isBool && ok {
			return c.rule.Decision, nil
		}
	}
	return Decision{OfferRetry: true}, nil
}
