package interception

import (
	"context"
	"fmt"
	"strings"
)

// Assessment is a risk assessor's verdict.
type Assessment struct {
	HighRisk bool
	Reason   string
}

// RiskAssessor scores a proposal. Implementations must be safe for
// concurrent use.
type RiskAssessor interface {
	Assess(ctx context.Context, p Proposal) (Assessment, error)
}

// Default rule parameters.
const (
	DefaultAmountThreshold int64 = 50000
	DefaultHighRiskTag           = "RINGLEADER"
)

// RuleAssessor flags withdrawals strictly above Threshold from accounts
// whose id contains Tag.
type RuleAssessor struct {
	Threshold int64
	Tag       string
}

// NewRuleAssessor creates the rule assessor; a blank tag uses the default.
func NewRuleAssessor(threshold int64, tag string) RuleAssessor {
	if strings.TrimSpace(tag) == "" {
		tag = DefaultHighRiskTag
	}
	return RuleAssessor{Threshold: threshold, Tag: tag}
}

func (r RuleAssessor) Assess(_ context.Context, p Proposal) (Assessment, error) {
	if p.Amount > r.Threshold && strings.Contains(p.AccountID, r.Tag) {
		return Assessment{
			HighRisk: true,
			Reason:   fmt.Sprintf("amount %d above %d for %s-class account", p.Amount, r.Threshold, r.Tag),
		}, nil
	}
	return Assessment{}, nil
}

// AnyOf is high risk when any of its assessors is. Assessors run in order
// and the first high-risk verdict wins.
type AnyOf []RiskAssessor

func (a AnyOf) Assess(ctx context.Context, p Proposal) (Assessment, error) {
	for _, r := range a {
		res, err := r.Assess(ctx, p)
		if err != nil {
			return Assessment{}, err
		}
		if res.HighRisk {
			return res, nil
		}
	}
	return Assessment{}, nil
}
