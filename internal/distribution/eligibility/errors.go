package eligibility

import (
	"time"

	dErrors "aidtrack/pkg/domain-errors"
)

// DuplicateDistributionError rejects a distribution inside the control period.
// It unwraps to a CodeDuplicateDistribution domain error and exposes the prior
// distribution time so the client can explain the refusal.
type DuplicateDistributionError struct {
	Subject            string
	Rule               Rule
	LastDistributionAt time.Time
	NextEligibleAt     time.Time
	Reason             string
}

// NewDuplicateError builds the error from an ineligible result.
func NewDuplicateError(subject string, rule Rule, res Result) *DuplicateDistributionError {
	e := &DuplicateDistributionError{Subject: subject, Rule: rule, Reason: res.Reason}
	if res.LastDistributionAt != nil {
		e.LastDistributionAt = *res.LastDistributionAt
	}
	if res.NextEligibleAt != nil {
		e.NextEligibleAt = *res.NextEligibleAt
	}
	return e
}

func (e *DuplicateDistributionError) Error() string {
	return e.Subject + " " + e.Reason + " (last at " + e.LastDistributionAt.Format(time.RFC3339) + ")"
}

func (e *DuplicateDistributionError) Unwrap() error {
	return dErrors.New(dErrors.CodeDuplicateDistribution, e.Subject+" "+e.Reason)
}

// ErrorDetails is merged into the HTTP error body.
func (e *DuplicateDistributionError) ErrorDetails() map[string]any {
	details := map[string]any{
		"last_distribution_at": e.LastDistributionAt.Format(time.RFC3339),
		"rule":                 e.Rule.String(),
	}
	if !e.NextEligibleAt.IsZero() {
		details["next_eligible_at"] = e.NextEligibleAt.Format(time.RFC3339)
	}
	return details
}
