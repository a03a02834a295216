// Package eligibility decides whether a household or ration card may receive a
// distribution now, given the time of its last one.
package eligibility

import (
	"fmt"
	"time"
)

type Kind string

const (
	OncePerCalendarDay Kind = "ONCE_PER_CALENDAR_DAY"
	OncePerCycle       Kind = "ONCE_PER_CYCLE"
)

// Rule is the control period of a programme.
type Rule struct {
	Kind     Kind
	Months   int
	Location *time.Location
}

// CalendarDay allows one distribution per calendar date in loc.
func CalendarDay(loc *time.Location) Rule {
	if loc == nil {
		loc = time.Local
	}
	return Rule{Kind: OncePerCalendarDay, Location: loc}
}

// Cycle allows one distribution per rolling window of months.
func Cycle(months int) Rule {
	return Rule{Kind: OncePerCycle, Months: months, Location: time.UTC}
}

func (r Rule) String() string {
	if r.Kind == OncePerCycle {
		return fmt.Sprintf("%s(%d)", r.Kind, r.Months)
	}
	return string(r.Kind)
}

func (r Rule) location() *time.Location {
	if r.Location == nil {
		return time.Local
	}
	return r.Location
}

// Result of a check. Reason is empty when eligible.
type Result struct {
	Eligible           bool       `json:"eligible"`
	Reason             string     `json:"reason,omitempty"`
	LastDistributionAt *time.Time `json:"last_distribution_at,omitempty"`
	NextEligibleAt     *time.Time `json:"next_eligible_at,omitempty"`
}

// Check applies rule to the last distribution time. A nil last is always
// eligible. Check never fails; the caller decides what to do with the result.
func Check(rule Rule, last *time.Time, now time.Time) Result {
	if last == nil {
		return Result{Eligible: true}
	}
	prev := *last
	next := rule.nextEligible(prev)
	if !now.Before(next) {
		return Result{Eligible: true, LastDistributionAt: &prev}
	}

	reason := "already received a distribution today"
	if rule.Kind == OncePerCycle {
		reason = fmt.Sprintf("already received a distribution in the current %d-month cycle", rule.Months)
	}
	return Result{
		Eligible:           false,
		Reason:             reason,
		LastDistributionAt: &prev,
		NextEligibleAt:     &next,
	}
}

// nextEligible is the first instant after last at which the rule allows
// another distribution.
func (r Rule) nextEligible(last time.Time) time.Time {
	switch r.Kind {
	case OncePerCycle:
		months := r.Months
		if months <= 0 {
			months = 1
		}
		return last.AddDate(0, months, 0)
	default:
		loc := r.location()
		l := last.In(loc)
		return time.Date(l.Year(), l.Month(), l.Day()+1, 0, 0, 0, 0, loc)
	}
}

// WindowKey names the fixed window containing t, for rules that partition time
// into fixed windows. Rolling cycles have no fixed window and return "".
func (r Rule) WindowKey(t time.Time) string {
	if r.Kind != OncePerCalendarDay {
		return ""
	}
	return t.In(r.location()).Format(time.DateOnly)
}
