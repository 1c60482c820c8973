package membership

import (
	"time"

	"github.com/ManuelReschke/TeamPay/app/models"
)

type transition struct {
	From string
	To   string
}

var validTransitions = map[transition]bool{
	{models.MembershipStatusPending, models.MembershipStatusActive}: true, // first payment
	{models.MembershipStatusActive, models.MembershipStatusActive}:  true, // early payment
	{models.MembershipStatusActive, models.MembershipStatusDue}:     true, // sweep
	{models.MembershipStatusDue, models.MembershipStatusOverdue}:    true, // sweep after grace
	{models.MembershipStatusDue, models.MembershipStatusActive}:     true, // payment
	{models.MembershipStatusOverdue, models.MembershipStatusActive}: true, // payment

	{models.MembershipStatusPending, models.MembershipStatusCanceled}: true,
	{models.MembershipStatusActive, models.MembershipStatusCanceled}:  true,
	{models.MembershipStatusDue, models.MembershipStatusCanceled}:     true,
	{models.MembershipStatusOverdue, models.MembershipStatusCanceled}: true,
}

// CanTransition reports whether from -> to is an allowed status change.
func CanTransition(from, to string) bool {
	return validTransitions[transition{from, to}]
}

// sweepTarget decides the time-driven transition for a row given its status at
// the start of the pass. A row is only ever moved one step: an active row can
// become due, never overdue, in the same pass.
func sweepTarget(status string, nextDueAt *time.Time, now, overdueCutoff time.Time) (string, bool) {
	if nextDueAt == nil {
		return "", false
	}
	switch status {
	case models.MembershipStatusActive:
		if !nextDueAt.After(now) {
			return models.MembershipStatusDue, true
		}
	case models.MembershipStatusDue:
		if !nextDueAt.After(overdueCutoff) {
			return models.MembershipStatusOverdue, true
		}
	}
	return "", false
}
