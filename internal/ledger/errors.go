package ledger

import "errors"

var (
	// ErrSplitOverAllocated is returned when a unit's effective splits sum
	// to more than 100%. Fixing the configuration is the only recovery.
	ErrSplitOverAllocated = errors.New("split percentages exceed 100%")

	// ErrNoActiveMembers is returned when a unit with a positive amount has
	// no effective splits. Money must never silently vanish.
	ErrNoActiveMembers = errors.New("no active members to distribute to")

	// ErrUnitNotReceived is returned when distribution is attempted on a
	// unit that is not in RECEIVED status. This is a caller programming
	// error, not a recoverable condition.
	ErrUnitNotReceived = errors.New("payment unit is not in received status")

	// ErrPartialAllocation is the warning-grade result for splits summing
	// to less than 100%; the remainder stays with the business.
	ErrPartialAllocation = errors.New("split percentages sum to less than 100%")

	// ErrIllegalTransition is returned for a payout status move absent from
	// the transition table.
	ErrIllegalTransition = errors.New("illegal payout status transition")

	// ErrInvalidStatus is returned for status strings outside the closed
	// status set.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrMemberHasHistory is returned when a hard delete is attempted on a
	// member with payout history.
	ErrMemberHasHistory = errors.New("member has payout history and can only be deactivated")
)
