package ledger

import (
	"context"
	"fmt"

	"payout-ledger/internal/money"
)

// ValidationResult is the outcome of a pre-distribution split check.
type ValidationResult struct {
	Valid       bool              `json:"valid"`
	TotalPoints money.BasisPoints `json:"total_basis_points"`
	SplitCount  int               `json:"split_count"`
	// Warnings are legal configurations worth surfacing to staff, e.g. a
	// partial allocation whose remainder stays with the business.
	Warnings []string `json:"warnings,omitempty"`
	// Err is the blocking configuration error, nil when Valid.
	Err error `json:"-"`
	// Error is Err's message for API serialization.
	Error string `json:"error,omitempty"`
}

// SplitValidator checks that a unit's effective splits are internally
// consistent before any distribution happens. Percentage checks run at
// basis-point precision with zero tolerance.
type SplitValidator struct {
	registry *SplitRegistry
}

// NewSplitValidator creates a validator resolving splits via the registry.
func NewSplitValidator(registry *SplitRegistry) *SplitValidator {
	return &SplitValidator{registry: registry}
}

// Validate resolves the unit's effective splits and checks them. A sum over
// 100% and a positive amount with no splits both block distribution; a sum
// under 100% is legal but reported as a warning.
func (v *SplitValidator) Validate(ctx context.Context, unit *PaymentUnit) (*ValidationResult, error) {
	splits, err := v.registry.EffectiveSplits(ctx, unit)
	if err != nil {
		return nil, err
	}
	return v.Check(unit, splits), nil
}

// Check validates already-resolved splits against the unit.
func (v *SplitValidator) Check(unit *PaymentUnit, splits []EffectiveSplit) *ValidationResult {
	result := &ValidationResult{SplitCount: len(splits)}
	for _, s := range splits {
		result.TotalPoints += s.Points
	}

	switch {
	case result.TotalPoints > money.FullShare:
		result.Err = fmt.Errorf("%w: configured %s", ErrSplitOverAllocated, result.TotalPoints)
	case len(splits) == 0 && unit.Amount > 0:
		result.Err = fmt.Errorf("%w: unit %s carries %s", ErrNoActiveMembers, unit.ID, unit.Amount)
	default:
		result.Valid = true
		if result.TotalPoints < money.FullShare && len(splits) > 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"partial allocation: splits sum to %s, the remaining %s stays with the business",
				result.TotalPoints, money.FullShare-result.TotalPoints))
		}
	}

	if result.Err != nil {
		result.Error = result.Err.Error()
	}
	return result
}
