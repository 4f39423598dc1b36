package ledger

import (
	"context"
	"fmt"
	"sort"
)

// SplitRegistry resolves the effective splits for a payment unit: the unit's
// own override when present and non-empty, otherwise one entry per active
// member from member defaults. An absent override and an empty override list
// mean the same thing.
type SplitRegistry struct {
	store Store
}

// NewSplitRegistry creates a registry backed by the given store.
func NewSplitRegistry(store Store) *SplitRegistry {
	return &SplitRegistry{store: store}
}

// EffectiveSplits returns the resolved splits for a unit, ordered by client
// ID so downstream allocation is deterministic.
func (r *SplitRegistry) EffectiveSplits(ctx context.Context, unit *PaymentUnit) ([]EffectiveSplit, error) {
	var splits []EffectiveSplit

	if len(unit.MemberSplits) > 0 {
		for _, o := range unit.MemberSplits {
			splits = append(splits, EffectiveSplit{
				ClientID:        o.ClientID,
				Points:          o.Points,
				PayoutDelayDays: o.PayoutDelayDays,
			})
		}
	} else {
		members, err := r.store.ListMembers(ctx, unit.OpportunityID, true)
		if err != nil {
			return nil, fmt.Errorf("listing active members: %w", err)
		}
		for _, m := range members {
			splits = append(splits, EffectiveSplit{
				ClientID:        m.ClientID,
				Points:          m.DefaultSplitPoints,
				PayoutDelayDays: m.DefaultPayoutDelayDays,
			})
		}
	}

	sort.Slice(splits, func(i, j int) bool {
		return splits[i].ClientID < splits[j].ClientID
	})
	return splits, nil
}
