package amm

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownPool is returned when a diff updates a pool the previous view never had.
var ErrUnknownPool = errors.New("unknown pool")

// Patcher builds a new pool view by applying a diff to a previous one.
// Pool holds no pointers, so copying by value leaves prevState untouched.
func Patcher(prevState []Pool, diff PoolsDiff) ([]Pool, error) {
	newStateMap := make(map[PoolID]Pool, len(prevState)+len(diff.Additions))
	for _, pool := range prevState {
		newStateMap[pool.ID] = pool
	}

	for _, updated := range diff.Updates {
		if _, ok := newStateMap[updated.ID]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPool, updated.ID)
		}
		newStateMap[updated.ID] = updated
	}

	for _, added := range diff.Additions {
		newStateMap[added.ID] = added
	}

	finalState := make([]Pool, 0, len(newStateMap))
	for _, pool := range newStateMap {
		finalState = append(finalState, pool)
	}
	SortPools(finalState)
	return finalState, nil
}

// SortPools orders pools by asset0, asset1, then volatile before stable.
func SortPools(pools []Pool) {
	sort.Slice(pools, func(i, j int) bool {
		return LessPoolID(pools[i].ID, pools[j].ID)
	})
}

// SortPoolIDs orders ids the same way SortPools does.
func SortPoolIDs(ids []PoolID) {
	sort.Slice(ids, func(i, j int) bool {
		return LessPoolID(ids[i], ids[j])
	})
}

// LessPoolID is the total order used for every pool listing.
func LessPoolID(a, b PoolID) bool {
	if c := a.Asset0.Cmp(b.Asset0); c != 0 {
		return c < 0
	}
	if c := a.Asset1.Cmp(b.Asset1); c != 0 {
		return c < 0
	}
	return !a.Stable && b.Stable
}
