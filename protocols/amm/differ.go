package amm

// PoolsDiff describes how a pool view changed between two sequences.
// Pools are never deleted, so a diff only carries additions and updates.
type PoolsDiff struct {
	Additions []Pool `json:"additions,omitempty"`
	Updates   []Pool `json:"updates,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d PoolsDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0
}

// Differ calculates the difference between two pool views.
// Only the mutable fields are compared: reserves and liquidity.
func Differ(old, new []Pool) PoolsDiff {
	oldPools := make(map[PoolID]Pool, len(old))
	for _, pool := range old {
		oldPools[pool.ID] = pool
	}

	var diff PoolsDiff
	for _, newPool := range new {
		oldPool, exists := oldPools[newPool.ID]
		if !exists {
			diff.Additions = append(diff.Additions, newPool)
			continue
		}
		if oldPool.Reserve0 != newPool.Reserve0 ||
			oldPool.Reserve1 != newPool.Reserve1 ||
			oldPool.Liquidity != newPool.Liquidity {
			diff.Updates = append(diff.Updates, newPool)
		}
	}
	return diff
}
