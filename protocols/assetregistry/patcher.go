package assetregistry

import (
	"sort"

	"github.com/defistate/defistate-amm-go/protocols/amm"
)

// Patcher constructs a new asset view by applying a diff to a previous one.
// The result is ordered by id, like Registry.View.
func Patcher(prevState []Asset, diff AssetSystemDiff) ([]Asset, error) {
	// Asset holds no pointers, so copying by value is safe.
	next := make(map[amm.AssetID]Asset, len(prevState))
	for _, a := range prevState {
		next[a.ID] = a
	}

	for _, id := range diff.Deletions {
		delete(next, id)
	}
	for _, a := range diff.Updates {
		next[a.ID] = a
	}
	for _, a := range diff.Additions {
		next[a.ID] = a
	}

	finalState := make([]Asset, 0, len(next))
	for _, a := range next {
		finalState = append(finalState, a)
	}
	sort.Slice(finalState, func(i, j int) bool {
		return finalState[i].ID.Cmp(finalState[j].ID) < 0
	})
	return finalState, nil
}
