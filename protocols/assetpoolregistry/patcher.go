package assetpoolregistry

import "github.com/defistate/defistate-amm-go/protocols/amm"

// deepCopyView creates a View with its own memory for all its slices.
func deepCopyView(v *View) *View {
	if v == nil {
		return &View{}
	}
	out := &View{
		Assets: append(make([]amm.AssetID, 0, len(v.Assets)), v.Assets...),
		Pools:  append(make([]amm.PoolID, 0, len(v.Pools)), v.Pools...),
		Edges:  make([]Edge, len(v.Edges)),
	}
	for i, e := range v.Edges {
		out.Edges[i] = Edge{From: e.From, To: e.To, Pools: append(make([]int, 0, len(e.Pools)), e.Pools...)}
	}
	return out
}

// Patcher replaces the previous view with the one carried by the diff.
// An empty diff leaves the previous view in place.
func Patcher(prevState *View, diff AssetPoolRegistryDiff) (*View, error) {
	if diff.IsEmpty() {
		return deepCopyView(prevState), nil
	}
	return deepCopyView(diff.Data), nil
}
