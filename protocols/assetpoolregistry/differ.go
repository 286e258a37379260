package assetpoolregistry

type AssetPoolRegistryDiff struct {
	Data *View `json:"data,omitempty"`
}

// IsEmpty returns true if the diff contains no data.
func (d AssetPoolRegistryDiff) IsEmpty() bool {
	return d.Data == nil
}

// Differ returns the complete new view when the graph changed and an empty
// diff otherwise. Pool additions are rare next to reserve updates, so the
// graph is shipped whole instead of as edge mutations.
func Differ(old, new *View) AssetPoolRegistryDiff {
	if viewsEqual(old, new) {
		return AssetPoolRegistryDiff{}
	}
	return AssetPoolRegistryDiff{Data: deepCopyView(new)}
}

func viewsEqual(a, b *View) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.Assets) != len(b.Assets) || len(a.Pools) != len(b.Pools) || len(a.Edges) != len(b.Edges) {
		return false
	}
	for i := range a.Assets {
		if a.Assets[i] != b.Assets[i] {
			return false
		}
	}
	for i := range a.Pools {
		if a.Pools[i] != b.Pools[i] {
			return false
		}
	}
	for i := range a.Edges {
		ea, eb := a.Edges[i], b.Edges[i]
		if ea.From != eb.From || ea.To != eb.To || len(ea.Pools) != len(eb.Pools) {
			return false
		}
		for j := range ea.Pools {
			if ea.Pools[j] != eb.Pools[j] {
				return false
			}
		}
	}
	return true
}
