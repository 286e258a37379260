package assetregistry

import "github.com/defistate/defistate-amm-go/protocols/amm"

type AssetSystemDiff struct {
	Additions []Asset       `json:"additions,omitempty"`
	Updates   []Asset       `json:"updates,omitempty"`
	Deletions []amm.AssetID `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d AssetSystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two states of the asset registry.
func Differ(old, new []Asset) AssetSystemDiff {
	oldAssets := make(map[amm.AssetID]Asset, len(old))
	for _, a := range old {
		oldAssets[a.ID] = a
	}

	newAssets := make(map[amm.AssetID]Asset, len(new))
	for _, a := range new {
		newAssets[a.ID] = a
	}

	var diff AssetSystemDiff
	for id, newAsset := range newAssets {
		oldAsset, exists := oldAssets[id]
		if !exists {
			diff.Additions = append(diff.Additions, newAsset)
			continue
		}
		if oldAsset != newAsset {
			diff.Updates = append(diff.Updates, newAsset)
		}
	}

	for id := range oldAssets {
		if _, exists := newAssets[id]; !exists {
			diff.Deletions = append(diff.Deletions, id)
		}
	}

	return diff
}
