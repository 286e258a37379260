package assetpoolregistry

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/defistate/defistate-amm-go/state"
)

// Schema is the decode contract for a *View.
const Schema state.ProtocolSchema = "defistate/assetpoolregistry/graphView@v1"

// View is a complete snapshot of the asset graph. Assets and Pools are sorted;
// edges reference them by index and are listed once per unordered asset pair
// with From < To.
type View struct {
	Assets []amm.AssetID `json:"assets"`
	Pools  []amm.PoolID  `json:"pools"`
	Edges  []Edge        `json:"edges"`
}

// Edge connects two assets through one or more pools.
type Edge struct {
	From  int   `json:"from"`
	To    int   `json:"to"`
	Pools []int `json:"pools"`
}

type pair struct {
	lo, hi amm.AssetID
}

func pairOf(a, b amm.AssetID) pair {
	if a.Cmp(b) > 0 {
		a, b = b, a
	}
	return pair{lo: a, hi: b}
}

// AssetPoolRegistry is the non-thread-safe asset graph. Every pool is an
// undirected edge between its two assets; parallel pools share an edge.
type AssetPoolRegistry struct {
	neighbors map[amm.AssetID]mapset.Set[amm.AssetID]
	edges     map[pair]mapset.Set[amm.PoolID]
}

func NewAssetPoolRegistry() *AssetPoolRegistry {
	return &AssetPoolRegistry{
		neighbors: make(map[amm.AssetID]mapset.Set[amm.AssetID]),
		edges:     make(map[pair]mapset.Set[amm.PoolID]),
	}
}

// NewAssetPoolRegistryFromView rebuilds a registry from a snapshot. Edges that
// reference out-of-range indices are ignored.
func NewAssetPoolRegistryFromView(view *View) *AssetPoolRegistry {
	r := NewAssetPoolRegistry()
	if view == nil {
		return r
	}
	for _, e := range view.Edges {
		if e.From < 0 || e.From >= len(view.Assets) || e.To < 0 || e.To >= len(view.Assets) {
			continue
		}
		for _, p := range e.Pools {
			if p < 0 || p >= len(view.Pools) {
				continue
			}
			r.link(view.Assets[e.From], view.Assets[e.To], view.Pools[p])
		}
	}
	return r
}

func (r *AssetPoolRegistry) link(a, b amm.AssetID, id amm.PoolID) {
	key := pairOf(a, b)
	pools, ok := r.edges[key]
	if !ok {
		pools = mapset.NewThreadUnsafeSet[amm.PoolID]()
		r.edges[key] = pools
	}
	pools.Add(id)

	for _, pr := range [2][2]amm.AssetID{{a, b}, {b, a}} {
		n, ok := r.neighbors[pr[0]]
		if !ok {
			n = mapset.NewThreadUnsafeSet[amm.AssetID]()
			r.neighbors[pr[0]] = n
		}
		n.Add(pr[1])
	}
}

func (r *AssetPoolRegistry) addPool(id amm.PoolID) {
	r.link(id.Asset0, id.Asset1, id)
}

func sortAssets(assets []amm.AssetID) {
	sort.Slice(assets, func(i, j int) bool {
		return assets[i].Cmp(assets[j]) < 0
	})
}

func (r *AssetPoolRegistry) neighborsOf(asset amm.AssetID) []amm.AssetID {
	n, ok := r.neighbors[asset]
	if !ok {
		return nil
	}
	out := n.ToSlice()
	sortAssets(out)
	return out
}

func (r *AssetPoolRegistry) poolsBetween(a, b amm.AssetID) []amm.PoolID {
	pools, ok := r.edges[pairOf(a, b)]
	if !ok {
		return nil
	}
	out := pools.ToSlice()
	amm.SortPoolIDs(out)
	return out
}

func (r *AssetPoolRegistry) poolsForAsset(asset amm.AssetID) []amm.PoolID {
	n, ok := r.neighbors[asset]
	if !ok {
		return nil
	}
	unique := mapset.NewThreadUnsafeSet[amm.PoolID]()
	for _, other := range n.ToSlice() {
		unique.Append(r.edges[pairOf(asset, other)].ToSlice()...)
	}
	out := unique.ToSlice()
	amm.SortPoolIDs(out)
	return out
}

// view builds a sorted, index-based snapshot. It shares no memory with r.
func (r *AssetPoolRegistry) view() *View {
	assets := make([]amm.AssetID, 0, len(r.neighbors))
	for a := range r.neighbors {
		assets = append(assets, a)
	}
	sortAssets(assets)
	assetIndex := make(map[amm.AssetID]int, len(assets))
	for i, a := range assets {
		assetIndex[a] = i
	}

	all := mapset.NewThreadUnsafeSet[amm.PoolID]()
	keys := make([]pair, 0, len(r.edges))
	for key, pools := range r.edges {
		keys = append(keys, key)
		all = all.Union(pools)
	}
	pools := all.ToSlice()
	amm.SortPoolIDs(pools)
	poolIndex := make(map[amm.PoolID]int, len(pools))
	for i, p := range pools {
		poolIndex[p] = i
	}

	sort.Slice(keys, func(i, j int) bool {
		if c := keys[i].lo.Cmp(keys[j].lo); c != 0 {
			return c < 0
		}
		return keys[i].hi.Cmp(keys[j].hi) < 0
	})
	edges := make([]Edge, 0, len(keys))
	for _, key := range keys {
		ids := r.edges[key].ToSlice()
		amm.SortPoolIDs(ids)
		idx := make([]int, len(ids))
		for i, id := range ids {
			idx[i] = poolIndex[id]
		}
		edges = append(edges, Edge{From: assetIndex[key.lo], To: assetIndex[key.hi], Pools: idx})
	}

	return &View{Assets: assets, Pools: pools, Edges: edges}
}
