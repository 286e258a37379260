package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/defistate/defistate-amm-go/protocols/amm"
	poolindexer "github.com/defistate/defistate-amm-go/protocols/amm/indexer"
	"github.com/defistate/defistate-amm-go/protocols/amm/router"
	"github.com/defistate/defistate-amm-go/protocols/assetpoolregistry"
	"github.com/defistate/defistate-amm-go/protocols/assetregistry"
	assetindexer "github.com/defistate/defistate-amm-go/protocols/assetregistry/indexer"
	"github.com/defistate/defistate-amm-go/state"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc/stateops"
	"github.com/ethereum/go-ethereum/common"
)

var (
	errAssetNotFound = errors.New("asset not found in registry")
	errBadAmount     = errors.New("invalid amount")
)

// view indexes one reconstructed state for the console commands.
type view struct {
	state  *state.State
	pools  []amm.Pool
	assets []assetregistry.Asset
	graph  *assetpoolregistry.AssetPoolSystem

	// source is the router's pool lookup.
	source poolindexer.IndexedPools
	index  assetindexer.IndexedAssetSystem
}

func protocolData[T any](s *state.State, id state.ProtocolID) (T, error) {
	var zero T
	p, ok := s.Protocols[id]
	if !ok {
		return zero, fmt.Errorf("protocol %q missing", id)
	}
	if p.Error != "" {
		return zero, fmt.Errorf("protocol %q: %s", id, p.Error)
	}
	data, ok := p.Data.(T)
	if !ok {
		return zero, fmt.Errorf("protocol %q: bad data type %T", id, p.Data)
	}
	return data, nil
}

func newView(s *state.State) (*view, error) {
	pools, err := protocolData[[]amm.Pool](s, stateops.ProtocolPools)
	if err != nil {
		return nil, err
	}
	assets, err := protocolData[[]assetregistry.Asset](s, stateops.ProtocolAssets)
	if err != nil {
		return nil, err
	}
	graph, err := protocolData[*assetpoolregistry.View](s, stateops.ProtocolGraph)
	if err != nil {
		return nil, err
	}

	v := &view{
		state:  s,
		pools:  pools,
		assets: assets,
		graph:  assetpoolregistry.NewAssetPoolSystemFromView(graph),
		source: poolindexer.New().Index(pools),
		index:  assetindexer.New().Index(assets),
	}
	return v, nil
}

// symbol returns the asset's symbol, or its short id when it is not registered.
func (v *view) symbol(id amm.AssetID) string {
	if a, ok := v.index.GetByID(id); ok {
		return a.Symbol
	}
	return id.TerminalString()
}

func (v *view) decimals(id amm.AssetID) uint8 {
	a, _ := v.index.GetByID(id)
	return a.Decimals
}

// lookupAsset resolves a symbol (case-insensitive) or a hex asset id.
func (v *view) lookupAsset(input string) (assetregistry.Asset, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return assetregistry.Asset{}, errors.New("empty input")
	}
	if strings.HasPrefix(input, "0x") {
		if a, ok := v.index.GetByID(common.HexToHash(input)); ok {
			return a, nil
		}
		return assetregistry.Asset{}, fmt.Errorf("%w: %s", errAssetNotFound, input)
	}
	if a, ok := v.index.GetBySymbol(input); ok {
		return a, nil
	}
	for _, a := range v.assets {
		if strings.EqualFold(a.Symbol, input) {
			return a, nil
		}
	}
	return assetregistry.Asset{}, fmt.Errorf("%w: %s", errAssetNotFound, input)
}

// lookupPool resolves "SYM0 SYM1", "SYM0 SYM1 stable" or an LP asset id into
// a pool of the state.
func (v *view) lookupPool(input string) (amm.Pool, error) {
	fields := strings.Fields(input)
	if len(fields) == 1 && strings.HasPrefix(fields[0], "0x") {
		pool, ok := v.source.GetByLPAsset(common.HexToHash(fields[0]))
		if !ok {
			return amm.Pool{}, fmt.Errorf("no pool issues LP asset %s", fields[0])
		}
		return pool, nil
	}
	if len(fields) < 2 || len(fields) > 3 {
		return amm.Pool{}, errors.New("expected two assets and an optional 'stable'")
	}
	a, err := v.lookupAsset(fields[0])
	if err != nil {
		return amm.Pool{}, err
	}
	b, err := v.lookupAsset(fields[1])
	if err != nil {
		return amm.Pool{}, err
	}
	stable := len(fields) == 3 && strings.EqualFold(fields[2], "stable")
	id, err := amm.NewPoolID(a.ID, b.ID, stable)
	if err != nil {
		return amm.Pool{}, err
	}
	pool, ok := v.source.GetByID(id)
	if !ok {
		return amm.Pool{}, fmt.Errorf("no %s pool for %s/%s", curveName(stable), a.Symbol, b.Symbol)
	}
	return pool, nil
}

func curveName(stable bool) string {
	if stable {
		return "stable"
	}
	return "volatile"
}

// parseAmount converts a decimal string such as "1.5" into base units.
func parseAmount(input string, decimals uint8) (uint64, error) {
	input = strings.TrimSpace(input)
	whole, frac, _ := strings.Cut(input, ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("%w: %q", errBadAmount, input)
	}
	if len(frac) > int(decimals) {
		return 0, fmt.Errorf("%w: more than %d decimals", errBadAmount, decimals)
	}
	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errBadAmount, err)
	}
	return v, nil
}

// formatAmount renders base units with the asset's decimals, trimming trailing zeros.
func formatAmount(amount uint64, decimals uint8) string {
	return formatDigits(strconv.FormatUint(amount, 10), int(decimals))
}

// formatDigits places a decimal point d digits from the right of s.
func formatDigits(s string, d int) string {
	if d <= 0 {
		return s + strings.Repeat("0", -d)
	}
	if len(s) <= d {
		s = strings.Repeat("0", d-len(s)+1) + s
	}
	whole, frac := s[:len(s)-d], strings.TrimRight(s[len(s)-d:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// ratePrecisionDecimals is the number of decimals of router.RatePrecision.
const ratePrecisionDecimals = 12

// formatRate renders a router.Rate as whole input units per whole output unit.
func formatRate(rate router.Rate) string {
	if rate.Value == nil {
		return "0"
	}
	return formatDigits(rate.Value.Dec(), ratePrecisionDecimals+int(rate.DecimalsIn)-int(rate.DecimalsOut))
}
