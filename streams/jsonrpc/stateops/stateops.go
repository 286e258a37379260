// Package stateops binds the AMM's protocol views to the generic differ and
// patcher, and decodes their JSON wire form.
package stateops

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/defistate/defistate-amm-go/differ"
	"github.com/defistate/defistate-amm-go/patcher"
	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/defistate/defistate-amm-go/protocols/assetpoolregistry"
	"github.com/defistate/defistate-amm-go/protocols/assetregistry"
	"github.com/defistate/defistate-amm-go/state"
	"github.com/prometheus/client_golang/prometheus"
)

// Protocol ids under which the server publishes each view.
const (
	ProtocolPools  state.ProtocolID = "amm"
	ProtocolAssets state.ProtocolID = "assets"
	ProtocolGraph  state.ProtocolID = "graph"
)

var (
	ErrUnknownSchema  = errors.New("unknown schema")
	ErrUnexpectedType = errors.New("unexpected protocol data type")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StateOps encapsulates the core business logic for processing AMM state.
//
// It acts as a unified facade for two critical operations:
// 1. Differ: Calculating the delta between two states (Used by the Server).
// 2. Patcher: Applying a delta to a previous state to reconstruct the present (Used by a Client).
type StateOps struct {
	*differ.StateDiffer
	*patcher.StatePatcher
}

func NewStateOps(
	logger Logger,
	prometheusRegistry prometheus.Registerer,
) (*StateOps, error) {
	protocolDiffers := map[state.ProtocolSchema]differ.ProtocolDiffer{
		amm.Schema:               typedDiffer(amm.Differ),
		assetregistry.Schema:     typedDiffer(assetregistry.Differ),
		assetpoolregistry.Schema: typedDiffer(assetpoolregistry.Differ),
	}

	protocolPatchers := map[state.ProtocolSchema]patcher.PatcherFunc{
		amm.Schema:               typedPatcher(amm.Patcher),
		assetregistry.Schema:     typedPatcher(assetregistry.Patcher),
		assetpoolregistry.Schema: typedPatcher(assetpoolregistry.Patcher),
	}

	stateDiffer, err := differ.NewStateDiffer(&differ.StateDifferConfig{
		ProtocolDiffers: protocolDiffers,
		Logger:          logger,
		Registry:        prometheusRegistry,
	})
	if err != nil {
		return nil, err
	}

	statePatcher, err := patcher.NewStatePatcher(&patcher.StatePatcherConfig{
		Patchers: protocolPatchers,
	})
	if err != nil {
		return nil, err
	}

	return &StateOps{
		StateDiffer:  stateDiffer,
		StatePatcher: statePatcher,
	}, nil
}

func typedDiffer[V, D any](f func(old, new V) D) differ.ProtocolDiffer {
	return func(old, new any) (any, error) {
		o, ok := old.(V)
		if !ok {
			return nil, fmt.Errorf("%w: old is %T", ErrUnexpectedType, old)
		}
		n, ok := new.(V)
		if !ok {
			return nil, fmt.Errorf("%w: new is %T", ErrUnexpectedType, new)
		}
		return f(o, n), nil
	}
}

// typedPatcher treats a nil previous state as the zero view.
func typedPatcher[V, D any](f func(prev V, diff D) (V, error)) patcher.PatcherFunc {
	return func(prevState, diffData any) (any, error) {
		var prev V
		if prevState != nil {
			var ok bool
			if prev, ok = prevState.(V); !ok {
				return nil, fmt.Errorf("%w: state is %T", ErrUnexpectedType, prevState)
			}
		}
		d, ok := diffData.(D)
		if !ok {
			return nil, fmt.Errorf("%w: diff is %T", ErrUnexpectedType, diffData)
		}
		return f(prev, d)
	}
}

func decode[T any](data json.RawMessage) (any, error) {
	var typedData T
	if err := json.Unmarshal(data, &typedData); err != nil {
		return nil, err
	}
	return typedData, nil
}

func (ops *StateOps) DecodeStateJSON(
	schema state.ProtocolSchema,
	data json.RawMessage,
) (any, error) {
	switch schema {
	case amm.Schema:
		return decode[[]amm.Pool](data)
	case assetregistry.Schema:
		return decode[[]assetregistry.Asset](data)
	case assetpoolregistry.Schema:
		return decode[*assetpoolregistry.View](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, schema)
	}
}

func (ops *StateOps) DecodeStateDiffJSON(
	schema state.ProtocolSchema,
	data json.RawMessage,
) (any, error) {
	switch schema {
	case amm.Schema:
		return decode[amm.PoolsDiff](data)
	case assetregistry.Schema:
		return decode[assetregistry.AssetSystemDiff](data)
	case assetpoolregistry.Schema:
		return decode[assetpoolregistry.AssetPoolRegistryDiff](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, schema)
	}
}
