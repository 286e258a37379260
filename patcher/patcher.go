// Package patcher rebuilds a subscriber's state from the previous checkpoint
// and a diff published by the exchange.
package patcher

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-amm-go/differ"
	"github.com/defistate/defistate-amm-go/state"
)

var (
	// ErrSequenceGap means the diff was not computed from the given state.
	ErrSequenceGap = errors.New("patcher: diff does not start at state sequence")
	// ErrNoPatcher means a diff carries a schema nothing was registered for.
	ErrNoPatcher = errors.New("patcher: no patcher registered")
	// ErrSchemaChanged means a protocol changed schema between checkpoints.
	ErrSchemaChanged = errors.New("patcher: schema mismatch")
)

// PatcherFunc applies one protocol's diff data to its previous view.
// prev is nil for a protocol the previous state did not carry. It must be
// treated as read-only: the returned view is a new value.
type PatcherFunc func(prev any, diffData any) (next any, err error)

type StatePatcherConfig struct {
	// Keyed by schema, e.g. "defistate/amm/poolView@v1".
	Patchers map[state.ProtocolSchema]PatcherFunc
}

func (c *StatePatcherConfig) validate() error {
	for schema, f := range c.Patchers {
		if f == nil {
			return fmt.Errorf("patcher for schema %q cannot be nil", schema)
		}
	}
	return nil
}

// StatePatcher replays diffs onto states, one checkpoint at a time.
type StatePatcher struct {
	patchers map[state.ProtocolSchema]PatcherFunc
}

func NewStatePatcher(cfg *StatePatcherConfig) (*StatePatcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	patchers := make(map[state.ProtocolSchema]PatcherFunc, len(cfg.Patchers))
	for schema, f := range cfg.Patchers {
		patchers[schema] = f
	}
	return &StatePatcher{patchers: patchers}, nil
}

// Patch returns the state at diff.To. Protocols absent from the diff keep
// their previous entry by reference; prev itself is never modified.
func (p *StatePatcher) Patch(prev *state.State, diff *differ.StateDiff) (*state.State, error) {
	if prev.Checkpoint.Sequence != diff.FromSequence {
		return nil, fmt.Errorf("%w (state=%d, diff=%d)", ErrSequenceGap, prev.Checkpoint.Sequence, diff.FromSequence)
	}

	next := &state.State{
		Timestamp:  diff.Timestamp,
		Checkpoint: diff.To,
		Protocols:  make(map[state.ProtocolID]state.ProtocolState, len(prev.Protocols)+len(diff.Protocols)),
	}
	for id, ps := range prev.Protocols {
		next.Protocols[id] = ps
	}
	for id, pd := range diff.Protocols {
		ps, err := p.patchProtocol(id, prev.Protocols, pd)
		if err != nil {
			return nil, err
		}
		next.Protocols[id] = ps
	}
	return next, nil
}

// patchProtocol builds the new entry for one protocol. Meta and Error always
// come from the diff.
func (p *StatePatcher) patchProtocol(id state.ProtocolID, prev map[state.ProtocolID]state.ProtocolState, pd differ.ProtocolDiff) (state.ProtocolState, error) {
	f, ok := p.patchers[pd.Schema]
	if !ok {
		return state.ProtocolState{}, fmt.Errorf("%w for schema %q (protocol=%s)", ErrNoPatcher, pd.Schema, id)
	}

	var prevData any
	if old, ok := prev[id]; ok {
		if old.Schema != pd.Schema {
			return state.ProtocolState{}, fmt.Errorf("%w for protocol %s (old=%s, diff=%s)", ErrSchemaChanged, id, old.Schema, pd.Schema)
		}
		prevData = old.Data
	}

	data, err := f(prevData, pd.Data)
	if err != nil {
		return state.ProtocolState{}, fmt.Errorf("patching protocol %s at schema %s: %w", id, pd.Schema, err)
	}
	return state.ProtocolState{
		Meta:   pd.Meta,
		Schema: pd.Schema,
		Data:   data,
		Error:  pd.Error,
	}, nil
}
