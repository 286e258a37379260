package patcher

import (
	"errors"
	"testing"
	"time"

	"github.com/defistate/defistate-amm-go/differ"
	"github.com/defistate/defistate-amm-go/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterPatcher treats a protocol view as an int and its diff as a delta.
func counterPatcher(prev any, diff any) (any, error) {
	val := 0
	if prev != nil {
		val = prev.(int)
	}
	delta, ok := diff.(int)
	if !ok {
		return nil, errors.New("diff is not int")
	}
	return val + delta, nil
}

func makeState(sequence uint64, protocols map[state.ProtocolID]state.ProtocolState) *state.State {
	return &state.State{
		Checkpoint: state.Checkpoint{Sequence: sequence, Operation: "swap"},
		Timestamp:  uint64(time.Now().UnixNano()),
		Protocols:  protocols,
	}
}

func newCounterPatcher(t *testing.T, schema state.ProtocolSchema) *StatePatcher {
	t.Helper()
	p, err := NewStatePatcher(&StatePatcherConfig{
		Patchers: map[state.ProtocolSchema]PatcherFunc{schema: counterPatcher},
	})
	require.NoError(t, err)
	return p
}

func TestStatePatcher(t *testing.T) {
	schema := state.ProtocolSchema("test/counter@v1")

	t.Run("Updates Keeps And Adds Protocols", func(t *testing.T) {
		p := newCounterPatcher(t, schema)
		prev := makeState(100, map[state.ProtocolID]state.ProtocolState{
			"amm":    {Schema: schema, Data: 10},
			"assets": {Schema: schema, Data: 50},
		})
		diff := &differ.StateDiff{
			FromSequence: 100,
			To:           state.Checkpoint{Sequence: 101, Operation: "mint"},
			Protocols: map[state.ProtocolID]differ.ProtocolDiff{
				"amm":   {Schema: schema, Data: 5},
				"graph": {Schema: schema, Data: 100, Error: "partial"},
			},
		}

		next, err := p.Patch(prev, diff)
		require.NoError(t, err)

		assert.Equal(t, uint64(101), next.Checkpoint.Sequence)
		assert.Equal(t, "mint", next.Checkpoint.Operation)
		assert.Equal(t, 15, next.Protocols["amm"].Data)
		assert.Equal(t, 50, next.Protocols["assets"].Data)
		assert.Equal(t, 100, next.Protocols["graph"].Data)
		assert.Equal(t, "partial", next.Protocols["graph"].Error)
	})

	t.Run("Previous State Is Left Untouched", func(t *testing.T) {
		p := newCounterPatcher(t, schema)
		prev := makeState(7, map[state.ProtocolID]state.ProtocolState{
			"amm": {Schema: schema, Data: 1},
		})
		diff := &differ.StateDiff{
			FromSequence: 7,
			To:           state.Checkpoint{Sequence: 8},
			Protocols: map[state.ProtocolID]differ.ProtocolDiff{
				"amm":   {Schema: schema, Data: 2},
				"graph": {Schema: schema, Data: 3},
			},
		}

		_, err := p.Patch(prev, diff)
		require.NoError(t, err)
		assert.Equal(t, uint64(7), prev.Checkpoint.Sequence)
		assert.Len(t, prev.Protocols, 1)
		assert.Equal(t, 1, prev.Protocols["amm"].Data)
	})

	t.Run("Sequence Gap", func(t *testing.T) {
		p := newCounterPatcher(t, schema)
		_, err := p.Patch(makeState(100, nil), &differ.StateDiff{FromSequence: 99})
		assert.ErrorIs(t, err, ErrSequenceGap)
	})

	t.Run("Unregistered Schema", func(t *testing.T) {
		p := newCounterPatcher(t, schema)
		_, err := p.Patch(makeState(100, nil), &differ.StateDiff{
			FromSequence: 100,
			Protocols: map[state.ProtocolID]differ.ProtocolDiff{
				"amm": {Schema: "unknown", Data: 1},
			},
		})
		assert.ErrorIs(t, err, ErrNoPatcher)
	})

	t.Run("Schema Changed Between Checkpoints", func(t *testing.T) {
		other := state.ProtocolSchema("test/other@v1")
		p := newCounterPatcher(t, schema)
		prev := makeState(100, map[state.ProtocolID]state.ProtocolState{
			"amm": {Schema: other, Data: 1},
		})
		_, err := p.Patch(prev, &differ.StateDiff{
			FromSequence: 100,
			Protocols: map[state.ProtocolID]differ.ProtocolDiff{
				"amm": {Schema: schema, Data: 1},
			},
		})
		assert.ErrorIs(t, err, ErrSchemaChanged)
	})

	t.Run("Patcher Error Is Wrapped", func(t *testing.T) {
		p := newCounterPatcher(t, schema)
		_, err := p.Patch(makeState(1, nil), &differ.StateDiff{
			FromSequence: 1,
			Protocols: map[state.ProtocolID]differ.ProtocolDiff{
				"amm": {Schema: schema, Data: "not a delta"},
			},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "patching protocol amm")
	})

	t.Run("Nil Patcher Rejected", func(t *testing.T) {
		_, err := NewStatePatcher(&StatePatcherConfig{
			Patchers: map[state.ProtocolSchema]PatcherFunc{schema: nil},
		})
		assert.Error(t, err)
	})
}
