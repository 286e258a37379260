package client

import (
	"encoding/json"

	"github.com/defistate/defistate-amm-go/state"
)

// clientState mirrors state.State but strictly types the Data field as RawMessage.
// This prevents the Go JSON decoder from unmarshaling into map[string]interface{}.
type clientState struct {
	Timestamp  uint64                                   `json:"timestamp"`
	Checkpoint state.Checkpoint                         `json:"checkpoint"`
	Protocols  map[state.ProtocolID]clientProtocolState `json:"protocols"`
}

type clientProtocolState struct {
	Meta   state.ProtocolMeta   `json:"meta"`
	Schema state.ProtocolSchema `json:"schema"`
	Error  string               `json:"error,omitempty"`

	// Data is kept as raw bytes. We decode this later using the specific Schema.
	Data json.RawMessage `json:"data,omitempty"`
}

// clientStateDiff mirrors differ.StateDiff but keeps the protocol diffs as raw bytes.
type clientStateDiff struct {
	Timestamp    uint64                                   `json:"timestamp"`
	FromSequence uint64                                   `json:"fromSequence"`
	To           state.Checkpoint                         `json:"to"`
	Protocols    map[state.ProtocolID]clientProtocolState `json:"protocols"`
}
