package differ

import "github.com/defistate/defistate-amm-go/state"

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type ProtocolDiff struct {
	Meta state.ProtocolMeta `json:"meta"`

	// Schema is the decode contract for Data.
	// Examples:
	// "defistate/amm/poolView@v1"
	// "defistate/assetregistry/assetView@v1"
	Schema state.ProtocolSchema `json:"schema"`

	// Data is the protocol diff, shaped by Schema.
	Data any `json:"data,omitempty"`

	// Error is populated if this protocol failed to capture for this checkpoint.
	Error string `json:"error,omitempty"`
}

// StateDiff summarizes the changes between two checkpoints. Protocols whose
// data did not change are omitted.
type StateDiff struct {
	Timestamp    uint64                            `json:"timestamp"`
	FromSequence uint64                            `json:"fromSequence"`
	To           state.Checkpoint                  `json:"to"`
	Protocols    map[state.ProtocolID]ProtocolDiff `json:"protocols"`
}
