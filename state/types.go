package state

type ProtocolName string
type ProtocolID string

// ProtocolSchema defines the decode contract for a protocol's data
type ProtocolSchema string

type ProtocolMeta struct {
	Name ProtocolName `json:"name"`           // human label
	Tags []string     `json:"tags,omitempty"` // "amm", "registry", etc.
}

type ProtocolState struct {
	Meta ProtocolMeta `json:"meta"`

	// Schema is the decode contract for Data.
	// Example:
	// "defistate/amm/poolView@v1"
	Schema ProtocolSchema `json:"schema"`

	// Data is the protocol view, shaped by Schema.
	Data any `json:"data,omitempty"`

	// Error is populated if this protocol could not be captured for this sequence.
	Error string `json:"error,omitempty"`
}

// Checkpoint identifies the committed operation a State was captured after.
type Checkpoint struct {
	// Sequence is the number of operations committed so far.
	Sequence uint64 `json:"sequence"`
	// Operation names the last committed operation ("swap", "mint", ...).
	Operation string `json:"operation,omitempty"`
	// CommittedAt is the Unix nanosecond timestamp of the commit.
	CommittedAt int64 `json:"committedAt"`
}

// State is the main data structure broadcast to subscribers.
type State struct {
	Timestamp  uint64                       `json:"timestamp"`
	Checkpoint Checkpoint                   `json:"checkpoint"`
	Protocols  map[ProtocolID]ProtocolState `json:"protocols"`
}

func (state *State) HasErrors() bool {
	for _, pr := range state.Protocols {
		if pr.Error != "" {
			return true
		}
	}
	return false
}
