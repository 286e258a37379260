package differ

import (
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-amm-go/state"
	"github.com/prometheus/client_golang/prometheus"
)

// --- Config and Main Struct ---
type ProtocolDiffer func(old, new any) (diff any, err error)

// emptier is implemented by diffs that can report carrying no changes.
type emptier interface {
	IsEmpty() bool
}

// StateDifferConfig holds all the individual differ functions and dependencies.
type StateDifferConfig struct {
	// One differ per schema (data contract), not per protocol identity.
	ProtocolDiffers map[state.ProtocolSchema]ProtocolDiffer
	Registry        prometheus.Registerer
	Logger          Logger
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *StateDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	for schema, d := range c.ProtocolDiffers {
		if d == nil {
			return fmt.Errorf("config: nil differ for schema %q", schema)
		}
	}
	return nil
}

type StateDiffer struct {
	metrics         *Metrics
	logger          Logger
	protocolDiffers map[state.ProtocolSchema]ProtocolDiffer
}

// NewStateDiffer constructs a new differ from a configuration, returning an error if the config is invalid.
func NewStateDiffer(cfg *StateDifferConfig) (*StateDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	protocolDiffers := make(map[state.ProtocolSchema]ProtocolDiffer, len(cfg.ProtocolDiffers))
	for schema, protocolDiffer := range cfg.ProtocolDiffers {
		protocolDiffers[schema] = protocolDiffer
	}

	return &StateDiffer{
		metrics:         NewMetrics(cfg.Registry),
		logger:          cfg.Logger,
		protocolDiffers: protocolDiffers,
	}, nil
}

// Diff compares two error-free states. Every protocol of new must exist in old.
func (d *StateDiffer) Diff(old, new *state.State) (*StateDiff, error) {
	totalTimer := prometheus.NewTimer(d.metrics.diffDuration.WithLabelValues())
	defer totalTimer.ObserveDuration()

	if old.HasErrors() || new.HasErrors() {
		d.metrics.diffErrors.WithLabelValues("state_error").Inc()
		return nil, errors.New("StateDiffer received view with error")
	}

	protocolDiffs := make(map[state.ProtocolID]ProtocolDiff)
	for protocolID, newProtocolState := range new.Protocols {
		oldProtocolState, ok := old.Protocols[protocolID]
		if !ok {
			d.metrics.diffErrors.WithLabelValues("missing_protocol").Inc()
			return nil, fmt.Errorf("protocolID %s does not exist in old state", protocolID)
		}

		differFunc, exists := d.protocolDiffers[newProtocolState.Schema]
		if !exists {
			d.metrics.diffErrors.WithLabelValues("unknown_schema").Inc()
			return nil, fmt.Errorf("no differ registered for schema %q", newProtocolState.Schema)
		}

		timer := prometheus.NewTimer(d.metrics.protocolDiffDuration.WithLabelValues(string(newProtocolState.Schema)))
		diffData, err := differFunc(oldProtocolState.Data, newProtocolState.Data)
		timer.ObserveDuration()
		if err != nil {
			d.metrics.diffErrors.WithLabelValues("protocol_differ").Inc()
			return nil, fmt.Errorf("protocol %s: %w", protocolID, err)
		}
		if e, ok := diffData.(emptier); ok && e.IsEmpty() {
			continue
		}

		protocolDiffs[protocolID] = ProtocolDiff{
			Meta:   newProtocolState.Meta,
			Schema: newProtocolState.Schema,
			Data:   diffData,
		}
	}

	d.metrics.changedProtocols.Observe(float64(len(protocolDiffs)))
	d.logger.Debug("State diffed",
		"from", old.Checkpoint.Sequence,
		"to", new.Checkpoint.Sequence,
		"changed_protocols", len(protocolDiffs),
	)

	return &StateDiff{
		Timestamp:    uint64(time.Now().UnixNano()),
		FromSequence: old.Checkpoint.Sequence,
		To:           new.Checkpoint,
		Protocols:    protocolDiffs,
	}, nil
}
