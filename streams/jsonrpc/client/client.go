// Package client follows the exchange's state stream: it takes the first full
// state of a subscription and then rebuilds every later checkpoint from diffs.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-amm-go/differ"
	"github.com/defistate/defistate-amm-go/state"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second

	// RpcNamespace is the namespace the exchange registers its APIs under.
	RpcNamespace                  = "amm"
	StateStreamSubscriptionMethod = "subscribeStateStream"

	eventFull = "full"
	eventDiff = "diff"
)

var (
	// ErrStateGap is returned when a diff does not continue from the last known
	// checkpoint. The client resubscribes to receive a fresh full state.
	ErrStateGap = errors.New("diff does not follow the last known state")
	// ErrNoBaseState is returned for a diff that arrives before any full state.
	ErrNoBaseState = errors.New("received diff before full state")
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StatePatcherFunc builds the state at diff.To from the state at diff.FromSequence.
type StatePatcherFunc func(prevState *state.State, diff *differ.StateDiff) (newState *state.State, err error)

// DecoderFunc turns one protocol's raw data into the typed value for its schema.
type DecoderFunc func(schema state.ProtocolSchema, data json.RawMessage) (any, error)

type Config struct {
	URL              string
	Logger           Logger
	BufferSize       uint
	StatePatcher     StatePatcherFunc
	StateDecoder     DecoderFunc
	StateDiffDecoder DecoderFunc
}

func (c *Config) validate() error {
	switch {
	case c.URL == "":
		return errors.New("config: URL is required")
	case c.BufferSize < 1:
		return errors.New("config: BufferSize must be greater than 0")
	case c.Logger == nil:
		return errors.New("config: Logger is required")
	case c.StatePatcher == nil:
		return errors.New("config: StatePatcher is required")
	case c.StateDecoder == nil:
		return errors.New("config: StateDecoder is required")
	case c.StateDiffDecoder == nil:
		return errors.New("config: StateDiffDecoder is required")
	}
	return nil
}

// SubscriptionEvent is one notification of the state stream.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// StreamProcessor holds the last rebuilt state and turns stream events into
// new states. It does no I/O, so it can be fed from any transport.
type StreamProcessor struct {
	last             *state.State
	statePatcher     StatePatcherFunc
	stateDecoder     DecoderFunc
	stateDiffDecoder DecoderFunc
	stateCh          chan *state.State
	logger           Logger
}

func NewStreamProcessor(
	logger Logger,
	bufferSize uint,
	statePatcher StatePatcherFunc,
	stateDecoder DecoderFunc,
	stateDiffDecoder DecoderFunc,
) *StreamProcessor {
	return &StreamProcessor{
		logger:           logger,
		stateCh:          make(chan *state.State, bufferSize),
		statePatcher:     statePatcher,
		stateDecoder:     stateDecoder,
		stateDiffDecoder: stateDiffDecoder,
	}
}

// State delivers every rebuilt state, in checkpoint order.
func (sp *StreamProcessor) State() <-chan *state.State {
	return sp.stateCh
}

// ProcessMessage handles one raw subscription event. A full state replaces
// whatever was held; a diff must continue from it.
func (sp *StreamProcessor) ProcessMessage(rawData json.RawMessage) error {
	received := time.Now()

	var event SubscriptionEvent
	if err := json.Unmarshal(rawData, &event); err != nil {
		return fmt.Errorf("decoding subscription event: %w", err)
	}

	var (
		next *state.State
		err  error
	)
	switch event.Type {
	case eventFull:
		next, err = sp.applyFull(event.Payload)
	case eventDiff:
		next, err = sp.applyDiff(event.Payload)
	default:
		return fmt.Errorf("unknown event type %q", event.Type)
	}
	if err != nil {
		return err
	}

	sp.last = next
	sp.report(next, event, received)
	sp.stateCh <- next
	return nil
}

// decodeProtocols decodes every protocol's data with decode and hands the
// result to add.
func decodeProtocols(
	raw map[state.ProtocolID]clientProtocolState,
	decode DecoderFunc,
	add func(id state.ProtocolID, p clientProtocolState, data any),
) error {
	for id, p := range raw {
		data, err := decode(p.Schema, p.Data)
		if err != nil {
			return fmt.Errorf("decoding protocol %s (%s): %w", id, p.Schema, err)
		}
		add(id, p, data)
	}
	return nil
}

func (sp *StreamProcessor) applyFull(payload json.RawMessage) (*state.State, error) {
	var raw clientState
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decoding full state: %w", err)
	}

	full := &state.State{
		Timestamp:  raw.Timestamp,
		Checkpoint: raw.Checkpoint,
		Protocols:  make(map[state.ProtocolID]state.ProtocolState, len(raw.Protocols)),
	}
	err := decodeProtocols(raw.Protocols, sp.stateDecoder, func(id state.ProtocolID, p clientProtocolState, data any) {
		full.Protocols[id] = state.ProtocolState{Meta: p.Meta, Schema: p.Schema, Data: data, Error: p.Error}
	})
	if err != nil {
		return nil, err
	}
	return full, nil
}

func (sp *StreamProcessor) applyDiff(payload json.RawMessage) (*state.State, error) {
	var raw clientStateDiff
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decoding diff: %w", err)
	}
	if sp.last == nil {
		return nil, fmt.Errorf("%w: diff %d -> %d", ErrNoBaseState, raw.FromSequence, raw.To.Sequence)
	}

	have := sp.last.Checkpoint.Sequence
	if raw.FromSequence != have {
		sp.logger.Warn("Diff skips checkpoints, resyncing",
			"have_sequence", have,
			"from_sequence", raw.FromSequence,
			"to_sequence", raw.To.Sequence,
		)
		// Nothing can be patched until the next full state.
		sp.last = nil
		return nil, fmt.Errorf("%w: have %d, diff from %d", ErrStateGap, have, raw.FromSequence)
	}

	diff := &differ.StateDiff{
		Timestamp:    raw.Timestamp,
		FromSequence: raw.FromSequence,
		To:           raw.To,
		Protocols:    make(map[state.ProtocolID]differ.ProtocolDiff, len(raw.Protocols)),
	}
	err := decodeProtocols(raw.Protocols, sp.stateDiffDecoder, func(id state.ProtocolID, p clientProtocolState, data any) {
		diff.Protocols[id] = differ.ProtocolDiff{Meta: p.Meta, Schema: p.Schema, Data: data, Error: p.Error}
	})
	if err != nil {
		return nil, err
	}

	next, err := sp.statePatcher(sp.last, diff)
	if err != nil {
		return nil, fmt.Errorf("patching sequence %d -> %d: %w", diff.FromSequence, diff.To.Sequence, err)
	}
	next.Timestamp = diff.Timestamp
	return next, nil
}

// report logs how long a checkpoint took from commit to this client.
func (sp *StreamProcessor) report(s *state.State, event SubscriptionEvent, received time.Time) {
	now := time.Now()
	committed := time.Unix(0, s.Checkpoint.CommittedAt)
	sent := time.Unix(0, event.SentAt)

	failed := 0
	for _, p := range s.Protocols {
		if p.Error != "" {
			failed++
		}
	}

	sp.logger.Debug("Checkpoint applied",
		"sequence", s.Checkpoint.Sequence,
		"operation", s.Checkpoint.Operation,
		"event", event.Type,
		"protocols", len(s.Protocols),
		"failed_protocols", failed,
		"commit_to_apply_ms", now.Sub(committed).Milliseconds(),
		"commit_to_send_ms", sent.Sub(committed).Milliseconds(),
		"send_to_receive_ms", received.Sub(sent).Milliseconds(),
		"apply_ms", now.Sub(received).Milliseconds(),
	)
}

// Client keeps a subscription to the exchange open and feeds it to a
// StreamProcessor, reconnecting with exponential backoff.
type Client struct {
	processor *StreamProcessor
	errCh     chan error
	logger    Logger
}

// NewClient starts following the stream at cfg.URL until ctx is done.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := &Client{
		processor: NewStreamProcessor(cfg.Logger, cfg.BufferSize, cfg.StatePatcher, cfg.StateDecoder, cfg.StateDiffDecoder),
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
	}
	go c.run(ctx, cfg.URL)
	return c, nil
}

func (c *Client) State() <-chan *state.State {
	return c.processor.State()
}

// Err is closed when the client stops.
func (c *Client) Err() <-chan error {
	return c.errCh
}

// wait sleeps for d and reports false if ctx ends first.
func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) run(ctx context.Context, url string) {
	defer close(c.errCh)
	delay := initialReconnectDelay
	backoff := func() bool {
		ok := wait(ctx, delay)
		delay = min(delay*2, maxReconnectDelay)
		return ok
	}

	for ctx.Err() == nil {
		c.logger.Info("Connecting to exchange", "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			c.logger.Error("Dial failed", "url", url, "error", err, "retry_in", delay)
			if !backoff() {
				break
			}
			continue
		}
		delay = initialReconnectDelay

		err = c.follow(ctx, rpcClient)
		if ctx.Err() != nil {
			break
		}
		c.logger.Error("State stream interrupted", "error", err, "retry_in", delay)
		if !backoff() {
			break
		}
	}
	c.logger.Info("Client stopped")
}

// follow subscribes on rpcClient and processes events until the subscription
// fails, a checkpoint gap forces a resync, or ctx ends.
func (c *Client) follow(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, RpcNamespace, rawCh, StateStreamSubscriptionMethod)
	if err != nil {
		return fmt.Errorf("subscribing to %s_%s: %w", RpcNamespace, StateStreamSubscriptionMethod, err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("Subscribed to state stream")
	for {
		select {
		case raw := <-rawCh:
			err := c.processor.ProcessMessage(raw)
			if errors.Is(err, ErrStateGap) {
				return err
			}
			if err != nil {
				c.logger.Error("Dropping stream event", "error", err)
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
