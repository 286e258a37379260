// Package server publishes the AMM over JSON-RPC: read-only quoting under the
// "amm" namespace and a state stream that sends one full state followed by a
// diff after every committed operation.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/defistate/defistate-amm-go/differ"
	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/defistate/defistate-amm-go/protocols/amm/router"
	"github.com/defistate/defistate-amm-go/protocols/assetpoolregistry"
	"github.com/defistate/defistate-amm-go/protocols/assetregistry"
	"github.com/defistate/defistate-amm-go/state"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc/stateops"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// RpcNamespace is the namespace under which the query API and stream are registered.
	RpcNamespace = "amm"
	// OpsNamespace is the namespace of the optional operations API.
	OpsNamespace = "ammop"

	EventFull = "full"
	EventDiff = "diff"

	defaultBufferSize = 64
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type PoolViewer interface {
	View() []amm.Pool
}

type AssetViewer interface {
	View() []assetregistry.Asset
}

// Graph is the asset-pool graph kept in step with the pool registry.
type Graph interface {
	router.Graph
	AddPools(ids []amm.PoolID)
	View() *assetpoolregistry.View
}

type StateDiffer interface {
	Diff(old, new *state.State) (*differ.StateDiff, error)
}

type Config struct {
	Pools  PoolViewer
	Assets AssetViewer
	Graph  Graph
	Differ StateDiffer
	Fees   amm.Fees
	Logger Logger
	// Registry is required for metrics.
	Registry prometheus.Registerer
	// BufferSize is the number of events a subscriber may fall behind by
	// before it is dropped.
	BufferSize int
}

func (c *Config) validate() error {
	switch {
	case c.Pools == nil:
		return errors.New("config: Pools cannot be nil")
	case c.Assets == nil:
		return errors.New("config: Assets cannot be nil")
	case c.Graph == nil:
		return errors.New("config: Graph cannot be nil")
	case c.Differ == nil:
		return errors.New("config: Differ cannot be nil")
	case c.Logger == nil:
		return errors.New("config: Logger cannot be nil")
	case c.Registry == nil:
		return errors.New("config: Registry cannot be nil")
	}
	return nil
}

// SubscriptionEvent is the wrapper object sent to subscribers.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// snapshot is one published state plus the pool index the router quotes from.
type snapshot struct {
	state *state.State
	pools router.Snapshot
}

type subscriber struct {
	ch      chan SubscriptionEvent
	dropped chan struct{}
}

type Server struct {
	pools      PoolViewer
	assets     AssetViewer
	graph      Graph
	differ     StateDiffer
	router     *router.Router
	logger     Logger
	metrics    *Metrics
	bufferSize int

	current atomic.Pointer[snapshot]

	// mu orders publication against subscriber registration so a new
	// subscriber's full state and the following diffs line up.
	mu          sync.Mutex
	subscribers map[uint64]*subscriber
	nextID      uint64
}

func New(cfg *Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	r, err := router.New(cfg.Fees)
	if err != nil {
		return nil, err
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	s := &Server{
		pools:       cfg.Pools,
		assets:      cfg.Assets,
		graph:       cfg.Graph,
		differ:      cfg.Differ,
		router:      r,
		logger:      cfg.Logger,
		metrics:     NewMetrics(cfg.Registry),
		bufferSize:  size,
		subscribers: make(map[uint64]*subscriber),
	}
	s.current.Store(s.capture(state.Checkpoint{}))
	return s, nil
}

// capture reads every committed view.
func (s *Server) capture(cp state.Checkpoint) *snapshot {
	pools := s.pools.View()
	ids := make([]amm.PoolID, len(pools))
	for i, p := range pools {
		ids[i] = p.ID
	}
	s.graph.AddPools(ids)

	return &snapshot{
		state: &state.State{
			Timestamp:  uint64(time.Now().UnixNano()),
			Checkpoint: cp,
			Protocols: map[state.ProtocolID]state.ProtocolState{
				stateops.ProtocolPools: {
					Meta:   state.ProtocolMeta{Name: "amm", Tags: []string{"amm"}},
					Schema: amm.Schema,
					Data:   pools,
				},
				stateops.ProtocolAssets: {
					Meta:   state.ProtocolMeta{Name: "assets", Tags: []string{"registry"}},
					Schema: assetregistry.Schema,
					Data:   s.assets.View(),
				},
				stateops.ProtocolGraph: {
					Meta:   state.ProtocolMeta{Name: "graph", Tags: []string{"registry", "graph"}},
					Schema: assetpoolregistry.Schema,
					Data:   s.graph.View(),
				},
			},
		},
		pools: router.NewSnapshot(pools),
	}
}

// Publish captures the state after cp and streams its diff to every
// subscriber. It is meant to run as an executor commit listener.
func (s *Server) Publish(cp state.Checkpoint) {
	timer := prometheus.NewTimer(s.metrics.publishDuration)
	defer timer.ObserveDuration()

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	next := s.capture(cp)
	s.current.Store(next)

	diff, err := s.differ.Diff(prev.state, next.state)
	if err != nil {
		// Subscribers can no longer follow with diffs; make them resync.
		s.logger.Error("Failed to diff state, dropping subscribers", "sequence", cp.Sequence, "error", err)
		for id, sub := range s.subscribers {
			s.drop(id, sub)
		}
		return
	}
	event, err := newEvent(EventDiff, diff)
	if err != nil {
		s.logger.Error("Failed to encode diff", "sequence", cp.Sequence, "error", err)
		return
	}
	for id, sub := range s.subscribers {
		select {
		case sub.ch <- event:
			s.metrics.eventsSent.WithLabelValues(EventDiff).Inc()
		default:
			s.logger.Warn("Subscriber fell behind, dropping", "subscriber", id, "sequence", cp.Sequence)
			s.drop(id, sub)
		}
	}
}

func (s *Server) drop(id uint64, sub *subscriber) {
	delete(s.subscribers, id)
	close(sub.dropped)
	s.metrics.subscribers.Dec()
	s.metrics.droppedSubscribers.Inc()
}

// subscribe registers a subscriber whose first event is the current full state.
func (s *Server) subscribe() (uint64, *subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	full, err := newEvent(EventFull, s.current.Load().state)
	if err != nil {
		return 0, nil, err
	}
	sub := &subscriber{
		ch:      make(chan SubscriptionEvent, s.bufferSize),
		dropped: make(chan struct{}),
	}
	sub.ch <- full
	s.metrics.eventsSent.WithLabelValues(EventFull).Inc()

	s.nextID++
	s.subscribers[s.nextID] = sub
	s.metrics.subscribers.Inc()
	return s.nextID, sub, nil
}

func (s *Server) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[id]; ok {
		delete(s.subscribers, id)
		s.metrics.subscribers.Dec()
	}
}

// State returns the last published state.
func (s *Server) State() *state.State {
	return s.current.Load().state
}

func newEvent(kind string, payload any) (SubscriptionEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return SubscriptionEvent{}, fmt.Errorf("encoding %s event: %w", kind, err)
	}
	return SubscriptionEvent{Type: kind, Payload: raw, SentAt: time.Now().UnixNano()}, nil
}
