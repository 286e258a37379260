// Package executor gives engine operations the ordering and atomicity the
// external ledger would otherwise provide: one operation at a time, and every
// journal either commits or rolls back with it.
package executor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/defistate/defistate-amm-go/state"
	"github.com/prometheus/client_golang/prometheus"
)

var ErrNilOperation = errors.New("nil operation")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Journal is a store that can stage writes.
type Journal interface {
	Begin() error
	Commit() error
	Rollback()
}

// Preparer is implemented by journals whose staged writes reach durable
// storage. Every Prepare runs before the first Commit, in journal order; a
// failure rolls all journals back. After a successful Prepare, Commit must
// not fail.
type Preparer interface {
	Prepare() error
}

// CommitListener is notified after every committed operation, in commit order.
// Listeners run while the executor is locked and must not call Execute.
type CommitListener func(cp state.Checkpoint)

// Config wires an Executor.
type Config struct {
	// Journals are committed in order. List the ones whose Commit can fail first.
	Journals []Journal
	Logger   Logger
	Registry prometheus.Registerer
	// Now defaults to time.Now.
	Now func() time.Time
}

func (c *Config) validate() error {
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	return nil
}

type Executor struct {
	mu        sync.Mutex
	journals  []Journal
	listeners []CommitListener
	last      state.Checkpoint

	now     func() time.Time
	logger  Logger
	metrics *Metrics
}

func New(cfg *Config) (*Executor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Executor{
		journals: append([]Journal(nil), cfg.Journals...),
		now:      now,
		logger:   cfg.Logger,
		metrics:  NewMetrics(cfg.Registry),
	}, nil
}

// OnCommit registers l for all later commits.
func (x *Executor) OnCommit(l CommitListener) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.listeners = append(x.listeners, l)
}

// Checkpoint returns the last committed checkpoint.
func (x *Executor) Checkpoint() state.Checkpoint {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.last
}

// Execute runs fn as one atomic operation named op. If fn fails, every journal
// is rolled back and fn's error returned.
func (x *Executor) Execute(op string, fn func() error) (state.Checkpoint, error) {
	if fn == nil {
		return state.Checkpoint{}, ErrNilOperation
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	timer := prometheus.NewTimer(x.metrics.duration.WithLabelValues(op))
	defer timer.ObserveDuration()

	for i, j := range x.journals {
		if err := j.Begin(); err != nil {
			x.rollback(x.journals[:i])
			x.metrics.executions.WithLabelValues(op, "begin_error").Inc()
			return state.Checkpoint{}, fmt.Errorf("begin %s: %w", op, err)
		}
	}

	if err := fn(); err != nil {
		x.rollback(x.journals)
		x.metrics.executions.WithLabelValues(op, "rolled_back").Inc()
		x.logger.Debug("Operation rolled back", "op", op, "error", err)
		return state.Checkpoint{}, err
	}

	for _, j := range x.journals {
		p, ok := j.(Preparer)
		if !ok {
			continue
		}
		if err := p.Prepare(); err != nil {
			x.rollback(x.journals)
			x.metrics.executions.WithLabelValues(op, "prepare_error").Inc()
			x.logger.Error("Prepare failed", "op", op, "error", err)
			return state.Checkpoint{}, fmt.Errorf("prepare %s: %w", op, err)
		}
	}

	for i, j := range x.journals {
		if err := j.Commit(); err != nil {
			// Journals before i are already durable.
			x.rollback(x.journals[i+1:])
			x.metrics.executions.WithLabelValues(op, "commit_error").Inc()
			x.logger.Error("Commit failed", "op", op, "journal", i, "error", err)
			return state.Checkpoint{}, fmt.Errorf("commit %s: %w", op, err)
		}
	}

	x.last = state.Checkpoint{
		Sequence:    x.last.Sequence + 1,
		Operation:   op,
		CommittedAt: x.now().UnixNano(),
	}
	x.metrics.executions.WithLabelValues(op, "committed").Inc()
	x.metrics.sequence.Set(float64(x.last.Sequence))
	for _, l := range x.listeners {
		l(x.last)
	}
	return x.last, nil
}

func (x *Executor) rollback(journals []Journal) {
	for _, j := range journals {
		j.Rollback()
	}
}
