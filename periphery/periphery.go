// Package periphery composes engine calls into user-facing operations:
// deposits, withdrawals and multi-hop swaps with slippage bounds and
// deadlines. Every operation runs atomically through the executor.
package periphery

import (
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/defistate/defistate-amm-go/protocols/amm/router"
	"github.com/defistate/defistate-amm-go/state"
)

var (
	ErrDeadlinePassed      = errors.New("deadline passed")
	ErrInsufficientAmount0 = errors.New("insufficient amount of asset0")
	ErrInsufficientAmount1 = errors.New("insufficient amount of asset1")
	ErrInsufficientOutput  = errors.New("insufficient output amount")
	ErrExcessiveInput      = errors.New("excessive input amount")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Engine is the subset of the engine the periphery drives.
type Engine interface {
	CreatePool(contract0 amm.ContractID, sub0 amm.SubID, contract1 amm.ContractID, sub1 amm.SubID, stable bool) (amm.PoolID, error)
	PoolMetadata(id amm.PoolID) (amm.Pool, bool)
	Mint(id amm.PoolID, recipient amm.Identity) (amm.AssetID, uint64, error)
	Burn(id amm.PoolID, recipient amm.Identity, lpAsset amm.AssetID, amount uint64) (uint64, uint64, error)
	Swap(id amm.PoolID, out0, out1 uint64, recipient amm.Identity, auxData []byte) error
	Fees() amm.Fees
	Custody(id amm.PoolID) amm.Identity
}

// Ledger moves the caller's funds into pool custody.
type Ledger interface {
	Transfer(from, to amm.Identity, asset amm.AssetID, amount uint64) error
}

// Executor runs an operation atomically.
type Executor interface {
	Execute(op string, fn func() error) (state.Checkpoint, error)
}

type Config struct {
	Engine   Engine
	Ledger   Ledger
	Executor Executor
	Logger   Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func (c *Config) validate() error {
	switch {
	case c.Engine == nil:
		return errors.New("config: Engine cannot be nil")
	case c.Ledger == nil:
		return errors.New("config: Ledger cannot be nil")
	case c.Executor == nil:
		return errors.New("config: Executor cannot be nil")
	case c.Logger == nil:
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

type Periphery struct {
	engine Engine
	ledger Ledger
	exec   Executor
	router *router.Router
	now    func() time.Time
	logger Logger
}

func New(cfg *Config) (*Periphery, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	r, err := router.New(cfg.Engine.Fees())
	if err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Periphery{
		engine: cfg.Engine,
		ledger: cfg.Ledger,
		exec:   cfg.Executor,
		router: r,
		now:    now,
		logger: cfg.Logger,
	}, nil
}

// GetByID lets the router quote against the engine's live pools.
func (p *Periphery) GetByID(id amm.PoolID) (amm.Pool, bool) {
	return p.engine.PoolMetadata(id)
}

func (p *Periphery) checkDeadline(deadline time.Time) error {
	if now := p.now(); now.After(deadline) {
		return fmt.Errorf("%w: %s after %s", ErrDeadlinePassed, now.Format(time.RFC3339), deadline.Format(time.RFC3339))
	}
	return nil
}

// run checks the deadline and executes fn atomically.
func (p *Periphery) run(op string, deadline time.Time, fn func() error) error {
	if err := p.checkDeadline(deadline); err != nil {
		return err
	}
	cp, err := p.exec.Execute(op, fn)
	if err != nil {
		return err
	}
	p.logger.Debug("Operation committed", "op", op, "sequence", cp.Sequence)
	return nil
}
