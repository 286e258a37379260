// Package engine executes the ledger-invoked AMM entry points: pool creation,
// liquidity minting and burning, and swaps. Each call assumes it runs alone
// against a consistent snapshot; ordering and rollback belong to the caller.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/defistate/defistate-amm-go/protocols/assetregistry"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// MinimumLiquidity is locked forever on a pool's first mint.
	MinimumLiquidity = 1_000
	// LPDecimals is the precision of every liquidity receipt asset.
	LPDecimals = 9
	// DefaultLPSymbol names liquidity receipt assets when Config.LPSymbol is empty.
	DefaultLPSymbol = "AMM-LP"
)

var (
	ErrIdenticalAssets                   = amm.ErrIdenticalAssets
	ErrPoolAlreadyExists                 = errors.New("pool already exists")
	ErrPoolDoesNotExist                  = errors.New("pool does not exist")
	ErrInvalidAsset                      = errors.New("invalid asset")
	ErrZeroInputAmount                   = errors.New("zero input amount")
	ErrInsufficientLiquidity             = errors.New("insufficient liquidity")
	ErrCannotAddLessThanMinimumLiquidity = errors.New("cannot add less than minimum liquidity")
	ErrInsufficientLiquidityMinted       = errors.New("insufficient liquidity minted")
	ErrCurveInvariantViolation           = errors.New("curve invariant violation")
	ErrTransferZeroCoins                 = errors.New("transfer of zero coins")
	ErrReserveMismatch                   = errors.New("pool balance below recorded reserve")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Ledger is the external asset ledger. Balances are held per identity.
type Ledger interface {
	BalanceOf(owner amm.Identity, asset amm.AssetID) uint64
	Transfer(from, to amm.Identity, asset amm.AssetID, amount uint64) error
	Mint(to amm.Identity, asset amm.AssetID, amount uint64) error
	Burn(from amm.Identity, asset amm.AssetID, amount uint64) error
}

// AssetMetadata resolves asset precision at pool creation.
type AssetMetadata interface {
	Decimals(id amm.AssetID) (uint8, error)
}

// LPAssetRegistrar records the metadata of newly created liquidity receipt assets.
type LPAssetRegistrar interface {
	Register(a assetregistry.Asset) error
}

// PoolStore holds pool state.
type PoolStore interface {
	Get(id amm.PoolID) (amm.Pool, bool)
	GetByLPAsset(lp amm.AssetID) (amm.Pool, bool)
	Create(p amm.Pool) error
	Update(p amm.Pool) error
}

// Config wires an Engine to its collaborators.
type Config struct {
	Contract amm.ContractID
	Fees     amm.Fees
	Pools    PoolStore
	Assets   AssetMetadata
	Ledger   Ledger
	Logger   Logger

	// Optional.
	LPAssets   LPAssetRegistrar
	Hook       SwapHook
	LPSymbol   string
	Registerer prometheus.Registerer
}

func (c *Config) validate() error {
	if c.Pools == nil {
		return errors.New("config: Pools is required")
	}
	if c.Assets == nil {
		return errors.New("config: Assets is required")
	}
	if c.Ledger == nil {
		return errors.New("config: Ledger is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if err := c.Fees.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Engine is not safe for concurrent mutation; callers serialize operations.
type Engine struct {
	contract amm.ContractID
	fees     amm.Fees
	pools    PoolStore
	assets   AssetMetadata
	lpAssets LPAssetRegistrar
	ledger   Ledger
	hook     SwapHook
	lpSymbol string
	logger   Logger
	metrics  *Metrics
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	hook := cfg.Hook
	if hook == nil {
		hook = NoopHook{}
	}
	symbol := cfg.LPSymbol
	if symbol == "" {
		symbol = DefaultLPSymbol
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Engine{
		contract: cfg.Contract,
		fees:     cfg.Fees,
		pools:    cfg.Pools,
		assets:   cfg.Assets,
		lpAssets: cfg.LPAssets,
		ledger:   cfg.Ledger,
		hook:     hook,
		lpSymbol: symbol,
		logger:   cfg.Logger,
		metrics:  NewMetrics(reg),
	}, nil
}

// Contract returns the identity the engine runs under.
func (e *Engine) Contract() amm.ContractID {
	return e.contract
}

// Fees returns the configured fee schedule.
func (e *Engine) Fees() amm.Fees {
	return e.fees
}

// Hook returns the swap hook in use.
func (e *Engine) Hook() SwapHook {
	return e.hook
}

// PoolMetadata returns the pool with the given id, if registered.
func (e *Engine) PoolMetadata(id amm.PoolID) (amm.Pool, bool) {
	return e.pools.Get(id)
}

// LPAssetID derives a pool's liquidity receipt asset.
func (e *Engine) LPAssetID(id amm.PoolID) amm.AssetID {
	return amm.LPAssetID(e.contract, id)
}

// Custody returns the ledger account holding a pool's reserves.
func (e *Engine) Custody(id amm.PoolID) amm.Identity {
	return amm.CustodyAccount(e.contract, id)
}

// LPAssetInfo describes a liquidity receipt asset. Total supply includes the
// locked minimum liquidity.
func (e *Engine) LPAssetInfo(asset amm.AssetID) (amm.LPAssetInfo, bool) {
	pool, ok := e.pools.GetByLPAsset(asset)
	if !ok {
		return amm.LPAssetInfo{}, false
	}
	return amm.LPAssetInfo{
		AssetID:     asset,
		Name:        e.lpSymbol,
		Symbol:      e.lpSymbol,
		Decimals:    LPDecimals,
		TotalSupply: pool.Liquidity,
	}, true
}

func (e *Engine) pool(id amm.PoolID) (amm.Pool, error) {
	p, ok := e.pools.Get(id)
	if !ok {
		return amm.Pool{}, fmt.Errorf("%w: %s", ErrPoolDoesNotExist, id)
	}
	return p, nil
}

// balances returns what the pool's custody account holds, failing if either
// side sits below its recorded reserve.
func (e *Engine) balances(p amm.Pool) (uint64, uint64, error) {
	custody := e.Custody(p.ID)
	bal0 := e.ledger.BalanceOf(custody, p.ID.Asset0)
	bal1 := e.ledger.BalanceOf(custody, p.ID.Asset1)
	if bal0 < p.Reserve0 || bal1 < p.Reserve1 {
		return 0, 0, fmt.Errorf("%w: %s holds (%d, %d), reserves (%d, %d)", ErrReserveMismatch, p.ID, bal0, bal1, p.Reserve0, p.Reserve1)
	}
	return bal0, bal1, nil
}

// observe records the outcome of one operation.
func (e *Engine) observe(op string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	e.metrics.operations.WithLabelValues(op, result).Inc()
	e.metrics.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
