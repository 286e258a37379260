// Package ledger is a multi-asset balance book. It stands in for the external
// asset ledger the engine requests transfers from. Balances live in memory and
// are optionally persisted through a Store.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/defistate/defistate-amm-go/protocols/amm"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrZeroAmount          = errors.New("zero amount")
	ErrBalanceOverflow     = errors.New("balance overflow")
	ErrTxInProgress        = errors.New("transaction already in progress")
	ErrNoTx                = errors.New("no transaction in progress")
)

// Balance is one owner's holding of one asset.
type Balance struct {
	Owner  amm.Identity
	Asset  amm.AssetID
	Amount uint64
}

// Supply is the total amount of an asset across all owners.
type Supply struct {
	Asset  amm.AssetID
	Amount uint64
}

// Store persists balances. A zero Amount deletes the record. PutBalances must
// apply all entries atomically.
type Store interface {
	Balances() ([]Balance, []Supply, error)
	PutBalances(balances []Balance, supplies []Supply) error
}

type account struct {
	owner amm.Identity
	asset amm.AssetID
}

// undo restores one balance and the asset's supply to their values before a write.
type undo struct {
	key     account
	balance uint64
	supply  uint64
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu       sync.RWMutex
	balances map[account]uint64
	supply   map[amm.AssetID]uint64

	// journal is nil outside a transaction.
	journal []undo
	store   Store
}

// New returns an empty ledger that keeps its balances in memory only.
func New() *Ledger {
	return &Ledger{
		balances: make(map[account]uint64),
		supply:   make(map[amm.AssetID]uint64),
	}
}

// Open loads every balance from store. Later writes are persisted to it:
// inside a transaction on Prepare, otherwise as they happen.
func Open(store Store) (*Ledger, error) {
	balances, supplies, err := store.Balances()
	if err != nil {
		return nil, fmt.Errorf("loading balances: %w", err)
	}
	l := New()
	l.store = store
	for _, b := range balances {
		if b.Amount > 0 {
			l.balances[account{b.Owner, b.Asset}] = b.Amount
		}
	}
	for _, s := range supplies {
		if s.Amount > 0 {
			l.supply[s.Asset] = s.Amount
		}
	}
	return l, nil
}

// BalanceOf returns owner's balance of asset.
func (l *Ledger) BalanceOf(owner amm.Identity, asset amm.AssetID) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account{owner, asset}]
}

// TotalSupply returns the amount of asset held across all owners.
func (l *Ledger) TotalSupply(asset amm.AssetID) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply[asset]
}

// Balances returns every non-zero balance of owner.
func (l *Ledger) Balances(owner amm.Identity) map[amm.AssetID]uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[amm.AssetID]uint64)
	for k, v := range l.balances {
		if k.owner == owner && v > 0 {
			out[k.asset] = v
		}
	}
	return out
}

// record MUST be called with l.mu held for writing, before key is modified.
func (l *Ledger) record(key account) {
	if l.journal != nil {
		l.journal = append(l.journal, undo{key: key, balance: l.balances[key], supply: l.supply[key.asset]})
	}
}

func (l *Ledger) credit(key account, amount uint64) error {
	bal := l.balances[key]
	if bal+amount < bal {
		return fmt.Errorf("%w: %s", ErrBalanceOverflow, key.asset.TerminalString())
	}
	l.record(key)
	l.balances[key] = bal + amount
	return nil
}

func (l *Ledger) debit(key account, amount uint64) error {
	bal := l.balances[key]
	if bal < amount {
		return fmt.Errorf("%w: %s holds %d of %s, needs %d", ErrInsufficientBalance, key.owner.TerminalString(), bal, key.asset.TerminalString(), amount)
	}
	l.record(key)
	if bal == amount {
		delete(l.balances, key)
	} else {
		l.balances[key] = bal - amount
	}
	return nil
}

// Transfer moves amount of asset from one owner to another.
func (l *Ledger) Transfer(from, to amm.Identity, asset amm.AssetID, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	return l.mutate(func() error {
		if err := l.debit(account{from, asset}, amount); err != nil {
			return err
		}
		if err := l.credit(account{to, asset}, amount); err != nil {
			// restore the debit; to == from cannot overflow, so this cannot fail
			l.balances[account{from, asset}] += amount
			return err
		}
		return nil
	})
}

// Mint issues new units of asset to owner.
func (l *Ledger) Mint(to amm.Identity, asset amm.AssetID, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	return l.mutate(func() error {
		supply := l.supply[asset]
		if supply+amount < supply {
			return fmt.Errorf("%w: supply of %s", ErrBalanceOverflow, asset.TerminalString())
		}
		if err := l.credit(account{to, asset}, amount); err != nil {
			return err
		}
		l.supply[asset] = supply + amount
		return nil
	})
}

// Burn destroys units of asset held by owner.
func (l *Ledger) Burn(from amm.Identity, asset amm.AssetID, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	return l.mutate(func() error {
		if err := l.debit(account{from, asset}, amount); err != nil {
			return err
		}
		l.supply[asset] -= amount
		return nil
	})
}

// Deposit credits funds that arrive from outside the ledger, such as a bridge
// or a faucet. It is accounted exactly like Mint.
func (l *Ledger) Deposit(to amm.Identity, asset amm.AssetID, amount uint64) error {
	return l.Mint(to, asset, amount)
}

// Begin opens a transaction; every write until Commit or Rollback is journaled.
func (l *Ledger) Begin() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.journal != nil {
		return ErrTxInProgress
	}
	l.journal = make([]undo, 0, 8)
	return nil
}

// Prepare persists every balance written since Begin. Commit then cannot fail.
func (l *Ledger) Prepare() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.journal == nil {
		return ErrNoTx
	}
	return l.persist()
}

// Commit keeps every write made since Begin.
func (l *Ledger) Commit() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.journal == nil {
		return ErrNoTx
	}
	l.journal = nil
	return nil
}

// Rollback undoes every write made since Begin, newest first.
func (l *Ledger) Rollback() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revert()
	l.journal = nil
}

// revert MUST be called with l.mu held for writing.
func (l *Ledger) revert() {
	for i := len(l.journal) - 1; i >= 0; i-- {
		u := l.journal[i]
		if u.balance == 0 {
			delete(l.balances, u.key)
		} else {
			l.balances[u.key] = u.balance
		}
		if u.supply == 0 {
			delete(l.supply, u.key.asset)
		} else {
			l.supply[u.key.asset] = u.supply
		}
	}
}

// mutate runs fn under the write lock. Outside a transaction a ledger with a
// store persists the change at once and undoes it if the store fails.
func (l *Ledger) mutate(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.journal != nil || l.store == nil {
		return fn()
	}

	l.journal = make([]undo, 0, 2)
	defer func() { l.journal = nil }()
	if err := fn(); err != nil {
		l.revert()
		return err
	}
	if err := l.persist(); err != nil {
		l.revert()
		return err
	}
	return nil
}

// persist writes the current value of every account and supply named in the
// journal. It MUST be called with l.mu held.
func (l *Ledger) persist() error {
	if l.store == nil || len(l.journal) == 0 {
		return nil
	}
	seen := make(map[account]struct{}, len(l.journal))
	assets := make(map[amm.AssetID]struct{})
	var balances []Balance
	var supplies []Supply
	for _, u := range l.journal {
		if _, ok := seen[u.key]; ok {
			continue
		}
		seen[u.key] = struct{}{}
		balances = append(balances, Balance{Owner: u.key.owner, Asset: u.key.asset, Amount: l.balances[u.key]})
		if _, ok := assets[u.key.asset]; !ok {
			assets[u.key.asset] = struct{}{}
			supplies = append(supplies, Supply{Asset: u.key.asset, Amount: l.supply[u.key.asset]})
		}
	}
	if err := l.store.PutBalances(balances, supplies); err != nil {
		return fmt.Errorf("persisting %d balances: %w", len(balances), err)
	}
	return nil
}
