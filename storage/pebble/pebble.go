// Package pebble persists pools and ledger balances in a cockroachdb/pebble
// key-value store.
package pebble

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/ethereum/go-ethereum/common"
)

var (
	poolPrefix    = []byte("pool/")
	balancePrefix = []byte("balance/")
	supplyPrefix  = []byte("supply/")
	indexKey      = []byte("meta/pool-index")

	ErrTxInProgress = errors.New("batch already open")
	ErrNoTx         = errors.New("no batch open")
)

// Config tunes the underlying database.
type Config struct {
	Sync      bool  `yaml:"sync"`
	CacheSize int64 `yaml:"cache_size"`
	// InMemory backs the store with a memory filesystem. Used by tests and dev mode.
	InMemory bool `yaml:"in_memory"`
}

func NewDefaultConfig() Config {
	return Config{
		Sync:      true,
		CacheSize: 64 << 20,
	}
}

// Store implements poolregistry.Store and ledger.Store over one database.
// Each pool is a JSON record under "pool/" followed by its canonical id; an
// index record lists every id. Balances are 8-byte big-endian amounts under
// "balance/" + owner + asset, supplies under "supply/" + asset.
//
// Between Begin and Prepare every write of both stores lands in one indexed
// batch, so a pool's reserves and the balances behind them reach disk
// together. Outside a batch each write commits on its own.
type Store struct {
	mu    sync.Mutex
	db    *pebble.DB
	write *pebble.WriteOptions

	// batch is nil outside a transaction.
	batch *pebble.Batch
}

// New opens (or creates) the database in dir.
func New(dir string, cfg Config) (*Store, error) {
	cache := pebble.NewCache(cfg.CacheSize)
	defer cache.Unref()

	opts := &pebble.Options{Cache: cache}
	if cfg.InMemory {
		opts.FS = vfs.NewMem()
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("opening pebble at %q: %w", dir, err)
	}
	write := pebble.NoSync
	if cfg.Sync {
		write = pebble.Sync
	}
	return &Store{db: db, write: write}, nil
}

// Close discards an open batch and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batch != nil {
		_ = s.batch.Close()
		s.batch = nil
	}
	return s.db.Close()
}

func poolKey(id amm.PoolID) []byte {
	key := make([]byte, 0, len(poolPrefix)+65)
	key = append(key, poolPrefix...)
	key = append(key, id.Asset0.Bytes()...)
	key = append(key, id.Asset1.Bytes()...)
	if id.Stable {
		return append(key, 1)
	}
	return append(key, 0)
}

func balanceKey(owner amm.Identity, asset amm.AssetID) []byte {
	key := make([]byte, 0, len(balancePrefix)+2*common.HashLength)
	key = append(key, balancePrefix...)
	key = append(key, owner.Bytes()...)
	return append(key, asset.Bytes()...)
}

func supplyKey(asset amm.AssetID) []byte {
	key := make([]byte, 0, len(supplyPrefix)+common.HashLength)
	key = append(key, supplyPrefix...)
	return append(key, asset.Bytes()...)
}

// prefixEnd returns the smallest key greater than every key starting with prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// reader MUST be called with s.mu held. Reads see the open batch.
func (s *Store) reader() pebble.Reader {
	if s.batch != nil {
		return s.batch
	}
	return s.db
}

func (s *Store) get(key []byte, v any) (bool, error) {
	data, closer, err := s.reader().Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decoding %q: %w", key, err)
	}
	return true, nil
}

func (s *Store) index() ([]amm.PoolID, error) {
	var ids []amm.PoolID
	if _, err := s.get(indexKey, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// update runs fn against the open batch, or against a fresh batch that is
// committed right away when none is open. It MUST be called with s.mu held.
func (s *Store) update(fn func(b *pebble.Batch) error) error {
	if s.batch != nil {
		return fn(s.batch)
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := fn(b); err != nil {
		return err
	}
	return b.Commit(s.write)
}

// All loads every pool listed in the index, ordered by id.
func (s *Store) All() ([]amm.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.index()
	if err != nil {
		return nil, err
	}
	pools := make([]amm.Pool, 0, len(ids))
	for _, id := range ids {
		var p amm.Pool
		found, err := s.get(poolKey(id), &p)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("index lists missing pool %s", id)
		}
		pools = append(pools, p)
	}
	amm.SortPools(pools)
	return pools, nil
}

// Put writes pools and the updated index in a single batch.
func (s *Store) Put(pools ...amm.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.index()
	if err != nil {
		return err
	}
	known := make(map[amm.PoolID]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}

	return s.update(func(b *pebble.Batch) error {
		for _, p := range pools {
			data, err := json.Marshal(p)
			if err != nil {
				return err
			}
			if err := b.Set(poolKey(p.ID), data, nil); err != nil {
				return err
			}
			if _, ok := known[p.ID]; !ok {
				known[p.ID] = struct{}{}
				ids = append(ids, p.ID)
			}
		}

		amm.SortPoolIDs(ids)
		data, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		return b.Set(indexKey, data, nil)
	})
}

// Balances loads every persisted balance and supply.
func (s *Store) Balances() ([]ledger.Balance, []ledger.Supply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var balances []ledger.Balance
	err := s.scan(balancePrefix, func(key, value []byte) error {
		if len(key) != 2*common.HashLength {
			return fmt.Errorf("malformed balance key %x", key)
		}
		balances = append(balances, ledger.Balance{
			Owner:  common.BytesToHash(key[:common.HashLength]),
			Asset:  common.BytesToHash(key[common.HashLength:]),
			Amount: binary.BigEndian.Uint64(value),
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var supplies []ledger.Supply
	err = s.scan(supplyPrefix, func(key, value []byte) error {
		if len(key) != common.HashLength {
			return fmt.Errorf("malformed supply key %x", key)
		}
		supplies = append(supplies, ledger.Supply{
			Asset:  common.BytesToHash(key),
			Amount: binary.BigEndian.Uint64(value),
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return balances, supplies, nil
}

// scan calls fn with the key suffix and value of every record under prefix.
// It MUST be called with s.mu held.
func (s *Store) scan(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.reader().NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return err
	}
	for iter.First(); iter.Valid(); iter.Next() {
		value := iter.Value()
		if len(value) != 8 {
			_ = iter.Close()
			return fmt.Errorf("malformed amount under %x", iter.Key())
		}
		if err := fn(iter.Key()[len(prefix):], value); err != nil {
			_ = iter.Close()
			return err
		}
	}
	return iter.Close()
}

func putAmount(b *pebble.Batch, key []byte, amount uint64) error {
	if amount == 0 {
		return b.Delete(key, nil)
	}
	var value [8]byte
	binary.BigEndian.PutUint64(value[:], amount)
	return b.Set(key, value[:], nil)
}

// PutBalances writes balances and supplies in a single batch.
func (s *Store) PutBalances(balances []ledger.Balance, supplies []ledger.Supply) error {
	if len(balances) == 0 && len(supplies) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(func(b *pebble.Batch) error {
		for _, bal := range balances {
			if err := putAmount(b, balanceKey(bal.Owner, bal.Asset), bal.Amount); err != nil {
				return err
			}
		}
		for _, sp := range supplies {
			if err := putAmount(b, supplyKey(sp.Asset), sp.Amount); err != nil {
				return err
			}
		}
		return nil
	})
}

// Begin opens the batch every later write lands in.
func (s *Store) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batch != nil {
		return ErrTxInProgress
	}
	s.batch = s.db.NewIndexedBatch()
	return nil
}

// Prepare writes the open batch to disk. List the store after every journal
// that writes into it, so their Prepare runs first.
func (s *Store) Prepare() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batch == nil {
		return ErrNoTx
	}
	b := s.batch
	s.batch = nil
	defer b.Close()
	if b.Empty() {
		return nil
	}
	return b.Commit(s.write)
}

// Commit closes the transaction. The batch was already written by Prepare;
// without Prepare it is written here.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batch == nil {
		return nil
	}
	b := s.batch
	s.batch = nil
	defer b.Close()
	if b.Empty() {
		return nil
	}
	return b.Commit(s.write)
}

// Rollback discards the open batch.
func (s *Store) Rollback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batch != nil {
		_ = s.batch.Close()
		s.batch = nil
	}
}
