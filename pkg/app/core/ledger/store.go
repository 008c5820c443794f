package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
)

// Trade is one executed match between a taker and a resting maker
// order, kept as persistent history.
type Trade struct {
	ID           uint64         `json:"id"`
	Symbol       string         `json:"symbol"`
	Price        int64          `json:"price"`
	Qty          int64          `json:"qty"`
	Side         string         `json:"side"` // taker side
	MakerOrderID uint64         `json:"makerOrderId"`
	Taker        common.Address `json:"taker"`
	Maker        common.Address `json:"maker"`
	Timestamp    int64          `json:"timestamp"` // Unix milliseconds
}

// Store provides Pebble-based persistence for accounts and trades.
// All access is serialized by the owning Ledger's caller.
type Store struct {
	db *pebble.DB
}

// NewStore opens a Pebble database at the given path
func NewStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                 pebble.NewCache(64 << 20),
		MemTableSize:          32 << 20,
		L0CompactionThreshold: 2,
		L0StopWritesThreshold: 12,
		MaxOpenFiles:          1000,
		BytesPerSync:          512 << 10,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// keys: a:<20-byte-address>, t:<symbol>:<8-byte-ts>:<8-byte-id>
func accountKey(addr common.Address) []byte {
	return append([]byte("a:"), addr.Bytes()...)
}

func tradePrefix(symbol string) []byte {
	return []byte("t:" + symbol + ":")
}

func tradeKey(t *Trade) []byte {
	key := tradePrefix(t.Symbol)
	key = appendUint64(key, uint64(t.Timestamp))
	return appendUint64(key, t.ID)
}

func appendUint64(b []byte, v uint64) []byte {
	return append(b,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// keyUpperBound returns the smallest key greater than every key with
// the given prefix.
func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff
}

// SaveAccount persists an account record
func (s *Store) SaveAccount(acc *Account) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	if err := s.db.Set(accountKey(acc.Address), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	return nil
}

// LoadAccount loads an account record
// Returns nil if the account doesn't exist
func (s *Store) LoadAccount(addr common.Address) (*Account, error) {
	data, closer, err := s.db.Get(accountKey(addr))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	defer closer.Close()

	var acc Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	// JSON unmarshal may leave the map nil
	if acc.Balances == nil {
		acc.Balances = make(map[string]int64)
	}

	return &acc, nil
}

// SaveTrade appends a trade to history. NoSync: trade history is not
// part of the ledger's correctness, losing the tail on crash is fine.
func (s *Store) SaveTrade(t *Trade) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal trade: %w", err)
	}

	if err := s.db.Set(tradeKey(t), data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}

	return nil
}

// LoadRecentTrades loads the most recent N trades for a symbol,
// newest first.
func (s *Store) LoadRecentTrades(symbol string, limit int) ([]*Trade, error) {
	prefix := tradePrefix(symbol)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var trades []*Trade
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var t Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			continue // skip invalid entries
		}
		trades = append(trades, &t)
	}

	return trades, nil
}
