package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/spotdex/pkg/app/core"
	"github.com/uhyunpark/spotdex/pkg/app/core/asset"
)

// Account holds all symbol balances of one trader.
type Account struct {
	Address  common.Address
	Balances map[string]int64 // symbol -> amount, never negative
}

func NewAccount(addr common.Address) *Account {
	return &Account{
		Address:  addr,
		Balances: make(map[string]int64),
	}
}

// Ledger is the per-account, per-symbol balance store. It moves value
// in and out through the external asset collaborators and, during
// matching, between accounts via Settle.
//
// Invariants: balances never go negative; trading (Settle) conserves
// the per-symbol sum; only Deposit/Withdraw change it.
//
// The ledger carries no lock of its own: every mutating call is
// serialized by the owning spot.Exchange, which holds one mutex over
// the combined ledger + order-book state.
type Ledger struct {
	registry *asset.Registry
	rail     asset.NativeRail
	store    *Store // nil = in-memory only (tests, ephemeral devnet)
	log      *zap.SugaredLogger

	accounts map[common.Address]*Account // cache over the store
}

func NewLedger(registry *asset.Registry, rail asset.NativeRail, store *Store, logger *zap.SugaredLogger) *Ledger {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Ledger{
		registry: registry,
		rail:     rail,
		store:    store,
		log:      logger,
		accounts: make(map[common.Address]*Account),
	}
}

// account loads or creates the account record for addr.
func (l *Ledger) account(addr common.Address) *Account {
	acc, ok := l.accounts[addr]
	if ok {
		return acc
	}

	if l.store != nil {
		loaded, err := l.store.LoadAccount(addr)
		if err != nil {
			// Falling back to a fresh account can shadow a stored
			// balance; the operator has to hear about it.
			l.log.Warnw("account_load_failed", "addr", addr.Hex(), "err", err)
		} else if loaded != nil {
			l.accounts[addr] = loaded
			return loaded
		}
	}

	acc = NewAccount(addr)
	l.accounts[addr] = acc
	return acc
}

func (l *Ledger) persist(acc *Account) error {
	if l.store == nil {
		return nil
	}
	return l.store.SaveAccount(acc)
}

// Deposit pulls amount of symbol from the external collaborator on the
// account's behalf and credits the internal balance. The pull happens
// before the credit: a failed pull leaves no trace.
func (l *Ledger) Deposit(addr common.Address, symbol string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: deposit %d", core.ErrInvalidAmount, amount)
	}
	tok, ok := l.registry.Token(symbol)
	if !ok {
		return fmt.Errorf("%w: %q", core.ErrInvalidSymbol, symbol)
	}

	if err := tok.TransferFrom(addr, amount); err != nil {
		return fmt.Errorf("%w: deposit pull for %s: %v", core.ErrExternalTransfer, symbol, err)
	}

	acc := l.account(addr)
	acc.Balances[symbol] += amount
	return l.persist(acc)
}

// DepositNative credits native value attached to the call. No external
// pull is needed; the value already arrived with the request.
func (l *Ledger) DepositNative(addr common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: deposit %d", core.ErrInvalidAmount, amount)
	}

	acc := l.account(addr)
	acc.Balances[l.registry.NativeSymbol()] += amount
	return l.persist(acc)
}

// Withdraw debits the internal balance first, then instructs the
// external collaborator to pay the account. Debit-before-transfer is
// deliberate: a re-entrant caller observes its balance already reduced
// and cannot withdraw the same funds twice. A failed external transfer
// rolls the debit back, so the whole operation is all-or-nothing.
func (l *Ledger) Withdraw(addr common.Address, symbol string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: withdraw %d", core.ErrInvalidAmount, amount)
	}

	acc := l.account(addr)
	if acc.Balances[symbol] < amount {
		return fmt.Errorf("%w: have %d %s, need %d", core.ErrInsufficientBalance, acc.Balances[symbol], symbol, amount)
	}
	tok, ok := l.registry.Token(symbol)
	if !ok {
		return fmt.Errorf("%w: %q", core.ErrInvalidSymbol, symbol)
	}

	acc.Balances[symbol] -= amount

	if err := tok.Transfer(addr, amount); err != nil {
		acc.Balances[symbol] += amount // roll the debit back
		return fmt.Errorf("%w: withdraw payout for %s: %v", core.ErrExternalTransfer, symbol, err)
	}

	return l.persist(acc)
}

// WithdrawNative is Withdraw over the native-currency rail.
func (l *Ledger) WithdrawNative(addr common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: withdraw %d", core.ErrInvalidAmount, amount)
	}

	native := l.registry.NativeSymbol()
	acc := l.account(addr)
	if acc.Balances[native] < amount {
		return fmt.Errorf("%w: have %d %s, need %d", core.ErrInsufficientBalance, acc.Balances[native], native, amount)
	}

	acc.Balances[native] -= amount

	if err := l.rail.Pay(addr, amount); err != nil {
		acc.Balances[native] += amount
		return fmt.Errorf("%w: native payout: %v", core.ErrExternalTransfer, err)
	}

	return l.persist(acc)
}

// Settle moves amount of symbol from one account to another. Matching
// pre-validates both sides, but the balance check stays: settlement
// must never drive a balance negative.
func (l *Ledger) Settle(from, to common.Address, symbol string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: settle %d", core.ErrInvalidAmount, amount)
	}

	src := l.account(from)
	if src.Balances[symbol] < amount {
		return fmt.Errorf("%w: settle %d %s from %s, have %d",
			core.ErrInsufficientBalance, amount, symbol, from.Hex(), src.Balances[symbol])
	}
	dst := l.account(to)

	src.Balances[symbol] -= amount
	dst.Balances[symbol] += amount

	if err := l.persist(src); err != nil {
		return err
	}
	return l.persist(dst)
}

// BalanceOf is a pure query; unknown accounts and symbols read as zero.
func (l *Ledger) BalanceOf(addr common.Address, symbol string) int64 {
	return l.account(addr).Balances[symbol]
}

// RecordTrade appends a trade to the persistent history.
func (l *Ledger) RecordTrade(t *Trade) error {
	if l.store == nil {
		return nil
	}
	return l.store.SaveTrade(t)
}

// RecentTrades returns up to limit trades for symbol, newest first.
func (l *Ledger) RecentTrades(symbol string, limit int) ([]*Trade, error) {
	if l.store == nil {
		return nil, nil
	}
	return l.store.LoadRecentTrades(symbol, limit)
}
