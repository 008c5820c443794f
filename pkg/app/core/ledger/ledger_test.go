package ledger_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/spotdex/pkg/app/core"
	"github.com/uhyunpark/spotdex/pkg/app/core/asset"
	"github.com/uhyunpark/spotdex/pkg/app/core/ledger"
)

var (
	admin   = common.HexToAddress("0xAD00000000000000000000000000000000000000")
	alice   = common.HexToAddress("0xA11CE00000000000000000000000000000000000")
	bob     = common.HexToAddress("0xB0B0000000000000000000000000000000000000")
	custody = common.BytesToAddress([]byte("test-custody"))
	linkRef = common.HexToAddress("0x1100000000000000000000000000000000000000")
)

func newTestStore(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.NewStore(t.TempDir() + "/ledger.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// newTestLedger wires a registry with one hosted LINK token and a
// memory-only ledger behind it.
func newTestLedger(t *testing.T) (*ledger.Ledger, *asset.HostedToken) {
	t.Helper()
	reg := asset.NewRegistry(admin, "ETH")
	tok := asset.NewHostedToken(custody)
	if err := reg.Register(admin, "LINK", linkRef, tok); err != nil {
		t.Fatalf("register LINK: %v", err)
	}
	return ledger.NewLedger(reg, asset.NopRail{}, nil, nil), tok
}

func TestDepositPullsBeforeCredit(t *testing.T) {
	led, tok := newTestLedger(t)
	tok.Mint(alice, 100)

	// No allowance: the external pull fails and nothing is credited.
	err := led.Deposit(alice, "LINK", 40)
	if !errors.Is(err, core.ErrExternalTransfer) {
		t.Fatalf("deposit without allowance: err = %v, want ErrExternalTransfer", err)
	}
	if got := led.BalanceOf(alice, "LINK"); got != 0 {
		t.Errorf("balance credited after failed pull: %d", got)
	}

	tok.Approve(alice, 40)
	if err := led.Deposit(alice, "LINK", 40); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := led.BalanceOf(alice, "LINK"); got != 40 {
		t.Errorf("balance = %d, want 40", got)
	}
	if got := tok.BalanceOf(custody); got != 40 {
		t.Errorf("custody token balance = %d, want 40", got)
	}
}

func TestDepositValidation(t *testing.T) {
	led, _ := newTestLedger(t)

	tests := []struct {
		name   string
		symbol string
		amount int64
		want   error
	}{
		{"unregistered symbol", "DOGE", 10, core.ErrInvalidSymbol},
		{"zero amount", "LINK", 0, core.ErrInvalidAmount},
		{"negative amount", "LINK", -5, core.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := led.Deposit(alice, tt.symbol, tt.amount); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

// TestWithdrawDebitsBeforeTransfer checks the ordering guarantee: the
// internal balance is already reduced when the external payout runs.
func TestWithdrawDebitsBeforeTransfer(t *testing.T) {
	tok := asset.NewHostedToken(custody)
	tok.Mint(alice, 100)
	tok.Approve(alice, 100)

	probe := &probeToken{inner: tok}
	reg := asset.NewRegistry(admin, "ETH")
	if err := reg.Register(admin, "LINK", linkRef, probe); err != nil {
		t.Fatalf("register: %v", err)
	}
	led := ledger.NewLedger(reg, asset.NopRail{}, nil, nil)

	if err := led.Deposit(alice, "LINK", 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	seenDuringTransfer := int64(-1)
	probe.onTransfer = func() {
		seenDuringTransfer = led.BalanceOf(alice, "LINK")
	}

	if err := led.Withdraw(alice, "LINK", 100); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if seenDuringTransfer != 0 {
		t.Errorf("balance during external transfer = %d, want 0", seenDuringTransfer)
	}
	if got := tok.BalanceOf(alice); got != 100 {
		t.Errorf("token balance after withdraw = %d, want 100", got)
	}
}

func TestWithdrawInsufficient(t *testing.T) {
	led, tok := newTestLedger(t)
	tok.Mint(alice, 100)
	tok.Approve(alice, 100)
	if err := led.Deposit(alice, "LINK", 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	err := led.Withdraw(alice, "LINK", 101)
	if !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("overdrawn withdraw: err = %v, want ErrInsufficientBalance", err)
	}
	if got := led.BalanceOf(alice, "LINK"); got != 100 {
		t.Errorf("balance changed by failed withdraw: %d", got)
	}
}

// TestWithdrawRollsBackOnExternalFailure uses a token whose payout leg
// always fails: the debit must be rolled back.
func TestWithdrawRollsBackOnExternalFailure(t *testing.T) {
	reg := asset.NewRegistry(admin, "ETH")
	stuck := &stuckToken{balances: map[common.Address]int64{alice: 100}}
	if err := reg.Register(admin, "LINK", linkRef, stuck); err != nil {
		t.Fatalf("register: %v", err)
	}
	led := ledger.NewLedger(reg, asset.NopRail{}, nil, nil)

	if err := led.Deposit(alice, "LINK", 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	err := led.Withdraw(alice, "LINK", 60)
	if !errors.Is(err, core.ErrExternalTransfer) {
		t.Fatalf("withdraw: err = %v, want ErrExternalTransfer", err)
	}
	if got := led.BalanceOf(alice, "LINK"); got != 100 {
		t.Errorf("debit not rolled back: balance = %d, want 100", got)
	}
}

func TestNativeDepositWithdraw(t *testing.T) {
	led, _ := newTestLedger(t)

	if err := led.DepositNative(alice, 500); err != nil {
		t.Fatalf("deposit native: %v", err)
	}
	if got := led.BalanceOf(alice, "ETH"); got != 500 {
		t.Errorf("native balance = %d, want 500", got)
	}

	if err := led.WithdrawNative(alice, 200); err != nil {
		t.Fatalf("withdraw native: %v", err)
	}
	if got := led.BalanceOf(alice, "ETH"); got != 300 {
		t.Errorf("native balance = %d, want 300", got)
	}

	if err := led.WithdrawNative(alice, 301); !errors.Is(err, core.ErrInsufficientBalance) {
		t.Errorf("overdrawn native withdraw: err = %v, want ErrInsufficientBalance", err)
	}
}

func TestWithdrawNativeRollsBackOnRailFailure(t *testing.T) {
	reg := asset.NewRegistry(admin, "ETH")
	led := ledger.NewLedger(reg, failRail{}, nil, nil)

	if err := led.DepositNative(alice, 500); err != nil {
		t.Fatalf("deposit native: %v", err)
	}

	err := led.WithdrawNative(alice, 200)
	if !errors.Is(err, core.ErrExternalTransfer) {
		t.Fatalf("withdraw native: err = %v, want ErrExternalTransfer", err)
	}
	if got := led.BalanceOf(alice, "ETH"); got != 500 {
		t.Errorf("debit not rolled back: balance = %d, want 500", got)
	}
}

func TestSettleConservesSum(t *testing.T) {
	led, tok := newTestLedger(t)
	tok.Mint(alice, 100)
	tok.Approve(alice, 100)
	if err := led.Deposit(alice, "LINK", 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := led.Settle(alice, bob, "LINK", 30); err != nil {
		t.Fatalf("settle: %v", err)
	}
	a, b := led.BalanceOf(alice, "LINK"), led.BalanceOf(bob, "LINK")
	if a != 70 || b != 30 {
		t.Errorf("balances after settle = %d/%d, want 70/30", a, b)
	}
	if a+b != 100 {
		t.Errorf("settle changed the total supply: %d", a+b)
	}

	if err := led.Settle(alice, bob, "LINK", 71); !errors.Is(err, core.ErrInsufficientBalance) {
		t.Errorf("overdrawn settle: err = %v, want ErrInsufficientBalance", err)
	}
}

// TestAccountPersistence checks that balances written through one
// ledger are visible to a fresh ledger over the same store.
func TestAccountPersistence(t *testing.T) {
	store := newTestStore(t)
	reg := asset.NewRegistry(admin, "ETH")
	led := ledger.NewLedger(reg, asset.NopRail{}, store, nil)

	if err := led.DepositNative(alice, 777); err != nil {
		t.Fatalf("deposit native: %v", err)
	}

	led2 := ledger.NewLedger(reg, asset.NopRail{}, store, nil)
	if got := led2.BalanceOf(alice, "ETH"); got != 777 {
		t.Errorf("reloaded balance = %d, want 777", got)
	}
}

func TestTradeHistoryNewestFirst(t *testing.T) {
	store := newTestStore(t)
	reg := asset.NewRegistry(admin, "ETH")
	led := ledger.NewLedger(reg, asset.NopRail{}, store, nil)

	for i := 1; i <= 5; i++ {
		trade := &ledger.Trade{
			ID:        uint64(i),
			Symbol:    "LINK",
			Price:     int64(i),
			Qty:       10,
			Side:      "buy",
			Taker:     alice,
			Maker:     bob,
			Timestamp: int64(1000 + i),
		}
		if err := led.RecordTrade(trade); err != nil {
			t.Fatalf("record trade %d: %v", i, err)
		}
	}

	trades, err := led.RecentTrades("LINK", 3)
	if err != nil {
		t.Fatalf("recent trades: %v", err)
	}
	if len(trades) != 3 {
		t.Fatalf("got %d trades, want 3", len(trades))
	}
	for i, want := range []uint64{5, 4, 3} {
		if trades[i].ID != want {
			t.Errorf("trade %d: id = %d, want %d", i, trades[i].ID, want)
		}
	}

	// Other symbols are invisible.
	other, err := led.RecentTrades("DOGE", 10)
	if err != nil {
		t.Fatalf("recent trades: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("got %d trades for unknown symbol", len(other))
	}
}

// ---- test doubles ----

// stuckToken accepts pulls but refuses every payout.
type stuckToken struct {
	balances map[common.Address]int64
}

func (s *stuckToken) TransferFrom(owner common.Address, amount int64) error {
	if s.balances[owner] < amount {
		return fmt.Errorf("%w: balance too low", core.ErrExternalTransfer)
	}
	s.balances[owner] -= amount
	return nil
}

func (s *stuckToken) Transfer(common.Address, int64) error {
	return fmt.Errorf("%w: payout leg down", core.ErrExternalTransfer)
}

func (s *stuckToken) BalanceOf(owner common.Address) int64 { return s.balances[owner] }

// probeToken wraps a token and runs a callback before each payout.
type probeToken struct {
	inner      asset.Token
	onTransfer func()
}

func (p *probeToken) TransferFrom(owner common.Address, amount int64) error {
	return p.inner.TransferFrom(owner, amount)
}

func (p *probeToken) Transfer(to common.Address, amount int64) error {
	if p.onTransfer != nil {
		p.onTransfer()
	}
	return p.inner.Transfer(to, amount)
}

func (p *probeToken) BalanceOf(owner common.Address) int64 { return p.inner.BalanceOf(owner) }

// failRail refuses every native payout.
type failRail struct{}

func (failRail) Pay(common.Address, int64) error {
	return fmt.Errorf("%w: rail unavailable", core.ErrExternalTransfer)
}
