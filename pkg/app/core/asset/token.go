package asset

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/spotdex/pkg/app/core"
)

// Token is the external asset collaborator. The exchange only ever
// touches tokens through this capability: it pulls deposits from the
// owner's pre-approved allowance and pushes withdrawals back out.
// Implementations decide what "external" means (an on-chain contract,
// a remote custodian, or the in-process HostedToken for devnet).
type Token interface {
	// TransferFrom moves amount from owner into exchange custody.
	// The owner must have approved at least amount beforehand.
	TransferFrom(owner common.Address, amount int64) error

	// Transfer moves amount from exchange custody back to owner.
	Transfer(to common.Address, amount int64) error

	// BalanceOf reports the owner's balance held at the collaborator.
	BalanceOf(owner common.Address) int64
}

// NativeRail pays native-currency value out of exchange custody.
// Deposits of native value carry the amount with the call itself, so
// the rail is only crossed on withdrawal.
type NativeRail interface {
	Pay(to common.Address, amount int64) error
}

// NopRail accepts every payout. Used for devnet, where the native rail
// has no external counterpart.
type NopRail struct{}

func (NopRail) Pay(common.Address, int64) error { return nil }

// HostedToken is an in-process Token with ERC-20 style balances and
// allowances. It backs devnet assets and deterministic tests; the
// failure paths (missing allowance, missing balance) behave exactly
// like a reverting external transfer.
type HostedToken struct {
	mu         sync.Mutex
	exchange   common.Address // custody account
	balances   map[common.Address]int64
	allowances map[common.Address]int64 // owner -> amount approved for the exchange
}

func NewHostedToken(exchange common.Address) *HostedToken {
	return &HostedToken{
		exchange:   exchange,
		balances:   make(map[common.Address]int64),
		allowances: make(map[common.Address]int64),
	}
}

// Mint credits freshly created units to owner. Devnet faucet.
func (t *HostedToken) Mint(owner common.Address, amount int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[owner] += amount
}

// Approve authorizes the exchange to pull up to amount from owner.
func (t *HostedToken) Approve(owner common.Address, amount int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowances[owner] = amount
}

func (t *HostedToken) TransferFrom(owner common.Address, amount int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.allowances[owner] < amount {
		return fmt.Errorf("%w: allowance %d < %d", core.ErrExternalTransfer, t.allowances[owner], amount)
	}
	if t.balances[owner] < amount {
		return fmt.Errorf("%w: balance %d < %d", core.ErrExternalTransfer, t.balances[owner], amount)
	}

	t.allowances[owner] -= amount
	t.balances[owner] -= amount
	t.balances[t.exchange] += amount
	return nil
}

func (t *HostedToken) Transfer(to common.Address, amount int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.balances[t.exchange] < amount {
		return fmt.Errorf("%w: custody balance %d < %d", core.ErrExternalTransfer, t.balances[t.exchange], amount)
	}

	t.balances[t.exchange] -= amount
	t.balances[to] += amount
	return nil
}

func (t *HostedToken) BalanceOf(owner common.Address) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balances[owner]
}
