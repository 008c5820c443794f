package asset_test

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/spotdex/pkg/app/core"
	"github.com/uhyunpark/spotdex/pkg/app/core/asset"
)

var (
	admin   = common.HexToAddress("0xAD00000000000000000000000000000000000000")
	mallory = common.HexToAddress("0xBAD0000000000000000000000000000000000000")
	tokenA  = common.HexToAddress("0x1100000000000000000000000000000000000000")
	tokenB  = common.HexToAddress("0x2200000000000000000000000000000000000000")
	custody = common.BytesToAddress([]byte("test-custody"))
)

func TestRegisterAdminOnly(t *testing.T) {
	reg := asset.NewRegistry(admin, "ETH")
	tok := asset.NewHostedToken(custody)

	if reg.Admin() != admin {
		t.Fatalf("admin = %s, want %s", reg.Admin().Hex(), admin.Hex())
	}

	err := reg.Register(mallory, "LINK", tokenA, tok)
	if !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("non-admin register: err = %v, want ErrUnauthorized", err)
	}
	if reg.IsRegistered("LINK") {
		t.Error("symbol registered despite unauthorized caller")
	}

	if err := reg.Register(admin, "LINK", tokenA, tok); err != nil {
		t.Fatalf("admin register failed: %v", err)
	}
	if !reg.IsRegistered("LINK") {
		t.Error("symbol not registered after admin call")
	}
}

func TestRegisterOverwriteIsIdempotent(t *testing.T) {
	reg := asset.NewRegistry(admin, "ETH")
	first := asset.NewHostedToken(custody)
	second := asset.NewHostedToken(custody)

	if err := reg.Register(admin, "LINK", tokenA, first); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(admin, "LINK", tokenB, second); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	got, ok := reg.Token("LINK")
	if !ok || got != asset.Token(second) {
		t.Error("re-registration did not overwrite the token handle")
	}
}

func TestRegisterRejectsNativeSymbol(t *testing.T) {
	reg := asset.NewRegistry(admin, "ETH")
	tok := asset.NewHostedToken(custody)

	err := reg.Register(admin, "ETH", tokenA, tok)
	if !errors.Is(err, core.ErrInvalidSymbol) {
		t.Fatalf("registering native symbol: err = %v, want ErrInvalidSymbol", err)
	}
}

func TestHostedTokenAllowance(t *testing.T) {
	owner := common.HexToAddress("0xCC00000000000000000000000000000000000000")
	tok := asset.NewHostedToken(custody)
	tok.Mint(owner, 100)

	// No allowance: pull must fail and move nothing.
	if err := tok.TransferFrom(owner, 50); !errors.Is(err, core.ErrExternalTransfer) {
		t.Fatalf("pull without allowance: err = %v, want ErrExternalTransfer", err)
	}
	if got := tok.BalanceOf(owner); got != 100 {
		t.Errorf("owner balance after failed pull = %d, want 100", got)
	}

	tok.Approve(owner, 50)
	if err := tok.TransferFrom(owner, 50); err != nil {
		t.Fatalf("approved pull failed: %v", err)
	}
	if got := tok.BalanceOf(owner); got != 50 {
		t.Errorf("owner balance = %d, want 50", got)
	}
	if got := tok.BalanceOf(custody); got != 50 {
		t.Errorf("custody balance = %d, want 50", got)
	}

	// Allowance is consumed.
	if err := tok.TransferFrom(owner, 1); !errors.Is(err, core.ErrExternalTransfer) {
		t.Fatalf("pull past allowance: err = %v, want ErrExternalTransfer", err)
	}

	if err := tok.Transfer(owner, 50); err != nil {
		t.Fatalf("push back failed: %v", err)
	}
	if got := tok.BalanceOf(owner); got != 100 {
		t.Errorf("owner balance after push = %d, want 100", got)
	}
}
