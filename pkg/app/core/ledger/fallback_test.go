package ledger

import (
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/uhyunpark/spotdex/pkg/app/core/asset"
)

// A corrupt stored record must not fail balance reads, but the
// fallback to a fresh account has to leave a log trace.
func TestAccountLoadFailureLogsAndFallsBack(t *testing.T) {
	store, err := NewStore(t.TempDir() + "/ledger.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	addr := common.HexToAddress("0xA11CE00000000000000000000000000000000000")
	if err := store.db.Set(accountKey(addr), []byte("{corrupt"), pebble.Sync); err != nil {
		t.Fatalf("seed corrupt record: %v", err)
	}

	obs, logs := observer.New(zap.WarnLevel)
	reg := asset.NewRegistry(common.HexToAddress("0xAD00000000000000000000000000000000000000"), "ETH")
	led := NewLedger(reg, asset.NopRail{}, store, zap.New(obs).Sugar())

	if got := led.BalanceOf(addr, "ETH"); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
	if n := logs.FilterMessage("account_load_failed").Len(); n != 1 {
		t.Errorf("got %d account_load_failed logs, want 1", n)
	}
}
