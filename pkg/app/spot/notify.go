package spot

import "github.com/ethereum/go-ethereum/common"

// FillEvent reports the outcome of one market-order call: the
// cumulative quantity matched across the whole walk, not one event per
// iteration. Emitted on every CreateMarketOrder call, including a
// zero fill against an empty book.
type FillEvent struct {
	Trader          common.Address `json:"trader"`
	Side            string         `json:"side"`
	Symbol          string         `json:"symbol"`
	RequestedAmount int64          `json:"requestedAmount"`
	TotalFilled     int64          `json:"totalFilled"`
	Timestamp       int64          `json:"timestamp"` // Unix milliseconds
}

// FillNotifier receives fill events after the operation has committed
// and the engine lock has been released. Implementations may read
// engine state from the callback but should return promptly; slow
// delivery belongs on the implementation's own goroutine.
type FillNotifier interface {
	NotifyFill(FillEvent)
}

// MultiNotifier fans one event out to several notifiers.
type MultiNotifier []FillNotifier

func (m MultiNotifier) NotifyFill(ev FillEvent) {
	for _, n := range m {
		n.NotifyFill(ev)
	}
}
