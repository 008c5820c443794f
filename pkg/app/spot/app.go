// Package spot implements the matching engine: order validation
// against live balances, price-time order books, market-order walks
// and atomic settlement through the ledger.
package spot

import (
	"fmt"
	"math"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/spotdex/pkg/app/core"
	"github.com/uhyunpark/spotdex/pkg/app/core/asset"
	"github.com/uhyunpark/spotdex/pkg/app/core/ledger"
	"github.com/uhyunpark/spotdex/pkg/app/core/orderbook"
	"github.com/uhyunpark/spotdex/pkg/sequence"
	"github.com/uhyunpark/spotdex/pkg/util"
)

// Exchange funnels every state-mutating operation through one mutex
// over the combined ledger + order-book state. Each public call either
// fully applies or leaves no trace; no intermediate state is ever
// observable by another operation. There is no internal parallelism in
// the matching walk.
type Exchange struct {
	mu sync.Mutex

	registry *asset.Registry
	ledger   *ledger.Ledger
	books    map[string]*sideBooks

	orderSeq *sequence.Sequencer
	tradeSeq *sequence.Sequencer
	clock    util.Clock
	log      *zap.SugaredLogger
	notifier FillNotifier
}

type sideBooks struct {
	buys  *orderbook.Book
	sells *orderbook.Book
}

func New(registry *asset.Registry, led *ledger.Ledger, clock util.Clock, logger *zap.SugaredLogger) *Exchange {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Exchange{
		registry: registry,
		ledger:   led,
		books:    make(map[string]*sideBooks),
		orderSeq: sequence.New(0),
		tradeSeq: sequence.New(0),
		clock:    clock,
		log:      logger,
	}
}

// SetNotifier installs the fill notifier (WebSocket hub, Kafka
// producer, or a MultiNotifier over both).
func (e *Exchange) SetNotifier(n FillNotifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifier = n
}

func (e *Exchange) book(symbol string, side core.Side) *orderbook.Book {
	sb, ok := e.books[symbol]
	if !ok {
		sb = &sideBooks{buys: orderbook.NewBook(), sells: orderbook.NewBook()}
		e.books[symbol] = sb
	}
	if side == core.Buy {
		return sb.buys
	}
	return sb.sells
}

// RegisterAsset registers symbol -> external token. Admin only.
func (e *Exchange) RegisterAsset(caller common.Address, symbol string, addr common.Address, tok asset.Token) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.registry.Register(caller, symbol, addr, tok); err != nil {
		return err
	}
	e.log.Infow("asset_registered", "symbol", symbol, "address", addr.Hex())
	return nil
}

func (e *Exchange) Deposit(trader common.Address, symbol string, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Deposit(trader, symbol, amount)
}

func (e *Exchange) DepositNative(trader common.Address, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.DepositNative(trader, amount)
}

func (e *Exchange) Withdraw(trader common.Address, symbol string, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Withdraw(trader, symbol, amount)
}

func (e *Exchange) WithdrawNative(trader common.Address, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.WithdrawNative(trader, amount)
}

func (e *Exchange) BalanceOf(trader common.Address, symbol string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.BalanceOf(trader, symbol)
}

// CreateLimitOrder validates and rests a limit order. The balance
// check is a point-in-time gate, not a reservation: nothing is
// escrowed, funds may be spent elsewhere before the order fills.
func (e *Exchange) CreateLimitOrder(trader common.Address, side core.Side, symbol string, amount, price int64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.registry.IsRegistered(symbol) {
		return 0, fmt.Errorf("%w: %q", core.ErrInvalidSymbol, symbol)
	}
	if amount <= 0 || price <= 0 {
		return 0, fmt.Errorf("%w: amount=%d price=%d", core.ErrInvalidAmount, amount, price)
	}
	// The order's full value must stay representable: resting orders
	// settle at qty*price later, on either side.
	cost, ok := fillValue(amount, price)
	if !ok {
		return 0, fmt.Errorf("%w: amount=%d price=%d overflows", core.ErrInvalidAmount, amount, price)
	}

	native := e.registry.NativeSymbol()
	switch side {
	case core.Buy:
		if have := e.ledger.BalanceOf(trader, native); have < cost {
			return 0, fmt.Errorf("%w: have %d %s, need %d", core.ErrInsufficientBalance, have, native, cost)
		}
	case core.Sell:
		if have := e.ledger.BalanceOf(trader, symbol); have < amount {
			return 0, fmt.Errorf("%w: have %d %s, need %d", core.ErrInsufficientBalance, have, symbol, amount)
		}
	}

	o := &orderbook.Order{
		ID:        e.orderSeq.Next(),
		Trader:    trader,
		Side:      side,
		Symbol:    symbol,
		Amount:    amount,
		Price:     price,
		CreatedAt: e.clock.Now().UnixMilli(),
	}
	e.book(symbol, side).Insert(o)

	e.log.Infow("limit_order_created",
		"id", o.ID, "trader", trader.Hex(), "side", side.String(),
		"symbol", symbol, "amount", amount, "price", price)
	return o.ID, nil
}

// fillPlan is one planned match against a resting maker order.
type fillPlan struct {
	maker *orderbook.Order
	qty   int64
	value int64 // qty * maker price, in quote units
}

// CreateMarketOrder walks the opposing book and settles fills
// atomically. The walk is planned against a read-only view first; only
// a fully affordable plan is committed, so a mid-walk shortfall aborts
// the call with no partial state. Unmatched remainder is discarded,
// never queued. An empty opposing book yields totalFilled = 0, not an
// error.
func (e *Exchange) CreateMarketOrder(trader common.Address, side core.Side, symbol string, amount int64) (int64, error) {
	totalFilled, notifier, err := e.executeMarketOrder(trader, side, symbol, amount)
	if err != nil {
		return totalFilled, err
	}

	// The event is delivered after the engine lock is released: a slow
	// notifier cannot stall other operations, and implementations may
	// read engine state from the callback.
	if notifier != nil {
		notifier.NotifyFill(FillEvent{
			Trader:          trader,
			Side:            side.String(),
			Symbol:          symbol,
			RequestedAmount: amount,
			TotalFilled:     totalFilled,
			Timestamp:       e.clock.Now().UnixMilli(),
		})
	}
	e.log.Infow("market_order_filled",
		"trader", trader.Hex(), "side", side.String(), "symbol", symbol,
		"requested", amount, "filled", totalFilled)

	return totalFilled, nil
}

// executeMarketOrder runs the validated plan/commit walk under the
// engine lock and returns the notifier installed at commit time.
func (e *Exchange) executeMarketOrder(trader common.Address, side core.Side, symbol string, amount int64) (int64, FillNotifier, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.registry.IsRegistered(symbol) {
		return 0, nil, fmt.Errorf("%w: %q", core.ErrInvalidSymbol, symbol)
	}
	if amount <= 0 {
		return 0, nil, fmt.Errorf("%w: amount=%d", core.ErrInvalidAmount, amount)
	}

	native := e.registry.NativeSymbol()

	// A sell taker must hold the full requested quantity up front;
	// price never changes how much of the asset leaves the seller.
	if side == core.Sell {
		if have := e.ledger.BalanceOf(trader, symbol); have < amount {
			return 0, nil, fmt.Errorf("%w: have %d %s, need %d", core.ErrInsufficientBalance, have, symbol, amount)
		}
	}

	opp := e.book(symbol, side.Opposite())

	plans, err := e.planWalk(trader, side, symbol, native, amount, opp)
	if err != nil {
		return 0, nil, err
	}

	totalFilled, err := e.commitWalk(trader, side, symbol, native, plans, opp)
	if err != nil {
		return totalFilled, nil, err
	}
	return totalFilled, e.notifier, nil
}

// planWalk simulates the walk over virtual balances. Affordability is
// checked incrementally, fill by fill: a buy taker that cannot pay for
// the quantity it would actually match fails here, before any book or
// ledger mutation. Maker balances are validated the same way — no
// escrow exists at limit-order creation, so a resting order's funds
// must be re-checked at match time.
func (e *Exchange) planWalk(trader common.Address, side core.Side, symbol, native string, amount int64, opp *orderbook.Book) ([]fillPlan, error) {
	virt := newVirtualBalances(e.ledger)
	remaining := amount
	var plans []fillPlan

	for i := 0; i < opp.Len() && remaining > 0; i++ {
		maker := opp.At(i)
		tradable := min(remaining, maker.Amount)
		value, ok := fillValue(tradable, maker.Price)
		if !ok {
			// Unreachable for orders admitted through the limit gate;
			// kept so an overflowing fill can never reach commit.
			return nil, fmt.Errorf("%w: %d at price %d overflows", core.ErrInvalidAmount, tradable, maker.Price)
		}

		if side == core.Buy {
			// quote: taker -> maker, asset: maker -> taker
			if !virt.move(trader, maker.Trader, native, value) {
				return nil, fmt.Errorf("%w: cannot afford %d %s at price %d",
					core.ErrInsufficientBalance, tradable, symbol, maker.Price)
			}
			if !virt.move(maker.Trader, trader, symbol, tradable) {
				return nil, fmt.Errorf("%w: maker %d cannot deliver %d %s",
					core.ErrInsufficientBalance, maker.ID, tradable, symbol)
			}
		} else {
			if !virt.move(trader, maker.Trader, symbol, tradable) {
				return nil, fmt.Errorf("%w: cannot deliver %d %s",
					core.ErrInsufficientBalance, tradable, symbol)
			}
			if !virt.move(maker.Trader, trader, native, value) {
				return nil, fmt.Errorf("%w: maker %d cannot pay %d %s",
					core.ErrInsufficientBalance, maker.ID, value, native)
			}
		}

		plans = append(plans, fillPlan{maker: maker, qty: tradable, value: value})
		remaining -= tradable
	}

	return plans, nil
}

// commitWalk applies a validated plan: settle both legs of every fill,
// decrement maker amounts in place, prune filled makers, record trades.
func (e *Exchange) commitWalk(trader common.Address, side core.Side, symbol, native string, plans []fillPlan, opp *orderbook.Book) (int64, error) {
	now := e.clock.Now().UnixMilli()
	var totalFilled int64

	for _, p := range plans {
		var err error
		if side == core.Buy {
			if err = e.ledger.Settle(trader, p.maker.Trader, native, p.value); err == nil {
				err = e.ledger.Settle(p.maker.Trader, trader, symbol, p.qty)
			}
		} else {
			if err = e.ledger.Settle(trader, p.maker.Trader, symbol, p.qty); err == nil {
				err = e.ledger.Settle(p.maker.Trader, trader, native, p.value)
			}
		}
		if err != nil {
			// Unreachable for a validated plan; the check in Settle is
			// the last line of defense.
			return totalFilled, err
		}

		p.maker.Amount -= p.qty
		totalFilled += p.qty

		t := &ledger.Trade{
			ID:           e.tradeSeq.Next(),
			Symbol:       symbol,
			Price:        p.maker.Price,
			Qty:          p.qty,
			Side:         side.String(),
			MakerOrderID: p.maker.ID,
			Taker:        trader,
			Maker:        p.maker.Trader,
			Timestamp:    now,
		}
		if err := e.ledger.RecordTrade(t); err != nil {
			e.log.Warnw("trade_record_failed", "trade", t.ID, "err", err)
		}
	}

	opp.PruneZero()
	return totalFilled, nil
}

// OrderBook returns an ordered snapshot of the (symbol, side) book.
func (e *Exchange) OrderBook(symbol string, side core.Side) []orderbook.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book(symbol, side).Snapshot()
}

// RecentTrades returns up to limit trades for symbol, newest first.
func (e *Exchange) RecentTrades(symbol string, limit int) ([]*ledger.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.RecentTrades(symbol, limit)
}

// Assets lists the current registrations.
func (e *Exchange) Assets() []asset.Registration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.List()
}

// IsRegistered reports whether symbol is a registered tradable asset.
func (e *Exchange) IsRegistered(symbol string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.IsRegistered(symbol)
}

// NativeSymbol is the reserved quote-asset symbol.
func (e *Exchange) NativeSymbol() string {
	return e.registry.NativeSymbol()
}

// virtualBalances overlays pending deltas on the ledger so a walk can
// be validated without mutating anything.
type virtualBalances struct {
	ledger *ledger.Ledger
	deltas map[common.Address]map[string]int64
}

func newVirtualBalances(l *ledger.Ledger) *virtualBalances {
	return &virtualBalances{ledger: l, deltas: make(map[common.Address]map[string]int64)}
}

func (v *virtualBalances) balance(addr common.Address, symbol string) int64 {
	return v.ledger.BalanceOf(addr, symbol) + v.deltas[addr][symbol]
}

func (v *virtualBalances) adjust(addr common.Address, symbol string, delta int64) {
	m, ok := v.deltas[addr]
	if !ok {
		m = make(map[string]int64)
		v.deltas[addr] = m
	}
	m[symbol] += delta
}

// move debits from and credits to; reports false if from lacks funds.
func (v *virtualBalances) move(from, to common.Address, symbol string, amount int64) bool {
	if v.balance(from, symbol) < amount {
		return false
	}
	v.adjust(from, symbol, -amount)
	v.adjust(to, symbol, amount)
	return true
}

func min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// fillValue returns qty * price, reporting false when the product does
// not fit in int64. Callers guarantee qty > 0 and price > 0.
func fillValue(qty, price int64) (int64, bool) {
	if qty > math.MaxInt64/price {
		return 0, false
	}
	return qty * price, true
}
