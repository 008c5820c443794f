package api

// API request/response types for REST endpoints and WebSocket messages

// ==============================
// REST Request Types
// ==============================

// RegisterAssetRequest is the payload for POST /api/v1/assets.
// Caller must be the configured admin address.
type RegisterAssetRequest struct {
	Caller  string `json:"caller"`
	Symbol  string `json:"symbol"`
	Address string `json:"address"` // external token handle
}

// TransferRequest is the payload for deposits and withdrawals.
// An empty or native symbol addresses the native-currency rail.
type TransferRequest struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol,omitempty"`
	Amount  int64  `json:"amount"`
}

// LimitOrderRequest is the payload for POST /api/v1/orders
type LimitOrderRequest struct {
	Address string `json:"address"`
	Side    string `json:"side"` // "buy" or "sell"
	Symbol  string `json:"symbol"`
	Amount  int64  `json:"amount"`
	Price   int64  `json:"price"`
}

// MarketOrderRequest is the payload for POST /api/v1/orders/market
type MarketOrderRequest struct {
	Address string `json:"address"`
	Side    string `json:"side"`
	Symbol  string `json:"symbol"`
	Amount  int64  `json:"amount"`
}

// ==============================
// REST Response Types
// ==============================

// AssetInfo describes one registered tradable asset
type AssetInfo struct {
	Symbol  string `json:"symbol"`
	Address string `json:"address"`
}

// BalanceInfo is one (account, symbol) balance
type BalanceInfo struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Amount  int64  `json:"amount"`
}

// OrderInfo is one resting order as exposed in book snapshots
type OrderInfo struct {
	ID        uint64 `json:"id"`
	Trader    string `json:"trader"`
	Side      string `json:"side"`
	Symbol    string `json:"symbol"`
	Amount    int64  `json:"amount"` // remaining
	Price     int64  `json:"price"`
	CreatedAt int64  `json:"createdAt"` // Unix milliseconds
}

// OrderbookSnapshot is the ordered book for one (symbol, side)
type OrderbookSnapshot struct {
	Symbol    string      `json:"symbol"`
	Side      string      `json:"side"`
	Orders    []OrderInfo `json:"orders"` // book order: best price first
	Timestamp int64       `json:"timestamp"`
}

// TradeInfo is one historical trade
type TradeInfo struct {
	ID        uint64 `json:"id"`
	Symbol    string `json:"symbol"`
	Price     int64  `json:"price"`
	Qty       int64  `json:"qty"`
	Side      string `json:"side"` // taker side
	Taker     string `json:"taker"`
	Maker     string `json:"maker"`
	Timestamp int64  `json:"timestamp"`
}

// LimitOrderResponse is returned from limit order submission
type LimitOrderResponse struct {
	Status  string `json:"status"` // "accepted"
	OrderID uint64 `json:"orderId"`
}

// MarketOrderResponse is returned from market order submission
type MarketOrderResponse struct {
	Status          string `json:"status"` // "filled"
	RequestedAmount int64  `json:"requestedAmount"`
	TotalFilled     int64  `json:"totalFilled"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["fills:LINK", "orderbook:LINK"]
}

// FillUpdate is broadcast after every market order
type FillUpdate struct {
	Type            string `json:"type"` // "fill"
	Trader          string `json:"trader"`
	Side            string `json:"side"`
	Symbol          string `json:"symbol"`
	RequestedAmount int64  `json:"requestedAmount"`
	TotalFilled     int64  `json:"totalFilled"`
	Timestamp       int64  `json:"timestamp"`
}

// OrderbookUpdate is broadcast when a book changes
type OrderbookUpdate struct {
	Type      string      `json:"type"` // "orderbook"
	Symbol    string      `json:"symbol"`
	Bids      []OrderInfo `json:"bids"`
	Asks      []OrderInfo `json:"asks"`
	Timestamp int64       `json:"timestamp"`
}
