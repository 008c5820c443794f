package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/spotdex/pkg/app/core"
	"github.com/uhyunpark/spotdex/pkg/app/core/asset"
	"github.com/uhyunpark/spotdex/pkg/app/core/orderbook"
	"github.com/uhyunpark/spotdex/pkg/app/spot"
)

// TokenDialer resolves an external token handle into a Token
// capability. The node injects it: devnet uses hosted tokens, a real
// deployment would dial the on-chain contract.
type TokenDialer func(addr common.Address) asset.Token

// Server handles REST API and WebSocket connections
type Server struct {
	ex     *spot.Exchange
	router *mux.Router
	hub    *Hub
	tokens TokenDialer
	log    *zap.SugaredLogger
}

// NewServer creates a new API server
func NewServer(ex *spot.Exchange, tokens TokenDialer, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	s := &Server{
		ex:     ex,
		router: mux.NewRouter(),
		hub:    NewHub(logger),
		tokens: tokens,
		log:    logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Asset registry
	api.HandleFunc("/assets", s.handleRegisterAsset).Methods("POST")
	api.HandleFunc("/assets", s.handleListAssets).Methods("GET")

	// Funding
	api.HandleFunc("/deposits", s.handleDeposit).Methods("POST")
	api.HandleFunc("/withdrawals", s.handleWithdraw).Methods("POST")

	// Trading
	api.HandleFunc("/orders", s.handleLimitOrder).Methods("POST")
	api.HandleFunc("/orders/market", s.handleMarketOrder).Methods("POST")

	// Queries
	api.HandleFunc("/accounts/{address}/balances/{symbol}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/markets/{symbol}/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/markets/{symbol}/trades", s.handleGetTrades).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start starts the API server
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	handler := c.Handler(s.router)

	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, handler)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleRegisterAsset(w http.ResponseWriter, r *http.Request) {
	var req RegisterAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Caller) || !common.IsHexAddress(req.Address) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}

	tokenAddr := common.HexToAddress(req.Address)
	tok := s.tokens(tokenAddr)

	err := s.ex.RegisterAsset(common.HexToAddress(req.Caller), req.Symbol, tokenAddr, tok)
	if err != nil {
		respondCoreError(w, err)
		return
	}

	respondJSON(w, AssetInfo{Symbol: req.Symbol, Address: tokenAddr.Hex()})
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	regs := s.ex.Assets()
	response := make([]AssetInfo, len(regs))
	for i, reg := range regs {
		response[i] = AssetInfo{Symbol: reg.Symbol, Address: reg.Address.Hex()}
	}
	respondJSON(w, response)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Address) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}

	addr := common.HexToAddress(req.Address)

	var err error
	if req.Symbol == "" || req.Symbol == s.ex.NativeSymbol() {
		err = s.ex.DepositNative(addr, req.Amount)
	} else {
		err = s.ex.Deposit(addr, req.Symbol, req.Amount)
	}
	if err != nil {
		respondCoreError(w, err)
		return
	}

	respondJSON(w, BalanceInfo{
		Address: addr.Hex(),
		Symbol:  orSymbol(req.Symbol, s.ex.NativeSymbol()),
		Amount:  s.ex.BalanceOf(addr, orSymbol(req.Symbol, s.ex.NativeSymbol())),
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Address) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}

	addr := common.HexToAddress(req.Address)

	var err error
	if req.Symbol == "" || req.Symbol == s.ex.NativeSymbol() {
		err = s.ex.WithdrawNative(addr, req.Amount)
	} else {
		err = s.ex.Withdraw(addr, req.Symbol, req.Amount)
	}
	if err != nil {
		respondCoreError(w, err)
		return
	}

	respondJSON(w, BalanceInfo{
		Address: addr.Hex(),
		Symbol:  orSymbol(req.Symbol, s.ex.NativeSymbol()),
		Amount:  s.ex.BalanceOf(addr, orSymbol(req.Symbol, s.ex.NativeSymbol())),
	})
}

func (s *Server) handleLimitOrder(w http.ResponseWriter, r *http.Request) {
	var req LimitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Address) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid side", req.Side)
		return
	}

	id, err := s.ex.CreateLimitOrder(common.HexToAddress(req.Address), side, req.Symbol, req.Amount, req.Price)
	if err != nil {
		respondCoreError(w, err)
		return
	}

	s.broadcastOrderbook(req.Symbol)
	respondJSON(w, LimitOrderResponse{Status: "accepted", OrderID: id})
}

func (s *Server) handleMarketOrder(w http.ResponseWriter, r *http.Request) {
	var req MarketOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Address) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid side", req.Side)
		return
	}

	filled, err := s.ex.CreateMarketOrder(common.HexToAddress(req.Address), side, req.Symbol, req.Amount)
	if err != nil {
		respondCoreError(w, err)
		return
	}

	s.broadcastOrderbook(req.Symbol)
	respondJSON(w, MarketOrderResponse{
		Status:          "filled",
		RequestedAmount: req.Amount,
		TotalFilled:     filled,
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	addressStr := vars["address"]
	symbol := vars["symbol"]

	if !common.IsHexAddress(addressStr) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}

	addr := common.HexToAddress(addressStr)
	respondJSON(w, BalanceInfo{
		Address: addr.Hex(),
		Symbol:  symbol,
		Amount:  s.ex.BalanceOf(addr, symbol),
	})
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	symbol := vars["symbol"]

	side, ok := parseSide(r.URL.Query().Get("side"))
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid side", "use side=buy or side=sell")
		return
	}

	orders := s.ex.OrderBook(symbol, side)
	respondJSON(w, OrderbookSnapshot{
		Symbol:    symbol,
		Side:      side.String(),
		Orders:    toOrderInfos(orders),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	symbol := vars["symbol"]

	limit := 100
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	trades, err := s.ex.RecentTrades(symbol, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load trades", err.Error())
		return
	}

	response := make([]TradeInfo, len(trades))
	for i, t := range trades {
		response[i] = TradeInfo{
			ID:        t.ID,
			Symbol:    t.Symbol,
			Price:     t.Price,
			Qty:       t.Qty,
			Side:      t.Side,
			Taker:     t.Taker.Hex(),
			Maker:     t.Maker.Hex(),
			Timestamp: t.Timestamp,
		}
	}
	respondJSON(w, response)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods
// ==============================

// NotifyFill implements spot.FillNotifier by streaming the fill to
// subscribed WebSocket clients.
func (s *Server) NotifyFill(ev spot.FillEvent) {
	s.hub.BroadcastToChannel("fills:"+ev.Symbol, FillUpdate{
		Type:            "fill",
		Trader:          ev.Trader.Hex(),
		Side:            ev.Side,
		Symbol:          ev.Symbol,
		RequestedAmount: ev.RequestedAmount,
		TotalFilled:     ev.TotalFilled,
		Timestamp:       ev.Timestamp,
	})
}

// broadcastOrderbook pushes both sides of a book to subscribers. Runs
// in a goroutine: the engine releases its lock between the operation
// and the snapshot, the update only has to be eventually consistent.
func (s *Server) broadcastOrderbook(symbol string) {
	go func() {
		update := OrderbookUpdate{
			Type:      "orderbook",
			Symbol:    symbol,
			Bids:      toOrderInfos(s.ex.OrderBook(symbol, core.Buy)),
			Asks:      toOrderInfos(s.ex.OrderBook(symbol, core.Sell)),
			Timestamp: time.Now().UnixMilli(),
		}
		s.hub.BroadcastToChannel("orderbook:"+symbol, update)
	}()
}

// ==============================
// Helpers
// ==============================

func parseSide(s string) (core.Side, bool) {
	switch s {
	case "buy", "BUY":
		return core.Buy, true
	case "sell", "SELL":
		return core.Sell, true
	default:
		return core.Buy, false
	}
}

func orSymbol(symbol, native string) string {
	if symbol == "" {
		return native
	}
	return symbol
}

func toOrderInfos(orders []orderbook.Order) []OrderInfo {
	out := make([]OrderInfo, len(orders))
	for i, o := range orders {
		out[i] = OrderInfo{
			ID:        o.ID,
			Trader:    o.Trader.Hex(),
			Side:      o.Side.String(),
			Symbol:    o.Symbol,
			Amount:    o.Amount,
			Price:     o.Price,
			CreatedAt: o.CreatedAt,
		}
	}
	return out
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Message: detail})
}

// respondCoreError maps the engine's error taxonomy onto HTTP status
// codes.
func respondCoreError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "internal error"

	switch {
	case errors.Is(err, core.ErrUnauthorized):
		status, kind = http.StatusForbidden, "unauthorized"
	case errors.Is(err, core.ErrInvalidSymbol):
		status, kind = http.StatusBadRequest, "invalid symbol"
	case errors.Is(err, core.ErrInvalidAmount):
		status, kind = http.StatusBadRequest, "invalid amount"
	case errors.Is(err, core.ErrInsufficientBalance):
		status, kind = http.StatusUnprocessableEntity, "insufficient balance"
	case errors.Is(err, core.ErrExternalTransfer):
		status, kind = http.StatusBadGateway, "external transfer failed"
	}

	respondError(w, status, kind, err.Error())
}

var _ spot.FillNotifier = (*Server)(nil)
