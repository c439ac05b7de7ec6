// Package binancetest serves the part of the Binance spot REST API used by the testnet
// connector. Market orders fill at once at the configured price; limit orders rest until
// they are canceled.
package binancetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Binance API error codes returned by the server.
const (
	CodeUnknownOrder        int64 = -2011
	CodeInsufficientBalance int64 = -2010
	CodeIllegalParameters   int64 = -1102
	CodeTooManyRequests     int64 = -1003
)

// Balance is the holding of one asset.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

// OrderStatus is the Binance order status.
type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "NEW"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// Order is an order received by the server.
type Order struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          string
	Type          string
	Quantity      float64
	Price         float64
	Status        OrderStatus
	ExecutedQty   float64
	QuoteQty      float64
	Commission    float64
}

type apiError struct {
	Code    int64  `json:"code"`
	Message string `json:"msg"`
}

// Config seeds the server state.
type Config struct {
	// InitialBalances maps asset to free balance.
	InitialBalances map[string]float64
	// Prices maps symbol to its market price.
	Prices map[string]float64
	// FeeRate is charged in the quote asset on every fill. Defaults to 0.001.
	FeeRate float64
}

// Server is a mock Binance spot REST API.
type Server struct {
	mu sync.RWMutex

	httpServer *httptest.Server

	balances   map[string]*Balance
	orders     map[int64]*Order
	prices     map[string]float64
	feeRate    float64
	orderIDSeq int64
	failures   []apiError
	requests   int
}

// NewServer starts a server on a random local port. Close it when done.
func NewServer(config Config) *Server {
	s := &Server{
		balances:   make(map[string]*Balance),
		orders:     make(map[int64]*Order),
		prices:     make(map[string]float64),
		feeRate:    config.FeeRate,
		orderIDSeq: 1000,
	}

	if s.feeRate == 0 {
		s.feeRate = 0.001
	}

	for asset, amount := range config.InitialBalances {
		s.balances[asset] = &Balance{Asset: asset, Free: amount}
	}

	for symbol, price := range config.Prices {
		s.prices[symbol] = price
	}

	router := mux.NewRouter()
	router.Use(s.countAndFail)
	router.HandleFunc("/api/v3/klines", s.handleKlines).Methods(http.MethodGet)
	router.HandleFunc("/api/v3/account", s.handleAccount).Methods(http.MethodGet)
	router.HandleFunc("/api/v3/order", s.handleCreateOrder).Methods(http.MethodPost)
	router.HandleFunc("/api/v3/order", s.handleCancelOrder).Methods(http.MethodDelete)

	s.httpServer = httptest.NewServer(router)

	return s
}

// URL is the base URL to hand to the Binance client.
func (s *Server) URL() string {
	return s.httpServer.URL
}

// Close stops the server.
func (s *Server) Close() {
	s.httpServer.Close()
}

// SetPrice sets the market price of symbol.
func (s *Server) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prices[symbol] = price
}

// Balance returns a copy of the holding of asset.
func (s *Server) Balance(asset string) Balance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.balances[asset]; ok {
		return *b
	}

	return Balance{Asset: asset}
}

// Order returns a copy of the order with the given id.
func (s *Server) Order(id int64) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return Order{}, false
	}

	return *o, true
}

// FailNext makes the next request fail with the given Binance error code.
func (s *Server) FailNext(code int64, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures = append(s.failures, apiError{Code: code, Message: message})
}

// Requests is the number of requests received so far.
func (s *Server) Requests() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.requests
}

func (s *Server) countAndFail(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests++

		var failure *apiError
		if len(s.failures) > 0 {
			failure = &s.failures[0]
			s.failures = s.failures[1:]
		}
		s.mu.Unlock()

		if failure != nil {
			status := http.StatusBadRequest
			if failure.Code == CodeTooManyRequests {
				status = http.StatusTooManyRequests
			}

			writeError(w, status, failure.Code, failure.Message)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, code int64, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// splitSymbol returns the base and quote assets of symbol.
func splitSymbol(symbol string) (string, string) {
	for _, quote := range []string{"USDT", "BUSD", "BTC", "ETH", "BNB"} {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			return strings.TrimSuffix(symbol, quote), quote
		}
	}

	return symbol[:len(symbol)/2], symbol[len(symbol)/2:]
}

func parseInterval(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return 0
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 8, 64)
}

// handleKlines serves limit candles ending now. Closes climb by 0.1% per candle and the
// last close equals the current price.
func (s *Server) handleKlines(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	symbol := query.Get("symbol")

	interval := parseInterval(query.Get("interval"))
	if symbol == "" || interval == 0 {
		writeError(w, http.StatusBadRequest, CodeIllegalParameters, "invalid symbol or interval")

		return
	}

	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 || limit > 1000 {
		limit = 500
	}

	s.mu.RLock()
	price, ok := s.prices[symbol]
	s.mu.RUnlock()

	if !ok {
		writeError(w, http.StatusBadRequest, CodeIllegalParameters, "invalid symbol")

		return
	}

	end := time.Now().Truncate(interval)
	klines := make([][]any, 0, limit)

	for i := 0; i < limit; i++ {
		steps := float64(limit - 1 - i)
		closePrice := price / (1 + 0.001*steps)
		openPrice := closePrice / 1.001
		openTime := end.Add(-time.Duration(limit-1-i) * interval)

		klines = append(klines, []any{
			openTime.UnixMilli(),
			formatFloat(openPrice),
			formatFloat(closePrice * 1.0005),
			formatFloat(openPrice * 0.9995),
			formatFloat(closePrice),
			formatFloat(10),
			openTime.Add(interval).UnixMilli() - 1,
			"0",
			0,
			"0",
			"0",
			"0",
		})
	}

	writeJSON(w, klines)
}

func (s *Server) handleAccount(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type balanceResponse struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	}

	balances := make([]balanceResponse, 0, len(s.balances))
	for _, b := range s.balances {
		balances = append(balances, balanceResponse{
			Asset:  b.Asset,
			Free:   formatFloat(b.Free),
			Locked: formatFloat(b.Locked),
		})
	}

	writeJSON(w, map[string]any{
		"makerCommission": 10,
		"takerCommission": 10,
		"canTrade":        true,
		"canWithdraw":     true,
		"canDeposit":      true,
		"updateTime":      time.Now().UnixMilli(),
		"accountType":     "SPOT",
		"balances":        balances,
	})
}

func (s *Server) balanceLocked(asset string) *Balance {
	b, ok := s.balances[asset]
	if !ok {
		b = &Balance{Asset: asset}
		s.balances[asset] = b
	}

	return b
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, CodeIllegalParameters, "failed to parse form")

		return
	}

	symbol := r.FormValue("symbol")
	side := r.FormValue("side")
	orderType := r.FormValue("type")

	quantity, err := strconv.ParseFloat(r.FormValue("quantity"), 64)
	if symbol == "" || side == "" || orderType == "" || err != nil || quantity <= 0 {
		writeError(w, http.StatusBadRequest, CodeIllegalParameters, "missing or invalid parameters")

		return
	}

	var limitPrice float64
	if raw := r.FormValue("price"); raw != "" {
		limitPrice, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeIllegalParameters, "invalid price")

			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.orderIDSeq++
	order := &Order{
		OrderID:       s.orderIDSeq,
		ClientOrderID: r.FormValue("newClientOrderId"),
		Symbol:        symbol,
		Side:          side,
		Type:          orderType,
		Quantity:      quantity,
		Price:         limitPrice,
		Status:        OrderStatusNew,
	}

	if order.ClientOrderID == "" {
		order.ClientOrderID = uuid.NewString()
	}

	var fills []map[string]any

	if orderType == "MARKET" {
		price, ok := s.prices[symbol]
		if !ok {
			writeError(w, http.StatusBadRequest, CodeIllegalParameters, "no price for symbol")

			return
		}

		base, quote := splitSymbol(symbol)
		cost := price * quantity
		fee := cost * s.feeRate

		if side == "BUY" {
			quoteBal := s.balanceLocked(quote)
			if quoteBal.Free < cost+fee {
				writeError(w, http.StatusBadRequest, CodeInsufficientBalance, "Account has insufficient balance for requested action.")

				return
			}

			quoteBal.Free -= cost + fee
			s.balanceLocked(base).Free += quantity
		} else {
			baseBal := s.balanceLocked(base)
			if baseBal.Free < quantity {
				writeError(w, http.StatusBadRequest, CodeInsufficientBalance, "Account has insufficient balance for requested action.")

				return
			}

			baseBal.Free -= quantity
			s.balanceLocked(quote).Free += cost - fee
		}

		order.Status = OrderStatusFilled
		order.ExecutedQty = quantity
		order.QuoteQty = cost
		order.Commission = fee

		fills = append(fills, map[string]any{
			"price":           formatFloat(price),
			"qty":             formatFloat(quantity),
			"commission":      formatFloat(fee),
			"commissionAsset": quote,
			"tradeId":         order.OrderID,
		})
	}

	s.orders[order.OrderID] = order

	writeJSON(w, map[string]any{
		"symbol":              symbol,
		"orderId":             order.OrderID,
		"orderListId":         -1,
		"clientOrderId":       order.ClientOrderID,
		"transactTime":        time.Now().UnixMilli(),
		"price":               formatFloat(limitPrice),
		"origQty":             formatFloat(quantity),
		"executedQty":         formatFloat(order.ExecutedQty),
		"cummulativeQuoteQty": formatFloat(order.QuoteQty),
		"status":              string(order.Status),
		"timeInForce":         r.FormValue("timeInForce"),
		"type":                orderType,
		"side":                side,
		"fills":               fills,
	})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")

	orderID, err := strconv.ParseInt(r.URL.Query().Get("orderId"), 10, 64)
	if symbol == "" || err != nil {
		writeError(w, http.StatusBadRequest, CodeIllegalParameters, "missing or invalid parameters")

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok || order.Symbol != symbol || order.Status != OrderStatusNew {
		writeError(w, http.StatusBadRequest, CodeUnknownOrder, "Unknown order sent.")

		return
	}

	order.Status = OrderStatusCanceled

	writeJSON(w, map[string]any{
		"symbol":              symbol,
		"orderId":             order.OrderID,
		"origClientOrderId":   order.ClientOrderID,
		"clientOrderId":       uuid.NewString(),
		"price":               formatFloat(order.Price),
		"origQty":             formatFloat(order.Quantity),
		"executedQty":         formatFloat(order.ExecutedQty),
		"cummulativeQuoteQty": formatFloat(order.QuoteQty),
		"status":              string(order.Status),
		"type":                order.Type,
		"side":                order.Side,
	})
}
