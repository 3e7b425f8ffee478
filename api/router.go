package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	gorillaws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/vaasu2002/order-matching-system/engine"
	"github.com/vaasu2002/order-matching-system/logging"
	"github.com/vaasu2002/order-matching-system/models"
	"github.com/vaasu2002/order-matching-system/persistence"
	"github.com/vaasu2002/order-matching-system/ratelimit"
	"github.com/vaasu2002/order-matching-system/websocket"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const correlationIDKey contextKey = "correlation_id"

// Router wires the HTTP surface: order entry, market data queries, the
// WebSocket stream and operational endpoints.
type Router struct {
	router      *mux.Router
	book        *engine.OrderBook
	ids         *models.IDGenerator
	db          *sql.DB
	store       *persistence.PostgresStore
	redisClient *redis.Client
	wsHub       *websocket.Hub
	wsFeed      *websocket.Feed
	wsUpgrader  gorillaws.Upgrader
	rateLimiter *ratelimit.TokenBucketLimiter
}

// NewRouter creates a router over the given book. db and redisClient may
// be nil; the endpoints that need them degrade instead of failing.
func NewRouter(book *engine.OrderBook, ids *models.IDGenerator, db *sql.DB, redisClient *redis.Client) *Router {
	hub := websocket.NewHub()
	go hub.Run()

	provider := websocket.NewSnapshotProvider(book)
	hub.SetSnapshotProvider(provider)

	r := &Router{
		router:      mux.NewRouter(),
		book:        book,
		ids:         ids,
		db:          db,
		redisClient: redisClient,
		wsHub:       hub,
		wsFeed:      websocket.NewFeed(hub, provider),
		wsUpgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	if db != nil {
		r.store = persistence.NewPostgresStore(db)
	}

	r.rateLimiter = ratelimit.NewTokenBucketLimiter(redisClient, ratelimit.Config{
		MaxTokens:            100,
		RefillRate:           10,
		RefillInterval:       time.Second,
		ConservativeFallback: true,
		WhitelistedKeys: []string{
			"client:admin",
			"client:market-maker-1",
			"client:monitoring",
			"ip:127.0.0.1",
		},
	})

	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	r.router.Use(correlationIDMiddleware)

	rateLimitMiddleware := ratelimit.NewMiddleware(ratelimit.MiddlewareConfig{
		Limiter:      r.rateLimiter,
		KeyExtractor: ratelimit.ClientIDAndIPKeyExtractor,
		ErrorHandler: ratelimit.DefaultErrorHandler,
		SkipPaths:    []string{"/healthz", "/metrics", "/stream"},
	})
	r.router.Use(rateLimitMiddleware.Handler)

	r.router.HandleFunc("/orders", HandleSubmitOrder(r.book, r.ids, r.redisClient)).Methods("POST")
	r.router.HandleFunc("/orders/{order_id}/cancel", r.CancelOrder).Methods("POST")
	r.router.HandleFunc("/orders/{order_id}", r.ReplaceOrder).Methods("PUT")
	r.router.HandleFunc("/orders/{order_id}", r.GetOrder).Methods("GET")

	r.router.HandleFunc("/orderbook", r.GetOrderBook).Methods("GET")
	r.router.HandleFunc("/trades", r.GetTrades).Methods("GET")
	r.router.HandleFunc("/stats", r.GetStats).Methods("GET")

	r.router.HandleFunc("/stream", r.HandleWebSocket).Methods("GET")

	r.router.HandleFunc("/healthz", r.HealthCheck).Methods("GET")
	r.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}

// Feed returns the listener bridge that forwards engine events to
// WebSocket subscribers. The caller attaches it to the book.
func (r *Router) Feed() *websocket.Feed {
	return r.wsFeed
}

// Hub returns the WebSocket hub.
func (r *Router) Hub() *websocket.Hub {
	return r.wsHub
}

// CancelOrder handles POST /orders/{order_id}/cancel.
func (r *Router) CancelOrder(w http.ResponseWriter, req *http.Request) {
	orderID, err := parseOrderID(mux.Vars(req)["order_id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order_id")
		return
	}

	order, _ := r.book.GetOrder(orderID)
	if !r.book.CancelOrder(orderID) {
		respondError(w, http.StatusNotFound, "Order not found")
		return
	}

	logging.LogOrderCancelled(orderID, r.book.Symbol(), "user_requested")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"order":   order,
	})
}

// ReplaceRequest is the payload of PUT /orders/{order_id}. Omitted fields
// keep their current value.
type ReplaceRequest struct {
	Price    *decimal.Decimal `json:"price,omitempty"`
	Quantity *decimal.Decimal `json:"quantity,omitempty"`
}

// ReplaceOrder handles PUT /orders/{order_id}.
func (r *Router) ReplaceOrder(w http.ResponseWriter, req *http.Request) {
	orderID, err := parseOrderID(mux.Vars(req)["order_id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order_id")
		return
	}

	var body ReplaceRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	defer req.Body.Close()

	newPrice := models.PriceUnchanged
	if body.Price != nil {
		newPrice = *body.Price
	}
	newQty := models.SizeUnchanged
	if body.Quantity != nil {
		newQty = *body.Quantity
	}

	if !r.book.ReplaceOrder(orderID, newPrice, newQty) {
		respondError(w, http.StatusNotFound, "Order not found or replacement invalid")
		return
	}

	trades := make([]TradeView, 0)
	for _, te := range r.book.TakeTradesFor(orderID) {
		trades = append(trades, TradeView{
			TradeID:        te.TradeID,
			Symbol:         te.InboundOrder.Symbol,
			InboundOrderID: te.InboundOrder.ID,
			RestingOrderID: te.RestingOrder.ID,
			Price:          te.Price,
			Quantity:       te.Quantity,
			Timestamp:      te.Timestamp.UnixMilli(),
		})
	}

	order, _ := r.book.GetOrder(orderID)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"order":   order,
		"trades":  trades,
	})
}

// GetOrder handles GET /orders/{order_id}. The database is the source of
// record; the live book serves orders not yet journaled.
func (r *Router) GetOrder(w http.ResponseWriter, req *http.Request) {
	orderID, err := parseOrderID(mux.Vars(req)["order_id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order_id")
		return
	}

	if order, ok := r.book.GetOrder(orderID); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Data-Source", "in-memory")
		_ = json.NewEncoder(w).Encode(order)
		return
	}

	if r.store != nil {
		ctx, cancel := context.WithTimeout(req.Context(), 3*time.Second)
		defer cancel()

		if order, err := r.store.GetOrder(ctx, orderID); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Data-Source", "database")
			_ = json.NewEncoder(w).Encode(order)
			return
		}
	}

	respondError(w, http.StatusNotFound, "Order not found")
}

// OrderBookLevel is one price level in the /orderbook response.
type OrderBookLevel struct {
	Price           decimal.Decimal `json:"price"`
	Size            decimal.Decimal `json:"size"`
	OrderCount      int             `json:"order_count"`
	CumulativeDepth decimal.Decimal `json:"cumulative_depth"`
}

// OrderBookResponse is the payload of GET /orderbook.
type OrderBookResponse struct {
	Symbol         string           `json:"symbol"`
	Bids           []OrderBookLevel `json:"bids"`
	Asks           []OrderBookLevel `json:"asks"`
	TotalBidVolume decimal.Decimal  `json:"total_bid_volume"`
	TotalAskVolume decimal.Decimal  `json:"total_ask_volume"`
	BestBid        *decimal.Decimal `json:"best_bid,omitempty"`
	BestAsk        *decimal.Decimal `json:"best_ask,omitempty"`
	Spread         *decimal.Decimal `json:"spread,omitempty"`
	MarketPrice    decimal.Decimal  `json:"market_price"`
	Timestamp      int64            `json:"timestamp"`
	ResponseTimeMs float64          `json:"response_time_ms"`
}

// GetOrderBook handles GET /orderbook.
func (r *Router) GetOrderBook(w http.ResponseWriter, req *http.Request) {
	startTime := time.Now()

	bidLevels, askLevels := r.book.DepthSnapshot()

	response := OrderBookResponse{
		Symbol:         r.book.Symbol(),
		Bids:           make([]OrderBookLevel, 0, len(bidLevels)),
		Asks:           make([]OrderBookLevel, 0, len(askLevels)),
		TotalBidVolume: decimal.Zero,
		TotalAskVolume: decimal.Zero,
		BestBid:        r.book.BestBid(),
		BestAsk:        r.book.BestAsk(),
		MarketPrice:    r.book.MarketPrice(),
		Timestamp:      time.Now().UnixMilli(),
	}

	if response.BestBid != nil && response.BestAsk != nil {
		spread := response.BestAsk.Sub(*response.BestBid)
		response.Spread = &spread
	}

	cumulative := decimal.Zero
	for _, level := range bidLevels {
		cumulative = cumulative.Add(level.Quantity)
		response.Bids = append(response.Bids, OrderBookLevel{
			Price:           level.Price,
			Size:            level.Quantity,
			OrderCount:      level.OrderCount,
			CumulativeDepth: cumulative,
		})
		response.TotalBidVolume = response.TotalBidVolume.Add(level.Quantity)
	}

	cumulative = decimal.Zero
	for _, level := range askLevels {
		cumulative = cumulative.Add(level.Quantity)
		response.Asks = append(response.Asks, OrderBookLevel{
			Price:           level.Price,
			Size:            level.Quantity,
			OrderCount:      level.OrderCount,
			CumulativeDepth: cumulative,
		})
		response.TotalAskVolume = response.TotalAskVolume.Add(level.Quantity)
	}

	response.ResponseTimeMs = float64(time.Since(startTime).Microseconds()) / 1000.0

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, must-revalidate")
	w.Header().Set("X-Data-Source", "in-memory")
	_ = json.NewEncoder(w).Encode(response)
}

// GetTrades handles GET /trades?limit=50&offset=0. Results come from the
// trade journal in the database, newest first.
func (r *Router) GetTrades(w http.ResponseWriter, req *http.Request) {
	if r.store == nil {
		respondError(w, http.StatusServiceUnavailable, "Database not available")
		return
	}

	limit := 50
	if limitStr := req.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = min(max(parsed, 1), 1000)
		}
	}

	offset := 0
	if offsetStr := req.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
	defer cancel()

	trades, err := r.store.GetTradesBySymbol(ctx, r.book.Symbol(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to retrieve trades: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Data-Source", "database")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"symbol":   r.book.Symbol(),
		"trades":   trades,
		"limit":    limit,
		"offset":   offset,
		"count":    len(trades),
		"has_more": len(trades) == limit,
	})
}

// GetStats handles GET /stats.
func (r *Router) GetStats(w http.ResponseWriter, req *http.Request) {
	lastPrice, lastQty := r.book.LastTrade()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"symbol":              r.book.Symbol(),
		"book":                r.book.Stats(),
		"open_orders":         r.book.Size(),
		"market_price":        r.book.MarketPrice(),
		"last_trade_price":    lastPrice,
		"last_trade_quantity": lastQty,
		"websocket":           r.wsHub.GetStats(),
		"timestamp":           time.Now().UnixMilli(),
	})
}

// HealthCheck handles GET /healthz.
func (r *Router) HealthCheck(w http.ResponseWriter, req *http.Request) {
	status := map[string]string{"status": "healthy"}
	code := http.StatusOK

	if r.db != nil {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := persistence.HealthCheck(ctx, r.db); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			status["database"] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

// HandleWebSocket handles GET /stream.
func (r *Router) HandleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := r.wsUpgrader.Upgrade(w, req, nil)
	if err != nil {
		logging.GetLogger().WithField("error", err.Error()).Warn("WebSocket upgrade failed")
		return
	}

	client := websocket.NewClient(r.wsHub, conn)
	if clientID := req.URL.Query().Get("client_id"); clientID != "" {
		client.SetClientID(clientID)
	}

	r.wsHub.Register(client)
	client.Start()
}

func parseOrderID(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

// correlationIDMiddleware attaches a correlation id to each request so one
// request's log lines can be tied together.
func correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = logging.NewCorrelationID()
		}

		w.Header().Set("X-Correlation-ID", correlationID)

		ctx := context.WithValue(r.Context(), correlationIDKey, correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCorrelationID extracts the correlation id from a request context.
func GetCorrelationID(r *http.Request) string {
	if correlationID, ok := r.Context().Value(correlationIDKey).(string); ok {
		return correlationID
	}
	return ""
}
