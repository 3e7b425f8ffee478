package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/vaasu2002/order-matching-system/engine"
	"github.com/vaasu2002/order-matching-system/logging"
	"github.com/vaasu2002/order-matching-system/metrics"
	"github.com/vaasu2002/order-matching-system/models"
)

// OrderRequest is the payload of POST /orders.
type OrderRequest struct {
	ClientID    string          `json:"client_id"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"` // "buy" or "sell"
	Type        string          `json:"type"` // "limit", "market", "stop" or "stop_limit"
	TimeInForce string          `json:"time_in_force,omitempty"`
	Price       decimal.Decimal `json:"price"`
	StopPrice   decimal.Decimal `json:"stop_price,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	Conditions  []string        `json:"conditions,omitempty"` // "aon", "ioc", "fok", "hidden", "iceberg"
}

// TradeView is one executed trade in an API response.
type TradeView struct {
	TradeID        uuid.UUID       `json:"trade_id"`
	Symbol         string          `json:"symbol"`
	InboundOrderID uint64          `json:"inbound_order_id"`
	RestingOrderID uint64          `json:"resting_order_id"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	Timestamp      int64           `json:"timestamp"`
}

// OrderResponse is returned after submitting an order.
type OrderResponse struct {
	Success   bool          `json:"success"`
	OrderID   uint64        `json:"order_id"`
	Order     *models.Order `json:"order,omitempty"`
	Trades    []TradeView   `json:"trades,omitempty"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp int64         `json:"timestamp"`
	Replayed  bool          `json:"replayed,omitempty"` // response served from the idempotency cache
}

// ValidationError describes one invalid request field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// HandleSubmitOrder handles POST /orders. Resubmitting with the same
// Idempotency-Key header within 24 hours replays the original response
// instead of placing a second order.
func HandleSubmitOrder(book *engine.OrderBook, ids *models.IDGenerator, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idempotencyKey := r.Header.Get("Idempotency-Key")
		if idempotencyKey != "" && redisClient != nil {
			cached, err := checkIdempotencyKey(r.Context(), redisClient, idempotencyKey)
			if err == nil && cached != nil {
				cached.Replayed = true
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotency-Key", idempotencyKey)
				w.Header().Set("X-Idempotency-Replayed", "true")
				w.WriteHeader(http.StatusAccepted)
				_ = json.NewEncoder(w).Encode(cached)
				return
			}
		}

		var req OrderRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
			return
		}
		defer r.Body.Close()

		if validationErrors := validateOrderRequest(&req); len(validationErrors) > 0 {
			metrics.RecordOrderRejected(req.Symbol, "validation_failed")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error":   "Validation failed",
				"errors":  validationErrors,
			})
			return
		}

		order, conditions := buildOrder(ids.Next(), &req)

		metrics.RecordOrderReceived(req.Symbol, req.Side, req.Type)
		logging.LogOrderReceived(order.ID, req.ClientID, req.Symbol, req.Side, req.Type)

		startTime := time.Now()
		accepted := book.AddOrder(order, conditions)
		metrics.RecordOrderLatency(req.Symbol, req.Type, time.Since(startTime).Seconds())

		if order.Status == models.OrderStatusRejected {
			metrics.RecordOrderRejected(req.Symbol, "engine_rejection")
			logging.LogOrderRejected(order.ID, req.ClientID, req.Symbol, "engine_rejection")
			respondError(w, http.StatusBadRequest, "Order rejected")
			return
		}

		trades := make([]TradeView, 0)
		for _, te := range book.TakeTradesFor(order.ID) {
			qty, _ := te.Quantity.Float64()
			metrics.RecordTrade(req.Symbol, qty)

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

		message := "Order accepted"
		if !accepted {
			message = "Order cancelled without execution"
		}

		response := OrderResponse{
			Success:   true,
			OrderID:   order.ID,
			Order:     order,
			Trades:    trades,
			Message:   message,
			Timestamp: time.Now().UnixMilli(),
		}

		if idempotencyKey != "" && redisClient != nil {
			if err := cacheIdempotencyResponse(r.Context(), redisClient, idempotencyKey, &response); err != nil {
				logging.LogStoreError("idempotency_cache", err)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if idempotencyKey != "" {
			w.Header().Set("X-Idempotency-Key", idempotencyKey)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// buildOrder turns a validated request into an order plus its execution
// conditions.
func buildOrder(id uint64, req *OrderRequest) (*models.Order, models.OrderConditions) {
	side := models.OrderSide(req.Side)
	orderType := models.OrderType(req.Type)

	var order *models.Order
	if orderType == models.OrderTypeStop || orderType == models.OrderTypeStopLimit {
		order = models.NewStopOrder(id, req.ClientID, req.Symbol, side, orderType,
			req.Price, req.StopPrice, req.Quantity)
	} else {
		price := req.Price
		if orderType == models.OrderTypeMarket {
			price = models.MarketPrice
		}
		order = models.NewOrder(id, req.ClientID, req.Symbol, side, orderType, price, req.Quantity)
	}

	if req.TimeInForce != "" {
		order.TimeInForce = models.TimeInForce(req.TimeInForce)
	}

	conditions := models.NoConditions
	for _, c := range req.Conditions {
		switch c {
		case "aon":
			conditions |= models.ConditionAON
		case "ioc":
			conditions |= models.ConditionIOC
		case "fok":
			conditions |= models.ConditionFOK
		case "hidden":
			conditions |= models.ConditionHidden
		case "iceberg":
			conditions |= models.ConditionIceberg
		}
	}
	return order, conditions
}

var (
	maxOrderQuantity = decimal.NewFromInt(1000)
	minOrderQuantity = decimal.NewFromFloat(0.0001)
	maxOrderPrice    = decimal.NewFromInt(1000000)
)

func validateOrderRequest(req *OrderRequest) []ValidationError {
	var errors []ValidationError

	if req.ClientID == "" {
		errors = append(errors, ValidationError{
			Field:   "client_id",
			Message: "client_id is required",
		})
	}

	if req.Symbol == "" {
		errors = append(errors, ValidationError{
			Field:   "symbol",
			Message: "symbol is required",
		})
	}

	if req.Side != "buy" && req.Side != "sell" {
		errors = append(errors, ValidationError{
			Field:   "side",
			Message: "side must be 'buy' or 'sell'",
		})
	}

	isStop := req.Type == "stop" || req.Type == "stop_limit"
	needsPrice := req.Type == "limit" || req.Type == "stop_limit"

	switch req.Type {
	case "limit", "market", "stop", "stop_limit":
	default:
		errors = append(errors, ValidationError{
			Field:   "type",
			Message: "type must be 'limit', 'market', 'stop' or 'stop_limit'",
		})
	}

	switch req.TimeInForce {
	case "", string(models.TimeInForceGTC), string(models.TimeInForceIOC),
		string(models.TimeInForceFOK), string(models.TimeInForceDay):
	default:
		errors = append(errors, ValidationError{
			Field:   "time_in_force",
			Message: "time_in_force must be 'GTC', 'IOC', 'FOK' or 'DAY'",
		})
	}

	for _, c := range req.Conditions {
		switch c {
		case "aon", "ioc", "fok", "hidden", "iceberg":
		default:
			errors = append(errors, ValidationError{
				Field:   "conditions",
				Message: fmt.Sprintf("unknown condition %q", c),
			})
		}
	}

	if req.Quantity.IsZero() || req.Quantity.IsNegative() {
		errors = append(errors, ValidationError{
			Field:   "quantity",
			Message: "quantity must be positive",
		})
	} else {
		if req.Quantity.GreaterThan(maxOrderQuantity) {
			errors = append(errors, ValidationError{
				Field:   "quantity",
				Message: fmt.Sprintf("quantity exceeds maximum allowed (%s)", maxOrderQuantity),
			})
		}
		if req.Quantity.LessThan(minOrderQuantity) {
			errors = append(errors, ValidationError{
				Field:   "quantity",
				Message: fmt.Sprintf("quantity below minimum allowed (%s)", minOrderQuantity),
			})
		}
	}

	if needsPrice {
		if req.Price.IsZero() || req.Price.IsNegative() {
			errors = append(errors, ValidationError{
				Field:   "price",
				Message: "price must be positive for limit orders",
			})
		} else if req.Price.GreaterThan(maxOrderPrice) {
			errors = append(errors, ValidationError{
				Field:   "price",
				Message: fmt.Sprintf("price exceeds maximum allowed (%s)", maxOrderPrice),
			})
		}
	}

	if isStop && (req.StopPrice.IsZero() || req.StopPrice.IsNegative()) {
		errors = append(errors, ValidationError{
			Field:   "stop_price",
			Message: "stop_price must be positive for stop orders",
		})
	}

	return errors
}

func respondError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success":   false,
		"error":     message,
		"timestamp": time.Now().UnixMilli(),
	})
}

// checkIdempotencyKey returns the cached response for a previously seen
// key, or nil for a new request.
func checkIdempotencyKey(ctx context.Context, redisClient *redis.Client, key string) (*OrderResponse, error) {
	redisKey := "idempotency:" + hashIdempotencyKey(key)

	cachedData, err := redisClient.Get(ctx, redisKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var response OrderResponse
	if err := json.Unmarshal([]byte(cachedData), &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// cacheIdempotencyResponse stores the response under the hashed key with a
// 24 hour expiry.
func cacheIdempotencyResponse(ctx context.Context, redisClient *redis.Client, key string, response *OrderResponse) error {
	redisKey := "idempotency:" + hashIdempotencyKey(key)

	responseData, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to serialize response: %w", err)
	}
	if err := redisClient.Set(ctx, redisKey, responseData, 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to cache response: %w", err)
	}
	return nil
}

// hashIdempotencyKey normalizes client-supplied keys to a fixed length.
func hashIdempotencyKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
