package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaasu2002/order-matching-system/engine"
	"github.com/vaasu2002/order-matching-system/models"
)

func newTestRouter() *Router {
	book := engine.NewOrderBook("BTC-USD")
	ids := models.NewIDGenerator(0)
	return NewRouter(book, ids, nil, nil)
}

func submitOrder(t *testing.T, router *Router, body map[string]interface{}) OrderResponse {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/orders", bytes.NewReader(payload))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code, "body: %s", rec.Body.String())

	var response OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	return response
}

func limitOrderBody(clientID, side string, price, qty float64) map[string]interface{} {
	return map[string]interface{}{
		"client_id": clientID,
		"symbol":    "BTC-USD",
		"side":      side,
		"type":      "limit",
		"price":     price,
		"quantity":  qty,
	}
}

func TestSubmitLimitOrder(t *testing.T) {
	router := newTestRouter()

	response := submitOrder(t, router, limitOrderBody("client1", "buy", 50000, 1))

	assert.True(t, response.Success)
	assert.NotZero(t, response.OrderID)
	require.NotNil(t, response.Order)
	assert.Equal(t, models.OrderStatusAccepted, response.Order.Status)
	assert.Empty(t, response.Trades)
}

func TestSubmitCrossingOrdersProducesTrade(t *testing.T) {
	router := newTestRouter()

	resting := submitOrder(t, router, limitOrderBody("maker", "sell", 50000, 2))
	require.True(t, resting.Success)

	aggressor := submitOrder(t, router, limitOrderBody("taker", "buy", 50000, 1))
	require.True(t, aggressor.Success)

	require.Len(t, aggressor.Trades, 1)
	trade := aggressor.Trades[0]
	assert.Equal(t, aggressor.OrderID, trade.InboundOrderID)
	assert.Equal(t, resting.OrderID, trade.RestingOrderID)
	assert.True(t, trade.Price.Equal(decimal.NewFromInt(50000)))
	assert.True(t, trade.Quantity.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, models.OrderStatusFilled, aggressor.Order.Status)
}

func TestSubmitOrderValidation(t *testing.T) {
	router := newTestRouter()

	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing client_id", map[string]interface{}{
			"symbol": "BTC-USD", "side": "buy", "type": "limit", "price": 100, "quantity": 1,
		}},
		{"bad side", map[string]interface{}{
			"client_id": "c", "symbol": "BTC-USD", "side": "hold", "type": "limit", "price": 100, "quantity": 1,
		}},
		{"zero quantity", map[string]interface{}{
			"client_id": "c", "symbol": "BTC-USD", "side": "buy", "type": "limit", "price": 100, "quantity": 0,
		}},
		{"limit without price", map[string]interface{}{
			"client_id": "c", "symbol": "BTC-USD", "side": "buy", "type": "limit", "quantity": 1,
		}},
		{"stop without stop_price", map[string]interface{}{
			"client_id": "c", "symbol": "BTC-USD", "side": "buy", "type": "stop", "quantity": 1,
		}},
		{"bad time_in_force", map[string]interface{}{
			"client_id": "c", "symbol": "BTC-USD", "side": "buy", "type": "limit", "price": 100, "quantity": 1,
			"time_in_force": "GTD",
		}},
		{"unknown condition", map[string]interface{}{
			"client_id": "c", "symbol": "BTC-USD", "side": "buy", "type": "limit", "price": 100, "quantity": 1,
			"conditions": []string{"postonly"},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := json.Marshal(tc.body)
			require.NoError(t, err)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/orders", bytes.NewReader(payload))
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSubmitOrderRejectsUnknownFields(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/orders",
		bytes.NewReader([]byte(`{"client_id":"c","symbol":"BTC-USD","side":"buy","type":"limit","price":1,"quantity":1,"bogus":true}`)))
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelOrder(t *testing.T) {
	router := newTestRouter()

	placed := submitOrder(t, router, limitOrderBody("client1", "buy", 49000, 1))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", fmt.Sprintf("/orders/%d/cancel", placed.OrderID), nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// A second cancel finds nothing.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest("POST", fmt.Sprintf("/orders/%d/cancel", placed.OrderID), nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelInvalidOrderID(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/orders/not-a-number/cancel", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReplaceOrder(t *testing.T) {
	router := newTestRouter()

	placed := submitOrder(t, router, limitOrderBody("client1", "buy", 49000, 2))

	payload := []byte(`{"price": 49500}`)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("PUT", fmt.Sprintf("/orders/%d", placed.OrderID), bytes.NewReader(payload))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	getRec := httptest.NewRecorder()
	getReq := httptest.NewRequest("GET", fmt.Sprintf("/orders/%d", placed.OrderID), nil)
	router.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var order models.Order
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &order))
	assert.True(t, order.Price.Equal(decimal.NewFromInt(49500)))
}

func TestGetOrderNotFound(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/orders/424242", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrderBook(t *testing.T) {
	router := newTestRouter()

	submitOrder(t, router, limitOrderBody("client1", "buy", 49000, 2))
	submitOrder(t, router, limitOrderBody("client1", "buy", 48000, 1))
	submitOrder(t, router, limitOrderBody("client2", "sell", 51000, 3))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/orderbook", nil)
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var response OrderBookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	assert.Equal(t, "BTC-USD", response.Symbol)
	require.Len(t, response.Bids, 2)
	require.Len(t, response.Asks, 1)

	// Best bid first, with cumulative depth running down the book.
	assert.True(t, response.Bids[0].Price.Equal(decimal.NewFromInt(49000)))
	assert.True(t, response.Bids[1].CumulativeDepth.Equal(decimal.NewFromInt(3)))
	assert.True(t, response.TotalBidVolume.Equal(decimal.NewFromInt(3)))

	require.NotNil(t, response.Spread)
	assert.True(t, response.Spread.Equal(decimal.NewFromInt(2000)))
}

func TestGetTradesWithoutDatabase(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/trades", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetStats(t *testing.T) {
	router := newTestRouter()

	submitOrder(t, router, limitOrderBody("maker", "sell", 50000, 1))
	submitOrder(t, router, limitOrderBody("taker", "buy", 50000, 1))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/stats", nil)
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, "BTC-USD", stats["symbol"])
	assert.Contains(t, stats, "book")
	assert.Contains(t, stats, "websocket")
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCorrelationIDHeader(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	router.ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	router.ServeHTTP(rec, req)
	assert.Equal(t, "corr-123", rec.Header().Get("X-Correlation-ID"))
}
