package cache

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vaasu2002/order-matching-system/engine"
)

const (
	depthTTL     = 5 * time.Second
	topOfBookTTL = 2 * time.Second
	lastTradeTTL = 30 * time.Second
	statsTTL     = 10 * time.Second
)

// DepthDocument is the cached representation of one depth snapshot.
type DepthDocument struct {
	Symbol    string              `json:"symbol"`
	Bids      []engine.DepthLevel `json:"bids"`
	Asks      []engine.DepthLevel `json:"asks"`
	Timestamp int64               `json:"timestamp"`
}

// TopOfBookDocument is the cached best-bid/ask pair.
type TopOfBookDocument struct {
	Symbol    string          `json:"symbol"`
	BidPrice  decimal.Decimal `json:"bid_price"`
	AskPrice  decimal.Decimal `json:"ask_price"`
	Timestamp int64           `json:"timestamp"`
}

// LastTradeDocument is the cached most recent execution.
type LastTradeDocument struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Timestamp int64           `json:"timestamp"`
}

// MarketDataCache keeps short-TTL copies of depth, top-of-book, last trade
// and book statistics in Redis so read endpoints can serve market data
// without touching the book.
type MarketDataCache struct {
	redis *RedisCache
	keys  *KeyBuilder
}

// NewMarketDataCache creates a market data cache over the given Redis
// connection.
func NewMarketDataCache(redisCache *RedisCache) *MarketDataCache {
	return &MarketDataCache{
		redis: redisCache,
		keys:  NewKeyBuilder("matching"),
	}
}

// StoreDepth caches a depth snapshot for a symbol.
func (mc *MarketDataCache) StoreDepth(symbol string, bids, asks []engine.DepthLevel) error {
	doc := DepthDocument{
		Symbol:    symbol,
		Bids:      bids,
		Asks:      asks,
		Timestamp: time.Now().UnixMilli(),
	}
	return mc.redis.SetJSON(mc.keys.DepthKey(symbol), doc, depthTTL)
}

// GetDepth returns the cached depth snapshot, or an error on a miss.
func (mc *MarketDataCache) GetDepth(symbol string) (*DepthDocument, error) {
	var doc DepthDocument
	if err := mc.redis.GetJSON(mc.keys.DepthKey(symbol), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// StoreTopOfBook caches the best bid and ask prices for a symbol.
func (mc *MarketDataCache) StoreTopOfBook(symbol string, bid, ask decimal.Decimal) error {
	doc := TopOfBookDocument{
		Symbol:    symbol,
		BidPrice:  bid,
		AskPrice:  ask,
		Timestamp: time.Now().UnixMilli(),
	}
	return mc.redis.SetJSON(mc.keys.TopOfBookKey(symbol), doc, topOfBookTTL)
}

// GetTopOfBook returns the cached best bid and ask, or an error on a miss.
func (mc *MarketDataCache) GetTopOfBook(symbol string) (*TopOfBookDocument, error) {
	var doc TopOfBookDocument
	if err := mc.redis.GetJSON(mc.keys.TopOfBookKey(symbol), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// StoreLastTrade caches the most recent execution for a symbol.
func (mc *MarketDataCache) StoreLastTrade(symbol string, price, quantity decimal.Decimal) error {
	doc := LastTradeDocument{
		Symbol:    symbol,
		Price:     price,
		Quantity:  quantity,
		Timestamp: time.Now().UnixMilli(),
	}
	return mc.redis.SetJSON(mc.keys.LastTradeKey(symbol), doc, lastTradeTTL)
}

// GetLastTrade returns the cached most recent execution, or an error on a
// miss.
func (mc *MarketDataCache) GetLastTrade(symbol string) (*LastTradeDocument, error) {
	var doc LastTradeDocument
	if err := mc.redis.GetJSON(mc.keys.LastTradeKey(symbol), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// StoreStats caches a statistics snapshot for a symbol.
func (mc *MarketDataCache) StoreStats(symbol string, stats engine.StatsSnapshot) error {
	return mc.redis.SetJSON(mc.keys.StatsKey(symbol), stats, statsTTL)
}

// GetStats returns the cached statistics snapshot, or an error on a miss.
func (mc *MarketDataCache) GetStats(symbol string) (*engine.StatsSnapshot, error) {
	var stats engine.StatsSnapshot
	if err := mc.redis.GetJSON(mc.keys.StatsKey(symbol), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// InvalidateSymbol drops every cached document for a symbol.
func (mc *MarketDataCache) InvalidateSymbol(symbol string) error {
	keys := []string{
		mc.keys.DepthKey(symbol),
		mc.keys.TopOfBookKey(symbol),
		mc.keys.LastTradeKey(symbol),
		mc.keys.StatsKey(symbol),
	}
	for _, key := range keys {
		if err := mc.redis.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
