package cache

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vaasu2002/order-matching-system/engine"
	"github.com/vaasu2002/order-matching-system/logging"
	"github.com/vaasu2002/order-matching-system/models"
)

// TradeBroadcast is the pub/sub payload for one execution.
type TradeBroadcast struct {
	Symbol         string          `json:"symbol"`
	InboundOrderID uint64          `json:"inbound_order_id"`
	RestingOrderID uint64          `json:"resting_order_id"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	Timestamp      int64           `json:"timestamp"`
}

// DepthBroadcast is the pub/sub payload for one depth level change.
type DepthBroadcast struct {
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	Level       int             `json:"level"`
	Price       decimal.Decimal `json:"price"`
	NewQuantity decimal.Decimal `json:"new_quantity"`
	Timestamp   int64           `json:"timestamp"`
}

type outboundMessage struct {
	channel string
	payload []byte
}

// MarketDataPublisher fans executions and depth changes out to Redis:
// pub/sub broadcasts for downstream consumers plus cache refreshes for the
// read endpoints.
//
// Listener callbacks run inside the book's critical section, so they only
// enqueue; a background worker does the Redis I/O. The queue drops messages
// rather than block the matching path.
type MarketDataPublisher struct {
	redis *RedisCache
	cache *MarketDataCache
	keys  *KeyBuilder

	queue chan outboundMessage
	done  chan struct{}
}

// NewMarketDataPublisher creates a publisher and starts its worker.
func NewMarketDataPublisher(redisCache *RedisCache, marketCache *MarketDataCache) *MarketDataPublisher {
	p := &MarketDataPublisher{
		redis: redisCache,
		cache: marketCache,
		keys:  NewKeyBuilder("matching"),
		queue: make(chan outboundMessage, 1024),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

// Close stops the background worker after the queue drains.
func (p *MarketDataPublisher) Close() {
	close(p.queue)
	<-p.done
}

func (p *MarketDataPublisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		if err := p.redis.Publish(msg.channel, msg.payload); err != nil {
			logging.LogStoreError("redis_publish", err)
		}
	}
}

func (p *MarketDataPublisher) enqueue(channel string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		logging.LogStoreError("marshal_broadcast", err)
		return
	}
	select {
	case p.queue <- outboundMessage{channel: channel, payload: payload}:
	default:
		// Queue full: the matching path never blocks on Redis.
	}
}

// OnTrade implements engine.TradeListener.
func (p *MarketDataPublisher) OnTrade(inbound, resting *models.Order, quantity, price decimal.Decimal,
	inboundFilled, restingFilled bool) {
	p.enqueue(p.keys.TradeChannel(inbound.Symbol), TradeBroadcast{
		Symbol:         inbound.Symbol,
		InboundOrderID: inbound.ID,
		RestingOrderID: resting.ID,
		Price:          price,
		Quantity:       quantity,
		Timestamp:      time.Now().UnixMilli(),
	})
}

// OnDepthChange implements engine.DepthListener.
func (p *MarketDataPublisher) OnDepthChange(book *engine.OrderBook, change engine.DepthChange) {
	p.enqueue(p.keys.DepthChannel(book.Symbol()), DepthBroadcast{
		Symbol:      book.Symbol(),
		Side:        string(change.Side),
		Level:       change.Level,
		Price:       change.Price,
		NewQuantity: change.NewQuantity,
		Timestamp:   time.Now().UnixMilli(),
	})
}

// RefreshCaches re-populates the cached market data documents from the
// book. Called on a timer rather than per event, since the depth documents
// are whole-snapshot copies.
func (p *MarketDataPublisher) RefreshCaches(book *engine.OrderBook) {
	symbol := book.Symbol()

	bids, asks := book.DepthSnapshot()
	if err := p.cache.StoreDepth(symbol, bids, asks); err != nil {
		logging.LogStoreError("cache_depth", err)
	}

	bestBid := book.BestBid()
	bestAsk := book.BestAsk()
	if bestBid != nil || bestAsk != nil {
		bid, ask := decimal.Zero, decimal.Zero
		if bestBid != nil {
			bid = *bestBid
		}
		if bestAsk != nil {
			ask = *bestAsk
		}
		if err := p.cache.StoreTopOfBook(symbol, bid, ask); err != nil {
			logging.LogStoreError("cache_top_of_book", err)
		}
	}

	lastPrice, lastQty := book.LastTrade()
	if !lastPrice.IsZero() {
		if err := p.cache.StoreLastTrade(symbol, lastPrice, lastQty); err != nil {
			logging.LogStoreError("cache_last_trade", err)
		}
	}

	if err := p.cache.StoreStats(symbol, book.Stats()); err != nil {
		logging.LogStoreError("cache_stats", err)
	}
}
