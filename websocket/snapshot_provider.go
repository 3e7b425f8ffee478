package websocket

import (
	"sync"
	"time"

	"github.com/vaasu2002/order-matching-system/engine"
)

const (
	maxRecentTrades = 100
	maxRecentOrders = 256
)

// SnapshotProvider serves the initial state a client receives on subscribe
// and on resync: live book depth plus rolling windows of recent trades and
// order updates.
type SnapshotProvider struct {
	book *engine.OrderBook

	mu           sync.RWMutex
	recentTrades []TradeMessage
	recentOrders []OrderMessage
}

// NewSnapshotProvider creates a snapshot provider backed by an order book.
func NewSnapshotProvider(book *engine.OrderBook) *SnapshotProvider {
	return &SnapshotProvider{
		book:         book,
		recentTrades: make([]TradeMessage, 0, maxRecentTrades),
		recentOrders: make([]OrderMessage, 0, maxRecentOrders),
	}
}

// GetBookSnapshot returns the current aggregated depth of both sides.
func (p *SnapshotProvider) GetBookSnapshot() *BookSnapshot {
	bids, asks := p.book.DepthSnapshot()

	snapshot := &BookSnapshot{
		Symbol:    p.book.Symbol(),
		Bids:      make([]SnapshotLevel, 0, len(bids)),
		Asks:      make([]SnapshotLevel, 0, len(asks)),
		Timestamp: time.Now().Unix(),
	}
	for _, lvl := range bids {
		snapshot.Bids = append(snapshot.Bids, SnapshotLevel{
			Price:      lvl.Price,
			Quantity:   lvl.Quantity,
			OrderCount: lvl.OrderCount,
		})
	}
	for _, lvl := range asks {
		snapshot.Asks = append(snapshot.Asks, SnapshotLevel{
			Price:      lvl.Price,
			Quantity:   lvl.Quantity,
			OrderCount: lvl.OrderCount,
		})
	}
	return snapshot
}

// GetRecentTrades returns up to limit of the most recent trades, newest
// first.
func (p *SnapshotProvider) GetRecentTrades(limit int) []TradeMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if limit <= 0 || limit > len(p.recentTrades) {
		limit = len(p.recentTrades)
	}

	trades := make([]TradeMessage, 0, limit)
	for i := len(p.recentTrades) - 1; i >= 0 && len(trades) < limit; i-- {
		trades = append(trades, p.recentTrades[i])
	}
	return trades
}

// GetClientOrders returns recent order updates belonging to the given
// client, newest first. An empty client id matches nothing.
func (p *SnapshotProvider) GetClientOrders(clientID string) []OrderMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()

	orders := make([]OrderMessage, 0)
	if clientID == "" {
		return orders
	}
	for i := len(p.recentOrders) - 1; i >= 0; i-- {
		if p.recentOrders[i].ClientID == clientID {
			orders = append(orders, p.recentOrders[i])
		}
	}
	return orders
}

func (p *SnapshotProvider) recordTrade(msg TradeMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.recentTrades) >= maxRecentTrades {
		copy(p.recentTrades, p.recentTrades[1:])
		p.recentTrades = p.recentTrades[:len(p.recentTrades)-1]
	}
	p.recentTrades = append(p.recentTrades, msg)
}

func (p *SnapshotProvider) recordOrder(msg OrderMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.recentOrders) >= maxRecentOrders {
		copy(p.recentOrders, p.recentOrders[1:])
		p.recentOrders = p.recentOrders[:len(p.recentOrders)-1]
	}
	p.recentOrders = append(p.recentOrders, msg)
}
