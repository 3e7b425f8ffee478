package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/vaasu2002/order-matching-system/logging"
)

// Topic represents a WebSocket subscription topic
type Topic string

const (
	TopicDepth  Topic = "depth"
	TopicTrades Topic = "trades"
	TopicOrders Topic = "orders"
)

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	clients map[*Client]bool

	// Client subscriptions: topic -> set of clients
	subscriptions map[Topic]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	broadcastDepthDelta chan *DepthDeltaMessage
	broadcastTrade      chan *TradeMessage
	broadcastOrder      chan *OrderMessage

	// Depth deltas are batched: one flush per interval instead of one
	// message per level change.
	batchMutex    sync.Mutex
	pendingDeltas []*DepthDeltaMessage
	batchTimer    *time.Timer
	batchInterval time.Duration

	snapshotProvider *SnapshotProvider

	idleCheckInterval time.Duration
	idleTimeout       time.Duration
	lastActivity      map[*Client]time.Time
	activityMutex     sync.RWMutex

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:             make(map[*Client]bool),
		subscriptions:       make(map[Topic]map[*Client]bool),
		register:            make(chan *Client),
		unregister:          make(chan *Client),
		broadcastDepthDelta: make(chan *DepthDeltaMessage, 256),
		broadcastTrade:      make(chan *TradeMessage, 256),
		broadcastOrder:      make(chan *OrderMessage, 256),
		pendingDeltas:       make([]*DepthDeltaMessage, 0, 100),
		batchInterval:       100 * time.Millisecond,
		idleCheckInterval:   30 * time.Second,
		idleTimeout:         5 * time.Minute,
		lastActivity:        make(map[*Client]time.Time),
	}
}

// Run starts the hub's main event loop
func (h *Hub) Run() {
	go h.cleanupIdleClients()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()

			h.activityMutex.Lock()
			h.lastActivity[client] = time.Now()
			h.activityMutex.Unlock()

			logging.GetLogger().WithField("client_id", client.id).
				WithField("total_clients", total).Debug("WebSocket client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				for topic := range h.subscriptions {
					delete(h.subscriptions[topic], client)
				}
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

			h.activityMutex.Lock()
			delete(h.lastActivity, client)
			h.activityMutex.Unlock()

		case delta := <-h.broadcastDepthDelta:
			h.batchMutex.Lock()
			h.pendingDeltas = append(h.pendingDeltas, delta)
			if h.batchTimer == nil {
				h.batchTimer = time.AfterFunc(h.batchInterval, func() {
					h.flushDepthDeltas()
				})
			}
			h.batchMutex.Unlock()

		case trade := <-h.broadcastTrade:
			// Trades go out immediately, unlike depth deltas.
			message := Message{
				Type:      "trade",
				Topic:     string(TopicTrades),
				Data:      trade,
				Timestamp: time.Now().Unix(),
			}
			h.broadcastToTopic(TopicTrades, message)

		case order := <-h.broadcastOrder:
			message := Message{
				Type:      "order",
				Topic:     string(TopicOrders),
				Data:      order,
				Timestamp: time.Now().Unix(),
			}
			h.broadcastToTopic(TopicOrders, message)
		}
	}
}

// flushDepthDeltas sends all pending depth deltas as a batch
func (h *Hub) flushDepthDeltas() {
	h.batchMutex.Lock()
	defer h.batchMutex.Unlock()

	if len(h.pendingDeltas) == 0 {
		h.batchTimer = nil
		return
	}

	message := Message{
		Type:      "depth_delta_batch",
		Topic:     string(TopicDepth),
		Data:      h.pendingDeltas,
		Timestamp: time.Now().Unix(),
	}

	h.broadcastToTopic(TopicDepth, message)

	h.pendingDeltas = h.pendingDeltas[:0]
	h.batchTimer = nil
}

// broadcastToTopic sends a message to all clients subscribed to a topic
func (h *Hub) broadcastToTopic(topic Topic, message Message) {
	h.mu.RLock()
	subscribers, exists := h.subscriptions[topic]
	h.mu.RUnlock()

	if !exists || len(subscribers) == 0 {
		return
	}

	// Marshal once, send to all subscribers
	data, err := json.Marshal(message)
	if err != nil {
		logging.GetLogger().WithField("error", err.Error()).Error("Failed to marshal broadcast message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range subscribers {
		select {
		case client.send <- data:
		default:
			// Client's send buffer is full, skip.
		}
	}
}

// Subscribe adds a client to a topic subscription
func (h *Hub) Subscribe(client *Client, topic Topic) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscriptions[topic] == nil {
		h.subscriptions[topic] = make(map[*Client]bool)
	}
	h.subscriptions[topic][client] = true
}

// Unsubscribe removes a client from a topic subscription
func (h *Hub) Unsubscribe(client *Client, topic Topic) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subscribers, exists := h.subscriptions[topic]; exists {
		delete(subscribers, client)
	}
}

// BroadcastDepthDelta sends a depth level change to subscribed clients.
func (h *Hub) BroadcastDepthDelta(delta *DepthDeltaMessage) {
	select {
	case h.broadcastDepthDelta <- delta:
	default:
		logging.GetLogger().Warn("Depth delta channel full, dropping message")
	}
}

// BroadcastTrade sends a trade notification to subscribed clients.
func (h *Hub) BroadcastTrade(trade *TradeMessage) {
	select {
	case h.broadcastTrade <- trade:
	default:
		logging.GetLogger().Warn("Trade channel full, dropping message")
	}
}

// BroadcastOrder sends an order update to subscribed clients.
func (h *Hub) BroadcastOrder(order *OrderMessage) {
	select {
	case h.broadcastOrder <- order:
	default:
		logging.GetLogger().Warn("Order channel full, dropping message")
	}
}

// GetStats returns hub statistics
func (h *Hub) GetStats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subscriptionCounts := make(map[string]int)
	for topic, subscribers := range h.subscriptions {
		subscriptionCounts[string(topic)] = len(subscribers)
	}

	return map[string]interface{}{
		"total_clients": len(h.clients),
		"subscriptions": subscriptionCounts,
	}
}

// SetSnapshotProvider sets the snapshot provider for the hub
func (h *Hub) SetSnapshotProvider(provider *SnapshotProvider) {
	h.snapshotProvider = provider
}

// GetSnapshotProvider returns the snapshot provider
func (h *Hub) GetSnapshotProvider() *SnapshotProvider {
	return h.snapshotProvider
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// UpdateActivity updates the last activity time for a client
func (h *Hub) UpdateActivity(client *Client) {
	h.activityMutex.Lock()
	h.lastActivity[client] = time.Now()
	h.activityMutex.Unlock()
}

// cleanupIdleClients periodically checks for and disconnects idle clients
func (h *Hub) cleanupIdleClients() {
	ticker := time.NewTicker(h.idleCheckInterval)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		var idleClients []*Client

		h.activityMutex.RLock()
		h.mu.RLock()
		for client := range h.clients {
			if lastActive, exists := h.lastActivity[client]; exists {
				if now.Sub(lastActive) > h.idleTimeout {
					idleClients = append(idleClients, client)
				}
			}
		}
		h.mu.RUnlock()
		h.activityMutex.RUnlock()

		for _, client := range idleClients {
			// Closing the connection triggers unregister via readPump.
			_ = client.conn.Close()
		}
	}
}
