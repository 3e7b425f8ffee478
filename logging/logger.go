package logging

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	log     *logrus.Logger
	logOnce sync.Once
)

// Event types as constants
const (
	EventOrderReceived  = "order_received"
	EventOrderAccepted  = "order_accepted"
	EventOrderRejected  = "order_rejected"
	EventOrderCancelled = "order_cancelled"
	EventOrderReplaced  = "order_replaced"
	EventTradeExecuted  = "trade_executed"
	EventStopTriggered  = "stop_triggered"
	EventBookCorruption = "book_corruption"
	EventStoreError     = "store_error"
	EventServerStarted  = "server_started"
	EventServerStopped  = "server_stopped"
)

// InitLogger initializes the structured logger with JSON format. The log
// level comes from the LOG_LEVEL environment variable, defaulting to info.
func InitLogger() *logrus.Logger {
	log = logrus.New()

	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "ts",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	log.SetOutput(os.Stdout)

	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// GetLogger returns the global logger, initializing it on first use.
func GetLogger() *logrus.Logger {
	logOnce.Do(func() {
		if log == nil {
			InitLogger()
		}
	})
	return log
}

// NewCorrelationID generates a correlation id for request tracing.
func NewCorrelationID() string {
	return uuid.New().String()
}

// LogOrderReceived logs an order entering the system.
func LogOrderReceived(orderID uint64, clientID, symbol, side, orderType string) {
	GetLogger().WithFields(logrus.Fields{
		"event":     EventOrderReceived,
		"order_id":  orderID,
		"client_id": clientID,
		"symbol":    symbol,
		"side":      side,
		"type":      orderType,
	}).Info("Order received")
}

// LogOrderRejected logs an order failing validation.
func LogOrderRejected(orderID uint64, clientID, symbol, reason string) {
	GetLogger().WithFields(logrus.Fields{
		"event":     EventOrderRejected,
		"order_id":  orderID,
		"client_id": clientID,
		"symbol":    symbol,
		"reason":    reason,
	}).Warn("Order rejected")
}

// LogOrderAccepted logs an order passing validation and entering the book.
func LogOrderAccepted(orderID uint64, symbol string) {
	GetLogger().WithFields(logrus.Fields{
		"event":    EventOrderAccepted,
		"order_id": orderID,
		"symbol":   symbol,
	}).Debug("Order accepted")
}

// LogOrderReplaced logs a successful price/quantity replacement.
func LogOrderReplaced(orderID uint64, symbol, newPrice, newQuantity string) {
	GetLogger().WithFields(logrus.Fields{
		"event":        EventOrderReplaced,
		"order_id":     orderID,
		"symbol":       symbol,
		"new_price":    newPrice,
		"new_quantity": newQuantity,
	}).Info("Order replaced")
}

// LogStopTriggered logs a stop order leaving the stop ladder for matching.
func LogStopTriggered(orderID uint64, symbol, stopPrice, marketPrice string) {
	GetLogger().WithFields(logrus.Fields{
		"event":        EventStopTriggered,
		"order_id":     orderID,
		"symbol":       symbol,
		"stop_price":   stopPrice,
		"market_price": marketPrice,
	}).Info("Stop order triggered")
}

// LogOrderCancelled logs a cancellation.
func LogOrderCancelled(orderID uint64, symbol, reason string) {
	GetLogger().WithFields(logrus.Fields{
		"event":    EventOrderCancelled,
		"order_id": orderID,
		"symbol":   symbol,
		"reason":   reason,
	}).Info("Order cancelled")
}

// LogServerStarted logs server startup.
func LogServerStarted(port int) {
	GetLogger().WithFields(logrus.Fields{
		"event": EventServerStarted,
		"port":  port,
	}).Info("Order matching server started")
}

// LogServerStopped logs a graceful shutdown.
func LogServerStopped() {
	GetLogger().WithFields(logrus.Fields{
		"event": EventServerStopped,
	}).Info("Order matching server stopped")
}

// ErrorRateLimiter suppresses floods of identical errors so a failing
// downstream (database, redis) cannot drown the log.
type ErrorRateLimiter struct {
	mu          sync.Mutex
	errorCounts map[string]*errorEntry
}

type errorEntry struct {
	count      int
	firstSeen  time.Time
	lastLogged time.Time
	suppressed int
}

var (
	storeLimiter    = NewErrorRateLimiter()
	rateLimitWindow = 1 * time.Minute
	maxErrorsPerMin = 5
)

// NewErrorRateLimiter creates an empty limiter.
func NewErrorRateLimiter() *ErrorRateLimiter {
	return &ErrorRateLimiter{errorCounts: make(map[string]*errorEntry)}
}

// ShouldLog reports whether this error key may be logged now, and how many
// identical errors were suppressed since it was last allowed through.
func (rl *ErrorRateLimiter) ShouldLog(errorKey string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, exists := rl.errorCounts[errorKey]

	if !exists || now.Sub(entry.firstSeen) > rateLimitWindow {
		suppressed := 0
		if exists {
			suppressed = entry.suppressed
		}
		rl.errorCounts[errorKey] = &errorEntry{count: 1, firstSeen: now, lastLogged: now}
		return true, suppressed
	}

	entry.count++
	if entry.count <= maxErrorsPerMin {
		entry.lastLogged = now
		return true, 0
	}
	entry.suppressed++
	return false, 0
}

// LogStoreError logs a persistence failure with rate limiting.
func LogStoreError(operation string, err error) {
	errorKey := fmt.Sprintf("%s:%s", operation, err.Error())
	shouldLog, suppressed := storeLimiter.ShouldLog(errorKey)
	if !shouldLog {
		return
	}

	fields := logrus.Fields{
		"event":     EventStoreError,
		"operation": operation,
		"error":     err.Error(),
	}
	if suppressed > 0 {
		fields["suppressed_count"] = suppressed
	}
	GetLogger().WithFields(fields).Error("Store operation failed")
}
