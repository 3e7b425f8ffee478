package persistence

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vaasu2002/order-matching-system/engine"
	"github.com/vaasu2002/order-matching-system/logging"
)

// RecoveryReport summarizes one book rebuild from the orders table.
type RecoveryReport struct {
	StartTime      time.Time     `json:"start_time"`
	Duration       time.Duration `json:"duration"`
	OrdersRestored int           `json:"orders_restored"`
	OrdersSkipped  int           `json:"orders_skipped"`
	MaxOrderID     uint64        `json:"max_order_id"`
}

// RecoverOrderBook rebuilds a book's resting and stop orders from the
// orders table after a restart. Open orders re-enter oldest first, which
// reproduces their original time priority, and they are placed directly
// rather than re-matched: a consistent snapshot contains no crossing
// orders, and re-matching would fire listeners for fills that already
// happened.
//
// The returned report carries the highest persisted order id so the caller
// can seed its id generator past every recovered order.
func RecoverOrderBook(ctx context.Context, store *PostgresStore, book *engine.OrderBook) (*RecoveryReport, error) {
	report := &RecoveryReport{StartTime: time.Now()}

	orders, err := store.GetOpenOrders(ctx, book.Symbol())
	if err != nil {
		return nil, err
	}

	for _, order := range orders {
		if book.RestoreOrder(order) {
			report.OrdersRestored++
		} else {
			report.OrdersSkipped++
		}
	}

	maxID, err := store.MaxOrderID(ctx)
	if err != nil {
		return nil, err
	}
	report.MaxOrderID = maxID
	report.Duration = time.Since(report.StartTime)

	logging.GetLogger().WithFields(logrus.Fields{
		"symbol":          book.Symbol(),
		"orders_restored": report.OrdersRestored,
		"orders_skipped":  report.OrdersSkipped,
		"max_order_id":    report.MaxOrderID,
		"duration_ms":     report.Duration.Milliseconds(),
	}).Info("Order book recovered from storage")

	return report, nil
}
