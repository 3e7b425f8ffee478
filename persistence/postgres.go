package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/vaasu2002/order-matching-system/models"
)

// Error types for retry logic
var (
	ErrDeadlock             = errors.New("deadlock detected")
	ErrSerializationFailure = errors.New("serialization failure")
	ErrConnectionFailure    = errors.New("connection failure")
)

// PostgresStore handles database operations for orders and trades.
type PostgresStore struct {
	db         *sql.DB
	maxRetries int
	retryDelay time.Duration
}

// Open connects to PostgreSQL and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:         db,
		maxRetries: 3,
		retryDelay: 100 * time.Millisecond,
	}
}

// SetRetryConfig sets the retry configuration
func (ps *PostgresStore) SetRetryConfig(maxRetries int, retryDelay time.Duration) {
	ps.maxRetries = maxRetries
	ps.retryDelay = retryDelay
}

// TradeRecord represents a trade in the database
type TradeRecord struct {
	TradeID        uuid.UUID
	InboundOrderID uint64
	RestingOrderID uint64
	Symbol         string
	Price          decimal.Decimal
	Quantity       decimal.Decimal
	Timestamp      time.Time
}

// PersistTrade inserts a trade with idempotency (ON CONFLICT DO NOTHING).
// Re-delivering the same trade id is a no-op, not an error.
func (ps *PostgresStore) PersistTrade(ctx context.Context, trade *TradeRecord) error {
	return ps.executeWithRetry(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO trades (
				trade_id, inbound_order_id, resting_order_id, symbol,
				price, quantity, executed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (trade_id) DO NOTHING
		`

		_, err := ps.db.ExecContext(ctx, query,
			trade.TradeID,
			int64(trade.InboundOrderID),
			int64(trade.RestingOrderID),
			trade.Symbol,
			trade.Price.String(),
			trade.Quantity.String(),
			trade.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert trade: %w", err)
		}
		return nil
	})
}

// UpsertOrder writes the order's current state.
func (ps *PostgresStore) UpsertOrder(ctx context.Context, order *models.Order) error {
	return ps.executeWithRetry(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO orders (
				order_id, client_id, symbol, side, type, time_in_force,
				price, stop_price, quantity, open_quantity, status, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
			ON CONFLICT (order_id) DO UPDATE SET
				price = EXCLUDED.price,
				quantity = EXCLUDED.quantity,
				open_quantity = EXCLUDED.open_quantity,
				status = EXCLUDED.status,
				updated_at = NOW()
		`

		_, err := ps.db.ExecContext(ctx, query,
			int64(order.ID),
			order.ClientID,
			order.Symbol,
			string(order.Side),
			string(order.Type),
			string(order.TimeInForce),
			order.Price.String(),
			order.StopPrice.String(),
			order.Quantity.String(),
			order.OpenQuantity.String(),
			string(order.Status),
			order.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert order: %w", err)
		}
		return nil
	})
}

// GetOrder retrieves an order by ID
func (ps *PostgresStore) GetOrder(ctx context.Context, orderID uint64) (*models.Order, error) {
	query := `
		SELECT order_id, client_id, symbol, side, type, time_in_force,
		       price, stop_price, quantity, open_quantity, status, created_at
		FROM orders
		WHERE order_id = $1
	`

	var order models.Order
	var id int64
	var priceStr, stopPriceStr, quantityStr, openQtyStr string
	var sideStr, typeStr, tifStr, statusStr string

	err := ps.db.QueryRowContext(ctx, query, int64(orderID)).Scan(
		&id,
		&order.ClientID,
		&order.Symbol,
		&sideStr,
		&typeStr,
		&tifStr,
		&priceStr,
		&stopPriceStr,
		&quantityStr,
		&openQtyStr,
		&statusStr,
		&order.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found: %d", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	order.ID = uint64(id)
	order.Price, err = decimal.NewFromString(priceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse price: %w", err)
	}
	order.StopPrice, err = decimal.NewFromString(stopPriceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stop price: %w", err)
	}
	order.Quantity, err = decimal.NewFromString(quantityStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse quantity: %w", err)
	}
	order.OpenQuantity, err = decimal.NewFromString(openQtyStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse open quantity: %w", err)
	}

	order.Side = models.OrderSide(sideStr)
	order.Type = models.OrderType(typeStr)
	order.TimeInForce = models.TimeInForce(tifStr)
	order.Status = models.OrderStatus(statusStr)

	return &order, nil
}

// GetTradesBySymbol retrieves recent trades for a symbol, newest first.
// Sorted by (executed_at DESC, trade_id DESC) so pagination stays stable
// when multiple trades share a timestamp.
func (ps *PostgresStore) GetTradesBySymbol(ctx context.Context, symbol string, limit, offset int) ([]*TradeRecord, error) {
	query := `
		SELECT trade_id, inbound_order_id, resting_order_id, symbol,
		       price, quantity, executed_at
		FROM trades
		WHERE symbol = $1
		ORDER BY executed_at DESC, trade_id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := ps.db.QueryContext(ctx, query, symbol, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	trades := make([]*TradeRecord, 0)

	for rows.Next() {
		var trade TradeRecord
		var inboundID, restingID int64
		var priceStr, quantityStr string

		err := rows.Scan(
			&trade.TradeID,
			&inboundID,
			&restingID,
			&trade.Symbol,
			&priceStr,
			&quantityStr,
			&trade.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}

		trade.InboundOrderID = uint64(inboundID)
		trade.RestingOrderID = uint64(restingID)

		trade.Price, err = decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse price: %w", err)
		}
		trade.Quantity, err = decimal.NewFromString(quantityStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse quantity: %w", err)
		}

		trades = append(trades, &trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return trades, nil
}

// GetOrdersByClientID retrieves all orders for a given client
func (ps *PostgresStore) GetOrdersByClientID(ctx context.Context, clientID string, limit int) ([]*models.Order, error) {
	query := `
		SELECT order_id, client_id, symbol, side, type, time_in_force,
		       price, stop_price, quantity, open_quantity, status, created_at
		FROM orders
		WHERE client_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := ps.db.QueryContext(ctx, query, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	orders := make([]*models.Order, 0)

	for rows.Next() {
		var order models.Order
		var id int64
		var priceStr, stopPriceStr, quantityStr, openQtyStr string
		var sideStr, typeStr, tifStr, statusStr string

		err := rows.Scan(
			&id,
			&order.ClientID,
			&order.Symbol,
			&sideStr,
			&typeStr,
			&tifStr,
			&priceStr,
			&stopPriceStr,
			&quantityStr,
			&openQtyStr,
			&statusStr,
			&order.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}

		order.ID = uint64(id)
		order.Price, _ = decimal.NewFromString(priceStr)
		order.StopPrice, _ = decimal.NewFromString(stopPriceStr)
		order.Quantity, _ = decimal.NewFromString(quantityStr)
		order.OpenQuantity, _ = decimal.NewFromString(openQtyStr)

		order.Side = models.OrderSide(sideStr)
		order.Type = models.OrderType(typeStr)
		order.TimeInForce = models.TimeInForce(tifStr)
		order.Status = models.OrderStatus(statusStr)

		orders = append(orders, &order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}

// GetOpenOrders retrieves every order still working on the book for a
// symbol, oldest first so re-insertion preserves time priority.
func (ps *PostgresStore) GetOpenOrders(ctx context.Context, symbol string) ([]*models.Order, error) {
	query := `
		SELECT order_id, client_id, symbol, side, type, time_in_force,
		       price, stop_price, quantity, open_quantity, status, created_at
		FROM orders
		WHERE symbol = $1 AND status IN ('accepted', 'partially_filled')
		ORDER BY created_at ASC, order_id ASC
	`

	rows, err := ps.db.QueryContext(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query open orders: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	orders := make([]*models.Order, 0)

	for rows.Next() {
		var order models.Order
		var id int64
		var priceStr, stopPriceStr, quantityStr, openQtyStr string
		var sideStr, typeStr, tifStr, statusStr string

		err := rows.Scan(
			&id,
			&order.ClientID,
			&order.Symbol,
			&sideStr,
			&typeStr,
			&tifStr,
			&priceStr,
			&stopPriceStr,
			&quantityStr,
			&openQtyStr,
			&statusStr,
			&order.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan open order: %w", err)
		}

		order.ID = uint64(id)
		order.Price, _ = decimal.NewFromString(priceStr)
		order.StopPrice, _ = decimal.NewFromString(stopPriceStr)
		order.Quantity, _ = decimal.NewFromString(quantityStr)
		order.OpenQuantity, _ = decimal.NewFromString(openQtyStr)

		order.Side = models.OrderSide(sideStr)
		order.Type = models.OrderType(typeStr)
		order.TimeInForce = models.TimeInForce(tifStr)
		order.Status = models.OrderStatus(statusStr)

		orders = append(orders, &order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating open orders: %w", err)
	}

	return orders, nil
}

// MaxOrderID returns the highest order id ever persisted, or zero for an
// empty table. Used to seed the id generator past recovered orders.
func (ps *PostgresStore) MaxOrderID(ctx context.Context) (uint64, error) {
	var maxID int64
	err := ps.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(order_id), 0) FROM orders`).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("failed to query max order id: %w", err)
	}
	return uint64(maxID), nil
}

// executeWithRetry executes a function with retry logic for transient errors
func (ps *PostgresStore) executeWithRetry(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= ps.maxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		if !ps.isRetryableError(err) {
			return err
		}

		if attempt < ps.maxRetries {
			// Exponential backoff
			delay := ps.retryDelay * time.Duration(1<<uint(attempt))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryableError determines if an error is transient and should be retried
func (ps *PostgresStore) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001": // serialization_failure
			return true
		case "40P01": // deadlock_detected
			return true
		case "08000", "08003", "08006": // connection_exception, connection_does_not_exist, connection_failure
			return true
		case "57P03": // cannot_connect_now
			return true
		}
	}

	return errors.Is(err, ErrDeadlock) ||
		errors.Is(err, ErrSerializationFailure) ||
		errors.Is(err, ErrConnectionFailure)
}
