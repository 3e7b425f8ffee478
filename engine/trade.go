package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vaasu2002/order-matching-system/models"
)

// TradeExecution is the immutable record of one match: the official record
// of two orders trading. Created once per match, never mutated, appended to
// the book's pending-trade sequence for batch consumption.
//
// Price is always the resting order's price: the resting side is the
// price-maker.
type TradeExecution struct {
	TradeID      uuid.UUID
	InboundOrder *models.Order // the aggressing order that initiated the trade
	RestingOrder *models.Order // the passive order that was already in the book
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	Timestamp    time.Time
	InboundFlags models.FillFlags
	RestingFlags models.FillFlags
}

// newTradeExecution stamps a fresh trade record with fill-role and
// fill-completeness flags for both participants. quantity has already been
// bounded by both open quantities but not yet applied to either order.
func newTradeExecution(inbound, resting *models.Order, quantity, price decimal.Decimal) TradeExecution {
	inboundFlags := models.FillAggressive
	if inbound.OpenQuantity.Equal(quantity) {
		inboundFlags |= models.FillComplete
	} else {
		inboundFlags |= models.FillPartial
	}

	restingFlags := models.FillPassive
	if resting.OpenQuantity.Equal(quantity) {
		restingFlags |= models.FillComplete
	} else {
		restingFlags |= models.FillPartial
	}

	return TradeExecution{
		TradeID:      uuid.New(),
		InboundOrder: inbound,
		RestingOrder: resting,
		Quantity:     quantity,
		Price:        price,
		Timestamp:    time.Now(),
		InboundFlags: inboundFlags,
		RestingFlags: restingFlags,
	}
}

// InboundFilled reports whether the trade completed the aggressing order.
func (te TradeExecution) InboundFilled() bool {
	return te.InboundFlags&models.FillComplete != 0
}

// RestingFilled reports whether the trade completed the resting order.
func (te TradeExecution) RestingFilled() bool {
	return te.RestingFlags&models.FillComplete != 0
}
