package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaasu2002/order-matching-system/models"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func limitOrder(id uint64, side models.OrderSide, price, qty int64) *models.Order {
	return models.NewOrder(id, "client1", "BTC-USD", side, models.OrderTypeLimit, d(price), d(qty))
}

func marketOrder(id uint64, side models.OrderSide, qty int64) *models.Order {
	return models.NewOrder(id, "client1", "BTC-USD", side, models.OrderTypeMarket, models.MarketPrice, d(qty))
}

func TestRejectInvalidOrders(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	cases := []struct {
		name  string
		order *models.Order
	}{
		{"wrong symbol", models.NewOrder(1, "c", "ETH-USD", models.OrderSideBuy, models.OrderTypeLimit, d(100), d(1))},
		{"zero quantity", models.NewOrder(2, "c", "BTC-USD", models.OrderSideBuy, models.OrderTypeLimit, d(100), d(0))},
		{"zero price limit", models.NewOrder(3, "c", "BTC-USD", models.OrderSideBuy, models.OrderTypeLimit, d(0), d(1))},
		{"zero stop price", models.NewStopOrder(4, "c", "BTC-USD", models.OrderSideBuy, models.OrderTypeStop, models.MarketPrice, d(0), d(1))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			filled := ob.AddOrder(tc.order, models.NoConditions)
			assert.False(t, filled)
			assert.Equal(t, models.OrderStatusRejected, tc.order.Status)
		})
	}

	stats := ob.Stats()
	assert.Equal(t, uint64(4), stats.TotalRejected)
	assert.Equal(t, uint64(0), stats.OrdersAdded)
	assert.Equal(t, 0, ob.Size(), "rejected orders must never touch book state")
}

func TestOpenQuantityExceedingTotalIsRejected(t *testing.T) {
	ob := NewOrderBook("BTC-USD")
	order := limitOrder(1, models.OrderSideBuy, 100, 5)
	order.OpenQuantity = d(6)

	assert.False(t, ob.AddOrder(order, models.NoConditions))
	assert.Equal(t, models.OrderStatusRejected, order.Status)
}

func TestLimitOrderRestsWhenNotCrossing(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	buy := limitOrder(1, models.OrderSideBuy, 100, 10)
	filled := ob.AddOrder(buy, models.NoConditions)

	assert.False(t, filled)
	assert.Equal(t, models.OrderStatusAccepted, buy.Status)
	assert.Equal(t, 1, ob.Size())
	require.NotNil(t, ob.BestBid())
	assert.True(t, ob.BestBid().Equal(d(100)))
}

// Scenario from the book contract: bids [(100, 10 A), (99, 5 B)], A first.
// Incoming market sell 12 takes A fully at 100 then 2 from B at 99.
func TestMarketSellSweepsBidLevels(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	orderA := limitOrder(1, models.OrderSideBuy, 100, 10)
	orderB := limitOrder(2, models.OrderSideBuy, 99, 5)
	ob.AddOrder(orderA, models.NoConditions)
	ob.AddOrder(orderB, models.NoConditions)

	seller := marketOrder(3, models.OrderSideSell, 12)
	filled := ob.AddOrder(seller, models.NoConditions)
	assert.True(t, filled)

	trades := ob.DrainPendingTrades()
	require.Len(t, trades, 2)

	assert.Equal(t, uint64(1), trades[0].RestingOrder.ID)
	assert.True(t, trades[0].Quantity.Equal(d(10)))
	assert.True(t, trades[0].Price.Equal(d(100)), "execution price is the resting order's price")

	assert.Equal(t, uint64(2), trades[1].RestingOrder.ID)
	assert.True(t, trades[1].Quantity.Equal(d(2)))
	assert.True(t, trades[1].Price.Equal(d(99)))

	assert.Equal(t, models.OrderStatusFilled, orderA.Status)
	assert.Equal(t, models.OrderStatusPartiallyFilled, orderB.Status)
	assert.True(t, orderB.OpenQuantity.Equal(d(3)))
	assert.Equal(t, models.OrderStatusFilled, seller.Status)
}

// Market order against an empty opposite side: no trades, the order is
// cancelled with its open quantity intact.
func TestMarketBuyAgainstEmptyBook(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	buyer := marketOrder(1, models.OrderSideBuy, 5)
	filled := ob.AddOrder(buyer, models.NoConditions)

	assert.False(t, filled)
	assert.Equal(t, models.OrderStatusCancelled, buyer.Status)
	assert.True(t, buyer.OpenQuantity.Equal(d(5)))
	assert.Equal(t, uint64(0), ob.Stats().TotalTrades)
	assert.Empty(t, ob.DrainPendingTrades())
}

// Market orders never rest: a partially filled market order ends CANCELLED.
func TestMarketOrderNeverRests(t *testing.T) {
	ob := NewOrderBook("BTC-USD")
	ob.AddOrder(limitOrder(1, models.OrderSideSell, 101, 3), models.NoConditions)

	buyer := marketOrder(2, models.OrderSideBuy, 10)
	filled := ob.AddOrder(buyer, models.NoConditions)

	assert.True(t, filled)
	assert.Equal(t, models.OrderStatusCancelled, buyer.Status)
	assert.True(t, buyer.OpenQuantity.Equal(d(7)))
	assert.Equal(t, 0, ob.Size())
}

func TestPricePriority(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	// Worse price inserted first; the better-priced order must match first
	// regardless of insertion order.
	worse := limitOrder(1, models.OrderSideSell, 105, 5)
	better := limitOrder(2, models.OrderSideSell, 103, 5)
	ob.AddOrder(worse, models.NoConditions)
	ob.AddOrder(better, models.NoConditions)

	ob.AddOrder(marketOrder(3, models.OrderSideBuy, 5), models.NoConditions)

	assert.Equal(t, models.OrderStatusFilled, better.Status)
	assert.Equal(t, models.OrderStatusAccepted, worse.Status)
	assert.True(t, worse.OpenQuantity.Equal(d(5)))
}

func TestTimePriority(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	first := limitOrder(1, models.OrderSideSell, 103, 5)
	second := limitOrder(2, models.OrderSideSell, 103, 5)
	ob.AddOrder(first, models.NoConditions)
	ob.AddOrder(second, models.NoConditions)

	// 7 lots: the earlier order is fully exhausted before the later one
	// receives any fill.
	ob.AddOrder(marketOrder(3, models.OrderSideBuy, 7), models.NoConditions)

	assert.Equal(t, models.OrderStatusFilled, first.Status)
	assert.Equal(t, models.OrderStatusPartiallyFilled, second.Status)
	assert.True(t, second.OpenQuantity.Equal(d(3)))
}

func TestQuantityConservation(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	resting := limitOrder(1, models.OrderSideSell, 103, 8)
	ob.AddOrder(resting, models.NoConditions)

	inbound := limitOrder(2, models.OrderSideBuy, 103, 5)
	inboundBefore := inbound.OpenQuantity
	restingBefore := resting.OpenQuantity

	ob.AddOrder(inbound, models.NoConditions)

	trades := ob.DrainPendingTrades()
	require.Len(t, trades, 1)
	matched := trades[0].Quantity

	assert.True(t, inboundBefore.Sub(inbound.OpenQuantity).Equal(matched))
	assert.True(t, restingBefore.Sub(resting.OpenQuantity).Equal(matched))
}

func TestLimitOrderMatchesThenRestsRemainder(t *testing.T) {
	ob := NewOrderBook("BTC-USD")
	ob.AddOrder(limitOrder(1, models.OrderSideSell, 103, 4), models.NoConditions)
	ob.AddOrder(limitOrder(2, models.OrderSideSell, 106, 4), models.NoConditions)

	buy := limitOrder(3, models.OrderSideBuy, 105, 10)
	filled := ob.AddOrder(buy, models.NoConditions)

	assert.True(t, filled)
	assert.Equal(t, models.OrderStatusPartiallyFilled, buy.Status)
	assert.True(t, buy.OpenQuantity.Equal(d(6)))

	// The remainder rests at its limit, not at the matched price.
	require.NotNil(t, ob.BestBid())
	assert.True(t, ob.BestBid().Equal(d(105)))
	// The 106 ask was never crossed.
	require.NotNil(t, ob.BestAsk())
	assert.True(t, ob.BestAsk().Equal(d(106)))
}

func TestCancelOrder(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	first := limitOrder(1, models.OrderSideBuy, 100, 10)
	second := limitOrder(2, models.OrderSideBuy, 100, 5)
	ob.AddOrder(first, models.NoConditions)
	ob.AddOrder(second, models.NoConditions)

	require.True(t, ob.CancelOrder(1))

	assert.Equal(t, models.OrderStatusCancelled, first.Status)
	assert.Equal(t, 1, ob.Size())
	// The level keeps the second order.
	require.NotNil(t, ob.BestBid())
	assert.True(t, ob.BestBid().Equal(d(100)))

	bids, _ := ob.DepthSnapshot()
	require.Len(t, bids, 1)
	assert.True(t, bids[0].Quantity.Equal(d(5)))
	assert.Equal(t, 1, bids[0].OrderCount)
}

func TestCancelUnknownOrder(t *testing.T) {
	ob := NewOrderBook("BTC-USD")
	ob.AddOrder(limitOrder(1, models.OrderSideBuy, 100, 10), models.NoConditions)

	statsBefore := ob.Stats()
	assert.False(t, ob.CancelOrder(999))
	assert.Equal(t, statsBefore, ob.Stats())
	assert.Equal(t, 1, ob.Size())
}

func TestCancelStopOrderBeforeTrigger(t *testing.T) {
	ob := NewOrderBook("BTC-USD")
	stop := models.NewStopOrder(1, "c", "BTC-USD", models.OrderSideBuy,
		models.OrderTypeStop, models.MarketPrice, d(105), d(5))
	ob.AddOrder(stop, models.NoConditions)

	assert.True(t, ob.CancelOrder(1))
	assert.Equal(t, models.OrderStatusCancelled, stop.Status)
}

func TestImmediateOrCancelCancelsRemainder(t *testing.T) {
	ob := NewOrderBook("BTC-USD")
	ob.AddOrder(limitOrder(1, models.OrderSideSell, 103, 5), models.NoConditions)

	ioc := limitOrder(2, models.OrderSideBuy, 103, 8)
	ioc.TimeInForce = models.TimeInForceIOC
	filled := ob.AddOrder(ioc, models.NoConditions)

	assert.True(t, filled)
	assert.Equal(t, models.OrderStatusCancelled, ioc.Status)
	assert.True(t, ioc.OpenQuantity.Equal(d(3)))
	assert.Equal(t, 0, ob.Size(), "IOC remainder must not rest")
}

func TestFillOrKillExecutesOnlyWhenFullySatisfiable(t *testing.T) {
	ob := NewOrderBook("BTC-USD")
	resting := limitOrder(1, models.OrderSideSell, 103, 5)
	ob.AddOrder(resting, models.NoConditions)

	// Cannot be fully satisfied: killed with no fills.
	fok := limitOrder(2, models.OrderSideBuy, 103, 10)
	fok.TimeInForce = models.TimeInForceFOK
	assert.False(t, ob.AddOrder(fok, models.NoConditions))
	assert.Equal(t, models.OrderStatusCancelled, fok.Status)
	assert.True(t, fok.OpenQuantity.Equal(d(10)))
	assert.True(t, resting.OpenQuantity.Equal(d(5)), "a killed FOK must leave the book untouched")

	// Fully satisfiable: executes.
	fok2 := limitOrder(3, models.OrderSideBuy, 103, 5)
	fok2.TimeInForce = models.TimeInForceFOK
	assert.True(t, ob.AddOrder(fok2, models.NoConditions))
	assert.Equal(t, models.OrderStatusFilled, fok2.Status)
}

func TestAllOrNoneSkipsSmallCandidates(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	big := limitOrder(1, models.OrderSideSell, 101, 10)
	ob.AddOrder(big, models.NoConditions)

	aon := limitOrder(2, models.OrderSideBuy, 101, 5)
	assert.True(t, ob.AddOrder(aon, models.ConditionAON))
	assert.Equal(t, models.OrderStatusFilled, aon.Status)
	assert.True(t, big.OpenQuantity.Equal(d(5)))
}

func TestAllOrNoneBudgetConsumedBySkippedCandidates(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	small := limitOrder(1, models.OrderSideSell, 101, 3)
	large := limitOrder(2, models.OrderSideSell, 101, 10)
	ob.AddOrder(small, models.NoConditions)
	ob.AddOrder(large, models.NoConditions)

	// The plan offers (small, 3) then (large, 2): the quantity budget is
	// spent on the skipped small candidate, so the large order's entry
	// cannot cover the full 5 either and nothing executes.
	aon := limitOrder(3, models.OrderSideBuy, 101, 5)
	filled := ob.AddOrder(aon, models.ConditionAON)
	assert.False(t, filled)
	assert.Equal(t, uint64(0), ob.Stats().TotalTrades)
	assert.True(t, small.OpenQuantity.Equal(d(3)))
	assert.True(t, large.OpenQuantity.Equal(d(10)))
	assert.Equal(t, models.OrderStatusAccepted, small.Status)
	assert.Equal(t, models.OrderStatusAccepted, large.Status)
	assert.True(t, aon.OpenQuantity.Equal(d(5)))
}

func TestStopOrderQueuesUntilTriggered(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	ob.AddOrder(limitOrder(1, models.OrderSideSell, 101, 10), models.NoConditions)

	stop := models.NewStopOrder(2, "c", "BTC-USD", models.OrderSideBuy,
		models.OrderTypeStop, models.MarketPrice, d(100), d(4))
	filled := ob.AddOrder(stop, models.NoConditions)
	assert.False(t, filled)
	assert.Equal(t, models.OrderStatusAccepted, stop.Status)
	assert.Equal(t, uint64(0), ob.Stats().TotalTrades)

	// A trade at 100 moves the market price to the trigger; the stop
	// re-enters as a market buy and lifts the 101 ask.
	ob.AddOrder(limitOrder(3, models.OrderSideBuy, 100, 2), models.NoConditions)
	ob.AddOrder(limitOrder(4, models.OrderSideSell, 100, 2), models.NoConditions)

	assert.Equal(t, models.OrderStatusFilled, stop.Status)
	assert.Equal(t, uint64(2), ob.Stats().TotalTrades)

	trades := ob.DrainPendingTrades()
	require.Len(t, trades, 2)
	assert.True(t, trades[1].Price.Equal(d(101)))
	assert.True(t, trades[1].Quantity.Equal(d(4)))
}

func TestStopLimitTriggersAsLimit(t *testing.T) {
	ob := NewOrderBook("BTC-USD")
	ob.AddOrder(limitOrder(1, models.OrderSideBuy, 97, 5), models.NoConditions)

	// Stop-sell at 98, limit 96: triggered when the market trades at or
	// below 98, then matches as a limit order.
	stop := models.NewStopOrder(2, "c", "BTC-USD", models.OrderSideSell,
		models.OrderTypeStopLimit, d(96), d(98), d(3))
	ob.AddOrder(stop, models.NoConditions)
	assert.Equal(t, uint64(0), ob.Stats().TotalTrades)

	ob.SetMarketPrice(d(98))

	assert.Equal(t, models.OrderStatusFilled, stop.Status)
	trades := ob.DrainPendingTrades()
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(d(97)))
}

func TestStopOrderKeepsConditionsOnTrigger(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	small := limitOrder(1, models.OrderSideSell, 101, 2)
	ob.AddOrder(small, models.NoConditions)

	// An all-or-none stop buy of 5 must not partially consume the 2-lot
	// ask when it triggers: the condition given at submission still binds
	// the triggered match.
	stop := models.NewStopOrder(2, "c", "BTC-USD", models.OrderSideBuy,
		models.OrderTypeStop, models.MarketPrice, d(100), d(5))
	assert.False(t, ob.AddOrder(stop, models.ConditionAON))
	assert.Equal(t, uint64(0), ob.Stats().TotalTrades)

	ob.SetMarketPrice(d(100))

	assert.Equal(t, uint64(0), ob.Stats().TotalTrades)
	assert.True(t, small.OpenQuantity.Equal(d(2)))
	assert.Equal(t, models.OrderStatusAccepted, small.Status)
	// The unfillable remainder of a triggered stop is cancelled, never
	// rested.
	assert.Equal(t, models.OrderStatusCancelled, stop.Status)
}

func TestTakeTradesForFiltersByInboundOrder(t *testing.T) {
	ob := NewOrderBook("BTC-USD")
	ob.AddOrder(limitOrder(1, models.OrderSideSell, 101, 5), models.NoConditions)
	ob.AddOrder(limitOrder(2, models.OrderSideSell, 102, 5), models.NoConditions)

	ob.AddOrder(limitOrder(3, models.OrderSideBuy, 101, 2), models.NoConditions)
	ob.AddOrder(limitOrder(4, models.OrderSideBuy, 102, 2), models.NoConditions)

	mine := ob.TakeTradesFor(3)
	require.Len(t, mine, 1)
	assert.Equal(t, uint64(3), mine[0].InboundOrder.ID)

	// The other submitter's trade stays queued.
	rest := ob.DrainPendingTrades()
	require.Len(t, rest, 1)
	assert.Equal(t, uint64(4), rest[0].InboundOrder.ID)
}

type bboRecorder struct {
	NoopBookListener
	calls int
	bid   *decimal.Decimal
	ask   *decimal.Decimal
}

func (r *bboRecorder) OnBBOChange(_ *OrderBook, bid, ask *decimal.Decimal) {
	r.calls++
	r.bid = bid
	r.ask = ask
}

func TestBBOChangeReportsEmptySideAsNil(t *testing.T) {
	ob := NewOrderBook("BTC-USD")
	recorder := &bboRecorder{}
	ob.AddBookListener(recorder)

	ob.AddOrder(limitOrder(1, models.OrderSideBuy, 100, 5), models.NoConditions)
	require.Equal(t, 1, recorder.calls)
	require.NotNil(t, recorder.bid)
	assert.True(t, recorder.bid.Equal(d(100)))
	assert.Nil(t, recorder.ask, "an empty ask side must be reported as absent")

	ob.AddOrder(limitOrder(2, models.OrderSideSell, 105, 5), models.NoConditions)
	require.NotNil(t, recorder.ask)
	assert.True(t, recorder.ask.Equal(d(105)))

	ob.CancelOrder(1)
	assert.Nil(t, recorder.bid)
}

func TestRestoreOrderRebuildsBookWithoutMatching(t *testing.T) {
	ob := NewOrderBook("BTC-USD")
	recorder := &lifecycleRecorder{}
	ob.AddOrderListener(recorder)

	ask := limitOrder(1, models.OrderSideSell, 101, 3)
	ask.Status = models.OrderStatusAccepted
	require.True(t, ob.RestoreOrder(ask))

	partial := limitOrder(2, models.OrderSideBuy, 100, 5)
	partial.OpenQuantity = d(2)
	partial.Status = models.OrderStatusPartiallyFilled
	require.True(t, ob.RestoreOrder(partial))

	// A crossing order is placed directly, not re-matched: the fills it
	// represents already happened before the restart.
	crossing := limitOrder(3, models.OrderSideBuy, 102, 1)
	crossing.Status = models.OrderStatusAccepted
	require.True(t, ob.RestoreOrder(crossing))

	assert.Equal(t, 3, ob.Size())
	assert.Equal(t, uint64(0), ob.Stats().TotalTrades)
	assert.Equal(t, models.OrderStatusPartiallyFilled, partial.Status)
	assert.Zero(t, recorder.accepts, "restore must not fire lifecycle listeners")

	terminal := limitOrder(4, models.OrderSideBuy, 99, 1)
	terminal.Status = models.OrderStatusFilled
	assert.False(t, ob.RestoreOrder(terminal))
	assert.False(t, ob.RestoreOrder(marketOrder(5, models.OrderSideBuy, 1)))
	assert.Equal(t, 3, ob.Size())
}

func TestReplaceSizeDownKeepsPriority(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	first := limitOrder(1, models.OrderSideSell, 103, 10)
	second := limitOrder(2, models.OrderSideSell, 103, 10)
	ob.AddOrder(first, models.NoConditions)
	ob.AddOrder(second, models.NoConditions)

	require.True(t, ob.ReplaceOrder(1, models.PriceUnchanged, d(4)))
	assert.True(t, first.OpenQuantity.Equal(d(4)))
	assert.Equal(t, uint64(1), ob.Stats().OrdersReplaced)

	// Priority preserved: the resized order still fills first.
	ob.AddOrder(marketOrder(3, models.OrderSideBuy, 4), models.NoConditions)
	assert.Equal(t, models.OrderStatusFilled, first.Status)
	assert.True(t, second.OpenQuantity.Equal(d(10)))
}

func TestReplacePriceChangeReentersMatching(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	ob.AddOrder(limitOrder(1, models.OrderSideSell, 105, 5), models.NoConditions)
	buy := limitOrder(2, models.OrderSideBuy, 100, 5)
	ob.AddOrder(buy, models.NoConditions)

	// Repricing the bid to 105 crosses the ask and trades immediately.
	require.True(t, ob.ReplaceOrder(2, d(105), models.SizeUnchanged))
	assert.Equal(t, models.OrderStatusReplaced, buy.Status)
	assert.Equal(t, uint64(1), ob.Stats().TotalTrades)
	assert.Equal(t, 0, ob.Size())
}

type lifecycleRecorder struct {
	NoopOrderListener
	accepts  int
	orderIDs []uint64
	reasons  []string
}

func (r *lifecycleRecorder) OnAccept(*models.Order) {
	r.accepts++
}

func (r *lifecycleRecorder) OnReplaceReject(order *models.Order, reason string) {
	r.orderIDs = append(r.orderIDs, order.ID)
	r.reasons = append(r.reasons, reason)
}

func TestReplaceUnknownAndInvalid(t *testing.T) {
	ob := NewOrderBook("BTC-USD")
	recorder := &lifecycleRecorder{}
	ob.AddOrderListener(recorder)

	assert.False(t, ob.ReplaceOrder(999, d(100), d(5)))
	require.Len(t, recorder.reasons, 1)
	assert.Equal(t, uint64(999), recorder.orderIDs[0])
	assert.Equal(t, "unknown order id", recorder.reasons[0])

	order := limitOrder(1, models.OrderSideBuy, 100, 5)
	ob.AddOrder(order, models.NoConditions)
	// Shrinking below zero open quantity is rejected.
	assert.False(t, ob.ReplaceOrder(1, models.PriceUnchanged, d(0)))
	assert.Equal(t, models.OrderStatusAccepted, order.Status)
	require.Len(t, recorder.reasons, 2)
	assert.Equal(t, uint64(1), recorder.orderIDs[1])
	assert.Equal(t, "invalid replace parameters", recorder.reasons[1])
}

func TestStatsCounters(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	ob.AddOrder(limitOrder(1, models.OrderSideSell, 103, 5), models.NoConditions)
	ob.AddOrder(limitOrder(2, models.OrderSideBuy, 103, 3), models.NoConditions)
	ob.CancelOrder(1)

	stats := ob.Stats()
	assert.Equal(t, uint64(2), stats.OrdersAdded)
	assert.Equal(t, uint64(1), stats.OrdersCancelled)
	assert.Equal(t, uint64(1), stats.TotalTrades)
	assert.True(t, stats.TotalVolume.Equal(d(3)))

	ob.stats.Reset()
	assert.Equal(t, uint64(0), ob.Stats().TotalTrades)
	assert.True(t, ob.Stats().TotalVolume.IsZero())
}

func TestMarketStateFollowsTrades(t *testing.T) {
	ob := NewOrderBook("BTC-USD")
	ob.AddOrder(limitOrder(1, models.OrderSideSell, 103, 5), models.NoConditions)
	ob.AddOrder(limitOrder(2, models.OrderSideBuy, 103, 2), models.NoConditions)

	price, qty := ob.LastTrade()
	assert.True(t, price.Equal(d(103)))
	assert.True(t, qty.Equal(d(2)))
	assert.True(t, ob.MarketPrice().Equal(d(103)))
}

func TestDrainPendingTrades(t *testing.T) {
	ob := NewOrderBook("BTC-USD")
	ob.AddOrder(limitOrder(1, models.OrderSideSell, 103, 5), models.NoConditions)
	ob.AddOrder(limitOrder(2, models.OrderSideBuy, 103, 5), models.NoConditions)

	trades := ob.DrainPendingTrades()
	require.Len(t, trades, 1)
	assert.True(t, trades[0].InboundFilled())
	assert.True(t, trades[0].RestingFilled())

	assert.Nil(t, ob.DrainPendingTrades(), "drained batch must not be returned twice")
}
