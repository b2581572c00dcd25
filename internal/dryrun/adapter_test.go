package dryrun

import (
	"context"
	"testing"

	"gridcore/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestVenueAdapterCancelOrderCountsAndSucceeds(t *testing.T) {
	v := NewVenueAdapter(zap.NewNop())

	ok, err := v.CancelOrder("co-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.CancelOrder("co-2")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Contains(t, v.String(), "cancelled=2")
}

func TestVenueAdapterCancelAllOrdersReportsZero(t *testing.T) {
	v := NewVenueAdapter(zap.NewNop())

	n, err := v.CancelAllOrders("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestVenueAdapterPositionAndEmergencyActionsSucceed(t *testing.T) {
	v := NewVenueAdapter(zap.NewNop())

	require.NoError(t, v.ReduceTo(decimal.NewFromFloat(0.5)))
	require.NoError(t, v.ForcedReduce())
	require.NoError(t, v.PrepareReanchorOrExit())
	require.NoError(t, v.KillSwitch())
	require.NoError(t, v.EmergencyExit())
}

func TestOrderPlacerPlaceOrderCounts(t *testing.T) {
	v := NewVenueAdapter(zap.NewNop())
	p := NewOrderPlacer(zap.NewNop(), v)

	order := domain.GridOrder{
		Symbol:        "BTCUSDT",
		Side:          domain.SideBuy,
		Price:         decimal.NewFromInt(100),
		Qty:           decimal.NewFromFloat(0.01),
		ClientOrderID: "co-1",
	}

	require.NoError(t, p.PlaceOrder(context.Background(), order))
	require.NoError(t, p.PlaceOrder(context.Background(), order))
	assert.Equal(t, 2, p.PlacedCount())
}

func TestOrderPlacerCancelOrderDelegatesToVenue(t *testing.T) {
	v := NewVenueAdapter(zap.NewNop())
	p := NewOrderPlacer(zap.NewNop(), v)

	require.NoError(t, p.CancelOrder(context.Background(), "co-1"))
	assert.Contains(t, v.String(), "cancelled=1")
}
