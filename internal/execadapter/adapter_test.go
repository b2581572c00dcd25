package execadapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"gridcore/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTarget struct {
	cancelErr    error
	cancelCalls  int
	cancelAllN   int
	cancelAllErr error
}

func (f *fakeTarget) CancelOrder(orderID string) (bool, error) {
	f.cancelCalls++
	if f.cancelErr != nil {
		return false, f.cancelErr
	}
	return true, nil
}

func (f *fakeTarget) CancelAllOrders(symbol string) (int, error) {
	return f.cancelAllN, f.cancelAllErr
}

func (f *fakeTarget) ReduceTo(decimal.Decimal) error { return nil }
func (f *fakeTarget) ForcedReduce() error            { return nil }
func (f *fakeTarget) PrepareReanchorOrExit() error   { return nil }
func (f *fakeTarget) KillSwitch() error              { return nil }
func (f *fakeTarget) EmergencyExit() error           { return nil }

type fakePlacer struct {
	err   error
	calls int
}

func (f *fakePlacer) PlaceOrder(ctx context.Context, order domain.GridOrder) error {
	f.calls++
	return f.err
}

type fakeFaults struct {
	incremented int
	reset       int
}

func (f *fakeFaults) IncrementAPIFaultCount() { f.incremented++ }
func (f *fakeFaults) ResetAPIFaultCount()     { f.reset++ }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxRetries = 1
	cfg.BackoffMin = time.Millisecond
	cfg.BackoffMax = time.Millisecond
	cfg.CancelRatePerSecond = 1000
	cfg.CancelBurst = 1000
	return cfg
}

func TestCancelOrderSuccessResetsFaultCount(t *testing.T) {
	target := &fakeTarget{}
	faults := &fakeFaults{}
	a := New(target, faults, testConfig(), zap.NewNop())

	ok, err := a.CancelOrder("co-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, faults.reset)
	assert.Equal(t, 0, faults.incremented)
}

func TestCancelOrderExhaustionIncrementsFaultCount(t *testing.T) {
	target := &fakeTarget{cancelErr: errors.New("venue unavailable")}
	faults := &fakeFaults{}
	a := New(target, faults, testConfig(), zap.NewNop())

	ok, err := a.CancelOrder("co-1")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, faults.incremented)
	assert.Equal(t, 0, faults.reset)
	assert.Greater(t, target.cancelCalls, 1, "retry policy should have re-invoked the target")
}

func TestCancelAllOrdersDelegates(t *testing.T) {
	target := &fakeTarget{cancelAllN: 3}
	faults := &fakeFaults{}
	a := New(target, faults, testConfig(), zap.NewNop())

	n, err := a.CancelAllOrders("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, faults.reset)
}

func TestKillSwitchAndEmergencyExitBypassRetryButRecordOutcome(t *testing.T) {
	target := &fakeTarget{}
	faults := &fakeFaults{}
	a := New(target, faults, testConfig(), zap.NewNop())

	require.NoError(t, a.KillSwitch())
	require.NoError(t, a.EmergencyExit())
	assert.Equal(t, 2, faults.reset)
}

func TestPlacerAdapterPlaceAndCancel(t *testing.T) {
	target := &fakeTarget{}
	placer := &fakePlacer{}
	faults := &fakeFaults{}
	venue := New(target, faults, testConfig(), zap.NewNop())
	p := NewPlacer(placer, venue)

	order := domain.GridOrder{Symbol: "BTCUSDT", ClientOrderID: "co-1"}
	require.NoError(t, p.PlaceOrder(context.Background(), order))
	assert.Equal(t, 1, placer.calls)

	require.NoError(t, p.CancelOrder(context.Background(), "co-1"))
	assert.Equal(t, 1, target.cancelCalls)
}
