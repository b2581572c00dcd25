package eventloop

import (
	"context"
	"testing"
	"time"

	"gridcore/internal/advantage"
	"gridcore/internal/derisk"
	"gridcore/internal/domain"
	"gridcore/internal/gridgen"
	"gridcore/internal/ordermgr"
	"gridcore/internal/riskengine"
	"gridcore/internal/skew"
	"gridcore/internal/statemachine"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeOrderActuator struct{}

func (fakeOrderActuator) SetMode(domain.OrderMode)                                 {}
func (fakeOrderActuator) RiskyBuyOrderIDs(lo, hi decimal.Decimal) []string          { return nil }
func (fakeOrderActuator) NonReduceOnlyOrderIDs() []string                          { return nil }
func (fakeOrderActuator) AllOrderIDs() []string                                    { return nil }
func (fakeOrderActuator) UnregisterOrder(string)                                   {}

type fakeExecutionAdapter struct{}

func (fakeExecutionAdapter) CancelOrder(string) (bool, error)          { return true, nil }
func (fakeExecutionAdapter) CancelAllOrders(string) (int, error)       { return 0, nil }

type fakeManager struct {
	active []domain.GridOrder
	placed []domain.GridOrder
}

func (m *fakeManager) SyncOrders(desired, current []domain.GridOrder, ts time.Time) ordermgr.SyncResult {
	return ordermgr.SyncResult{ToPlace: desired}
}

func (m *fakeManager) GetActiveOrders() []domain.GridOrder { return m.active }
func (m *fakeManager) UpdateATR(decimal.Decimal)           {}

type fakeExecutor struct {
	placed    []domain.GridOrder
	cancelled []string
}

func (e *fakeExecutor) PlaceOrder(ctx context.Context, order domain.GridOrder) error {
	e.placed = append(e.placed, order)
	return nil
}

func (e *fakeExecutor) CancelOrder(ctx context.Context, clientOrderID string) error {
	e.cancelled = append(e.cancelled, clientOrderID)
	return nil
}

func newTestLoop(t *testing.T) (*Loop, *fakeExecutor) {
	t.Helper()
	logger := zap.NewNop()

	machine := statemachine.New("sess-1", nil, logger, fakeOrderActuator{}, fakeExecutionAdapter{}, domain.RegimeNormal)
	riskEng := riskengine.NewEngine(nil, nil, nil, nil, nil, machine.CurrentRegime)
	generator := gridgen.New(gridgen.DefaultConfig("BTCUSDT", decimal.NewFromFloat(0.01)))
	skewEng := skew.New(skew.DefaultConfig())
	deriskEng := derisk.New(derisk.DefaultConfig())
	mgr := &fakeManager{}
	exec := &fakeExecutor{}
	gate := advantage.NewStub("sess-1", nil, func() string { return "deadbeef" },
		decimal.NewFromInt(50), decimal.NewFromInt(150))

	loop := New("sess-1", "BTCUSDT", machine, riskEng, generator, skewEng, deriskEng, gate, mgr, exec, logger)
	return loop, exec
}

func baseMarketData(ts time.Time) MarketData {
	return MarketData{
		Timestamp:  ts,
		MarkPrice:  decimal.NewFromInt(100),
		LastPrice:  decimal.NewFromInt(100),
		ATR:        decimal.NewFromFloat(1),
		OuterRange: domain.PriceRange{Low: decimal.NewFromInt(50), High: decimal.NewFromInt(150)},
	}
}

func baseAccountData() AccountData {
	return AccountData{
		InventoryRatio: decimal.Zero,
		PositionQty:    decimal.Zero,
		BreakevenPrice: decimal.NewFromInt(100),
		Equity:         decimal.NewFromInt(1000),
		InitialEquity:  decimal.NewFromInt(1000),
		MarginUsage:    decimal.NewFromFloat(0.1),
	}
}

func TestOnTickGeneratesAndPlacesLadder(t *testing.T) {
	loop, exec := newTestLoop(t)
	err := loop.OnTick(context.Background(), baseMarketData(time.Now()), baseAccountData())
	require.NoError(t, err)
	require.NotEmpty(t, exec.placed)
}

func TestOnTickNoPlacementsInEmergencyStop(t *testing.T) {
	loop, exec := newTestLoop(t)
	ts := time.Now()

	ok := loop.machine.TransitionTo(domain.RegimeEmergencyStop, "test", ts, &domain.Snapshot{Timestamp: ts, SessionID: "sess-1"})
	require.True(t, ok)

	err := loop.OnTick(context.Background(), baseMarketData(ts), baseAccountData())
	require.NoError(t, err)
	require.Empty(t, exec.placed)
}

func TestOnTickTriggersVoluntaryReduceOnHouseMoney(t *testing.T) {
	loop, _ := newTestLoop(t)
	acc := baseAccountData()
	acc.Equity = decimal.NewFromInt(1060) // 6% profit

	err := loop.OnTick(context.Background(), baseMarketData(time.Now()), acc)
	require.NoError(t, err)
	require.True(t, loop.deriskEng.IsConservativeMode())
}

func TestOnControlTickAdvancesGateWithoutPanicking(t *testing.T) {
	loop, _ := newTestLoop(t)
	require.NotPanics(t, func() {
		loop.OnControlTick(time.Now())
	})
}

func TestOnFillIgnoredByStubGate(t *testing.T) {
	loop, _ := newTestLoop(t)
	require.NotPanics(t, func() {
		loop.OnFill(time.Now(), decimal.NewFromInt(100), decimal.NewFromFloat(0.01), "buy")
	})
}

func TestOnTickTracksOpportunityValidDuration(t *testing.T) {
	loop, _ := newTestLoop(t)
	t0 := time.Now()
	require.NoError(t, loop.OnTick(context.Background(), baseMarketData(t0), baseAccountData()))
	require.Zero(t, loop.opportunityValidMinutes(t0))

	t1 := t0.Add(5 * time.Minute)
	require.NoError(t, loop.OnTick(context.Background(), baseMarketData(t1), baseAccountData()))
	require.Equal(t, 5, loop.opportunityValidMinutes(t1))
}
