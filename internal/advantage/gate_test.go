package advantage

import (
	"testing"
	"time"

	"gridcore/internal/audit"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestStubAlwaysValidAndReportsOuterRange(t *testing.T) {
	s := NewStub("s1", audit.NullJournal{}, func() string { return "hash" }, decimal.NewFromInt(80000), decimal.NewFromInt(90000))
	require.True(t, s.OpportunityValid())
	zone := s.CoreZone()
	require.True(t, zone.Low.Equal(decimal.NewFromInt(80000)))
	require.True(t, zone.High.Equal(decimal.NewFromInt(90000)))
}

func TestStubOnControlLoopWritesParamUpdate(t *testing.T) {
	s := NewStub("s1", audit.NullJournal{}, func() string { return "hash" }, decimal.NewFromInt(80000), decimal.NewFromInt(90000))
	s.OnControlLoop(time.Now())
	require.Equal(t, 1, s.controlLoopN)
}

func TestFullFallsBackToOuterRangeBeforeFillHistory(t *testing.T) {
	f := NewFull("s1", audit.NullJournal{}, func() string { return "hash" }, decimal.NewFromInt(80000), decimal.NewFromInt(90000))
	zone := f.CoreZone()
	require.True(t, zone.Low.Equal(decimal.NewFromInt(80000)))
	require.True(t, zone.High.Equal(decimal.NewFromInt(90000)))
}

func TestFullCoreZoneNarrowsAroundDenseFills(t *testing.T) {
	f := NewFull("s1", audit.NullJournal{}, func() string { return "hash" }, decimal.NewFromInt(80000), decimal.NewFromInt(90000))
	now := time.Now()
	for i := 0; i < 20; i++ {
		f.RecordFill(now, decimal.NewFromInt(85000), decimal.NewFromInt(1), "buy")
	}
	f.UpdateState(decimal.NewFromInt(85000), decimal.NewFromFloat(0.1), decimal.NewFromInt(85000))
	f.OnControlLoop(now)

	zone := f.CoreZone()
	require.True(t, zone.Low.GreaterThanOrEqual(decimal.NewFromInt(80000)))
	require.True(t, zone.High.LessThanOrEqual(decimal.NewFromInt(90000)))
	require.True(t, zone.High.Sub(zone.Low).LessThan(decimal.NewFromInt(10000)), "zone should be narrower than the outer range")
}

func TestOpportunityWindowNeutralDefaultsWithNoHistory(t *testing.T) {
	w := NewOpportunityWindow()
	require.Equal(t, 0.5, w.Score())
	require.True(t, w.IsValid())
}

var _ Gate = (*Stub)(nil)
var _ Gate = (*Full)(nil)
