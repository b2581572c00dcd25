package advantage

import (
	"testing"
	"time"

	"gridcore/internal/audit"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineStartsOnStubAndReportsOuterRange(t *testing.T) {
	e := NewEngine("s1", audit.NullJournal{}, func() string { return "abc" },
		decimal.NewFromInt(90), decimal.NewFromInt(110))

	require.True(t, e.OpportunityValid())
	zone := e.CoreZone()
	assert.True(t, zone.Low.Equal(decimal.NewFromInt(90)))
	assert.True(t, zone.High.Equal(decimal.NewFromInt(110)))
}

func TestEnginePromotesToFullAfterFillAndControlTick(t *testing.T) {
	e := NewEngine("s1", audit.NullJournal{}, func() string { return "abc" },
		decimal.NewFromInt(90), decimal.NewFromInt(110))

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e.OnControlLoop(now)
	require.False(t, e.promoted, "must not promote before any fill is recorded")

	e.RecordFill(now, decimal.NewFromInt(100), decimal.NewFromInt(1), "buy")
	e.OnControlLoop(now.Add(time.Minute))

	require.True(t, e.promoted)
}

func TestEngineWritesParamUpdateOnPromotion(t *testing.T) {
	path := t.TempDir()
	journal, err := audit.NewFileJournal(path, "events.jsonl", nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })

	e := NewEngine("s1", journal, func() string { return "abc" },
		decimal.NewFromInt(90), decimal.NewFromInt(110))

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e.RecordFill(now, decimal.NewFromInt(100), decimal.NewFromInt(1), "buy")
	e.OnControlLoop(now)

	require.NoError(t, journal.Flush())
	// one param_update from the stub's own control tick, one for the promotion
	assert.Equal(t, 2, journal.EventCount())
}
