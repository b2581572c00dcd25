package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gridcore/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		Timestamp:      time.Now(),
		SessionID:      "s20260730_000000",
		MarkPrice:      decimal.NewFromInt(85000),
		Regime:         domain.RegimeNormal,
		InventoryRatio: decimal.NewFromFloat(0.1),
		ConfigHash:     "deadbeef",
	}
}

func TestJournalWriteRequiresFields(t *testing.T) {
	dir := t.TempDir()
	j, err := NewFileJournal(dir, "audit.jsonl", nil, zap.NewNop())
	require.NoError(t, err)
	defer j.Close()

	err = j.Write(Event{Kind: KindStateChange, SessionID: "s1", Timestamp: time.Now()})
	require.Error(t, err, "state_change without FromState/ToState/Snapshot must be refused")
}

func TestJournalWriteAndReadBack(t *testing.T) {
	dir := t.TempDir()
	j, err := NewFileJournal(dir, "audit.jsonl", nil, zap.NewNop())
	require.NoError(t, err)

	snap := newTestSnapshot()
	evt := StateChange("s1", time.Now(), domain.RegimeNormal, domain.RegimeDefensive, "inventory_warn", snap)
	require.NoError(t, j.Write(evt))
	require.NoError(t, j.Close())

	f, err := os.Open(filepath.Join(dir, "audit.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &decoded))
	require.Equal(t, "state_change", decoded["type"])
	require.Equal(t, "normal", decoded["from"])
	require.Equal(t, "defensive", decoded["to"])
}

func TestNullJournalDiscardsEverything(t *testing.T) {
	j := NullJournal{}
	require.NoError(t, j.Write(Event{Kind: KindStateChange}))
	require.Equal(t, 0, j.EventCount())
}
