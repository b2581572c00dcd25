package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gridcore/internal/domain"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "engine_state.db")
	store, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestLoadReturnsNilWhenNothingPersisted(t *testing.T) {
	store := openTestStore(t)
	state, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, state)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	since := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	in := State{
		SessionID:  "s20260101_120000",
		Regime:     domain.RegimeDefensive,
		StateSince: since,
		ConfigHash: "deadbeef",
		ConfigJSON: `{"symbol":"BTCUSDT"}`,
	}

	require.NoError(t, store.Save(ctx, in))

	out, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Equal(t, in.SessionID, out.SessionID)
	require.Equal(t, in.Regime, out.Regime)
	require.Equal(t, in.ConfigHash, out.ConfigHash)
	require.Equal(t, in.ConfigJSON, out.ConfigJSON)
	require.True(t, out.StateSince.Equal(since))
}

func TestSaveReplacesPriorRow(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := State{SessionID: "s1", Regime: domain.RegimeNormal, StateSince: time.Now(), ConfigHash: "aaa", ConfigJSON: "{}"}
	second := State{SessionID: "s2", Regime: domain.RegimeDamageControl, StateSince: time.Now(), ConfigHash: "bbb", ConfigJSON: "{}"}

	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	out, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "s2", out.SessionID)
	require.Equal(t, domain.RegimeDamageControl, out.Regime)
}
