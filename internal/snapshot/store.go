// Package snapshot persists the engine's last-decided regime and its
// active config snapshot to a local SQLite file, so a restarted engine
// can recover its last state without replaying the full audit journal.
package snapshot

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"gridcore/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

// State is the warm-restart record: the last-decided regime plus the
// config snapshot active when it was written.
type State struct {
	SessionID    string
	Regime       domain.Regime
	StateSince   time.Time
	ConfigHash   string
	ConfigJSON   string
	UpdatedAtUTC time.Time
}

// Store persists and recovers a single State row.
type Store struct {
	db *sql.DB
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS engine_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	session_id TEXT NOT NULL,
	regime TEXT NOT NULL,
	state_since INTEGER NOT NULL,
	config_hash TEXT NOT NULL,
	config_json TEXT NOT NULL,
	checksum BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);`

// Open opens (creating if needed) the SQLite file at dbPath, enables
// WAL mode for crash recovery, and ensures the schema exists.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping snapshot db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("create engine_state table: %w", err)
	}

	return &Store{db: db}, nil
}

// Save writes the current state, replacing any prior row, inside a
// serializable transaction with a checksum computed over the
// marshaled payload so a later Load can detect corruption.
func (s *Store) Save(ctx context.Context, state State) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	payload := struct {
		SessionID  string
		Regime     domain.Regime
		StateSince int64
		ConfigHash string
		ConfigJSON string
	}{
		SessionID:  state.SessionID,
		Regime:     state.Regime,
		StateSince: state.StateSince.UnixNano(),
		ConfigHash: state.ConfigHash,
		ConfigJSON: state.ConfigJSON,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal snapshot state: %w", err)
	}

	var roundTrip struct {
		SessionID  string
		Regime     domain.Regime
		StateSince int64
		ConfigHash string
		ConfigJSON string
	}
	if err := json.Unmarshal(data, &roundTrip); err != nil {
		return fmt.Errorf("snapshot state failed round-trip validation: %w", err)
	}

	checksum := sha256.Sum256(data)
	now := time.Now().UnixNano()

	query := `INSERT OR REPLACE INTO engine_state
		(id, session_id, regime, state_since, config_hash, config_json, checksum, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, query,
		state.SessionID, string(state.Regime), state.StateSince.UnixNano(),
		state.ConfigHash, state.ConfigJSON, checksum[:], now)
	if err != nil {
		return fmt.Errorf("write snapshot state: %w", err)
	}

	return tx.Commit()
}

// Load recovers the last-persisted state. It returns (nil, nil) when
// no row has ever been written.
func (s *Store) Load(ctx context.Context) (*State, error) {
	query := `SELECT session_id, regime, state_since, config_hash, config_json, checksum, updated_at
		FROM engine_state WHERE id = 1`

	var (
		sessionID, regime, configHash, configJSON string
		stateSinceNanos, updatedAtNanos           int64
		storedChecksum                            []byte
	)

	err := s.db.QueryRowContext(ctx, query).Scan(
		&sessionID, &regime, &stateSinceNanos, &configHash, &configJSON, &storedChecksum, &updatedAtNanos)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot state: %w", err)
	}

	payload := struct {
		SessionID  string
		Regime     domain.Regime
		StateSince int64
		ConfigHash string
		ConfigJSON string
	}{
		SessionID:  sessionID,
		Regime:     domain.Regime(regime),
		StateSince: stateSinceNanos,
		ConfigHash: configHash,
		ConfigJSON: configJSON,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("recompute snapshot checksum payload: %w", err)
	}

	computed := sha256.Sum256(data)
	if len(storedChecksum) != len(computed) {
		return nil, fmt.Errorf("snapshot checksum length mismatch: expected %d, got %d", len(computed), len(storedChecksum))
	}
	for i := range computed {
		if storedChecksum[i] != computed[i] {
			return nil, fmt.Errorf("snapshot checksum verification failed: data corruption detected")
		}
	}

	return &State{
		SessionID:    sessionID,
		Regime:       domain.Regime(regime),
		StateSince:   time.Unix(0, stateSinceNanos).UTC(),
		ConfigHash:   configHash,
		ConfigJSON:   configJSON,
		UpdatedAtUTC: time.Unix(0, updatedAtNanos).UTC(),
	}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
