package execution

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// pgSchema creates the tables the store needs. The snapshot is stored as a
// single JSON document per order so Save is one atomic upsert.
const pgSchema = `
CREATE TABLE IF NOT EXISTS order_executions (
    order_id   TEXT PRIMARY KEY,
    step       TEXT NOT NULL,
    snapshot   JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS order_events (
    id       TEXT PRIMARY KEY,
    order_id TEXT NOT NULL,
    type     TEXT NOT NULL,
    payload  JSONB,
    ts       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS order_events_order_id_idx ON order_events (order_id, ts);
`

// PGStore persists executions in PostgreSQL.
type PGStore struct {
	db *sqlx.DB
}

// NewPGStore connects to PostgreSQL with the given DSN and ensures the
// schema exists.
func NewPGStore(dsn string) (*PGStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if _, err := db.Exec(pgSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &PGStore{db: db}, nil
}

// Close releases the database connection pool.
func (s *PGStore) Close() error {
	return s.db.Close()
}

// Save upserts a snapshot.
func (s *PGStore) Save(snapshot Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO order_executions (order_id, step, snapshot, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id) DO UPDATE
		SET step = EXCLUDED.step, snapshot = EXCLUDED.snapshot, updated_at = EXCLUDED.updated_at`,
		snapshot.OrderID, snapshot.Step.String(), data, snapshot.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save snapshot for order %s: %w", snapshot.OrderID, err)
	}
	return nil
}

// Load returns the snapshot for an order id.
func (s *PGStore) Load(orderID string) (Snapshot, error) {
	var data []byte
	err := s.db.Get(&data, `SELECT snapshot FROM order_executions WHERE order_id = $1`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load snapshot for order %s: %w", orderID, err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("failed to unmarshal snapshot for order %s: %w", orderID, err)
	}
	return snapshot, nil
}

// List returns all stored snapshots.
func (s *PGStore) List() ([]Snapshot, error) {
	var rows [][]byte
	if err := s.db.Select(&rows, `SELECT snapshot FROM order_executions`); err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	result := make([]Snapshot, 0, len(rows))
	for _, data := range rows {
		var snapshot Snapshot
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		result = append(result, snapshot)
	}
	return result, nil
}

// Delete removes the snapshot and events for an order id.
func (s *PGStore) Delete(orderID string) error {
	if _, err := s.db.Exec(`DELETE FROM order_events WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("failed to delete events for order %s: %w", orderID, err)
	}
	if _, err := s.db.Exec(`DELETE FROM order_executions WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("failed to delete snapshot for order %s: %w", orderID, err)
	}
	return nil
}

// AppendEvent appends an event to an execution's log.
func (s *PGStore) AppendEvent(event Event) error {
	var payload any
	if len(event.Payload) > 0 {
		payload = []byte(event.Payload)
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO order_events (id, order_id, type, payload, ts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		event.ID, event.OrderID, event.Type, payload, ts)
	if err != nil {
		return fmt.Errorf("failed to append event for order %s: %w", event.OrderID, err)
	}
	return nil
}

// Events returns an execution's event log in append order.
func (s *PGStore) Events(orderID string) ([]Event, error) {
	rows, err := s.db.Queryx(`
		SELECT id, order_id, type, payload, ts FROM order_events
		WHERE order_id = $1 ORDER BY ts`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for order %s: %w", orderID, err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event   Event
			payload []byte
		)
		if err := rows.Scan(&event.ID, &event.OrderID, &event.Type, &payload, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Payload = payload
		events = append(events, event)
	}
	return events, rows.Err()
}

var _ StateStore = (*PGStore)(nil)
