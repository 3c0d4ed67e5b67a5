package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	// timeFormat is fixed width so stored times sort as strings.
	timeFormat = "2006-01-02T15:04:05.000000000Z"
)

// Repository stores and queries the change journal.
//
// Implementations must be safe for concurrent use and store UTC times.
type Repository interface {
	// Record inserts one entry. A zero CreatedAt is stamped with the
	// current time.
	Record(ctx context.Context, e Entry) error

	// List returns up to limit entries of kind for thingID, newest first.
	// limit is clamped to [1, 200]; zero or less means 50.
	List(ctx context.Context, thingID string, kind Kind, limit int) ([]Entry, error)

	// Prune deletes entries of every kind older than olderThan and
	// returns the number of rows removed.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteRepository implements Repository on the property_history,
// event_history and action_history tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wraps an open, migrated connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts e into the table for its kind.
func (r *SQLiteRepository) Record(ctx context.Context, e Entry) error {
	if e.ThingID == "" {
		return ErrThingIDRequired
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	created := e.CreatedAt.UTC().Format(timeFormat)

	var err error
	switch e.Kind {
	case KindProperty:
		_, err = r.db.ExecContext(ctx,
			"INSERT INTO property_history (thing_id, property, value, created_at) VALUES (?, ?, ?, ?)",
			e.ThingID, e.Name, string(e.Value), created,
		)
	case KindEvent:
		_, err = r.db.ExecContext(ctx,
			"INSERT INTO event_history (thing_id, event, data, created_at) VALUES (?, ?, ?, ?)",
			e.ThingID, e.Name, nullable(string(e.Value)), created,
		)
	case KindAction:
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO action_history (thing_id, action, invocation_id, status, input, error, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ThingID, e.Name, e.InvocationID, e.Status, nullable(string(e.Value)), nullable(e.Error), created,
		)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, e.Kind)
	}
	if err != nil {
		return fmt.Errorf("inserting %s history: %w", e.Kind, err)
	}
	return nil
}

// List returns recent entries of one kind, newest first.
func (r *SQLiteRepository) List(ctx context.Context, thingID string, kind Kind, limit int) ([]Entry, error) {
	if thingID == "" {
		return nil, ErrThingIDRequired
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	var query string
	switch kind {
	case KindProperty:
		query = `SELECT id, property, value, '', '', '', created_at FROM property_history
		 WHERE thing_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	case KindEvent:
		query = `SELECT id, event, COALESCE(data, ''), '', '', '', created_at FROM event_history
		 WHERE thing_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	case KindAction:
		query = `SELECT id, action, COALESCE(input, ''), invocation_id, status, COALESCE(error, ''), created_at
		 FROM action_history WHERE thing_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	rows, err := r.db.QueryContext(ctx, query, thingID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying %s history: %w", kind, err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		e := Entry{ThingID: thingID, Kind: kind}
		var value, created string
		if err := rows.Scan(&e.ID, &e.Name, &value, &e.InvocationID, &e.Status, &e.Error, &created); err != nil {
			return nil, fmt.Errorf("scanning %s history: %w", kind, err)
		}
		if value != "" {
			e.Value = []byte(value)
		}
		if e.CreatedAt, err = time.Parse(timeFormat, created); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s history: %w", kind, err)
	}
	return entries, nil
}

// Prune deletes rows older than now minus olderThan from all three tables.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}
	cutoff := time.Now().UTC().Add(-olderThan).Format(timeFormat)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting prune: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var total int64
	for _, table := range []string{"property_history", "event_history", "action_history"} {
		res, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE created_at < ?", cutoff)
		if err != nil {
			return 0, fmt.Errorf("pruning %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("checking rows affected: %w", err)
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing prune: %w", err)
	}
	return total, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
