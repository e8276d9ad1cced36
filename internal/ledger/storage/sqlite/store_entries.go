package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codetrail/codetrail/internal/ledger/domain/entry"
	"github.com/codetrail/codetrail/internal/ledger/storage"
)

// AppendEntries persists a batch of entries in a single transaction.
func (s *Store) AppendEntries(ctx context.Context, entries []entry.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for i, e := range entries {
		if strings.TrimSpace(e.ID) == "" {
			return fmt.Errorf("entry %d: id is required", i)
		}
		if !e.Type.IsValid() {
			return fmt.Errorf("entry %d: event type is required", i)
		}
		if e.Sequence == 0 {
			return fmt.Errorf("entry %d: sequence is required", i)
		}

		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal entry %s: %w", e.ID, err)
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO ledger_entries (id, seq, timestamp, event_type, source, correlation_id, session_id, payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
			e.ID,
			int64(e.Sequence),
			toMillis(e.Timestamp),
			string(e.Type),
			string(e.Source),
			e.CorrelationID,
			e.SessionID,
			payload,
		); err != nil {
			return fmt.Errorf("append entry %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetEntry retrieves one entry by id.
func (s *Store) GetEntry(ctx context.Context, id string) (entry.Entry, error) {
	if err := ctx.Err(); err != nil {
		return entry.Entry{}, err
	}
	if s == nil || s.sqlDB == nil {
		return entry.Entry{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(id) == "" {
		return entry.Entry{}, fmt.Errorf("entry id is required")
	}

	var payload []byte
	row := s.sqlDB.QueryRowContext(ctx, "SELECT payload FROM ledger_entries WHERE id = ?", id)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entry.Entry{}, storage.ErrNotFound
		}
		return entry.Entry{}, fmt.Errorf("get entry: %w", err)
	}

	return unmarshalEntry(payload)
}

// ListEntries returns entries matching the query, ordered by sequence.
func (s *Store) ListEntries(ctx context.Context, q storage.ListQuery) ([]entry.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	whereParts := []string{"1=1"}
	args := []any{}
	if !q.Since.IsZero() {
		whereParts = append(whereParts, "timestamp >= ?")
		args = append(args, toMillis(q.Since))
	}
	if !q.Until.IsZero() {
		whereParts = append(whereParts, "timestamp <= ?")
		args = append(args, toMillis(q.Until))
	}
	if value := strings.TrimSpace(q.CorrelationID); value != "" {
		whereParts = append(whereParts, "correlation_id = ?")
		args = append(args, value)
	}
	if value := strings.TrimSpace(q.SessionID); value != "" {
		whereParts = append(whereParts, "session_id = ?")
		args = append(args, value)
	}
	if len(q.Types) > 0 {
		placeholders := make([]string, len(q.Types))
		for i, t := range q.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		whereParts = append(whereParts, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(q.Sources) > 0 {
		placeholders := make([]string, len(q.Sources))
		for i, src := range q.Sources {
			placeholders[i] = "?"
			args = append(args, string(src))
		}
		whereParts = append(whereParts, "source IN ("+strings.Join(placeholders, ", ")+")")
	}

	orderClause := "ORDER BY seq DESC"
	if q.Ascending {
		orderClause = "ORDER BY seq ASC"
	}

	limitClause := ""
	if q.Limit > 0 {
		limitClause = fmt.Sprintf("LIMIT %d", q.Limit)
		if q.Offset > 0 {
			limitClause += fmt.Sprintf(" OFFSET %d", q.Offset)
		}
	} else if q.Offset > 0 {
		limitClause = fmt.Sprintf("LIMIT -1 OFFSET %d", q.Offset)
	}

	query := fmt.Sprintf(`
SELECT payload FROM ledger_entries
WHERE %s
%s
%s
`, strings.Join(whereParts, " AND "), orderClause, limitClause)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var result []entry.Entry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan entry row: %w", err)
		}
		e, err := unmarshalEntry(payload)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entry rows: %w", err)
	}
	return result, nil
}

// MaxSequence returns the highest persisted sequence number, 0 when empty.
func (s *Store) MaxSequence(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var max sql.NullInt64
	row := s.sqlDB.QueryRowContext(ctx, "SELECT MAX(seq) FROM ledger_entries")
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("max sequence: %w", err)
	}
	if !max.Valid || max.Int64 < 0 {
		return 0, nil
	}
	return uint64(max.Int64), nil
}

// CountEntries returns the number of persisted entries.
func (s *Store) CountEntries(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var count int64
	row := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM ledger_entries")
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return count, nil
}

// DeleteEntriesBefore removes entries older than cutoff.
func (s *Store) DeleteEntriesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if cutoff.IsZero() {
		return 0, fmt.Errorf("cutoff is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, "DELETE FROM ledger_entries WHERE timestamp < ?", toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete entries: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted entries: %w", err)
	}
	return deleted, nil
}

func unmarshalEntry(payload []byte) (entry.Entry, error) {
	var e entry.Entry
	if err := json.Unmarshal(payload, &e); err != nil {
		return entry.Entry{}, fmt.Errorf("unmarshal entry payload: %w", err)
	}
	return e, nil
}
