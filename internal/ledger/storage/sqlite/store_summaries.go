package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codetrail/codetrail/internal/ledger/domain/summary"
	"github.com/codetrail/codetrail/internal/ledger/storage"
)

// PutSummary persists a new session summary.
//
// The session_id column carries a unique constraint; a second summary for the
// same session maps to ErrSessionCompacted so raw-event provenance stays
// disjoint across summaries.
func (s *Store) PutSummary(ctx context.Context, record summary.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("summary id is required")
	}
	if strings.TrimSpace(record.SessionID) == "" {
		return fmt.Errorf("session id is required")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO session_summaries (id, session_id, start_time, end_time, source, intent_category, content_hash, payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		record.ID,
		record.SessionID,
		toMillis(record.StartTime),
		toMillis(record.EndTime),
		string(record.Source),
		string(record.IntentCategory),
		record.ContentHash,
		payload,
	); err != nil {
		if isConstraintError(err) {
			return storage.ErrSessionCompacted
		}
		return fmt.Errorf("put summary: %w", err)
	}
	return nil
}

// GetSummary retrieves one summary by id.
func (s *Store) GetSummary(ctx context.Context, id string) (summary.Summary, error) {
	if err := ctx.Err(); err != nil {
		return summary.Summary{}, err
	}
	if s == nil || s.sqlDB == nil {
		return summary.Summary{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(id) == "" {
		return summary.Summary{}, fmt.Errorf("summary id is required")
	}

	return s.scanSummaryRow(s.sqlDB.QueryRowContext(ctx,
		"SELECT payload FROM session_summaries WHERE id = ?", id))
}

// GetSummaryBySession retrieves the summary for a session.
func (s *Store) GetSummaryBySession(ctx context.Context, sessionID string) (summary.Summary, error) {
	if err := ctx.Err(); err != nil {
		return summary.Summary{}, err
	}
	if s == nil || s.sqlDB == nil {
		return summary.Summary{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(sessionID) == "" {
		return summary.Summary{}, fmt.Errorf("session id is required")
	}

	return s.scanSummaryRow(s.sqlDB.QueryRowContext(ctx,
		"SELECT payload FROM session_summaries WHERE session_id = ?", sessionID))
}

// ListSummaries returns summaries matching the query, ordered by start time.
func (s *Store) ListSummaries(ctx context.Context, q storage.SummaryQuery) ([]summary.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	whereParts := []string{"1=1"}
	args := []any{}
	if !q.Since.IsZero() {
		whereParts = append(whereParts, "start_time >= ?")
		args = append(args, toMillis(q.Since))
	}
	if !q.Until.IsZero() {
		whereParts = append(whereParts, "end_time <= ?")
		args = append(args, toMillis(q.Until))
	}
	if value := strings.TrimSpace(q.SessionID); value != "" {
		whereParts = append(whereParts, "session_id = ?")
		args = append(args, value)
	}
	if value := strings.TrimSpace(string(q.Category)); value != "" {
		whereParts = append(whereParts, "intent_category = ?")
		args = append(args, value)
	}

	orderClause := "ORDER BY start_time DESC, id DESC"
	if q.Ascending {
		orderClause = "ORDER BY start_time ASC, id ASC"
	}

	limitClause := ""
	if q.Limit > 0 {
		limitClause = fmt.Sprintf("LIMIT %d", q.Limit)
		if q.Offset > 0 {
			limitClause += fmt.Sprintf(" OFFSET %d", q.Offset)
		}
	}

	query := fmt.Sprintf(`
SELECT payload FROM session_summaries
WHERE %s
%s
%s
`, strings.Join(whereParts, " AND "), orderClause, limitClause)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	var result []summary.Summary
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		var record summary.Summary
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("unmarshal summary payload: %w", err)
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary rows: %w", err)
	}
	return result, nil
}

// DeleteSummariesBefore removes summaries whose end time is older than cutoff.
func (s *Store) DeleteSummariesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if cutoff.IsZero() {
		return 0, fmt.Errorf("cutoff is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, "DELETE FROM session_summaries WHERE end_time < ?", toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete summaries: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted summaries: %w", err)
	}
	return deleted, nil
}

func (s *Store) scanSummaryRow(row *sql.Row) (summary.Summary, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return summary.Summary{}, storage.ErrNotFound
		}
		return summary.Summary{}, fmt.Errorf("get summary: %w", err)
	}
	var record summary.Summary
	if err := json.Unmarshal(payload, &record); err != nil {
		return summary.Summary{}, fmt.Errorf("unmarshal summary payload: %w", err)
	}
	return record, nil
}
