package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AuditEntry is one pipeline run recorded in the audit trail.
type AuditEntry struct {
	ID           int64
	Timestamp    time.Time
	TraceID      string
	ActorMXID    string
	ChatID       string
	Action       string
	Status       string
	ToolCalls    []string
	ErrorMessage sql.NullString
}

// WriteAudit records the outcome of one pipeline run, including every tool
// the run invoked.
func (s *Store) WriteAudit(ctx context.Context, e *AuditEntry) error {
	var toolsJSON sql.NullString
	if len(e.ToolCalls) > 0 {
		data, err := json.Marshal(e.ToolCalls)
		if err != nil {
			return fmt.Errorf("failed to marshal tool calls: %w", err)
		}
		toolsJSON = sql.NullString{String: string(data), Valid: true}
	}

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (ts, trace_id, actor_mxid, chat_id, action, status, tool_calls_json, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Timestamp, e.TraceID, e.ActorMXID, e.ChatID, e.Action, e.Status, toolsJSON, e.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// GetAuditByTrace retrieves every audit entry for a trace ID, oldest first.
func (s *Store) GetAuditByTrace(ctx context.Context, traceID string) ([]*AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, trace_id, actor_mxid, chat_id, action, status, tool_calls_json, error_message
		FROM audit_log
		WHERE trace_id = ?
		ORDER BY ts ASC
	`, traceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log by trace: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// GetAuditLog retrieves recent audit entries, newest first.
func (s *Store) GetAuditLog(ctx context.Context, limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, trace_id, actor_mxid, chat_id, action, status, tool_calls_json, error_message
		FROM audit_log
		ORDER BY ts DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

func scanAuditRows(rows *sql.Rows) ([]*AuditEntry, error) {
	var entries []*AuditEntry
	for rows.Next() {
		e := &AuditEntry{}
		var toolsJSON sql.NullString
		err := rows.Scan(
			&e.ID, &e.Timestamp, &e.TraceID, &e.ActorMXID, &e.ChatID,
			&e.Action, &e.Status, &toolsJSON, &e.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if toolsJSON.Valid {
			if err := json.Unmarshal([]byte(toolsJSON.String), &e.ToolCalls); err != nil {
				return nil, fmt.Errorf("failed to decode tool calls: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log: %w", err)
	}
	return entries, nil
}
