package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"labourpanel/internal/requestctx"
)

const (
	ActionCreate     = "create"
	ActionUpdate     = "update"
	ActionDelete     = "delete"
	ActionAddPayment = "add_payment"

	EntityLabourer = "labourer"
	EntityEngineer = "engineer"
)

// Entry is one successful mutation issued through the panel.
type Entry struct {
	ID         string          `json:"id"`
	Actor      string          `json:"actor"`
	SessionID  string          `json:"sessionId"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	RequestID  string          `json:"requestId"`
	CreatedAt  time.Time       `json:"createdAt"`
	After      json.RawMessage `json:"after,omitempty"`
}

type Filter struct {
	Action     string
	EntityType string
	Actor      string
}

// Recorder is what the domain packages depend on.
type Recorder interface {
	Record(ctx context.Context, action, entityType, entityID string, after any) error
}

type Service struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

func (s *Service) Record(ctx context.Context, action, entityType, entityID string, after any) error {
	var afterJSON []byte
	if after != nil {
		payload, err := json.Marshal(after)
		if err != nil {
			return fmt.Errorf("marshal audit payload: %w", err)
		}
		afterJSON = payload
	}

	_, err := s.DB.Exec(ctx, `
    INSERT INTO panel_audit_events (actor, session_id, action, entity_type, entity_id, after_json, request_id)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
  `, requestctx.GetActor(ctx), requestctx.GetSessionID(ctx), action, entityType, entityID, afterJSON, requestctx.GetRequestID(ctx))
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]Entry, error) {
	query, args := buildQuery(filter)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var evt Entry
		if err := rows.Scan(&evt.ID, &evt.Actor, &evt.SessionID, &evt.Action, &evt.EntityType, &evt.EntityID, &evt.RequestID, &evt.CreatedAt, &evt.After); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// Prune deletes entries older than before and returns how many went.
func (s *Service) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.DB.Exec(ctx, `DELETE FROM panel_audit_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func buildQuery(filter Filter) (string, []any) {
	query := "SELECT id::text, actor, session_id, action, entity_type, entity_id, request_id, created_at, COALESCE(after_json, 'null'::jsonb) FROM panel_audit_events WHERE 1=1"
	var args []any
	if filter.Action != "" {
		args = append(args, filter.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		query += fmt.Sprintf(" AND entity_type = $%d", len(args))
	}
	if filter.Actor != "" {
		args = append(args, filter.Actor)
		query += fmt.Sprintf(" AND actor = $%d", len(args))
	}
	return query, args
}

// LogRecorder writes audit entries to the structured log. It is used when
// no database is configured.
type LogRecorder struct {
	Logger *slog.Logger
}

func (l LogRecorder) Record(ctx context.Context, action, entityType, entityID string, _ any) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "audit",
		"action", action,
		"entityType", entityType,
		"entityId", entityID,
		"actor", requestctx.GetActor(ctx),
		"sessionId", requestctx.GetSessionID(ctx),
		"requestId", requestctx.GetRequestID(ctx),
	)
	return nil
}
