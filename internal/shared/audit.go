package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	Actor    string
	Location string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	db Execer
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(exec Execer) *AuditLogger {
	return &AuditLogger{db: exec}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err = l.db.Exec(ctx,
		`INSERT INTO audit_logs (actor, location, action, entity, entity_id, meta, occurred_at)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, COALESCE($7, NOW()))`,
		log.Actor, log.Location, log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}
