package security

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"greeks-dashboard/internal/logging"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

const (
	// Authentication events
	AuditLogin          AuditEventType = "LOGIN"
	AuditLogout         AuditEventType = "LOGOUT"
	AuditSessionExpired AuditEventType = "SESSION_EXPIRED"
	AuditAuthFailed     AuditEventType = "AUTH_FAILED"

	// Admin console events
	AuditUserToggled    AuditEventType = "USER_TOGGLED"
	AuditCacheRefreshed AuditEventType = "CACHE_REFRESHED"
	AuditTokenGenerated AuditEventType = "TOKEN_GENERATED"

	// Data events
	AuditExport AuditEventType = "EXPORT"

	// Security events
	AuditAccessDenied    AuditEventType = "ACCESS_DENIED"
	AuditInputValidation AuditEventType = "INPUT_VALIDATION"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType AuditEventType         `json:"event_type"`
	UserID    string                 `json:"user_id,omitempty"`
	Target    string                 `json:"target,omitempty"`
	Action    string                 `json:"action,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Success   bool                   `json:"success"`
	ErrorMsg  string                 `json:"error,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// AuditLogger writes audit events as JSON lines.
type AuditLogger struct {
	writer    io.WriteCloser
	mu        sync.Mutex
	sessionID string
	userID    string
	now       func() time.Time
}

// AuditConfig holds audit logger configuration.
type AuditConfig struct {
	LogDir     string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// DefaultAuditConfig returns the default audit configuration.
func DefaultAuditConfig() AuditConfig {
	home, _ := os.UserHomeDir()
	return AuditConfig{
		LogDir:     filepath.Join(home, ".config", "greeks-dashboard", "audit"),
		MaxSize:    20,
		MaxBackups: 10,
		MaxAge:     180,
		Compress:   true,
	}
}

// NewAuditLogger creates an audit logger writing to a rotated audit.log in cfg.LogDir.
func NewAuditLogger(cfg AuditConfig) (*AuditLogger, error) {
	// Ensure audit directory exists with restricted permissions
	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	return NewAuditLoggerWithWriter(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "audit.log"),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}), nil
}

// NewAuditLoggerWithWriter creates an audit logger on an arbitrary sink.
func NewAuditLoggerWithWriter(w io.WriteCloser) *AuditLogger {
	return &AuditLogger{
		writer:    w,
		sessionID: uuid.NewString(),
		now:       time.Now,
	}
}

// SessionID returns the id stamped on every event from this process.
func (al *AuditLogger) SessionID() string {
	if al == nil {
		return ""
	}
	return al.sessionID
}

// SetUserID sets the user ID for audit events.
func (al *AuditLogger) SetUserID(userID string) {
	if al == nil {
		return
	}
	al.mu.Lock()
	defer al.mu.Unlock()
	al.userID = userID
}

// Log logs an audit event. A nil logger discards events.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if al == nil {
		return nil
	}
	al.mu.Lock()
	defer al.mu.Unlock()

	event.Timestamp = al.now().UTC()
	event.SessionID = al.sessionID
	if event.UserID == "" {
		event.UserID = al.userID
	}
	if reqID := logging.RequestIDFromContext(ctx); reqID != "" {
		event.RequestID = reqID
	}
	event.ErrorMsg = MaskSecrets(event.ErrorMsg)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing audit event: %w", err)
	}

	if _, err := al.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}

	return nil
}

// LogLogin logs a login attempt.
func (al *AuditLogger) LogLogin(ctx context.Context, username string, err error) error {
	event := AuditEvent{EventType: AuditLogin, UserID: username, Success: err == nil}
	if err != nil {
		event.EventType = AuditAuthFailed
		event.ErrorMsg = err.Error()
	}
	return al.Log(ctx, event)
}

// LogLogout logs a logout event.
func (al *AuditLogger) LogLogout(ctx context.Context, username string) error {
	return al.Log(ctx, AuditEvent{EventType: AuditLogout, UserID: username, Success: true})
}

// LogSessionExpired logs an inactivity or token expiry.
func (al *AuditLogger) LogSessionExpired(ctx context.Context, username, reason string) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditSessionExpired,
		UserID:    username,
		Success:   true,
		Details:   map[string]interface{}{"reason": reason},
	})
}

// LogAdmin logs an admin console action against target.
func (al *AuditLogger) LogAdmin(ctx context.Context, eventType AuditEventType, target string, details map[string]interface{}, err error) error {
	event := AuditEvent{
		EventType: eventType,
		Target:    target,
		Details:   details,
		Success:   err == nil,
	}
	if err != nil {
		event.ErrorMsg = err.Error()
	}
	return al.Log(ctx, event)
}

// LogExport logs a CSV export.
func (al *AuditLogger) LogExport(ctx context.Context, filename string, rows int) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditExport,
		Target:    filename,
		Success:   true,
		Details:   map[string]interface{}{"rows": rows},
	})
}

// LogAccessDenied logs an operation refused by role checks.
func (al *AuditLogger) LogAccessDenied(ctx context.Context, operation string) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditAccessDenied,
		Action:    operation,
		Success:   false,
		ErrorMsg:  "operation requires admin role",
	})
}

// LogInputValidation logs an input validation failure.
func (al *AuditLogger) LogInputValidation(ctx context.Context, field, value, reason string) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditInputValidation,
		Success:   false,
		ErrorMsg:  reason,
		Details: map[string]interface{}{
			"field": field,
			"value": MaskSecrets(value),
		},
	})
}

// Close closes the audit logger.
func (al *AuditLogger) Close() error {
	if al == nil {
		return nil
	}
	return al.writer.Close()
}
