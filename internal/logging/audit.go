package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditEvent classifies an audit record.
type AuditEvent string

// Audit event types.
const (
	AuditAPIAccess    AuditEvent = "api_access"
	AuditAdminAction  AuditEvent = "admin_action"
	AuditConfigChange AuditEvent = "config_change"
	AuditDriftControl AuditEvent = "drift_control"
)

// AuditOptions configures the rotating audit file.
type AuditOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Audit writes structured audit records. The zero value is not usable; a nil
// *Audit discards everything.
type Audit struct {
	logger *slog.Logger
	closer io.Closer
}

// NewAudit opens a size-rotated JSON audit log at opts.Path.
func NewAudit(opts AuditOptions) (*Audit, error) {
	if dir := filepath.Dir(opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	lj := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    maxSize,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	return &Audit{logger: slog.New(slog.NewJSONHandler(lj, nil)), closer: lj}, nil
}

// NewAuditWriter returns an Audit writing JSON records to w without rotation.
func NewAuditWriter(w io.Writer) *Audit {
	return &Audit{logger: slog.New(slog.NewJSONHandler(w, nil))}
}

// Record describes one audited action.
type Record struct {
	Actor    string
	IP       string
	Resource string
	Action   string
	Details  map[string]any
}

// Log writes an audit record at info level.
func (a *Audit) Log(ctx context.Context, ev AuditEvent, r Record) {
	a.log(ctx, slog.LevelInfo, ev, r)
}

// Warn writes an audit record at warn level.
func (a *Audit) Warn(ctx context.Context, ev AuditEvent, r Record) {
	a.log(ctx, slog.LevelWarn, ev, r)
}

func (a *Audit) log(ctx context.Context, lvl slog.Level, ev AuditEvent, r Record) {
	if a == nil {
		return
	}
	actor := r.Actor
	if actor == "" {
		actor = "unknown"
	}
	ip := r.IP
	if ip == "" {
		ip = "unknown"
	}
	attrs := []any{
		"event_type", string(ev),
		"user", actor,
		"ip", ip,
		"resource", r.Resource,
		"action", r.Action,
	}
	if len(r.Details) > 0 {
		attrs = append(attrs, "details", r.Details)
	}
	a.logger.Log(ctx, lvl, "AUDIT: "+string(ev), attrs...)
}

// Close closes the underlying file, if any.
func (a *Audit) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
