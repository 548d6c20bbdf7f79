package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/kaiprevention/portal/internal/platform/session"
)

// AuditEntry records one access to patient data: who opened which page or
// document, when, and from where.
type AuditEntry struct {
	UserID     string
	Action     string // view, download, update, live
	Resource   string
	ReportID   string
	RemoteIP   string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(ctx context.Context, entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(ctx context.Context, entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(ctx context.Context, entry AuditEntry) error {
	return f(ctx, entry)
}

// auditedPrefixes are the pages that show findings, reports or personal data.
var auditedPrefixes = []string{"/dashboard", "/findings", "/medical-report", "/profile"}

// Audit logs every successful access to a patient-data page. With a
// recorder the entry is also persisted; a recorder failure is logged and
// does not fail the request.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !isAuditablePath(path) {
				return next(c)
			}

			err := next(c)

			userID := session.UserIDFromContext(c)
			status := c.Response().Status
			if userID == "" || status >= http.StatusBadRequest || (err != nil && !c.Response().Committed) {
				return err
			}

			entry := AuditEntry{
				UserID:     userID,
				Action:     auditAction(c),
				Resource:   auditResource(path),
				ReportID:   reportID(c),
				RemoteIP:   c.RealIP(),
				UserAgent:  req.UserAgent(),
				Path:       path,
				Method:     req.Method,
				Timestamp:  time.Now().UTC(),
				StatusCode: status,
			}
			entry.RequestID, _ = c.Get(RequestIDKey).(string)

			if recorder != nil {
				if recErr := recorder.RecordAccess(context.WithoutCancel(req.Context()), entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "phi_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("action", entry.Action).
				Str("resource", entry.Resource).
				Str("report_id", entry.ReportID).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.RemoteIP).
				Int("status", entry.StatusCode).
				Msg("phi_access")

			return err
		}
	}
}

func isAuditablePath(path string) bool {
	for _, p := range auditedPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func auditAction(c echo.Context) string {
	req := c.Request()
	switch {
	case isWebSocket(req):
		return "live"
	case req.Method == http.MethodPost || req.Method == http.MethodPut:
		return "update"
	case strings.HasSuffix(req.URL.Path, "/pdf") && c.QueryParam("download") != "":
		return "download"
	default:
		return "view"
	}
}

// auditResource is the first path segment: findings, medical-report, ...
func auditResource(path string) string {
	seg, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if seg == "" {
		return "unknown"
	}
	return seg
}

// reportID finds the report or service request a page is about.
func reportID(c echo.Context) string {
	if id := c.QueryParam("reportId"); id != "" {
		return id
	}
	if strings.HasPrefix(c.Request().URL.Path, "/medical-report/") {
		seg, _, _ := strings.Cut(strings.TrimPrefix(c.Request().URL.Path, "/medical-report/"), "/")
		return seg
	}
	return ""
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PGAuditRecorder writes entries to the session_audit table.
type PGAuditRecorder struct {
	db execer
}

func NewPGAuditRecorder(db execer) *PGAuditRecorder {
	return &PGAuditRecorder{db: db}
}

func (r *PGAuditRecorder) RecordAccess(ctx context.Context, e AuditEntry) error {
	resource := e.Resource
	if e.ReportID != "" {
		resource += "/" + e.ReportID
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO session_audit (occurred_at, user_id, action, resource, request_id, remote_ip)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.Timestamp, e.UserID, e.Action, resource, e.RequestID, e.RemoteIP)
	return err
}
