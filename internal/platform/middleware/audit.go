package middleware

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/patient-service/internal/platform/auth"
)

// AuditEntry records who touched which patient record and how.
type AuditEntry struct {
	ActorID    string
	Roles      []string
	PatientID  string
	Action     string // read, search, create, update, deactivate, activate
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

const auditPrefix = "/api/v1/patients"

var patientIDSegment = regexp.MustCompile(`^P\d{7}$`)

// Audit logs every access to the patient API after the handler has run, so
// the entry carries the final status. An optional recorder receives the same
// entry; its failures are logged and never fail the request.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	var recorder AuditRecorder
	if len(recorders) > 0 {
		recorder = recorders[0]
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if path != auditPrefix && !strings.HasPrefix(path, auditPrefix+"/") {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				ActorID:    auth.ActorID(c),
				Roles:      auth.RolesFromContext(req.Context()),
				PatientID:  extractPatientID(path),
				Method:     req.Method,
				Path:       path,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				Timestamp:  time.Now().UTC(),
				RequestID:  requestIDOf(c),
				StatusCode: c.Response().Status,
			}
			entry.Action = auditAction(req.Method, path, entry.PatientID)
			if err != nil {
				entry.StatusCode, _ = classify(err)
			}

			if recorder != nil {
				if recErr := recorder.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "phi_audit").
				Str("request_id", entry.RequestID).
				Str("actor_id", entry.ActorID).
				Strs("roles", entry.Roles).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("phi_access")

			return err
		}
	}
}

// extractPatientID returns the patient id segment of /api/v1/patients/<id>/...
// when it is well formed.
func extractPatientID(path string) string {
	rest := strings.TrimPrefix(path, auditPrefix+"/")
	if rest == path {
		return ""
	}
	seg, _, _ := strings.Cut(rest, "/")
	if patientIDSegment.MatchString(seg) {
		return seg
	}
	return ""
}

func auditAction(method, path, patientID string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut:
		return "update"
	case http.MethodPatch:
		switch {
		case strings.HasSuffix(path, "/deactivate"):
			return "deactivate"
		case strings.HasSuffix(path, "/activate"):
			return "activate"
		}
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	if patientID == "" {
		return "search"
	}
	return "read"
}
