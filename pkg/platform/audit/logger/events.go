package logger

import (
	"context"

	audit "clinicaudit/pkg/platform/audit"
)

func (l *Logger) LogPatientCreated(ctx context.Context, patientID string, data map[string]any, actor audit.Actor) (string, error) {
	return l.Record(ctx, audit.PatientCreated(patientID, data, actor))
}

// LogPatientUpdated stores both snapshots and the list of changed fields.
func (l *Logger) LogPatientUpdated(ctx context.Context, patientID string, before, after map[string]any, actor audit.Actor) (string, error) {
	return l.Record(ctx, audit.PatientUpdated(patientID, before, after, actor))
}

func (l *Logger) LogPatientDeleted(ctx context.Context, patientID string, actor audit.Actor) (string, error) {
	return l.Record(ctx, audit.PatientDeleted(patientID, actor))
}

func (l *Logger) LogPatientViewed(ctx context.Context, patientID string, actor audit.Actor) (string, error) {
	return l.Record(ctx, audit.PatientViewed(patientID, actor))
}

// LogUserLogin records successful and failed attempts under the same event
// type; extra_data.success tells them apart.
func (l *Logger) LogUserLogin(ctx context.Context, username string, success bool, actor audit.Actor, errorMessage string) (string, error) {
	return l.Record(ctx, audit.UserLogin(username, success, actor, errorMessage))
}

func (l *Logger) LogUserLogout(ctx context.Context, username string, actor audit.Actor) (string, error) {
	return l.Record(ctx, audit.UserLogout(username, actor))
}

func (l *Logger) LogPasswordChanged(ctx context.Context, username string, actor audit.Actor) (string, error) {
	return l.Record(ctx, audit.PasswordChanged(username, actor))
}

func (l *Logger) LogMFAEnabled(ctx context.Context, username, method string, actor audit.Actor) (string, error) {
	return l.Record(ctx, audit.MFAEnabled(username, method, actor))
}

func (l *Logger) LogMFADisabled(ctx context.Context, username string, actor audit.Actor) (string, error) {
	return l.Record(ctx, audit.MFADisabled(username, actor))
}

func (l *Logger) LogSecurityEvent(ctx context.Context, description string, severity audit.Severity, actor audit.Actor, reason string, details map[string]any) (string, error) {
	return l.Record(ctx, audit.SecurityIncident(description, severity, actor, reason, details))
}

func (l *Logger) LogDataExport(ctx context.Context, format, destination string, count int, actor audit.Actor) (string, error) {
	return l.Record(ctx, audit.DataExport(format, destination, count, actor))
}
