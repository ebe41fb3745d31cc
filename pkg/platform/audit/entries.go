package audit

import (
	"fmt"
	"sort"
)

// Entry constructors fix the event type and severity for each domain action
// and shape description/payload consistently, so analytics can rely on one
// query per action (e.g. all USER_LOGIN events, split by payload.success).

// PatientCreated records a new patient record.
func PatientCreated(patientID string, data map[string]any, actor Actor) Entry {
	return Entry{
		EventType:   EventPatientCreated,
		Severity:    SeverityInfo,
		Description: fmt.Sprintf("Patient %s created", patientID),
		ResourceID:  patientID,
		Actor:       actor,
		Payload:     PatientPayload{PatientID: patientID, Data: data},
	}
}

// PatientUpdated records a patient change with its before/after snapshot.
func PatientUpdated(patientID string, before, after map[string]any, actor Actor) Entry {
	return Entry{
		EventType:   EventPatientUpdated,
		Severity:    SeverityInfo,
		Description: fmt.Sprintf("Patient %s updated", patientID),
		ResourceID:  patientID,
		Actor:       actor,
		Payload: PatientPayload{
			PatientID: patientID,
			Before:    before,
			After:     after,
			Changed:   changedFields(before, after),
		},
	}
}

// PatientDeleted records removal of a patient record.
func PatientDeleted(patientID string, actor Actor) Entry {
	return Entry{
		EventType:   EventPatientDeleted,
		Severity:    SeverityWarning,
		Description: fmt.Sprintf("Patient %s deleted", patientID),
		ResourceID:  patientID,
		Actor:       actor,
		Payload:     PatientPayload{PatientID: patientID},
	}
}

// PatientViewed records read access to a patient record.
func PatientViewed(patientID string, actor Actor) Entry {
	return Entry{
		EventType:   EventPatientViewed,
		Severity:    SeverityInfo,
		Description: fmt.Sprintf("Patient %s viewed", patientID),
		ResourceID:  patientID,
		Actor:       actor,
		Payload:     PatientPayload{PatientID: patientID},
	}
}

// UserLogin records a login attempt. Failures are WARNING and carry the
// error message.
func UserLogin(username string, success bool, actor Actor, errorMessage string) Entry {
	e := Entry{
		EventType:  EventUserLogin,
		Severity:   SeverityInfo,
		ResourceID: actor.UserID,
		Actor:      actor,
		Payload:    LoginPayload{Username: username, Success: true},
	}
	if success {
		e.Description = fmt.Sprintf("User %s logged in", username)
		return e
	}
	e.Severity = SeverityWarning
	e.Description = fmt.Sprintf("Failed login attempt for %s", username)
	e.Payload = LoginPayload{Username: username, Success: false, ErrorMessage: errorMessage}
	return e
}

// UserLogout records the end of a session.
func UserLogout(username string, actor Actor) Entry {
	return Entry{
		EventType:   EventUserLogout,
		Severity:    SeverityInfo,
		Description: fmt.Sprintf("User %s logged out", username),
		ResourceID:  actor.UserID,
		Actor:       actor,
	}
}

// PasswordChanged records a credential change.
func PasswordChanged(username string, actor Actor) Entry {
	return Entry{
		EventType:   EventPasswordChanged,
		Severity:    SeverityWarning,
		Description: fmt.Sprintf("Password changed for %s", username),
		ResourceID:  actor.UserID,
		Actor:       actor,
	}
}

// MFAEnabled records enrollment in multi-factor authentication.
func MFAEnabled(username, method string, actor Actor) Entry {
	return Entry{
		EventType:   EventMFAEnabled,
		Severity:    SeverityInfo,
		Description: fmt.Sprintf("MFA enabled for %s", username),
		ResourceID:  actor.UserID,
		Actor:       actor,
		Payload:     MFAPayload{Username: username, Method: method},
	}
}

// MFADisabled records removal of multi-factor authentication.
func MFADisabled(username string, actor Actor) Entry {
	return Entry{
		EventType:   EventMFADisabled,
		Severity:    SeverityWarning,
		Description: fmt.Sprintf("MFA disabled for %s", username),
		ResourceID:  actor.UserID,
		Actor:       actor,
		Payload:     MFAPayload{Username: username},
	}
}

// SecurityIncident records a security-relevant observation.
func SecurityIncident(description string, severity Severity, actor Actor, reason string, details map[string]any) Entry {
	if !severity.Valid() {
		severity = SeverityWarning
	}
	return Entry{
		EventType:   EventSecurity,
		Severity:    severity,
		Description: description,
		Actor:       actor,
		Payload:     SecurityPayload{Reason: reason, Details: details},
	}
}

// DataExport records that audit or clinical data left the system.
func DataExport(format, destination string, count int, actor Actor) Entry {
	return Entry{
		EventType:   EventDataExport,
		Severity:    SeverityInfo,
		Description: fmt.Sprintf("Exported %d records as %s", count, format),
		Actor:       actor,
		Payload:     ExportPayload{Format: format, Destination: destination, RecordCount: count},
	}
}

// DataPurge records a retention purge.
func DataPurge(cutoff, archive string, count int64, actor Actor) Entry {
	return Entry{
		EventType:   EventDataPurge,
		Severity:    SeverityWarning,
		Description: fmt.Sprintf("Purged %d audit events older than %s", count, cutoff),
		Actor:       actor,
		Payload:     PurgePayload{Cutoff: cutoff, Archive: archive, RecordCount: count},
	}
}

func changedFields(before, after map[string]any) []string {
	var changed []string
	for k, v := range after {
		if old, ok := before[k]; !ok || fmt.Sprint(old) != fmt.Sprint(v) {
			changed = append(changed, k)
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}
