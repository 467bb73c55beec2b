// Package testrecords provides shared export-file fixture
// builders for clinical record test data. Used by both parser
// and sync test packages.
package testrecords

import (
	"encoding/json"
	"strings"
)

// SessionJSON returns a session export entry as a JSON string.
// aiTone and aiRisk add an aiAnalysis block when either is
// non-empty.
func SessionJSON(
	id, patientID, professionalID, date, typ, status string,
	aiTone, aiRisk string,
) string {
	m := map[string]any{
		"id":             id,
		"patientId":      patientID,
		"professionalId": professionalID,
		"date":           date,
		"type":           typ,
		"status":         status,
	}
	if aiTone != "" || aiRisk != "" {
		m["aiAnalysis"] = map[string]any{
			"emotionalTone": aiTone,
			"riskLevel":     aiRisk,
		}
	}
	return mustMarshal(m)
}

// PatientJSON returns a patient export entry as a JSON string.
// createdAt may be any encoding the parser accepts, including
// a document-store timestamp object.
func PatientJSON(
	id, status, emotionalState, motive string, createdAt any,
) string {
	m := map[string]any{
		"id":             id,
		"status":         status,
		"emotionalState": emotionalState,
		"createdAt":      createdAt,
	}
	if motive != "" {
		m["motivoConsulta"] = motive
	}
	return mustMarshal(m)
}

// AlertJSON returns an alert export entry as a JSON string.
func AlertJSON(
	id, patientID, typ, urgency, status string, createdAt any,
) string {
	m := map[string]any{
		"id":        id,
		"patientId": patientID,
		"type":      typ,
		"urgency":   urgency,
		"status":    status,
		"createdAt": createdAt,
	}
	return mustMarshal(m)
}

// StoreTimestamp builds a document-store timestamp object for
// the given epoch seconds.
func StoreTimestamp(seconds int64) map[string]any {
	return map[string]any{"_seconds": seconds}
}

// JoinJSONL joins entries into JSONL file content.
func JoinJSONL(entries ...string) string {
	return strings.Join(entries, "\n") + "\n"
}

// ArrayJSON joins entries into a JSON array file.
func ArrayJSON(entries ...string) string {
	return "[" + strings.Join(entries, ",") + "]"
}

func mustMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
