// Package parser reads clinical record export files into the
// domain types the rest of the application works with. Exports
// come from the practice-management document store as one
// directory per center containing sessions, patients, and
// alerts files, either JSON arrays or JSONL. Parsing is
// tolerant: malformed entries are skipped, unknown enum values
// pass through lowercased, and several timestamp encodings are
// accepted.
package parser

import (
	"time"

	"github.com/tidwall/gjson"
)

// Kind identifies which record collection an export file holds.
type Kind string

const (
	KindSessions Kind = "sessions"
	KindPatients Kind = "patients"
	KindAlerts   Kind = "alerts"
)

// ExportFile is one discovered record export file.
type ExportFile struct {
	Path   string
	Center string // center directory name
	Kind   Kind
}

// parseTimestamp accepts the timestamp encodings seen in
// exports: RFC 3339 strings, document-store timestamps
// ({"_seconds": n} or {"seconds": n}), and numeric epoch
// millis. Returns the zero time when nothing matches.
func parseTimestamp(v gjson.Result) time.Time {
	switch v.Type {
	case gjson.String:
		for _, layout := range []string{
			time.RFC3339Nano,
			"2006-01-02T15:04:05",
			"2006-01-02",
		} {
			if t, err := time.Parse(layout, v.Str); err == nil {
				return t
			}
		}
	case gjson.Number:
		n := v.Int()
		// Heuristic: values past the year 2603 in seconds are
		// epoch millis.
		if n > 2e10 {
			return time.UnixMilli(n).UTC()
		}
		return time.Unix(n, 0).UTC()
	case gjson.JSON:
		secs := v.Get("_seconds")
		if !secs.Exists() {
			secs = v.Get("seconds")
		}
		if secs.Exists() {
			return time.Unix(secs.Int(), 0).UTC()
		}
	}
	return time.Time{}
}

// timestampString renders a parsed timestamp back to RFC 3339,
// or "" for the zero time.
func timestampString(v gjson.Result) string {
	t := parseTimestamp(v)
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// dayString renders a parsed timestamp as a calendar day, or
// "" for the zero time.
func dayString(v gjson.Result) string {
	t := parseTimestamp(v)
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
