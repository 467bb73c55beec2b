package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/axeelhrz/clinicview/internal/metrics"
)

const (
	initialScanBufSize = 64 * 1024       // 64KB
	maxScanTokenSize   = 8 * 1024 * 1024 // 8MB
)

// forEachEntry invokes fn for every record object in an export
// file. Files holding a JSON array are walked element by
// element; anything else is treated as JSONL, skipping blank
// and invalid lines.
func forEachEntry(path string, fn func(gjson.Result)) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	trimmed := bytes.TrimLeftFunc(data, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if !gjson.ValidBytes(trimmed) {
			return fmt.Errorf("parsing %s: malformed JSON array", path)
		}
		gjson.ParseBytes(trimmed).ForEach(
			func(_, value gjson.Result) bool {
				if value.IsObject() {
					fn(value)
				}
				return true
			})
		return nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(
		make([]byte, 0, initialScanBufSize), maxScanTokenSize,
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !gjson.Valid(line) {
			continue
		}
		entry := gjson.Parse(line)
		if entry.IsObject() {
			fn(entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanning %s: %w", path, err)
	}
	return nil
}

// normalize lowercases and trims an enum-ish field value.
func normalize(v gjson.Result) string {
	return strings.ToLower(strings.TrimSpace(v.Str))
}

// ParseSessions reads a sessions export file. Entries without
// an id or a resolvable date are skipped; everything else is
// kept as-is so unknown categories still show up in
// distributions.
func ParseSessions(path string) ([]metrics.Session, error) {
	var sessions []metrics.Session
	err := forEachEntry(path, func(entry gjson.Result) {
		id := entry.Get("id").Str
		if id == "" {
			return
		}

		day := entry.Get("date").Str
		if len(day) != 10 {
			day = dayString(entry.Get("date"))
		}
		if day == "" {
			day = dayString(entry.Get("fecha"))
		}
		if day == "" {
			return
		}

		s := metrics.Session{
			ID:             id,
			PatientID:      entry.Get("patientId").Str,
			ProfessionalID: entry.Get("professionalId").Str,
			Date:           day,
			Type: metrics.SessionType(
				normalize(entry.Get("type")),
			),
			Status: metrics.SessionStatus(
				normalize(entry.Get("status")),
			),
		}
		if s.Type == "" {
			s.Type = metrics.SessionIndividual
		}

		if ai := entry.Get("aiAnalysis"); ai.IsObject() {
			s.AIAnalysis = &metrics.AIAnalysis{
				EmotionalTone: metrics.EmotionalTone(
					normalize(ai.Get("emotionalTone")),
				),
				RiskLevel: metrics.RiskLevel(
					normalize(ai.Get("riskLevel")),
				),
			}
		}

		sessions = append(sessions, s)
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// ParsePatients reads a patients export file. The consultation
// motive is free text and keeps its original casing. A missing
// motive stays empty; substituting the placeholder label is the
// metrics engine's job.
func ParsePatients(path string) ([]metrics.Patient, error) {
	var patients []metrics.Patient
	err := forEachEntry(path, func(entry gjson.Result) {
		id := entry.Get("id").Str
		if id == "" {
			return
		}

		motive := strings.TrimSpace(entry.Get("motivoConsulta").Str)
		if motive == "" {
			motive = strings.TrimSpace(entry.Get("motive").Str)
		}

		p := metrics.Patient{
			ID: id,
			Status: metrics.PatientStatus(
				normalize(entry.Get("status")),
			),
			EmotionalState: metrics.EmotionalTone(
				normalize(entry.Get("emotionalState")),
			),
			Motive:    motive,
			CreatedAt: timestampString(entry.Get("createdAt")),
		}
		if p.Status == "" {
			p.Status = metrics.PatientActive
		}

		patients = append(patients, p)
	})
	if err != nil {
		return nil, err
	}
	return patients, nil
}

// ParseAlerts reads an alerts export file. Alert status values
// arrive in Spanish and stay that way.
func ParseAlerts(path string) ([]metrics.Alert, error) {
	var alerts []metrics.Alert
	err := forEachEntry(path, func(entry gjson.Result) {
		id := entry.Get("id").Str
		if id == "" {
			return
		}

		a := metrics.Alert{
			ID:        id,
			PatientID: entry.Get("patientId").Str,
			Type:      normalize(entry.Get("type")),
			Urgency: metrics.AlertUrgency(
				normalize(entry.Get("urgency")),
			),
			Status: metrics.AlertStatus(
				normalize(entry.Get("status")),
			),
			CreatedAt: timestampString(entry.Get("createdAt")),
		}
		if a.Status == "" {
			a.Status = metrics.AlertActive
		}

		alerts = append(alerts, a)
	})
	if err != nil {
		return nil, err
	}
	return alerts, nil
}
