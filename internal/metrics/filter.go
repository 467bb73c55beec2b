package metrics

import "time"

// dayLayout is the calendar-day format used throughout the
// package.
const dayLayout = "2006-01-02"

// dayOf truncates an RFC 3339 timestamp to its calendar day
// (YYYY-MM-DD). Inputs that are already day strings, or that
// fail to parse but start with a day prefix, fall back to the
// first ten characters.
func dayOf(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		if len(ts) >= 10 {
			return ts[:10]
		}
		return ""
	}
	return t.UTC().Format(dayLayout)
}

// inRange reports whether a day string falls within the
// inclusive window. Lexicographic comparison is exact for
// YYYY-MM-DD values.
func (r DateRange) inRange(day string) bool {
	return day >= r.Start && day <= r.End
}

// Days returns the number of inclusive calendar days covered by
// the range, or 0 when either bound is malformed or the range
// is inverted.
func (r DateRange) Days() int {
	start, err := time.Parse(dayLayout, r.Start)
	if err != nil {
		return 0
	}
	end, err := time.Parse(dayLayout, r.End)
	if err != nil {
		return 0
	}
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}

// Previous derives the immediately preceding period:
// the same span shifted to end the day before Start.
func (r DateRange) Previous() DateRange {
	start, err := time.Parse(dayLayout, r.Start)
	if err != nil {
		return DateRange{}
	}
	end, err := time.Parse(dayLayout, r.End)
	if err != nil {
		return DateRange{}
	}
	span := int(end.Sub(start).Hours() / 24)
	return DateRange{
		Start: start.AddDate(0, 0, -span-1).Format(dayLayout),
		End:   start.AddDate(0, 0, -1).Format(dayLayout),
	}
}

// matchSession applies every active session predicate as a
// conjunction. Cancelled-session exclusion belongs to Options,
// not the filter, and is handled by the caller.
func (f Filter) matchSession(s Session) bool {
	if !f.Range.inRange(s.Date) {
		return false
	}
	if f.ProfessionalID != "" && s.ProfessionalID != f.ProfessionalID {
		return false
	}
	if f.PatientID != "" && s.PatientID != f.PatientID {
		return false
	}
	if f.SessionType != "" && s.Type != f.SessionType {
		return false
	}
	if f.Tone != "" {
		if s.AIAnalysis == nil || s.AIAnalysis.EmotionalTone != f.Tone {
			return false
		}
	}
	return true
}

// matchPatient applies every active patient predicate. The
// date range does not constrain patients: patients created
// before the period still anchor rate denominators; only the
// time series buckets them by creation day.
func (f Filter) matchPatient(p Patient) bool {
	if !f.IncludeInactive && p.Status != PatientActive {
		return false
	}
	if f.PatientID != "" && p.ID != f.PatientID {
		return false
	}
	if f.Tone != "" && p.EmotionalState != f.Tone {
		return false
	}
	return true
}

// matchAlert applies every active alert predicate.
func (f Filter) matchAlert(a Alert) bool {
	if !f.Range.inRange(dayOf(a.CreatedAt)) {
		return false
	}
	if f.PatientID != "" && a.PatientID != f.PatientID {
		return false
	}
	if f.AlertType != "" && a.Type != f.AlertType {
		return false
	}
	return true
}

// FilterRecords returns the filtered subsets of the three
// collections used by every downstream builder. An empty
// result is valid and propagates; filtering never fails.
func FilterRecords(
	sessions []Session, patients []Patient, alerts []Alert,
	f Filter, opts Options,
) ([]Session, []Patient, []Alert) {
	fs := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if opts.ExcludeCancelled && s.Status == SessionCancelled {
			continue
		}
		if f.matchSession(s) {
			fs = append(fs, s)
		}
	}

	fp := make([]Patient, 0, len(patients))
	for _, p := range patients {
		if f.matchPatient(p) {
			fp = append(fp, p)
		}
	}

	fa := make([]Alert, 0, len(alerts))
	for _, a := range alerts {
		if f.matchAlert(a) {
			fa = append(fa, a)
		}
	}

	return fs, fp, fa
}
