package metrics

import (
	"math"
	"sort"
	"time"
)

// Longitudinal metrics require grouping sessions by patient
// before aggregating, unlike the per-record folds in
// distributions.go.

// sessionsByPatient groups the filtered sessions by patient ID.
func sessionsByPatient(sessions []Session) map[string][]Session {
	byPatient := make(map[string][]Session)
	for _, s := range sessions {
		byPatient[s.PatientID] = append(byPatient[s.PatientID], s)
	}
	return byPatient
}

// followUpRate is the percentage of the given patients with at
// least minSessions sessions in the period. The count iterates
// the patient list, not the session groups: sessions may belong
// to patients outside the filtered set (an inactive patient's
// history, for example) and those must not inflate the rate
// past 100. A zero denominator yields 0, not an error.
func followUpRate(
	byPatient map[string][]Session,
	patients []Patient, minSessions int,
) float64 {
	if len(patients) == 0 {
		return 0
	}
	inFollowUp := 0
	for _, p := range patients {
		if len(byPatient[p.ID]) >= minSessions {
			inFollowUp++
		}
	}
	return math.Round(
		float64(inFollowUp)/float64(len(patients))*1000,
	) / 10
}

// avgDaysBetweenSessions averages the day gap between each
// patient's consecutive sessions, pooled across every patient
// with two or more sessions. Sessions are sorted by date per
// patient first; same-day pairs contribute a valid 0-day gap.
// No qualifying pair yields 0.
func avgDaysBetweenSessions(
	byPatient map[string][]Session,
) float64 {
	totalDays := 0.0
	pairs := 0

	for _, group := range byPatient {
		if len(group) < 2 {
			continue
		}
		dates := make([]time.Time, 0, len(group))
		for _, s := range group {
			t, err := time.Parse(dayLayout, s.Date)
			if err != nil {
				continue
			}
			dates = append(dates, t)
		}
		if len(dates) < 2 {
			continue
		}
		sort.Slice(dates, func(i, j int) bool {
			return dates[i].Before(dates[j])
		})
		for i := 1; i < len(dates); i++ {
			gap := dates[i].Sub(dates[i-1]).Hours() / 24
			totalDays += math.Abs(gap)
			pairs++
		}
	}

	if pairs == 0 {
		return 0
	}
	return math.Round(totalDays/float64(pairs)*10) / 10
}
