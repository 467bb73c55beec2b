package metrics

import (
	"math"
	"sort"
	"time"
)

// sessionsOverTime buckets sessions by calendar day across the
// inclusive range. The series is always dense: one bucket per
// day in ascending order, zero-valued where nothing matched.
// A malformed or inverted range yields an empty series; the
// HTTP layer guards that precondition before the core runs.
func sessionsOverTime(
	sessions []Session, r DateRange,
) []TimePoint {
	counts := make(map[string]int)
	for _, s := range sessions {
		counts[s.Date]++
	}
	return denseSeries(r, counts)
}

// patientsOverTime buckets patients by the calendar day of
// their creation timestamp.
func patientsOverTime(
	patients []Patient, r DateRange,
) []TimePoint {
	counts := make(map[string]int)
	for _, p := range patients {
		counts[dayOf(p.CreatedAt)]++
	}
	return denseSeries(r, counts)
}

// denseSeries expands a day → count map into one TimePoint per
// day of the range, in order, filling gaps with zero.
func denseSeries(r DateRange, counts map[string]int) []TimePoint {
	start, err := time.Parse(dayLayout, r.Start)
	if err != nil {
		return nil
	}
	end, err := time.Parse(dayLayout, r.End)
	if err != nil {
		return nil
	}

	var series []TimePoint
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		day := d.Format(dayLayout)
		series = append(series, TimePoint{
			Date:  day,
			Value: counts[day],
		})
	}
	return series
}

// emotionalTrends emits one point per (day, tone) pair observed
// among AI-analyzed sessions, ordered by day then tone. The
// percentage is relative to that day's AI-analyzed sessions
// only; days with none emit no points rather than zero-filled
// placeholders, so the series is sparse.
func emotionalTrends(sessions []Session) []TrendPoint {
	dayTones := make(map[string]map[EmotionalTone]int)
	dayTotals := make(map[string]int)

	for _, s := range sessions {
		if s.AIAnalysis == nil || s.AIAnalysis.EmotionalTone == "" {
			continue
		}
		if dayTones[s.Date] == nil {
			dayTones[s.Date] = make(map[EmotionalTone]int)
		}
		dayTones[s.Date][s.AIAnalysis.EmotionalTone]++
		dayTotals[s.Date]++
	}

	var points []TrendPoint
	for day, tones := range dayTones {
		total := dayTotals[day]
		for tone, count := range tones {
			pct := math.Round(
				float64(count)/float64(total)*1000,
			) / 10
			points = append(points, TrendPoint{
				Date:       day,
				Tone:       tone,
				Count:      count,
				Percentage: pct,
			})
		}
	}

	sort.Slice(points, func(i, j int) bool {
		if points[i].Date != points[j].Date {
			return points[i].Date < points[j].Date
		}
		return points[i].Tone < points[j].Tone
	})
	return points
}
