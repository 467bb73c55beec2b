package metrics

import (
	"math"
	"time"
)

// Calculator runs the full aggregation pipeline. It holds no
// state besides the clock, which is injectable so tests get
// deterministic CalculatedAt stamps.
type Calculator struct {
	now func() time.Time
}

// NewCalculator returns a Calculator using the wall clock.
func NewCalculator() *Calculator {
	return &Calculator{now: time.Now}
}

// NewCalculatorAt returns a Calculator with a fixed clock.
func NewCalculatorAt(now func() time.Time) *Calculator {
	if now == nil {
		now = time.Now
	}
	return &Calculator{now: now}
}

// Compute filters the three collections and assembles a full
// dashboard snapshot. When all three filtered collections are
// empty it returns (nil, false): "nothing to show" is a
// first-class result, distinct from a snapshot that is zero
// across the board.
func (c *Calculator) Compute(
	sessions []Session, patients []Patient, alerts []Alert,
	f Filter, opts Options,
) (*Snapshot, bool) {
	fs, fp, fa := FilterRecords(sessions, patients, alerts, f, opts)

	if len(fs) == 0 && len(fp) == 0 && len(fa) == 0 {
		return nil, false
	}

	byType, byUrgency := alertDistributions(fa)
	activeAlerts, resolvedAlerts := alertStatusCounts(fa)
	high, medium, low := riskCounts(fs)

	byPatient := sessionsByPatient(fs)

	avgSessions := 0.0
	if len(fp) > 0 {
		avgSessions = math.Round(
			float64(len(fs))/float64(len(fp))*10,
		) / 10
	}

	return &Snapshot{
		TotalActivePatients:   len(fp),
		TotalSessions:         len(fs),
		AvgSessionsPerPatient: avgSessions,
		ActiveAlerts:          activeAlerts,
		ResolvedAlerts:        resolvedAlerts,

		EmotionalDistribution:    emotionalDistribution(fs, fp),
		MotivesDistribution:      motivesDistribution(fp),
		SessionTypeDistribution:  sessionTypeDistribution(fs),
		AlertTypeDistribution:    byType,
		AlertUrgencyDistribution: byUrgency,
		ProfessionalWorkload:     professionalWorkload(fs),

		SessionsOverTime: sessionsOverTime(fs, f.Range),
		PatientsOverTime: patientsOverTime(fp, f.Range),
		EmotionalTrends:  emotionalTrends(fs),

		FollowUpRate: followUpRate(
			byPatient, fp, opts.MinFollowUpSessions,
		),
		AvgDaysBetweenSessions: avgDaysBetweenSessions(byPatient),

		HighRiskSessions:   high,
		MediumRiskSessions: medium,
		LowRiskSessions:    low,

		CalculatedAt: c.now(),
		PeriodStart:  f.Range.Start,
		PeriodEnd:    f.Range.End,
	}, true
}

// changePercent applies the period-over-period substitution
// rule: a zero baseline maps to 100 for any growth and 0 for
// none, so the dashboard never renders a division artifact.
func changePercent(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return math.Round((current-previous)/previous*1000) / 10
}

// delta builds one headline Delta.
func delta(current, previous float64) Delta {
	return Delta{
		Current:       current,
		Previous:      previous,
		ChangePercent: changePercent(current, previous),
	}
}

// Compare runs the pipeline for the requested period and for
// the equal-length period immediately preceding it, then
// derives percentage deltas for the five headline metrics.
// Only the date range differs between the two runs; every
// other filter field carries over. If either period has no
// data the comparison is absent as well.
func (c *Calculator) Compare(
	sessions []Session, patients []Patient, alerts []Alert,
	f Filter, opts Options,
) (*Comparison, bool) {
	current, ok := c.Compute(sessions, patients, alerts, f, opts)
	if !ok {
		return nil, false
	}

	prevFilter := f
	prevFilter.Range = f.Range.Previous()
	previous, ok := c.Compute(
		sessions, patients, alerts, prevFilter, opts,
	)
	if !ok {
		return nil, false
	}

	return &Comparison{
		CurrentPeriod:  f.Range,
		PreviousPeriod: prevFilter.Range,
		TotalActivePatients: delta(
			float64(current.TotalActivePatients),
			float64(previous.TotalActivePatients),
		),
		TotalSessions: delta(
			float64(current.TotalSessions),
			float64(previous.TotalSessions),
		),
		AvgSessionsPerPatient: delta(
			current.AvgSessionsPerPatient,
			previous.AvgSessionsPerPatient,
		),
		ActiveAlerts: delta(
			float64(current.ActiveAlerts),
			float64(previous.ActiveAlerts),
		),
		FollowUpRate: delta(
			current.FollowUpRate,
			previous.FollowUpRate,
		),
	}, true
}
