// Package metrics computes dashboard analytics snapshots from
// clinical records. The whole package is pure: every function
// is a single-pass computation over in-memory collections with
// no I/O, no shared state, and no side effects, so results can
// be recomputed or memoized freely.
package metrics

import "time"

// SessionType classifies the modality of a clinical encounter.
type SessionType string

const (
	SessionIndividual SessionType = "individual"
	SessionGroup      SessionType = "group"
	SessionFamily     SessionType = "family"
	SessionOnline     SessionType = "online"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
	SessionNoShow    SessionStatus = "no_show"
)

// EmotionalTone is an AI-derived or clinician-recorded emotional
// category. The set is open-ended in the source records; these
// are the values the dashboard groups on.
type EmotionalTone string

// RiskLevel grades the AI risk assessment attached to a session.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "high"
	RiskMedium RiskLevel = "medium"
	RiskLow    RiskLevel = "low"
)

// PatientStatus is the lifecycle state of a patient.
type PatientStatus string

const (
	PatientActive     PatientStatus = "active"
	PatientInactive   PatientStatus = "inactive"
	PatientDischarged PatientStatus = "discharged"
	PatientPending    PatientStatus = "pending"
)

// AlertUrgency grades how quickly a clinical alert needs
// attention.
type AlertUrgency string

const (
	UrgencyCritical AlertUrgency = "critical"
	UrgencyHigh     AlertUrgency = "high"
	UrgencyMedium   AlertUrgency = "medium"
	UrgencyLow      AlertUrgency = "low"
)

// AlertStatus is the lifecycle state of a clinical alert. The
// upstream records carry Spanish values; they are preserved
// verbatim rather than translated so stored data round-trips.
type AlertStatus string

const (
	AlertActive    AlertStatus = "activa"
	AlertResolved  AlertStatus = "resuelta"
	AlertDismissed AlertStatus = "descartada"
)

// MotiveUnspecified is the label substituted when a patient has
// no consultation motive recorded.
const MotiveUnspecified = "unspecified"

// AIAnalysis holds the AI-derived attributes of a session. A
// session without analysis has a nil pointer, never a zero
// value, so "analyzed" is distinguishable from "analyzed as
// empty".
type AIAnalysis struct {
	EmotionalTone EmotionalTone `json:"emotional_tone"`
	RiskLevel     RiskLevel     `json:"risk_level"`
}

// Session is one clinical encounter. Date is a calendar day
// (YYYY-MM-DD) with no time component; it is compared to
// time-series buckets by string equality.
type Session struct {
	ID             string        `json:"id"`
	PatientID      string        `json:"patient_id"`
	ProfessionalID string        `json:"professional_id"`
	Date           string        `json:"date"`
	Type           SessionType   `json:"type"`
	Status         SessionStatus `json:"status"`
	AIAnalysis     *AIAnalysis   `json:"ai_analysis,omitempty"`
}

// Patient is one person under care. CreatedAt is an RFC 3339
// timestamp; day-level comparisons truncate it to its calendar
// day. Motive may be empty, in which case distribution building
// substitutes MotiveUnspecified.
type Patient struct {
	ID             string        `json:"id"`
	Status         PatientStatus `json:"status"`
	EmotionalState EmotionalTone `json:"emotional_state"`
	Motive         string        `json:"motive"`
	CreatedAt      string        `json:"created_at"`
}

// Alert is one flagged condition on a patient requiring
// attention.
type Alert struct {
	ID        string       `json:"id"`
	PatientID string       `json:"patient_id"`
	Type      string       `json:"type"`
	Urgency   AlertUrgency `json:"urgency"`
	Status    AlertStatus  `json:"status"`
	CreatedAt string       `json:"created_at"`
}

// DateRange is an inclusive calendar-day window
// [Start, End], both YYYY-MM-DD.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Filter selects the record subsets all metrics are computed
// over. Range is required; every other field is optional and an
// empty value imposes no constraint. Tone matches both
// Session.AIAnalysis.EmotionalTone and Patient.EmotionalState,
// which is how the dashboard has always behaved.
type Filter struct {
	Range           DateRange    `json:"range"`
	ProfessionalID  string       `json:"professional_id,omitempty"`
	PatientID       string       `json:"patient_id,omitempty"`
	SessionType     SessionType  `json:"session_type,omitempty"`
	Tone            EmotionalTone `json:"emotional_tone,omitempty"`
	AlertType       string       `json:"alert_type,omitempty"`
	IncludeInactive bool         `json:"include_inactive,omitempty"`
}

// Options tune the calculation itself rather than record
// selection.
type Options struct {
	// ExcludeCancelled drops sessions with status "cancelled"
	// before any aggregation.
	ExcludeCancelled bool
	// MinFollowUpSessions is the session count at which a
	// patient counts as "in follow-up".
	MinFollowUpSessions int
}

// DefaultOptions returns the calculation defaults: cancelled
// sessions excluded, follow-up threshold of 2.
func DefaultOptions() Options {
	return Options{
		ExcludeCancelled:    true,
		MinFollowUpSessions: 2,
	}
}

// TimePoint is one calendar-day bucket in a dense series.
type TimePoint struct {
	Date  string `json:"date"`
	Value int    `json:"value"`
}

// TrendPoint is one (day, tone) observation in the emotional
// trend series. Percentage is Count over the AI-analyzed
// sessions of that day, in percent. Days without AI-analyzed
// sessions emit no points.
type TrendPoint struct {
	Date       string        `json:"date"`
	Tone       EmotionalTone `json:"tone"`
	Count      int           `json:"count"`
	Percentage float64       `json:"percentage"`
}

// Snapshot is the full dashboard analytics value for one
// period. It is constructed fresh on every computation and
// never mutated; a new computation supersedes it wholesale.
type Snapshot struct {
	TotalActivePatients   int     `json:"total_active_patients"`
	TotalSessions         int     `json:"total_sessions"`
	AvgSessionsPerPatient float64 `json:"avg_sessions_per_patient"`
	ActiveAlerts          int     `json:"active_alerts"`
	ResolvedAlerts        int     `json:"resolved_alerts"`

	EmotionalDistribution    map[string]int `json:"emotional_distribution"`
	MotivesDistribution      map[string]int `json:"motives_distribution"`
	SessionTypeDistribution  map[string]int `json:"session_type_distribution"`
	AlertTypeDistribution    map[string]int `json:"alert_type_distribution"`
	AlertUrgencyDistribution map[string]int `json:"alert_urgency_distribution"`
	ProfessionalWorkload     map[string]int `json:"professional_workload"`

	SessionsOverTime []TimePoint  `json:"sessions_over_time"`
	PatientsOverTime []TimePoint  `json:"patients_over_time"`
	EmotionalTrends  []TrendPoint `json:"emotional_trends"`

	FollowUpRate           float64 `json:"follow_up_rate"`
	AvgDaysBetweenSessions float64 `json:"avg_days_between_sessions"`

	HighRiskSessions   int `json:"high_risk_sessions"`
	MediumRiskSessions int `json:"medium_risk_sessions"`
	LowRiskSessions    int `json:"low_risk_sessions"`

	CalculatedAt time.Time `json:"calculated_at"`
	PeriodStart  string    `json:"period_start"`
	PeriodEnd    string    `json:"period_end"`
}

// Delta is one headline metric compared across two periods.
// ChangePercent follows the substitution rule: a zero previous
// value yields 100 when the current value is positive and 0
// otherwise, never a division error.
type Delta struct {
	Current       float64 `json:"current"`
	Previous      float64 `json:"previous"`
	ChangePercent float64 `json:"change_percent"`
}

// Comparison holds period-over-period deltas for the five
// headline metrics, plus the two period windows that produced
// them.
type Comparison struct {
	CurrentPeriod  DateRange `json:"current_period"`
	PreviousPeriod DateRange `json:"previous_period"`

	TotalActivePatients   Delta `json:"total_active_patients"`
	TotalSessions         Delta `json:"total_sessions"`
	AvgSessionsPerPatient Delta `json:"avg_sessions_per_patient"`
	ActiveAlerts          Delta `json:"active_alerts"`
	FollowUpRate          Delta `json:"follow_up_rate"`
}
