package metrics

// Distribution builders. Each is a pure fold from a filtered
// collection to a category count map. For every map, the sum
// of values equals the number of contributing records of that
// pass; emotionalDistribution draws from two record kinds, so
// its sum can exceed either collection alone.

// emotionalDistribution merges two sources into one map: each
// patient contributes its recorded emotional state, and each
// AI-analyzed session contributes its detected tone. The
// dashboard has always shown both on a single chart, so
// identical keys accumulate across kinds.
func emotionalDistribution(
	sessions []Session, patients []Patient,
) map[string]int {
	dist := make(map[string]int)
	for _, p := range patients {
		if p.EmotionalState != "" {
			dist[string(p.EmotionalState)]++
		}
	}
	for _, s := range sessions {
		if s.AIAnalysis != nil && s.AIAnalysis.EmotionalTone != "" {
			dist[string(s.AIAnalysis.EmotionalTone)]++
		}
	}
	return dist
}

// motivesDistribution counts patients by consultation motive,
// substituting the fixed MotiveUnspecified label when none is
// recorded.
func motivesDistribution(patients []Patient) map[string]int {
	dist := make(map[string]int)
	for _, p := range patients {
		motive := p.Motive
		if motive == "" {
			motive = MotiveUnspecified
		}
		dist[motive]++
	}
	return dist
}

// sessionTypeDistribution counts sessions by modality.
func sessionTypeDistribution(sessions []Session) map[string]int {
	dist := make(map[string]int)
	for _, s := range sessions {
		dist[string(s.Type)]++
	}
	return dist
}

// alertDistributions counts alerts by type and by urgency in
// one pass.
func alertDistributions(
	alerts []Alert,
) (byType, byUrgency map[string]int) {
	byType = make(map[string]int)
	byUrgency = make(map[string]int)
	for _, a := range alerts {
		byType[a.Type]++
		byUrgency[string(a.Urgency)]++
	}
	return byType, byUrgency
}

// professionalWorkload counts sessions by professional.
func professionalWorkload(sessions []Session) map[string]int {
	dist := make(map[string]int)
	for _, s := range sessions {
		dist[s.ProfessionalID]++
	}
	return dist
}

// riskCounts tallies AI-analyzed sessions by risk level.
// Sessions without analysis contribute to no bucket.
func riskCounts(sessions []Session) (high, medium, low int) {
	for _, s := range sessions {
		if s.AIAnalysis == nil {
			continue
		}
		switch s.AIAnalysis.RiskLevel {
		case RiskHigh:
			high++
		case RiskMedium:
			medium++
		case RiskLow:
			low++
		}
	}
	return high, medium, low
}

// alertStatusCounts tallies active and resolved alerts. Other
// statuses (dismissed, unknown) count toward neither.
func alertStatusCounts(alerts []Alert) (active, resolved int) {
	for _, a := range alerts {
		switch a.Status {
		case AlertActive:
			active++
		case AlertResolved:
			resolved++
		}
	}
	return active, resolved
}
