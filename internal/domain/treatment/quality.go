package treatment

// QualityMetrics is a point-in-time snapshot derived from a plan and its
// sessions. It is computed fresh on every request and never persisted.
type QualityMetrics struct {
	TimeToTreatmentDays    int     `json:"time_to_treatment_days"`
	GuidelineConcordance   int     `json:"guideline_concordance"`
	DoseIntensity          float64 `json:"dose_intensity"`
	ToxicityRate           float64 `json:"toxicity_rate"`
	MultidisciplinaryReview bool   `json:"multidisciplinary_review"`
}

const severeToxicityGrade = 3

// ComputeQualityMetrics derives the quality snapshot for one plan. The
// zero-session defaults (dose intensity 100, toxicity rate 0) are part of the
// contract and intentionally differ from the adherence calculator's
// skip-on-empty behavior.
func ComputeQualityMetrics(plan *TreatmentPlan, sessions []*TreatmentSession) QualityMetrics {
	m := QualityMetrics{
		TimeToTreatmentDays:     int(plan.StartDate.Sub(plan.CreatedAt).Hours() / 24),
		GuidelineConcordance:    guidelineConcordance(plan),
		DoseIntensity:           doseIntensity(plan, sessions),
		ToxicityRate:            toxicityRate(sessions),
		MultidisciplinaryReview: plan.Team.Size() > 1,
	}
	return m
}

func guidelineConcordance(plan *TreatmentPlan) int {
	score := 100
	if plan.Protocol != nil {
		switch plan.Protocol.Category {
		case "clinical_trial":
			score += 5
		case "standard", "":
			// no adjustment
		default:
			score -= 10
		}
	}
	if plan.Team.Size() < 2 {
		score -= 5
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func doseIntensity(plan *TreatmentPlan, sessions []*TreatmentSession) float64 {
	if plan.TotalCycles == nil || *plan.TotalCycles == 0 || len(sessions) == 0 {
		return 100
	}
	completed := 0
	for _, s := range sessions {
		if s.Status == SessionCompleted {
			completed++
		}
	}
	return 100 * float64(completed) / float64(*plan.TotalCycles*SessionsPerCycle)
}

func toxicityRate(sessions []*TreatmentSession) float64 {
	if len(sessions) == 0 {
		return 0
	}
	severe := 0
	for _, s := range sessions {
		if s.PostAssessment != nil && s.PostAssessment.MaxGrade() >= severeToxicityGrade {
			severe++
		}
	}
	return 100 * float64(severe) / float64(len(sessions))
}
