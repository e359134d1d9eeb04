package treatment

import "math"

// SessionsPerCycle is the fixed number of sessions that make up one cycle for
// cycle-completion counting and dose-intensity math. It is deliberately
// independent of any cycle-length setting declared on the plan itself; both
// the adherence summary and the quality metrics use this one constant.
const SessionsPerCycle = 4

// AdherenceResult is the outcome of one adherence derivation.
type AdherenceResult struct {
	Adherence       Adherence
	CompletedCycles int
}

// ComputeAdherence derives the adherence summary from a plan's full session
// list. It is a pure function; writing the result back onto the plan is the
// caller's job. With an empty session list there is nothing to derive and
// ok is false: the caller keeps the plan's prior summary.
func ComputeAdherence(sessions []*TreatmentSession) (AdherenceResult, bool) {
	total := len(sessions)
	if total == 0 {
		return AdherenceResult{}, false
	}

	var completed, missed, postponed int
	for _, s := range sessions {
		switch s.Status {
		case SessionCompleted:
			completed++
		case SessionMissed, SessionCancelled:
			missed++
		case SessionPostponed:
			postponed++
		}
	}

	pct := int(math.Round(100 * float64(completed) / float64(total)))

	return AdherenceResult{
		Adherence: Adherence{
			OverallAdherence:  pct,
			MissedSessions:    missed,
			PostponedSessions: postponed,
			Score:             scoreFor(pct),
		},
		CompletedCycles: completed / SessionsPerCycle,
	}, true
}

func scoreFor(pct int) AdherenceScore {
	switch {
	case pct >= 95:
		return AdherenceExcellent
	case pct >= 85:
		return AdherenceGood
	case pct >= 70:
		return AdherenceFair
	default:
		return AdherencePoor
	}
}
