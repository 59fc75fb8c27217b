package controller

// phase is the one-shot controller state held by the persisted beginning flag.
type phase int

const (
	// phaseInitial: no decision has been made yet (beginning == false).
	phaseInitial phase = iota
	// phaseSteady: at least one decision has been made (beginning == true).
	phaseSteady
)

func phaseOf(beginning bool) phase {
	if beginning {
		return phaseSteady
	}
	return phaseInitial
}

// percentDenominator picks the threshold the percent rule divides by.
// The very first decision uses the freshly updated threshold; every later
// one uses the threshold the run started with.
func (ph phase) percentDenominator(pre, updated float64) float64 {
	if ph == phaseInitial {
		return updated
	}
	return pre
}

// transition returns the phase after a decision and whether the flag must be written.
func (ph phase) transition() (next phase, persist bool) {
	if ph == phaseInitial {
		return phaseSteady, true
	}
	return phaseSteady, false
}
