package engine

// The step sequencer is a set of pure functions over a session's completion
// flags. Any two callers with the same flags get the same answer; nothing
// here remembers "where the user was". That purity is what makes resumption
// tractable.

// ActiveStep returns the lowest-numbered step (1-based) whose flag is false.
// It never skips ahead over a gap: forward progress is re-earned by explicit
// completion, so a false flag wins even when later flags are true. When every
// flag is true the result is len(completed)+1, one past the end.
func ActiveStep(completed []bool) int {
	for i, done := range completed {
		if !done {
			return i + 1
		}
	}
	return len(completed) + 1
}

// StepActive reports whether step n is the active one: its predecessor is
// complete and it is not.
func StepActive(completed []bool, n int) bool {
	return ActiveStep(completed) == n
}

// CurrentStepNumber is ActiveStep clamped to [1, total].
func CurrentStepNumber(completed []bool, total int) int {
	n := ActiveStep(completed)
	if n > total {
		n = total
	}
	if n < 1 {
		n = 1
	}
	return n
}

// CompletedCount counts completed steps, gaps included.
func CompletedCount(completed []bool) int {
	count := 0
	for _, done := range completed {
		if done {
			count++
		}
	}
	return count
}

// Progress returns completed/total as a percentage.
func Progress(completed []bool, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(CompletedCount(completed)) / float64(total) * 100
}

// AllCompleted reports whether every one of the total steps is complete.
func AllCompleted(completed []bool, total int) bool {
	if len(completed) < total {
		return false
	}
	for i := 0; i < total; i++ {
		if !completed[i] {
			return false
		}
	}
	return true
}

// MergeCompleted unions two flag sets. Completion is monotonic: a step that
// is true in either copy stays true, a conflict never regresses progress.
func MergeCompleted(a, b []bool) []bool {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]bool, n)
	for i := range out {
		if i < len(a) && a[i] {
			out[i] = true
		}
		if i < len(b) && b[i] {
			out[i] = true
		}
	}
	return out
}
