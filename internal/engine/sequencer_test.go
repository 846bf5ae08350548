package engine

import "testing"

func TestActiveStepFirstIncomplete(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		completed []bool
		want      int
	}{
		{"fresh session", []bool{false, false, false}, 1},
		{"two done", []bool{true, true, false, false}, 3},
		{"all done", []bool{true, true, true}, 4},
		{"empty flags", nil, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ActiveStep(tc.completed); got != tc.want {
				t.Fatalf("expected active step %d, got %d", tc.want, got)
			}
		})
	}
}

func TestActiveStepDeterministic(t *testing.T) {
	t.Parallel()

	completed := []bool{true, true, false, false, false}
	first := ActiveStep(completed)
	for i := 0; i < 10; i++ {
		if got := ActiveStep(completed); got != first {
			t.Fatalf("call %d returned %d, first call returned %d", i, got, first)
		}
	}
	if first != 3 {
		t.Fatalf("expected active step 3, got %d", first)
	}
}

func TestActiveStepNeverSkipsGaps(t *testing.T) {
	t.Parallel()

	// A hole from a buggy write still activates the lowest incomplete step:
	// forward progress is re-earned, never inferred.
	completed := []bool{true, false, true, true}
	if got := ActiveStep(completed); got != 2 {
		t.Fatalf("expected active step 2 despite later flags, got %d", got)
	}
	if StepActive(completed, 3) {
		t.Fatal("step 3 must not be active while step 2 is incomplete")
	}
	if !StepActive(completed, 2) {
		t.Fatal("expected step 2 to be active")
	}
}

func TestCurrentStepNumberClamped(t *testing.T) {
	t.Parallel()

	if got := CurrentStepNumber([]bool{true, true, true}, 3); got != 3 {
		t.Fatalf("expected clamp to 3, got %d", got)
	}
	if got := CurrentStepNumber(nil, 3); got != 1 {
		t.Fatalf("expected floor of 1, got %d", got)
	}
}

func TestProgress(t *testing.T) {
	t.Parallel()

	if got := Progress([]bool{true, false, false, false}, 4); got != 25 {
		t.Fatalf("expected 25, got %v", got)
	}
	if got := Progress(nil, 0); got != 0 {
		t.Fatalf("expected 0 for empty plan, got %v", got)
	}
}

func TestMergeCompletedMonotonic(t *testing.T) {
	t.Parallel()

	local := []bool{true, true, false}
	remote := []bool{true, false, false}

	merged := MergeCompleted(local, remote)
	if !merged[0] || !merged[1] || merged[2] {
		t.Fatalf("expected union [true true false], got %v", merged)
	}

	// No sequence of merges may revert a completed step.
	again := MergeCompleted(merged, []bool{false, false, false})
	for i, done := range merged {
		if done && !again[i] {
			t.Fatalf("step %d regressed from completed", i+1)
		}
	}
}

func TestMergeCompletedDifferentLengths(t *testing.T) {
	t.Parallel()

	merged := MergeCompleted([]bool{true}, []bool{false, true, false})
	if len(merged) != 3 {
		t.Fatalf("expected length 3, got %d", len(merged))
	}
	if !merged[0] || !merged[1] || merged[2] {
		t.Fatalf("expected [true true false], got %v", merged)
	}
}

func TestAllCompleted(t *testing.T) {
	t.Parallel()

	if AllCompleted([]bool{true, true, false}, 3) {
		t.Fatal("incomplete flags reported as all done")
	}
	if !AllCompleted([]bool{true, true, true}, 3) {
		t.Fatal("complete flags not reported as all done")
	}
	if AllCompleted([]bool{true, true}, 3) {
		t.Fatal("short flag slice must not count as all done")
	}
}
