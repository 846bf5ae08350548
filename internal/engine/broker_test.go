package engine

import "testing"

func TestBrokerHighestStepWins(t *testing.T) {
	t.Parallel()

	b := NewBroker()
	b.Register(2, &InputDescriptor{Placeholder: "earlier"})
	b.Register(5, &InputDescriptor{Placeholder: "later"})

	step, d := b.Active()
	if step != 5 || d == nil || d.Placeholder != "later" {
		t.Fatalf("expected step 5 to win, got step %d desc %+v", step, d)
	}
}

func TestBrokerNilRegisterClearsSlot(t *testing.T) {
	t.Parallel()

	b := NewBroker()
	b.Register(3, &InputDescriptor{Placeholder: "active"})
	b.Register(3, nil)

	if step, d := b.Active(); d != nil {
		t.Fatalf("expected no active descriptor, got step %d %+v", step, d)
	}
}

func TestBrokerDeregisterFallsBack(t *testing.T) {
	t.Parallel()

	b := NewBroker()
	b.Register(1, &InputDescriptor{Placeholder: "one"})
	b.Register(2, &InputDescriptor{Placeholder: "two"})

	b.Deregister(2)

	step, d := b.Active()
	if step != 1 || d == nil || d.Placeholder != "one" {
		t.Fatalf("expected fallback to step 1, got step %d desc %+v", step, d)
	}
}

func TestBrokerReset(t *testing.T) {
	t.Parallel()

	b := NewBroker()
	b.Register(1, &InputDescriptor{})
	b.Register(2, &InputDescriptor{})
	b.Reset()

	if _, d := b.Active(); d != nil {
		t.Fatal("expected empty broker after reset")
	}
}
