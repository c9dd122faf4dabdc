package ring

import "testing"

func TestNewEmpty(t *testing.T) {
	b := New(4)
	if !b.Empty() {
		t.Error("fresh ring should be empty")
	}
	if b.Full() {
		t.Error("fresh ring should not be full")
	}
	if b.Cap() != 4 {
		t.Errorf("Cap() = %d, want 4", b.Cap())
	}
}

func TestPushPopOrder(t *testing.T) {
	b := New(3)
	b.Push(1)
	b.Push(2)
	b.Push(3)

	if !b.Full() {
		t.Error("ring at capacity should be full")
	}

	for _, want := range []int{1, 2, 3} {
		if got := b.Pop(); got != want {
			t.Errorf("Pop() = %v, want %d", got, want)
		}
	}
	if !b.Empty() {
		t.Error("ring should be empty after draining")
	}
}

func TestWraparound(t *testing.T) {
	b := New(2)
	b.Push("a")
	b.Push("b")
	if b.Pop() != "a" {
		t.Fatal("expected a first")
	}
	b.Push("c")
	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}
	if got := b.Pop(); got != "b" {
		t.Errorf("Pop() = %v, want b", got)
	}
	if got := b.Pop(); got != "c" {
		t.Errorf("Pop() = %v, want c", got)
	}
}

func TestPushOnFullPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Push on full ring should panic")
		}
	}()
	b := New(1)
	b.Push(1)
	b.Push(2)
}

func TestPopOnEmptyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Pop on empty ring should panic")
		}
	}()
	b := New(1)
	b.Pop()
}

func TestNewNonPositiveCapacityPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("New with capacity 0 should panic")
		}
	}()
	New(0)
}
