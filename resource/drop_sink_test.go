package resource

import (
	"errors"
	"testing"
)

func TestDropSinkRetention(t *testing.T) {
	var destroyed []int
	sink := NewDropSink(2, func(v int) error {
		destroyed = append(destroyed, v)
		return nil
	})

	sink.Retire(1)
	// Retired at frame 0 with 2 frames in flight: gone after the 3rd frame.
	for frame := 1; frame <= 2; frame++ {
		if err := sink.OnFrameComplete(); err != nil {
			t.Fatal(err)
		}
		if len(destroyed) != 0 {
			t.Fatalf("destroyed after %d frames, want 3", frame)
		}
	}
	sink.Retire(2)
	if err := sink.OnFrameComplete(); err != nil {
		t.Fatal(err)
	}
	if len(destroyed) != 1 || destroyed[0] != 1 {
		t.Fatalf("destroyed = %v, want [1]", destroyed)
	}
	if sink.Len() != 1 {
		t.Errorf("Len() = %d, want 1", sink.Len())
	}

	if err := sink.Destroy(); err != nil {
		t.Fatal(err)
	}
	if len(destroyed) != 2 || sink.Len() != 0 {
		t.Errorf("after Destroy: destroyed=%v len=%d", destroyed, sink.Len())
	}
}

func TestDropSinkPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	sink := NewDropSink(0, func(int) error { return boom })
	sink.Retire(1)
	if err := sink.OnFrameComplete(); !errors.Is(err, boom) {
		t.Errorf("OnFrameComplete() = %v, want %v", err, boom)
	}
}

func TestArcReleasePushesOnce(t *testing.T) {
	q := &DropQueue[string]{}
	a := NewArc("tex", q)
	a.Clone()
	a.Release()
	if got := q.Drain(); len(got) != 0 {
		t.Fatalf("drained %v with a reference outstanding", got)
	}
	a.Release()
	if got := q.Drain(); len(got) != 1 || got[0] != "tex" {
		t.Fatalf("drained %v, want [tex]", got)
	}

	defer func() {
		if recover() == nil {
			t.Error("releasing a released handle did not panic")
		}
	}()
	a.Release()
}

func TestDropQueueDrainOrder(t *testing.T) {
	q := &DropQueue[int]{}
	for i := 0; i < 4; i++ {
		q.Push(i)
	}
	got := q.Drain()
	for i, v := range got {
		if v != i {
			t.Fatalf("Drain() = %v, want push order", got)
		}
	}
	if len(q.Drain()) != 0 {
		t.Error("second Drain should be empty")
	}
}
