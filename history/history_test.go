package history

import (
	"testing"

	"github.com/ddsmesh/rtpscore/guid"
	"github.com/ddsmesh/rtpscore/rtpstime"
)

type point struct {
	A int
	B string
}

func w() guid.GUID {
	return guid.New(guid.PrefixFromUint64(9, 9), guid.EntityIDSEDPPublicationsW)
}

// S1: a single sample is not-read on entry and read on exit.
func TestReadMarksSampleRead(t *testing.T) {
	e := New[int, point]()
	id := e.AddSample(1, false, point{A: 1, B: "somedata"}, w(), 0, 1, 1)

	ids := e.Select(Any())
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("expected one sample selected, got %v", ids)
	}

	samples := e.ReadByIDs(ids)
	if len(samples) != 1 {
		t.Fatalf("expected one sample read, got %d", len(samples))
	}
	if samples[0].Value != (point{A: 1, B: "somedata"}) {
		t.Fatalf("unexpected decoded value: %+v", samples[0].Value)
	}

	// Re-selecting with not-read should now yield nothing (invariant 2).
	again := e.Select(NotReadCondition())
	if len(again) != 0 {
		t.Fatalf("expected no not-read samples remaining, got %v", again)
	}
}

// S2: three changes from the same instance in sequence order are all
// returned by read_instance.
func TestReadInstanceOrder(t *testing.T) {
	e := New[int, point]()
	for seq := 0; seq < 3; seq++ {
		e.AddSample(1, false, point{A: 1, B: "v"}, w(), rtpstime.SequenceNumber(seq), rtpstime.Timestamp(seq+1), rtpstime.Timestamp(seq+1))
	}
	ids := e.SelectInstance(1, Any())
	if len(ids) != 3 {
		t.Fatalf("expected 3 samples for instance 1, got %d", len(ids))
	}
	samples := e.ReadByIDs(ids)
	for i, s := range samples {
		if int(s.SeqNum) != i {
			t.Fatalf("expected sequence order, got seq %d at position %d", s.SeqNum, i)
		}
	}
}

// S3: take empties an instance and a repeat take returns nothing;
// dispose transitions instance state but view only flips to not-new on
// data, not dispose.
func TestTakeInstanceThenRepeatIsEmpty(t *testing.T) {
	e := New[int, point]()
	e.AddSample(2, false, point{A: 2}, w(), 0, 1, 1)
	e.AddSample(2, false, point{A: 2}, w(), 1, 2, 2)
	e.AddSample(2, false, point{A: 2}, w(), 2, 3, 3)

	ids := e.SelectInstance(2, Any())
	taken := e.TakeByIDs(ids)
	if len(taken) != 3 {
		t.Fatalf("expected 3 samples taken, got %d", len(taken))
	}

	again := e.SelectInstance(2, Any())
	if len(again) != 0 {
		t.Fatalf("expected no samples left after take, got %v", again)
	}
}

func TestDisposeSetsInstanceNotAliveButNotAViewReset(t *testing.T) {
	e := New[int, point]()
	e.AddSample(1, false, point{A: 1}, w(), 0, 1, 1)
	e.ReadByIDs(e.Select(Any())) // flips view to not-new

	state, ok := e.InstanceState(1)
	if !ok || state != Alive {
		t.Fatalf("expected alive instance, got %v ok=%v", state, ok)
	}

	e.AddSample(1, true, point{}, w(), 1, 2, 2) // dispose-by-key sample
	state, ok = e.InstanceState(1)
	if !ok || state != NotAliveDisposed {
		t.Fatalf("expected not-alive-disposed after dispose, got %v", state)
	}
}

func TestViewBecomesNewAgainAfterReviving(t *testing.T) {
	e := New[int, point]()
	e.AddSample(1, false, point{A: 1}, w(), 0, 1, 1)
	e.ReadByIDs(e.Select(Any()))
	e.AddSample(1, true, point{}, w(), 1, 2, 2) // disposed

	// A fresh data sample after not-alive must flip the instance back
	// to "new" view.
	e.AddSample(1, false, point{A: 1}, w(), 2, 3, 3)

	ids := e.SelectInstance(1, ReadCondition{SampleState: MaskNotRead, ViewState: MaskNewView, InstanceState: MaskAlive})
	if len(ids) == 0 {
		t.Fatal("expected the revived instance's new sample to match the new-view condition")
	}
}

func TestFirstAndNextKey(t *testing.T) {
	e := New[int, point]()
	e.AddSample(1, false, point{}, w(), 0, 1, 1)
	e.AddSample(2, false, point{}, w(), 0, 2, 2)
	e.AddSample(2, false, point{}, w(), 1, 3, 3)
	e.AddSample(2, false, point{}, w(), 2, 4, 4)

	first, ok := e.FirstKey()
	if !ok || first != 1 {
		t.Fatalf("expected first key 1, got %d ok=%v", first, ok)
	}

	next, ok := e.NextKey(1)
	if !ok || next != 2 {
		t.Fatalf("expected next key 2, got %d ok=%v", next, ok)
	}

	_, ok = e.NextKey(2)
	if ok {
		t.Fatal("expected no key after the largest key")
	}
}

func TestKeyByHashResolution(t *testing.T) {
	e := New[int, point]()
	var hash [16]byte
	hash[0] = 7
	e.RegisterKeyHash(hash, 42)

	key, ok := e.KeyByHash(hash)
	if !ok || key != 42 {
		t.Fatalf("expected resolved key 42, got %d ok=%v", key, ok)
	}

	_, ok = e.KeyByHash([16]byte{9, 9})
	if ok {
		t.Fatal("expected unknown hash to miss")
	}
}
