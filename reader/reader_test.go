package reader

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/ddsmesh/rtpscore/change"
	"github.com/ddsmesh/rtpscore/ddscache"
	"github.com/ddsmesh/rtpscore/discovery"
	"github.com/ddsmesh/rtpscore/guid"
	"github.com/ddsmesh/rtpscore/history"
	"github.com/ddsmesh/rtpscore/qos"
	"github.com/ddsmesh/rtpscore/rtpstime"
)

// testValue is a tiny (a int, b string) record used across the
// scenario tests, matching spec.md §8's S1-S3 fixtures.
type testValue struct {
	A int
	B string
}

// testAdapter encodes testValue as: 4 bytes big-endian A, then raw
// bytes of B. It is a fixture, not a production codec.
type testAdapter struct{}

func (testAdapter) SupportedEncodings() []change.RepresentationID {
	return []change.RepresentationID{change.CDRLittleEndian}
}

func (testAdapter) FromBytes(data []byte, encoding change.RepresentationID) (testValue, error) {
	if len(data) < 4 {
		return testValue{}, errors.New("short buffer")
	}
	a := int(binary.BigEndian.Uint32(data[:4]))
	return testValue{A: a, B: string(data[4:])}, nil
}

type testKeyAdapter struct{}

func (testKeyAdapter) KeyFromBytes(data []byte, encoding change.RepresentationID) (int, error) {
	if len(data) < 4 {
		return 0, errors.New("short buffer")
	}
	return int(binary.BigEndian.Uint32(data[:4])), nil
}

func encodeTestValue(a int, b string) []byte {
	buf := make([]byte, 4+len(b))
	binary.BigEndian.PutUint32(buf[:4], uint32(a))
	copy(buf[4:], b)
	return buf
}

func writerGUID(n byte) guid.GUID {
	prefix := guid.Prefix{}
	prefix[0] = n
	return guid.New(prefix, guid.EntityID{0, 0, 1, guid.KindWriterWithKey})
}

func readerGUID(n byte) guid.GUID {
	prefix := guid.Prefix{}
	prefix[0] = n
	return guid.New(prefix, guid.EntityID{0, 0, 2, guid.KindReaderWithKey})
}

func newTestReader(t *testing.T) (*Reader[int, testValue], *ddscache.DDSCache) {
	t.Helper()
	cache := ddscache.New(&rtpstime.Source{})
	db := discovery.NewDatabase()

	// Reader tests drive the shared cache directly and don't exercise
	// discovery matching, so the reader is built with no command
	// channel or worker (both optional per New's nil checks).
	r, err := New[int, testValue](
		readerGUID(1), guid.ParticipantGUID(guid.Prefix{}),
		"dr", "Sample",
		qos.Default(),
		cache, testAdapter{}, testKeyAdapter{},
		nil, db, nil,
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r, cache
}

func TestScenarioS1SingleSampleReadMarksRead(t *testing.T) {
	r, cache := newTestReader(t)

	payload := change.SerializedPayload{Representation: change.CDRLittleEndian, Bytes: encodeTestValue(1, "somedata")}
	c := change.NewData(writerGUID(9), 0, 0, payload).WithInstanceID(change.KeyHash{1})
	cache.AddChange("dr", qos.Default(), c)

	samples := r.Read(1, history.Any())
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(samples))
	}
	if samples[0].Value.A != 1 || samples[0].Value.B != "somedata" {
		t.Fatalf("unexpected decoded value: %+v", samples[0].Value)
	}
	if samples[0].SampleState != history.Read {
		t.Fatal("expected sample state to be Read after the read call")
	}

	again := r.Read(10, history.NotReadCondition())
	if len(again) != 0 {
		t.Fatalf("expected no not-read samples remaining, got %d", len(again))
	}
}

func TestScenarioS2InstanceOrderPreserved(t *testing.T) {
	r, cache := newTestReader(t)
	w := writerGUID(3)

	for seq, b := range []string{"x", "y", "z"} {
		payload := change.SerializedPayload{Representation: change.CDRLittleEndian, Bytes: encodeTestValue(1, b)}
		c := change.NewData(w, rtpstime.SequenceNumber(seq), 0, payload).WithInstanceID(change.KeyHash{1})
		cache.AddChange("dr", qos.Default(), c)
	}

	key := 1
	samples := r.ReadInstance(100, history.Any(), &key, This)
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples for instance 1, got %d", len(samples))
	}
	for i, want := range []string{"x", "y", "z"} {
		if samples[i].Value.B != want {
			t.Fatalf("sample %d: expected %q, got %q", i, want, samples[i].Value.B)
		}
	}
}

func TestScenarioS3TakeInstanceThenEmpty(t *testing.T) {
	r, cache := newTestReader(t)
	w := writerGUID(4)

	keys := []int{1, 2, 2, 2}
	for seq, k := range keys {
		payload := change.SerializedPayload{Representation: change.CDRLittleEndian, Bytes: encodeTestValue(k, "v")}
		hash := change.KeyHash{byte(k)}
		c := change.NewData(w, rtpstime.SequenceNumber(seq), 0, payload).WithInstanceID(hash)
		cache.AddChange("dr", qos.Default(), c)
	}

	first := 1
	firstSamples := r.ReadInstance(100, history.Any(), nil, This)
	if len(firstSamples) != 1 || firstSamples[0].Key != first {
		t.Fatalf("expected the smallest key's single sample, got %+v", firstSamples)
	}

	nextSamples := r.ReadInstance(100, history.Any(), &first, Next)
	if len(nextSamples) != 3 {
		t.Fatalf("expected 3 samples for the next key, got %d", len(nextSamples))
	}

	secondKey := 2
	taken := r.TakeInstance(100, history.Any(), &secondKey, This)
	if len(taken) != 3 {
		t.Fatalf("expected to take 3 samples, got %d", len(taken))
	}

	takenAgain := r.TakeInstance(100, history.Any(), &secondKey, This)
	if len(takenAgain) != 0 {
		t.Fatalf("expected a repeat take_instance to return nothing, got %d", len(takenAgain))
	}
}

func TestScenarioS6NotificationDrainedOnTake(t *testing.T) {
	r, cache := newTestReader(t)
	payload := change.SerializedPayload{Representation: change.CDRLittleEndian, Bytes: encodeTestValue(1, "v")}
	c := change.NewData(writerGUID(1), 0, 0, payload).WithInstanceID(change.KeyHash{1})
	cache.AddChange("dr", qos.Default(), c)
	r.Signal()

	select {
	case <-r.Notifications():
	default:
		t.Fatal("expected the notification channel to carry a signal")
	}
	// signal again since the prior select consumed it
	r.Signal()

	r.Take(10, history.Any())

	select {
	case <-r.Notifications():
		t.Fatal("expected take() to have drained the notification channel")
	default:
	}
}

func TestDecodeFailureIsSkippedNotFatal(t *testing.T) {
	r, cache := newTestReader(t)
	badPayload := change.SerializedPayload{Representation: change.CDRLittleEndian, Bytes: []byte{0x01}}
	c := change.NewData(writerGUID(1), 0, 0, badPayload).WithInstanceID(change.KeyHash{1})
	cache.AddChange("dr", qos.Default(), c)

	samples := r.Read(10, history.Any())
	if len(samples) != 0 {
		t.Fatalf("expected the undecodable sample to be dropped, got %d", len(samples))
	}

	good := change.NewData(writerGUID(1), 1, 0, change.SerializedPayload{Representation: change.CDRLittleEndian, Bytes: encodeTestValue(7, "ok")}).WithInstanceID(change.KeyHash{7})
	cache.AddChange("dr", qos.Default(), good)
	samples = r.Read(10, history.Any())
	if len(samples) != 1 || samples[0].Value.A != 7 {
		t.Fatalf("expected reader state to remain consistent after a dropped sample, got %+v", samples)
	}
}
