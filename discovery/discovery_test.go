package discovery

import (
	"testing"
	"time"

	"github.com/ddsmesh/rtpscore/guid"
	"github.com/ddsmesh/rtpscore/qos"
)

func testParticipant(n byte) guid.GUID {
	prefix := guid.Prefix{}
	prefix[0] = n
	return guid.ParticipantGUID(prefix)
}

func testEndpoint(participant byte, entity byte, kind byte) guid.GUID {
	prefix := guid.Prefix{}
	prefix[0] = participant
	return guid.New(prefix, guid.EntityID{0, 0, entity, kind})
}

func TestParticipantCleanupIdempotent(t *testing.T) {
	db := NewDatabase()
	p := ParticipantProxy{GUID: testParticipant(1), LeaseDuration: time.Second}
	t0 := time.Unix(1000, 0)
	if !db.UpdateParticipant(p, t0) {
		t.Fatal("expected update to succeed")
	}

	past := t0.Add(2 * time.Second)
	db.ParticipantCleanup(past)
	if got := len(db.GetParticipants()); got != 0 {
		t.Fatalf("expected participant evicted, got %d remaining", got)
	}

	// invariant 6: a second cleanup with no intervening updates evicts
	// nothing further and does not panic on an already-empty table.
	db.ParticipantCleanup(past)
	if got := len(db.GetParticipants()); got != 0 {
		t.Fatalf("expected cleanup to remain idempotent, got %d", got)
	}
}

func TestTopicCleanupPreservesLocallyReferencedTopics(t *testing.T) {
	db := NewDatabase()
	t0 := time.Unix(1000, 0)

	sub := LocalSubscription{GUID: testEndpoint(1, 4, guid.KindReaderWithKey), Topic: "Temperature", TypeName: "Temp", Qos: qos.Policies{Lifespan: time.Second}}
	db.UpdateLocalTopicReader(sub, t0)

	future := t0.Add(10 * time.Second)
	db.TopicCleanup(future)

	db.mu.RLock()
	_, stillThere := db.topics["Temperature"]
	db.mu.RUnlock()
	if !stillThere {
		t.Fatal("invariant 7 violated: locally referenced topic was evicted")
	}

	// once the local reader is removed, the topic is free to age out.
	db.RemoveLocalReader(sub.GUID)
	db.TopicCleanup(future)
	db.mu.RLock()
	_, stillThereAfterRemoval := db.topics["Temperature"]
	db.mu.RUnlock()
	if stillThereAfterRemoval {
		t.Fatal("expected unreferenced expired topic to be evicted")
	}
}

func TestMatchedReaderListDedup(t *testing.T) {
	db := NewDatabase()
	t0 := time.Unix(1000, 0)

	writer := testEndpoint(1, 2, guid.KindWriterWithKey)
	db.UpdateLocalTopicWriter(LocalPublication{GUID: writer, Topic: "T", TypeName: "T"}, t0)

	participant := testParticipant(2)
	db.UpdateParticipant(ParticipantProxy{GUID: participant}, t0)

	reader := ReaderProxy{GUID: testEndpoint(2, 4, guid.KindReaderWithKey), ParticipantGUID: participant, Topic: "T", TypeName: "T"}
	db.UpdatePublication(WriterProxy{GUID: writer, ParticipantGUID: testParticipant(1), Topic: "T", TypeName: "T"}, t0)
	db.UpdateSubscription(reader, t0)
	// a second, identical SEDP announcement for the same reader must
	// replace, not append (invariant 8).
	db.UpdateSubscription(reader, t0.Add(time.Second))

	matches := db.GetMatchedReaders(writer)
	if len(matches) != 1 {
		t.Fatalf("expected exactly one matched reader, got %d", len(matches))
	}
}

func TestScenarioLeaseExpiryDropsMatches(t *testing.T) {
	db := NewDatabase()
	t0 := time.Unix(2000, 0)

	writer := testEndpoint(1, 2, guid.KindWriterWithKey)
	db.UpdateLocalTopicWriter(LocalPublication{GUID: writer, Topic: "T", TypeName: "T"}, t0)

	remoteParticipant := testParticipant(9)
	db.UpdateParticipant(ParticipantProxy{GUID: remoteParticipant, LeaseDuration: time.Second}, t0)

	reader := ReaderProxy{GUID: testEndpoint(9, 4, guid.KindReaderWithKey), ParticipantGUID: remoteParticipant, Topic: "T", TypeName: "T"}
	db.UpdateSubscription(reader, t0)

	if got := len(db.GetMatchedReaders(writer)); got != 1 {
		t.Fatalf("expected 1 matched reader before lease expiry, got %d", got)
	}

	db.ParticipantCleanup(t0.Add(5 * time.Second))
	if got := len(db.GetMatchedReaders(writer)); got != 0 {
		t.Fatalf("expected matched reader to be dropped once its participant's lease expired, got %d", got)
	}
}

func TestScenarioMatchedListUpdatesInPlace(t *testing.T) {
	db := NewDatabase()
	t0 := time.Unix(3000, 0)

	reader := testEndpoint(1, 4, guid.KindReaderWithKey)
	db.UpdateLocalTopicReader(LocalSubscription{GUID: reader, Topic: "T", TypeName: "T"}, t0)

	participant := testParticipant(5)
	db.UpdateParticipant(ParticipantProxy{GUID: participant}, t0)

	writerGUID := testEndpoint(5, 2, guid.KindWriterWithKey)
	db.UpdatePublication(WriterProxy{GUID: writerGUID, ParticipantGUID: participant, Topic: "T", TypeName: "T", UnicastLocators: []string{"10.0.0.1:7400"}}, t0)

	writers := db.GetMatchedWriters(reader)
	if len(writers) != 1 || writers[0].UnicastLocators[0] != "10.0.0.1:7400" {
		t.Fatalf("unexpected matched writer state: %+v", writers)
	}

	// a refreshed announcement with new locators updates the existing
	// entry in place rather than appending a second one.
	db.UpdatePublication(WriterProxy{GUID: writerGUID, ParticipantGUID: participant, Topic: "T", TypeName: "T", UnicastLocators: []string{"10.0.0.2:7400"}}, t0.Add(time.Second))

	writers = db.GetMatchedWriters(reader)
	if len(writers) != 1 {
		t.Fatalf("expected the matched writer list to stay at one entry, got %d", len(writers))
	}
	if writers[0].UnicastLocators[0] != "10.0.0.2:7400" {
		t.Fatalf("expected matched writer's locators to be refreshed in place, got %v", writers[0].UnicastLocators)
	}
}

func TestQoSIncompatibleWritersDoNotMatch(t *testing.T) {
	db := NewDatabase()
	t0 := time.Unix(4000, 0)

	reader := testEndpoint(1, 4, guid.KindReaderWithKey)
	db.UpdateLocalTopicReader(LocalSubscription{GUID: reader, Topic: "T", TypeName: "T", Qos: qos.Policies{Reliability: qos.Reliable}}, t0)

	participant := testParticipant(6)
	db.UpdateParticipant(ParticipantProxy{GUID: participant}, t0)

	db.UpdatePublication(WriterProxy{
		GUID:            testEndpoint(6, 2, guid.KindWriterWithKey),
		ParticipantGUID: participant,
		Topic:           "T",
		TypeName:        "T",
		Qos:             qos.Policies{Reliability: qos.BestEffort},
	}, t0)

	if got := len(db.GetMatchedWriters(reader)); got != 0 {
		t.Fatalf("expected best-effort writer to stay unmatched against reliable reader, got %d", got)
	}
}

func TestCommandChannelAppliesThroughWorker(t *testing.T) {
	db := NewDatabase()
	cmds := NewCommandChannel()
	w := NewWorker(db, cmds)

	ctxDone := make(chan struct{})
	go func() {
		defer close(ctxDone)
		w.apply(<-cmds.ch)
	}()

	go func() {
		_ = cmds.AddLocalWriter(LocalPublication{GUID: testEndpoint(1, 2, guid.KindWriterWithKey), Topic: "T", TypeName: "T"}, time.Unix(1, 0))
	}()

	select {
	case <-ctxDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for worker to apply command")
	}
}
