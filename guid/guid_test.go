package guid

import "testing"

func TestRoundTrip(t *testing.T) {
	prefix := PrefixFromUint64(1, 2)
	g := New(prefix, EntityIDSEDPPublicationsW)

	got := FromBytes(g.Bytes())
	if got != g {
		t.Fatalf("round trip mismatch: got %v want %v", got, g)
	}
}

func TestEntityIDClassification(t *testing.T) {
	if !EntityIDSPDPBuiltinWriter.IsBuiltin() {
		t.Fatal("SPDP builtin writer should be builtin")
	}
	if EntityIDWriterWithKeyNotBuiltin().IsBuiltin() {
		t.Fatal("user writer should not be builtin")
	}
	if !EntityIDSEDPPublicationsW.HasKey() {
		t.Fatal("SEDP publications writer carries key semantics")
	}
}

func EntityIDWriterWithKeyNotBuiltin() EntityID {
	return EntityID{0x00, 0x00, 0x01, KindWriterWithKey}
}

func TestLess(t *testing.T) {
	a := New(PrefixFromUint64(1, 0), EntityIDParticipant)
	b := New(PrefixFromUint64(2, 0), EntityIDParticipant)
	if !a.Less(b) {
		t.Fatal("expected a < b")
	}
	if b.Less(a) {
		t.Fatal("expected b not < a")
	}
	if a.Less(a) {
		t.Fatal("expected a not < a")
	}
}

func TestString(t *testing.T) {
	g := New(PrefixFromUint64(0, 0), EntityIDParticipant)
	if g.String() == "" {
		t.Fatal("expected non-empty string representation")
	}
}
