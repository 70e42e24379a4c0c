package qos

import (
	"testing"
	"time"
)

func TestDefaultIsBestEffortVolatile(t *testing.T) {
	d := Default()
	if d.Reliability != BestEffort || d.Durability != Volatile {
		t.Fatalf("unexpected defaults: %+v", d)
	}
	if d.LeaseDuration != 100*time.Second {
		t.Fatalf("expected default lease of 100s, got %v", d.LeaseDuration)
	}
}

func TestReliabilityCompatibility(t *testing.T) {
	reliableReader := Default()
	reliableReader.Reliability = Reliable
	bestEffortWriter := Default()

	if CompatibleRequestedOffered(reliableReader, bestEffortWriter) {
		t.Fatal("reliable reader must not match best-effort writer")
	}

	reliableWriter := Default()
	reliableWriter.Reliability = Reliable
	if !CompatibleRequestedOffered(reliableReader, reliableWriter) {
		t.Fatal("reliable reader should match reliable writer")
	}

	bestEffortReader := Default()
	if !CompatibleRequestedOffered(bestEffortReader, reliableWriter) {
		t.Fatal("best-effort reader should match any writer reliability")
	}
}

func TestDurabilityCompatibility(t *testing.T) {
	requested := Default()
	requested.Durability = TransientLocal
	offeredVolatile := Default()
	if CompatibleRequestedOffered(requested, offeredVolatile) {
		t.Fatal("transient-local request should not match volatile offer")
	}

	offeredTransient := Default()
	offeredTransient.Durability = Transient
	if !CompatibleRequestedOffered(requested, offeredTransient) {
		t.Fatal("transient-local request should match a stronger transient offer")
	}
}

func TestDeadlineCompatibility(t *testing.T) {
	requested := Default()
	requested.Deadline = 1 * time.Second
	offeredLoose := Default()
	offeredLoose.Deadline = 2 * time.Second
	if CompatibleRequestedOffered(requested, offeredLoose) {
		t.Fatal("reader requiring 1s deadline should not match writer offering only 2s")
	}

	offeredTight := Default()
	offeredTight.Deadline = 500 * time.Millisecond
	if !CompatibleRequestedOffered(requested, offeredTight) {
		t.Fatal("reader requiring 1s deadline should match writer offering 500ms")
	}
}
