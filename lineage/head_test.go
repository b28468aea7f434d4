package lineage

import (
	"testing"

	"kaipulse.dev/sigil/digest"
)

func TestHeadSnapshotHashDeterministic(t *testing.T) {
	m, _ := newTestHead(t)

	a, err := HeadSnapshotHash(m, nil)
	if err != nil {
		t.Fatalf("HeadSnapshotHash: %v", err)
	}
	b, err := HeadSnapshotHash(m, nil)
	if err != nil {
		t.Fatalf("HeadSnapshotHash: %v", err)
	}
	if a != b {
		t.Fatalf("snapshot hash not deterministic: %s vs %s", a, b)
	}
	if !digest.IsHex(a, 32) {
		t.Fatalf("snapshot hash is not a 32-byte hex digest: %s", a)
	}
}

func TestHeadSnapshotHashCumulativeOverride(t *testing.T) {
	m, _ := newTestHead(t)

	base, err := HeadSnapshotHash(m, nil)
	if err != nil {
		t.Fatalf("HeadSnapshotHash: %v", err)
	}
	one := 1
	shifted, err := HeadSnapshotHash(m, &one)
	if err != nil {
		t.Fatalf("HeadSnapshotHash: %v", err)
	}
	if base == shifted {
		t.Fatalf("cumulative override did not change the snapshot")
	}

	zero := 0
	same, err := HeadSnapshotHash(m, &zero)
	if err != nil {
		t.Fatalf("HeadSnapshotHash: %v", err)
	}
	if same != base {
		t.Fatalf("override equal to stored cumulative must reproduce the snapshot")
	}
}

func TestExpectedPreviousHeadRootShiftsPerIndex(t *testing.T) {
	m, _ := newTestHead(t)
	m.Segments = []SegmentEntry{{Index: 0, Root: digest.SHA256HexString("seg"), CID: "bafy-test", Count: 3}}
	if err := Refresh(m); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	r0, err := ExpectedPreviousHeadRoot(m, 0)
	if err != nil {
		t.Fatalf("ExpectedPreviousHeadRoot(0): %v", err)
	}
	r1, err := ExpectedPreviousHeadRoot(m, 1)
	if err != nil {
		t.Fatalf("ExpectedPreviousHeadRoot(1): %v", err)
	}
	if r0 == r1 {
		t.Fatalf("adjacent live-window indices pinned identical roots")
	}

	// Index 0 after 3 archived transfers is the cumulative-3 snapshot.
	three := 3
	want, err := HeadSnapshotHash(m, &three)
	if err != nil {
		t.Fatalf("HeadSnapshotHash: %v", err)
	}
	if r0 != want {
		t.Fatalf("expected archived total to carry into the pinned snapshot")
	}

	if _, err := ExpectedPreviousHeadRoot(m, -1); err == nil {
		t.Fatalf("expected error for negative index")
	}
}

func TestRefreshDerivedRoots(t *testing.T) {
	m, kp := newTestHead(t)
	if m.TransfersWindowRoot != digest.ZeroRoot {
		t.Fatalf("empty window root: got %s want zero root", m.TransfersWindowRoot)
	}
	if m.TransfersWindowRootV14 != digest.ZeroRoot {
		t.Fatalf("empty hardened root: got %s want zero root", m.TransfersWindowRootV14)
	}
	if m.SegmentsMerkleRoot != "" {
		t.Fatalf("segments root must be empty with no segments")
	}

	if _, err := Send(m, kp, SendRequest{SenderKaiPulse: 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if m.TransfersWindowRoot == digest.ZeroRoot || m.TransfersWindowRootV14 == digest.ZeroRoot {
		t.Fatalf("window roots not recomputed after send")
	}

	// The hardened root uses the send leaf until receive, then the full leaf.
	before := m.TransfersWindowRootV14
	receiver := kp
	if _, err := Receive(m, receiver, ReceiveRequest{ReceiverKaiPulse: 2}); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if m.TransfersWindowRootV14 == before {
		t.Fatalf("hardened root did not advance on receive")
	}
}
