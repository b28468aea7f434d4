package lineage

import (
	"testing"

	"kaipulse.dev/sigil/canonical"
	"kaipulse.dev/sigil/keys"
	"kaipulse.dev/sigil/zk"
)

// newTestHead returns a freshly minted head and the creator keypair.
func newTestHead(t *testing.T) (*SigilMetadata, *keys.Keypair) {
	t.Helper()
	kp, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	m := &SigilMetadata{
		Pulse:            5_000_000,
		Beat:             21,
		StepIndex:        13,
		ChakraDay:        ChakraThroat,
		KaiSignature:     "c0ffee1234",
		CreatorPublicKey: kp.PublicEncoded,
	}
	if err := Refresh(m); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return m, kp
}

func TestSendAppendsParallelWindows(t *testing.T) {
	m, kp := newTestHead(t)

	res, err := Send(m, kp, SendRequest{SenderKaiPulse: 5_000_100})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Sealed != nil {
		t.Fatalf("unexpected seal on first send")
	}
	if len(m.Transfers) != 1 || len(m.HardenedTransfers) != 1 {
		t.Fatalf("windows not parallel: %d vs %d", len(m.Transfers), len(m.HardenedTransfers))
	}

	tr := m.Transfers[0]
	h := m.HardenedTransfers[0]

	// Legacy signature covers the sigil identity plus the send pulse.
	legacyMsg, err := canonical.Marshal(map[string]any{
		"pulse":          m.Pulse,
		"beat":           m.Beat,
		"stepIndex":      m.StepIndex,
		"chakraDay":      string(m.ChakraDay),
		"kaiSignature":   m.KaiSignature,
		"senderKaiPulse": int64(5_000_100),
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !keys.VerifyBase64(kp.PublicEncoded, legacyMsg, tr.SenderSignature) {
		t.Fatalf("legacy sender signature does not verify")
	}

	leaf, err := SenderLeaf(&tr)
	if err != nil {
		t.Fatalf("SenderLeaf: %v", err)
	}
	if h.TransferLeafHashSend != leaf {
		t.Fatalf("hardened entry not bound to sender leaf")
	}

	msg, err := sendMessage(m, &h)
	if err != nil {
		t.Fatalf("sendMessage: %v", err)
	}
	if !keys.VerifyBase64(h.SenderPubKey, msg, h.SenderSig) {
		t.Fatalf("hardened send signature does not verify")
	}
}

func TestSendPinsPreviousHeadRoot(t *testing.T) {
	m, kp := newTestHead(t)

	for i := 0; i < 3; i++ {
		if _, err := Send(m, kp, SendRequest{SenderKaiPulse: int64(100 + i)}); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	for i := range m.HardenedTransfers {
		want, err := ExpectedPreviousHeadRoot(m, i)
		if err != nil {
			t.Fatalf("ExpectedPreviousHeadRoot(%d): %v", i, err)
		}
		if m.HardenedTransfers[i].PreviousHeadRoot != want {
			t.Fatalf("entry %d pinned %s want %s", i, m.HardenedTransfers[i].PreviousHeadRoot, want)
		}
	}

	// Consecutive entries must never pin the same snapshot.
	if m.HardenedTransfers[0].PreviousHeadRoot == m.HardenedTransfers[1].PreviousHeadRoot {
		t.Fatalf("consecutive entries pinned identical roots")
	}
}

func TestSendAllowsUnreceivedPredecessors(t *testing.T) {
	m, kp := newTestHead(t)
	for i := 0; i < 5; i++ {
		if _, err := Send(m, kp, SendRequest{SenderKaiPulse: int64(i)}); err != nil {
			t.Fatalf("Send %d without receive: %v", i, err)
		}
	}
	for i := range m.Transfers {
		if m.Transfers[i].Received() {
			t.Fatalf("transfer %d unexpectedly received", i)
		}
	}
}

func TestReceiveFinalizesLastEntry(t *testing.T) {
	m, sender := newTestHead(t)
	receiver, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if _, err := Send(m, sender, SendRequest{SenderKaiPulse: 10}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	h, err := Receive(m, receiver, ReceiveRequest{ReceiverKaiPulse: 20})
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}

	if !h.Received() || !m.Transfers[0].Received() {
		t.Fatalf("receive did not finalize both records")
	}
	full, err := FullLeaf(&m.Transfers[0])
	if err != nil {
		t.Fatalf("FullLeaf: %v", err)
	}
	if h.TransferLeafHashReceive != full {
		t.Fatalf("receive leaf not bound")
	}
	msg, err := receiveMessage(h)
	if err != nil {
		t.Fatalf("receiveMessage: %v", err)
	}
	if !keys.VerifyBase64(receiver.PublicEncoded, msg, h.ReceiverSig) {
		t.Fatalf("receive signature does not verify")
	}

	// No new entry was created.
	if len(m.HardenedTransfers) != 1 || len(m.Transfers) != 1 {
		t.Fatalf("receive must attach, not append")
	}
}

func TestReceiveErrors(t *testing.T) {
	m, sender := newTestHead(t)
	receiver, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if _, err := Receive(m, receiver, ReceiveRequest{ReceiverKaiPulse: 1}); err == nil {
		t.Fatalf("expected error receiving with empty window")
	}

	if _, err := Send(m, sender, SendRequest{SenderKaiPulse: 10}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := Receive(m, receiver, ReceiveRequest{ReceiverKaiPulse: 20}); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	_, err = Receive(m, receiver, ReceiveRequest{ReceiverKaiPulse: 30})
	if err == nil {
		t.Fatalf("expected error receiving an already-received transfer")
	}
	if !IsKind(err, KindValidation) {
		t.Fatalf("wrong error kind: %v", err)
	}
}

func TestReceiveRejectsMismatchedSendLeaf(t *testing.T) {
	m, sender := newTestHead(t)
	receiver, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := Send(m, sender, SendRequest{SenderKaiPulse: 10}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// Drift the open legacy record away from the leaf the sender signed over.
	m.Transfers[0].SenderKaiPulse++

	_, err = Receive(m, receiver, ReceiveRequest{ReceiverKaiPulse: 20})
	if err == nil {
		t.Fatalf("expected error receiving a transfer whose send leaf no longer matches")
	}
	if !IsKind(err, KindValidation) {
		t.Fatalf("wrong error kind: %v", err)
	}
	if m.Transfers[0].Received() || m.HardenedTransfers[0].Received() {
		t.Fatalf("rejected receive mutated the head")
	}
}

func TestAttachZkStamps(t *testing.T) {
	m, sender := newTestHead(t)
	bundle := &zk.Bundle{Proof: "cHJvb2Y=", PublicSignals: []string{"7"}, Vkey: "dmtleQ=="}

	if err := AttachZkSend(m, bundle, ""); err == nil {
		t.Fatalf("expected error stamping with no transfers")
	}

	if _, err := Send(m, sender, SendRequest{SenderKaiPulse: 10}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := AttachZkReceive(m, bundle, ""); err == nil {
		t.Fatalf("expected error stamping receive before receive")
	}
	if err := AttachZkSend(m, bundle, ""); err != nil {
		t.Fatalf("AttachZkSend: %v", err)
	}

	h := m.HardenedTransfers[0]
	if h.ZkSend == nil || h.ZkSendBundle == nil {
		t.Fatalf("stamp or bundle missing after attach")
	}
	if h.ZkSend.Verified {
		t.Fatalf("a fresh stamp must not claim verification")
	}
	ok, err := h.ZkSend.Matches(bundle, zk.EffectiveVkey(bundle, m.ZKVerifyingKey, ""))
	if err != nil || !ok {
		t.Fatalf("stamp does not match its own bundle: ok=%v err=%v", ok, err)
	}

	receiver, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := Receive(m, receiver, ReceiveRequest{ReceiverKaiPulse: 20}); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := AttachZkReceive(m, bundle, ""); err != nil {
		t.Fatalf("AttachZkReceive: %v", err)
	}
	if m.HardenedTransfers[0].ZkReceive == nil {
		t.Fatalf("receive stamp missing")
	}
}
