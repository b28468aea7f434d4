package lineage

import (
	"context"
	"errors"
	"testing"

	"kaipulse.dev/sigil/keys"
	"kaipulse.dev/sigil/zk"
)

// chain builds a head with n sent transfers, receiving those whose index is
// flagged in received.
func chain(t *testing.T, n int, received map[int]bool) (*SigilMetadata, *keys.Keypair) {
	t.Helper()
	m, sender := newTestHead(t)
	receiver, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i := 0; i < n; i++ {
		if _, err := Send(m, sender, SendRequest{SenderKaiPulse: int64(1000 + i)}); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
		if received[i] {
			if _, err := Receive(m, receiver, ReceiveRequest{ReceiverKaiPulse: int64(2000 + i)}); err != nil {
				t.Fatalf("Receive %d: %v", i, err)
			}
		}
	}
	return m, sender
}

func issueKinds(r *Report) map[IssueKind]int {
	out := map[IssueKind]int{}
	for _, iss := range r.Issues {
		out[iss.Kind]++
	}
	return out
}

func TestVerifyCleanChain(t *testing.T) {
	m, _ := chain(t, 4, map[int]bool{0: true, 1: true, 3: true})

	r, err := Verify(context.Background(), m, VerifyOptions{})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !r.OK {
		t.Fatalf("clean chain reported issues: %+v", r.Issues)
	}
	if r.Count != 4 || len(r.Entries) != 4 {
		t.Fatalf("entry accounting: count=%d entries=%d", r.Count, len(r.Entries))
	}
	for _, e := range r.Entries {
		if !e.Send.LeafOK || !e.Send.SigOK {
			t.Fatalf("entry %d send checks failed", e.Index)
		}
	}
	if r.Entries[0].Receive == nil || r.Entries[2].Receive != nil {
		t.Fatalf("receive detail placement wrong")
	}
	if r.ZK.SendVerified != 0 || r.ZK.Unavailable != 0 {
		t.Fatalf("zk accounting on a chain without stamps: %+v", r.ZK)
	}
}

func TestVerifyDetectsTamperedLegacyRecord(t *testing.T) {
	m, _ := chain(t, 3, nil)
	m.Transfers[1].SenderKaiPulse++

	r, err := Verify(context.Background(), m, VerifyOptions{})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if r.OK {
		t.Fatalf("tamper not detected")
	}
	kinds := issueKinds(r)
	if kinds[IssueSendLeafMismatch] != 1 {
		t.Fatalf("want one sendLeafMismatch, got %+v", kinds)
	}
	for _, iss := range r.Issues {
		if iss.Index != 1 {
			t.Fatalf("issue leaked to entry %d: %+v", iss.Index, iss)
		}
	}
	// Entries around the tampered one stay clean.
	if !r.Entries[0].Send.LeafOK || !r.Entries[2].Send.LeafOK {
		t.Fatalf("clean entries were blamed")
	}
	// The hardened signature itself is still genuine.
	if !r.Entries[1].Send.SigOK {
		t.Fatalf("signature check must be independent of the leaf check")
	}
}

func TestVerifyDetectsForgedPreviousHeadRoot(t *testing.T) {
	m, _ := chain(t, 3, nil)
	forged := []rune(m.HardenedTransfers[1].PreviousHeadRoot)
	if forged[0] == '0' {
		forged[0] = '1'
	} else {
		forged[0] = '0'
	}
	m.HardenedTransfers[1].PreviousHeadRoot = string(forged)

	r, err := Verify(context.Background(), m, VerifyOptions{})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	kinds := issueKinds(r)
	if kinds[IssuePrevHeadMismatch] != 1 || len(r.Issues) != 1 {
		t.Fatalf("want exactly one prevHeadMismatch, got %+v", r.Issues)
	}
	// Deeper checks for the voided entry never ran.
	if r.Entries[1].Send.LeafOK || r.Entries[1].Send.SigOK {
		t.Fatalf("voided entry reported deeper check results")
	}
	// The run continued past the voided entry.
	if !r.Entries[2].Send.LeafOK || !r.Entries[2].Send.SigOK {
		t.Fatalf("entry after the voided one was not checked")
	}
}

func TestVerifyDetectsForeignSignature(t *testing.T) {
	m, _ := chain(t, 2, nil)
	// A signature from the right key over the wrong entry's message.
	m.HardenedTransfers[0].SenderSig, m.HardenedTransfers[1].SenderSig =
		m.HardenedTransfers[1].SenderSig, m.HardenedTransfers[0].SenderSig

	r, err := Verify(context.Background(), m, VerifyOptions{})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	kinds := issueKinds(r)
	if kinds[IssueSendSigInvalid] != 2 {
		t.Fatalf("want two sendSigInvalid, got %+v", kinds)
	}
	// Leaves are untouched.
	if !r.Entries[0].Send.LeafOK || !r.Entries[1].Send.LeafOK {
		t.Fatalf("leaf checks must be independent of signature checks")
	}
}

func TestVerifyDetectsTamperedReceiveSide(t *testing.T) {
	m, _ := chain(t, 2, map[int]bool{1: true})
	m.Transfers[1].ReceiverKaiPulse++

	r, err := Verify(context.Background(), m, VerifyOptions{})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	kinds := issueKinds(r)
	if kinds[IssueReceiveLeafMismatch] != 1 {
		t.Fatalf("want receiveLeafMismatch, got %+v", kinds)
	}
	// Send side of the same entry is untouched.
	if !r.Entries[1].Send.LeafOK || !r.Entries[1].Send.SigOK {
		t.Fatalf("send side blamed for receive tamper")
	}
}

func TestVerifyDetectsStrippedReceiverFields(t *testing.T) {
	m, _ := chain(t, 1, map[int]bool{0: true})
	m.Transfers[0].ReceiverSignature = ""
	m.Transfers[0].ReceiverStamp = ""
	m.Transfers[0].ReceiverKaiPulse = 0

	r, err := Verify(context.Background(), m, VerifyOptions{})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if r.OK {
		t.Fatalf("stripped receiver fields passed verification")
	}
	kinds := issueKinds(r)
	if kinds[IssueReceiveLeafMismatch] != 1 {
		t.Fatalf("want receiveLeafMismatch, got %+v", kinds)
	}
	if r.Entries[0].Receive == nil || r.Entries[0].Receive.LeafOK {
		t.Fatalf("receive leaf reported ok without a recomputable full leaf")
	}
	// The receiver signature covers hardened fields only and stays genuine.
	if !r.Entries[0].Receive.SigOK {
		t.Fatalf("receive signature check must be independent of the leaf check")
	}
}

// fakeVerifier is an injectable Groth16 verdict.
type fakeVerifier struct {
	ok    bool
	err   error
	calls int
}

func (f *fakeVerifier) Verify(ctx context.Context, curve, vkey, proof string, signals []string) (bool, error) {
	f.calls++
	return f.ok, f.err
}

func stampedChain(t *testing.T) *SigilMetadata {
	t.Helper()
	m, _ := chain(t, 1, nil)
	bundle := &zk.Bundle{Proof: "cHJvb2Y=", PublicSignals: []string{"11", "22"}, Vkey: "dmtleQ=="}
	if err := AttachZkSend(m, bundle, ""); err != nil {
		t.Fatalf("AttachZkSend: %v", err)
	}
	return m
}

func TestVerifyZkVerified(t *testing.T) {
	m := stampedChain(t)
	fv := &fakeVerifier{ok: true}

	r, err := Verify(context.Background(), m, VerifyOptions{Groth16: fv})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !r.OK {
		t.Fatalf("unexpected issues: %+v", r.Issues)
	}
	if fv.calls != 1 {
		t.Fatalf("verifier calls: %d", fv.calls)
	}
	if r.ZK.SendVerified != 1 || r.ZK.Unavailable != 0 {
		t.Fatalf("zk summary: %+v", r.ZK)
	}
	if !m.HardenedTransfers[0].ZkSend.Verified {
		t.Fatalf("stamp verified flag not set")
	}
}

func TestVerifyZkUnavailableIsNotAnIssue(t *testing.T) {
	m := stampedChain(t)

	r, err := Verify(context.Background(), m, VerifyOptions{})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !r.OK {
		t.Fatalf("unavailability must not fail the chain: %+v", r.Issues)
	}
	if r.ZK.Unavailable != 1 || r.ZK.SendVerified != 0 {
		t.Fatalf("zk summary: %+v", r.ZK)
	}
	if m.HardenedTransfers[0].ZkSend.Verified {
		t.Fatalf("unverifiable stamp kept a verified claim")
	}
}

func TestVerifyZkStampWithoutBundle(t *testing.T) {
	m := stampedChain(t)
	m.HardenedTransfers[0].ZkSendBundle = nil

	r, err := Verify(context.Background(), m, VerifyOptions{Groth16: &fakeVerifier{ok: true}})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !r.OK {
		t.Fatalf("stamp without bundle is unavailability, not tamper: %+v", r.Issues)
	}
	if r.ZK.Unavailable != 1 {
		t.Fatalf("zk summary: %+v", r.ZK)
	}
}

func TestVerifyZkBundleWithoutStamp(t *testing.T) {
	m := stampedChain(t)
	m.HardenedTransfers[0].ZkSend = nil

	r, err := Verify(context.Background(), m, VerifyOptions{})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if r.OK {
		t.Fatalf("unbound bundle must fail closed")
	}
	if issueKinds(r)[IssueZkSendStampHashMismatch] != 1 {
		t.Fatalf("issues: %+v", r.Issues)
	}
}

func TestVerifyZkTamperedBundle(t *testing.T) {
	m := stampedChain(t)
	m.HardenedTransfers[0].ZkSendBundle.PublicSignals[0] = "999"
	fv := &fakeVerifier{ok: true}

	r, err := Verify(context.Background(), m, VerifyOptions{Groth16: fv})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if r.OK {
		t.Fatalf("tampered bundle not detected")
	}
	if issueKinds(r)[IssueZkSendStampHashMismatch] != 1 {
		t.Fatalf("issues: %+v", r.Issues)
	}
	if fv.calls != 0 {
		t.Fatalf("cryptographic verification must not run on a broken binding")
	}
}

func TestVerifyZkProofRejected(t *testing.T) {
	m := stampedChain(t)

	r, err := Verify(context.Background(), m, VerifyOptions{Groth16: &fakeVerifier{ok: false}})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if r.OK {
		t.Fatalf("rejected proof not reported")
	}
	if issueKinds(r)[IssueZkSendFailed] != 1 {
		t.Fatalf("issues: %+v", r.Issues)
	}

	m2 := stampedChain(t)
	r2, err := Verify(context.Background(), m2, VerifyOptions{Groth16: &fakeVerifier{err: errors.New("backend exploded")}})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if issueKinds(r2)[IssueZkSendFailed] != 1 {
		t.Fatalf("issues: %+v", r2.Issues)
	}
}
