package lineage

import (
	"crypto/rand"
	"testing"

	"kaipulse.dev/sigil/digest"
	"kaipulse.dev/sigil/keys"
)

func TestSealEmptyWindowIsNoOp(t *testing.T) {
	m, _ := newTestHead(t)
	before, err := HeadSnapshotHash(m, nil)
	if err != nil {
		t.Fatalf("HeadSnapshotHash: %v", err)
	}

	file, err := Seal(m, SealOptions{})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if file != nil {
		t.Fatalf("empty seal emitted a segment")
	}

	after, err := HeadSnapshotHash(m, nil)
	if err != nil {
		t.Fatalf("HeadSnapshotHash: %v", err)
	}
	if before != after {
		t.Fatalf("empty seal mutated the head")
	}
}

func TestSealArchivesWindow(t *testing.T) {
	m, kp := newTestHead(t)
	for i := 0; i < 3; i++ {
		if _, err := Send(m, kp, SendRequest{SenderKaiPulse: int64(i)}); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	file, err := Seal(m, SealOptions{})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if file == nil {
		t.Fatalf("seal emitted no segment")
	}
	if file.Index != 0 || file.Count != 3 {
		t.Fatalf("segment identity: index=%d count=%d", file.Index, file.Count)
	}
	if len(file.Transfers) != 3 || len(file.HardenedTransfers) != 3 {
		t.Fatalf("segment content incomplete")
	}

	if len(m.Transfers) != 0 || len(m.HardenedTransfers) != 0 {
		t.Fatalf("live windows not cleared")
	}
	if m.CumulativeTransfers != 3 {
		t.Fatalf("cumulative: got %d want 3", m.CumulativeTransfers)
	}
	if len(m.Segments) != 1 {
		t.Fatalf("segment entry not appended")
	}
	entry := m.Segments[0]
	if entry.Root != file.Root || entry.Count != 3 || entry.Index != 0 {
		t.Fatalf("entry does not describe the sealed file")
	}
	if m.SegmentsMerkleRoot == "" {
		t.Fatalf("segments root not recomputed")
	}

	// The recorded cid addresses the canonical bytes.
	data, err := CanonicalSegmentBytes(file)
	if err != nil {
		t.Fatalf("CanonicalSegmentBytes: %v", err)
	}
	if digest.CIDv1RawSHA256(data) != entry.CID {
		t.Fatalf("entry cid does not address the canonical bytes")
	}

	decoded, err := DecodeSegmentFile(entry, data)
	if err != nil {
		t.Fatalf("DecodeSegmentFile: %v", err)
	}
	if decoded.Root != file.Root {
		t.Fatalf("decode root mismatch")
	}
}

func TestDecodeSegmentFileRejectsTamper(t *testing.T) {
	m, kp := newTestHead(t)
	for i := 0; i < 2; i++ {
		if _, err := Send(m, kp, SendRequest{SenderKaiPulse: int64(i)}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	file, err := Seal(m, SealOptions{})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	entry := m.Segments[0]
	data, err := CanonicalSegmentBytes(file)
	if err != nil {
		t.Fatalf("CanonicalSegmentBytes: %v", err)
	}

	tampered := append([]byte(nil), data...)
	tampered[len(tampered)/2] ^= 0x01
	if _, err := DecodeSegmentFile(entry, tampered); err == nil {
		t.Fatalf("tampered bytes decoded cleanly")
	}

	wrongEntry := entry
	wrongEntry.Count = 1
	if _, err := DecodeSegmentFile(wrongEntry, data); err == nil {
		t.Fatalf("count mismatch not detected")
	}
}

func TestSealAttestationP256(t *testing.T) {
	m, kp := newTestHead(t)
	if _, err := Send(m, kp, SendRequest{SenderKaiPulse: 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	archiver, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	file, err := Seal(m, SealOptions{Attest: func(scope []byte) (*SegmentAttestation, error) {
		sig, err := keys.SignBase64(archiver.Private, scope)
		if err != nil {
			return nil, err
		}
		return &SegmentAttestation{
			Alg:       "p256",
			HashAlg:   "sha256",
			PublicKey: archiver.PublicEncoded,
			Signature: sig,
		}, nil
	}})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if file.Attestation == nil {
		t.Fatalf("attestation missing")
	}

	ok, err := VerifyAttestation(file, func(att *SegmentAttestation, scope []byte) bool {
		return keys.VerifyBase64(att.PublicKey, scope, att.Signature)
	})
	if err != nil {
		t.Fatalf("VerifyAttestation: %v", err)
	}
	if !ok {
		t.Fatalf("attestation did not verify")
	}

	// The attested segment still round-trips through its entry.
	data, err := CanonicalSegmentBytes(file)
	if err != nil {
		t.Fatalf("CanonicalSegmentBytes: %v", err)
	}
	if _, err := DecodeSegmentFile(m.Segments[0], data); err != nil {
		t.Fatalf("DecodeSegmentFile: %v", err)
	}
}

func TestSealAttestationDilithium3(t *testing.T) {
	m, kp := newTestHead(t)
	if _, err := Send(m, kp, SendRequest{SenderKaiPulse: 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	pub, priv, err := keys.GenerateDilithium3Keypair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateDilithium3Keypair: %v", err)
	}
	pubEncoded, err := keys.EncodeDilithium3PublicKey(pub)
	if err != nil {
		t.Fatalf("EncodeDilithium3PublicKey: %v", err)
	}

	file, err := Seal(m, SealOptions{Attest: func(scope []byte) (*SegmentAttestation, error) {
		sig, err := keys.SignDilithium3(scope, "sha3-256", priv)
		if err != nil {
			return nil, err
		}
		return &SegmentAttestation{
			Alg:       "dilithium3",
			HashAlg:   "sha3-256",
			PublicKey: pubEncoded,
			Signature: sig,
		}, nil
	}})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	ok, err := VerifyAttestation(file, func(att *SegmentAttestation, scope []byte) bool {
		return keys.VerifyDilithium3(att.PublicKey, scope, att.HashAlg, att.Signature)
	})
	if err != nil {
		t.Fatalf("VerifyAttestation: %v", err)
	}
	if !ok {
		t.Fatalf("dilithium3 attestation did not verify")
	}
}

func TestVerifyAttestationAbsentIsAdvisoryPass(t *testing.T) {
	ok, err := VerifyAttestation(&SegmentFile{}, func(*SegmentAttestation, []byte) bool { return false })
	if err != nil || !ok {
		t.Fatalf("missing attestation must pass: ok=%v err=%v", ok, err)
	}
}

func TestSendSealsAtWindowCap(t *testing.T) {
	if testing.Short() {
		t.Skip("fills a full live window")
	}
	m, kp := newTestHead(t)

	var sealed *SegmentFile
	for i := 0; i < SegmentSize; i++ {
		res, err := Send(m, kp, SendRequest{SenderKaiPulse: int64(i)})
		if err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
		if i < SegmentSize-1 && res.Sealed != nil {
			t.Fatalf("premature seal at send %d", i)
		}
		if res.Sealed != nil {
			sealed = res.Sealed
		}
	}
	if sealed == nil {
		t.Fatalf("window cap did not trigger a seal")
	}
	if sealed.Count != SegmentSize || sealed.Index != 0 {
		t.Fatalf("sealed segment identity: index=%d count=%d", sealed.Index, sealed.Count)
	}
	if len(m.Transfers) != 0 || len(m.HardenedTransfers) != 0 {
		t.Fatalf("windows not cleared after capped send")
	}
	if m.CumulativeTransfers != SegmentSize {
		t.Fatalf("cumulative: got %d want %d", m.CumulativeTransfers, SegmentSize)
	}

	// The next send starts the new window pinned after the archived total.
	res, err := Send(m, kp, SendRequest{SenderKaiPulse: int64(SegmentSize)})
	if err != nil {
		t.Fatalf("Send after seal: %v", err)
	}
	if res.Sealed != nil {
		t.Fatalf("unexpected seal on fresh window")
	}
	want, err := ExpectedPreviousHeadRoot(m, 0)
	if err != nil {
		t.Fatalf("ExpectedPreviousHeadRoot: %v", err)
	}
	if m.HardenedTransfers[0].PreviousHeadRoot != want {
		t.Fatalf("fresh window entry not pinned to post-seal snapshot")
	}
}
