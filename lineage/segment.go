package lineage

import (
	"encoding/json"

	"kaipulse.dev/sigil/canonical"
	"kaipulse.dev/sigil/digest"
	"kaipulse.dev/sigil/merkle"
)

// AttestFunc optionally signs the canonical bytes of a sealed segment
// (scoped to the file without its attestation field). It is an injected
// capability; the core never selects a signing algorithm itself.
type AttestFunc func(canonicalBytes []byte) (*SegmentAttestation, error)

// SealOptions configures a seal.
type SealOptions struct {
	Attest AttestFunc
}

// Seal archives the current live window into an immutable segment.
//
// Sealing an empty window is a no-op: the head is unchanged and no segment is
// emitted. Otherwise the live transfer leaves are rolled into a Merkle root,
// the canonical segment file is content-addressed, the segment entry is
// appended, derived roots are recomputed, and both live windows are cleared.
func Seal(m *SigilMetadata, opts SealOptions) (*SegmentFile, error) {
	if m == nil {
		return nil, newError(KindValidation, "SIGIL-SEG-001", "missing metadata")
	}
	if len(m.Transfers) == 0 {
		return nil, nil
	}

	leaves := make([]string, 0, len(m.Transfers))
	for i := range m.Transfers {
		leaf, err := WindowLeaf(&m.Transfers[i])
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}

	file := &SegmentFile{
		Index:             len(m.Segments),
		Count:             len(m.Transfers),
		Root:              merkle.BuildRoot(leaves),
		Transfers:         append([]Transfer(nil), m.Transfers...),
		HardenedTransfers: append([]HardenedTransfer(nil), m.HardenedTransfers...),
	}

	if opts.Attest != nil {
		scope, err := canonical.Marshal(file)
		if err != nil {
			return nil, wrapError(KindCanonical, "SIGIL-SEG-002", "canonicalize segment for attestation", err)
		}
		att, err := opts.Attest(scope)
		if err != nil {
			return nil, wrapError(KindCrypto, "SIGIL-SEG-003", "attest segment", err)
		}
		file.Attestation = att
	}

	data, err := canonical.Marshal(file)
	if err != nil {
		return nil, wrapError(KindCanonical, "SIGIL-SEG-004", "canonicalize segment", err)
	}

	m.Segments = append(m.Segments, SegmentEntry{
		Index: file.Index,
		Root:  file.Root,
		CID:   digest.CIDv1RawSHA256(data),
		Count: file.Count,
	})
	m.CumulativeTransfers += file.Count
	m.Transfers = nil
	m.HardenedTransfers = nil
	if err := Refresh(m); err != nil {
		return nil, err
	}
	return file, nil
}

// SealIfFull seals only when the live window has reached SegmentSize. It is
// invoked synchronously by Send when a transfer crosses the threshold.
func SealIfFull(m *SigilMetadata, opts SealOptions) (*SegmentFile, error) {
	if m == nil || len(m.Transfers) < SegmentSize {
		return nil, nil
	}
	return Seal(m, opts)
}

// CanonicalSegmentBytes returns the canonical byte form of a segment file,
// the form that its cid addresses.
func CanonicalSegmentBytes(file *SegmentFile) ([]byte, error) {
	if file == nil {
		return nil, newError(KindValidation, "SIGIL-SEG-001", "missing segment file")
	}
	data, err := canonical.Marshal(file)
	if err != nil {
		return nil, wrapError(KindCanonical, "SIGIL-SEG-004", "canonicalize segment", err)
	}
	return data, nil
}

// DecodeSegmentFile parses segment bytes and re-verifies them against the
// head's segment entry: cid, Merkle root, and count must all match before the
// content is trusted.
func DecodeSegmentFile(entry SegmentEntry, data []byte) (*SegmentFile, error) {
	if got := digest.CIDv1RawSHA256(data); got != entry.CID {
		return nil, newError(KindValidation, "SIGIL-SEG-101", "segment bytes do not match entry cid")
	}
	var file SegmentFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, wrapError(KindParse, "SIGIL-SEG-102", "segment file is not valid JSON", err)
	}
	if file.Index != entry.Index || file.Count != entry.Count {
		return nil, newError(KindValidation, "SIGIL-SEG-103", "segment index/count mismatch")
	}
	leaves := make([]string, 0, len(file.Transfers))
	for i := range file.Transfers {
		leaf, err := WindowLeaf(&file.Transfers[i])
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}
	if merkle.BuildRoot(leaves) != entry.Root || file.Root != entry.Root {
		return nil, newError(KindValidation, "SIGIL-SEG-104", "segment transfers do not hash to entry root")
	}
	return &file, nil
}

// VerifyAttestation checks a segment file's optional attestation against
// verify, a caller-supplied checker for the named algorithm. Attestations are
// advisory; a missing attestation is (true, nil).
func VerifyAttestation(file *SegmentFile, verify func(att *SegmentAttestation, scope []byte) bool) (bool, error) {
	if file == nil || file.Attestation == nil {
		return true, nil
	}
	att := file.Attestation
	scoped := *file
	scoped.Attestation = nil
	scope, err := canonical.Marshal(&scoped)
	if err != nil {
		return false, wrapError(KindCanonical, "SIGIL-SEG-105", "canonicalize segment attestation scope", err)
	}
	return verify(att, scope), nil
}
