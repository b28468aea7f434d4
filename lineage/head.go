package lineage

import (
	"kaipulse.dev/sigil/digest"
	"kaipulse.dev/sigil/merkle"
)

// HeadSnapshotHash is the single source of truth for "what the chain looked
// like" at a given cumulative-transfer count. It is a pure function of head
// fields; no separate version counter exists.
//
// cumulativeOverride, when non-nil, replaces the stored cumulativeTransfers
// so past snapshots can be reconstructed during verification.
func HeadSnapshotHash(m *SigilMetadata, cumulativeOverride *int) (string, error) {
	if m == nil {
		return "", newError(KindValidation, "SIGIL-HEAD-001", "missing metadata")
	}
	cumulative := m.CumulativeTransfers
	if cumulativeOverride != nil {
		cumulative = *cumulativeOverride
	}
	segments := make([]map[string]any, 0, len(m.Segments))
	for _, s := range m.Segments {
		segments = append(segments, map[string]any{
			"index": s.Index,
			"root":  s.Root,
			"cid":   s.CID,
			"count": s.Count,
		})
	}
	return digest.HashAny(map[string]any{
		"pulse":               m.Pulse,
		"beat":                m.Beat,
		"stepIndex":           m.StepIndex,
		"chakraDay":           string(m.ChakraDay),
		"kaiSignature":        m.KaiSignature,
		"creatorPublicKey":    m.CreatorPublicKey,
		"cumulativeTransfers": cumulative,
		"segments":            segments,
		"segmentsMerkleRoot":  m.SegmentsMerkleRoot,
	})
}

// ExpectedPreviousHeadRoot reconstructs the head snapshot hash that the
// hardened entry at indexWithinLiveWindow must have pinned at send time.
//
// Changing any earlier transfer, or inserting or removing one, shifts every
// subsequent expected root; that is what makes the chain non-reorderable.
func ExpectedPreviousHeadRoot(m *SigilMetadata, indexWithinLiveWindow int) (string, error) {
	if indexWithinLiveWindow < 0 {
		return "", newError(KindValidation, "SIGIL-HEAD-002", "negative live-window index")
	}
	cumulative := m.ArchivedTotal() + indexWithinLiveWindow
	return HeadSnapshotHash(m, &cumulative)
}

// Refresh recomputes the derived roots on the head in place: the legacy
// live-window root, the hardened window root, and the segments root.
func Refresh(m *SigilMetadata) error {
	if m == nil {
		return newError(KindValidation, "SIGIL-HEAD-001", "missing metadata")
	}
	windowLeaves := make([]string, 0, len(m.Transfers))
	for i := range m.Transfers {
		leaf, err := WindowLeaf(&m.Transfers[i])
		if err != nil {
			return err
		}
		windowLeaves = append(windowLeaves, leaf)
	}
	m.TransfersWindowRoot = merkle.BuildRoot(windowLeaves)

	hardenedLeaves := make([]string, 0, len(m.HardenedTransfers))
	for i := range m.HardenedTransfers {
		h := &m.HardenedTransfers[i]
		if h.TransferLeafHashReceive != "" {
			hardenedLeaves = append(hardenedLeaves, h.TransferLeafHashReceive)
		} else {
			hardenedLeaves = append(hardenedLeaves, h.TransferLeafHashSend)
		}
	}
	m.TransfersWindowRootV14 = merkle.BuildRoot(hardenedLeaves)

	m.SegmentsMerkleRoot = segmentsRoot(m.Segments)
	return nil
}

func segmentsRoot(segments []SegmentEntry) string {
	if len(segments) == 0 {
		return ""
	}
	roots := make([]string, 0, len(segments))
	for _, s := range segments {
		roots = append(roots, s.Root)
	}
	return merkle.BuildRoot(roots)
}
