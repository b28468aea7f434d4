package lineage

import (
	"github.com/ipfs/go-cid"

	"kaipulse.dev/sigil/storage"
)

// ArchiveSegment stores a sealed segment's canonical bytes in a CAS and
// confirms the store addressed them under the cid already recorded on the
// head entry.
func ArchiveSegment(cas storage.CAS, entry SegmentEntry, file *SegmentFile) error {
	if cas == nil {
		return newError(KindStorage, "SIGIL-ARC-001", "missing segment archive")
	}
	data, err := CanonicalSegmentBytes(file)
	if err != nil {
		return err
	}
	id, err := cas.Put(data)
	if err != nil {
		return wrapError(KindStorage, "SIGIL-ARC-002", "archive segment", err)
	}
	if id.String() != entry.CID {
		return newError(KindStorage, "SIGIL-ARC-003", "archive addressed segment under unexpected cid")
	}
	return nil
}

// FetchSegment retrieves an archived segment by its head entry and
// re-verifies cid, root and count before returning it. Archive bytes are
// never trusted on transport alone.
func FetchSegment(cas storage.CAS, entry SegmentEntry) (*SegmentFile, error) {
	if cas == nil {
		return nil, newError(KindStorage, "SIGIL-ARC-001", "missing segment archive")
	}
	id, err := cid.Decode(entry.CID)
	if err != nil {
		return nil, wrapError(KindValidation, "SIGIL-ARC-004", "segment entry cid is malformed", err)
	}
	data, err := cas.Get(id)
	if err != nil {
		return nil, wrapError(KindStorage, "SIGIL-ARC-005", "fetch segment", err)
	}
	return DecodeSegmentFile(entry, data)
}
