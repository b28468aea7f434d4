package digest

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Archived segment files are content-addressed: the cid recorded on a
// SegmentEntry is the CID under which the canonical segment bytes live in any
// CAS backend, so the head metadata doubles as a retrieval index.

// CIDv1RawSHA256 returns a CIDv1 string (raw multicodec + sha2-256 multihash)
// for data.
func CIDv1RawSHA256(data []byte) string {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		// multihash.Sum with SHA2_256 and default length cannot fail on any
		// input; keep the empty-string escape rather than panicking.
		return ""
	}
	return cid.NewCidV1(cid.Raw, sum).String()
}

// CIDv1RawSHA256CID returns the typed CID for data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}
