// Package storage defines the content-addressable archive surface for sealed
// lineage segments.
//
// A sealed segment is immutable, and its head entry records the CID of its
// canonical bytes; any store keyed strictly by CID can therefore serve as a
// segment archive: a local directory, a vault daemon, or an IPFS repo.
// Reachability is never validity: every adapter re-derives the CID from the
// bytes it returns.
package storage

import "github.com/ipfs/go-cid"

// CAS is a minimal content-addressable segment archive.
//
// Contract:
//   - Put MUST be idempotent.
//   - Stored objects MUST be immutable.
//   - CIDs MUST be derived from the bytes written; callers supply canonical
//     segment bytes so the CID matches the head's SegmentEntry cid.
//   - Get MUST return ErrNotFound when the CID is absent.
type CAS interface {
	Put(bytes []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}
