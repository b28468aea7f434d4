package storage

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"kaipulse.dev/sigil/digest"
)

// NamedCAS associates an archive with a stable backend name, so multi-archive
// results can be reported per backend.
type NamedCAS struct {
	Name string
	CAS  CAS
}

// Replicating writes each sealed segment to every configured archive.
//
// Reads fall back in slice order; callers must supply a fixed order so
// retrieval is deterministic. Writes go to all backends and require every
// returned CID to match the canonical one, otherwise ErrCIDMismatch.
type Replicating struct {
	Backends []NamedCAS
}

var _ CAS = (*Replicating)(nil)

// PutAll writes the same segment bytes to all backends and returns the
// canonical CID plus the per-backend CID map.
func (r Replicating) PutAll(bytes []byte) (cid.Cid, map[string]cid.Cid, error) {
	want, err := digest.CIDv1RawSHA256CID(bytes)
	if err != nil {
		return cid.Undef, nil, err
	}
	if !want.Defined() {
		return cid.Undef, nil, ErrInvalidCID
	}
	if len(r.Backends) == 0 {
		return cid.Undef, nil, fmt.Errorf("storage: Replicating has no backends")
	}

	out := make(map[string]cid.Cid, len(r.Backends))
	for _, b := range r.Backends {
		if b.CAS == nil {
			return cid.Undef, nil, fmt.Errorf("storage: nil archive for backend %q", b.Name)
		}
		got, err := b.CAS.Put(bytes)
		if err != nil {
			return cid.Undef, nil, err
		}
		out[b.Name] = got
		if got != want {
			return cid.Undef, out, ErrCIDMismatch
		}
	}
	return want, out, nil
}

func (r Replicating) Put(bytes []byte) (cid.Cid, error) {
	id, _, err := r.PutAll(bytes)
	return id, err
}

func (r Replicating) Get(id cid.Cid) ([]byte, error) {
	for _, b := range r.Backends {
		if b.CAS == nil {
			continue
		}
		out, err := b.CAS.Get(id)
		if err == nil {
			return out, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (r Replicating) Has(id cid.Cid) bool {
	for _, b := range r.Backends {
		if b.CAS != nil && b.CAS.Has(id) {
			return true
		}
	}
	return false
}
