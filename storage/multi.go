package storage

import (
	"errors"

	"github.com/ipfs/go-cid"
)

// Tiered reads across ordered archive tiers and writes only to the first.
//
// Tier order is the slice order in Tiers; callers MUST supply a fixed order,
// typically a fast local archive first and remote vaults after it. A fixed
// order avoids map-iteration nondeterminism and makes the retrieval strategy
// explicit. Use Replicating instead when every tier must hold every segment.
type Tiered struct {
	Tiers []CAS
}

func (t Tiered) Put(bytes []byte) (cid.Cid, error) {
	if len(t.Tiers) == 0 {
		return cid.Undef, errors.New("storage: Tiered has no tiers")
	}
	return t.Tiers[0].Put(bytes)
}

func (t Tiered) Get(id cid.Cid) ([]byte, error) {
	for _, cas := range t.Tiers {
		b, err := cas.Get(id)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (t Tiered) Has(id cid.Cid) bool {
	for _, cas := range t.Tiers {
		if cas.Has(id) {
			return true
		}
	}
	return false
}
