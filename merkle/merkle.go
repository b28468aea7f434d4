// Package merkle builds roots and inclusion proofs over ordered lists of hex
// leaf hashes. It backs both the live transfer-window root and the archived
// segment roots of a sigil head.
package merkle

import (
	"fmt"

	"kaipulse.dev/sigil/digest"
)

// Combine hashes a pair of hex digests into their parent.
//
// The two operands are sorted before concatenation, so proof verification
// needs no left/right bookkeeping: replaying the combination is position
// independent. Leaf order still matters for the root because pairing follows
// list positions.
func Combine(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return digest.SHA256HexString(a + b)
}

// BuildRoot computes the Merkle root over leaves.
//
// An empty leaf list yields digest.ZeroRoot. A layer with an odd element
// count duplicates its last element.
func BuildRoot(leaves []string) string {
	if len(leaves) == 0 {
		return digest.ZeroRoot
	}
	level := make([]string, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, Combine(level[i], level[i+1]))
			} else {
				next = append(next, Combine(level[i], level[i]))
			}
		}
		level = next
	}
	return level[0]
}

// Proof is an inclusion proof for one leaf. Siblings are ordered leaf-to-root
// and follow the same duplicate-at-edge rule as BuildRoot.
type Proof struct {
	Leaf     string   `json:"leaf"`
	Index    int      `json:"index"`
	Siblings []string `json:"siblings"`
}

// Prove produces the inclusion proof for leaves[index].
func Prove(leaves []string, index int) (*Proof, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("merkle: no leaves")
	}
	if index < 0 || index >= len(leaves) {
		return nil, fmt.Errorf("merkle: index %d out of range [0,%d)", index, len(leaves))
	}

	proof := &Proof{Leaf: leaves[index], Index: index}
	level := make([]string, len(leaves))
	copy(level, leaves)
	pos := index
	for len(level) > 1 {
		sibling := pos ^ 1
		if sibling >= len(level) {
			// Odd edge: the element pairs with itself.
			sibling = pos
		}
		proof.Siblings = append(proof.Siblings, level[sibling])

		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, Combine(level[i], level[i+1]))
			} else {
				next = append(next, Combine(level[i], level[i]))
			}
		}
		level = next
		pos /= 2
	}
	return proof, nil
}

// Verify replays proof against root.
func Verify(root string, proof *Proof) bool {
	if proof == nil {
		return false
	}
	current := proof.Leaf
	for _, sib := range proof.Siblings {
		current = Combine(current, sib)
	}
	return current == root
}
