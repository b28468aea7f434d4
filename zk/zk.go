// Package zk binds Groth16 proof bundles to sigil transfers through stable
// stamps, and defines the injected verifier capability used to re-check
// proofs offline.
//
// A stamp pins the hashes of a bundle's public signals, proof and verifying
// key at attach time. Recomputing those hashes later detects tamper without
// re-running the (optional, possibly unavailable) cryptographic verifier.
package zk

import (
	"context"
	"errors"

	"kaipulse.dev/sigil/digest"
)

const (
	// SchemeGroth16 is the only supported proof scheme.
	SchemeGroth16 = "groth16"

	// DefaultCurve is assumed when a bundle does not name its curve.
	DefaultCurve = "bn254"
)

// Bundle carries everything needed to re-verify a proof offline.
//
// Proof and Vkey are base64 encodings of the gnark wire serialization for the
// named curve. PublicSignals are decimal (or 0x-hex) field element strings in
// circuit order.
type Bundle struct {
	Scheme        string   `json:"scheme,omitempty"`
	Curve         string   `json:"curve,omitempty"`
	Proof         string   `json:"proof"`
	PublicSignals []string `json:"publicSignals"`
	Vkey          string   `json:"vkey,omitempty"`
}

// Stamp is the compact, hash-based binding of a Bundle.
type Stamp struct {
	Scheme     string `json:"scheme"`
	Curve      string `json:"curve"`
	PublicHash string `json:"publicHash"`
	ProofHash  string `json:"proofHash"`
	VkeyHash   string `json:"vkeyHash"`
	Verified   bool   `json:"verified"`
}

// Groth16Verifier is the optional cryptographic verification capability.
//
// The host application resolves an implementation once at startup (for
// example zk/gnarkzk) and injects it; the core never loads one itself. A nil
// verifier means "unavailable", which callers must keep distinct from a
// failed verification.
type Groth16Verifier interface {
	Verify(ctx context.Context, curve, vkeyB64, proofB64 string, publicSignals []string) (bool, error)
}

// EffectiveVkey resolves the verifying key for a check, in discovery order:
// bundle-inline, then head-inline, then the configured fallback. Only the
// first available source is used. Empty means no key is available.
func EffectiveVkey(b *Bundle, headInline, fallback string) string {
	if b != nil && b.Vkey != "" {
		return b.Vkey
	}
	if headInline != "" {
		return headInline
	}
	return fallback
}

// NewStamp computes the stamp for bundle under effectiveVkey. Verified starts
// false; only an explicit successful cryptographic verification sets it.
func NewStamp(b *Bundle, effectiveVkey string) (*Stamp, error) {
	if b == nil {
		return nil, errors.New("zk: missing bundle")
	}
	publicHash, proofHash, vkeyHash, err := bundleHashes(b, effectiveVkey)
	if err != nil {
		return nil, err
	}
	return &Stamp{
		Scheme:     schemeOf(b),
		Curve:      curveOf(b),
		PublicHash: publicHash,
		ProofHash:  proofHash,
		VkeyHash:   vkeyHash,
		Verified:   false,
	}, nil
}

// Matches recomputes bundle hashes and compares them to the stamp. A false
// result proves the stamp was not generated from the bundle now present.
//
// The vkey hash is only compared when a verifying key source exists; absence
// of every source is availability, not tamper.
func (s *Stamp) Matches(b *Bundle, effectiveVkey string) (bool, error) {
	if s == nil || b == nil {
		return false, nil
	}
	publicHash, proofHash, vkeyHash, err := bundleHashes(b, effectiveVkey)
	if err != nil {
		return false, err
	}
	if s.PublicHash != publicHash || s.ProofHash != proofHash {
		return false, nil
	}
	if effectiveVkey != "" && s.VkeyHash != vkeyHash {
		return false, nil
	}
	if s.Scheme != schemeOf(b) || s.Curve != curveOf(b) {
		return false, nil
	}
	return true, nil
}

func bundleHashes(b *Bundle, effectiveVkey string) (publicHash, proofHash, vkeyHash string, err error) {
	publicHash, err = digest.HashAny(b.PublicSignals)
	if err != nil {
		return "", "", "", err
	}
	proofHash, err = digest.HashAny(b.Proof)
	if err != nil {
		return "", "", "", err
	}
	vkeyHash, err = digest.HashAny(effectiveVkey)
	if err != nil {
		return "", "", "", err
	}
	return publicHash, proofHash, vkeyHash, nil
}

func schemeOf(b *Bundle) string {
	if b.Scheme == "" {
		return SchemeGroth16
	}
	return b.Scheme
}

func curveOf(b *Bundle) string {
	if b.Curve == "" {
		return DefaultCurve
	}
	return b.Curve
}
