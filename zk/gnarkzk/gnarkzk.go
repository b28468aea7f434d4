// Package gnarkzk backs zk.Groth16Verifier with the gnark proof system.
//
// It is the only package in the repo that links the proving stack; callers
// that do not need cryptographic proof checking can skip it and verification
// degrades to availability accounting.
package gnarkzk

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
)

// Verifier checks Groth16 proofs against gnark-serialized verifying keys.
//
// Proof and verifying key bytes are the gnark WriteTo encodings, base64
// encoded. Public signals are decimal or 0x-hex field elements in the order
// the circuit declares its public inputs.
type Verifier struct{}

// Curve maps a lineage curve name to a gnark curve ID.
func Curve(name string) (ecc.ID, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "bn254", "bn128":
		return ecc.BN254, nil
	case "bls12-377", "bls12377":
		return ecc.BLS12_377, nil
	case "bls12-381", "bls12381":
		return ecc.BLS12_381, nil
	default:
		return ecc.UNKNOWN, fmt.Errorf("gnarkzk: unsupported curve %q", name)
	}
}

// Verify implements zk.Groth16Verifier.
//
// Malformed inputs (bad base64, undecodable key or proof, unparsable
// signals, signal count mismatch) return an error. A well-formed proof that
// does not verify returns (false, nil).
func (Verifier) Verify(ctx context.Context, curve, vkeyB64, proofB64 string, publicSignals []string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	id, err := Curve(curve)
	if err != nil {
		return false, err
	}

	vkBytes, err := base64.StdEncoding.DecodeString(vkeyB64)
	if err != nil {
		return false, fmt.Errorf("gnarkzk: decode verifying key: %w", err)
	}
	vk := groth16.NewVerifyingKey(id)
	if _, err := vk.ReadFrom(bytes.NewReader(vkBytes)); err != nil {
		return false, fmt.Errorf("gnarkzk: read verifying key: %w", err)
	}

	proofBytes, err := base64.StdEncoding.DecodeString(proofB64)
	if err != nil {
		return false, fmt.Errorf("gnarkzk: decode proof: %w", err)
	}
	proof := groth16.NewProof(id)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return false, fmt.Errorf("gnarkzk: read proof: %w", err)
	}

	if got, want := len(publicSignals), vk.NbPublicWitness(); got != want {
		return false, fmt.Errorf("gnarkzk: %d public signals, verifying key expects %d", got, want)
	}

	pub, err := publicWitness(id, publicSignals)
	if err != nil {
		return false, err
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := groth16.Verify(proof, vk, pub); err != nil {
		return false, nil
	}
	return true, nil
}

func publicWitness(id ecc.ID, signals []string) (witness.Witness, error) {
	w, err := witness.New(id.ScalarField())
	if err != nil {
		return nil, err
	}

	values := make([]*big.Int, len(signals))
	for i, s := range signals {
		v, err := parseSignal(s)
		if err != nil {
			return nil, fmt.Errorf("gnarkzk: public signal %d: %w", i, err)
		}
		values[i] = v
	}

	ch := make(chan any, len(values))
	for _, v := range values {
		ch <- v
	}
	close(ch)

	if err := w.Fill(len(values), 0, ch); err != nil {
		return nil, fmt.Errorf("gnarkzk: fill witness: %w", err)
	}
	return w, nil
}

func parseSignal(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty value")
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, fmt.Errorf("not a base-%d integer: %q", base, s)
	}
	return v, nil
}
