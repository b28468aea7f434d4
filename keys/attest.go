package keys

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"
)

// Segment seal attestations support algorithm agility: the classical p256
// path used for transfers, plus a dilithium3 path so long-lived archives can
// carry a post-quantum signature. Attestations are advisory provenance; they
// never gate lineage verification.

// DigestFor hashes message with the named algorithm (sha256, sha3-256).
func DigestFor(hashAlg string, message []byte) ([]byte, error) {
	switch hashAlg {
	case "sha256":
		s := sha256.Sum256(message)
		return s[:], nil
	case "sha3-256":
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("keys: unsupported hash algorithm %q", hashAlg)
	}
}

// GenerateDilithium3Keypair returns a fresh Dilithium3 keypair.
func GenerateDilithium3Keypair(rand io.Reader) (*mode3.PublicKey, *mode3.PrivateKey, error) {
	return mode3.GenerateKey(rand)
}

// EncodeDilithium3PublicKey returns the "dilithium3:" metadata string form.
func EncodeDilithium3PublicKey(pub *mode3.PublicKey) (string, error) {
	if pub == nil {
		return "", errors.New("keys: missing dilithium3 public key")
	}
	raw, err := pub.MarshalBinary()
	if err != nil {
		return "", err
	}
	return "dilithium3:" + base64.StdEncoding.EncodeToString(raw), nil
}

// SignDilithium3 returns a base64 dilithium3 signature over hash(message).
func SignDilithium3(message []byte, hashAlg string, priv *mode3.PrivateKey) (string, error) {
	if priv == nil {
		return "", errors.New("keys: missing dilithium3 private key")
	}
	digest, err := DigestFor(hashAlg, message)
	if err != nil {
		return "", err
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(priv, digest, sig)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyDilithium3 checks a base64 dilithium3 signature over hash(message)
// against a "dilithium3:" encoded public key.
func VerifyDilithium3(pubEncoded string, message []byte, hashAlg, sigB64 string) bool {
	const prefix = "dilithium3:"
	if !strings.HasPrefix(pubEncoded, prefix) {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(pubEncoded, prefix))
	if err != nil {
		return false
	}
	var pub mode3.PublicKey
	if err := pub.UnmarshalBinary(raw); err != nil {
		return false
	}
	digest, err := DigestFor(hashAlg, message)
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil || len(sig) != mode3.SignatureSize {
		return false
	}
	return mode3.Verify(&pub, digest, sig)
}
