package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	// Prefix tags P-256 public keys inside metadata strings.
	Prefix = "p256:"

	// SignatureSize is the raw r||s signature length for P-256.
	SignatureSize = 64
)

// Keypair is an in-memory P-256 signing identity.
type Keypair struct {
	Private *ecdsa.PrivateKey
	// PublicEncoded is the "p256:" + base64(PKIX) form carried in metadata.
	PublicEncoded string
}

// Generate creates a fresh P-256 keypair.
func Generate() (*Keypair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keys: generate: %w", err)
	}
	pub, err := EncodePublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	return &Keypair{Private: priv, PublicEncoded: pub}, nil
}

// EncodePublicKey returns the metadata string form of a P-256 public key.
func EncodePublicKey(pub *ecdsa.PublicKey) (string, error) {
	if pub == nil || pub.Curve != elliptic.P256() {
		return "", errors.New("keys: public key must be P-256")
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("keys: encode public key: %w", err)
	}
	return Prefix + base64.StdEncoding.EncodeToString(der), nil
}

// DecodePublicKey parses a "p256:" metadata string back into a public key.
func DecodePublicKey(encoded string) (*ecdsa.PublicKey, error) {
	if !strings.HasPrefix(encoded, Prefix) {
		return nil, fmt.Errorf("keys: unsupported public key encoding %q", algOf(encoded))
	}
	der, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(encoded, Prefix))
	if err != nil {
		return nil, fmt.Errorf("keys: invalid public key base64: %w", err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("keys: invalid public key DER: %w", err)
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok || pub.Curve != elliptic.P256() {
		return nil, errors.New("keys: public key is not ECDSA P-256")
	}
	return pub, nil
}

// Sign returns the raw r||s signature over sha256(message).
func Sign(priv *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	if priv == nil {
		return nil, errors.New("keys: missing private key")
	}
	digest := sha256.Sum256(message)
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("keys: sign: %w", err)
	}
	sig := make([]byte, SignatureSize)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return sig, nil
}

// SignBase64 is Sign with the signature base64-encoded for metadata embedding.
func SignBase64(priv *ecdsa.PrivateKey, message []byte) (string, error) {
	sig, err := Sign(priv, message)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify reports whether sig is a valid r||s signature by the encoded public
// key over sha256(message). A false result is definitive, never transient.
func Verify(pubEncoded string, message, sig []byte) bool {
	if len(sig) != SignatureSize {
		return false
	}
	pub, err := DecodePublicKey(pubEncoded)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(message)
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	return ecdsa.Verify(pub, digest[:], r, s)
}

// VerifyBase64 is Verify for a base64-encoded signature string.
func VerifyBase64(pubEncoded string, message []byte, sigB64 string) bool {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false
	}
	return Verify(pubEncoded, message, sig)
}

func algOf(encoded string) string {
	alg, _, ok := strings.Cut(encoded, ":")
	if !ok {
		return "<none>"
	}
	return alg
}
