// Package keys provides the key and signature layer for sigil transfers.
//
// Transfer signatures are ECDSA P-256 over SHA-256 digests of canonical
// message bytes, encoded as raw r||s. Public keys travel inside sigil
// metadata as algorithm-prefixed strings ("p256:" + base64 PKIX), so a
// verifier can reject unsupported algorithms before touching bytes.
//
// The filesystem-backed Store is a local-first convenience for the CLI; the
// protocol core only ever sees a Keypair handed to it by the caller.
package keys
