package lineage

import (
	"encoding/json"
	"os"
	"path/filepath"

	"kaipulse.dev/sigil/digest"
)

// Parse decodes and validates sigil metadata at the boundary.
//
// Validation here makes illegal states unrepresentable downstream: a
// well-formed head never has receive fields without send fields, never has a
// half-populated receiver side, and never carries malformed hex roots. The
// protocol core can then trust its inputs structurally and reserve Report
// issues for integrity findings.
func Parse(data []byte) (*SigilMetadata, error) {
	var m SigilMetadata
	// Unknown fields are tolerated: the embedding application stores display
	// state in the same envelope. Missing optional fields decode to zero.
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, wrapError(KindParse, "SIGIL-PARSE-001", "metadata is not valid JSON", err)
	}
	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Encode serializes metadata as canonical-order JSON for embedding.
func Encode(m *SigilMetadata) ([]byte, error) {
	if err := Validate(m); err != nil {
		return nil, err
	}
	return json.MarshalIndent(m, "", "  ")
}

// Validate enforces the structural invariants of a head.
func Validate(m *SigilMetadata) error {
	if m == nil {
		return newError(KindValidation, "SIGIL-VAL-001", "missing metadata")
	}
	if m.KaiSignature == "" {
		return newError(KindValidation, "SIGIL-VAL-002", "missing kaiSignature")
	}
	if m.CreatorPublicKey == "" {
		return newError(KindValidation, "SIGIL-VAL-003", "missing creatorPublicKey")
	}
	if !m.ChakraDay.valid() {
		return newError(KindValidation, "SIGIL-VAL-004", "unknown chakraDay")
	}
	if m.StepIndex < 0 || m.Pulse < 0 || m.Beat < 0 {
		return newError(KindValidation, "SIGIL-VAL-005", "negative time coordinate")
	}

	for i := range m.Transfers {
		t := &m.Transfers[i]
		if t.SenderSignature == "" || t.SenderStamp == "" {
			return newError(KindValidation, "SIGIL-VAL-101", "transfer missing sender fields")
		}
		// Receiver side is all-or-none.
		recv := t.ReceiverSignature != "" || t.ReceiverStamp != ""
		if recv && (t.ReceiverSignature == "" || t.ReceiverStamp == "") {
			return newError(KindValidation, "SIGIL-VAL-102", "transfer has partial receiver fields")
		}
	}

	for i := range m.HardenedTransfers {
		h := &m.HardenedTransfers[i]
		if h.SenderPubKey == "" || h.SenderSig == "" {
			return newError(KindValidation, "SIGIL-VAL-201", "hardened transfer missing send signature")
		}
		if !digest.IsHex(h.PreviousHeadRoot, 32) {
			return newError(KindValidation, "SIGIL-VAL-202", "hardened transfer previousHeadRoot is not a 32-byte hex digest")
		}
		if !digest.IsHex(h.TransferLeafHashSend, 32) {
			return newError(KindValidation, "SIGIL-VAL-203", "hardened transfer transferLeafHashSend is not a 32-byte hex digest")
		}
		if !digest.IsHex(h.Nonce, 16) {
			return newError(KindValidation, "SIGIL-VAL-204", "hardened transfer nonce is not 16 hex bytes")
		}
		recv := h.ReceiverPubKey != "" || h.ReceiverSig != "" || h.TransferLeafHashReceive != ""
		if recv {
			if h.ReceiverPubKey == "" || h.ReceiverSig == "" || h.TransferLeafHashReceive == "" {
				return newError(KindValidation, "SIGIL-VAL-205", "hardened transfer has partial receiver fields")
			}
			if !digest.IsHex(h.TransferLeafHashReceive, 32) {
				return newError(KindValidation, "SIGIL-VAL-206", "hardened transfer transferLeafHashReceive is not a 32-byte hex digest")
			}
		}
	}

	lastIndex := -1
	for _, s := range m.Segments {
		if s.Index != lastIndex+1 {
			return newError(KindValidation, "SIGIL-VAL-301", "segment indices are not contiguous from zero")
		}
		lastIndex = s.Index
		if !digest.IsHex(s.Root, 32) {
			return newError(KindValidation, "SIGIL-VAL-302", "segment root is not a 32-byte hex digest")
		}
		if s.CID == "" {
			return newError(KindValidation, "SIGIL-VAL-303", "segment missing cid")
		}
		if s.Count <= 0 {
			return newError(KindValidation, "SIGIL-VAL-304", "segment count must be positive")
		}
	}
	return nil
}

// LoadFile reads and parses a metadata sidecar file.
func LoadFile(path string) (*SigilMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapError(KindStorage, "SIGIL-STO-001", "read metadata file", err)
	}
	return Parse(data)
}

// SaveFile persists metadata atomically: the new bytes land under a temporary
// name and are renamed into place, so a reader never observes a
// partially-signed head.
func SaveFile(path string, m *SigilMetadata) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".sigil-*")
	if err != nil {
		return wrapError(KindStorage, "SIGIL-STO-002", "create temp metadata file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return wrapError(KindStorage, "SIGIL-STO-003", "write metadata", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return wrapError(KindStorage, "SIGIL-STO-004", "sync metadata", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return wrapError(KindStorage, "SIGIL-STO-005", "close metadata", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return wrapError(KindStorage, "SIGIL-STO-006", "rename metadata into place", err)
	}
	return nil
}
