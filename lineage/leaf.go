package lineage

import "kaipulse.dev/sigil/digest"

// SenderLeaf hashes the minified sender-side view of a transfer.
//
// Payload bytes are excluded; only the descriptor binds. The result is stable
// for the lifetime of the transfer, received or not.
func SenderLeaf(t *Transfer) (string, error) {
	if t == nil {
		return "", newError(KindValidation, "SIGIL-LEAF-001", "missing transfer")
	}
	return digest.HashAny(senderLeafValue(t))
}

// FullLeaf hashes the complete transfer including receiver fields. It is
// undefined for an open transfer.
func FullLeaf(t *Transfer) (string, error) {
	if t == nil {
		return "", newError(KindValidation, "SIGIL-LEAF-001", "missing transfer")
	}
	if !t.Received() {
		return "", newError(KindValidation, "SIGIL-LEAF-002", "full leaf is undefined for an open transfer")
	}
	v := senderLeafValue(t)
	v["receiverSignature"] = t.ReceiverSignature
	v["receiverStamp"] = t.ReceiverStamp
	v["receiverKaiPulse"] = t.ReceiverKaiPulse
	return digest.HashAny(v)
}

// WindowLeaf is FullLeaf for received transfers and SenderLeaf otherwise;
// it is the leaf form used for window and segment roots.
func WindowLeaf(t *Transfer) (string, error) {
	if t != nil && t.Received() {
		return FullLeaf(t)
	}
	return SenderLeaf(t)
}

func senderLeafValue(t *Transfer) map[string]any {
	v := map[string]any{
		"senderSignature": t.SenderSignature,
		"senderStamp":     t.SenderStamp,
		"senderKaiPulse":  t.SenderKaiPulse,
	}
	if t.Payload != nil {
		v["payload"] = map[string]any{
			"name": t.Payload.Name,
			"mime": t.Payload.Mime,
			"size": t.Payload.Size,
		}
	}
	return v
}
