package lineage

import (
	"crypto/rand"
	"encoding/hex"

	"kaipulse.dev/sigil/canonical"
	"kaipulse.dev/sigil/digest"
	"kaipulse.dev/sigil/keys"
	"kaipulse.dev/sigil/zk"
)

// The hardened protocol is a per-transfer state machine:
//
//	unsent -> sent (send-signed) -> [zk-send-attached]
//	       -> received (receive-signed) -> [zk-receive-attached]
//
// No transition skips send-signing, and receive-signing always attaches to
// the existing entry rather than creating a new one. Every operation builds
// its complete result before touching the head, so a failed operation leaves
// no partial mutation behind.

// SendRequest describes a new outgoing transfer.
type SendRequest struct {
	SenderKaiPulse int64
	Payload        *TransferPayload

	// Seal configures the synchronous segment seal if this send crosses the
	// window threshold.
	Seal SealOptions
}

// SendResult reports what a send produced.
type SendResult struct {
	Transfer *Transfer
	Hardened *HardenedTransfer

	// Sealed is non-nil when this send crossed the window threshold and a
	// segment was archived; the caller is responsible for storing its bytes.
	Sealed *SegmentFile
}

// Send creates, signs and appends a transfer plus its hardened record.
func Send(m *SigilMetadata, kp *keys.Keypair, req SendRequest) (*SendResult, error) {
	if err := Validate(m); err != nil {
		return nil, err
	}
	if kp == nil || kp.Private == nil || kp.PublicEncoded == "" {
		return nil, newError(KindValidation, "SIGIL-TX-001", "send requires a keypair")
	}
	t := Transfer{SenderKaiPulse: req.SenderKaiPulse, Payload: req.Payload}
	legacyMsg, err := canonical.Marshal(map[string]any{
		"pulse":          m.Pulse,
		"beat":           m.Beat,
		"stepIndex":      m.StepIndex,
		"chakraDay":      string(m.ChakraDay),
		"kaiSignature":   m.KaiSignature,
		"senderKaiPulse": req.SenderKaiPulse,
	})
	if err != nil {
		return nil, wrapError(KindCanonical, "SIGIL-TX-003", "canonicalize legacy send context", err)
	}
	t.SenderSignature, err = keys.SignBase64(kp.Private, legacyMsg)
	if err != nil {
		return nil, wrapError(KindCrypto, "SIGIL-TX-004", "sign legacy transfer", err)
	}
	t.SenderStamp, err = digest.HashAny(map[string]any{
		"senderSignature": t.SenderSignature,
		"kaiSignature":    m.KaiSignature,
		"senderKaiPulse":  req.SenderKaiPulse,
	})
	if err != nil {
		return nil, wrapError(KindCanonical, "SIGIL-TX-005", "stamp legacy transfer", err)
	}

	leaf, err := SenderLeaf(&t)
	if err != nil {
		return nil, err
	}
	prevRoot, err := ExpectedPreviousHeadRoot(m, len(m.HardenedTransfers))
	if err != nil {
		return nil, err
	}
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}

	h := HardenedTransfer{
		PreviousHeadRoot:     prevRoot,
		SenderPubKey:         kp.PublicEncoded,
		SenderKaiPulse:       req.SenderKaiPulse,
		Nonce:                nonce,
		TransferLeafHashSend: leaf,
	}
	msg, err := sendMessage(m, &h)
	if err != nil {
		return nil, err
	}
	h.SenderSig, err = keys.SignBase64(kp.Private, msg)
	if err != nil {
		return nil, wrapError(KindCrypto, "SIGIL-TX-006", "sign send message", err)
	}

	m.Transfers = append(m.Transfers, t)
	m.HardenedTransfers = append(m.HardenedTransfers, h)
	if err := Refresh(m); err != nil {
		return nil, err
	}

	sealed, err := SealIfFull(m, req.Seal)
	if err != nil {
		return nil, err
	}
	return &SendResult{
		Transfer: &t,
		Hardened: &h,
		Sealed:   sealed,
	}, nil
}

// ReceiveRequest describes acceptance of the open transfer.
type ReceiveRequest struct {
	ReceiverKaiPulse int64
}

// Receive accepts the open transfer: it finalizes the legacy record, computes
// the full leaf, signs the canonical RECEIVE message, and attaches the
// receiver fields to the last hardened entry.
func Receive(m *SigilMetadata, kp *keys.Keypair, req ReceiveRequest) (*HardenedTransfer, error) {
	if err := Validate(m); err != nil {
		return nil, err
	}
	if kp == nil || kp.Private == nil || kp.PublicEncoded == "" {
		return nil, newError(KindValidation, "SIGIL-TX-011", "receive requires a keypair")
	}
	n := len(m.HardenedTransfers)
	if n == 0 {
		return nil, newError(KindValidation, "SIGIL-TX-012", "no transfer to receive")
	}
	h := m.HardenedTransfers[n-1]
	if h.Received() {
		return nil, newError(KindValidation, "SIGIL-TX-013", "last transfer already received")
	}
	if len(m.Transfers) != n {
		return nil, newError(KindValidation, "SIGIL-TX-014", "hardened entries do not parallel the live window")
	}

	t := m.Transfers[n-1]
	senderLeaf, err := SenderLeaf(&t)
	if err != nil {
		return nil, err
	}
	if senderLeaf != h.TransferLeafHashSend {
		return nil, newError(KindValidation, "SIGIL-TX-019", "open transfer does not match its hardened send leaf")
	}
	legacyMsg, err := canonical.Marshal(map[string]any{
		"link":             t.SenderSignature,
		"kaiSignature":     m.KaiSignature,
		"receiverKaiPulse": req.ReceiverKaiPulse,
	})
	if err != nil {
		return nil, wrapError(KindCanonical, "SIGIL-TX-015", "canonicalize legacy receive context", err)
	}
	t.ReceiverSignature, err = keys.SignBase64(kp.Private, legacyMsg)
	if err != nil {
		return nil, wrapError(KindCrypto, "SIGIL-TX-016", "sign legacy receive", err)
	}
	t.ReceiverStamp, err = digest.HashAny(map[string]any{
		"receiverSignature": t.ReceiverSignature,
		"receiverKaiPulse":  req.ReceiverKaiPulse,
	})
	if err != nil {
		return nil, wrapError(KindCanonical, "SIGIL-TX-017", "stamp legacy receive", err)
	}
	t.ReceiverKaiPulse = req.ReceiverKaiPulse

	fullLeaf, err := FullLeaf(&t)
	if err != nil {
		return nil, err
	}
	h.ReceiverPubKey = kp.PublicEncoded
	h.ReceiverKaiPulse = req.ReceiverKaiPulse
	h.TransferLeafHashReceive = fullLeaf

	msg, err := receiveMessage(&h)
	if err != nil {
		return nil, err
	}
	h.ReceiverSig, err = keys.SignBase64(kp.Private, msg)
	if err != nil {
		return nil, wrapError(KindCrypto, "SIGIL-TX-018", "sign receive message", err)
	}

	m.Transfers[n-1] = t
	m.HardenedTransfers[n-1] = h
	if err := Refresh(m); err != nil {
		return nil, err
	}
	return &m.HardenedTransfers[n-1], nil
}

// AttachZkSend stamps and attaches a proof bundle to the last sent transfer.
func AttachZkSend(m *SigilMetadata, bundle *zk.Bundle, fallbackVkey string) error {
	n := len(m.HardenedTransfers)
	if n == 0 {
		return newError(KindValidation, "SIGIL-TX-021", "no hardened transfer to stamp")
	}
	if bundle == nil {
		return newError(KindValidation, "SIGIL-TX-022", "missing proof bundle")
	}
	stamp, err := zk.NewStamp(bundle, zk.EffectiveVkey(bundle, m.ZKVerifyingKey, fallbackVkey))
	if err != nil {
		return wrapError(KindCanonical, "SIGIL-TX-023", "stamp proof bundle", err)
	}
	m.HardenedTransfers[n-1].ZkSend = stamp
	m.HardenedTransfers[n-1].ZkSendBundle = bundle
	return nil
}

// AttachZkReceive stamps and attaches a proof bundle to the last received
// transfer.
func AttachZkReceive(m *SigilMetadata, bundle *zk.Bundle, fallbackVkey string) error {
	n := len(m.HardenedTransfers)
	if n == 0 || !m.HardenedTransfers[n-1].Received() {
		return newError(KindValidation, "SIGIL-TX-024", "no received transfer to stamp")
	}
	if bundle == nil {
		return newError(KindValidation, "SIGIL-TX-022", "missing proof bundle")
	}
	stamp, err := zk.NewStamp(bundle, zk.EffectiveVkey(bundle, m.ZKVerifyingKey, fallbackVkey))
	if err != nil {
		return wrapError(KindCanonical, "SIGIL-TX-023", "stamp proof bundle", err)
	}
	m.HardenedTransfers[n-1].ZkReceive = stamp
	m.HardenedTransfers[n-1].ZkReceiveBundle = bundle
	return nil
}

func sendMessage(m *SigilMetadata, h *HardenedTransfer) ([]byte, error) {
	msg, err := canonical.Marshal(map[string]any{
		"v":    MessageVersion,
		"type": "send",
		"sigil": map[string]any{
			"pulse":        m.Pulse,
			"beat":         m.Beat,
			"stepIndex":    m.StepIndex,
			"chakraDay":    string(m.ChakraDay),
			"kaiSignature": m.KaiSignature,
		},
		"previousHeadRoot":     h.PreviousHeadRoot,
		"senderKaiPulse":       h.SenderKaiPulse,
		"senderPubKey":         h.SenderPubKey,
		"nonce":                h.Nonce,
		"transferLeafHashSend": h.TransferLeafHashSend,
	})
	if err != nil {
		return nil, wrapError(KindCanonical, "SIGIL-TX-031", "canonicalize send message", err)
	}
	return msg, nil
}

func receiveMessage(h *HardenedTransfer) ([]byte, error) {
	msg, err := canonical.Marshal(map[string]any{
		"v":                       MessageVersion,
		"type":                    "receive",
		"link":                    h.SenderSig,
		"previousHeadRoot":        h.PreviousHeadRoot,
		"receiverKaiPulse":        h.ReceiverKaiPulse,
		"receiverPubKey":          h.ReceiverPubKey,
		"transferLeafHashReceive": h.TransferLeafHashReceive,
	})
	if err != nil {
		return nil, wrapError(KindCanonical, "SIGIL-TX-032", "canonicalize receive message", err)
	}
	return msg, nil
}

func newNonce() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", wrapError(KindCrypto, "SIGIL-TX-041", "nonce generation", err)
	}
	return hex.EncodeToString(b[:]), nil
}
