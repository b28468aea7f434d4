// Package lineage implements the offline sovereign transfer-lineage core: the
// sigil head model, the minified leaf rules, deterministic head snapshots,
// segment sealing, the hardened send/receive protocol, and the end-to-end
// offline verifier.
package lineage

import (
	"kaipulse.dev/sigil/zk"
)

// SegmentSize is the live-window cap. A send that grows the window to this
// size seals a segment synchronously before returning.
const SegmentSize = 2000

// MessageVersion tags canonical SEND/RECEIVE messages.
const MessageVersion = 1

// ChakraDay is the enumerated day category carried by a sigil.
type ChakraDay string

const (
	ChakraRoot       ChakraDay = "Root"
	ChakraSacral     ChakraDay = "Sacral"
	ChakraSolar      ChakraDay = "Solar Plexus"
	ChakraHeart      ChakraDay = "Heart"
	ChakraThroat     ChakraDay = "Throat"
	ChakraThirdEye   ChakraDay = "Third Eye"
	ChakraCrown      ChakraDay = "Crown"
)

func (c ChakraDay) valid() bool {
	switch c {
	case ChakraRoot, ChakraSacral, ChakraSolar, ChakraHeart, ChakraThroat, ChakraThirdEye, ChakraCrown:
		return true
	}
	return false
}

// TransferPayload describes an attached artifact. Encoded bytes are excluded
// from every leaf hash; only the descriptor (name, mime, size) binds.
type TransferPayload struct {
	Name    string `json:"name"`
	Mime    string `json:"mime"`
	Size    int64  `json:"size"`
	Encoded string `json:"encoded,omitempty"`
}

// Transfer is one hand-off event in the live window.
//
// The sender-side fields never change after creation. Receiver fields are
// all-or-none and only appear once the transfer is accepted.
type Transfer struct {
	SenderSignature string           `json:"senderSignature"`
	SenderStamp     string           `json:"senderStamp"`
	SenderKaiPulse  int64            `json:"senderKaiPulse"`
	Payload         *TransferPayload `json:"payload,omitempty"`

	ReceiverSignature string `json:"receiverSignature,omitempty"`
	ReceiverStamp     string `json:"receiverStamp,omitempty"`
	ReceiverKaiPulse  int64  `json:"receiverKaiPulse,omitempty"`
}

// Received reports whether the transfer has been accepted.
func (t *Transfer) Received() bool {
	return t.ReceiverSignature != ""
}

// HardenedTransfer is the cryptographically strong record bound to a Transfer
// by leaf hash.
type HardenedTransfer struct {
	// PreviousHeadRoot pins this transfer to the head snapshot immediately
	// before it, making the chain non-reorderable.
	PreviousHeadRoot     string `json:"previousHeadRoot"`
	SenderPubKey         string `json:"senderPubKey"`
	SenderSig            string `json:"senderSig"`
	SenderKaiPulse       int64  `json:"senderKaiPulse"`
	Nonce                string `json:"nonce"`
	TransferLeafHashSend string `json:"transferLeafHashSend"`

	ReceiverPubKey          string `json:"receiverPubKey,omitempty"`
	ReceiverSig             string `json:"receiverSig,omitempty"`
	ReceiverKaiPulse        int64  `json:"receiverKaiPulse,omitempty"`
	TransferLeafHashReceive string `json:"transferLeafHashReceive,omitempty"`

	ZkSend          *zk.Stamp  `json:"zkSend,omitempty"`
	ZkSendBundle    *zk.Bundle `json:"zkSendBundle,omitempty"`
	ZkReceive       *zk.Stamp  `json:"zkReceive,omitempty"`
	ZkReceiveBundle *zk.Bundle `json:"zkReceiveBundle,omitempty"`
}

// Received reports whether the hardened entry carries receive-side fields.
func (h *HardenedTransfer) Received() bool {
	return h.ReceiverSig != ""
}

// SegmentEntry indexes one immutable archived segment on the head.
type SegmentEntry struct {
	Index int    `json:"index"`
	Root  string `json:"root"`
	CID   string `json:"cid"`
	Count int    `json:"count"`
}

// SegmentFile is the canonical content of an archived segment. Its canonical
// bytes hash to the SegmentEntry cid.
type SegmentFile struct {
	Index             int                    `json:"index"`
	Count             int                    `json:"count"`
	Root              string                 `json:"root"`
	Transfers         []Transfer             `json:"transfers"`
	HardenedTransfers []HardenedTransfer     `json:"hardenedTransfers"`
	Attestation       *SegmentAttestation    `json:"attestation,omitempty"`
}

// SegmentAttestation is an optional archiver signature over the canonical
// bytes of the sealed segment (minus this field). Advisory provenance only.
type SegmentAttestation struct {
	Alg       string `json:"alg"`     // p256 | dilithium3
	HashAlg   string `json:"hashAlg"` // sha256 | sha3-256
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

// SigilMetadata is the aggregate head state embedded in an asset.
type SigilMetadata struct {
	Pulse            int64     `json:"pulse"`
	Beat             int64     `json:"beat"`
	StepIndex        int       `json:"stepIndex"`
	ChakraDay        ChakraDay `json:"chakraDay"`
	KaiSignature     string    `json:"kaiSignature"`
	CreatorPublicKey string    `json:"creatorPublicKey"`

	Transfers         []Transfer         `json:"transfers,omitempty"`
	HardenedTransfers []HardenedTransfer `json:"hardenedTransfers,omitempty"`

	Segments            []SegmentEntry `json:"segments,omitempty"`
	SegmentsMerkleRoot  string         `json:"segmentsMerkleRoot,omitempty"`
	CumulativeTransfers int            `json:"cumulativeTransfers"`

	TransfersWindowRoot    string `json:"transfersWindowRoot,omitempty"`
	TransfersWindowRootV14 string `json:"transfersWindowRootV14,omitempty"`

	// ZKVerifyingKey optionally inlines a verifying key (base64, gnark wire
	// form) used when a bundle carries none of its own.
	ZKVerifyingKey string `json:"zkVerifyingKey,omitempty"`
}

// ArchivedTotal returns the number of transfers held in sealed segments.
func (m *SigilMetadata) ArchivedTotal() int {
	total := 0
	for _, s := range m.Segments {
		total += s.Count
	}
	return total
}
