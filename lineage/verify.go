package lineage

import (
	"context"
	"fmt"

	"kaipulse.dev/sigil/keys"
	"kaipulse.dev/sigil/zk"
)

// IssueKind identifies one class of integrity or availability finding.
type IssueKind string

const (
	IssuePrevHeadMismatch           IssueKind = "prevHeadMismatch"
	IssueSendLeafMismatch           IssueKind = "sendLeafMismatch"
	IssueReceiveLeafMismatch        IssueKind = "receiveLeafMismatch"
	IssueSendSigInvalid             IssueKind = "sendSigInvalid"
	IssueReceiveSigInvalid          IssueKind = "receiveSigInvalid"
	IssueZkSendStampHashMismatch    IssueKind = "zkSendStampHashMismatch"
	IssueZkReceiveStampHashMismatch IssueKind = "zkReceiveStampHashMismatch"
	IssueZkSendFailed               IssueKind = "zkSendFailed"
	IssueZkReceiveFailed            IssueKind = "zkReceiveFailed"
)

// Issue is one itemized finding, pinned to a live-window transfer index.
type Issue struct {
	Index  int       `json:"index"`
	Kind   IssueKind `json:"kind"`
	Detail string    `json:"detail,omitempty"`
}

// CheckDetail reports the per-side leaf and signature outcomes for an entry.
type CheckDetail struct {
	LeafOK bool `json:"leafOk"`
	SigOK  bool `json:"sigOk"`
}

// EntryReport is the per-entry breakdown. Receive is nil for open transfers.
type EntryReport struct {
	Index   int          `json:"index"`
	Send    *CheckDetail `json:"send"`
	Receive *CheckDetail `json:"receive,omitempty"`
}

// ZKSummary aggregates proof verification outcomes.
//
// Unavailable counts checks that could not be performed (no verifier linked,
// no verifying key, stamp without a recomputable bundle). Unavailable is not
// failure: it never contributes to Issues and never flips OK.
type ZKSummary struct {
	SendVerified    int `json:"sendVerified"`
	ReceiveVerified int `json:"receiveVerified"`
	Unavailable     int `json:"unavailable"`
}

// Report is the outcome of offline verification.
type Report struct {
	OK      bool          `json:"ok"`
	Count   int           `json:"count"`
	Issues  []Issue       `json:"issues"`
	Entries []EntryReport `json:"entries"`
	ZK      ZKSummary     `json:"zk"`
}

// VerifyOptions carries the injected capabilities: the optional Groth16
// verifier and the process-configured fallback verifying key.
type VerifyOptions struct {
	Groth16      zk.Groth16Verifier
	FallbackVkey string
}

// Verify recomputes every expected value of the hardened chain from embedded
// data only, itemizing each divergence.
//
// Per entry the checks run in order: previous-head pin, leaf bindings,
// signatures, zk stamps. A previous-head mismatch voids everything deeper for
// that entry (the snapshot the remaining checks depend on is untrustworthy),
// but evaluation always continues with the next entry: failures are itemized,
// never fatal to the run. Leaf and signature checks are deliberately
// independent so a tampered legacy record is distinguishable from a forged
// message.
func Verify(ctx context.Context, m *SigilMetadata, opts VerifyOptions) (*Report, error) {
	if err := Validate(m); err != nil {
		return nil, err
	}
	report := &Report{
		Count:  len(m.HardenedTransfers),
		Issues: []Issue{},
	}

	for i := range m.HardenedTransfers {
		h := &m.HardenedTransfers[i]
		entry := EntryReport{Index: i, Send: &CheckDetail{}}

		expected, err := ExpectedPreviousHeadRoot(m, i)
		if err != nil {
			return nil, err
		}
		if h.PreviousHeadRoot != expected {
			report.Issues = append(report.Issues, Issue{
				Index:  i,
				Kind:   IssuePrevHeadMismatch,
				Detail: fmt.Sprintf("expected %s got %s", expected, h.PreviousHeadRoot),
			})
			report.Entries = append(report.Entries, entry)
			continue
		}

		// Leaf bindings against the legacy record, when it exists.
		entry.Send.LeafOK = true
		var legacy *Transfer
		if i < len(m.Transfers) {
			legacy = &m.Transfers[i]
		}
		if legacy != nil {
			leaf, err := SenderLeaf(legacy)
			if err != nil {
				return nil, err
			}
			if leaf != h.TransferLeafHashSend {
				entry.Send.LeafOK = false
				report.Issues = append(report.Issues, Issue{Index: i, Kind: IssueSendLeafMismatch})
			}
		}

		// Send signature over the reconstructed canonical message.
		msg, err := sendMessage(m, h)
		if err != nil {
			return nil, err
		}
		entry.Send.SigOK = keys.VerifyBase64(h.SenderPubKey, msg, h.SenderSig)
		if !entry.Send.SigOK {
			report.Issues = append(report.Issues, Issue{Index: i, Kind: IssueSendSigInvalid})
		}

		if h.Received() {
			entry.Receive = &CheckDetail{LeafOK: true}
			if legacy != nil {
				// A hardened entry claiming receive data whose legacy record
				// cannot recompute the full leaf is a mismatch, not a pass.
				if !legacy.Received() {
					entry.Receive.LeafOK = false
					report.Issues = append(report.Issues, Issue{Index: i, Kind: IssueReceiveLeafMismatch})
				} else {
					leaf, err := FullLeaf(legacy)
					if err != nil {
						return nil, err
					}
					if leaf != h.TransferLeafHashReceive {
						entry.Receive.LeafOK = false
						report.Issues = append(report.Issues, Issue{Index: i, Kind: IssueReceiveLeafMismatch})
					}
				}
			}
			rmsg, err := receiveMessage(h)
			if err != nil {
				return nil, err
			}
			entry.Receive.SigOK = keys.VerifyBase64(h.ReceiverPubKey, rmsg, h.ReceiverSig)
			if !entry.Receive.SigOK {
				report.Issues = append(report.Issues, Issue{Index: i, Kind: IssueReceiveSigInvalid})
			}
		}

		verifyStampedBundle(ctx, m, opts, report, i,
			h.ZkSend, h.ZkSendBundle, IssueZkSendStampHashMismatch, IssueZkSendFailed, true)
		verifyStampedBundle(ctx, m, opts, report, i,
			h.ZkReceive, h.ZkReceiveBundle, IssueZkReceiveStampHashMismatch, IssueZkReceiveFailed, false)

		report.Entries = append(report.Entries, entry)
	}

	report.OK = len(report.Issues) == 0
	return report, nil
}

// verifyStampedBundle checks one side of one entry in order: stamp/bundle
// presence, hash binding, then optional cryptographic verification. On success the stamp's verified flag is set in place; on any
// other outcome it is forced false so a stale claim cannot survive.
func verifyStampedBundle(ctx context.Context, m *SigilMetadata, opts VerifyOptions, report *Report, index int, stamp *zk.Stamp, bundle *zk.Bundle, mismatchKind, failedKind IssueKind, send bool) {
	if stamp == nil && bundle == nil {
		return
	}
	if bundle == nil {
		// A stamp with no recomputable bundle is not independently
		// verifiable; do not treat the claim as verified.
		stamp.Verified = false
		report.ZK.Unavailable++
		return
	}
	if stamp == nil {
		// A bundle with no stamp has no binding to check against; fail
		// closed as a hash mismatch rather than silently passing.
		report.Issues = append(report.Issues, Issue{Index: index, Kind: mismatchKind, Detail: "bundle present without stamp"})
		return
	}

	vkey := zk.EffectiveVkey(bundle, m.ZKVerifyingKey, opts.FallbackVkey)
	ok, err := stamp.Matches(bundle, vkey)
	if err != nil {
		report.Issues = append(report.Issues, Issue{Index: index, Kind: mismatchKind, Detail: err.Error()})
		stamp.Verified = false
		return
	}
	if !ok {
		report.Issues = append(report.Issues, Issue{Index: index, Kind: mismatchKind})
		stamp.Verified = false
		return
	}

	if opts.Groth16 == nil || vkey == "" {
		stamp.Verified = false
		report.ZK.Unavailable++
		return
	}

	verified, err := opts.Groth16.Verify(ctx, stamp.Curve, vkey, bundle.Proof, bundle.PublicSignals)
	if err != nil {
		report.Issues = append(report.Issues, Issue{Index: index, Kind: failedKind, Detail: err.Error()})
		stamp.Verified = false
		return
	}
	if !verified {
		report.Issues = append(report.Issues, Issue{Index: index, Kind: failedKind})
		stamp.Verified = false
		return
	}
	stamp.Verified = true
	if send {
		report.ZK.SendVerified++
	} else {
		report.ZK.ReceiveVerified++
	}
}
