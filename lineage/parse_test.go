package lineage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kaipulse.dev/sigil/digest"
)

const headJSON = `{
  "pulse": 5000000,
  "beat": 21,
  "stepIndex": 13,
  "chakraDay": "Throat",
  "kaiSignature": "c0ffee1234",
  "creatorPublicKey": "p256:AAAA",
  "cumulativeTransfers": 0,
  "displayTheme": "aurora"
}`

func TestParseToleratesUnknownFields(t *testing.T) {
	m, err := Parse([]byte(headJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Pulse != 5000000 || m.ChakraDay != ChakraThroat {
		t.Fatalf("decoded head mismatch: %+v", m)
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"pulse": `))
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if !IsKind(err, KindParse) {
		t.Fatalf("wrong kind: %v", err)
	}
	if RuleID(err) != "SIGIL-PARSE-001" {
		t.Fatalf("wrong rule id: %s", RuleID(err))
	}
}

func TestValidateRules(t *testing.T) {
	valid := func() *SigilMetadata {
		m, err := Parse([]byte(headJSON))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		return m
	}
	hex32 := digest.SHA256HexString("x")

	cases := []struct {
		name   string
		mutate func(*SigilMetadata)
		rule   string
	}{
		{"missing kaiSignature", func(m *SigilMetadata) { m.KaiSignature = "" }, "SIGIL-VAL-002"},
		{"missing creator key", func(m *SigilMetadata) { m.CreatorPublicKey = "" }, "SIGIL-VAL-003"},
		{"unknown chakraDay", func(m *SigilMetadata) { m.ChakraDay = "Karma" }, "SIGIL-VAL-004"},
		{"negative pulse", func(m *SigilMetadata) { m.Pulse = -1 }, "SIGIL-VAL-005"},
		{"transfer missing sender fields", func(m *SigilMetadata) {
			m.Transfers = []Transfer{{SenderSignature: "s"}}
		}, "SIGIL-VAL-101"},
		{"partial receiver fields", func(m *SigilMetadata) {
			m.Transfers = []Transfer{{SenderSignature: "s", SenderStamp: "st", ReceiverSignature: "r"}}
		}, "SIGIL-VAL-102"},
		{"hardened missing send sig", func(m *SigilMetadata) {
			m.HardenedTransfers = []HardenedTransfer{{SenderPubKey: "p256:AAAA"}}
		}, "SIGIL-VAL-201"},
		{"hardened bad prev root", func(m *SigilMetadata) {
			m.HardenedTransfers = []HardenedTransfer{{
				SenderPubKey: "p256:AAAA", SenderSig: "sig",
				PreviousHeadRoot: "zz", TransferLeafHashSend: hex32, Nonce: strings.Repeat("ab", 16),
			}}
		}, "SIGIL-VAL-202"},
		{"hardened bad nonce", func(m *SigilMetadata) {
			m.HardenedTransfers = []HardenedTransfer{{
				SenderPubKey: "p256:AAAA", SenderSig: "sig",
				PreviousHeadRoot: hex32, TransferLeafHashSend: hex32, Nonce: "abcd",
			}}
		}, "SIGIL-VAL-204"},
		{"hardened partial receiver", func(m *SigilMetadata) {
			m.HardenedTransfers = []HardenedTransfer{{
				SenderPubKey: "p256:AAAA", SenderSig: "sig",
				PreviousHeadRoot: hex32, TransferLeafHashSend: hex32, Nonce: strings.Repeat("ab", 16),
				ReceiverPubKey: "p256:BBBB",
			}}
		}, "SIGIL-VAL-205"},
		{"segments not contiguous", func(m *SigilMetadata) {
			m.Segments = []SegmentEntry{{Index: 1, Root: hex32, CID: "bafy", Count: 1}}
		}, "SIGIL-VAL-301"},
		{"segment zero count", func(m *SigilMetadata) {
			m.Segments = []SegmentEntry{{Index: 0, Root: hex32, CID: "bafy", Count: 0}}
		}, "SIGIL-VAL-304"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := valid()
			tc.mutate(m)
			err := Validate(m)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if RuleID(err) != tc.rule {
				t.Fatalf("got rule %s want %s (%v)", RuleID(err), tc.rule, err)
			}
		})
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	m, kp := newTestHead(t)
	if _, err := Send(m, kp, SendRequest{SenderKaiPulse: 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	path := filepath.Join(t.TempDir(), "sigil.json")
	if err := SaveFile(path, m); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got.TransfersWindowRoot != m.TransfersWindowRoot ||
		got.TransfersWindowRootV14 != m.TransfersWindowRootV14 {
		t.Fatalf("roots did not survive the round trip")
	}
	if len(got.HardenedTransfers) != 1 {
		t.Fatalf("hardened window did not survive the round trip")
	}

	// No temp residue next to the file.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".sigil-") {
			t.Fatalf("leftover temp file %s", e.Name())
		}
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsKind(err, KindStorage) {
		t.Fatalf("wrong kind: %v", err)
	}
}
