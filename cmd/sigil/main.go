package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ipfs/go-cid"

	"kaipulse.dev/sigil/digest"
	"kaipulse.dev/sigil/keys"
	"kaipulse.dev/sigil/lineage"
	"kaipulse.dev/sigil/storage"
	"kaipulse.dev/sigil/storage/bundle"
	"kaipulse.dev/sigil/storage/casconfig"
	"kaipulse.dev/sigil/storage/casregistry"
	"kaipulse.dev/sigil/zk/gnarkzk"

	_ "kaipulse.dev/sigil/storage/grpccas"
	_ "kaipulse.dev/sigil/storage/ipfs"
	_ "kaipulse.dev/sigil/storage/localfs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "mint":
		return cmdMint(args[1:], out, errOut)
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "inspect":
		return cmdInspect(args[1:], out, errOut)
	case "verify":
		return cmdVerify(args[1:], out, errOut)
	case "send":
		return cmdSend(args[1:], out, errOut)
	case "receive":
		return cmdReceive(args[1:], out, errOut)
	case "seal":
		return cmdSeal(args[1:], out, errOut)
	case "archive":
		return cmdArchive(args[1:], out, errOut)
	case "segment":
		return cmdSegment(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "sigil: offline sovereign transfer-lineage CLI")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  sigil mint --file <sigil.json> --key <name> --kai-signature <sig> --pulse <n> --beat <n> --step <n> --chakra-day <day>")
	fmt.Fprintln(w, "  sigil key init --name <name>")
	fmt.Fprintln(w, "  sigil key list")
	fmt.Fprintln(w, "  sigil key export --name <name>")
	fmt.Fprintln(w, "  sigil inspect <sigil.json>")
	fmt.Fprintln(w, "  sigil verify [--zk] [--vkey-file <path>] [--json] <sigil.json>")
	fmt.Fprintln(w, "  sigil send --file <sigil.json> --key <name> --pulse <n> [--payload-file <path>] [--segment-dir <dir>]")
	fmt.Fprintln(w, "  sigil receive --file <sigil.json> --key <name> --pulse <n>")
	fmt.Fprintln(w, "  sigil seal --file <sigil.json> [--attest-key <name>] [--segment-dir <dir>]")
	fmt.Fprintln(w, "  sigil archive put [--backend <name> | --config <file>] [backend flags] <segment file>")
	fmt.Fprintln(w, "  sigil archive get [--backend <name> | --config <file>] [backend flags] <cid>")
	fmt.Fprintln(w, "  sigil archive export [--head <sigil.json>] [-o <bundle.tar>] [cid ...]")
	fmt.Fprintln(w, "  sigil archive import [--ignore-unknown] <bundle.tar>")
	fmt.Fprintln(w, "  sigil archive list-backends")
	fmt.Fprintln(w, "  sigil segment cid <file>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - keys are stored under ~/.sigil/keys/<name> (0600 private key files)")
	fmt.Fprintln(w, "  - verify is fully offline; --zk additionally re-checks Groth16 proof bundles")
	fmt.Fprintln(w, "  - a send that fills the live window seals a segment synchronously;")
	fmt.Fprintln(w, "    pass --segment-dir to keep the sealed segment file")
}

func loadHead(path string, errOut io.Writer) (*lineage.SigilMetadata, bool) {
	m, err := lineage.LoadFile(path)
	if err != nil {
		fmt.Fprintf(errOut, "load %s: %v\n", filepath.Base(path), err)
		return nil, false
	}
	return m, true
}

func saveHead(path string, m *lineage.SigilMetadata, errOut io.Writer) bool {
	if err := lineage.SaveFile(path, m); err != nil {
		fmt.Fprintf(errOut, "save %s: %v\n", filepath.Base(path), err)
		return false
	}
	return true
}

func loadKeypair(name string, errOut io.Writer) (*keys.Keypair, bool) {
	store, err := keys.NewStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return nil, false
	}
	kp, err := store.Load(name)
	if err != nil {
		fmt.Fprintf(errOut, "load key %q: %v\n", name, err)
		return nil, false
	}
	return kp, true
}

// writeSegment persists a sealed segment's canonical bytes under dir, named
// by index, and prints the cid.
func writeSegment(dir string, entry lineage.SegmentEntry, file *lineage.SegmentFile, out, errOut io.Writer) bool {
	data, err := lineage.CanonicalSegmentBytes(file)
	if err != nil {
		fmt.Fprintf(errOut, "segment bytes: %v\n", err)
		return false
	}
	path := filepath.Join(dir, fmt.Sprintf("segment-%05d.json", file.Index))
	if err := os.WriteFile(path, data, 0o444); err != nil {
		fmt.Fprintf(errOut, "write segment: %v\n", err)
		return false
	}
	fmt.Fprintf(out, "sealed segment %d (%d transfers)\n", file.Index, file.Count)
	fmt.Fprintf(out, "  cid:  %s\n", entry.CID)
	fmt.Fprintf(out, "  file: %s\n", path)
	return true
}

func cmdMint(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("mint", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var file, keyName, kaiSig, chakraDay string
	var pulse, beat int64
	var step int
	fs.StringVar(&file, "file", "", "Output metadata file")
	fs.StringVar(&keyName, "key", "", "Creator key name")
	fs.StringVar(&kaiSig, "kai-signature", "", "Kai signature of the moment")
	fs.Int64Var(&pulse, "pulse", 0, "Kai pulse")
	fs.Int64Var(&beat, "beat", 0, "Beat")
	fs.IntVar(&step, "step", 0, "Step index")
	fs.StringVar(&chakraDay, "chakra-day", "", "Chakra day (Root, Sacral, Solar Plexus, Heart, Throat, Third Eye, Crown)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if file == "" || keyName == "" || kaiSig == "" || chakraDay == "" {
		fmt.Fprintln(errOut, "missing --file, --key, --kai-signature or --chakra-day")
		return 2
	}
	if _, err := os.Stat(file); err == nil {
		fmt.Fprintf(errOut, "%s already exists\n", file)
		return 1
	}

	kp, ok := loadKeypair(keyName, errOut)
	if !ok {
		return 1
	}
	m := &lineage.SigilMetadata{
		Pulse:            pulse,
		Beat:             beat,
		StepIndex:        step,
		ChakraDay:        lineage.ChakraDay(chakraDay),
		KaiSignature:     kaiSig,
		CreatorPublicKey: kp.PublicEncoded,
	}
	if err := lineage.Refresh(m); err != nil {
		fmt.Fprintf(errOut, "mint: %v\n", err)
		return 1
	}
	if !saveHead(file, m, errOut) {
		return 1
	}
	fmt.Fprintf(out, "minted %s\n", file)
	fmt.Fprintf(out, "  creator: %s\n", kp.PublicEncoded)
	return 0
}

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: sigil key <init|list|export> ...")
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "export":
		return cmdKeyExport(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n", args[0])
		return 2
	}
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var name string
	fs.StringVar(&name, "name", "", "Key name (directory under ~/.sigil/keys)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	store, err := keys.NewStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	kp, err := store.LoadOrCreate(name)
	if err != nil {
		fmt.Fprintf(errOut, "init key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "%s\n", kp.PublicEncoded)
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	store, err := keys.NewStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	names, err := store.List()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, n := range names {
		fmt.Fprintln(out, n)
	}
	return 0
}

func cmdKeyExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var name string
	fs.StringVar(&name, "name", "", "Key name")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	kp, ok := loadKeypair(name, errOut)
	if !ok {
		return 1
	}
	fmt.Fprintln(out, kp.PublicEncoded)
	return 0
}

func cmdInspect(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: sigil inspect <sigil.json>")
		return 2
	}
	m, ok := loadHead(fs.Arg(0), errOut)
	if !ok {
		return 1
	}

	open := 0
	for i := range m.HardenedTransfers {
		if !m.HardenedTransfers[i].Received() {
			open++
		}
	}
	fmt.Fprintf(out, "pulse %d beat %d step %d (%s)\n", m.Pulse, m.Beat, m.StepIndex, m.ChakraDay)
	fmt.Fprintf(out, "creator: %s\n", m.CreatorPublicKey)
	fmt.Fprintf(out, "live window: %d transfers (%d open)\n", len(m.HardenedTransfers), open)
	fmt.Fprintf(out, "archived: %d transfers in %d segments\n", m.ArchivedTotal(), len(m.Segments))
	fmt.Fprintf(out, "cumulative: %d\n", m.CumulativeTransfers)
	if m.TransfersWindowRootV14 != "" {
		fmt.Fprintf(out, "window root: %s\n", m.TransfersWindowRootV14)
	}
	if m.SegmentsMerkleRoot != "" {
		fmt.Fprintf(out, "segments root: %s\n", m.SegmentsMerkleRoot)
	}
	for _, s := range m.Segments {
		fmt.Fprintf(out, "  segment %d: %d transfers cid=%s\n", s.Index, s.Count, s.CID)
	}
	return 0
}

func cmdVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var useZk, asJSON bool
	var vkeyFile string
	fs.BoolVar(&useZk, "zk", false, "Re-check Groth16 proof bundles cryptographically")
	fs.StringVar(&vkeyFile, "vkey-file", "", "Fallback verifying key file (base64 gnark wire form)")
	fs.BoolVar(&asJSON, "json", false, "Print the full report as JSON")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: sigil verify [--zk] [--vkey-file <path>] [--json] <sigil.json>")
		return 2
	}
	m, ok := loadHead(fs.Arg(0), errOut)
	if !ok {
		return 1
	}

	opts := lineage.VerifyOptions{}
	if useZk {
		opts.Groth16 = gnarkzk.Verifier{}
	}
	if vkeyFile != "" {
		raw, err := os.ReadFile(vkeyFile)
		if err != nil {
			fmt.Fprintf(errOut, "read --vkey-file: %v\n", err)
			return 1
		}
		opts.FallbackVkey = strings.TrimSpace(string(raw))
		if _, err := base64.StdEncoding.DecodeString(opts.FallbackVkey); err != nil {
			fmt.Fprintf(errOut, "--vkey-file is not base64: %v\n", err)
			return 2
		}
	}

	report, err := lineage.Verify(context.Background(), m, opts)
	if err != nil {
		fmt.Fprintf(errOut, "verify: %v\n", err)
		return 1
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(errOut, "encode report: %v\n", err)
			return 1
		}
	} else {
		fmt.Fprintf(out, "checked %d transfers\n", report.Count)
		for _, iss := range report.Issues {
			if iss.Detail != "" {
				fmt.Fprintf(out, "  [%d] %s: %s\n", iss.Index, iss.Kind, iss.Detail)
			} else {
				fmt.Fprintf(out, "  [%d] %s\n", iss.Index, iss.Kind)
			}
		}
		if report.ZK.SendVerified+report.ZK.ReceiveVerified+report.ZK.Unavailable > 0 {
			fmt.Fprintf(out, "zk: %d send verified, %d receive verified, %d unavailable\n",
				report.ZK.SendVerified, report.ZK.ReceiveVerified, report.ZK.Unavailable)
		}
		if report.OK {
			fmt.Fprintln(out, "OK")
		} else {
			fmt.Fprintln(out, "FAILED")
		}
	}
	if !report.OK {
		return 1
	}
	return 0
}

func cmdSend(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var file, keyName, payloadFile, payloadMime, segmentDir string
	var pulse int64
	fs.StringVar(&file, "file", "", "Metadata file")
	fs.StringVar(&keyName, "key", "", "Sender key name")
	fs.Int64Var(&pulse, "pulse", 0, "Sender Kai pulse")
	fs.StringVar(&payloadFile, "payload-file", "", "Optional payload to attach (bytes are embedded but never hashed)")
	fs.StringVar(&payloadMime, "payload-mime", "application/octet-stream", "Payload MIME type")
	fs.StringVar(&segmentDir, "segment-dir", "", "Directory for a segment sealed by this send")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if file == "" || keyName == "" {
		fmt.Fprintln(errOut, "missing --file or --key")
		return 2
	}
	m, ok := loadHead(file, errOut)
	if !ok {
		return 1
	}
	kp, ok := loadKeypair(keyName, errOut)
	if !ok {
		return 1
	}

	req := lineage.SendRequest{SenderKaiPulse: pulse}
	if payloadFile != "" {
		raw, err := os.ReadFile(payloadFile)
		if err != nil {
			fmt.Fprintf(errOut, "read --payload-file: %v\n", err)
			return 1
		}
		req.Payload = &lineage.TransferPayload{
			Name:    filepath.Base(payloadFile),
			Mime:    payloadMime,
			Size:    int64(len(raw)),
			Encoded: base64.StdEncoding.EncodeToString(raw),
		}
	}

	res, err := lineage.Send(m, kp, req)
	if err != nil {
		fmt.Fprintf(errOut, "send: %v\n", err)
		return 1
	}
	if !saveHead(file, m, errOut) {
		return 1
	}

	fmt.Fprintf(out, "sent transfer (leaf %s)\n", res.Hardened.TransferLeafHashSend)
	if res.Sealed != nil {
		entry := m.Segments[len(m.Segments)-1]
		if segmentDir == "" {
			fmt.Fprintf(out, "sealed segment %d (%d transfers) cid=%s\n", res.Sealed.Index, res.Sealed.Count, entry.CID)
			fmt.Fprintln(errOut, "warning: segment bytes discarded; pass --segment-dir to keep them")
		} else if !writeSegment(segmentDir, entry, res.Sealed, out, errOut) {
			return 1
		}
	}
	return 0
}

func cmdReceive(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("receive", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var file, keyName string
	var pulse int64
	fs.StringVar(&file, "file", "", "Metadata file")
	fs.StringVar(&keyName, "key", "", "Receiver key name")
	fs.Int64Var(&pulse, "pulse", 0, "Receiver Kai pulse")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if file == "" || keyName == "" {
		fmt.Fprintln(errOut, "missing --file or --key")
		return 2
	}
	m, ok := loadHead(file, errOut)
	if !ok {
		return 1
	}
	kp, ok := loadKeypair(keyName, errOut)
	if !ok {
		return 1
	}

	h, err := lineage.Receive(m, kp, lineage.ReceiveRequest{ReceiverKaiPulse: pulse})
	if err != nil {
		fmt.Fprintf(errOut, "receive: %v\n", err)
		return 1
	}
	if !saveHead(file, m, errOut) {
		return 1
	}
	fmt.Fprintf(out, "received transfer (leaf %s)\n", h.TransferLeafHashReceive)
	return 0
}

func cmdSeal(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("seal", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var file, attestKey, segmentDir string
	fs.StringVar(&file, "file", "", "Metadata file")
	fs.StringVar(&attestKey, "attest-key", "", "Optional key name for a p256 segment attestation")
	fs.StringVar(&segmentDir, "segment-dir", "", "Directory for the sealed segment file")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if file == "" {
		fmt.Fprintln(errOut, "missing --file")
		return 2
	}
	m, ok := loadHead(file, errOut)
	if !ok {
		return 1
	}

	opts := lineage.SealOptions{}
	if attestKey != "" {
		kp, ok := loadKeypair(attestKey, errOut)
		if !ok {
			return 1
		}
		opts.Attest = func(scope []byte) (*lineage.SegmentAttestation, error) {
			sig, err := keys.SignBase64(kp.Private, scope)
			if err != nil {
				return nil, err
			}
			return &lineage.SegmentAttestation{
				Alg:       "p256",
				HashAlg:   "sha256",
				PublicKey: kp.PublicEncoded,
				Signature: sig,
			}, nil
		}
	}

	sealed, err := lineage.Seal(m, opts)
	if err != nil {
		fmt.Fprintf(errOut, "seal: %v\n", err)
		return 1
	}
	if sealed == nil {
		fmt.Fprintln(out, "live window is empty; nothing to seal")
		return 0
	}
	if !saveHead(file, m, errOut) {
		return 1
	}

	entry := m.Segments[len(m.Segments)-1]
	if segmentDir == "" {
		fmt.Fprintf(out, "sealed segment %d (%d transfers) cid=%s\n", sealed.Index, sealed.Count, entry.CID)
		fmt.Fprintln(errOut, "warning: segment bytes discarded; pass --segment-dir to keep them")
		return 0
	}
	if !writeSegment(segmentDir, entry, sealed, out, errOut) {
		return 1
	}
	return 0
}

func cmdArchive(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: sigil archive <put|get|export|import|list-backends> ...")
		return 2
	}
	switch args[0] {
	case "list-backends":
		for _, b := range casregistry.List(casregistry.UsageCLI) {
			if b.Description == "" {
				fmt.Fprintln(out, b.Name)
				continue
			}
			fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	case "put":
		return cmdArchivePut(args[1:], out, errOut)
	case "get":
		return cmdArchiveGet(args[1:], out, errOut)
	case "export":
		return cmdArchiveExport(args[1:], out, errOut)
	case "import":
		return cmdArchiveImport(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown archive subcommand: %s\n", args[0])
		return 2
	}
}

// openArchive opens either a single flag-configured backend or, when a
// casconfig file is given, the configured archive set.
func openArchive(backend, configPath string, errOut io.Writer) (storage.CAS, func() error, bool) {
	if configPath != "" {
		cfg, err := casconfig.LoadFile(configPath)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return nil, nil, false
		}
		cas, closeFn, err := cfg.Open(casregistry.UsageCLI, backend)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return nil, nil, false
		}
		return cas, closeFn, true
	}
	if backend == "" {
		backend = "localfs"
	}
	cas, closeFn, err := casregistry.Open(backend, casregistry.UsageCLI)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return nil, nil, false
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return cas, closeFn, true
}

func cmdArchivePut(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("archive put", flag.ContinueOnError)
	fs.SetOutput(errOut)
	backend := fs.String("backend", "", "Archive backend name (with --config: preferred archive id)")
	configPath := fs.String("config", "", "Archive-set config file (casconfig JSON)")
	casregistry.RegisterFlags(fs, casregistry.UsageCLI)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: sigil archive put [--backend <name> | --config <file>] [backend flags] <segment file>")
		return 2
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read segment: %v\n", err)
		return 1
	}

	cas, closeFn, ok := openArchive(*backend, *configPath, errOut)
	if !ok {
		return 2
	}
	defer closeFn()

	id, err := cas.Put(data)
	if err != nil {
		fmt.Fprintf(errOut, "put: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, id.String())
	return 0
}

func cmdArchiveGet(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("archive get", flag.ContinueOnError)
	fs.SetOutput(errOut)
	backend := fs.String("backend", "", "Archive backend name (with --config: preferred archive id)")
	configPath := fs.String("config", "", "Archive-set config file (casconfig JSON)")
	casregistry.RegisterFlags(fs, casregistry.UsageCLI)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: sigil archive get [--backend <name> | --config <file>] [backend flags] <cid>")
		return 2
	}

	id, err := cid.Decode(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "invalid cid: %v\n", err)
		return 2
	}

	cas, closeFn, ok := openArchive(*backend, *configPath, errOut)
	if !ok {
		return 2
	}
	defer closeFn()

	data, err := cas.Get(id)
	if err != nil {
		fmt.Fprintf(errOut, "get: %v\n", err)
		return 1
	}
	_, _ = out.Write(data)
	return 0
}

func cmdArchiveExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("archive export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	backend := fs.String("backend", "", "Archive backend name (with --config: preferred archive id)")
	configPath := fs.String("config", "", "Archive-set config file (casconfig JSON)")
	headPath := fs.String("head", "", "Export every sealed segment referenced by this metadata file")
	output := fs.String("o", "", "Bundle output path (default: stdout)")
	casregistry.RegisterFlags(fs, casregistry.UsageCLI)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *headPath == "" && fs.NArg() == 0 {
		fmt.Fprintln(errOut, "usage: sigil archive export [--backend <name> | --config <file>] [--head <sigil.json>] [-o <bundle.tar>] [cid ...]")
		return 2
	}

	var ids []cid.Cid
	labels := map[string]cid.Cid{}
	if *headPath != "" {
		m, ok := loadHead(*headPath, errOut)
		if !ok {
			return 1
		}
		for _, seg := range m.Segments {
			id, err := cid.Decode(seg.CID)
			if err != nil {
				fmt.Fprintf(errOut, "segment %d: invalid cid: %v\n", seg.Index, err)
				return 1
			}
			ids = append(ids, id)
			labels[fmt.Sprintf("segment-%05d", seg.Index)] = id
		}
	}
	for _, arg := range fs.Args() {
		id, err := cid.Decode(arg)
		if err != nil {
			fmt.Fprintf(errOut, "invalid cid: %v\n", err)
			return 2
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		fmt.Fprintln(errOut, "nothing to export: head has no sealed segments and no cids given")
		return 1
	}

	cas, closeFn, ok := openArchive(*backend, *configPath, errOut)
	if !ok {
		return 2
	}
	defer closeFn()

	var w io.Writer = out
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(errOut, "create bundle: %v\n", err)
			return 1
		}
		defer f.Close()
		w = f
	}
	if err := bundle.Export(w, cas, ids, bundle.ExportOptions{Labels: labels, IncludeIndex: true}); err != nil {
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	if *output != "" {
		fmt.Fprintf(out, "exported %d segment(s) to %s\n", len(ids), *output)
	}
	return 0
}

func cmdArchiveImport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("archive import", flag.ContinueOnError)
	fs.SetOutput(errOut)
	backend := fs.String("backend", "", "Archive backend name (with --config: preferred archive id)")
	configPath := fs.String("config", "", "Archive-set config file (casconfig JSON)")
	ignoreUnknown := fs.Bool("ignore-unknown", false, "Skip unknown bundle entries instead of failing")
	casregistry.RegisterFlags(fs, casregistry.UsageCLI)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: sigil archive import [--backend <name> | --config <file>] [backend flags] <bundle.tar>")
		return 2
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "open bundle: %v\n", err)
		return 1
	}
	defer f.Close()

	cas, closeFn, ok := openArchive(*backend, *configPath, errOut)
	if !ok {
		return 2
	}
	defer closeFn()

	opts := bundle.ImportOptions{IgnoreUnknown: *ignoreUnknown}
	if err := bundle.ImportWithOptions(f, cas, opts); err != nil {
		fmt.Fprintf(errOut, "import: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "imported %s\n", fs.Arg(0))
	return 0
}

func cmdSegment(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: sigil segment <cid> ...")
		return 2
	}
	switch args[0] {
	case "cid":
		fs := flag.NewFlagSet("segment cid", flag.ContinueOnError)
		fs.SetOutput(errOut)
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if fs.NArg() != 1 {
			fmt.Fprintln(errOut, "usage: sigil segment cid <file>")
			return 2
		}
		data, err := os.ReadFile(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(errOut, "read segment: %v\n", err)
			return 1
		}
		id := digest.CIDv1RawSHA256(data)
		if id == "" {
			fmt.Fprintln(errOut, "failed to compute cid")
			return 1
		}
		fmt.Fprintln(out, id)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown segment subcommand: %s\n", args[0])
		return 2
	}
}
