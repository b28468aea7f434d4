package ipfs

import (
	"flag"
	"os"

	"kaipulse.dev/sigil/storage"
	"kaipulse.dev/sigil/storage/casregistry"
)

var (
	flagBin  string
	flagPath string
	flagPin  bool
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Kubo CLI segment archive (local IPFS repo)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagBin, "ipfs-bin", "", "Path to the ipfs binary (for --backend=ipfs; default: ipfs on PATH)")
			fs.StringVar(&flagPath, "ipfs-path", "", "IPFS_PATH override (for --backend=ipfs)")
			fs.BoolVar(&flagPin, "ipfs-pin", false, "Pin stored segments against repo GC (for --backend=ipfs)")
		},
		Open: func() (storage.CAS, func() error, error) {
			var env []string
			if flagPath != "" {
				env = append(os.Environ(), "IPFS_PATH="+flagPath)
			}
			return New(Options{Bin: flagBin, Env: env, Pin: flagPin}), nil, nil
		},
	})
}
