// Package casconfig opens one or more segment archives from a JSON config
// file, so multi-archive setups (local tier plus remote vaults) can be
// described once instead of repeated as CLI flags.
package casconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"kaipulse.dev/sigil/storage"
	"kaipulse.dev/sigil/storage/casregistry"
)

// Config describes how to open one or more archives via casregistry.
// The binary still needs the backend plugins linked via blank imports.
//
// WritePolicy values:
//   - "first" (default): write only to the first archive; reads fall back
//     in order (storage.Tiered)
//   - "all": write to every archive and require CID equality
//     (storage.Replicating)
//
// Example:
//
//	{
//	  "write_policy": "all",
//	  "archives": [
//	    {"name":"localfs", "config":{"localfs-dir":"/var/sigil/segments"}},
//	    {"name":"grpc", "id":"vault", "config":{"grpc-target":"vault:7777"}}
//	  ]
//	}
//
// Config keys are backend-specific and mirror the backend's CLI flag names.
type Config struct {
	WritePolicy string          `json:"write_policy,omitempty"`
	Archives    []ArchiveConfig `json:"archives"`
}

type ArchiveConfig struct {
	// Name is the casregistry backend name (e.g. "localfs", "grpc", "ipfs").
	Name string `json:"name"`
	// ID is an optional stable alias used in per-archive CID maps.
	// If empty, Name is used.
	ID     string            `json:"id,omitempty"`
	Config map[string]string `json:"config,omitempty"`
}

func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("casconfig: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.Archives) == 0 {
		return errors.New("casconfig: at least one archive is required")
	}
	seen := make(map[string]struct{}, len(c.Archives))
	for _, a := range c.Archives {
		if a.Name == "" {
			return errors.New("casconfig: archive name is required")
		}
		id := a.Name
		if a.ID != "" {
			id = a.ID
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("casconfig: duplicate archive id %q", id)
		}
		seen[id] = struct{}{}
	}
	switch c.WritePolicy {
	case "", "first", "all":
		return nil
	default:
		return fmt.Errorf("casconfig: invalid write_policy %q", c.WritePolicy)
	}
}

// Open opens the configured archives and combines them per WritePolicy.
//
// If preferred is non-empty, archives are reordered so the matching entry
// comes first (and thus takes writes when WritePolicy is "first").
func (c Config) Open(usage casregistry.Usage, preferred string) (storage.CAS, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	ordered := append([]ArchiveConfig(nil), c.Archives...)
	if preferred != "" {
		idx := -1
		for i := range ordered {
			if ordered[i].Name == preferred || ordered[i].ID == preferred {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, nil, fmt.Errorf("casconfig: preferred archive %q not found in config", preferred)
		}
		if idx != 0 {
			a := ordered[idx]
			copy(ordered[1:idx+1], ordered[0:idx])
			ordered[0] = a
		}
	}

	named := make([]storage.NamedCAS, 0, len(ordered))
	closers := make([]func() error, 0, len(ordered))
	for _, a := range ordered {
		cas, closeFn, err := casregistry.OpenWithConfig(a.Name, usage, a.Config)
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
			return nil, nil, err
		}
		name := a.Name
		if a.ID != "" {
			name = a.ID
		}
		named = append(named, storage.NamedCAS{Name: name, CAS: cas})
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
	}

	closeAll := func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	if len(named) == 1 {
		return named[0].CAS, closeAll, nil
	}

	switch c.WritePolicy {
	case "", "first":
		tiers := make([]storage.CAS, 0, len(named))
		for _, n := range named {
			tiers = append(tiers, n.CAS)
		}
		return storage.Tiered{Tiers: tiers}, closeAll, nil
	default: // "all", per Validate
		return storage.Replicating{Backends: named}, closeAll, nil
	}
}
