package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store is a filesystem-backed keypair store.
//
// Layout: <dir>/<name>/private.key holds base64 PKCS#8 (0600);
// <dir>/<name>/public.key holds the "p256:" metadata string (0644).
//
// The store is caller-owned and explicitly constructed; nothing in the
// protocol core reaches for an ambient default.
type Store struct {
	Directory string
}

// DefaultDirectory returns ~/.sigil/keys.
func DefaultDirectory() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".sigil", "keys"), nil
}

// NewStore constructs a Store rooted at directory, falling back to
// DefaultDirectory when directory is empty.
func NewStore(directory string) (*Store, error) {
	if directory == "" {
		var err error
		directory, err = DefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &Store{Directory: directory}, nil
}

// CheckName restricts key names to [A-Za-z0-9_-].
func CheckName(name string) error {
	if name == "" {
		return errors.New("keys: name cannot be empty")
	}
	for _, c := range name {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			continue
		}
		return fmt.Errorf("keys: invalid character %q in name", c)
	}
	return nil
}

func (s *Store) privatePath(name string) string {
	return filepath.Join(s.Directory, name, "private.key")
}

func (s *Store) publicPath(name string) string {
	return filepath.Join(s.Directory, name, "public.key")
}

// LoadOrCreate returns the persisted keypair for name, generating and
// persisting a fresh one exactly once if absent. Repeated calls with the same
// store return the same keypair.
func (s *Store) LoadOrCreate(name string) (*Keypair, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	kp, err := s.Load(name)
	if err == nil {
		return kp, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	kp, err = Generate()
	if err != nil {
		return nil, err
	}
	if err := s.save(name, kp); err != nil {
		return nil, err
	}
	return kp, nil
}

// Load returns the persisted keypair for name, or os.ErrNotExist.
func (s *Store) Load(name string) (*Keypair, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.privatePath(name))
	if err != nil {
		return nil, err
	}
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("keys: corrupt private key file for %q: %w", name, err)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("keys: corrupt private key for %q: %w", name, err)
	}
	priv, ok := parsed.(*ecdsa.PrivateKey)
	if !ok || priv.Curve != elliptic.P256() {
		return nil, fmt.Errorf("keys: stored key %q is not ECDSA P-256", name)
	}
	pub, err := EncodePublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	return &Keypair{Private: priv, PublicEncoded: pub}, nil
}

// List returns the names of stored keypairs, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (s *Store) save(name string, kp *Keypair) error {
	der, err := x509.MarshalPKCS8PrivateKey(kp.Private)
	if err != nil {
		return fmt.Errorf("keys: export private key: %w", err)
	}
	dir := filepath.Join(s.Directory, name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	// O_EXCL keeps a concurrent create from silently clobbering a keypair.
	f, err := os.OpenFile(s.privatePath(name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(base64.StdEncoding.EncodeToString(der) + "\n"); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.WriteFile(s.publicPath(name), []byte(kp.PublicEncoded+"\n"), 0o644)
}
