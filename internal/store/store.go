// Package store provides crash-safe persistence of derived L2 API credentials
// using JSON files.
//
// Each wallet's credentials are stored as a separate file:
// creds_<chainID>_<address>.json. Writes use atomic file replacement (write to
// .tmp, then rename) so a crash mid-save never leaves a truncated secret
// behind. The CLI calls SaveCredentials after deriving a key and
// LoadCredentials on startup to skip the L1 round trip.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"polygo/internal/auth"
)

// record is the on-disk shape.
type record struct {
	Address     string           `json:"address"`
	ChainID     uint64           `json:"chainId"`
	Credentials auth.Credentials `json:"credentials"`
	SavedAt     time.Time        `json:"savedAt"`
}

// Store persists credentials to JSON files in a designated directory.
// All operations are mutex-protected to prevent concurrent file corruption.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open creates a store backed by the given directory. The directory is
// created owner-only since it holds secrets.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

func (s *Store) path(chainID uint64, address common.Address) string {
	name := fmt.Sprintf("creds_%d_%s.json", chainID, strings.ToLower(address.Hex()))
	return filepath.Join(s.dir, name)
}

// SaveCredentials atomically persists the credentials for a wallet on a chain.
func (s *Store) SaveCredentials(chainID uint64, address common.Address, creds auth.Credentials) error {
	if !creds.Complete() {
		return fmt.Errorf("save credentials: incomplete credentials")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(record{
		Address:     address.Hex(),
		ChainID:     chainID,
		Credentials: creds,
		SavedAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	path := s.path(chainID, address)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace credentials: %w", err)
	}
	return nil
}

// LoadCredentials restores the credentials for a wallet.
// Returns nil, nil if nothing was saved yet.
func (s *Store) LoadCredentials(chainID uint64, address common.Address) (*auth.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(chainID, address))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal credentials: %w", err)
	}
	if !rec.Credentials.Complete() {
		return nil, fmt.Errorf("stored credentials for %s are incomplete", address.Hex())
	}
	return &rec.Credentials, nil
}

// DeleteCredentials removes saved credentials; missing files are not an error.
func (s *Store) DeleteCredentials(chainID uint64, address common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(chainID, address)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}
