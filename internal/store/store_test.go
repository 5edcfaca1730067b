package store

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"polygo/internal/auth"
)

var (
	walletA = common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	walletB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func TestSaveAndLoadCredentials(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	creds := auth.Credentials{ApiKey: "key", Secret: "c2VjcmV0", Passphrase: "pass"}
	if err := s.SaveCredentials(137, walletA, creds); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}

	loaded, err := s.LoadCredentials(137, walletA)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadCredentials returned nil")
	}
	if *loaded != creds {
		t.Errorf("loaded = %+v, want the saved credentials", loaded)
	}

	if _, err := os.Stat(s.path(137, walletA) + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
	if runtime.GOOS != "windows" {
		info, err := os.Stat(s.path(137, walletA))
		if err != nil {
			t.Fatalf("Stat: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("file mode = %o, want 600", perm)
		}
	}
}

func TestLoadCredentialsMissing(t *testing.T) {
	t.Parallel()

	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	loaded, err := s.LoadCredentials(137, walletA)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil for missing credentials, got %v", loaded)
	}
}

func TestCredentialsAreScopedByChainAndWallet(t *testing.T) {
	t.Parallel()

	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	mainnet := auth.Credentials{ApiKey: "main", Secret: "s", Passphrase: "p"}
	if err := s.SaveCredentials(137, walletA, mainnet); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}

	for _, tc := range []struct {
		chain uint64
		addr  common.Address
	}{
		{80002, walletA},
		{137, walletB},
	} {
		loaded, err := s.LoadCredentials(tc.chain, tc.addr)
		if err != nil {
			t.Fatalf("LoadCredentials(%d, %s): %v", tc.chain, tc.addr.Hex(), err)
		}
		if loaded != nil {
			t.Errorf("LoadCredentials(%d, %s) = %v, want nil", tc.chain, tc.addr.Hex(), loaded)
		}
	}
}

func TestSaveCredentialsOverwrites(t *testing.T) {
	t.Parallel()

	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	_ = s.SaveCredentials(137, walletA, auth.Credentials{ApiKey: "old", Secret: "s", Passphrase: "p"})
	_ = s.SaveCredentials(137, walletA, auth.Credentials{ApiKey: "new", Secret: "s", Passphrase: "p"})

	loaded, err := s.LoadCredentials(137, walletA)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if loaded.ApiKey != "new" {
		t.Errorf("ApiKey = %q, want \"new\" (latest save)", loaded.ApiKey)
	}
}

func TestSaveRejectsIncomplete(t *testing.T) {
	t.Parallel()

	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SaveCredentials(137, walletA, auth.Credentials{ApiKey: "only"}); err == nil {
		t.Fatal("expected error for incomplete credentials")
	}
}

func TestLoadCorruptFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := os.WriteFile(s.path(137, walletA), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := s.LoadCredentials(137, walletA); err == nil {
		t.Fatal("expected error for corrupt file")
	}
}

func TestDeleteCredentials(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "creds")
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.DeleteCredentials(137, walletA); err != nil {
		t.Fatalf("DeleteCredentials on missing file: %v", err)
	}
	_ = s.SaveCredentials(137, walletA, auth.Credentials{ApiKey: "k", Secret: "s", Passphrase: "p"})
	if err := s.DeleteCredentials(137, walletA); err != nil {
		t.Fatalf("DeleteCredentials: %v", err)
	}
	loaded, err := s.LoadCredentials(137, walletA)
	if err != nil || loaded != nil {
		t.Errorf("after delete: loaded=%v err=%v", loaded, err)
	}
}
