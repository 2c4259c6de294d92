package capability

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeySource says where the server key came from.
type KeySource string

const (
	KeyFromEnv   KeySource = "env"
	KeyFromFile  KeySource = "file"
	KeyGenerated KeySource = "generated"
)

const (
	ServerKeyName    = "Door Server"
	serverKeyComment = "Auto-generated server key for event access links"
)

// LoadOrCreateKey returns the server signing key. A non-empty envKey wins;
// otherwise the hex key stored at path is used; otherwise a new key is
// generated and written to path with mode 0600.
func LoadOrCreateKey(envKey, path string) (*ecdsa.PrivateKey, KeySource, error) {
	if envKey = strings.TrimSpace(envKey); envKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(envKey, "0x"))
		if err != nil {
			return nil, "", fmt.Errorf("parse private key from environment: %w", err)
		}
		return key, KeyFromEnv, nil
	}

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(string(b)), "0x"))
		if err != nil {
			return nil, "", fmt.Errorf("parse private key %s: %w", path, err)
		}
		return key, KeyFromFile, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, "", fmt.Errorf("read private key %s: %w", path, err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, "", fmt.Errorf("generate private key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, "", fmt.Errorf("mkdir key dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(hexutil.Encode(crypto.FromECDSA(key))), 0o600); err != nil {
		return nil, "", fmt.Errorf("write private key %s: %w", path, err)
	}
	return key, KeyGenerated, nil
}

// ServerKey is the keyring entry for the server's own signing key.
func ServerKey(s *Signer) AuthorizedKey {
	return AuthorizedKey{Name: ServerKeyName, Address: s.Address(), Description: serverKeyComment}
}
