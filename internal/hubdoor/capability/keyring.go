package capability

import (
	"strings"
	"sync"
)

// AuthorizedKey binds a signer address to a display name.
type AuthorizedKey struct {
	Name        string `json:"name" yaml:"name"`
	Address     string `json:"publicKey" yaml:"public_key"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Keyring is the whitelist of addresses allowed to issue links. Lookups
// ignore address case.
type Keyring struct {
	mu   sync.RWMutex
	keys []AuthorizedKey
}

func NewKeyring(keys []AuthorizedKey) *Keyring {
	return &Keyring{keys: append([]AuthorizedKey(nil), keys...)}
}

// Lookup finds the entry for address.
func (k *Keyring) Lookup(address string) (AuthorizedKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	for _, key := range k.keys {
		if strings.EqualFold(key.Address, address) {
			return key, true
		}
	}
	return AuthorizedKey{}, false
}

// Ensure appends key unless its address is already present. It reports
// whether the key was added.
func (k *Keyring) Ensure(key AuthorizedKey) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, existing := range k.keys {
		if strings.EqualFold(existing.Address, key.Address) {
			return false
		}
	}
	k.keys = append(k.keys, key)
	return true
}

// Keys returns a copy of the whitelist in order.
func (k *Keyring) Keys() []AuthorizedKey {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return append([]AuthorizedKey(nil), k.keys...)
}
