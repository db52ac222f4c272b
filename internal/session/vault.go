package session

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
)

// Vault holds the single session token in use by the process.
// Transports read and write the raw session bytes through it.
type Vault struct {
	mu   sync.RWMutex
	data []byte
}

// NewVault creates a vault seeded with an exported token. An empty token
// leaves the vault empty.
func NewVault(token string) (*Vault, error) {
	v := &Vault{}
	if err := v.Import(token); err != nil {
		return nil, err
	}
	return v, nil
}

// Import replaces the vault contents with an exported token.
func (v *Vault) Import(token string) error {
	token = strings.TrimSpace(token)
	var data []byte
	if token != "" {
		var err error
		data, err = base64.StdEncoding.DecodeString(token)
		if err != nil {
			return fmt.Errorf("decode session token: %w", err)
		}
	}
	v.mu.Lock()
	v.data = data
	v.mu.Unlock()
	return nil
}

// Has reports whether the vault holds a session.
func (v *Vault) Has() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.data) > 0
}

// Load returns a copy of the raw session bytes, or ErrNoToken.
func (v *Vault) Load() ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if len(v.data) == 0 {
		return nil, ErrNoToken
	}
	return append([]byte(nil), v.data...), nil
}

// Store replaces the raw session bytes.
func (v *Vault) Store(data []byte) {
	v.mu.Lock()
	v.data = append([]byte(nil), data...)
	v.mu.Unlock()
}

// Token returns the session in its exported string form.
func (v *Vault) Token() (string, error) {
	data, err := v.Load()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
