package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const sealedPrefix = "sealed:"

// Store persists the exported session token outside the process.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
}

// FileStore keeps the token in a file readable only by the owner.
// With a seal key the token is encrypted with NaCl secretbox.
type FileStore struct {
	path string
	key  *[32]byte
}

// NewFileStore creates a file store. An empty sealKey stores the token as is.
func NewFileStore(path, sealKey string) *FileStore {
	s := &FileStore{path: path}
	if sealKey != "" {
		k := sha256.Sum256([]byte(sealKey))
		s.key = &k
	}
	return s
}

// Path returns the file location.
func (s *FileStore) Path() string { return s.path }

// Load reads the token, returning ErrNoToken if none was saved.
func (s *FileStore) Load(_ context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("read session file: %w", err)
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return "", ErrNoToken
	}
	if !strings.HasPrefix(content, sealedPrefix) {
		return content, nil
	}
	if s.key == nil {
		return "", fmt.Errorf("session file %s is sealed but no seal key is configured", s.path)
	}
	return s.open(strings.TrimPrefix(content, sealedPrefix))
}

// Save writes the token atomically with mode 0600.
func (s *FileStore) Save(_ context.Context, token string) error {
	content := token
	if s.key != nil {
		sealed, err := s.seal(token)
		if err != nil {
			return err
		}
		content = sealedPrefix + sealed
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return fmt.Errorf("create session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod session file: %w", err)
	}
	if _, err := tmp.WriteString(content + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

func (s *FileStore) seal(token string) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("session nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(token), &nonce, s.key)
	return base64.StdEncoding.EncodeToString(box), nil
}

func (s *FileStore) open(encoded string) (string, error) {
	box, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode sealed session: %w", err)
	}
	if len(box) < 24+secretbox.Overhead {
		return "", errors.New("sealed session is truncated")
	}
	var nonce [24]byte
	copy(nonce[:], box[:24])
	plain, ok := secretbox.Open(nil, box[24:], &nonce, s.key)
	if !ok {
		return "", errors.New("sealed session cannot be opened with the configured key")
	}
	return string(plain), nil
}
