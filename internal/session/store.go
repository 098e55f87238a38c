package session

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ukydev/fleet-maintenance/internal/auth"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrMissingPassphrase = errors.New("token store passphrase is required")
	ErrDecrypt           = errors.New("failed to decrypt token store")
)

// TokenStore persists the session tokens. Load returns nil, nil when nothing is stored.
type TokenStore interface {
	Load() (*auth.Tokens, error)
	Save(tokens *auth.Tokens) error
	Clear() error
}

// MemoryStore keeps tokens in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	tokens *auth.Tokens
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load() (*auth.Tokens, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		return nil, nil
	}
	cp := *m.tokens
	return &cp, nil
}

func (m *MemoryStore) Save(tokens *auth.Tokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tokens
	m.tokens = &cp
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = nil
	return nil
}

const (
	fileStoreVersion = 1
	saltSize         = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

var fileStoreAAD = []byte("fleet-maintenance/tokens/v1")

type envelope struct {
	Version int    `json:"v"`
	Salt    []byte `json:"salt"`
	Nonce   []byte `json:"nonce"`
	Data    []byte `json:"data"`
}

// FileStore keeps tokens in a file encrypted with XChaCha20-Poly1305 under an
// Argon2id key derived from a passphrase.
type FileStore struct {
	mu         sync.Mutex
	path       string
	passphrase []byte
}

// NewFileStore creates a store at path.
func NewFileStore(path, passphrase string) (*FileStore, error) {
	if passphrase == "" {
		return nil, ErrMissingPassphrase
	}
	return &FileStore{path: path, passphrase: []byte(passphrase)}, nil
}

// Path returns the backing file path.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load() (*auth.Tokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token store: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if env.Version != fileStoreVersion || len(env.Salt) != saltSize || len(env.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: unsupported format", ErrDecrypt)
	}

	aead, err := chacha20poly1305.NewX(f.key(env.Salt))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	plain, err := aead.Open(nil, env.Nonce, env.Data, fileStoreAAD)
	if err != nil {
		return nil, ErrDecrypt
	}

	var tokens auth.Tokens
	if err := json.Unmarshal(plain, &tokens); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return &tokens, nil
}

func (f *FileStore) Save(tokens *auth.Tokens) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	plain, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to encode tokens: %w", err)
	}

	env := envelope{
		Version: fileStoreVersion,
		Salt:    make([]byte, saltSize),
		Nonce:   make([]byte, chacha20poly1305.NonceSizeX),
	}
	if _, err := rand.Read(env.Salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := rand.Read(env.Nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	aead, err := chacha20poly1305.NewX(f.key(env.Salt))
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}
	env.Data = aead.Seal(nil, env.Nonce, plain, fileStoreAAD)

	out, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode token store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create token store directory: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("failed to write token store: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write token store: %w", err)
	}
	return nil
}

func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear token store: %w", err)
	}
	return nil
}

func (f *FileStore) key(salt []byte) []byte {
	return argon2.IDKey(f.passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}
