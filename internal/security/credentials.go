package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	storeVersion     = 1
	saltSize         = 16
	keyIterations    = 100000
	keySize          = 32
	fallbackKeyLabel = "ckdreg-credential-store"
)

// ErrCredentialNotFound is returned by Get and Delete for unknown names.
var ErrCredentialNotFound = errors.New("credential not found")

// Credential represents a securely stored credential
type Credential struct {
	// Value is the encrypted credential value
	Value string `json:"value"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// storeFile is the on-disk layout of a CredentialStore.
type storeFile struct {
	Version     int                    `json:"version"`
	Salt        string                 `json:"salt"`
	Credentials map[string]*Credential `json:"credentials"`
}

// CredentialStore keeps named credentials encrypted with AES-GCM in a
// single JSON file. The key is derived from a passphrase with PBKDF2 and a
// per-file random salt. Every mutation is written through to disk.
type CredentialStore struct {
	mu sync.RWMutex

	storePath   string
	passphrase  []byte
	salt        []byte
	masterKey   []byte
	credentials map[string]*Credential
}

// NewCredentialStore opens the store at storePath, creating it lazily on the
// first write. An empty passphrase falls back to a key bound to the local
// user account, which protects against casual disclosure only.
func NewCredentialStore(storePath, passphrase string) (*CredentialStore, error) {
	if passphrase == "" {
		passphrase = fallbackPassphrase()
	}

	store := &CredentialStore{
		storePath:   storePath,
		passphrase:  []byte(passphrase),
		credentials: make(map[string]*Credential),
	}

	if err := store.load(); err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	return store, nil
}

// Path returns the backing file path.
func (s *CredentialStore) Path() string {
	return s.storePath
}

// Store stores a credential securely
func (s *CredentialStore) Store(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encryptedValue, err := s.encrypt(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}

	now := time.Now()
	createdAt := now
	if existing, exists := s.credentials[name]; exists {
		createdAt = existing.CreatedAt
	}

	s.credentials[name] = &Credential{
		Value:     encryptedValue,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}

	if err := s.save(); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	return nil
}

// Get retrieves a credential value
func (s *CredentialStore) Get(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, exists := s.credentials[name]
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrCredentialNotFound, name)
	}

	value, err := s.decrypt(cred.Value)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credential: %w", err)
	}

	return value, nil
}

// Delete removes a credential
func (s *CredentialStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.credentials[name]; !exists {
		return fmt.Errorf("%w: %s", ErrCredentialNotFound, name)
	}

	delete(s.credentials, name)

	if err := s.save(); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	return nil
}

// List returns all credential names
func (s *CredentialStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.credentials))
	for name := range s.credentials {
		names = append(names, name)
	}
	return names
}

func (s *CredentialStore) deriveKey() {
	s.masterKey = pbkdf2.Key(s.passphrase, s.salt, keyIterations, keySize, sha256.New)
}

// encrypt encrypts a value using AES-GCM
func (s *CredentialStore) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.masterKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a value using AES-GCM
func (s *CredentialStore) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(s.masterKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertextBytes := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

// save saves credentials to disk
func (s *CredentialStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.storePath), 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(storeFile{
		Version:     storeVersion,
		Salt:        base64.StdEncoding.EncodeToString(s.salt),
		Credentials: s.credentials,
	}, "", "  ")
	if err != nil {
		return err
	}

	// Write to a sibling file and rename so a crash never leaves a torn store.
	tmp := s.storePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.storePath)
}

// load loads credentials from disk, initialising a fresh salt when the
// file does not exist yet.
func (s *CredentialStore) load() error {
	data, err := os.ReadFile(s.storePath)
	if errors.Is(err, fs.ErrNotExist) {
		s.salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, s.salt); err != nil {
			return err
		}
		s.deriveKey()
		return nil
	}
	if err != nil {
		return err
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.Version != storeVersion {
		return fmt.Errorf("unsupported credential store version %d", file.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil || len(salt) == 0 {
		return fmt.Errorf("credential store has an invalid salt")
	}

	s.salt = salt
	if file.Credentials != nil {
		s.credentials = file.Credentials
	}
	s.deriveKey()
	return nil
}

func fallbackPassphrase() string {
	home, _ := os.UserHomeDir()
	host, _ := os.Hostname()
	return fallbackKeyLabel + ":" + host + ":" + home
}
