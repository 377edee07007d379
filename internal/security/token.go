package security

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	regerrors "github.com/felixgeelhaar/ckdreg/internal/errors"
)

// TokenKey is the fixed name the bearer token is stored under.
const TokenKey = "registry.token"

// TokenStore persists the registry bearer token.
//
// Implementations are synchronous. Get returns "" with a nil error when no
// token is stored; Delete on an empty store is not an error.
type TokenStore interface {
	Get() (string, error)
	Set(token string) error
	Delete() error
}

// FileTokenStore keeps the token in an encrypted CredentialStore file.
type FileTokenStore struct {
	creds *CredentialStore
}

// NewFileTokenStore opens the encrypted store at path.
func NewFileTokenStore(path, passphrase string) (*FileTokenStore, error) {
	creds, err := NewCredentialStore(path, passphrase)
	if err != nil {
		return nil, regerrors.NewStoreError(regerrors.ErrCodeStoreRead, path, err)
	}
	return &FileTokenStore{creds: creds}, nil
}

// Path returns the backing file path.
func (f *FileTokenStore) Path() string {
	return f.creds.Path()
}

// Get returns the stored token, or "" when logged out.
func (f *FileTokenStore) Get() (string, error) {
	token, err := f.creds.Get(TokenKey)
	if errors.Is(err, ErrCredentialNotFound) {
		return "", nil
	}
	if err != nil {
		return "", regerrors.NewStoreError(regerrors.ErrCodeStoreRead, f.Path(), err)
	}
	return token, nil
}

// Set stores token. An empty token is equivalent to Delete.
func (f *FileTokenStore) Set(token string) error {
	if token == "" {
		return f.Delete()
	}
	if err := f.creds.Store(TokenKey, token); err != nil {
		return regerrors.NewStoreError(regerrors.ErrCodeStoreWrite, f.Path(), err)
	}
	return nil
}

// Delete removes the stored token.
func (f *FileTokenStore) Delete() error {
	err := f.creds.Delete(TokenKey)
	if err == nil || errors.Is(err, ErrCredentialNotFound) {
		return nil
	}
	return regerrors.NewStoreError(regerrors.ErrCodeStoreWrite, f.Path(), err)
}

// MemoryStore is a process-local TokenStore.
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

// NewMemoryStore creates a MemoryStore holding token.
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (m *MemoryStore) Get() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *MemoryStore) Set(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryStore) Delete() error {
	return m.Set("")
}

// TokenInfo is what can be read from a token without the server's key.
type TokenInfo struct {
	Subject   string    `json:"subject,omitempty" yaml:"subject,omitempty"`
	Issuer    string    `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	IssuedAt  time.Time `json:"issuedAt,omitempty" yaml:"issuedAt,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
}

// Expired reports whether the token carries an expiry before now.
func (i TokenInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// InspectToken decodes the registered claims of a JWT without verifying
// its signature. The result is informational only; the server remains the
// authority on whether the token is valid.
func InspectToken(token string) (TokenInfo, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("failed to parse token: %w", err)
	}

	info := TokenInfo{
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}
