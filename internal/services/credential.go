package services

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/reflekt-app/reflekt/internal/storage"
)

const (
	// DefaultCredentialSalt is the fallback when no salt is configured.
	// Deployments are expected to override it; the default exists so a
	// bare dev checkout still runs.
	DefaultCredentialSalt = "reflekt-static-salt"

	hashIterations = 4096
	hashKeyLen     = 32
)

type AccountStatus string

const (
	StatusPending    AccountStatus = "pending"
	StatusInProgress AccountStatus = "in_progress"
	StatusCompleted  AccountStatus = "completed"
)

// ValidStatus reports whether s is one of the three account statuses.
func ValidStatus(s AccountStatus) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Account is one identity record. SecretHash is the salted digest of the
// shared secret, never the secret itself.
type Account struct {
	Identifier  string        `json:"identifier"`
	SecretHash  string        `json:"secret_hash"`
	DisplayName string        `json:"display_name,omitempty"`
	Department  string        `json:"department,omitempty"`
	Status      AccountStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
}

// AccountMeta carries the optional attributes accepted on upsert.
type AccountMeta struct {
	DisplayName string
	Department  string
}

// CredentialStore abstracts Backend for tests that need to observe writes.
type CredentialStore = storage.Backend

// CredentialService merges a fixed seed set with a mutable persisted set.
// Persisted entries shadow seed entries sharing an identifier. Every
// mutation rewrites the whole persisted set to the backend.
type CredentialService struct {
	mu        sync.Mutex
	backend   storage.Backend
	salt      string
	seed      map[string]*Account
	persisted map[string]*Account
	loaded    bool
	protected string // identifier that Remove must refuse, "" for none
	now       func() time.Time
}

type CredentialOption func(*CredentialService)

// WithSeedAccounts installs the fixed seed set. Seed secrets are given in
// plaintext and hashed with the service salt.
func WithSeedAccounts(seed map[string]string) CredentialOption {
	return func(s *CredentialService) {
		for id, secret := range seed {
			s.seed[id] = &Account{
				Identifier: id,
				SecretHash: s.Hash(secret),
				Status:     StatusPending,
			}
		}
	}
}

// WithProtected marks one identifier as non-removable.
func WithProtected(identifier string) CredentialOption {
	return func(s *CredentialService) { s.protected = identifier }
}

func NewCredentialService(backend storage.Backend, salt string, opts ...CredentialOption) *CredentialService {
	if strings.TrimSpace(salt) == "" {
		salt = DefaultCredentialSalt
	}
	s := &CredentialService{
		backend:   backend,
		salt:      salt,
		seed:      map[string]*Account{},
		persisted: map[string]*Account{},
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hash derives the deterministic salted digest for a secret. The same
// secret and salt always yield the same digest; changing the salt
// invalidates every previously stored digest.
func (s *CredentialService) Hash(secret string) string {
	key := pbkdf2.Key([]byte(secret), []byte(s.salt), hashIterations, hashKeyLen, sha256.New)
	return hex.EncodeToString(key)
}

func (s *CredentialService) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	var records []*Account
	if err := s.backend.Load(&records); err != nil {
		return err
	}
	for _, a := range records {
		if a != nil && a.Identifier != "" {
			s.persisted[a.Identifier] = a
		}
	}
	s.loaded = true
	return nil
}

func (s *CredentialService) flush() error {
	records := make([]*Account, 0, len(s.persisted))
	for _, a := range s.persisted {
		records = append(records, a)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Identifier < records[j].Identifier })
	return s.backend.Store(records)
}

func (s *CredentialService) lookup(identifier string) *Account {
	if a, ok := s.persisted[identifier]; ok {
		return a
	}
	return s.seed[identifier]
}

// Resolve returns the merged record for identifier, or nil when absent.
func (s *CredentialService) Resolve(identifier string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	a := s.lookup(identifier)
	if a == nil {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

// Authenticate checks a secret against the stored digest. Unknown
// identifier and wrong secret produce the same error so callers cannot
// enumerate identifiers.
func (s *CredentialService) Authenticate(identifier, secret string) (*Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	a := s.lookup(identifier)
	if a == nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if subtle.ConstantTimeCompare([]byte(s.Hash(secret)), []byte(a.SecretHash)) != 1 {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	cp := *a
	return &cp, nil
}

// Upsert creates or overwrites an account. Overwriting with a new secret
// is how a reset works; there is no separate reset path.
func (s *CredentialService) Upsert(identifier, secret string, meta AccountMeta) (*Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, NewInvalidError("identifier required")
	}
	if secret == "" {
		return nil, NewInvalidError("secret required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	a := &Account{
		Identifier:  identifier,
		SecretHash:  s.Hash(secret),
		DisplayName: strings.TrimSpace(meta.DisplayName),
		Department:  strings.TrimSpace(meta.Department),
		Status:      StatusPending,
		CreatedAt:   s.now(),
	}
	if prev := s.lookup(identifier); prev != nil {
		a.Status = prev.Status
		if a.DisplayName == "" {
			a.DisplayName = prev.DisplayName
		}
		if a.Department == "" {
			a.Department = prev.Department
		}
		if !prev.CreatedAt.IsZero() {
			a.CreatedAt = prev.CreatedAt
		}
	}
	s.persisted[identifier] = a
	if err := s.flush(); err != nil {
		return nil, err
	}
	cp := *a
	return &cp, nil
}

// Remove deletes from the persisted set only. A seed identifier cannot be
// fully removed: its persisted shadow goes away and the seed entry shows
// through again on the next Resolve. The protected identifier is refused.
func (s *CredentialService) Remove(identifier string) (bool, error) {
	if s.protected != "" && identifier == s.protected {
		return false, NewForbiddenError("account cannot be removed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return false, err
	}
	if _, ok := s.persisted[identifier]; !ok {
		return false, nil
	}
	delete(s.persisted, identifier)
	if err := s.flush(); err != nil {
		return false, err
	}
	return true, nil
}

// SetStatus records a lifecycle status on the identity. A seed-only
// account is materialized into the persisted set so the status survives.
func (s *CredentialService) SetStatus(identifier string, status AccountStatus) error {
	if !ValidStatus(status) {
		return NewInvalidError("unknown status")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	a := s.lookup(identifier)
	if a == nil {
		return NewNotFoundError("account not found")
	}
	cp := *a
	cp.Status = status
	s.persisted[identifier] = &cp
	return s.flush()
}

// MarkInProgress advances a pending account on first login. Other
// statuses are left alone.
func (s *CredentialService) MarkInProgress(identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	a := s.lookup(identifier)
	if a == nil || a.Status != StatusPending {
		return nil
	}
	cp := *a
	cp.Status = StatusInProgress
	s.persisted[identifier] = &cp
	return s.flush()
}

// List returns the merged set sorted by identifier. Callers are expected
// to redact SecretHash before exposing records.
func (s *CredentialService) List() ([]*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	merged := map[string]*Account{}
	for id, a := range s.seed {
		merged[id] = a
	}
	for id, a := range s.persisted {
		merged[id] = a
	}
	out := make([]*Account, 0, len(merged))
	for _, a := range merged {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}
