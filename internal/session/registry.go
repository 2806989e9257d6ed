package session

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"sync"
	"time"

	"github.com/Yusufzhafir/go-dex/backend/pkg/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"
)

const DefaultTTL = 24 * time.Hour

// Session binds an opaque token to a pseudonymous trading identity. The
// wallet address is stored only as a salted SHA3-256 hash; nothing in the
// core can walk back from a session to a real-world identity.
type Session struct {
	ID           string    `json:"sessionId"` // pseudonymous identity id
	Token        string    `json:"-"`
	WalletHash   string    `json:"-"`
	HideBalances bool      `json:"hideBalances"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	LastActivity time.Time `json:"lastActivity"`
}

func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

type Registry interface {
	Create(walletAddress string, ttl time.Duration) (*Session, error)
	// Resolve returns the session for a token, refreshing its activity
	// timestamp. Expired or revoked tokens resolve to an error.
	Resolve(token string) (*Session, error)
	Extend(token string, ttl time.Duration) (*Session, error)
	Revoke(token string) error
	CleanupExpired() int
}

type registryImpl struct {
	mu       sync.RWMutex
	byToken  map[string]*Session
	hashSalt string
	logger   *zap.Logger
}

func NewRegistry(hashSalt string, logger *zap.Logger) Registry {
	return &registryImpl{
		byToken:  make(map[string]*Session),
		hashSalt: hashSalt,
		logger:   logger,
	}
}

func (r *registryImpl) hashWallet(walletAddress string) string {
	sum := sha3.Sum256([]byte(walletAddress + "_" + r.hashSalt))
	return hex.EncodeToString(sum[:])
}

func newToken() (string, error) {
	buf := make([]byte, 96)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (r *registryImpl) Create(walletAddress string, ttl time.Duration) (*Session, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	s := &Session{
		ID:           uuid.NewString(),
		Token:        token,
		WalletHash:   r.hashWallet(walletAddress),
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastActivity: now,
	}

	r.mu.Lock()
	r.byToken[token] = s
	r.mu.Unlock()

	r.logger.Info("session created", zap.String("sessionId", s.ID))
	return s, nil
}

func (r *registryImpl) Resolve(token string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byToken[token]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	if s.IsExpired() {
		delete(r.byToken, token)
		return nil, model.ErrSessionExpired
	}
	s.LastActivity = time.Now()
	return s, nil
}

func (r *registryImpl) Extend(token string, ttl time.Duration) (*Session, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byToken[token]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	if s.IsExpired() {
		delete(r.byToken, token)
		return nil, model.ErrSessionExpired
	}
	s.ExpiresAt = time.Now().Add(ttl)
	s.LastActivity = time.Now()
	return s, nil
}

func (r *registryImpl) Revoke(token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byToken[token]; !ok {
		return model.ErrSessionNotFound
	}
	delete(r.byToken, token)
	return nil
}

func (r *registryImpl) CleanupExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for token, s := range r.byToken {
		if s.IsExpired() {
			delete(r.byToken, token)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Info("expired sessions removed", zap.Int("count", removed))
	}
	return removed
}
