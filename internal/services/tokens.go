package services

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const (
	DefaultTokenTTL = 5 * time.Minute
	tokenBytes      = 8
)

type issuedToken struct {
	value   string
	expires time.Time
}

// TokenService issues one-time tokens for administrative commands. A user
// holds at most one token; issuing a new one replaces the old.
type TokenService struct {
	ttl time.Duration
	log *log.Logger
	now func() time.Time

	mu     sync.Mutex
	tokens map[string]issuedToken
}

func NewTokenService(ttl time.Duration, logger *log.Logger) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{
		ttl:    ttl,
		log:    logger,
		now:    time.Now,
		tokens: make(map[string]issuedToken),
	}
}

func (t *TokenService) Generate(userID string) string {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	value := base64.RawURLEncoding.EncodeToString(buf)

	t.mu.Lock()
	t.tokens[userID] = issuedToken{value: value, expires: t.now().Add(t.ttl)}
	t.mu.Unlock()

	t.log.Info("token issued", "user", userID)
	return value
}

// Verify checks token against the one issued to userID and consumes it on
// success. Expired tokens are dropped.
func (t *TokenService) Verify(userID, token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	issued, ok := t.tokens[userID]
	if !ok {
		return false
	}
	if t.now().After(issued.expires) {
		delete(t.tokens, userID)
		return false
	}
	if subtle.ConstantTimeCompare([]byte(issued.value), []byte(token)) != 1 {
		return false
	}
	delete(t.tokens, userID)
	t.log.Info("token verified", "user", userID)
	return true
}

// Remaining reports how long the user's token stays valid.
func (t *TokenService) Remaining(userID string) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	issued, ok := t.tokens[userID]
	if !ok {
		return 0, false
	}
	left := issued.expires.Sub(t.now())
	if left <= 0 {
		return 0, false
	}
	return left, true
}

// Revoke drops the user's token.
func (t *TokenService) Revoke(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.tokens[userID]
	delete(t.tokens, userID)
	return ok
}

// Sweep removes expired tokens and returns how many were dropped.
func (t *TokenService) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	n := 0
	for id, issued := range t.tokens {
		if now.After(issued.expires) {
			delete(t.tokens, id)
			n++
		}
	}
	return n
}
