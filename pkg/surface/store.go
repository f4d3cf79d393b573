package surface

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"
)

// TokenStore is an in-memory TTL store for surface metadata that is too
// large to ride inside callback_data, and for metadata attached to prompt
// messages that have no callback channel at all (reply-driven surfaces).
//
// Tokens are safe for callback payloads (they never contain ':').
type TokenStore struct {
	mu sync.RWMutex

	max int
	ttl time.Duration

	m map[string]tokenEntry
}

type tokenEntry struct {
	b   []byte
	exp time.Time
}

// NewTokenStore creates a TokenStore. Defaults: ttl=15m, max=5000.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		ttl: 15 * time.Minute,
		max: 5000,
		m:   map[string]tokenEntry{},
	}
}

// WithTTL sets the token TTL.
func (s *TokenStore) WithTTL(ttl time.Duration) *TokenStore {
	if s == nil {
		return s
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	s.mu.Lock()
	s.ttl = ttl
	s.mu.Unlock()
	return s
}

// Put stores b under a fresh token and returns the token.
func (s *TokenStore) Put(b []byte) string {
	if s == nil {
		return ""
	}
	if b == nil {
		b = []byte{}
	}

	// token format: "~" + base64url(6 random bytes) => 1 + 8 chars
	var buf [6]byte
	now := time.Now()

	for i := 0; i < 8; i++ {
		_, _ = rand.Read(buf[:])
		tok := "~" + base64.RawURLEncoding.EncodeToString(buf[:])

		s.mu.Lock()
		if _, exists := s.m[tok]; exists {
			s.mu.Unlock()
			continue
		}
		s.m[tok] = tokenEntry{b: append([]byte(nil), b...), exp: now.Add(s.ttl)}
		s.sweepLocked(now)
		s.mu.Unlock()
		return tok
	}

	// Extremely unlikely collision fallback: include a time byte.
	_, _ = rand.Read(buf[:])
	tok := "~" + base64.RawURLEncoding.EncodeToString(append(buf[:], byte(now.UnixNano())))
	s.mu.Lock()
	s.m[tok] = tokenEntry{b: append([]byte(nil), b...), exp: now.Add(s.ttl)}
	s.sweepLocked(now)
	s.mu.Unlock()
	return tok
}

// PutKeyed stores b under a caller-chosen key (e.g. a prompt message id).
// A later PutKeyed with the same key overwrites.
func (s *TokenStore) PutKeyed(key string, b []byte) {
	if s == nil || key == "" {
		return
	}
	now := time.Now()
	s.mu.Lock()
	s.m[key] = tokenEntry{b: append([]byte(nil), b...), exp: now.Add(s.ttl)}
	s.sweepLocked(now)
	s.mu.Unlock()
}

// PutJSON stores JSON-marshaled v and returns a token.
func (s *TokenStore) PutJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return s.Put(b), nil
}

// Get returns stored bytes for tok. Expired entries are dropped.
func (s *TokenStore) Get(tok string) ([]byte, bool) {
	if s == nil || tok == "" {
		return nil, false
	}
	now := time.Now()

	s.mu.RLock()
	e, ok := s.m[tok]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.exp.IsZero() && now.After(e.exp) {
		s.mu.Lock()
		if e2, ok2 := s.m[tok]; ok2 && now.After(e2.exp) {
			delete(s.m, tok)
		}
		s.mu.Unlock()
		return nil, false
	}
	return append([]byte(nil), e.b...), true
}

// GetString returns the stored payload for tok as a string.
func (s *TokenStore) GetString(tok string) (string, bool) {
	b, ok := s.Get(tok)
	return string(b), ok
}

// Delete removes tok. Used once a surface has been submitted or dismissed.
func (s *TokenStore) Delete(tok string) {
	if s == nil || tok == "" {
		return
	}
	s.mu.Lock()
	delete(s.m, tok)
	s.mu.Unlock()
}

// sweepLocked drops expired entries and enforces the max entry count.
// Called opportunistically on writes; the store stays small in practice.
func (s *TokenStore) sweepLocked(now time.Time) {
	if len(s.m) <= s.max {
		return
	}
	for k, e := range s.m {
		if !e.exp.IsZero() && now.After(e.exp) {
			delete(s.m, k)
		}
	}
	// Best-effort eviction when still over limit.
	over := len(s.m) - s.max
	for k := range s.m {
		if over <= 0 {
			break
		}
		delete(s.m, k)
		over--
	}
}
