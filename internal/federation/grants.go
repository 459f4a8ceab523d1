package federation

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
)

// Grant is a short-lived, single-use secret proving a local user
// authorized a named peer to obtain an access token on their behalf.
type Grant struct {
	UserID uint
	Server int
	Secret string
}

// GrantStore holds live grants in memory, keyed by subject user id.
// Grants are deliberately not persisted: they are short-lived, cheap to
// reacquire, and losing them on restart is acceptable.
//
// All operations hold the mutex for their whole check-then-act sequence,
// so a grant can never be redeemed twice, even under concurrent requests.
type GrantStore struct {
	mu       sync.Mutex
	grants   map[uint]Grant
	tokenLen int
}

func NewGrantStore(tokenLen int) *GrantStore {
	return &GrantStore{
		grants:   make(map[uint]Grant),
		tokenLen: tokenLen,
	}
}

// IssueOrReuse returns the subject's outstanding grant when one exists,
// otherwise mints a new one for the target server. Reuse keeps one live
// secret per subject instead of leaking a fresh one on every attempt.
func (s *GrantStore) IssueOrReuse(userID uint, server int) (Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g, ok := s.grants[userID]; ok {
		return g, nil
	}

	secret, err := Token(s.tokenLen)
	if err != nil {
		return Grant{}, err
	}

	g := Grant{UserID: userID, Server: server, Secret: secret}
	s.grants[userID] = g
	return g, nil
}

// Redeem consumes the grant matching both the redeeming server and the
// secret. The grant is deleted on success regardless of which peer
// redeemed it; a failed attempt leaves the store untouched.
func (s *GrantStore) Redeem(server int, secret string) (uint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for userID, g := range s.grants {
		if g.Server == server && g.Secret == secret {
			delete(s.grants, userID)
			return userID, true
		}
	}
	return 0, false
}

// Token returns a cryptographically random base64 string of the given
// length, per the supergroup's token convention.
func Token(length int) (string, error) {
	b := make([]byte, length*2)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b)[:length], nil
}
