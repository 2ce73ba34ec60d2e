package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/qlab-core/qcore/internal/constants"
)

// SessionKey identifies one Task Server session the way spec.md §4.7
// specifies: "(thread, user, host, port)".
type SessionKey struct {
	Thread string
	User   string
	Host   string
	Port   int
}

type session struct {
	Token      string
	LastActive time.Time
}

// sessionTable is a minimal in-memory user/session table backing
// adduser/login (spec.md §9 supplemented feature "login/adduser
// session bookkeeping"), grounded on the original's per-thread
// connection cache (`sp = defaultdict(lambda: connect(...))` in
// quark.app.__init__) generalized to a keyed table with idle-based
// reuse. Authentication proper (password checking, ACLs) stays a
// Non-goal: adduser only records that a user is known to a system,
// and login only hands back a reusable opaque session token.
type sessionTable struct {
	mu       sync.Mutex
	users    map[string]string // user -> system
	sessions map[SessionKey]*session
}

func newSessionTable() *sessionTable {
	return &sessionTable{
		users:    map[string]string{},
		sessions: map[SessionKey]*session{},
	}
}

// addUser registers user against system, matching the original's
// `signup(user, system, **kwds)`.
func (t *sessionTable) addUser(user, system string) error {
	if user == "" {
		return fmt.Errorf("server: user name required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.users[user] = system
	return nil
}

// login returns key's session token, reusing an idle one if it has not
// exceeded constants.DefaultSessionIdle (spec.md §4.7 "lazy connection
// re-use").
func (t *sessionTable) login(key SessionKey) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.users[key.User]; !ok {
		return "", fmt.Errorf("server: user %q is not registered", key.User)
	}

	if s, ok := t.sessions[key]; ok && time.Since(s.LastActive) < constants.DefaultSessionIdle {
		s.LastActive = time.Now()
		return s.Token, nil
	}

	token, err := newToken()
	if err != nil {
		return "", fmt.Errorf("server: generating session token: %w", err)
	}
	t.sessions[key] = &session{Token: token, LastActive: time.Now()}
	return token, nil
}

// newToken returns a random 32-hex-digit opaque session token.
// Standard-library justification: no dependency in the retrieval pack
// provides a token/UUID generator (checked ja7ad-consumption,
// jbrzusto-ogdar, ehrlich-b-go-ublk's go.mod require blocks), so a
// crypto/rand-backed token replaces what would otherwise be
// google/uuid or similar.
func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
