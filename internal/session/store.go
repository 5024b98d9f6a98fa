package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// Role values recognized for dashboard dispatch. Comparison is always
// case-insensitive; anything else counts as no role at all.
const (
	RoleAdmin   = "admin"
	RoleStudent = "student"
)

// Identity is the logged-in user as reported by the login response.
type Identity struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// NormalizedRole returns the lower-cased role string.
func (i Identity) NormalizedRole() string {
	return strings.ToLower(strings.TrimSpace(i.Role))
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool { return i.NormalizedRole() == RoleAdmin }

// IsStudent reports whether the identity carries the student role.
func (i Identity) IsStudent() bool { return i.NormalizedRole() == RoleStudent }

// state is the on-disk snapshot of the session.
type state struct {
	Access   string    `json:"access,omitempty"`
	Refresh  string    `json:"refresh,omitempty"`
	Identity *Identity `json:"user,omitempty"`
}

// Store owns the credential pair and session identity. It is the only mutable
// state shared between the transport and the rest of the client: the transport
// reads the access token before each request and writes it on renewal, the
// auth flows write the full pair, and logout clears everything.
//
// Every mutation is persisted to the state file so a new process picks the
// session back up, mirroring how the browser client kept tokens in
// localStorage. Persistence is best-effort: a write failure is logged, never
// surfaced.
type Store struct {
	mu   sync.Mutex
	st   state
	path string
	log  zerolog.Logger
}

// NewStore creates a Store backed by the given file path, loading any
// previously persisted session. A missing or unreadable file starts empty.
func NewStore(path string, log zerolog.Logger) *Store {
	s := &Store{
		path: path,
		log:  log.With().Str("component", "session").Logger(),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", path).Msg("Cannot read session file, starting fresh")
		}
		return s
	}
	if err := json.Unmarshal(raw, &s.st); err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("Corrupt session file, starting fresh")
		s.st = state{}
	}
	return s
}

// Access returns the stored access token, empty if none.
func (s *Store) Access() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Access
}

// Refresh returns the stored refresh token, empty if none.
func (s *Store) Refresh() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Refresh
}

// Identity returns the stored identity and whether one is present.
func (s *Store) Identity() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.Identity == nil {
		return Identity{}, false
	}
	return *s.st.Identity, true
}

// SetTokens stores a fresh credential pair, as issued by login.
func (s *Store) SetTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Access = access
	s.st.Refresh = refresh
	s.persistLocked()
}

// SetAccess replaces only the access token. Used by the renewal path;
// last-writer-wins is fine since any freshly issued token is valid.
func (s *Store) SetAccess(access string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Access = access
	s.persistLocked()
}

// SetIdentity stores the session identity derived from the login response.
func (s *Store) SetIdentity(id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Identity = &id
	s.persistLocked()
}

// Clear destroys all stored credentials and identity, and removes the state
// file. Called on logout and on irrecoverable renewal failure.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = state{}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn().Err(err).Str("path", s.path).Msg("Cannot remove session file")
	}
}

// AccessExpiry peeks at the stored access token's exp claim without verifying
// the signature (the client holds no signing secret). Returns the zero time
// when no token is stored or it carries no expiry.
func (s *Store) AccessExpiry() time.Time {
	access := s.Access()
	if access == "" {
		return time.Time{}
	}

	var claims jwt.RegisteredClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(access, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

func (s *Store) persistLocked() {
	raw, err := json.MarshalIndent(s.st, "", "  ")
	if err != nil {
		s.log.Error().Err(err).Msg("Cannot marshal session state")
		return
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			s.log.Warn().Err(err).Str("dir", dir).Msg("Cannot create session dir")
			return
		}
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("Cannot write session file")
	}
}
