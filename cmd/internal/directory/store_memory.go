package directory

import (
	"context"
	"sync"
	"time"

	"sparkwave/cmd/internal/ids"
)

type memUser struct {
	profile      Profile
	emailNorm    string
	passwordHash string
}

// InMemoryStore is a Store for tests and DB-less dev runs.
type InMemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]memUser
	emails map[string]string // normalized email -> user ID
	names  map[string]string // normalized username -> user ID
}

// NewInMemoryStore constructs an empty in-memory directory.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:   make(map[string]memUser),
		emails: make(map[string]string),
		names:  make(map[string]string),
	}
}

// AddUser seeds a user. Intended for fixtures and dev mode.
func (s *InMemoryStore) AddUser(p Profile, email, passwordHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[p.ID] = memUser{profile: p, emailNorm: NormalizeEmail(email), passwordHash: passwordHash}
	s.emails[NormalizeEmail(email)] = p.ID
	s.names[NormalizeUsername(p.Username)] = p.ID
}

func (s *InMemoryStore) FindLoginByEmail(_ context.Context, email string) (Login, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[NormalizeEmail(email)]
	if !ok {
		return Login{}, ErrNotFound
	}
	u := s.byID[id]
	return Login{Profile: u.profile, PasswordHash: u.passwordHash}, nil
}

func (s *InMemoryStore) GetProfile(_ context.Context, userID string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[userID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return u.profile, nil
}

func (s *InMemoryStore) Exists(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[userID]
	return ok, nil
}

func (s *InMemoryStore) EnsureAssistant(_ context.Context, now time.Time) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.names[assistantUsername]; ok {
		return s.byID[id].profile, nil
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Profile{}, err
	}
	p := Profile{
		ID:          id,
		Username:    assistantUsername,
		DisplayName: assistantDisplayName,
		Avatar:      assistantAvatar,
		Bio:         assistantBio,
		CreatedAt:   now,
	}
	s.byID[id] = memUser{profile: p}
	s.names[assistantUsername] = id
	return p, nil
}
