package clientsession

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// PreferenceStore persists the active organization per user.
type PreferenceStore interface {
	LoadActiveOrg(userID string) (string, error)
	// SaveActiveOrg stores orgID for userID; an empty orgID removes it.
	SaveActiveOrg(userID, orgID string) error
}

// SessionStore persists the signed-in session between process runs.
type SessionStore interface {
	LoadSession() (*Session, error)
	SaveSession(session *Session) error
}

type Session struct {
	Token  string `yaml:"token"`
	UserID string `yaml:"user_id"`
	Email  string `yaml:"email,omitempty"`
}

type fileState struct {
	Session    *Session          `yaml:"session,omitempty"`
	ActiveOrgs map[string]string `yaml:"active_orgs,omitempty"`
}

// FileStore keeps session and preferences in a single YAML file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) LoadActiveOrg(userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.read()
	if err != nil {
		return "", err
	}
	return state.ActiveOrgs[userID], nil
}

func (s *FileStore) SaveActiveOrg(userID, orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.read()
	if err != nil {
		return err
	}
	if orgID == "" {
		delete(state.ActiveOrgs, userID)
	} else {
		if state.ActiveOrgs == nil {
			state.ActiveOrgs = map[string]string{}
		}
		state.ActiveOrgs[userID] = orgID
	}
	return s.write(state)
}

func (s *FileStore) LoadSession() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.read()
	if err != nil {
		return nil, err
	}
	return state.Session, nil
}

func (s *FileStore) SaveSession(session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.read()
	if err != nil {
		return err
	}
	state.Session = session
	return s.write(state)
}

func (s *FileStore) read() (*fileState, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &fileState{}, nil
	}
	if err != nil {
		return nil, err
	}
	var state fileState
	if err := yaml.Unmarshal(raw, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *FileStore) write(state *fileState) error {
	raw, err := yaml.Marshal(state)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// MemoryStore is an in-process PreferenceStore and SessionStore.
type MemoryStore struct {
	mu         sync.Mutex
	session    *Session
	activeOrgs map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{activeOrgs: map[string]string{}}
}

func (s *MemoryStore) LoadActiveOrg(userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeOrgs[userID], nil
}

func (s *MemoryStore) SaveActiveOrg(userID, orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if orgID == "" {
		delete(s.activeOrgs, userID)
		return nil
	}
	s.activeOrgs[userID] = orgID
	return nil
}

func (s *MemoryStore) LoadSession() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, nil
	}
	copied := *s.session
	return &copied, nil
}

func (s *MemoryStore) SaveSession(session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
	return nil
}
