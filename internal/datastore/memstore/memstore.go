// Package memstore is an in-process data store that honours the procedure
// contract of the hosted backend. It backs local development and tests.
package memstore

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/orgaccess/internal/clock"
	"github.com/smallbiznis/orgaccess/internal/datastore"
)

const DefaultInviteTTL = 7 * 24 * time.Hour

type inviteState int

const (
	statePending inviteState = iota
	stateConsumed
	stateRevoked
)

type invite struct {
	id        string
	orgID     string
	email     string
	role      datastore.Role
	token     string
	createdAt time.Time
	expiresAt time.Time
	state     inviteState
}

type membership struct {
	id        string
	role      datastore.Role
	createdAt time.Time
}

// PermissionFunc answers has_permission for a member's role.
type PermissionFunc func(role datastore.Role, permission string) bool

type Option func(*Memory)

func WithClock(c clock.Clock) Option {
	return func(m *Memory) { m.clock = c }
}

func WithInviteTTL(ttl time.Duration) Option {
	return func(m *Memory) { m.inviteTTL = ttl }
}

func WithPermissionFunc(fn PermissionFunc) Option {
	return func(m *Memory) { m.permission = fn }
}

// WithAutoRegister makes unknown bearer tokens resolve to a user whose id is
// the token. Development only.
func WithAutoRegister() Option {
	return func(m *Memory) { m.autoRegister = true }
}

// Memory holds all state behind one mutex; every procedure is atomic.
type Memory struct {
	mu sync.Mutex

	clock        clock.Clock
	inviteTTL    time.Duration
	permission   PermissionFunc
	autoRegister bool

	users       map[string]datastore.User // bearer token -> user
	emails      map[string]string         // user id -> email
	memberships map[string]map[string]*membership
	invites     map[string]*invite // token -> invite
	calls       []string
}

func New(opts ...Option) *Memory {
	m := &Memory{
		clock:       clock.System{},
		inviteTTL:   DefaultInviteTTL,
		permission:  defaultPermission,
		users:       map[string]datastore.User{},
		emails:      map[string]string{},
		memberships: map[string]map[string]*membership{},
		invites:     map[string]*invite{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func defaultPermission(role datastore.Role, permission string) bool {
	switch role {
	case datastore.RoleAdmin:
		return true
	case datastore.RoleTeam:
		return permission == "member:view"
	default:
		return false
	}
}

// AddUser registers a bearer token for a user.
func (m *Memory) AddUser(token, userID, email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[token] = datastore.User{ID: userID, Email: datastore.NormalizeEmail(email)}
	m.emails[userID] = datastore.NormalizeEmail(email)
}

// AddMembership seeds a membership directly.
func (m *Memory) AddMembership(orgID, userID string, role datastore.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertMembership(orgID, userID, role)
}

// Calls returns the procedures invoked so far, in order.
func (m *Memory) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// PendingInvites counts redeemable invites for an organization.
func (m *Memory) PendingInvites(orgID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	n := 0
	for _, inv := range m.invites {
		if inv.orgID == orgID && inv.state == statePending && now.Before(inv.expiresAt) {
			n++
		}
	}
	return n
}

func (m *Memory) ForToken(token string) (datastore.Store, error) {
	token = strings.TrimSpace(token)
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[token]
	if !ok {
		if !m.autoRegister || token == "" {
			return nil, errUnauthenticated()
		}
		email := token
		if !strings.Contains(email, "@") {
			email = token + "@localhost"
		}
		user = datastore.User{ID: token, Email: datastore.NormalizeEmail(email)}
		m.users[token] = user
		m.emails[user.ID] = user.Email
	}
	return &Store{mem: m, user: user}, nil
}

func (m *Memory) upsertMembership(orgID, userID string, role datastore.Role) *membership {
	members, ok := m.memberships[orgID]
	if !ok {
		members = map[string]*membership{}
		m.memberships[orgID] = members
	}
	if existing, ok := members[userID]; ok {
		existing.role = role
		return existing
	}
	// strictly increasing creation times keep listings deterministic
	created := m.clock.Now()
	for _, other := range members {
		if !created.After(other.createdAt) {
			created = other.createdAt.Add(time.Nanosecond)
		}
	}
	mem := &membership{id: uuid.NewString(), role: role, createdAt: created}
	members[userID] = mem
	return mem
}

func (m *Memory) role(orgID, userID string) (datastore.Role, bool) {
	mem, ok := m.memberships[orgID][userID]
	if !ok {
		return "", false
	}
	return mem.role, true
}

func (m *Memory) adminCount(orgID string) int {
	n := 0
	for _, mem := range m.memberships[orgID] {
		if mem.role == datastore.RoleAdmin {
			n++
		}
	}
	return n
}

func newToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func errUnauthenticated() error {
	return &datastore.Error{Status: http.StatusUnauthorized, Code: "PT401", Message: "not_authenticated"}
}

func errNotAdmin() error {
	return &datastore.Error{Status: http.StatusForbidden, Code: "PT403", Message: "not_authorized"}
}

func errEmailMismatch() error {
	return &datastore.Error{Status: http.StatusForbidden, Code: "PT403", Message: "invite email mismatch"}
}

func errInvalid(message string) error {
	return &datastore.Error{Status: http.StatusBadRequest, Code: "22023", Message: message}
}

func errGone(message string) error {
	return &datastore.Error{Status: http.StatusGone, Code: "PT410", Message: message}
}

func errNotFound(message string) error {
	return &datastore.Error{Status: http.StatusNotFound, Code: "P0002", Message: message}
}

func errConflict(message string) error {
	return &datastore.Error{Status: http.StatusConflict, Code: "PT409", Message: message}
}
