// Package clientsession tracks who is signed in, which organization they are
// working in, and short-lived permission answers for that organization.
package clientsession

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/orgaccess/internal/clock"
	"go.uber.org/zap"
)

var (
	ErrAPIRequired          = errors.New("api_required")
	ErrNotSignedIn          = errors.New("not_signed_in")
	ErrNoActiveOrganization = errors.New("no_active_organization")
	ErrUnknownOrganization  = errors.New("unknown_organization")
)

type Identity struct {
	UserID string
	Email  string
}

type Organization struct {
	OrgID string
	Role  string
}

// API is the subset of the orgaccess functions the session needs.
type API interface {
	ListMyOrganizations(ctx context.Context, token string) ([]Organization, error)
	CheckPermission(ctx context.Context, token, permission, orgID string) (bool, error)
}

type Options struct {
	API           API
	Preferences   PreferenceStore
	Sessions      SessionStore
	PermissionTTL time.Duration
	Clock         clock.Clock
	Log           *zap.Logger
}

// Context is one client's view of its session. It is safe for concurrent use.
type Context struct {
	api      API
	prefs    PreferenceStore
	sessions SessionStore
	perms    *PermissionCache
	log      *zap.Logger

	mu          sync.Mutex
	generation  uint64
	identity    *Identity
	token       string
	activeOrg   string
	memberships []Organization
}

func New(opts Options) (*Context, error) {
	if opts.API == nil {
		return nil, ErrAPIRequired
	}
	prefs := opts.Preferences
	if prefs == nil {
		prefs = NewMemoryStore()
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Context{
		api:      opts.API,
		prefs:    prefs,
		sessions: opts.Sessions,
		perms:    NewPermissionCache(opts.PermissionTTL, opts.Clock),
		log:      log.Named("clientsession"),
	}, nil
}

// Init restores a persisted session, if any, and reconciles its organizations.
func (c *Context) Init(ctx context.Context) error {
	if c.sessions == nil {
		return nil
	}
	saved, err := c.sessions.LoadSession()
	if err != nil {
		return err
	}
	if saved == nil || saved.Token == "" || saved.UserID == "" {
		return nil
	}
	return c.setSession(ctx, Identity{UserID: saved.UserID, Email: saved.Email}, saved.Token, false)
}

// SetSession installs a new identity and token. Switching identity clears
// cached permissions and re-selects the active organization.
func (c *Context) SetSession(ctx context.Context, identity Identity, token string) error {
	return c.setSession(ctx, identity, token, true)
}

func (c *Context) setSession(ctx context.Context, identity Identity, token string, persist bool) error {
	identity.UserID = strings.TrimSpace(identity.UserID)
	token = strings.TrimSpace(token)
	if identity.UserID == "" || token == "" {
		return ErrNotSignedIn
	}

	persisted, err := c.prefs.LoadActiveOrg(identity.UserID)
	if err != nil {
		c.log.Warn("failed to load active organization", zap.Error(err))
		persisted = ""
	}

	c.mu.Lock()
	if c.identity == nil || c.identity.UserID != identity.UserID {
		c.perms.Clear()
		c.memberships = nil
	}
	c.generation++
	c.identity = &identity
	c.token = token
	c.activeOrg = persisted
	c.mu.Unlock()

	if persist && c.sessions != nil {
		if err := c.sessions.SaveSession(&Session{Token: token, UserID: identity.UserID, Email: identity.Email}); err != nil {
			return err
		}
	}
	return c.Reconcile(ctx)
}

// SignOut forgets the identity, its selection and every cached permission.
func (c *Context) SignOut() error {
	c.mu.Lock()
	userID := ""
	if c.identity != nil {
		userID = c.identity.UserID
	}
	c.generation++
	c.identity = nil
	c.token = ""
	c.activeOrg = ""
	c.memberships = nil
	c.perms.Clear()
	c.mu.Unlock()

	if userID != "" {
		if err := c.prefs.SaveActiveOrg(userID, ""); err != nil {
			return err
		}
	}
	if c.sessions != nil {
		return c.sessions.SaveSession(nil)
	}
	return nil
}

// Reconcile refreshes memberships and heals a stale selection: the current
// choice is kept when still a member, otherwise the first membership is
// selected, or nothing when there are none.
func (c *Context) Reconcile(ctx context.Context) error {
	c.mu.Lock()
	token, gen := c.token, c.generation
	c.mu.Unlock()
	if token == "" {
		return ErrNotSignedIn
	}

	orgs, err := c.api.ListMyOrganizations(ctx, token)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if gen != c.generation {
		// a newer session replaced this one while the request was in flight
		c.mu.Unlock()
		return nil
	}
	c.memberships = slices.Clone(orgs)
	selected := c.activeOrg
	if !containsOrg(orgs, selected) {
		selected = ""
		if len(orgs) > 0 {
			selected = orgs[0].OrgID
		}
	}
	changed := selected != c.activeOrg
	c.activeOrg = selected
	userID := c.identity.UserID
	c.mu.Unlock()

	if changed {
		c.log.Debug("active organization reconciled", zap.String("org_id", selected))
		return c.prefs.SaveActiveOrg(userID, selected)
	}
	return nil
}

// SelectOrg switches the active organization to one of the caller's memberships.
func (c *Context) SelectOrg(orgID string) error {
	orgID = strings.TrimSpace(orgID)
	c.mu.Lock()
	if c.identity == nil {
		c.mu.Unlock()
		return ErrNotSignedIn
	}
	if !containsOrg(c.memberships, orgID) {
		c.mu.Unlock()
		return ErrUnknownOrganization
	}
	c.activeOrg = orgID
	userID := c.identity.UserID
	c.mu.Unlock()

	return c.prefs.SaveActiveOrg(userID, orgID)
}

// Can answers whether the caller holds permission in the active organization,
// using a cached answer for that organization when one is fresh.
func (c *Context) Can(ctx context.Context, permission string) (bool, error) {
	c.mu.Lock()
	token, orgID, gen := c.token, c.activeOrg, c.generation
	c.mu.Unlock()
	if token == "" {
		return false, ErrNotSignedIn
	}
	if orgID == "" {
		return false, ErrNoActiveOrganization
	}

	if allowed, ok := c.perms.Get(permission, orgID); ok {
		return allowed, nil
	}
	allowed, err := c.api.CheckPermission(ctx, token, permission, orgID)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	if gen == c.generation {
		c.perms.Put(permission, orgID, allowed)
	}
	c.mu.Unlock()
	return allowed, nil
}

// Revalidate discards cached permissions, e.g. on navigation.
func (c *Context) Revalidate() {
	c.perms.Revalidate()
}

func (c *Context) Identity() *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return nil
	}
	identity := *c.identity
	return &identity
}

func (c *Context) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Context) ActiveOrg() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeOrg
}

func (c *Context) Memberships() []Organization {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.memberships)
}

func containsOrg(orgs []Organization, orgID string) bool {
	if orgID == "" {
		return false
	}
	return slices.ContainsFunc(orgs, func(o Organization) bool { return o.OrgID == orgID })
}
