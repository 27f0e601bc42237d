package clientsession

import (
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/orgaccess/internal/clock"
)

const DefaultPermissionTTL = 30 * time.Second

type permissionKey struct {
	permission string
	orgID      string
}

type permissionEntry struct {
	allowed   bool
	expiresAt time.Time
}

// PermissionCache remembers permission checks per (permission, organization).
// Entries are a UX hint only; the server re-checks every mutation.
type PermissionCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   clock.Clock
	entries map[permissionKey]permissionEntry
}

func NewPermissionCache(ttl time.Duration, clk clock.Clock) *PermissionCache {
	if ttl <= 0 {
		ttl = DefaultPermissionTTL
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &PermissionCache{ttl: ttl, clock: clk, entries: map[permissionKey]permissionEntry{}}
}

func (c *PermissionCache) Get(permission, orgID string) (bool, bool) {
	key := newPermissionKey(permission, orgID)
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return false, false
	}
	if !c.clock.Now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return false, false
	}
	return entry.allowed, true
}

func (c *PermissionCache) Put(permission, orgID string, allowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[newPermissionKey(permission, orgID)] = permissionEntry{
		allowed:   allowed,
		expiresAt: c.clock.Now().Add(c.ttl),
	}
}

// Revalidate drops every entry so the next check asks the server again.
func (c *PermissionCache) Revalidate() {
	c.Clear()
}

func (c *PermissionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[permissionKey]permissionEntry{}
}

func (c *PermissionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func newPermissionKey(permission, orgID string) permissionKey {
	return permissionKey{
		permission: strings.ToLower(strings.TrimSpace(permission)),
		orgID:      strings.TrimSpace(orgID),
	}
}
