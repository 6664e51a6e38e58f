package tenant

import (
	"fmt"
	"sync"
)

// Role orders tenant membership privilege; lower value is higher privilege,
// matching original_source's TenantRole enum (TenantManager.h).
type Role int

const (
	RoleOwner Role = iota
	RoleAdmin
	RoleModerator
	RoleMember
)

// String names the role for logging.
func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleAdmin:
		return "admin"
	case RoleModerator:
		return "moderator"
	case RoleMember:
		return "member"
	default:
		return "unknown"
	}
}

// atLeast reports whether r is at least as privileged as min (lower value
// wins).
func (r Role) atLeast(min Role) bool { return r <= min }

// Tenant holds the membership record for one tenant id.
type Tenant struct {
	ID      string
	Members map[string]Role // pubkey -> role
}

// Directory tracks tenant membership and answers the write/read access
// policy spec.md §3 treats as an external collaborator (canWrite(tenant,
// pubkey)). It supplements that black box with the role model recovered
// from original_source/TenantManager.h: the default tenant requires Admin
// or higher to write; named tenants allow any member to write.
type Directory struct {
	mu      sync.Mutex
	tenants map[string]*Tenant
}

// NewDirectory returns an empty membership directory.
func NewDirectory() *Directory {
	return &Directory{tenants: map[string]*Tenant{}}
}

// HasTenant reports whether id has a membership record already, without
// creating one. Callers that gate auto-creation (AllowAutoCreateTenants)
// check this before EnsureTenant, since EnsureTenant always provisions.
func (d *Directory) HasTenant(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.tenants[id]
	return ok
}

// EnsureTenant auto-creates an empty membership record for id if absent,
// matching RelayMultiTenant.cpp::getTenantEnv's auto-creation of unknown
// non-default tenants.
func (d *Directory) EnsureTenant(id string) *Tenant {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tenants[id]
	if !ok {
		t = &Tenant{ID: id, Members: map[string]Role{}}
		d.tenants[id] = t
	}
	return t
}

// CanWrite implements the canWrite(tenant, pubkey) predicate spec.md §3
// names as a black-box collaborator, using the supplemented role policy:
// the default tenant requires Admin or higher; any other tenant allows any
// registered member, and also allows writes before any membership has ever
// been recorded (a freshly auto-provisioned tenant with no owner yet).
func (d *Directory) CanWrite(tenantID, pubkey string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tenants[tenantID]
	if !ok {
		return tenantID != DefaultTenantID
	}
	if tenantID == DefaultTenantID {
		role, member := t.Members[pubkey]
		return member && role.atLeast(RoleAdmin)
	}
	if len(t.Members) == 0 {
		return true
	}
	_, member := t.Members[pubkey]
	return member
}

// CanRead is unrestricted in the supplemented model: spec.md names no read
// access policy, and original_source's canAccessTenant only gates
// membership-listing operations, not event reads.
func (d *Directory) CanRead(string, string) bool { return true }

// AddMember grants role to pubkey within tenantID. actor must already hold
// Admin or higher in tenantID and may not grant a role more privileged than
// their own, matching TenantManager::addMember. A tenant with no members yet
// accepts the first grant from any actor.
func (d *Directory) AddMember(tenantID, actor, pubkey string, role Role) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tenants[tenantID]
	if !ok {
		return fmt.Errorf("tenant %q not found", tenantID)
	}
	actorRole, isMember := t.Members[actor]
	if !isMember && len(t.Members) > 0 {
		return fmt.Errorf("actor %q is not a member of tenant %q", actor, tenantID)
	}
	if len(t.Members) > 0 && !actorRole.atLeast(RoleAdmin) {
		return fmt.Errorf("actor %q lacks admin privilege in tenant %q", actor, tenantID)
	}
	if isMember && role < actorRole {
		return fmt.Errorf("actor %q cannot grant a role more privileged than their own", actor)
	}
	t.Members[pubkey] = role
	return nil
}

// RemoveMember revokes pubkey's membership in tenantID. Only Owner may
// remove another Owner; Admin or higher may remove any other member,
// matching TenantManager::removeMember's guard.
func (d *Directory) RemoveMember(tenantID, actor, pubkey string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tenants[tenantID]
	if !ok {
		return fmt.Errorf("tenant %q not found", tenantID)
	}
	actorRole, isActor := t.Members[actor]
	if !isActor || !actorRole.atLeast(RoleAdmin) {
		return fmt.Errorf("actor %q lacks admin privilege in tenant %q", actor, tenantID)
	}
	targetRole, isTarget := t.Members[pubkey]
	if !isTarget {
		return nil
	}
	if targetRole == RoleOwner && actorRole != RoleOwner {
		return fmt.Errorf("only an owner may remove another owner")
	}
	delete(t.Members, pubkey)
	return nil
}

// Stats reports the tenant's member count, used by the read-only
// HTTP introspection endpoint.
type Stats struct {
	TenantID    string
	MemberCount int
}

// Stats returns introspection data for tenantID, or ok=false if unknown.
func (d *Directory) Stats(tenantID string) (Stats, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tenants[tenantID]
	if !ok {
		return Stats{}, false
	}
	return Stats{TenantID: tenantID, MemberCount: len(t.Members)}, true
}
