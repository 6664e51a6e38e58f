package tenant

import "testing"

func TestCanWriteDefaultTenantRequiresAdmin(t *testing.T) {
	d := NewDirectory()
	d.EnsureTenant(DefaultTenantID)
	if d.CanWrite(DefaultTenantID, "anyone") {
		t.Fatalf("expected write denied before any admin is registered")
	}
	if err := d.AddMember(DefaultTenantID, "bootstrap", "owner1", RoleOwner); err != nil {
		t.Fatalf("bootstrap add: %v", err)
	}
	if !d.CanWrite(DefaultTenantID, "owner1") {
		t.Fatalf("expected owner to be able to write to default tenant")
	}
	if d.CanWrite(DefaultTenantID, "rando") {
		t.Fatalf("expected non-member denied on default tenant")
	}
}

func TestCanWriteNamedTenantOpenBeforeFirstMember(t *testing.T) {
	d := NewDirectory()
	d.EnsureTenant("acme")
	if !d.CanWrite("acme", "anyone") {
		t.Fatalf("expected named tenant with no members to allow writes")
	}
}

func TestCanWriteNamedTenantRestrictedAfterFirstMember(t *testing.T) {
	d := NewDirectory()
	d.EnsureTenant("acme")
	if err := d.AddMember("acme", "bootstrap", "pub1", RoleOwner); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !d.CanWrite("acme", "pub1") {
		t.Fatalf("expected member to write")
	}
	if d.CanWrite("acme", "pub2") {
		t.Fatalf("expected non-member denied once tenant has members")
	}
}

func TestAddMemberRejectsOverPrivilegedGrant(t *testing.T) {
	d := NewDirectory()
	d.EnsureTenant("acme")
	if err := d.AddMember("acme", "bootstrap", "admin1", RoleAdmin); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := d.AddMember("acme", "admin1", "sneaky", RoleOwner); err == nil {
		t.Fatalf("expected admin to be unable to grant owner")
	}
}

func TestRemoveMemberOnlyOwnerRemovesOwner(t *testing.T) {
	d := NewDirectory()
	d.EnsureTenant("acme")
	if err := d.AddMember("acme", "bootstrap", "owner1", RoleOwner); err != nil {
		t.Fatalf("add owner1: %v", err)
	}
	if err := d.AddMember("acme", "owner1", "owner2", RoleOwner); err != nil {
		t.Fatalf("add owner2: %v", err)
	}
	if err := d.AddMember("acme", "owner1", "admin1", RoleAdmin); err != nil {
		t.Fatalf("add admin1: %v", err)
	}
	if err := d.RemoveMember("acme", "admin1", "owner2"); err == nil {
		t.Fatalf("expected admin unable to remove an owner")
	}
	if err := d.RemoveMember("acme", "owner1", "owner2"); err != nil {
		t.Fatalf("expected owner able to remove another owner: %v", err)
	}
}

func TestStatsReflectsMembership(t *testing.T) {
	d := NewDirectory()
	d.EnsureTenant("acme")
	d.AddMember("acme", "bootstrap", "pub1", RoleOwner)
	s, ok := d.Stats("acme")
	if !ok || s.MemberCount != 1 {
		t.Fatalf("unexpected stats: %+v ok=%v", s, ok)
	}
	if _, ok := d.Stats("unknown"); ok {
		t.Fatalf("expected unknown tenant to report ok=false")
	}
}
