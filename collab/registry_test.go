package collab

import (
	"sort"
	"testing"
)

func TestRegisterAndLookup(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register("conn-1", userA); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	identity, err := registry.IdentityOf("conn-1")
	if err != nil {
		t.Fatalf("IdentityOf failed: %v", err)
	}
	if identity != userA {
		t.Errorf("expected %+v, got %+v", userA, identity)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register("conn-1", userA); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.Register("conn-1", userB); err != ErrDuplicateConnection {
		t.Fatalf("expected ErrDuplicateConnection, got %v", err)
	}

	// The original binding must survive.
	identity, err := registry.IdentityOf("conn-1")
	if err != nil {
		t.Fatalf("IdentityOf failed: %v", err)
	}
	if identity != userA {
		t.Errorf("duplicate registration overwrote identity: %+v", identity)
	}
}

func TestIdentityOfUnknown(t *testing.T) {
	registry := NewRegistry()

	if _, err := registry.IdentityOf("nope"); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestConnectionsOfMultipleSessions(t *testing.T) {
	registry := NewRegistry()

	// Same user, two tabs.
	registry.Register("conn-1", userA)
	registry.Register("conn-2", userA)
	registry.Register("conn-3", userB)

	conns := registry.ConnectionsOf(userA.ID)
	sort.Strings(conns)
	if len(conns) != 2 || conns[0] != "conn-1" || conns[1] != "conn-2" {
		t.Errorf("expected [conn-1 conn-2], got %v", conns)
	}

	if conns := registry.ConnectionsOf("ghost"); len(conns) != 0 {
		t.Errorf("expected no connections for unknown user, got %v", conns)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	registry := NewRegistry()

	registry.Register("conn-1", userA)
	registry.Remove("conn-1")
	registry.Remove("conn-1") // second remove must be a no-op

	if _, err := registry.IdentityOf("conn-1"); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected after remove, got %v", err)
	}
	if conns := registry.ConnectionsOf(userA.ID); len(conns) != 0 {
		t.Errorf("expected no connections after remove, got %v", conns)
	}
	if registry.Count() != 0 {
		t.Errorf("expected count 0, got %d", registry.Count())
	}
}
