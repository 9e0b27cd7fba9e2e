package entities

import (
	"testing"

	"github.com/google/uuid"
)

func TestSessionCreation(t *testing.T) {
	session := NewSession("")

	if session.ID() == "" {
		t.Fatal("Expected a generated session ID")
	}

	if _, err := uuid.Parse(session.ID()); err != nil {
		t.Errorf("Expected a UUID, got %s: %v", session.ID(), err)
	}

	other := NewSession("")
	if other.ID() == session.ID() {
		t.Error("Expected distinct IDs for distinct sessions")
	}
}

func TestSessionKeepsProvidedID(t *testing.T) {
	session := NewSession("existing-id")

	if session.ID() != "existing-id" {
		t.Errorf("Expected ID existing-id, got %s", session.ID())
	}
}

func TestSessionAdopt(t *testing.T) {
	session := NewSession("local")

	if session.Adopt("local") {
		t.Error("Adopting the same ID should report no change")
	}

	if session.Adopt("") {
		t.Error("Adopting an empty ID should be ignored")
	}
	if session.ID() != "local" {
		t.Errorf("Expected ID local, got %s", session.ID())
	}

	if !session.Adopt("abc") {
		t.Error("Adopting a different ID should report a change")
	}
	if session.ID() != "abc" {
		t.Errorf("Expected ID abc, got %s", session.ID())
	}

	if session.Adopt("abc") {
		t.Error("Adopt should be idempotent")
	}
}

func TestSessionShortAndRef(t *testing.T) {
	session := NewSession("1a2b3c4d-5e6f")

	if session.Short() != "1a2b3c4d" {
		t.Errorf("Expected short form 1a2b3c4d, got %s", session.Short())
	}

	ref := session.Ref()
	if ref == nil || *ref != "1a2b3c4d-5e6f" {
		t.Errorf("Expected ref to point at the ID, got %v", ref)
	}

	if NewSession("abc").Short() != "abc" {
		t.Error("Short IDs should be returned whole")
	}
}
