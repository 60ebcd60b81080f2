package auth

import (
	"errors"
	"testing"
	"time"

	"accessdesk.org/internal/rbac"
)

func testActor() Actor {
	return Actor{
		SubjectID: "u-123",
		Email:     "jamie@corp.example",
		Name:      "Jamie",
		Role:      rbac.RoleManager,
	}
}

func TestTokenRoundTrip(t *testing.T) {
	t.Setenv("ACCESSDESK_AUTH_SECRET", "test-secret")
	ResetSecretForTests()

	token, err := GenerateToken(testActor(), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	actor, err := ParseAndValidate(token)
	if err != nil {
		t.Fatal(err)
	}
	if actor.SubjectID != "u-123" || actor.Role != rbac.RoleManager {
		t.Fatalf("unexpected actor: %+v", actor)
	}
	if actor.Email != "jamie@corp.example" {
		t.Fatalf("unexpected email: %s", actor.Email)
	}
}

func TestGenerateTokenRejectsUnknownRole(t *testing.T) {
	t.Setenv("ACCESSDESK_AUTH_SECRET", "test-secret")
	ResetSecretForTests()

	actor := testActor()
	actor.Role = "APPROVER"
	if _, err := GenerateToken(actor, time.Minute); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	t.Setenv("ACCESSDESK_AUTH_SECRET", "test-secret")
	ResetSecretForTests()

	token, err := GenerateToken(testActor(), time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsTamperedToken(t *testing.T) {
	t.Setenv("ACCESSDESK_AUTH_SECRET", "test-secret")
	ResetSecretForTests()

	token, err := GenerateToken(testActor(), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseAndValidate(token + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestMissingSecret(t *testing.T) {
	t.Setenv("ACCESSDESK_AUTH_SECRET", "")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if _, err := GenerateToken(testActor(), time.Minute); err == nil {
		t.Fatal("expected missing secret error")
	}
}

func TestActorContextRoundTrip(t *testing.T) {
	ctx := ContextWithActor(t.Context(), testActor())
	actor, ok := ActorFromContext(ctx)
	if !ok {
		t.Fatal("expected actor in context")
	}
	if actor.SubjectID != "u-123" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
	if _, ok := ActorFromContext(t.Context()); ok {
		t.Fatal("expected no actor in fresh context")
	}
}
