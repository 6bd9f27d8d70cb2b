package services

import (
	"testing"

	"github.com/reflekt-app/reflekt/internal/storage"
)

func newTestCredentials(opts ...CredentialOption) (*CredentialService, *storage.MemoryBackend) {
	backend := storage.NewMemoryBackend()
	return NewCredentialService(backend, "test-salt", opts...), backend
}

func TestHashIsDeterministicAndSaltBound(t *testing.T) {
	svc, _ := newTestCredentials()
	if svc.Hash("Pw!23456") != svc.Hash("Pw!23456") {
		t.Fatalf("same secret and salt must yield the same digest")
	}
	if svc.Hash("Pw!23456") == svc.Hash("other") {
		t.Fatalf("different secrets must not collide")
	}
	other := NewCredentialService(storage.NewMemoryBackend(), "another-salt")
	if svc.Hash("Pw!23456") == other.Hash("Pw!23456") {
		t.Fatalf("changing the salt must invalidate previous digests")
	}
}

func TestAuthenticateMatchesStoredDigest(t *testing.T) {
	svc, _ := newTestCredentials()
	if _, err := svc.Upsert("emp_1", "Pw!23456", AccountMeta{DisplayName: "Sam"}); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	a, err := svc.Authenticate("emp_1", "Pw!23456")
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if a.Identifier != "emp_1" || a.DisplayName != "Sam" {
		t.Fatalf("unexpected account: %+v", a)
	}

	if _, err := svc.Authenticate("emp_1", "wrong"); err == nil {
		t.Fatalf("expected error for wrong secret")
	}
	if _, err := svc.Authenticate("missing", "Pw!23456"); err == nil {
		t.Fatalf("expected error for unknown identifier")
	}

	// Unknown identifier and wrong secret must not be distinguishable.
	_, errWrong := svc.Authenticate("emp_1", "wrong")
	_, errMissing := svc.Authenticate("missing", "Pw!23456")
	if errWrong.Error() != errMissing.Error() {
		t.Fatalf("auth failures leak identifier existence: %q vs %q", errWrong, errMissing)
	}
}

func TestUpsertIsIdempotentAndOverwrites(t *testing.T) {
	svc, backend := newTestCredentials()
	first, err := svc.Upsert("emp_1", "Secret1", AccountMeta{})
	if err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	again, err := svc.Upsert("emp_1", "Secret1", AccountMeta{})
	if err != nil {
		t.Fatalf("repeated Upsert returned error: %v", err)
	}
	if first.SecretHash != again.SecretHash {
		t.Fatalf("repeated upsert with same arguments changed the digest")
	}

	// Overwrite with a new secret is the reset path.
	if _, err := svc.Upsert("emp_1", "Secret2", AccountMeta{}); err != nil {
		t.Fatalf("overwrite returned error: %v", err)
	}
	if _, err := svc.Authenticate("emp_1", "Secret1"); err == nil {
		t.Fatalf("old secret still accepted after overwrite")
	}
	if _, err := svc.Authenticate("emp_1", "Secret2"); err != nil {
		t.Fatalf("new secret rejected: %v", err)
	}

	if backend.StoreCount() < 3 {
		t.Fatalf("every upsert must rewrite the persisted set, got %d writes", backend.StoreCount())
	}
}

func TestSeedEntriesShadowedAndNotRemovable(t *testing.T) {
	svc, _ := newTestCredentials(WithSeedAccounts(map[string]string{"seed_1": "SeedPw"}))

	a, err := svc.Resolve("seed_1")
	if err != nil || a == nil {
		t.Fatalf("seed account not resolvable: %v %v", a, err)
	}

	// Removing a seed-only identifier reports not removed and the entry
	// survives.
	removed, err := svc.Remove("seed_1")
	if err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if removed {
		t.Fatalf("seed identifier reported removed")
	}
	if a, _ := svc.Resolve("seed_1"); a == nil {
		t.Fatalf("seed identifier vanished after Remove")
	}

	// A persisted shadow takes precedence and its removal re-exposes the
	// seed entry.
	if _, err := svc.Upsert("seed_1", "NewPw", AccountMeta{}); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if _, err := svc.Authenticate("seed_1", "SeedPw"); err == nil {
		t.Fatalf("seed secret still accepted while shadowed")
	}
	removed, err = svc.Remove("seed_1")
	if err != nil || !removed {
		t.Fatalf("expected shadow removal, got removed=%v err=%v", removed, err)
	}
	if _, err := svc.Authenticate("seed_1", "SeedPw"); err != nil {
		t.Fatalf("seed entry must reappear after shadow removal: %v", err)
	}
}

func TestRemovePersistedEntry(t *testing.T) {
	svc, _ := newTestCredentials()
	if _, err := svc.Upsert("emp_1", "Secret1", AccountMeta{}); err != nil {
		t.Fatal(err)
	}
	removed, err := svc.Remove("emp_1")
	if err != nil || !removed {
		t.Fatalf("expected removal, got removed=%v err=%v", removed, err)
	}
	if a, _ := svc.Resolve("emp_1"); a != nil {
		t.Fatalf("identifier still resolvable after removal")
	}
	removed, err = svc.Remove("emp_1")
	if err != nil || removed {
		t.Fatalf("second removal must report not removed")
	}
}

func TestProtectedIdentifierCannotBeRemoved(t *testing.T) {
	svc, _ := newTestCredentials(
		WithSeedAccounts(map[string]string{"admin": "admin"}),
		WithProtected("admin"),
	)
	if _, err := svc.Upsert("admin", "changed", AccountMeta{}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Remove("admin"); err == nil {
		t.Fatalf("expected forbidden error for the default admin")
	}
}

func TestStatusTransitions(t *testing.T) {
	svc, _ := newTestCredentials(WithSeedAccounts(map[string]string{"seed_1": "SeedPw"}))
	if _, err := svc.Upsert("emp_1", "Secret1", AccountMeta{}); err != nil {
		t.Fatal(err)
	}

	if err := svc.MarkInProgress("emp_1"); err != nil {
		t.Fatalf("MarkInProgress returned error: %v", err)
	}
	a, _ := svc.Resolve("emp_1")
	if a.Status != StatusInProgress {
		t.Fatalf("expected in_progress, got %s", a.Status)
	}

	// Second login leaves the status alone.
	if err := svc.SetStatus("emp_1", StatusCompleted); err != nil {
		t.Fatal(err)
	}
	if err := svc.MarkInProgress("emp_1"); err != nil {
		t.Fatal(err)
	}
	a, _ = svc.Resolve("emp_1")
	if a.Status != StatusCompleted {
		t.Fatalf("MarkInProgress must not demote a completed account")
	}

	// Status on a seed account is materialized into the persisted set.
	if err := svc.SetStatus("seed_1", StatusInProgress); err != nil {
		t.Fatal(err)
	}
	a, _ = svc.Resolve("seed_1")
	if a.Status != StatusInProgress {
		t.Fatalf("seed status not persisted, got %s", a.Status)
	}

	if err := svc.SetStatus("emp_1", AccountStatus("archived")); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestCredentialsSurviveReload(t *testing.T) {
	backend := storage.NewMemoryBackend()
	svc := NewCredentialService(backend, "test-salt")
	if _, err := svc.Upsert("emp_1", "Secret1", AccountMeta{Department: "Sales"}); err != nil {
		t.Fatal(err)
	}

	reloaded := NewCredentialService(backend, "test-salt")
	a, err := reloaded.Authenticate("emp_1", "Secret1")
	if err != nil {
		t.Fatalf("Authenticate after reload returned error: %v", err)
	}
	if a.Department != "Sales" {
		t.Fatalf("metadata lost on reload: %+v", a)
	}
}
