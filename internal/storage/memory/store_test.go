package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/nidohq/nido/internal/domain"
)

func TestMutationsCountsFamilyDataOnly(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.CreateMember(ctx, &domain.Member{ID: "u-1", FamilyID: "fam-1", Name: "Anna", Role: domain.RoleAdmin}); err != nil {
		t.Fatalf("CreateMember() error = %v", err)
	}
	if err := store.AppendAudit(ctx, &domain.AuditEntry{ID: "a-1", FamilyID: "fam-1"}); err != nil {
		t.Fatalf("AppendAudit() error = %v", err)
	}
	if err := store.AppendUsage(ctx, &domain.UsageEntry{ID: "u-1", FamilyID: "fam-1"}); err != nil {
		t.Fatalf("AppendUsage() error = %v", err)
	}
	if n := store.Mutations(); n != 0 {
		t.Errorf("Mutations() = %d, want 0 for member/audit/usage writes", n)
	}

	if err := store.CreateTask(ctx, &domain.Task{ID: "t-1", FamilyID: "fam-1", Title: "x"}); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if n := store.Mutations(); n != 1 {
		t.Errorf("Mutations() = %d, want 1 after task create", n)
	}
}

func TestReturnedCopiesAreIsolated(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.CreateTask(ctx, &domain.Task{ID: "t-1", FamilyID: "fam-1", Title: "original"}); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	got, err := store.GetTask(ctx, "fam-1", "t-1")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	got.Title = "mutated"

	again, err := store.GetTask(ctx, "fam-1", "t-1")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if again.Title != "original" {
		t.Errorf("Title = %q, caller mutation leaked into the store", again.Title)
	}
}

func TestCrossFamilyIsNotFound(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.CreateShoppingItem(ctx, &domain.ShoppingItem{ID: "s-1", FamilyID: "fam-1", Name: "milk"}); err != nil {
		t.Fatalf("CreateShoppingItem() error = %v", err)
	}
	if _, err := store.GetShoppingItem(ctx, "fam-2", "s-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("cross-family GetShoppingItem() error = %v, want ErrNotFound", err)
	}
	if err := store.DeleteShoppingItem(ctx, "fam-2", "s-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("cross-family DeleteShoppingItem() error = %v, want ErrNotFound", err)
	}
}
