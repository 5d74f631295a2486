package assistant

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/nidohq/nido/internal/domain"
	"github.com/nidohq/nido/internal/i18n"
	"github.com/nidohq/nido/internal/session"
	"github.com/nidohq/nido/internal/storage/memory"
	"github.com/nidohq/nido/internal/tokens"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(store *memory.Store) *Engine {
	return NewEngine(store, tokens.NewEstimator(), testLogger(), fixedNow)
}

func adminIdent() session.Identity {
	return session.Identity{UserID: "u-anna", FamilyID: "fam-1", Role: domain.RoleAdmin}
}

func confirm(t *testing.T, e *Engine, ident session.Identity, actionType, data string) Result {
	t.Helper()
	return e.Confirm(context.Background(), ident, ConfirmRequest{
		ActionType: actionType,
		ActionData: json.RawMessage(data),
		Language:   i18n.LangEnglish,
	})
}

func TestConfirmCreateEvent(t *testing.T) {
	store := memory.New()
	e := newTestEngine(store)

	result := confirm(t, e, adminIdent(), "create_event",
		`{"title": "Dentist", "start": "2026-09-01T15:00:00Z", "category": "health"}`)
	if !result.Success {
		t.Fatalf("Confirm() failed: %s", result.Message)
	}
	data, ok := result.Data.(map[string]any)
	if !ok || data["id"] == "" {
		t.Fatalf("Data = %#v, want map with id", result.Data)
	}

	ev, err := store.GetEvent(context.Background(), "fam-1", data["id"].(string))
	if err != nil {
		t.Fatalf("GetEvent() error = %v", err)
	}
	if ev.Title != "Dentist" || ev.Category != "health" || ev.CreatedBy != "u-anna" {
		t.Errorf("event = %+v, want Dentist/health/u-anna", ev)
	}

	audits := store.AuditEntries()
	if len(audits) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(audits))
	}
	if audits[0].ActionType != "create_event" || audits[0].Source != "assistant" {
		t.Errorf("audit = %+v", audits[0])
	}
	if !strings.Contains(audits[0].Detail, `"success":true`) {
		t.Errorf("audit detail = %q, want success flag", audits[0].Detail)
	}

	usage := store.UsageEntries()
	if len(usage) != 1 || usage[0].RequestType != "action_confirmed:create_event" {
		t.Errorf("usage = %+v, want one action_confirmed:create_event entry", usage)
	}
}

func TestConfirmUnsupportedAction(t *testing.T) {
	store := memory.New()
	e := newTestEngine(store)

	result := confirm(t, e, adminIdent(), "launch_rocket", `{"id": "x"}`)
	if result.Success {
		t.Fatal("Confirm() succeeded for unsupported action")
	}
	if result.Message != i18n.T(i18n.LangEnglish, "not_supported") {
		t.Errorf("Message = %q, want not-supported text", result.Message)
	}
	if n := store.Mutations(); n != 0 {
		t.Errorf("Mutations() = %d, want 0", n)
	}
	if n := len(store.AuditEntries()); n != 0 {
		t.Errorf("audit entries = %d, want 0 for rejected type", n)
	}
}

func TestConfirmChildDenied(t *testing.T) {
	store := memory.New()
	e := newTestEngine(store)
	child := session.Identity{UserID: "u-kid", FamilyID: "fam-1", Role: domain.RoleChild}

	payloads := map[string]string{
		"create_event":         `{"title": "t", "start": "2026-09-01"}`,
		"update_event":         `{"id": "e-1"}`,
		"delete_event":         `{"id": "e-1"}`,
		"create_task":          `{"title": "t"}`,
		"update_task":          `{"id": "t-1"}`,
		"complete_task":        `{"id": "t-1"}`,
		"delete_task":          `{"id": "t-1"}`,
		"create_expense":       `{"amount": "10.00"}`,
		"update_expense":       `{"id": "x-1"}`,
		"delete_expense":       `{"id": "x-1"}`,
		"add_shopping_item":    `{"name": "milk"}`,
		"add_shopping_items":   `{"items": [{"name": "milk"}]}`,
		"update_shopping_item": `{"id": "s-1"}`,
		"delete_shopping_item": `{"id": "s-1"}`,
		"complete_purchase":    `{"items": [{"id": "s-1"}], "totalAmount": "5.00"}`,
	}
	for actionType, payload := range payloads {
		result := confirm(t, e, child, actionType, payload)
		if result.Success {
			t.Errorf("%s: Confirm() succeeded for child", actionType)
		}
		if result.Message != i18n.T(i18n.LangEnglish, "permission_denied") {
			t.Errorf("%s: Message = %q, want permission-denied text", actionType, result.Message)
		}
	}
	if n := store.Mutations(); n != 0 {
		t.Errorf("Mutations() = %d, want 0 after child denials", n)
	}
	if n := len(store.AuditEntries()); n != 0 {
		t.Errorf("audit entries = %d, want 0 after child denials", n)
	}
}

func TestConfirmActionAlias(t *testing.T) {
	store := memory.New()
	e := newTestEngine(store)

	result := confirm(t, e, adminIdent(), "add_expense", `{"amount": 12.5, "category": "fuel"}`)
	if !result.Success {
		t.Fatalf("Confirm() failed: %s", result.Message)
	}

	// The JSON number literal is preserved verbatim, not float-formatted.
	id := result.Data.(map[string]any)["id"].(string)
	exp, err := store.GetExpense(context.Background(), "fam-1", id)
	if err != nil {
		t.Fatalf("GetExpense() error = %v", err)
	}
	if exp.Amount != "12.5" {
		t.Errorf("Amount = %q, want 12.5", exp.Amount)
	}
}

func TestConfirmNotFound(t *testing.T) {
	store := memory.New()
	e := newTestEngine(store)

	result := confirm(t, e, adminIdent(), "delete_event", `{"id": "e-missing"}`)
	if result.Success {
		t.Fatal("Confirm() succeeded for missing event")
	}
	if result.Message != i18n.T(i18n.LangEnglish, "not_found") {
		t.Errorf("Message = %q, want not-found text", result.Message)
	}

	// Failed executions are still audited.
	audits := store.AuditEntries()
	if len(audits) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(audits))
	}
	if !strings.Contains(audits[0].Detail, `"success":false`) {
		t.Errorf("audit detail = %q, want success:false", audits[0].Detail)
	}
}

func TestConfirmInvalidPayload(t *testing.T) {
	store := memory.New()
	e := newTestEngine(store)

	result := confirm(t, e, adminIdent(), "create_event", `{"title": "no start"}`)
	if result.Success {
		t.Fatal("Confirm() succeeded without required fields")
	}
	if result.Message != i18n.T(i18n.LangEnglish, "invalid_payload") {
		t.Errorf("Message = %q, want invalid-payload text", result.Message)
	}
}

func TestConfirmCompleteTask(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	e := newTestEngine(store)
	task := domain.Task{ID: "t-1", FamilyID: "fam-1", Title: "Homework"}
	if err := store.CreateTask(ctx, &task); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	result := confirm(t, e, adminIdent(), "complete_task", `{"id": "t-1"}`)
	if !result.Success {
		t.Fatalf("Confirm() failed: %s", result.Message)
	}

	got, err := store.GetTask(ctx, "fam-1", "t-1")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if !got.Completed || got.CompletedAt == nil {
		t.Errorf("task = %+v, want completed with timestamp", got)
	}
}

func TestConfirmCreateTaskResolvesAssignee(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	e := newTestEngine(store)
	seedMember(t, store, "u-luca", "fam-1", "Luca", domain.RoleMember)

	result := confirm(t, e, adminIdent(), "create_task", `{"title": "Take out trash", "assignee": "luca"}`)
	if !result.Success {
		t.Fatalf("Confirm() failed: %s", result.Message)
	}
	id := result.Data.(map[string]any)["id"].(string)
	got, err := store.GetTask(ctx, "fam-1", id)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if got.AssigneeID != "u-luca" {
		t.Errorf("AssigneeID = %q, want u-luca (case-insensitive name match)", got.AssigneeID)
	}
	if got.Priority != domain.PriorityMedium {
		t.Errorf("Priority = %q, want default medium", got.Priority)
	}
}

func TestConfirmAddShoppingItemsEmpty(t *testing.T) {
	store := memory.New()
	e := newTestEngine(store)

	result := confirm(t, e, adminIdent(), "add_shopping_items", `{"items": []}`)
	if result.Success {
		t.Fatal("Confirm() succeeded for empty batch")
	}
	if n := store.Mutations(); n != 0 {
		t.Errorf("Mutations() = %d, want 0", n)
	}
}

func TestConfirmAddShoppingItemsPartial(t *testing.T) {
	store := memory.New()
	e := newTestEngine(store)

	result := confirm(t, e, adminIdent(), "add_shopping_items",
		`{"items": [{"name": "milk", "quantity": 2}, {"name": ""}, {"name": "bread"}]}`)
	if !result.Success {
		t.Fatalf("Confirm() failed: %s", result.Message)
	}
	ids := result.Data.(map[string]any)["ids"].([]string)
	if len(ids) != 2 {
		t.Errorf("created = %d, want 2 (the nameless entry is skipped)", len(ids))
	}
}

func TestConfirmCompletePurchase(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	e := newTestEngine(store)
	for _, item := range []domain.ShoppingItem{
		{ID: "s-1", FamilyID: "fam-1", Name: "milk", Quantity: 2},
		{ID: "s-2", FamilyID: "fam-1", Name: "bread"},
	} {
		item := item
		if err := store.CreateShoppingItem(ctx, &item); err != nil {
			t.Fatalf("CreateShoppingItem() error = %v", err)
		}
	}

	payload := `{"items": [{"id": "s-1", "actualPrice": "3.20"}, {"id": "s-2", "actualPrice": "1.80"}], "totalAmount": "5.00", "store": "Esselunga"}`
	result := confirm(t, e, adminIdent(), "complete_purchase", payload)
	if !result.Success {
		t.Fatalf("Confirm() failed: %s", result.Message)
	}

	data := result.Data.(map[string]any)
	expenseID := data["expenseId"].(string)
	exp, err := store.GetExpense(ctx, "fam-1", expenseID)
	if err != nil {
		t.Fatalf("GetExpense() error = %v", err)
	}
	if exp.Amount != "5.00" || exp.Category != "shopping" || exp.Store != "Esselunga" {
		t.Errorf("expense = %+v, want 5.00/shopping/Esselunga", exp)
	}
	if !strings.Contains(exp.Description, "milk") || !strings.Contains(exp.Description, "bread") {
		t.Errorf("Description = %q, want item names", exp.Description)
	}

	for _, id := range []string{"s-1", "s-2"} {
		item, err := store.GetShoppingItem(ctx, "fam-1", id)
		if err != nil {
			t.Fatalf("GetShoppingItem(%s) error = %v", id, err)
		}
		if !item.Purchased || item.ExpenseID != expenseID || item.PurchasedBy != "u-anna" {
			t.Errorf("item %s = %+v, want purchased and linked to %s", id, item, expenseID)
		}
	}
	if item, _ := store.GetShoppingItem(ctx, "fam-1", "s-1"); item.ActualPrice != "3.20" {
		t.Errorf("ActualPrice = %q, want 3.20", item.ActualPrice)
	}
}

func TestConfirmCompletePurchaseIdempotent(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	e := newTestEngine(store)
	item := domain.ShoppingItem{ID: "s-1", FamilyID: "fam-1", Name: "milk"}
	if err := store.CreateShoppingItem(ctx, &item); err != nil {
		t.Fatalf("CreateShoppingItem() error = %v", err)
	}

	payload := `{"items": [{"id": "s-1", "actualPrice": "3.20"}], "totalAmount": "3.20"}`
	if result := confirm(t, e, adminIdent(), "complete_purchase", payload); !result.Success {
		t.Fatalf("first Confirm() failed: %s", result.Message)
	}

	// A duplicate confirmation must not create a second expense.
	result := confirm(t, e, adminIdent(), "complete_purchase", payload)
	if result.Success {
		t.Fatal("second Confirm() succeeded, want already-purchased rejection")
	}
	if result.Message != i18n.T(i18n.LangEnglish, "already_purchased") {
		t.Errorf("Message = %q, want already-purchased text", result.Message)
	}

	expenses, err := store.ListExpensesBetween(ctx, "fam-1", testNow.AddDate(0, 0, -1), testNow.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("ListExpensesBetween() error = %v", err)
	}
	if len(expenses) != 1 {
		t.Errorf("expenses = %d, want exactly 1", len(expenses))
	}
}

func TestConfirmCompletePurchaseSkipsMissingItems(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	e := newTestEngine(store)
	item := domain.ShoppingItem{ID: "s-1", FamilyID: "fam-1", Name: "milk"}
	if err := store.CreateShoppingItem(ctx, &item); err != nil {
		t.Fatalf("CreateShoppingItem() error = %v", err)
	}

	payload := `{"items": [{"id": "s-1", "actualPrice": "3.20"}, {"id": "s-ghost"}], "totalAmount": "3.20"}`
	result := confirm(t, e, adminIdent(), "complete_purchase", payload)
	if !result.Success {
		t.Fatalf("Confirm() failed: %s", result.Message)
	}
	ids := result.Data.(map[string]any)["itemIds"].([]string)
	if len(ids) != 1 || ids[0] != "s-1" {
		t.Errorf("itemIds = %v, want [s-1]", ids)
	}
}

func TestConfirmAppendsConversationNote(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	e := newTestEngine(store)
	conv := domain.Conversation{ID: "c-1", FamilyID: "fam-1", UserID: "u-anna"}
	if err := store.CreateConversation(ctx, &conv); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	result := e.Confirm(ctx, adminIdent(), ConfirmRequest{
		ActionType:     "add_shopping_item",
		ActionData:     json.RawMessage(`{"name": "milk"}`),
		ConversationID: "c-1",
		Language:       i18n.LangItalian,
	})
	if !result.Success {
		t.Fatalf("Confirm() failed: %s", result.Message)
	}

	got, err := store.GetConversation(ctx, "fam-1", "c-1")
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if len(got.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(got.Messages))
	}
	if got.Messages[0].Role != "assistant" || got.Messages[0].Content != result.Message {
		t.Errorf("note = %+v, want assistant note with result message", got.Messages[0])
	}
}

func TestConfirmCrossFamilyIsNotFound(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	e := newTestEngine(store)
	other := domain.Event{ID: "e-1", FamilyID: "fam-2", Title: "Private", StartsAt: testNow}
	if err := store.CreateEvent(ctx, &other); err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}

	result := confirm(t, e, adminIdent(), "delete_event", `{"id": "e-1"}`)
	if result.Success {
		t.Fatal("Confirm() deleted another family's event")
	}
	if result.Message != i18n.T(i18n.LangEnglish, "not_found") {
		t.Errorf("Message = %q, want not-found text", result.Message)
	}
	if _, err := store.GetEvent(ctx, "fam-2", "e-1"); err != nil {
		t.Errorf("event was deleted across family boundary: %v", err)
	}
}

func TestAmountRejectsGarbage(t *testing.T) {
	var a Amount
	if err := json.Unmarshal([]byte(`"12,50"`), &a); err == nil {
		t.Error("Unmarshal(\"12,50\") error = nil, want failure")
	}
	if err := json.Unmarshal([]byte(`"abc"`), &a); err == nil {
		t.Error("Unmarshal(\"abc\") error = nil, want failure")
	}
	if err := json.Unmarshal([]byte(`"45.50"`), &a); err != nil {
		t.Errorf("Unmarshal(\"45.50\") error = %v", err)
	}
	if a.String() != "45.50" {
		t.Errorf("String() = %q, want 45.50", a)
	}
}
