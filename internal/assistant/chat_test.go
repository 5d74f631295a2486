package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nidohq/nido/internal/domain"
	"github.com/nidohq/nido/internal/i18n"
	"github.com/nidohq/nido/internal/llm"
	"github.com/nidohq/nido/internal/storage/memory"
	"github.com/nidohq/nido/internal/tokens"
)

// fakeProvider replays a scripted sequence of stream events and records
// the last request it received.
type fakeProvider struct {
	events  []llm.Event
	lastReq *llm.Request
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Stream(ctx context.Context, req *llm.Request) (<-chan llm.Event, error) {
	f.lastReq = req
	ch := make(chan llm.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func newChatFixture(t *testing.T, provider llm.Provider) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	seedMember(t, store, "u-anna", "fam-1", "Anna", domain.RoleAdmin)
	return NewService(store, provider, tokens.NewEstimator(), testLogger(), fixedNow), store
}

func TestChatTurnStreamsAndExtracts(t *testing.T) {
	provider := &fakeProvider{events: []llm.Event{
		{Delta: "Sure, adding milk. "},
		{Delta: `[ACTION_PROPOSED: add_shopping_item | {"name": `},
		{Delta: `"milk", "quantity": 2}]`},
	}}
	svc, store := newChatFixture(t, provider)

	var streamed strings.Builder
	result, err := svc.ChatTurn(context.Background(), adminIdent(), ChatRequest{
		Content:  "add milk to the list",
		Language: i18n.LangEnglish,
	}, func(delta string) error {
		streamed.WriteString(delta)
		return nil
	})
	if err != nil {
		t.Fatalf("ChatTurn() error = %v", err)
	}

	// Deltas pass through verbatim even when the marker spans chunks.
	if streamed.String() != result.Reply {
		t.Errorf("streamed %q, reply %q; want identical", streamed.String(), result.Reply)
	}
	if result.ProposedAction == nil {
		t.Fatal("ProposedAction = nil, want add_shopping_item")
	}
	if result.ProposedAction.Type != "add_shopping_item" {
		t.Errorf("Type = %q, want add_shopping_item", result.ProposedAction.Type)
	}
	if result.ConversationID == "" {
		t.Error("ConversationID is empty")
	}

	// System prompt carries the action protocol; user message is last.
	if !strings.Contains(provider.lastReq.System, "ACTION_PROPOSED") {
		t.Error("system prompt missing action protocol")
	}
	last := provider.lastReq.Messages[len(provider.lastReq.Messages)-1]
	if last.Role != "user" || last.Content != "add milk to the list" {
		t.Errorf("last message = %+v, want the user turn", last)
	}

	// Both sides of the turn are persisted.
	conv, err := store.GetConversation(context.Background(), "fam-1", result.ConversationID)
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if len(conv.Messages) != 2 || conv.Messages[0].Role != "user" || conv.Messages[1].Role != "assistant" {
		t.Errorf("transcript = %+v, want user then assistant", conv.Messages)
	}

	usage := store.UsageEntries()
	if len(usage) != 1 || usage[0].RequestType != "chat_with_action:add_shopping_item" {
		t.Errorf("usage = %+v, want one chat_with_action entry", usage)
	}
}

func TestChatTurnPlainReply(t *testing.T) {
	provider := &fakeProvider{events: []llm.Event{{Delta: "You have no events today."}}}
	svc, store := newChatFixture(t, provider)

	result, err := svc.ChatTurn(context.Background(), adminIdent(), ChatRequest{
		Content:  "what's on today?",
		Language: i18n.LangEnglish,
	}, func(string) error { return nil })
	if err != nil {
		t.Fatalf("ChatTurn() error = %v", err)
	}
	if result.ProposedAction != nil {
		t.Errorf("ProposedAction = %+v, want nil", result.ProposedAction)
	}
	if usage := store.UsageEntries(); len(usage) != 1 || usage[0].RequestType != "chat" {
		t.Errorf("usage = %+v, want one chat entry", usage)
	}
}

func TestChatTurnStreamError(t *testing.T) {
	provider := &fakeProvider{events: []llm.Event{
		{Delta: "Let me check"},
		{Err: errors.New("upstream hiccup")},
	}}
	svc, store := newChatFixture(t, provider)

	_, err := svc.ChatTurn(context.Background(), adminIdent(), ChatRequest{
		Content:  "hello",
		Language: i18n.LangEnglish,
	}, func(string) error { return nil })
	if err == nil {
		t.Fatal("ChatTurn() error = nil, want stream failure")
	}
	if usage := store.UsageEntries(); len(usage) != 1 || usage[0].RequestType != "chat_error" {
		t.Errorf("usage = %+v, want one chat_error entry", usage)
	}
}

func TestChatTurnReusesConversation(t *testing.T) {
	provider := &fakeProvider{events: []llm.Event{{Delta: "Hi again."}}}
	svc, store := newChatFixture(t, provider)
	ctx := context.Background()

	conv := domain.Conversation{ID: "c-1", FamilyID: "fam-1", UserID: "u-anna"}
	if err := store.CreateConversation(ctx, &conv); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if err := store.AppendMessage(ctx, "fam-1", "c-1", &domain.Message{ID: "m-1", Role: "user", Content: "earlier turn"}); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	result, err := svc.ChatTurn(ctx, adminIdent(), ChatRequest{
		ConversationID: "c-1",
		Content:        "and now?",
		Language:       i18n.LangEnglish,
	}, func(string) error { return nil })
	if err != nil {
		t.Fatalf("ChatTurn() error = %v", err)
	}
	if result.ConversationID != "c-1" {
		t.Errorf("ConversationID = %q, want c-1", result.ConversationID)
	}

	// Prior history precedes the new user message in the model request.
	if len(provider.lastReq.Messages) != 2 {
		t.Fatalf("messages = %d, want history plus new turn", len(provider.lastReq.Messages))
	}
	if provider.lastReq.Messages[0].Content != "earlier turn" {
		t.Errorf("history[0] = %+v, want earlier turn", provider.lastReq.Messages[0])
	}
}

func TestChatTurnSnapshotFailureAborts(t *testing.T) {
	// No member seeded: the snapshot's GetMember read fails.
	store := memory.New()
	provider := &fakeProvider{events: []llm.Event{{Delta: "never sent"}}}
	svc := NewService(store, provider, tokens.NewEstimator(), testLogger(), fixedNow)

	called := false
	_, err := svc.ChatTurn(context.Background(), adminIdent(), ChatRequest{
		Content:  "hello",
		Language: i18n.LangEnglish,
	}, func(string) error { called = true; return nil })
	if err == nil {
		t.Fatal("ChatTurn() error = nil, want snapshot failure")
	}
	if called {
		t.Error("sink was called despite snapshot failure")
	}
	if provider.lastReq != nil {
		t.Error("model was called despite snapshot failure")
	}
}
