// Package assistant implements the conversational action-proposal
// protocol: snapshot assembly, prompt composition, reply parsing and
// the confirmation/execution engine.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nidohq/nido/internal/domain"
	"github.com/nidohq/nido/internal/i18n"
	"github.com/nidohq/nido/internal/llm"
	"github.com/nidohq/nido/internal/session"
	"github.com/nidohq/nido/internal/storage"
	"github.com/nidohq/nido/internal/tokens"
)

const (
	historyLimit   = 10
	replyMaxTokens = 2048
)

// ChatRequest is one user turn.
type ChatRequest struct {
	ConversationID string
	Content        string
	Language       i18n.Lang
}

// ChatResult is the terminal outcome of a chat turn, after the full
// reply has been streamed to the sink.
type ChatResult struct {
	ConversationID string
	Reply          string
	ProposedAction *ProposedAction
}

// StreamFunc receives each reply delta as it arrives from the model.
// Returning an error aborts the turn.
type StreamFunc func(delta string) error

// Service orchestrates one chat turn: snapshot, prompt, model stream,
// proposal extraction, transcript persistence and telemetry.
type Service struct {
	store       storage.Store
	provider    llm.Provider
	snapshotter *Snapshotter
	counter     tokens.Counter
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
}

// NewService wires a chat service. now is injectable for tests; nil
// means time.Now.
func NewService(store storage.Store, provider llm.Provider, counter tokens.Counter, logger *slog.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:       store,
		provider:    provider,
		snapshotter: NewSnapshotter(store, now),
		counter:     counter,
		logger:      logger,
		now:         now,
		newID:       uuid.NewString,
	}
}

// Engine builds the confirmation engine sharing this service's clock.
func (s *Service) Engine() *Engine {
	return NewEngine(s.store, s.counter, s.logger, s.now)
}

// ChatTurn runs one turn. Deltas are forwarded to sink as they arrive;
// the returned ChatResult carries the accumulated reply and the
// proposal parsed from it, if any. On error the caller is responsible
// for terminating its stream with an explicit error event.
func (s *Service) ChatTurn(ctx context.Context, ident session.Identity, req ChatRequest, sink StreamFunc) (*ChatResult, error) {
	start := s.now()

	snap, err := s.snapshotter.BuildSnapshot(ctx, ident.FamilyID, ident.UserID, req.Language)
	if err != nil {
		s.recordUsage(ctx, ident, "chat_error", req.Content, s.now().Sub(start))
		return nil, fmt.Errorf("context assembly failed: %w", err)
	}
	prompt := ComposeSystemPrompt(snap, start)

	conv, err := s.loadOrCreateConversation(ctx, ident, req.ConversationID)
	if err != nil {
		s.recordUsage(ctx, ident, "chat_error", req.Content, s.now().Sub(start))
		return nil, err
	}

	llmReq := &llm.Request{
		System:    prompt,
		Messages:  historyMessages(conv, req.Content),
		MaxTokens: replyMaxTokens,
	}
	events, err := s.provider.Stream(ctx, llmReq)
	if err != nil {
		s.recordUsage(ctx, ident, "chat_error", req.Content, s.now().Sub(start))
		return nil, fmt.Errorf("model call failed: %w", err)
	}

	var reply strings.Builder
	for event := range events {
		if event.Err != nil {
			s.recordUsage(ctx, ident, "chat_error", req.Content, s.now().Sub(start))
			return nil, fmt.Errorf("model stream failed: %w", event.Err)
		}
		if event.Delta == "" {
			continue
		}
		if err := sink(event.Delta); err != nil {
			return nil, fmt.Errorf("client stream failed: %w", err)
		}
		reply.WriteString(event.Delta)
	}

	full := reply.String()
	action := ExtractProposedAction(full)

	// The assistant's textual reply, marker included, is what gets
	// persisted; the parsed action itself stays transient.
	s.appendTranscript(ctx, ident, conv.ID, req.Content, full)

	requestType := "chat"
	if action != nil {
		requestType = "chat_with_action:" + action.Type
	}
	s.recordUsage(ctx, ident, requestType, prompt+req.Content+full, s.now().Sub(start))

	return &ChatResult{ConversationID: conv.ID, Reply: full, ProposedAction: action}, nil
}

func (s *Service) loadOrCreateConversation(ctx context.Context, ident session.Identity, id string) (*domain.Conversation, error) {
	if id != "" {
		conv, err := s.store.GetConversation(ctx, ident.FamilyID, id)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("failed to load conversation: %w", err)
		}
	}
	if id == "" {
		id = s.newID()
	}
	conv := &domain.Conversation{ID: id, FamilyID: ident.FamilyID, UserID: ident.UserID}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// historyMessages converts the last turns of the transcript plus the
// new user message into the provider request.
func historyMessages(conv *domain.Conversation, content string) []llm.Message {
	msgs := conv.Messages
	if len(msgs) > historyLimit {
		msgs = msgs[len(msgs)-historyLimit:]
	}
	out := make([]llm.Message, 0, len(msgs)+1)
	for _, m := range msgs {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return append(out, llm.Message{Role: "user", Content: content})
}

// appendTranscript persists both sides of the turn. A transcript write
// failure is logged but does not fail a turn whose reply has already
// been streamed.
func (s *Service) appendTranscript(ctx context.Context, ident session.Identity, convID, userContent, reply string) {
	userMsg := &domain.Message{ID: s.newID(), Role: "user", Content: userContent}
	if err := s.store.AppendMessage(ctx, ident.FamilyID, convID, userMsg); err != nil {
		s.logger.Warn("failed to persist user message", slog.String("error", err.Error()))
		return
	}
	assistantMsg := &domain.Message{ID: s.newID(), Role: "assistant", Content: reply}
	if err := s.store.AppendMessage(ctx, ident.FamilyID, convID, assistantMsg); err != nil {
		s.logger.Warn("failed to persist assistant message", slog.String("error", err.Error()))
	}
}

func (s *Service) recordUsage(ctx context.Context, ident session.Identity, requestType, text string, elapsed time.Duration) {
	entry := &domain.UsageEntry{
		ID:           s.newID(),
		UserID:       ident.UserID,
		FamilyID:     ident.FamilyID,
		RequestType:  requestType,
		Tokens:       s.counter.Count(text),
		ResponseTime: elapsed,
	}
	if err := s.store.AppendUsage(ctx, entry); err != nil {
		s.logger.Warn("failed to write usage entry", slog.String("error", err.Error()))
	}
}
