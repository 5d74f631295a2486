// Package storage defines the persistence interfaces consumed by the
// assistant core. Two implementations exist: sqlite (production) and
// memory (tests). All family-data operations take an explicit familyID
// and must never cross the family boundary.
package storage

import (
	"context"
	"time"

	"github.com/nidohq/nido/internal/domain"
)

// FamilyStore is the family-scoped CRUD surface for calendar events,
// tasks, shopping items, expenses and the member roster.
type FamilyStore interface {
	// Events. ListEventsBetween returns events with StartsAt in [from, to),
	// ordered by StartsAt ascending.
	ListEventsBetween(ctx context.Context, familyID string, from, to time.Time) ([]domain.Event, error)
	GetEvent(ctx context.Context, familyID, id string) (*domain.Event, error)
	CreateEvent(ctx context.Context, ev *domain.Event) error
	UpdateEvent(ctx context.Context, ev *domain.Event) error
	DeleteEvent(ctx context.Context, familyID, id string) error

	// Tasks. ListTasks returns all tasks ordered by creation time.
	ListTasks(ctx context.Context, familyID string) ([]domain.Task, error)
	GetTask(ctx context.Context, familyID, id string) (*domain.Task, error)
	CreateTask(ctx context.Context, task *domain.Task) error
	UpdateTask(ctx context.Context, task *domain.Task) error
	DeleteTask(ctx context.Context, familyID, id string) error

	// Shopping items.
	ListShoppingItems(ctx context.Context, familyID string) ([]domain.ShoppingItem, error)
	GetShoppingItem(ctx context.Context, familyID, id string) (*domain.ShoppingItem, error)
	CreateShoppingItem(ctx context.Context, item *domain.ShoppingItem) error
	UpdateShoppingItem(ctx context.Context, item *domain.ShoppingItem) error
	DeleteShoppingItem(ctx context.Context, familyID, id string) error

	// Expenses. ListExpensesBetween returns expenses with SpentAt in
	// [from, to), ordered by SpentAt ascending.
	ListExpensesBetween(ctx context.Context, familyID string, from, to time.Time) ([]domain.Expense, error)
	GetExpense(ctx context.Context, familyID, id string) (*domain.Expense, error)
	CreateExpense(ctx context.Context, exp *domain.Expense) error
	UpdateExpense(ctx context.Context, exp *domain.Expense) error
	DeleteExpense(ctx context.Context, familyID, id string) error

	// Members.
	ListMembers(ctx context.Context, familyID string) ([]domain.Member, error)
	GetMember(ctx context.Context, familyID, userID string) (*domain.Member, error)
	CreateMember(ctx context.Context, m *domain.Member) error
}

// ConversationStore persists assistant chat transcripts.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *domain.Conversation) error
	// GetConversation returns the conversation with its messages in
	// chronological order, or domain.ErrNotFound.
	GetConversation(ctx context.Context, familyID, id string) (*domain.Conversation, error)
	AppendMessage(ctx context.Context, familyID, conversationID string, msg *domain.Message) error
}

// AuditLog is the append-only sink for confirmed assistant actions.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry *domain.AuditEntry) error
}

// UsageLog is the append-only sink for assistant usage telemetry.
type UsageLog interface {
	AppendUsage(ctx context.Context, entry *domain.UsageEntry) error
}

// Store is the full persistence surface wired into the service.
type Store interface {
	FamilyStore
	ConversationStore
	AuditLog
	UsageLog
	Close() error
}
