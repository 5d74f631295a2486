// Package domain holds the family-scoped entity types shared by the
// storage layer and the assistant core. Every persisted entity carries
// the owning family id; the storage layer never returns rows belonging
// to another family.
package domain

import "time"

// Role is a family member's role. Child-role users are barred from all
// mutating assistant actions.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleChild  Role = "child"
)

// Priority levels for tasks.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Event is a calendar entry.
type Event struct {
	ID          string
	FamilyID    string
	Title       string
	Description string
	StartsAt    time.Time
	EndsAt      *time.Time
	Category    string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Task is a to-do item, optionally assigned and optionally dated.
type Task struct {
	ID          string
	FamilyID    string
	Title       string
	Description string
	DueAt       *time.Time
	Priority    string
	AssigneeID  string
	Completed   bool
	CompletedAt *time.Time
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ShoppingItem is a shopping-list entry. Once purchased it keeps the
// purchase timestamp, the purchasing user, the actual price paid and a
// back-reference to the expense created for the purchase.
type ShoppingItem struct {
	ID          string
	FamilyID    string
	Name        string
	Quantity    int
	Purchased   bool
	PurchasedAt *time.Time
	PurchasedBy string
	ActualPrice string
	ExpenseID   string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Expense is a budget entry. Amount is a decimal string end-to-end;
// it is never converted through a binary float.
type Expense struct {
	ID          string
	FamilyID    string
	Description string
	Amount      string
	Category    string
	Store       string
	SpentAt     time.Time
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Member is a family member as seen by the assistant.
type Member struct {
	ID        string
	FamilyID  string
	Name      string
	Role      Role
	CreatedAt time.Time
}

// Conversation groups the messages of one assistant chat thread.
type Conversation struct {
	ID        string
	FamilyID  string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
	Messages  []Message
}

// Message is one turn in a conversation. Role is "user" or "assistant".
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	CreatedAt      time.Time
}

// AuditEntry records one confirmed assistant action, successful or not.
type AuditEntry struct {
	ID         string
	FamilyID   string
	UserID     string
	ActionType string
	Detail     string
	Source     string
	CreatedAt  time.Time
}

// UsageEntry is append-only assistant telemetry. Tokens is an estimate,
// not a billing-grade count.
type UsageEntry struct {
	ID           string
	UserID       string
	FamilyID     string
	RequestType  string
	Tokens       int
	ResponseTime time.Duration
	CreatedAt    time.Time
}
