// Package memory is an in-memory implementation of storage.Store used
// by tests and by local development without a database file.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nidohq/nido/internal/domain"
	"github.com/nidohq/nido/internal/storage"
)

// Store is a mutex-guarded map-backed storage.Store.
type Store struct {
	mu            sync.RWMutex
	events        map[string]*domain.Event
	tasks         map[string]*domain.Task
	shopping      map[string]*domain.ShoppingItem
	expenses      map[string]*domain.Expense
	members       map[string]*domain.Member
	conversations map[string]*domain.Conversation
	audit         []domain.AuditEntry
	usage         []domain.UsageEntry

	// mutations counts every write to family data. Tests use it to assert
	// that denied or unsupported actions touch nothing.
	mutations int
}

var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		events:        make(map[string]*domain.Event),
		tasks:         make(map[string]*domain.Task),
		shopping:      make(map[string]*domain.ShoppingItem),
		expenses:      make(map[string]*domain.Expense),
		members:       make(map[string]*domain.Member),
		conversations: make(map[string]*domain.Conversation),
	}
}

// Mutations returns the number of family-data writes performed so far.
func (s *Store) Mutations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mutations
}

// AuditEntries returns a copy of the audit log.
func (s *Store) AuditEntries() []domain.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

// UsageEntries returns a copy of the usage log.
func (s *Store) UsageEntries() []domain.UsageEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UsageEntry, len(s.usage))
	copy(out, s.usage)
	return out
}

func (s *Store) Close() error { return nil }

// --- Events ---

func (s *Store) ListEventsBetween(ctx context.Context, familyID string, from, to time.Time) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Event
	for _, ev := range s.events {
		if ev.FamilyID != familyID {
			continue
		}
		if ev.StartsAt.Before(from) || !ev.StartsAt.Before(to) {
			continue
		}
		out = append(out, *ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (s *Store) GetEvent(ctx context.Context, familyID, id string) (*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok || ev.FamilyID != familyID {
		return nil, domain.ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

func (s *Store) CreateEvent(ctx context.Context, ev *domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev.CreatedAt = time.Now()
	ev.UpdatedAt = ev.CreatedAt
	cp := *ev
	s.events[ev.ID] = &cp
	s.mutations++
	return nil
}

func (s *Store) UpdateEvent(ctx context.Context, ev *domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.events[ev.ID]
	if !ok || cur.FamilyID != ev.FamilyID {
		return domain.ErrNotFound
	}
	ev.UpdatedAt = time.Now()
	cp := *ev
	s.events[ev.ID] = &cp
	s.mutations++
	return nil
}

func (s *Store) DeleteEvent(ctx context.Context, familyID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok || ev.FamilyID != familyID {
		return domain.ErrNotFound
	}
	delete(s.events, id)
	s.mutations++
	return nil
}

// --- Tasks ---

func (s *Store) ListTasks(ctx context.Context, familyID string) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Task
	for _, t := range s.tasks {
		if t.FamilyID == familyID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetTask(ctx context.Context, familyID, id string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok || t.FamilyID != familyID {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) CreateTask(ctx context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task.CreatedAt = time.Now()
	task.UpdatedAt = task.CreatedAt
	if task.Priority == "" {
		task.Priority = domain.PriorityMedium
	}
	cp := *task
	s.tasks[task.ID] = &cp
	s.mutations++
	return nil
}

func (s *Store) UpdateTask(ctx context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tasks[task.ID]
	if !ok || cur.FamilyID != task.FamilyID {
		return domain.ErrNotFound
	}
	task.UpdatedAt = time.Now()
	cp := *task
	s.tasks[task.ID] = &cp
	s.mutations++
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, familyID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.FamilyID != familyID {
		return domain.ErrNotFound
	}
	delete(s.tasks, id)
	s.mutations++
	return nil
}

// --- Shopping items ---

func (s *Store) ListShoppingItems(ctx context.Context, familyID string) ([]domain.ShoppingItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ShoppingItem
	for _, item := range s.shopping {
		if item.FamilyID == familyID {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetShoppingItem(ctx context.Context, familyID, id string) (*domain.ShoppingItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.shopping[id]
	if !ok || item.FamilyID != familyID {
		return nil, domain.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (s *Store) CreateShoppingItem(ctx context.Context, item *domain.ShoppingItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	cp := *item
	s.shopping[item.ID] = &cp
	s.mutations++
	return nil
}

func (s *Store) UpdateShoppingItem(ctx context.Context, item *domain.ShoppingItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.shopping[item.ID]
	if !ok || cur.FamilyID != item.FamilyID {
		return domain.ErrNotFound
	}
	item.UpdatedAt = time.Now()
	cp := *item
	s.shopping[item.ID] = &cp
	s.mutations++
	return nil
}

func (s *Store) DeleteShoppingItem(ctx context.Context, familyID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.shopping[id]
	if !ok || item.FamilyID != familyID {
		return domain.ErrNotFound
	}
	delete(s.shopping, id)
	s.mutations++
	return nil
}

// --- Expenses ---

func (s *Store) ListExpensesBetween(ctx context.Context, familyID string, from, to time.Time) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Expense
	for _, exp := range s.expenses {
		if exp.FamilyID != familyID {
			continue
		}
		if exp.SpentAt.Before(from) || !exp.SpentAt.Before(to) {
			continue
		}
		out = append(out, *exp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SpentAt.Before(out[j].SpentAt) })
	return out, nil
}

func (s *Store) GetExpense(ctx context.Context, familyID, id string) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exp, ok := s.expenses[id]
	if !ok || exp.FamilyID != familyID {
		return nil, domain.ErrNotFound
	}
	cp := *exp
	return &cp, nil
}

func (s *Store) CreateExpense(ctx context.Context, exp *domain.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp.CreatedAt = time.Now()
	exp.UpdatedAt = exp.CreatedAt
	if exp.SpentAt.IsZero() {
		exp.SpentAt = exp.CreatedAt
	}
	cp := *exp
	s.expenses[exp.ID] = &cp
	s.mutations++
	return nil
}

func (s *Store) UpdateExpense(ctx context.Context, exp *domain.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.expenses[exp.ID]
	if !ok || cur.FamilyID != exp.FamilyID {
		return domain.ErrNotFound
	}
	exp.UpdatedAt = time.Now()
	cp := *exp
	s.expenses[exp.ID] = &cp
	s.mutations++
	return nil
}

func (s *Store) DeleteExpense(ctx context.Context, familyID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.expenses[id]
	if !ok || exp.FamilyID != familyID {
		return domain.ErrNotFound
	}
	delete(s.expenses, id)
	s.mutations++
	return nil
}

// --- Members ---

func (s *Store) ListMembers(ctx context.Context, familyID string) ([]domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Member
	for _, m := range s.members {
		if m.FamilyID == familyID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetMember(ctx context.Context, familyID, userID string) (*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[userID]
	if !ok || m.FamilyID != familyID {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *Store) CreateMember(ctx context.Context, m *domain.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.CreatedAt = time.Now()
	cp := *m
	s.members[m.ID] = &cp
	return nil
}

// --- Conversations ---

func (s *Store) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv.CreatedAt = time.Now()
	conv.UpdatedAt = conv.CreatedAt
	cp := *conv
	cp.Messages = nil
	s.conversations[conv.ID] = &cp
	return nil
}

func (s *Store) GetConversation(ctx context.Context, familyID, id string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok || conv.FamilyID != familyID {
		return nil, domain.ErrNotFound
	}
	cp := *conv
	cp.Messages = make([]domain.Message, len(conv.Messages))
	copy(cp.Messages, conv.Messages)
	return &cp, nil
}

func (s *Store) AppendMessage(ctx context.Context, familyID, conversationID string, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok || conv.FamilyID != familyID {
		return domain.ErrNotFound
	}
	msg.ConversationID = conversationID
	msg.CreatedAt = time.Now()
	conv.Messages = append(conv.Messages, *msg)
	conv.UpdatedAt = msg.CreatedAt
	return nil
}

// --- Audit and usage logs ---

func (s *Store) AppendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.CreatedAt = time.Now()
	s.audit = append(s.audit, *entry)
	return nil
}

func (s *Store) AppendUsage(ctx context.Context, entry *domain.UsageEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.CreatedAt = time.Now()
	s.usage = append(s.usage, *entry)
	return nil
}
