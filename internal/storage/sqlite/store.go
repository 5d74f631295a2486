// Package sqlite is the SQLite implementation of storage.Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nidohq/nido/internal/domain"
	"github.com/nidohq/nido/internal/storage"
)

// Store is a SQLite implementation of storage.Store.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New opens (or creates) the database at dbPath and initializes the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS members (
			id TEXT PRIMARY KEY,
			family_id TEXT NOT NULL,
			name TEXT NOT NULL,
			role TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			family_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			starts_at TIMESTAMP NOT NULL,
			ends_at TIMESTAMP,
			category TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			family_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			due_at TIMESTAMP,
			priority TEXT NOT NULL DEFAULT 'medium',
			assignee_id TEXT NOT NULL DEFAULT '',
			completed INTEGER NOT NULL DEFAULT 0,
			completed_at TIMESTAMP,
			created_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS shopping_items (
			id TEXT PRIMARY KEY,
			family_id TEXT NOT NULL,
			name TEXT NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 1,
			purchased INTEGER NOT NULL DEFAULT 0,
			purchased_at TIMESTAMP,
			purchased_by TEXT NOT NULL DEFAULT '',
			actual_price TEXT NOT NULL DEFAULT '',
			expense_id TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS expenses (
			id TEXT PRIMARY KEY,
			family_id TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			amount TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			store TEXT NOT NULL DEFAULT '',
			spent_at TIMESTAMP NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			family_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			family_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			action_type TEXT NOT NULL,
			detail TEXT NOT NULL,
			source TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS usage_log (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			family_id TEXT NOT NULL,
			request_type TEXT NOT NULL,
			tokens INTEGER NOT NULL,
			response_time_ms INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_members_family ON members(family_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_family_start ON events(family_id, starts_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_family ON tasks(family_id)`,
		`CREATE INDEX IF NOT EXISTS idx_shopping_family ON shopping_items(family_id)`,
		`CREATE INDEX IF NOT EXISTS idx_expenses_family_spent ON expenses(family_id, spent_at)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_family ON conversations(family_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_family ON audit_log(family_id)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_family ON usage_log(family_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// --- Events ---

func (s *Store) ListEventsBetween(ctx context.Context, familyID string, from, to time.Time) ([]domain.Event, error) {
	query := `SELECT id, family_id, title, description, starts_at, ends_at, category, created_by, created_at, updated_at
	          FROM events WHERE family_id = ? AND starts_at >= ? AND starts_at < ?
	          ORDER BY starts_at ASC`

	rows, err := s.db.QueryContext(ctx, query, familyID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		var endsAt sql.NullTime
		if err := rows.Scan(&ev.ID, &ev.FamilyID, &ev.Title, &ev.Description, &ev.StartsAt,
			&endsAt, &ev.Category, &ev.CreatedBy, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.EndsAt = timePtr(endsAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *Store) GetEvent(ctx context.Context, familyID, id string) (*domain.Event, error) {
	query := `SELECT id, family_id, title, description, starts_at, ends_at, category, created_by, created_at, updated_at
	          FROM events WHERE family_id = ? AND id = ?`

	var ev domain.Event
	var endsAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, familyID, id).Scan(
		&ev.ID, &ev.FamilyID, &ev.Title, &ev.Description, &ev.StartsAt,
		&endsAt, &ev.Category, &ev.CreatedBy, &ev.CreatedAt, &ev.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	ev.EndsAt = timePtr(endsAt)
	return &ev, nil
}

func (s *Store) CreateEvent(ctx context.Context, ev *domain.Event) error {
	ev.CreatedAt = time.Now()
	ev.UpdatedAt = ev.CreatedAt

	query := `INSERT INTO events (id, family_id, title, description, starts_at, ends_at, category, created_by, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, ev.ID, ev.FamilyID, ev.Title, ev.Description,
		ev.StartsAt, nullTime(ev.EndsAt), ev.Category, ev.CreatedBy, ev.CreatedAt, ev.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

func (s *Store) UpdateEvent(ctx context.Context, ev *domain.Event) error {
	ev.UpdatedAt = time.Now()

	query := `UPDATE events SET title = ?, description = ?, starts_at = ?, ends_at = ?, category = ?, updated_at = ?
	          WHERE family_id = ? AND id = ?`
	res, err := s.db.ExecContext(ctx, query, ev.Title, ev.Description, ev.StartsAt,
		nullTime(ev.EndsAt), ev.Category, ev.UpdatedAt, ev.FamilyID, ev.ID)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return checkAffected(res)
}

func (s *Store) DeleteEvent(ctx context.Context, familyID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE family_id = ? AND id = ?`, familyID, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return checkAffected(res)
}

// --- Tasks ---

func (s *Store) ListTasks(ctx context.Context, familyID string) ([]domain.Task, error) {
	query := `SELECT id, family_id, title, description, due_at, priority, assignee_id, completed, completed_at, created_by, created_at, updated_at
	          FROM tasks WHERE family_id = ? ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var dueAt, completedAt sql.NullTime
	if err := row.Scan(&task.ID, &task.FamilyID, &task.Title, &task.Description, &dueAt,
		&task.Priority, &task.AssigneeID, &task.Completed, &completedAt,
		&task.CreatedBy, &task.CreatedAt, &task.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	task.DueAt = timePtr(dueAt)
	task.CompletedAt = timePtr(completedAt)
	return &task, nil
}

func (s *Store) GetTask(ctx context.Context, familyID, id string) (*domain.Task, error) {
	query := `SELECT id, family_id, title, description, due_at, priority, assignee_id, completed, completed_at, created_by, created_at, updated_at
	          FROM tasks WHERE family_id = ? AND id = ?`

	return scanTask(s.db.QueryRowContext(ctx, query, familyID, id))
}

func (s *Store) CreateTask(ctx context.Context, task *domain.Task) error {
	task.CreatedAt = time.Now()
	task.UpdatedAt = task.CreatedAt
	if task.Priority == "" {
		task.Priority = domain.PriorityMedium
	}

	query := `INSERT INTO tasks (id, family_id, title, description, due_at, priority, assignee_id, completed, completed_at, created_by, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, task.ID, task.FamilyID, task.Title, task.Description,
		nullTime(task.DueAt), task.Priority, task.AssigneeID, task.Completed,
		nullTime(task.CompletedAt), task.CreatedBy, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (s *Store) UpdateTask(ctx context.Context, task *domain.Task) error {
	task.UpdatedAt = time.Now()

	query := `UPDATE tasks SET title = ?, description = ?, due_at = ?, priority = ?, assignee_id = ?, completed = ?, completed_at = ?, updated_at = ?
	          WHERE family_id = ? AND id = ?`
	res, err := s.db.ExecContext(ctx, query, task.Title, task.Description, nullTime(task.DueAt),
		task.Priority, task.AssigneeID, task.Completed, nullTime(task.CompletedAt),
		task.UpdatedAt, task.FamilyID, task.ID)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return checkAffected(res)
}

func (s *Store) DeleteTask(ctx context.Context, familyID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE family_id = ? AND id = ?`, familyID, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return checkAffected(res)
}

// --- Shopping items ---

func (s *Store) ListShoppingItems(ctx context.Context, familyID string) ([]domain.ShoppingItem, error) {
	query := `SELECT id, family_id, name, quantity, purchased, purchased_at, purchased_by, actual_price, expense_id, created_by, created_at, updated_at
	          FROM shopping_items WHERE family_id = ? ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query shopping items: %w", err)
	}
	defer rows.Close()

	var items []domain.ShoppingItem
	for rows.Next() {
		item, err := scanShoppingItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func scanShoppingItem(row rowScanner) (*domain.ShoppingItem, error) {
	var item domain.ShoppingItem
	var purchasedAt sql.NullTime
	if err := row.Scan(&item.ID, &item.FamilyID, &item.Name, &item.Quantity, &item.Purchased,
		&purchasedAt, &item.PurchasedBy, &item.ActualPrice, &item.ExpenseID,
		&item.CreatedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan shopping item: %w", err)
	}
	item.PurchasedAt = timePtr(purchasedAt)
	return &item, nil
}

func (s *Store) GetShoppingItem(ctx context.Context, familyID, id string) (*domain.ShoppingItem, error) {
	query := `SELECT id, family_id, name, quantity, purchased, purchased_at, purchased_by, actual_price, expense_id, created_by, created_at, updated_at
	          FROM shopping_items WHERE family_id = ? AND id = ?`

	return scanShoppingItem(s.db.QueryRowContext(ctx, query, familyID, id))
}

func (s *Store) CreateShoppingItem(ctx context.Context, item *domain.ShoppingItem) error {
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	if item.Quantity <= 0 {
		item.Quantity = 1
	}

	query := `INSERT INTO shopping_items (id, family_id, name, quantity, purchased, purchased_at, purchased_by, actual_price, expense_id, created_by, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, item.ID, item.FamilyID, item.Name, item.Quantity,
		item.Purchased, nullTime(item.PurchasedAt), item.PurchasedBy, item.ActualPrice,
		item.ExpenseID, item.CreatedBy, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create shopping item: %w", err)
	}
	return nil
}

func (s *Store) UpdateShoppingItem(ctx context.Context, item *domain.ShoppingItem) error {
	item.UpdatedAt = time.Now()

	query := `UPDATE shopping_items SET name = ?, quantity = ?, purchased = ?, purchased_at = ?, purchased_by = ?, actual_price = ?, expense_id = ?, updated_at = ?
	          WHERE family_id = ? AND id = ?`
	res, err := s.db.ExecContext(ctx, query, item.Name, item.Quantity, item.Purchased,
		nullTime(item.PurchasedAt), item.PurchasedBy, item.ActualPrice, item.ExpenseID,
		item.UpdatedAt, item.FamilyID, item.ID)
	if err != nil {
		return fmt.Errorf("failed to update shopping item: %w", err)
	}
	return checkAffected(res)
}

func (s *Store) DeleteShoppingItem(ctx context.Context, familyID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM shopping_items WHERE family_id = ? AND id = ?`, familyID, id)
	if err != nil {
		return fmt.Errorf("failed to delete shopping item: %w", err)
	}
	return checkAffected(res)
}

// --- Expenses ---

func (s *Store) ListExpensesBetween(ctx context.Context, familyID string, from, to time.Time) ([]domain.Expense, error) {
	query := `SELECT id, family_id, description, amount, category, store, spent_at, created_by, created_at, updated_at
	          FROM expenses WHERE family_id = ? AND spent_at >= ? AND spent_at < ?
	          ORDER BY spent_at ASC`

	rows, err := s.db.QueryContext(ctx, query, familyID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []domain.Expense
	for rows.Next() {
		var exp domain.Expense
		if err := rows.Scan(&exp.ID, &exp.FamilyID, &exp.Description, &exp.Amount, &exp.Category,
			&exp.Store, &exp.SpentAt, &exp.CreatedBy, &exp.CreatedAt, &exp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, exp)
	}
	return expenses, rows.Err()
}

func (s *Store) GetExpense(ctx context.Context, familyID, id string) (*domain.Expense, error) {
	query := `SELECT id, family_id, description, amount, category, store, spent_at, created_by, created_at, updated_at
	          FROM expenses WHERE family_id = ? AND id = ?`

	var exp domain.Expense
	err := s.db.QueryRowContext(ctx, query, familyID, id).Scan(
		&exp.ID, &exp.FamilyID, &exp.Description, &exp.Amount, &exp.Category,
		&exp.Store, &exp.SpentAt, &exp.CreatedBy, &exp.CreatedAt, &exp.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return &exp, nil
}

func (s *Store) CreateExpense(ctx context.Context, exp *domain.Expense) error {
	exp.CreatedAt = time.Now()
	exp.UpdatedAt = exp.CreatedAt
	if exp.SpentAt.IsZero() {
		exp.SpentAt = exp.CreatedAt
	}

	query := `INSERT INTO expenses (id, family_id, description, amount, category, store, spent_at, created_by, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, exp.ID, exp.FamilyID, exp.Description, exp.Amount,
		exp.Category, exp.Store, exp.SpentAt, exp.CreatedBy, exp.CreatedAt, exp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

func (s *Store) UpdateExpense(ctx context.Context, exp *domain.Expense) error {
	exp.UpdatedAt = time.Now()

	query := `UPDATE expenses SET description = ?, amount = ?, category = ?, store = ?, spent_at = ?, updated_at = ?
	          WHERE family_id = ? AND id = ?`
	res, err := s.db.ExecContext(ctx, query, exp.Description, exp.Amount, exp.Category,
		exp.Store, exp.SpentAt, exp.UpdatedAt, exp.FamilyID, exp.ID)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	return checkAffected(res)
}

func (s *Store) DeleteExpense(ctx context.Context, familyID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE family_id = ? AND id = ?`, familyID, id)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	return checkAffected(res)
}

// --- Members ---

func (s *Store) ListMembers(ctx context.Context, familyID string) ([]domain.Member, error) {
	query := `SELECT id, family_id, name, role, created_at FROM members WHERE family_id = ? ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ID, &m.FamilyID, &m.Name, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *Store) GetMember(ctx context.Context, familyID, userID string) (*domain.Member, error) {
	query := `SELECT id, family_id, name, role, created_at FROM members WHERE family_id = ? AND id = ?`

	var m domain.Member
	err := s.db.QueryRowContext(ctx, query, familyID, userID).Scan(
		&m.ID, &m.FamilyID, &m.Name, &m.Role, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return &m, nil
}

func (s *Store) CreateMember(ctx context.Context, m *domain.Member) error {
	m.CreatedAt = time.Now()

	query := `INSERT INTO members (id, family_id, name, role, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, m.ID, m.FamilyID, m.Name, m.Role, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

// --- Conversations ---

func (s *Store) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	conv.CreatedAt = time.Now()
	conv.UpdatedAt = conv.CreatedAt

	query := `INSERT INTO conversations (id, family_id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, conv.ID, conv.FamilyID, conv.UserID, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, familyID, id string) (*domain.Conversation, error) {
	query := `SELECT id, family_id, user_id, created_at, updated_at FROM conversations WHERE family_id = ? AND id = ?`

	var conv domain.Conversation
	err := s.db.QueryRowContext(ctx, query, familyID, id).Scan(
		&conv.ID, &conv.FamilyID, &conv.UserID, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	messages, err := s.getMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Messages = messages
	return &conv, nil
}

func (s *Store) getMessages(ctx context.Context, convID string) ([]domain.Message, error) {
	query := `SELECT id, conversation_id, role, content, created_at
	          FROM messages WHERE conversation_id = ? ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, convID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *Store) AppendMessage(ctx context.Context, familyID, conversationID string, msg *domain.Message) error {
	// The conversation lookup doubles as the family-scope check.
	var owner string
	err := s.db.QueryRowContext(ctx,
		`SELECT family_id FROM conversations WHERE family_id = ? AND id = ?`,
		familyID, conversationID).Scan(&owner)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check conversation: %w", err)
	}

	msg.ConversationID = conversationID
	msg.CreatedAt = time.Now()

	query := `INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.CreatedAt); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, msg.CreatedAt, conversationID)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

// --- Audit and usage logs ---

func (s *Store) AppendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	entry.CreatedAt = time.Now()

	query := `INSERT INTO audit_log (id, family_id, user_id, action_type, detail, source, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, entry.ID, entry.FamilyID, entry.UserID,
		entry.ActionType, entry.Detail, entry.Source, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *Store) AppendUsage(ctx context.Context, entry *domain.UsageEntry) error {
	entry.CreatedAt = time.Now()

	query := `INSERT INTO usage_log (id, user_id, family_id, request_type, tokens, response_time_ms, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, entry.ID, entry.UserID, entry.FamilyID,
		entry.RequestType, entry.Tokens, entry.ResponseTime.Milliseconds(), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append usage entry: %w", err)
	}
	return nil
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

