package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/nidohq/nido/internal/domain"
	"github.com/nidohq/nido/internal/i18n"
	"github.com/nidohq/nido/internal/session"
	"github.com/nidohq/nido/internal/storage"
	"github.com/nidohq/nido/internal/tokens"
)

const (
	auditSource      = "assistant"
	auditDetailLimit = 500
	descriptionLimit = 200
	shoppingCategory = "shopping"
)

// ConfirmRequest is the explicit second request that authorizes a
// previously proposed action. The client resubmits type and data; the
// engine trusts neither and re-validates both.
type ConfirmRequest struct {
	ActionType     string
	ActionData     json.RawMessage
	ConversationID string
	Language       i18n.Lang
}

// Result is the user-facing outcome of a confirmation.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Engine executes confirmed actions. Proposed actions have no state
// here: a proposal exists only in the chat reply until the client
// confirms it, and a confirmation is consumed exactly once.
type Engine struct {
	store   storage.Store
	counter tokens.Counter
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// NewEngine creates an execution engine. now and newID are injectable
// for tests; nil means time.Now and uuid.NewString.
func NewEngine(store storage.Store, counter tokens.Counter, logger *slog.Logger, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:   store,
		counter: counter,
		logger:  logger,
		now:     now,
		newID:   uuid.NewString,
	}
}

// Confirm runs the full confirmation flow: authorization gate, dispatch,
// audit, telemetry, transcript note. The returned Result is always
// user-presentable; internal errors never leak into it.
func (e *Engine) Confirm(ctx context.Context, ident session.Identity, req ConfirmRequest) Result {
	start := e.now()
	lang := req.Language

	actionType, ok := NormalizeActionType(req.ActionType)
	if !ok {
		// Unknown types are rejected before any store access, audit included.
		return Result{Success: false, Message: i18n.T(lang, "not_supported")}
	}

	if deniedForChild(ident.Role, actionType) {
		// Denials are likewise not audited: nothing was attempted.
		return Result{Success: false, Message: i18n.T(lang, "permission_denied")}
	}

	data, message, err := e.dispatch(ctx, ident, actionType, req.ActionData, lang)
	success := err == nil

	e.audit(ctx, ident, actionType, req.ActionData, success)
	e.recordUsage(ctx, ident, "action_confirmed:"+string(actionType), string(req.ActionData), e.now().Sub(start))

	if !success {
		return Result{Success: false, Message: e.failureMessage(lang, err)}
	}

	if req.ConversationID != "" {
		note := &domain.Message{ID: e.newID(), Role: "assistant", Content: message}
		if err := e.store.AppendMessage(ctx, ident.FamilyID, req.ConversationID, note); err != nil {
			e.logger.Warn("failed to append confirmation note",
				slog.String("conversation_id", req.ConversationID),
				slog.String("error", err.Error()))
		}
	}

	return Result{Success: true, Message: message, Data: data}
}

// failureMessage maps an execution error to a localized user message.
// The raw error is logged, never returned.
func (e *Engine) failureMessage(lang i18n.Lang, err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return i18n.T(lang, "not_found")
	case errors.Is(err, domain.ErrAlreadyPurchased):
		return i18n.T(lang, "already_purchased")
	case errors.Is(err, domain.ErrInvalidPayload):
		return i18n.T(lang, "invalid_payload")
	default:
		e.logger.Error("action execution failed", slog.String("error", err.Error()))
		return i18n.T(lang, "execution_failed")
	}
}

// audit writes one entry per dispatched action regardless of outcome.
// Audit failures are logged and never surfaced to the caller.
func (e *Engine) audit(ctx context.Context, ident session.Identity, actionType ActionType, raw json.RawMessage, success bool) {
	detail, err := json.Marshal(map[string]any{
		"actionData": json.RawMessage(normalizeRaw(raw)),
		"success":    success,
	})
	if err != nil {
		detail = []byte(fmt.Sprintf(`{"success":%t}`, success))
	}
	text := string(detail)
	if len(text) > auditDetailLimit {
		text = text[:auditDetailLimit]
	}

	entry := &domain.AuditEntry{
		ID:         e.newID(),
		FamilyID:   ident.FamilyID,
		UserID:     ident.UserID,
		ActionType: string(actionType),
		Detail:     text,
		Source:     auditSource,
	}
	if err := e.store.AppendAudit(ctx, entry); err != nil {
		e.logger.Error("failed to write audit entry",
			slog.String("action_type", string(actionType)),
			slog.String("error", err.Error()))
	}
}

func normalizeRaw(raw json.RawMessage) []byte {
	if json.Valid(raw) {
		return raw
	}
	quoted, err := json.Marshal(string(raw))
	if err != nil {
		return []byte("null")
	}
	return quoted
}

// recordUsage appends best-effort telemetry; failures are swallowed.
func (e *Engine) recordUsage(ctx context.Context, ident session.Identity, requestType, text string, elapsed time.Duration) {
	entry := &domain.UsageEntry{
		ID:           e.newID(),
		UserID:       ident.UserID,
		FamilyID:     ident.FamilyID,
		RequestType:  requestType,
		Tokens:       e.counter.Count(text),
		ResponseTime: elapsed,
	}
	if err := e.store.AppendUsage(ctx, entry); err != nil {
		e.logger.Warn("failed to write usage entry", slog.String("error", err.Error()))
	}
}

// dispatch routes a confirmed action to its mutation. It returns the
// result data, the localized success message, or an error.
func (e *Engine) dispatch(ctx context.Context, ident session.Identity, actionType ActionType, raw json.RawMessage, lang i18n.Lang) (any, string, error) {
	switch actionType {
	case ActionCreateEvent:
		return e.createEvent(ctx, ident, raw, lang)
	case ActionUpdateEvent:
		return e.updateEvent(ctx, ident, raw, lang)
	case ActionDeleteEvent:
		return e.deleteByID(ctx, ident, raw, lang, "event_deleted", e.store.DeleteEvent)
	case ActionCreateTask:
		return e.createTask(ctx, ident, raw, lang)
	case ActionUpdateTask:
		return e.updateTask(ctx, ident, raw, lang)
	case ActionCompleteTask:
		return e.completeTask(ctx, ident, raw, lang)
	case ActionDeleteTask:
		return e.deleteByID(ctx, ident, raw, lang, "task_deleted", e.store.DeleteTask)
	case ActionCreateExpense:
		return e.createExpense(ctx, ident, raw, lang)
	case ActionUpdateExpense:
		return e.updateExpense(ctx, ident, raw, lang)
	case ActionDeleteExpense:
		return e.deleteByID(ctx, ident, raw, lang, "expense_deleted", e.store.DeleteExpense)
	case ActionAddShoppingItem:
		return e.addShoppingItem(ctx, ident, raw, lang)
	case ActionAddShoppingItems:
		return e.addShoppingItems(ctx, ident, raw, lang)
	case ActionUpdateShoppingItem:
		return e.updateShoppingItem(ctx, ident, raw, lang)
	case ActionDeleteShoppingItem:
		return e.deleteByID(ctx, ident, raw, lang, "shopping_removed", e.store.DeleteShoppingItem)
	case ActionCompletePurchase:
		return e.completePurchase(ctx, ident, raw, lang)
	default:
		return nil, "", domain.ErrUnsupportedAction
	}
}

func (e *Engine) deleteByID(ctx context.Context, ident session.Identity, raw json.RawMessage, lang i18n.Lang, msgKey string, del func(context.Context, string, string) error) (any, string, error) {
	payload, err := decodePayload[idPayload](raw)
	if err != nil {
		return nil, "", err
	}
	if payload.ID == "" {
		return nil, "", domain.ErrInvalidPayload
	}
	if err := del(ctx, ident.FamilyID, payload.ID); err != nil {
		return nil, "", err
	}
	return nil, i18n.T(lang, msgKey), nil
}

// --- Events ---

func (e *Engine) createEvent(ctx context.Context, ident session.Identity, raw json.RawMessage, lang i18n.Lang) (any, string, error) {
	payload, err := decodePayload[createEventPayload](raw)
	if err != nil {
		return nil, "", err
	}
	if payload.Title == "" || payload.Start == "" {
		return nil, "", domain.ErrInvalidPayload
	}
	start, err := parseWhen(payload.Start)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	ev := &domain.Event{
		ID:          e.newID(),
		FamilyID:    ident.FamilyID,
		Title:       payload.Title,
		Description: payload.Description,
		StartsAt:    start,
		Category:    payload.Category,
		CreatedBy:   ident.UserID,
	}
	if payload.End != "" {
		end, err := parseWhen(payload.End)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		ev.EndsAt = &end
	}

	if err := e.store.CreateEvent(ctx, ev); err != nil {
		return nil, "", err
	}
	return map[string]any{"id": ev.ID}, i18n.T(lang, "event_created", ev.Title), nil
}

func (e *Engine) updateEvent(ctx context.Context, ident session.Identity, raw json.RawMessage, lang i18n.Lang) (any, string, error) {
	payload, err := decodePayload[updateEventPayload](raw)
	if err != nil {
		return nil, "", err
	}
	if payload.ID == "" {
		return nil, "", domain.ErrInvalidPayload
	}

	ev, err := e.store.GetEvent(ctx, ident.FamilyID, payload.ID)
	if err != nil {
		return nil, "", err
	}
	if payload.Title != nil {
		ev.Title = *payload.Title
	}
	if payload.Description != nil {
		ev.Description = *payload.Description
	}
	if payload.Category != nil {
		ev.Category = *payload.Category
	}
	if payload.Start != nil {
		start, err := parseWhen(*payload.Start)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		ev.StartsAt = start
	}
	if payload.End != nil {
		end, err := parseWhen(*payload.End)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		ev.EndsAt = &end
	}

	if err := e.store.UpdateEvent(ctx, ev); err != nil {
		return nil, "", err
	}
	return map[string]any{"id": ev.ID}, i18n.T(lang, "event_updated"), nil
}

// --- Tasks ---

func (e *Engine) createTask(ctx context.Context, ident session.Identity, raw json.RawMessage, lang i18n.Lang) (any, string, error) {
	payload, err := decodePayload[createTaskPayload](raw)
	if err != nil {
		return nil, "", err
	}
	if payload.Title == "" {
		return nil, "", domain.ErrInvalidPayload
	}

	task := &domain.Task{
		ID:          e.newID(),
		FamilyID:    ident.FamilyID,
		Title:       payload.Title,
		Description: payload.Description,
		Priority:    normalizePriority(payload.Priority),
		CreatedBy:   ident.UserID,
	}
	if payload.Due != "" {
		due, err := parseWhen(payload.Due)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		task.DueAt = &due
	}
	if payload.Assignee != "" {
		task.AssigneeID = e.resolveAssignee(ctx, ident.FamilyID, payload.Assignee)
	}

	if err := e.store.CreateTask(ctx, task); err != nil {
		return nil, "", err
	}
	return map[string]any{"id": task.ID}, i18n.T(lang, "task_created", task.Title), nil
}

func (e *Engine) updateTask(ctx context.Context, ident session.Identity, raw json.RawMessage, lang i18n.Lang) (any, string, error) {
	payload, err := decodePayload[updateTaskPayload](raw)
	if err != nil {
		return nil, "", err
	}
	if payload.ID == "" {
		return nil, "", domain.ErrInvalidPayload
	}

	task, err := e.store.GetTask(ctx, ident.FamilyID, payload.ID)
	if err != nil {
		return nil, "", err
	}
	if payload.Title != nil {
		task.Title = *payload.Title
	}
	if payload.Description != nil {
		task.Description = *payload.Description
	}
	if payload.Priority != nil {
		task.Priority = normalizePriority(*payload.Priority)
	}
	if payload.Due != nil {
		if *payload.Due == "" {
			task.DueAt = nil
		} else {
			due, err := parseWhen(*payload.Due)
			if err != nil {
				return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
			}
			task.DueAt = &due
		}
	}
	if payload.Assignee != nil {
		task.AssigneeID = e.resolveAssignee(ctx, ident.FamilyID, *payload.Assignee)
	}

	if err := e.store.UpdateTask(ctx, task); err != nil {
		return nil, "", err
	}
	return map[string]any{"id": task.ID}, i18n.T(lang, "task_updated"), nil
}

func (e *Engine) completeTask(ctx context.Context, ident session.Identity, raw json.RawMessage, lang i18n.Lang) (any, string, error) {
	payload, err := decodePayload[idPayload](raw)
	if err != nil {
		return nil, "", err
	}
	if payload.ID == "" {
		return nil, "", domain.ErrInvalidPayload
	}

	task, err := e.store.GetTask(ctx, ident.FamilyID, payload.ID)
	if err != nil {
		return nil, "", err
	}
	now := e.now()
	task.Completed = true
	task.CompletedAt = &now

	if err := e.store.UpdateTask(ctx, task); err != nil {
		return nil, "", err
	}
	return map[string]any{"id": task.ID}, i18n.T(lang, "task_completed"), nil
}

// resolveAssignee maps a display name from the model onto a member id.
// An unknown name leaves the task unassigned rather than failing the
// whole action.
func (e *Engine) resolveAssignee(ctx context.Context, familyID, name string) string {
	members, err := e.store.ListMembers(ctx, familyID)
	if err != nil {
		e.logger.Warn("failed to resolve assignee", slog.String("error", err.Error()))
		return ""
	}
	for _, m := range members {
		if strings.EqualFold(m.Name, name) {
			return m.ID
		}
	}
	return ""
}

func normalizePriority(p string) string {
	switch strings.ToLower(p) {
	case domain.PriorityLow:
		return domain.PriorityLow
	case domain.PriorityHigh:
		return domain.PriorityHigh
	default:
		return domain.PriorityMedium
	}
}

// --- Expenses ---

func (e *Engine) createExpense(ctx context.Context, ident session.Identity, raw json.RawMessage, lang i18n.Lang) (any, string, error) {
	payload, err := decodePayload[createExpensePayload](raw)
	if err != nil {
		return nil, "", err
	}
	if payload.Amount == "" {
		return nil, "", domain.ErrInvalidPayload
	}

	exp := &domain.Expense{
		ID:          e.newID(),
		FamilyID:    ident.FamilyID,
		Description: payload.Description,
		Amount:      payload.Amount.String(),
		Category:    payload.Category,
		CreatedBy:   ident.UserID,
	}
	if payload.Date != "" {
		spent, err := parseWhen(payload.Date)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		exp.SpentAt = spent
	}

	if err := e.store.CreateExpense(ctx, exp); err != nil {
		return nil, "", err
	}
	return map[string]any{"id": exp.ID}, i18n.T(lang, "expense_created", exp.Amount), nil
}

func (e *Engine) updateExpense(ctx context.Context, ident session.Identity, raw json.RawMessage, lang i18n.Lang) (any, string, error) {
	payload, err := decodePayload[updateExpensePayload](raw)
	if err != nil {
		return nil, "", err
	}
	if payload.ID == "" {
		return nil, "", domain.ErrInvalidPayload
	}

	exp, err := e.store.GetExpense(ctx, ident.FamilyID, payload.ID)
	if err != nil {
		return nil, "", err
	}
	if payload.Amount != nil {
		exp.Amount = payload.Amount.String()
	}
	if payload.Category != nil {
		exp.Category = *payload.Category
	}
	if payload.Description != nil {
		exp.Description = *payload.Description
	}

	if err := e.store.UpdateExpense(ctx, exp); err != nil {
		return nil, "", err
	}
	return map[string]any{"id": exp.ID}, i18n.T(lang, "expense_updated"), nil
}

// --- Shopping ---

func (e *Engine) addShoppingItem(ctx context.Context, ident session.Identity, raw json.RawMessage, lang i18n.Lang) (any, string, error) {
	payload, err := decodePayload[addShoppingItemPayload](raw)
	if err != nil {
		return nil, "", err
	}
	if payload.Name == "" {
		return nil, "", domain.ErrInvalidPayload
	}

	item := &domain.ShoppingItem{
		ID:        e.newID(),
		FamilyID:  ident.FamilyID,
		Name:      payload.Name,
		Quantity:  payload.Quantity,
		CreatedBy: ident.UserID,
	}
	if err := e.store.CreateShoppingItem(ctx, item); err != nil {
		return nil, "", err
	}
	return map[string]any{"id": item.ID}, i18n.T(lang, "shopping_added", item.Name), nil
}

func (e *Engine) addShoppingItems(ctx context.Context, ident session.Identity, raw json.RawMessage, lang i18n.Lang) (any, string, error) {
	payload, err := decodePayload[addShoppingItemsPayload](raw)
	if err != nil {
		return nil, "", err
	}
	// A missing or empty array is a declared failure, not a silent no-op.
	if len(payload.Items) == 0 {
		return nil, "", domain.ErrInvalidPayload
	}

	var created []string
	var errs *multierror.Error
	for _, entry := range payload.Items {
		if entry.Name == "" {
			errs = multierror.Append(errs, domain.ErrInvalidPayload)
			continue
		}
		item := &domain.ShoppingItem{
			ID:        e.newID(),
			FamilyID:  ident.FamilyID,
			Name:      entry.Name,
			Quantity:  entry.Quantity,
			CreatedBy: ident.UserID,
		}
		if err := e.store.CreateShoppingItem(ctx, item); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		created = append(created, item.ID)
	}

	if len(created) == 0 {
		return nil, "", fmt.Errorf("no items created: %w", errs.ErrorOrNil())
	}
	if err := errs.ErrorOrNil(); err != nil {
		e.logger.Warn("partial shopping batch", slog.String("error", err.Error()))
	}
	return map[string]any{"ids": created}, i18n.T(lang, "shopping_added_n", len(created)), nil
}

func (e *Engine) updateShoppingItem(ctx context.Context, ident session.Identity, raw json.RawMessage, lang i18n.Lang) (any, string, error) {
	payload, err := decodePayload[updateShoppingItemPayload](raw)
	if err != nil {
		return nil, "", err
	}
	if payload.ID == "" {
		return nil, "", domain.ErrInvalidPayload
	}

	item, err := e.store.GetShoppingItem(ctx, ident.FamilyID, payload.ID)
	if err != nil {
		return nil, "", err
	}
	if payload.Name != nil {
		item.Name = *payload.Name
	}
	if payload.Quantity != nil {
		item.Quantity = *payload.Quantity
	}

	if err := e.store.UpdateShoppingItem(ctx, item); err != nil {
		return nil, "", err
	}
	return map[string]any{"id": item.ID}, i18n.T(lang, "shopping_updated"), nil
}

// completePurchase is the one composite action. The expense is created
// before any item is marked purchased so an item never references a
// nonexistent expense; item updates then run sequentially.
func (e *Engine) completePurchase(ctx context.Context, ident session.Identity, raw json.RawMessage, lang i18n.Lang) (any, string, error) {
	payload, err := decodePayload[completePurchasePayload](raw)
	if err != nil {
		return nil, "", err
	}
	if len(payload.Items) == 0 || payload.TotalAmount == "" {
		return nil, "", domain.ErrInvalidPayload
	}

	type resolved struct {
		item  *domain.ShoppingItem
		price Amount
	}
	var (
		toPurchase       []resolved
		names            []string
		alreadyPurchased bool
		errs             *multierror.Error
	)
	for _, entry := range payload.Items {
		item, err := e.store.GetShoppingItem(ctx, ident.FamilyID, entry.ID)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("item %s: %w", entry.ID, err))
			continue
		}
		if item.Purchased {
			alreadyPurchased = true
			errs = multierror.Append(errs, fmt.Errorf("item %s: %w", entry.ID, domain.ErrAlreadyPurchased))
			continue
		}
		toPurchase = append(toPurchase, resolved{item: item, price: entry.ActualPrice})
		names = append(names, item.Name)
	}

	if len(toPurchase) == 0 {
		// Re-confirming an executed purchase lands here: every item is
		// already purchased, so no second expense is ever created.
		if alreadyPurchased {
			return nil, "", fmt.Errorf("%w: %v", domain.ErrAlreadyPurchased, errs.ErrorOrNil())
		}
		return nil, "", fmt.Errorf("%w: %v", domain.ErrNotFound, errs.ErrorOrNil())
	}

	description := strings.Join(names, ", ")
	if payload.Store != "" {
		description = payload.Store + ": " + description
	}
	if len(description) > descriptionLimit {
		description = description[:descriptionLimit]
	}

	expense := &domain.Expense{
		ID:          e.newID(),
		FamilyID:    ident.FamilyID,
		Description: description,
		Amount:      payload.TotalAmount.String(),
		Category:    shoppingCategory,
		Store:       payload.Store,
		SpentAt:     e.now(),
		CreatedBy:   ident.UserID,
	}
	if err := e.store.CreateExpense(ctx, expense); err != nil {
		return nil, "", err
	}

	now := e.now()
	var purchasedIDs []string
	for _, r := range toPurchase {
		r.item.Purchased = true
		r.item.PurchasedAt = &now
		r.item.PurchasedBy = ident.UserID
		r.item.ActualPrice = r.price.String()
		r.item.ExpenseID = expense.ID
		if err := e.store.UpdateShoppingItem(ctx, r.item); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("item %s: %w", r.item.ID, err))
			continue
		}
		purchasedIDs = append(purchasedIDs, r.item.ID)
	}
	if err := errs.ErrorOrNil(); err != nil {
		e.logger.Warn("partial purchase", slog.String("error", err.Error()))
	}

	data := map[string]any{"expenseId": expense.ID, "itemIds": purchasedIDs}
	return data, i18n.T(lang, "purchase_done", len(purchasedIDs), expense.Amount), nil
}

// parseWhen accepts the timestamp shapes the model is taught to emit.
func parseWhen(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		"2006-01-02",
	} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
