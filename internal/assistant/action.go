package assistant

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/nidohq/nido/internal/domain"
)

// ActionType identifies one of the closed set of assistant actions.
type ActionType string

const (
	ActionCreateEvent        ActionType = "create_event"
	ActionUpdateEvent        ActionType = "update_event"
	ActionDeleteEvent        ActionType = "delete_event"
	ActionCreateTask         ActionType = "create_task"
	ActionUpdateTask         ActionType = "update_task"
	ActionCompleteTask       ActionType = "complete_task"
	ActionDeleteTask         ActionType = "delete_task"
	ActionCreateExpense      ActionType = "create_expense"
	ActionUpdateExpense      ActionType = "update_expense"
	ActionDeleteExpense      ActionType = "delete_expense"
	ActionAddShoppingItem    ActionType = "add_shopping_item"
	ActionAddShoppingItems   ActionType = "add_shopping_items"
	ActionUpdateShoppingItem ActionType = "update_shopping_item"
	ActionDeleteShoppingItem ActionType = "delete_shopping_item"
	ActionCompletePurchase   ActionType = "complete_purchase"
)

// aliases maps legacy action names the model may still emit onto the
// canonical types.
var aliases = map[string]ActionType{
	"add_expense":     ActionCreateExpense,
	"add_shopping":    ActionAddShoppingItem,
	"remove_shopping": ActionDeleteShoppingItem,
}

// supportedActions is the closed action set in prompt-enumeration order.
var supportedActions = []ActionType{
	ActionCreateEvent, ActionUpdateEvent, ActionDeleteEvent,
	ActionCreateTask, ActionUpdateTask, ActionCompleteTask, ActionDeleteTask,
	ActionCreateExpense, ActionUpdateExpense, ActionDeleteExpense,
	ActionAddShoppingItem, ActionAddShoppingItems, ActionUpdateShoppingItem, ActionDeleteShoppingItem,
	ActionCompletePurchase,
}

// NormalizeActionType resolves raw (including aliases) to a canonical
// action type. ok is false for anything outside the closed set.
func NormalizeActionType(raw string) (ActionType, bool) {
	raw = strings.TrimSpace(raw)
	if canonical, ok := aliases[raw]; ok {
		return canonical, true
	}
	t := ActionType(raw)
	for _, supported := range supportedActions {
		if t == supported {
			return t, true
		}
	}
	return "", false
}

// deniedForChild reports whether role may not execute actionType. Every
// supported action mutates family data, so the child deny-list covers
// the whole set. The prompt's advisory clause only hints at this; the
// check here is the binding enforcement.
func deniedForChild(role domain.Role, actionType ActionType) bool {
	_ = actionType
	return role == domain.RoleChild
}

// Amount is a decimal monetary value carried as its literal string
// form. It accepts both JSON numbers and strings and never round-trips
// through a binary float.
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		var unquoted string
		if err := json.Unmarshal(data, &unquoted); err != nil {
			return err
		}
		s = unquoted
	}
	s = strings.TrimSpace(s)
	if _, ok := new(big.Rat).SetString(s); !ok {
		return fmt.Errorf("invalid decimal amount %q", s)
	}
	*a = Amount(s)
	return nil
}

func (a Amount) String() string { return string(a) }

// Action payloads, one shape per variant of the tagged union. JSON
// field names here are the contract shared with the prompt grammar;
// drift between the two silently breaks parsing.

type createEventPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Start       string `json:"start"`
	End         string `json:"end"`
}

type updateEventPayload struct {
	ID          string  `json:"id"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Start       *string `json:"start"`
	End         *string `json:"end"`
}

type idPayload struct {
	ID string `json:"id"`
}

type createTaskPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Due         string `json:"due"`
	Priority    string `json:"priority"`
	Assignee    string `json:"assignee"`
}

type updateTaskPayload struct {
	ID          string  `json:"id"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Due         *string `json:"due"`
	Priority    *string `json:"priority"`
	Assignee    *string `json:"assignee"`
}

type createExpensePayload struct {
	Amount      Amount `json:"amount"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

type updateExpensePayload struct {
	ID          string  `json:"id"`
	Amount      *Amount `json:"amount"`
	Category    *string `json:"category"`
	Description *string `json:"description"`
}

type addShoppingItemPayload struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type addShoppingItemsPayload struct {
	Items []addShoppingItemPayload `json:"items"`
}

type updateShoppingItemPayload struct {
	ID       string  `json:"id"`
	Name     *string `json:"name"`
	Quantity *int    `json:"quantity"`
}

type purchaseItem struct {
	ID          string `json:"id"`
	ActualPrice Amount `json:"actualPrice"`
}

type completePurchasePayload struct {
	Items       []purchaseItem `json:"items"`
	TotalAmount Amount         `json:"totalAmount"`
	Store       string         `json:"store"`
}

// decodePayload unmarshals raw into T, mapping any JSON error to
// domain.ErrInvalidPayload so dispatch rejects malformed proposals
// uniformly.
func decodePayload[T any](raw json.RawMessage) (*T, error) {
	if len(raw) == 0 {
		return nil, domain.ErrInvalidPayload
	}
	var payload T
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return &payload, nil
}
