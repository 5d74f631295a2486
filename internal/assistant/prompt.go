package assistant

import (
	"fmt"
	"strings"
	"time"

	"github.com/nidohq/nido/internal/domain"
	"github.com/nidohq/nido/internal/i18n"
)

// actionGrammar enumerates every supported action with its exact field
// names. This block is the contract the parser and the execution engine
// both depend on; the field names must match the payload structs in
// action.go exactly. It is rendered verbatim in every locale: the
// grammar is protocol, not prose.
var actionGrammar = []struct {
	Type   ActionType
	Fields string
}{
	{ActionCreateEvent, `{"title": string, "start": "YYYY-MM-DDTHH:MM", "end"?: "YYYY-MM-DDTHH:MM", "category"?: string, "description"?: string}`},
	{ActionUpdateEvent, `{"id": string, "title"?: string, "start"?: "YYYY-MM-DDTHH:MM", "end"?: "YYYY-MM-DDTHH:MM", "category"?: string, "description"?: string}`},
	{ActionDeleteEvent, `{"id": string}`},
	{ActionCreateTask, `{"title": string, "due"?: "YYYY-MM-DD", "priority"?: "low"|"medium"|"high", "assignee"?: string, "description"?: string}`},
	{ActionUpdateTask, `{"id": string, "title"?: string, "due"?: "YYYY-MM-DD", "priority"?: string, "assignee"?: string, "description"?: string}`},
	{ActionCompleteTask, `{"id": string}`},
	{ActionDeleteTask, `{"id": string}`},
	{ActionCreateExpense, `{"amount": decimal string, "category"?: string, "description"?: string, "date"?: "YYYY-MM-DD"}`},
	{ActionUpdateExpense, `{"id": string, "amount"?: decimal string, "category"?: string, "description"?: string}`},
	{ActionDeleteExpense, `{"id": string}`},
	{ActionAddShoppingItem, `{"name": string, "quantity"?: number}`},
	{ActionAddShoppingItems, `{"items": [{"name": string, "quantity"?: number}, ...]}`},
	{ActionUpdateShoppingItem, `{"id": string, "name"?: string, "quantity"?: number}`},
	{ActionDeleteShoppingItem, `{"id": string}`},
	{ActionCompletePurchase, `{"items": [{"id": string, "actualPrice": decimal}, ...], "totalAmount": decimal, "store"?: string}`},
}

// ComposeSystemPrompt renders the snapshot digest plus the action
// rulebook into the single system instruction for one chat turn. Only
// sections with content are included; empty lists are omitted entirely.
func ComposeSystemPrompt(snap *Snapshot, now time.Time) string {
	lang := snap.Language
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", i18n.T(lang, "prompt_intro", snap.UserName, now.Format("2006-01-02")))

	writeEventSection(&b, lang, "prompt_today", snap.TodayEvents)
	writeEventSection(&b, lang, "prompt_upcoming", snap.UpcomingEvents)
	writeTaskSection(&b, lang, "prompt_pending", snap.PendingTasks)
	writeTaskSection(&b, lang, "prompt_overdue", snap.OverdueTasks)

	if len(snap.ShoppingList) > 0 {
		fmt.Fprintf(&b, "\n%s:\n", i18n.T(lang, "prompt_shopping"))
		for _, item := range snap.ShoppingList {
			fmt.Fprintf(&b, "- %s x%d\n", item.Name, item.Quantity)
		}
	}

	if snap.MonthlyBudget.Total != "" && snap.MonthlyBudget.Total != "0.00" {
		fmt.Fprintf(&b, "\n%s: %s\n", i18n.T(lang, "prompt_budget"), snap.MonthlyBudget.Total)
		for category, sum := range snap.MonthlyBudget.ByCategory {
			fmt.Fprintf(&b, "- %s: %s\n", category, sum)
		}
	}

	if len(snap.FamilyMembers) > 0 {
		fmt.Fprintf(&b, "\n%s:\n", i18n.T(lang, "prompt_members"))
		for _, m := range snap.FamilyMembers {
			fmt.Fprintf(&b, "- %s (%s, id=%s)\n", m.Name, m.Role, m.ID)
		}
	}

	keyword := i18n.MarkerKeyword(lang)
	b.WriteString("\n## Action protocol\n")
	fmt.Fprintf(&b, "When the user asks you to change family data, you NEVER perform the change yourself. "+
		"Instead you end your reply with exactly one proposal marker on its own line:\n")
	fmt.Fprintf(&b, "[%s: <action_type> | <json>]\n", keyword)
	b.WriteString("The user must confirm the proposal before anything happens. " +
		"Never state or imply that an action has been performed before the user has confirmed it. " +
		"At most one marker per reply.\n\nSupported actions and their exact fields:\n")
	for _, entry := range actionGrammar {
		fmt.Fprintf(&b, "- %s | %s\n", entry.Type, entry.Fields)
	}

	if snap.UserRole == domain.RoleChild {
		fmt.Fprintf(&b, "\n%s\n", i18n.T(lang, "prompt_child_safety"))
	}

	return b.String()
}

func writeEventSection(b *strings.Builder, lang i18n.Lang, key string, events []EventSummary) {
	if len(events) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", i18n.T(lang, key))
	for _, ev := range events {
		line := fmt.Sprintf("- %s (%s", ev.Title, ev.StartsAt.Format("2006-01-02 15:04"))
		if ev.EndsAt != nil {
			line += " - " + ev.EndsAt.Format("15:04")
		}
		line += ")"
		if ev.Category != "" {
			line += " [" + ev.Category + "]"
		}
		b.WriteString(line + "\n")
	}
}

func writeTaskSection(b *strings.Builder, lang i18n.Lang, key string, tasks []TaskSummary) {
	if len(tasks) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", i18n.T(lang, key))
	for _, task := range tasks {
		line := "- " + task.Title
		if task.DueAt != nil {
			line += " (" + task.DueAt.Format("2006-01-02") + ")"
		}
		if task.Priority != "" {
			line += " [" + task.Priority + "]"
		}
		if task.Assignee != "" {
			line += " @" + task.Assignee
		}
		b.WriteString(line + "\n")
	}
}
