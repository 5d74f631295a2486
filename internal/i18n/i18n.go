// Package i18n holds the locale-keyed message catalog for user-facing
// text and prompt prose. The action-proposal grammar itself is
// language-agnostic; only the rendered prose and the marker keyword
// vary by locale.
package i18n

import "fmt"

// Lang is a supported locale tag.
type Lang string

const (
	LangEnglish Lang = "en"
	LangItalian Lang = "it"
)

// Normalize maps an arbitrary client-supplied tag to a supported Lang,
// defaulting to English.
func Normalize(tag string) Lang {
	switch Lang(tag) {
	case LangItalian:
		return LangItalian
	default:
		return LangEnglish
	}
}

// MarkerKeyword returns the action-marker keyword the model is taught
// in the given locale. The parser accepts both keywords regardless of
// the active locale, since the model may echo either literally.
func MarkerKeyword(lang Lang) string {
	if lang == LangItalian {
		return "AZIONE_PROPOSTA"
	}
	return "ACTION_PROPOSED"
}

// MarkerKeywords lists every accepted marker keyword.
func MarkerKeywords() []string {
	return []string{"ACTION_PROPOSED", "AZIONE_PROPOSTA"}
}

var catalog = map[Lang]map[string]string{
	LangEnglish: {
		"processing_error":  "Sorry, I could not process your request. Please try again.",
		"permission_denied": "This action requires parental permission. Ask a parent to confirm it.",
		"not_supported":     "That action is not supported.",
		"not_found":         "I could not find that item in your family data.",
		"invalid_payload":   "The action data is incomplete or malformed.",
		"already_purchased": "Those items are already marked as purchased.",
		"execution_failed":  "Something went wrong while performing the action.",

		"event_created":    "Event \"%s\" added to the calendar.",
		"event_updated":    "Event updated.",
		"event_deleted":    "Event removed from the calendar.",
		"task_created":     "Task \"%s\" created.",
		"task_updated":     "Task updated.",
		"task_completed":   "Task marked as completed.",
		"task_deleted":     "Task deleted.",
		"expense_created":  "Expense of %s recorded.",
		"expense_updated":  "Expense updated.",
		"expense_deleted":  "Expense deleted.",
		"shopping_added":   "\"%s\" added to the shopping list.",
		"shopping_added_n": "%d items added to the shopping list.",
		"shopping_updated": "Shopping item updated.",
		"shopping_removed": "Shopping item removed.",
		"purchase_done":    "Purchase recorded: %d items for %s.",

		"prompt_intro":        "You are the family assistant of %s's family. Today is %s. You answer briefly, warmly and always in English.",
		"prompt_today":        "Today's events",
		"prompt_upcoming":     "Upcoming events",
		"prompt_pending":      "Pending tasks",
		"prompt_overdue":      "Overdue tasks",
		"prompt_shopping":     "Shopping list (to buy)",
		"prompt_budget":       "This month's spending",
		"prompt_members":      "Family members",
		"prompt_child_safety": "The current user is a child. Never propose creating, changing or deleting anything; politely explain that a parent has to do it.",
	},
	LangItalian: {
		"processing_error":  "Mi dispiace, non sono riuscito a elaborare la richiesta. Riprova.",
		"permission_denied": "Questa azione richiede il permesso di un genitore. Chiedi a un genitore di confermarla.",
		"not_supported":     "Questa azione non è supportata.",
		"not_found":         "Non ho trovato questo elemento nei dati della tua famiglia.",
		"invalid_payload":   "I dati dell'azione sono incompleti o non validi.",
		"already_purchased": "Questi articoli risultano già acquistati.",
		"execution_failed":  "Qualcosa è andato storto durante l'esecuzione dell'azione.",

		"event_created":    "Evento \"%s\" aggiunto al calendario.",
		"event_updated":    "Evento aggiornato.",
		"event_deleted":    "Evento rimosso dal calendario.",
		"task_created":     "Attività \"%s\" creata.",
		"task_updated":     "Attività aggiornata.",
		"task_completed":   "Attività completata.",
		"task_deleted":     "Attività eliminata.",
		"expense_created":  "Spesa di %s registrata.",
		"expense_updated":  "Spesa aggiornata.",
		"expense_deleted":  "Spesa eliminata.",
		"shopping_added":   "\"%s\" aggiunto alla lista della spesa.",
		"shopping_added_n": "%d articoli aggiunti alla lista della spesa.",
		"shopping_updated": "Articolo aggiornato.",
		"shopping_removed": "Articolo rimosso dalla lista.",
		"purchase_done":    "Acquisto registrato: %d articoli per %s.",

		"prompt_intro":        "Sei l'assistente della famiglia di %s. Oggi è %s. Rispondi in modo breve, cordiale e sempre in italiano.",
		"prompt_today":        "Eventi di oggi",
		"prompt_upcoming":     "Prossimi eventi",
		"prompt_pending":      "Attività in sospeso",
		"prompt_overdue":      "Attività in ritardo",
		"prompt_shopping":     "Lista della spesa (da comprare)",
		"prompt_budget":       "Spese del mese",
		"prompt_members":      "Membri della famiglia",
		"prompt_child_safety": "L'utente corrente è un bambino. Non proporre mai di creare, modificare o eliminare nulla; spiega gentilmente che deve farlo un genitore.",
	},
}

// T returns the message for key in lang, formatted with args. Unknown
// keys fall back to English, then to the key itself.
func T(lang Lang, key string, args ...any) string {
	msg, ok := catalog[lang][key]
	if !ok {
		msg, ok = catalog[LangEnglish][key]
	}
	if !ok {
		return key
	}
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}
