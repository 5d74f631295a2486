package assistant

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nidohq/nido/internal/i18n"
)

// ProposedAction is a structured mutation extracted from a model reply.
// Data is the parsed JSON payload, or the raw payload string when the
// JSON did not parse; downstream dispatch rejects the latter explicitly
// instead of the parser swallowing the proposal.
type ProposedAction struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExtractProposedAction scans the fully accumulated reply text for the
// first action marker and returns the proposal, or nil when no marker
// is present or the marker is truncated.
//
// The payload is delimited with a brace/bracket depth counter rather
// than a regex: the embedded JSON itself contains braces and brackets
// (nested objects, the add_shopping_items array), so "first closing
// brace" matching would cut the payload short.
func ExtractProposedAction(fullText string) *ProposedAction {
	start, rest := findMarker(fullText)
	if start < 0 {
		return nil
	}

	pipe := strings.Index(rest, "|")
	if pipe < 0 {
		return nil
	}
	actionType := strings.TrimSpace(rest[:pipe])
	if actionType == "" {
		return nil
	}

	payload, ok := scanBalanced(rest[pipe+1:])
	if !ok {
		// Truncated proposal: the stream ended before the marker closed.
		return nil
	}
	payload = strings.TrimSpace(payload)

	var data any
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		data = payload
	}
	return &ProposedAction{Type: actionType, Data: data}
}

// findMarker locates the earliest occurrence of any accepted marker
// prefix "[KEYWORD:" and returns its index plus the text immediately
// after the colon.
func findMarker(text string) (int, string) {
	best := -1
	bestLen := 0
	for _, keyword := range i18n.MarkerKeywords() {
		prefix := "[" + keyword + ":"
		if idx := strings.Index(text, prefix); idx >= 0 && (best < 0 || idx < best) {
			best = idx
			bestLen = len(prefix)
		}
	}
	if best < 0 {
		return -1, ""
	}
	return best, text[best+bestLen:]
}

// scanBalanced returns the prefix of s up to (but excluding) the first
// closing brace or bracket seen at depth zero. That closer is the
// marker's own terminator; everything before it is the payload.
func scanBalanced(s string) (string, bool) {
	depth := 0
	for i, c := range s {
		switch c {
		case '{', '[':
			depth++
		case '}', ']':
			if depth == 0 {
				return s[:i], true
			}
			depth--
		}
	}
	return "", false
}

// RenderMarker renders a proposal in the marker grammar for the given
// locale. The inverse of ExtractProposedAction for valid payloads.
func RenderMarker(lang i18n.Lang, actionType string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	return fmt.Sprintf("[%s: %s | %s]", i18n.MarkerKeyword(lang), actionType, raw), nil
}
