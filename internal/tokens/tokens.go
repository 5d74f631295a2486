// Package tokens estimates token counts for usage telemetry. Counts are
// approximate by design; they feed the usage log, not billing.
package tokens

import (
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// Counter estimates the token count of a piece of text.
type Counter interface {
	Count(text string) int
}

// Tiktoken counts tokens with the cl100k_base encoding, which is close
// enough across current chat models for telemetry purposes. Models the
// encoder cannot handle fall back to the heuristic estimator.
type Tiktoken struct {
	codec    tokenizer.Codec
	fallback *Estimator
}

// NewTiktoken creates a tiktoken-backed counter.
func NewTiktoken() *Tiktoken {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		codec = nil
	}
	return &Tiktoken{codec: codec, fallback: NewEstimator()}
}

func (t *Tiktoken) Count(text string) int {
	if t.codec == nil {
		return t.fallback.Count(text)
	}
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return t.fallback.Count(text)
	}
	return len(ids)
}

// Estimator is the character-based fallback: roughly four characters per
// token for western-language text.
type Estimator struct{}

// NewEstimator creates a heuristic counter.
func NewEstimator() *Estimator {
	return &Estimator{}
}

func (e *Estimator) Count(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
