package intent

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
)

// fastPathConfidence is assigned to trades matched by the pattern alone. The
// pattern is unambiguous, so no model call is needed to trust it.
const fastPathConfidence = 0.95

// tradePattern matches plain trade instructions like "buy 5 shares of AAPL"
var tradePattern = regexp.MustCompile(`(?i)\b(buy|sell)\s+(\d+)\s+shares?\s+of\s+([A-Za-z]{1,5})\b`)

// Intent is a user message resolved into an executable action
type Intent struct {
	Action     Action  `json:"action"`
	Symbol     string  `json:"symbol,omitempty"`
	Quantity   int64   `json:"quantity,omitempty"`
	Confidence float64 `json:"confidence"`

	// Advisory carries the free-text answer for GENERAL intents
	Advisory string `json:"advisory,omitempty"`
}

// IntentParseError reports a message that could not be resolved into a valid
// action, including classifier output outside the closed action set
type IntentParseError struct {
	Input  string
	Reason string
}

func (e *IntentParseError) Error() string {
	return fmt.Sprintf("intent: cannot resolve %q: %s", e.Input, e.Reason)
}

// Classifier turns natural language into an intent. Implementations may call
// an external model; the resolver validates whatever comes back.
type Classifier interface {
	Classify(ctx context.Context, text string) (*Intent, error)
}

// Resolver resolves user messages: a pattern fast path for plain trade
// instructions, a classifier for everything else
type Resolver struct {
	classifier Classifier
}

func NewResolver(c Classifier) *Resolver {
	return &Resolver{classifier: c}
}

// Resolve maps one user message to an intent. Messages matching the trade
// pattern never reach the classifier.
func (r *Resolver) Resolve(ctx context.Context, text string) (*Intent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &IntentParseError{Input: text, Reason: "empty message"}
	}

	if m := tradePattern.FindStringSubmatch(text); m != nil {
		qty, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil || qty <= 0 {
			return nil, &IntentParseError{Input: text, Reason: "invalid quantity"}
		}

		action := ActionBuy
		if strings.EqualFold(m[1], "sell") {
			action = ActionSell
		}

		return &Intent{
			Action:     action,
			Symbol:     strings.ToUpper(m[3]),
			Quantity:   qty,
			Confidence: fastPathConfidence,
		}, nil
	}

	if r.classifier == nil {
		return nil, &IntentParseError{Input: text, Reason: "no classifier configured"}
	}

	resolved, err := r.classifier.Classify(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("intent: classify: %w", err)
	}
	if !resolved.Action.Valid() {
		return nil, &IntentParseError{
			Input:  text,
			Reason: fmt.Sprintf("unknown action %q", resolved.Action),
		}
	}
	if resolved.Action.IsTrade() {
		if resolved.Symbol == "" || resolved.Quantity <= 0 {
			return nil, &IntentParseError{Input: text, Reason: "trade intent missing symbol or quantity"}
		}
		resolved.Symbol = strings.ToUpper(resolved.Symbol)
	}

	log.Printf("[INTENT] resolved %q -> %s (%.2f)", text, resolved.Action, resolved.Confidence)
	return resolved, nil
}
