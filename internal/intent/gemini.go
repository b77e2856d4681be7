package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const classifierModel = "gemini-2.5-flash"

const classifierInstruction = `You classify a user's message for a personal
finance assistant. Respond with JSON only. "action" must be exactly one of
GET_STOCK_PRICE, BUY_STOCK, SELL_STOCK, GET_PORTFOLIO, GENERAL. For BUY_STOCK
and SELL_STOCK include the ticker symbol and the whole-share quantity. Use
GENERAL for anything that is not a price lookup, a trade, or a portfolio
question. "confidence" is your own certainty between 0 and 1.`

// classification is the JSON contract the model must answer with
type classification struct {
	Action     string  `json:"action"`
	Symbol     string  `json:"symbol"`
	Quantity   int64   `json:"quantity"`
	Confidence float64 `json:"confidence"`
}

// GeminiClassifier resolves messages the trade pattern could not, using a
// structured-output Gemini call
type GeminiClassifier struct {
	client *genai.Client
}

func NewGeminiClassifier(client *genai.Client) *GeminiClassifier {
	return &GeminiClassifier{client: client}
}

func (g *GeminiClassifier) Classify(ctx context.Context, text string) (*Intent, error) {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"action":     {Type: genai.TypeString},
				"symbol":     {Type: genai.TypeString},
				"quantity":   {Type: genai.TypeInteger},
				"confidence": {Type: genai.TypeNumber},
			},
			Required: []string{"action", "confidence"},
		},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: classifierInstruction}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, classifierModel, genai.Text(text), config)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	raw := responseText(resp)
	if raw == "" {
		return nil, &IntentParseError{Input: text, Reason: "empty model response"}
	}

	var c classification
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, &IntentParseError{Input: text, Reason: fmt.Sprintf("malformed model response: %v", err)}
	}

	action, ok := ParseAction(c.Action)
	if !ok {
		return nil, &IntentParseError{Input: text, Reason: fmt.Sprintf("unknown action %q", c.Action)}
	}

	return &Intent{
		Action:     action,
		Symbol:     strings.ToUpper(strings.TrimSpace(c.Symbol)),
		Quantity:   c.Quantity,
		Confidence: c.Confidence,
	}, nil
}

// Advise answers a GENERAL message with a free-text completion
func (g *GeminiClassifier) Advise(ctx context.Context, text string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: `You are a cautious personal finance
assistant. Answer briefly and plainly. Never claim to have placed a trade.`}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, classifierModel, genai.Text(text), config)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}

	answer := responseText(resp)
	if answer == "" {
		return "", fmt.Errorf("gemini: empty advisory response")
	}
	return answer, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}
