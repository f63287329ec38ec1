package intent

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"

	"marketrag/internal/llm"
)

const classifierPrompt = `You are an intent classifier for a marketplace chatbot.
Decide whether the user wants to:
- add_vendor: add, insert, register or onboard a vendor
- add_product: add, insert, register or onboard a product
- question: ask a question (analytics, last added entity, performance, etc.)
- ambiguous: wants to add something but it is unclear whether vendor or product

Rules:
- Requests such as "last vendor added" or "last product added" are question.
- A request to add something that names neither vendor nor product is ambiguous.
- Reply with JSON only.`

var verdictSchema = &jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"intent": {
			Type: jsonschema.String,
			Enum: []string{string(Question), string(AddVendor), string(AddProduct), string(Ambiguous)},
		},
		"confidence": {Type: jsonschema.Number, Description: "between 0 and 1"},
		"reason":     {Type: jsonschema.String},
	},
	Required:             []string{"intent", "confidence", "reason"},
	AdditionalProperties: false,
}

// ModelClassifier asks the chat backend for a schema-constrained label.
type ModelClassifier struct {
	generator llm.Generator
}

func NewModelClassifier(generator llm.Generator) *ModelClassifier {
	return &ModelClassifier{generator: generator}
}

// Classify returns an error when the backend fails or the reply does not
// satisfy the schema.
func (m *ModelClassifier) Classify(ctx context.Context, text string) (Verdict, error) {
	reply, err := m.generator.Generate(ctx, llm.Request{
		System:     classifierPrompt,
		User:       fmt.Sprintf("Prompt: %q", text),
		Schema:     verdictSchema,
		SchemaName: "intent_verdict",
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("classify intent: %w", err)
	}
	var out struct {
		Intent     Intent  `json:"intent"`
		Confidence float64 `json:"confidence"`
		Reason     string  `json:"reason"`
	}
	if err := verdictSchema.Unmarshal(reply, &out); err != nil {
		return Verdict{}, fmt.Errorf("decode intent verdict: %w", err)
	}
	if !out.Intent.Valid() {
		return Verdict{}, fmt.Errorf("unknown intent %q", out.Intent)
	}
	return Verdict{
		Intent:     out.Intent,
		Confidence: min(max(out.Confidence, 0), 1),
		Rationale:  out.Reason,
		Strategy:   StrategyModel,
	}, nil
}
