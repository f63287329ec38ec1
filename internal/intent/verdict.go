// Package intent decides what a chat message asks for: an answer from the
// documents, a vendor or product data-entry form, a recall of the last
// added entity, or a clarification.
package intent

// Intent is the closed set of routing outcomes.
type Intent string

const (
	Question   Intent = "question"
	AddVendor  Intent = "add_vendor"
	AddProduct Intent = "add_product"
	Ambiguous  Intent = "ambiguous"
)

// Valid reports whether i is one of the four known intents.
func (i Intent) Valid() bool {
	switch i {
	case Question, AddVendor, AddProduct, Ambiguous:
		return true
	}
	return false
}

// Strategy names the step of the router that produced a verdict.
type Strategy string

const (
	StrategyRecall   Strategy = "recall"
	StrategyKeywords Strategy = "keywords"
	StrategyModel    Strategy = "model"
	StrategyDefault  Strategy = "default"
)

// Entity is the kind of catalog row a recall refers to.
type Entity string

const (
	EntityNone    Entity = ""
	EntityVendor  Entity = "vendor"
	EntityProduct Entity = "product"
)

// Verdict is the classification of a single utterance.
type Verdict struct {
	Intent     Intent   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Rationale  string   `json:"rationale"`
	Strategy   Strategy `json:"strategy"`
	// Recall is set when the utterance asks for the last added entity;
	// Intent is then Question and no generation is needed.
	Recall Entity `json:"recall,omitempty"`
}

// IsRecall reports whether the verdict is answered by a direct store lookup.
func (v Verdict) IsRecall() bool { return v.Recall != EntityNone }

func defaultVerdict() Verdict {
	return Verdict{Intent: Question, Confidence: 0.5, Rationale: "no routing rule matched", Strategy: StrategyDefault}
}
