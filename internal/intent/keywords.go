package intent

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

type termSet map[string]struct{}

func terms(words ...string) termSet {
	s := make(termSet, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

func (s termSet) any(tokens []string) bool {
	for _, t := range tokens {
		if _, ok := s[t]; ok {
			return true
		}
	}
	return false
}

var (
	addTerms     = terms("add", "adding", "insert", "register", "onboard", "create", "append", "enroll")
	vendorTerms  = terms("vendor", "vendors", "seller", "sellers", "supplier", "suppliers", "merchant", "merchants")
	productTerms = terms("product", "products", "item", "items", "sku", "skus", "listing", "listings")
	recencyTerms = terms("last", "latest", "newest", "recent", "recently")
	addedTerms   = terms("added", "inserted", "registered", "onboarded", "created", "entered")
	leadWords    = terms(
		"what", "why", "how", "which", "who", "whom", "whose", "when", "where",
		"is", "are", "was", "were", "do", "does", "did", "can", "could", "should", "would", "will", "has", "have",
		"show", "list", "tell", "explain", "compare", "summarize", "give",
	)
)

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// Recall matches requests for the most recently added vendor or product:
// a recency term, exactly one entity kind and a past-tense add verb.
func Recall(text string) (Verdict, bool) {
	tokens := tokenize(text)
	if !recencyTerms.any(tokens) || !addedTerms.any(tokens) {
		return Verdict{}, false
	}
	vendor, product := vendorTerms.any(tokens), productTerms.any(tokens)
	switch {
	case vendor && !product:
		return Verdict{Intent: Question, Confidence: 1, Rationale: "asks for the last added vendor", Strategy: StrategyRecall, Recall: EntityVendor}, true
	case product && !vendor:
		return Verdict{Intent: Question, Confidence: 1, Rationale: "asks for the last added product", Strategy: StrategyRecall, Recall: EntityProduct}, true
	}
	return Verdict{}, false
}

// Keywords classifies by whole-token keyword tables. It reports false when
// no rule applies.
func Keywords(text string) (Verdict, bool) {
	tokens := tokenize(text)
	if addTerms.any(tokens) {
		vendor, product := vendorTerms.any(tokens), productTerms.any(tokens)
		switch {
		case vendor && !product:
			return Verdict{Intent: AddVendor, Confidence: 0.9, Rationale: "add term with vendor term", Strategy: StrategyKeywords}, true
		case product && !vendor:
			return Verdict{Intent: AddProduct, Confidence: 0.9, Rationale: "add term with product term", Strategy: StrategyKeywords}, true
		case vendor && product:
			return Verdict{Intent: Ambiguous, Confidence: 0.8, Rationale: "add term with both vendor and product terms", Strategy: StrategyKeywords}, true
		default:
			return Verdict{Intent: Ambiguous, Confidence: 0.8, Rationale: "add term without vendor or product term", Strategy: StrategyKeywords}, true
		}
	}
	if strings.Contains(text, "?") || (len(tokens) > 0 && leadWords.any(tokens[:1])) {
		return Verdict{Intent: Question, Confidence: 0.8, Rationale: "phrased as a question", Strategy: StrategyKeywords}, true
	}
	return Verdict{}, false
}
