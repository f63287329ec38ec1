package intent

import (
	"context"

	"go.uber.org/zap"

	"marketrag/internal/zlog"
)

// Classifier is a fallback consulted when no rule matches.
type Classifier interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}

// Router applies, in order: recall matching, keyword tables, the optional
// fallback classifier, and finally the question default. It keeps no
// per-utterance state.
type Router struct {
	fallback Classifier
}

// NewRouter returns a router. fallback may be nil.
func NewRouter(fallback Classifier) *Router {
	return &Router{fallback: fallback}
}

// Route classifies text. A failing fallback degrades to the default verdict.
func (r *Router) Route(ctx context.Context, text string) Verdict {
	if v, ok := Recall(text); ok {
		return v
	}
	if v, ok := Keywords(text); ok {
		return v
	}
	if r.fallback != nil {
		v, err := r.fallback.Classify(ctx, text)
		if err == nil {
			return v
		}
		zlog.Warn("intent fallback failed", zap.Error(err))
	}
	return defaultVerdict()
}
