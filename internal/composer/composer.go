// Package composer turns a question and its retrieved chunks into a cited
// answer.
package composer

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"marketrag/internal/domain"
	"marketrag/internal/llm"
	"marketrag/internal/retriever"
)

const systemPrompt = "You are a marketplace analytics assistant. " +
	"Answer using ONLY the provided sources. " +
	"If the sources do not contain the answer, say you don't have enough info. " +
	"Always include citations like [1], [2] referencing the source chunks."

// InsufficientInformation is the answer given when nothing was retrieved.
const InsufficientInformation = "I don't have enough information in the indexed sources to answer that question."

// Unavailable is shown to the user when a backend outage prevents an answer.
const Unavailable = "Sorry, I could not retrieve an answer right now. Please try again."

var citation = regexp.MustCompile(`\[(\d+)\]`)

// Composer builds grounded prompts and asks the generator for an answer.
type Composer struct {
	generator   llm.Generator
	temperature float32
}

func New(generator llm.Generator, temperature float32) *Composer {
	return &Composer{generator: generator, temperature: temperature}
}

// Compose answers query from results. With no results it returns
// InsufficientInformation without calling the generator. Generator
// failures are returned as errors, never as an empty answer.
func (c *Composer) Compose(ctx context.Context, query string, results []domain.SearchResult) (domain.Answer, error) {
	contexts := retriever.Contexts(results)
	if len(contexts) == 0 {
		return domain.Answer{Text: InsufficientInformation, Contexts: contexts}, nil
	}
	text, err := c.generator.Generate(ctx, llm.Request{
		System:      systemPrompt,
		User:        BuildPrompt(query, contexts),
		Temperature: c.temperature,
	})
	if err != nil {
		return domain.Answer{}, fmt.Errorf("compose answer: %w", err)
	}
	return domain.Answer{Text: PruneCitations(text, len(contexts)), Contexts: contexts}, nil
}

// BuildPrompt labels each context with its 1-based citation index and source.
func BuildPrompt(query string, contexts []domain.Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nSources:\n", query)
	for i, ctx := range contexts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] Source: %s\n%s", i+1, ctx.Source, ctx.Text)
	}
	b.WriteString("\n\nWrite a concise, management-friendly answer with bullet points and citations.\n")
	return b.String()
}

// PruneCitations removes [n] markers that do not name one of the n contexts.
func PruneCitations(text string, n int) string {
	return citation.ReplaceAllStringFunc(text, func(m string) string {
		i, err := strconv.Atoi(m[1 : len(m)-1])
		if err != nil || i < 1 || i > n {
			return ""
		}
		return m
	})
}
