// Package summarizer picks the most representative sentences of the prose
// documents in a corpus. The index builder reports them as an overview.
package summarizer

import (
	"math"
	"path"
	"regexp"
	"slices"
	"sort"
	"strings"

	"marketrag/internal/domain"
	"marketrag/internal/stopwords"
)

var (
	sentencePattern = regexp.MustCompile(`[^.!?\n]+[.!?]`)
	wordPattern     = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
)

// Overview ranks sentences by normalized word frequency.
type Overview struct{}

func New() *Overview {
	return &Overview{}
}

type sentence struct {
	text  string
	words []string
	score float64
}

// Summarize returns up to maxSentences sentences from the prose documents
// (tables are ignored), kept in corpus order.
func (o *Overview) Summarize(docs []domain.Document, maxSentences int) []string {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	var sentences []*sentence
	freq := map[string]float64{}
	for _, doc := range docs {
		if strings.EqualFold(path.Ext(doc.Source), ".csv") {
			continue
		}
		for _, raw := range sentencePattern.FindAllString(doc.Content, -1) {
			s := &sentence{text: strings.Join(strings.Fields(raw), " ")}
			for _, w := range wordPattern.FindAllString(strings.ToLower(raw), -1) {
				if stopwords.Is(w) {
					continue
				}
				s.words = append(s.words, w)
				freq[w]++
			}
			if len(s.words) > 0 {
				sentences = append(sentences, s)
			}
		}
	}
	if len(sentences) == 0 {
		return nil
	}

	var top float64
	for _, v := range freq {
		top = max(top, v)
	}
	for _, s := range sentences {
		for _, w := range s.words {
			s.score += freq[w] / top
		}
		s.score /= math.Sqrt(float64(len(s.words)))
	}

	order := make([]int, len(sentences))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return sentences[order[a]].score > sentences[order[b]].score })
	picked := order[:min(maxSentences, len(order))]
	slices.Sort(picked)

	out := make([]string, len(picked))
	for i, idx := range picked {
		out[i] = sentences[idx].text
	}
	return out
}
