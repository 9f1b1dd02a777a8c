// Package searchterms derives platform search queries from product metadata.
package searchterms

import (
	"strings"
	"unicode"

	"github.com/leadwatch/leadwatch/internal/domain/model"
)

const (
	// DefaultMaxTerms bounds the number of platform searches per community and execution.
	DefaultMaxTerms = 5
	minTermRunes    = 3
	maxTermWords    = 8
)

// Generate returns the ordered, deduplicated search terms for a product.
// The result depends only on the product fields and maxTerms; a non-positive maxTerms uses DefaultMaxTerms.
func Generate(p *model.Product, maxTerms int) []string {
	if p == nil {
		return nil
	}
	if maxTerms <= 0 {
		maxTerms = DefaultMaxTerms
	}

	sources := make([]string, 0, len(p.Keywords)+len(p.PainPoints)+len(p.Features)+len(p.Benefits)+2)
	sources = append(sources, p.Keywords...)
	sources = append(sources, p.Name)
	sources = append(sources, p.PainPoints...)
	sources = append(sources, p.Features...)
	sources = append(sources, p.IdealCustomer)
	sources = append(sources, p.Benefits...)

	seen := make(map[string]struct{}, len(sources))
	out := make([]string, 0, maxTerms)
	for _, raw := range sources {
		term := Normalize(raw)
		if term == "" {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
		if len(out) == maxTerms {
			break
		}
	}
	return out
}

// Normalize lowercases a phrase, collapses whitespace, strips surrounding punctuation
// and truncates it to a bounded word count. Phrases shorter than three runes yield "".
func Normalize(raw string) string {
	words := strings.Fields(strings.ToLower(raw))
	if len(words) > maxTermWords {
		words = words[:maxTermWords]
	}
	term := strings.TrimFunc(strings.Join(words, " "), func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r)
	})
	if len([]rune(term)) < minTermRunes {
		return ""
	}
	return term
}

// Tokens splits text into lowercase word tokens of at least three runes.
// It backs the keyword-overlap heuristic used when relevance scoring falls back.
func Tokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= minTermRunes {
			out = append(out, f)
		}
	}
	return out
}
