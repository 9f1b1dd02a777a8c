package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/leadwatch/leadwatch/internal/core"
	"github.com/leadwatch/leadwatch/internal/domain/model"
	"github.com/leadwatch/leadwatch/internal/domain/searchterms"
	apperrors "github.com/leadwatch/leadwatch/internal/errors"
	"github.com/leadwatch/leadwatch/internal/observability/metrics"
	"github.com/leadwatch/leadwatch/internal/observability/statsd"
)

const (
	maxPromptContent = 2000
	// heuristicPointsPerMatch maps keyword overlap onto the 0-10 scale.
	heuristicPointsPerMatch = 2.0
)

// ScorerServiceOptions groups dependencies for ScorerService.
type ScorerServiceOptions struct {
	// Client is optional; without it every candidate is scored heuristically.
	Client  core.ReasoningClient
	Metrics statsd.Sink
	Logger  *slog.Logger
}

// ScorerService rates candidates with the reasoning service and falls back to keyword overlap.
type ScorerService struct {
	client  core.ReasoningClient
	metrics statsd.Sink
	logger  *slog.Logger
}

var _ core.RelevanceScorer = (*ScorerService)(nil)

// NewScorerService constructs a ScorerService.
func NewScorerService(opts ScorerServiceOptions) *ScorerService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ScorerService{
		client:  opts.Client,
		metrics: opts.Metrics,
		logger:  logger.With("component", "relevance_scorer"),
	}
}

// Score never fails. Any ScoringError is logged and replaced by HeuristicScore.
func (s *ScorerService) Score(ctx context.Context, product *model.Product, candidate model.Candidate) model.Relevance {
	if s.client == nil {
		return HeuristicScore(product, candidate)
	}
	rel, err := s.reason(ctx, product, candidate)
	if err == nil {
		return rel
	}
	reason := "unknown"
	var se *apperrors.ScoringError
	if errors.As(err, &se) {
		reason = string(se.Kind)
	}
	metrics.EmitScorerFallback(s.metrics, reason)
	s.logger.WarnContext(ctx, "reasoning score unavailable, using heuristic",
		"post_id", candidate.PostID,
		"reason", reason,
		"error", err,
	)
	return HeuristicScore(product, candidate)
}

func (s *ScorerService) reason(ctx context.Context, product *model.Product, candidate model.Candidate) (model.Relevance, error) {
	raw, err := s.client.Complete(ctx, BuildScoringPrompt(product, candidate))
	if err != nil {
		return model.Relevance{}, &apperrors.ScoringError{Kind: apperrors.ScoringUnavailable, Cause: err}
	}
	rel, err := ParseReasoningResponse(raw)
	if err != nil {
		return model.Relevance{}, &apperrors.ScoringError{Kind: apperrors.ScoringInvalidResponse, Cause: err}
	}
	return rel, nil
}

// BuildScoringPrompt renders the product context and the candidate post.
func BuildScoringPrompt(product *model.Product, c model.Candidate) string {
	var b strings.Builder
	b.WriteString("Rate how likely this post's author is a potential customer for the product.\n")
	b.WriteString("Reply with a JSON object with exactly these fields: ")
	b.WriteString(`"qualityScore" (number 0-10), "reasoning" (string), "samplePitch" (string), "confidence" (number 0-1).`)
	b.WriteString("\n\nPRODUCT\n")
	if product != nil {
		writePromptField(&b, "Name", product.Name)
		writePromptField(&b, "Description", product.Description)
		writePromptField(&b, "Features", strings.Join(product.Features, "; "))
		writePromptField(&b, "Benefits", strings.Join(product.Benefits, "; "))
		writePromptField(&b, "Pain points", strings.Join(product.PainPoints, "; "))
		writePromptField(&b, "Ideal customer", product.IdealCustomer)
	}
	b.WriteString("\nPOST\n")
	writePromptField(&b, "Community", c.Community)
	writePromptField(&b, "Title", c.Title)
	writePromptField(&b, "Content", truncateRunes(c.Content, maxPromptContent))
	return b.String()
}

func writePromptField(b *strings.Builder, label, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, value)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

type reasoningReply struct {
	QualityScore *float64 `json:"qualityScore"`
	Reasoning    *string  `json:"reasoning"`
	SamplePitch  *string  `json:"samplePitch"`
	Confidence   *float64 `json:"confidence"`
}

// ParseReasoningResponse strictly decodes a reasoning reply. A surrounding markdown
// code fence is tolerated; anything else that deviates from the schema is rejected.
func ParseReasoningResponse(raw string) (model.Relevance, error) {
	body := stripCodeFence(raw)
	if !strings.HasPrefix(body, "{") {
		return model.Relevance{}, errors.New("reply is not a JSON object")
	}
	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	var reply reasoningReply
	if err := dec.Decode(&reply); err != nil {
		return model.Relevance{}, fmt.Errorf("decode reply: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return model.Relevance{}, errors.New("trailing data after JSON object")
	}

	switch {
	case reply.QualityScore == nil:
		return model.Relevance{}, errors.New("qualityScore is required")
	case reply.Reasoning == nil:
		return model.Relevance{}, errors.New("reasoning is required")
	case reply.SamplePitch == nil:
		return model.Relevance{}, errors.New("samplePitch is required")
	case reply.Confidence == nil:
		return model.Relevance{}, errors.New("confidence is required")
	}
	q, conf := *reply.QualityScore, *reply.Confidence
	if math.IsNaN(q) || q < model.MinQualityScore || q > model.MaxQualityScore {
		return model.Relevance{}, fmt.Errorf("qualityScore %v out of range", q)
	}
	if math.IsNaN(conf) || conf < 0 || conf > 1 {
		return model.Relevance{}, fmt.Errorf("confidence %v out of range", conf)
	}
	if strings.TrimSpace(*reply.Reasoning) == "" {
		return model.Relevance{}, errors.New("reasoning is empty")
	}
	return model.Relevance{
		QualityScore:   q,
		Confidence:     conf,
		Reasoning:      strings.TrimSpace(*reply.Reasoning),
		SuggestedReply: strings.TrimSpace(*reply.SamplePitch),
		Method:         model.ScoreMethodReasoning,
	}, nil
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the language tag line, e.g. ```json.
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// HeuristicScore counts distinct product tokens that appear in the post's title or body.
// Each match is worth two points, capped at 10. It is deterministic and always in range.
func HeuristicScore(product *model.Product, c model.Candidate) model.Relevance {
	vocab := productVocabulary(product)
	post := make(map[string]struct{})
	for _, tok := range searchterms.Tokens(c.Title + " " + c.Content) {
		post[tok] = struct{}{}
	}
	var matched []string
	for tok := range vocab {
		if _, ok := post[tok]; ok {
			matched = append(matched, tok)
		}
	}
	sort.Strings(matched)

	score := math.Min(model.MaxQualityScore, heuristicPointsPerMatch*float64(len(matched)))
	confidence := 0.2
	reasoning := "no product keywords found in post"
	if len(matched) > 0 {
		confidence = 0.4
		reasoning = "keyword overlap: " + strings.Join(matched, ", ")
	}
	return model.Relevance{
		QualityScore: score,
		Confidence:   confidence,
		Reasoning:    reasoning,
		Method:       model.ScoreMethodHeuristic,
	}
}

func productVocabulary(p *model.Product) map[string]struct{} {
	vocab := make(map[string]struct{})
	if p == nil {
		return vocab
	}
	sources := []string{p.Name, p.IdealCustomer}
	for _, list := range [][]string{p.Keywords, p.Features, p.Benefits, p.PainPoints} {
		sources = append(sources, list...)
	}
	for _, src := range sources {
		for _, tok := range searchterms.Tokens(src) {
			if _, stop := stopWords[tok]; stop {
				continue
			}
			vocab[tok] = struct{}{}
		}
	}
	return vocab
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "your": {}, "you": {}, "that": {}, "this": {},
	"are": {}, "from": {}, "our": {}, "who": {}, "all": {}, "any": {}, "can": {}, "not": {},
}
