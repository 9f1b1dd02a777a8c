package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/leadwatch/leadwatch/internal/domain/model"
	"github.com/leadwatch/leadwatch/internal/mocks"
	"github.com/leadwatch/leadwatch/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestParseReasoningResponse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    model.Relevance
		wantErr string
	}{
		{
			name: "valid reply",
			raw:  `{"qualityScore": 8.5, "reasoning": "asks for a CRM", "samplePitch": "Try us", "confidence": 0.9}`,
			want: model.Relevance{
				QualityScore:   8.5,
				Confidence:     0.9,
				Reasoning:      "asks for a CRM",
				SuggestedReply: "Try us",
				Method:         model.ScoreMethodReasoning,
			},
		},
		{
			name: "fenced reply",
			raw:  "```json\n{\"qualityScore\": 3, \"reasoning\": \"weak\", \"samplePitch\": \"\", \"confidence\": 0.2}\n```",
			want: model.Relevance{QualityScore: 3, Confidence: 0.2, Reasoning: "weak", Method: model.ScoreMethodReasoning},
		},
		{name: "not json", raw: "I think this post is relevant.", wantErr: "not a JSON object"},
		{name: "array", raw: `[{"qualityScore": 1}]`, wantErr: "not a JSON object"},
		{
			name:    "unknown field",
			raw:     `{"qualityScore": 1, "reasoning": "r", "samplePitch": "p", "confidence": 0.5, "extra": true}`,
			wantErr: "unknown field",
		},
		{name: "missing score", raw: `{"reasoning": "r", "samplePitch": "p", "confidence": 0.5}`, wantErr: "qualityScore is required"},
		{name: "missing pitch", raw: `{"qualityScore": 1, "reasoning": "r", "confidence": 0.5}`, wantErr: "samplePitch is required"},
		{
			name:    "score out of range",
			raw:     `{"qualityScore": 11, "reasoning": "r", "samplePitch": "p", "confidence": 0.5}`,
			wantErr: "out of range",
		},
		{
			name:    "confidence out of range",
			raw:     `{"qualityScore": 5, "reasoning": "r", "samplePitch": "p", "confidence": 1.5}`,
			wantErr: "out of range",
		},
		{
			name:    "score as string",
			raw:     `{"qualityScore": "9", "reasoning": "r", "samplePitch": "p", "confidence": 0.5}`,
			wantErr: "decode reply",
		},
		{
			name:    "empty reasoning",
			raw:     `{"qualityScore": 5, "reasoning": "  ", "samplePitch": "p", "confidence": 0.5}`,
			wantErr: "reasoning is empty",
		},
		{
			name:    "trailing object",
			raw:     `{"qualityScore": 5, "reasoning": "r", "samplePitch": "p", "confidence": 0.5} {}`,
			wantErr: "trailing data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReasoningResponse(tt.raw)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHeuristicScore(t *testing.T) {
	product := testutil.NewProduct("p1", "u1", "startups")

	t.Run("overlap raises the score", func(t *testing.T) {
		rel := HeuristicScore(product, model.Candidate{
			Title:   "Looking for a CRM with lead scoring",
			Content: "Finding customers is hard, any reply drafts tools?",
		})
		assert.Equal(t, model.ScoreMethodHeuristic, rel.Method)
		assert.Greater(t, rel.QualityScore, 0.0)
		assert.LessOrEqual(t, rel.QualityScore, model.MaxQualityScore)
		assert.InDelta(t, 0.4, rel.Confidence, 1e-9)
		assert.True(t, strings.HasPrefix(rel.Reasoning, "keyword overlap: "))
	})

	t.Run("no overlap scores zero", func(t *testing.T) {
		rel := HeuristicScore(product, model.Candidate{Title: "Best hiking boots?", Content: "for the alps"})
		assert.Zero(t, rel.QualityScore)
		assert.InDelta(t, 0.2, rel.Confidence, 1e-9)
	})

	t.Run("deterministic", func(t *testing.T) {
		c := model.Candidate{Title: "crm for customers", Content: "lead scoring and reply drafts"}
		assert.Equal(t, HeuristicScore(product, c), HeuristicScore(product, c))
	})

	t.Run("capped at ten", func(t *testing.T) {
		big := testutil.NewProduct("p2", "u1")
		big.Keywords = []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf"}
		rel := HeuristicScore(big, model.Candidate{Title: "alpha bravo charlie delta echo foxtrot golf"})
		assert.InDelta(t, model.MaxQualityScore, rel.QualityScore, 1e-9)
	})
}

func TestScorerService_Score(t *testing.T) {
	product := testutil.NewProduct("p1", "u1", "startups")
	candidate := model.Candidate{PostID: "t3_a", Title: "Need a CRM", Content: "finding customers"}

	t.Run("uses reasoning reply", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		client := mocks.NewMockReasoningClient(ctrl)
		client.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, prompt string) (string, error) {
			assert.Contains(t, prompt, "LeadPilot")
			assert.Contains(t, prompt, "Need a CRM")
			return `{"qualityScore": 9, "reasoning": "direct ask", "samplePitch": "hi", "confidence": 0.8}`, nil
		})
		svc := NewScorerService(ScorerServiceOptions{Client: client, Logger: discardLogger()})

		rel := svc.Score(context.Background(), product, candidate)
		assert.Equal(t, model.ScoreMethodReasoning, rel.Method)
		assert.InDelta(t, 9.0, rel.QualityScore, 1e-9)
		assert.Equal(t, "hi", rel.SuggestedReply)
	})

	t.Run("invalid json falls back to heuristic", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		client := mocks.NewMockReasoningClient(ctrl)
		client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("Sure! Here is my score: 7/10", nil)
		sink := newCountingSink()
		svc := NewScorerService(ScorerServiceOptions{Client: client, Metrics: sink, Logger: discardLogger()})

		rel := svc.Score(context.Background(), product, candidate)
		assert.Equal(t, model.ScoreMethodHeuristic, rel.Method)
		assert.GreaterOrEqual(t, rel.QualityScore, model.MinQualityScore)
		assert.LessOrEqual(t, rel.QualityScore, model.MaxQualityScore)
		assert.Equal(t, int64(1), sink.get("scorer.fallback:invalid_response"))
	})

	t.Run("unavailable service falls back to heuristic", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		client := mocks.NewMockReasoningClient(ctrl)
		client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("", errors.New("503 Service Unavailable"))
		sink := newCountingSink()
		svc := NewScorerService(ScorerServiceOptions{Client: client, Metrics: sink, Logger: discardLogger()})

		rel := svc.Score(context.Background(), product, candidate)
		assert.Equal(t, HeuristicScore(product, candidate), rel)
		assert.Equal(t, int64(1), sink.get("scorer.fallback:unavailable"))
	})

	t.Run("no client scores heuristically", func(t *testing.T) {
		svc := NewScorerService(ScorerServiceOptions{})
		assert.Equal(t, HeuristicScore(product, candidate), svc.Score(context.Background(), product, candidate))
	})
}

func TestBuildScoringPrompt_TruncatesContent(t *testing.T) {
	product := testutil.NewProduct("p1", "u1")
	prompt := BuildScoringPrompt(product, model.Candidate{Title: "t", Content: strings.Repeat("x", 5000)})
	assert.Less(t, strings.Count(prompt, "x"), 2100)
	assert.Contains(t, prompt, "qualityScore")
}
