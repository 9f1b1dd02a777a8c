//revive:disable-next-line:var-naming // legacy package name used across the project
package model

import (
	"errors"
	"strings"
	"time"
)

// LeadStatus tracks how far a lead has progressed through the user's review.
type LeadStatus string

const (
	// LeadStatusNew is the status of freshly ingested leads.
	LeadStatusNew LeadStatus = "new"
	// LeadStatusContacted marks leads the user replied to.
	LeadStatusContacted LeadStatus = "contacted"
	// LeadStatusDismissed marks leads the user rejected.
	LeadStatusDismissed LeadStatus = "dismissed"
)

// ScoreMethod records how a relevance score was produced.
type ScoreMethod string

const (
	// ScoreMethodReasoning means the external reasoning service produced the score.
	ScoreMethodReasoning ScoreMethod = "reasoning"
	// ScoreMethodHeuristic means the keyword-overlap fallback produced the score.
	ScoreMethodHeuristic ScoreMethod = "heuristic"
)

// Score bounds.
const (
	MinQualityScore = 0.0
	MaxQualityScore = 10.0
)

// Candidate is a normalized platform post returned by a search.
type Candidate struct {
	PostID      string    `json:"post_id"`
	Community   string    `json:"community"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Author      string    `json:"author"`
	URL         string    `json:"url"`
	Score       int       `json:"score"`
	NumComments int       `json:"num_comments"`
	PostedAt    time.Time `json:"posted_at"`
	Query       string    `json:"query"`
}

// Relevance is the scorer's assessment of a candidate.
type Relevance struct {
	QualityScore   float64     `json:"quality_score"`
	Confidence     float64     `json:"confidence"`
	Reasoning      string      `json:"reasoning"`
	SuggestedReply string      `json:"suggested_reply"`
	Method         ScoreMethod `json:"method"`
}

// ScoredCandidate pairs a candidate with its relevance.
type ScoredCandidate struct {
	Candidate Candidate
	Relevance Relevance
}

// Lead is a scored candidate post surfaced as a sales opportunity.
type Lead struct {
	ID             string      `json:"id"                  db:"id"`
	UserID         string      `json:"user_id"             db:"user_id"`
	ProductID      string      `json:"product_id"          db:"product_id"`
	PlatformPostID string      `json:"platform_post_id"    db:"platform_post_id"`
	Community      string      `json:"community"           db:"community"`
	Title          string      `json:"title"               db:"title"`
	Content        string      `json:"content"             db:"content"`
	Author         string      `json:"author"              db:"author"`
	URL            string      `json:"url"                 db:"url"`
	Score          int         `json:"score"               db:"score"`
	NumComments    int         `json:"num_comments"        db:"num_comments"`
	RelevanceScore float64     `json:"relevance_score"     db:"relevance_score"`
	Confidence     float64     `json:"confidence"          db:"confidence"`
	Reasoning      string      `json:"reasoning"           db:"reasoning"`
	SuggestedReply string      `json:"suggested_reply"     db:"suggested_reply"`
	ScoreMethod    ScoreMethod `json:"score_method"        db:"score_method"`
	Status         LeadStatus  `json:"status"              db:"status"`
	PostedAt       *time.Time  `json:"posted_at,omitempty" db:"posted_at"`
	CreatedAt      time.Time   `json:"created_at"          db:"created_at"`
}

// NewLeadRequest is the insert-if-absent payload for a scored candidate.
type NewLeadRequest struct {
	UserID    string
	ProductID string
	Scored    ScoredCandidate
}

// Validate validates the NewLeadRequest fields.
func (r *NewLeadRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user id is required")
	}
	if strings.TrimSpace(r.ProductID) == "" {
		return errors.New("product id is required")
	}
	if strings.TrimSpace(r.Scored.Candidate.PostID) == "" {
		return errors.New("platform post id is required")
	}
	q := r.Scored.Relevance.QualityScore
	if q < MinQualityScore || q > MaxQualityScore {
		return errors.New("quality score must be between 0 and 10")
	}
	return nil
}
