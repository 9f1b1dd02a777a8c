package config

import (
	"strings"
	"time"
)

// PlatformConfig describes the discussion platform API and its OAuth application.
type PlatformConfig struct {
	BaseURL      string   `env:"API_BASE_URL"  envDefault:"https://oauth.reddit.com"`
	WebURL       string   `env:"WEB_URL"       envDefault:"https://www.reddit.com"`
	AuthURL      string   `env:"AUTH_URL"      envDefault:"https://www.reddit.com/api/v1/authorize"`
	TokenURL     string   `env:"TOKEN_URL"     envDefault:"https://www.reddit.com/api/v1/access_token"`
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	RedirectURL  string   `env:"REDIRECT_URL"`
	Scopes       []string `env:"SCOPES"        envDefault:"identity,read"    envSeparator:","`
	UserAgent    string   `env:"USER_AGENT"    envDefault:"leadwatch/1.0"`

	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT"     envDefault:"15s"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND" envDefault:"1"`
	Burst             int           `env:"BURST"               envDefault:"5"`

	MaxSearchTerms   int    `env:"MAX_SEARCH_TERMS"   envDefault:"5"`
	ResultsPerSearch int    `env:"RESULTS_PER_SEARCH" envDefault:"25"`
	Sort             string `env:"SORT"               envDefault:"new"`
	TimeWindow       string `env:"TIME_WINDOW"        envDefault:"week"`
	MaxPages         int    `env:"MAX_PAGES"          envDefault:"1"`
}

// Sanitize applies guardrails to platform configuration values.
func (p *PlatformConfig) Sanitize() {
	p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
	p.WebURL = strings.TrimRight(strings.TrimSpace(p.WebURL), "/")
	p.ClientID = strings.TrimSpace(p.ClientID)
	p.ClientSecret = strings.TrimSpace(p.ClientSecret)
	if strings.TrimSpace(p.UserAgent) == "" {
		p.UserAgent = "leadwatch/1.0"
	}
	if p.RequestTimeout < time.Second {
		p.RequestTimeout = time.Second
	}
	if p.RequestTimeout > 20*time.Second {
		p.RequestTimeout = 20 * time.Second
	}
	if p.RequestsPerSecond <= 0 {
		p.RequestsPerSecond = 1
	}
	if p.Burst < 1 {
		p.Burst = 1
	}
	if p.MaxSearchTerms < 1 {
		p.MaxSearchTerms = 1
	}
	if p.ResultsPerSearch < 1 {
		p.ResultsPerSearch = 1
	}
	if p.ResultsPerSearch > 100 {
		p.ResultsPerSearch = 100
	}
	if p.MaxPages < 1 {
		p.MaxPages = 1
	}
}

// HasAppCredentials reports whether app-only tokens can be requested.
func (p *PlatformConfig) HasAppCredentials() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// ReasoningConfig describes the OpenAI-compatible reasoning service used for scoring.
type ReasoningConfig struct {
	Enabled    bool          `env:"ENABLED"     envDefault:"false"`
	APIKey     string        `env:"API_KEY"`
	BaseURL    string        `env:"BASE_URL"`
	Model      string        `env:"MODEL"       envDefault:"gpt-4o-mini"`
	Timeout    time.Duration `env:"TIMEOUT"     envDefault:"20s"`
	MaxRetries int           `env:"MAX_RETRIES" envDefault:"2"`
}

// Sanitize applies guardrails to reasoning configuration values.
// Without an API key the scorer runs heuristic-only.
func (r *ReasoningConfig) Sanitize() {
	r.APIKey = strings.TrimSpace(r.APIKey)
	r.BaseURL = strings.TrimSpace(r.BaseURL)
	if r.APIKey == "" {
		r.Enabled = false
	}
	if r.Timeout <= 0 {
		r.Timeout = 20 * time.Second
	}
	if r.MaxRetries < 0 {
		r.MaxRetries = 0
	}
}
