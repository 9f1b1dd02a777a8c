// Package mocks provides gomock doubles for the leadwatch core ports.
//
// Repository ports are covered by the in-memory stores in internal/testutil/fakes, which keep
// the claim and unique-key semantics of Postgres. The mocks here cover the outbound adapters
// (platform, reasoning, token exchange) where tests need to script exact call sequences.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	searcher := mocks.NewMockPlatformSearcher(ctrl)
//	searcher.EXPECT().Search(gomock.Any(), gomock.Any()).Return(candidates, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=token_refresher_mock.go github.com/leadwatch/leadwatch/internal/core TokenRefresher
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=app_token_source_mock.go github.com/leadwatch/leadwatch/internal/core AppTokenSource
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=token_cache_mock.go github.com/leadwatch/leadwatch/internal/core TokenCache

// Discovery pipeline ports.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=platform_searcher_mock.go github.com/leadwatch/leadwatch/internal/core PlatformSearcher
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=reasoning_client_mock.go github.com/leadwatch/leadwatch/internal/core ReasoningClient
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=credential_resolver_mock.go github.com/leadwatch/leadwatch/internal/core CredentialResolver
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_executor_mock.go github.com/leadwatch/leadwatch/internal/core JobExecutor
