package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/leadwatch/leadwatch/internal/bootstrap"
	"github.com/leadwatch/leadwatch/internal/domain/model"
)

type connectOptions struct {
	UserID       string
	Code         string
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	Scope        string
	Timeout      time.Duration
}

func parseConnectFlags(args []string) (connectOptions, error) {
	fs := newFlagSet("connect-credential")
	opts := connectOptions{}
	fs.StringVar(&opts.UserID, "user", "", "User ID the credential belongs to")
	fs.StringVar(&opts.Code, "code", "", "Authorization code returned by the platform's consent screen")
	fs.StringVar(&opts.AccessToken, "access-token", "", "Access token, when importing tokens directly")
	fs.StringVar(&opts.RefreshToken, "refresh-token", "", "Refresh token, when importing tokens directly")
	fs.DurationVar(&opts.ExpiresIn, "expires-in", time.Hour, "Access token lifetime, when importing tokens directly")
	fs.StringVar(&opts.Scope, "scope", "", "Granted scopes, when importing tokens directly")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the command")
	if err := fs.Parse(args); err != nil {
		return connectOptions{}, err
	}

	if strings.TrimSpace(opts.UserID) == "" {
		return connectOptions{}, errors.New("--user is required")
	}
	hasCode := strings.TrimSpace(opts.Code) != ""
	hasTokens := strings.TrimSpace(opts.AccessToken) != "" || strings.TrimSpace(opts.RefreshToken) != ""
	switch {
	case hasCode && hasTokens:
		return connectOptions{}, errors.New("--code cannot be combined with --access-token/--refresh-token")
	case !hasCode && !hasTokens:
		return connectOptions{}, errors.New("either --code or --access-token and --refresh-token is required")
	case hasTokens && (strings.TrimSpace(opts.AccessToken) == "" || strings.TrimSpace(opts.RefreshToken) == ""):
		return connectOptions{}, errors.New("--access-token and --refresh-token must be given together")
	}
	if hasTokens && opts.ExpiresIn <= 0 {
		return connectOptions{}, errors.New("--expires-in must be greater than zero")
	}
	if opts.Timeout <= 0 {
		return connectOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func (o connectOptions) directGrant(now time.Time) model.TokenGrant {
	return model.TokenGrant{
		AccessToken:  o.AccessToken,
		RefreshToken: o.RefreshToken,
		ExpiresAt:    now.Add(o.ExpiresIn).UTC(),
		Scope:        o.Scope,
	}
}

func runConnectCredential(cmdCtx *commandContext, args []string) error {
	opts, err := parseConnectFlags(args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
		var grant model.TokenGrant
		if opts.Code != "" {
			if svc.OAuth == nil {
				return errors.New("platform OAuth client is not configured; set PLATFORM_CLIENT_ID and PLATFORM_CLIENT_SECRET")
			}
			g, exErr := svc.OAuth.Exchange(ctx, opts.Code)
			if exErr != nil {
				return exErr
			}
			grant = g
		} else {
			grant = opts.directGrant(time.Now())
		}

		res, connErr := svc.Lifecycle.HandleCredentialConnected(ctx, opts.UserID, grant)
		if connErr != nil {
			return connErr
		}
		if err := writef(cmdCtx.Out, "credential stored for %s (expires %s); %d job(s) ensured, %d reactivated\n",
			opts.UserID,
			res.Credential.ExpiresAt.UTC().Format(time.RFC3339),
			len(res.Jobs),
			res.Reactivated,
		); err != nil {
			return err
		}
		return printJobs(cmdCtx.Out, res.Jobs)
	})
}

func runRefreshCredentials(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("refresh-credentials")
	timeout := fs.Duration("timeout", defaultCommandTimeout, "Maximum duration for the pass")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *timeout <= 0 {
		return errors.New("--timeout must be greater than zero")
	}
	return withServices(cmdCtx, *timeout, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
		sum, refreshErr := svc.Credentials.RefreshExpiring(ctx)
		if refreshErr != nil {
			return refreshErr
		}
		return writef(cmdCtx.Out, "checked=%d refreshed=%d revoked=%d failed=%d\n",
			sum.Checked, sum.Refreshed, sum.Revoked, sum.Failed)
	})
}
