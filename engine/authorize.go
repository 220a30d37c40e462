package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/loxdev/acmetls/acme"
	"github.com/loxdev/acmetls/acme/client"
	"github.com/loxdev/acmetls/resolver"
)

const authorizeMaxAttempts = 5

// authorize drives a single authorization to "valid". If it is already
// valid, it returns immediately. If pending, it publishes a tls-alpn-01
// validation certificate under the authorization's domain and triggers
// the challenge, then polls with exponential 2^i second spacing up to
// authorizeMaxAttempts times, re-triggering the challenge on every
// "pending" observation. Any other terminal status is a BadAuth error;
// exhausting the attempt budget is a TooManyAttemptsAuth error.
func (e *Engine) authorize(ctx context.Context, acct *client.Account, authzURL string) error {
	authz, err := e.client.GetAuthorization(ctx, acct, authzURL)
	if err != nil {
		return &OrderError{Op: "getAuthorization", Err: err}
	}

	if authz.Status == acme.AuthStatusValid {
		return nil
	}
	if authz.Status != acme.AuthStatusPending {
		return &OrderError{Op: "authorize", Err: &ErrBadAuth{AuthzURL: authzURL, Status: authz.Status}}
	}

	domain := authz.Identifier.Value
	chall, err := client.TLSALPN01Challenge(authz)
	if err != nil {
		return &OrderError{Op: "authorize", Err: err}
	}

	certDER, leafKey, err := client.TLSALPN01Cert(acct.Signer, chall.Token, domain)
	if err != nil {
		return &OrderError{Op: "authorize", Err: err}
	}
	e.resolver.SetAuthKey(domain, &resolver.CertifiedKey{Certificate: [][]byte{certDER}, PrivateKey: leafKey})
	defer e.resolver.ClearAuthKey(domain)

	if err := e.client.TriggerChallenge(ctx, acct, chall.URL); err != nil {
		return &OrderError{Op: "triggerChallenge", Err: err}
	}

	for i := 0; i < authorizeMaxAttempts; i++ {
		if err := sleepCtx(ctx, backoffDelay(i)); err != nil {
			return err
		}

		authz, err = e.client.GetAuthorization(ctx, acct, authzURL)
		if err != nil {
			return &OrderError{Op: "getAuthorization", Err: err}
		}

		switch authz.Status {
		case acme.AuthStatusValid:
			zerolog.Ctx(ctx).Info().Str("domain", domain).Msg("authorization valid")
			return nil
		case acme.AuthStatusPending:
			if err := e.client.TriggerChallenge(ctx, acct, chall.URL); err != nil {
				return &OrderError{Op: "triggerChallenge", Err: err}
			}
			continue
		default:
			return &OrderError{Op: "authorize", Err: &ErrBadAuth{AuthzURL: authzURL, Status: authz.Status}}
		}
	}

	return &OrderError{Op: "authorize", Err: &ErrTooManyAttemptsAuth{AuthzURL: authzURL}}
}

func backoffDelay(n int) time.Duration {
	return (1 << n) * backoffUnit
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
