package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/loxdev/acmetls/acme/client"
	"github.com/loxdev/acmetls/acme/keys"
)

// loadOrCreateAccount adopts the cached account key if one was loaded at
// startup (invariant (c): a persisted account key is never regenerated
// while cached), otherwise generates a fresh P-256 key, registers it with
// the ACME server, and queues the resulting PKCS#8 DER bytes to be
// written to the account cache as the engine's next early action.
func (e *Engine) loadOrCreateAccount(ctx context.Context) (*client.Account, error) {
	if e.accountSigner != nil {
		return e.client.CreateAccount(ctx, e.accountSigner, e.contact, e.eab)
	}

	signer, err := keys.NewP256Signer()
	if err != nil {
		return nil, &OrderError{Op: "generateAccountKey", Err: err}
	}

	acct, err := e.client.CreateAccount(ctx, signer, e.contact, e.eab)
	if err != nil {
		return nil, &OrderError{Op: "newAccount", Err: err}
	}

	e.accountSigner = signer
	der, err := keys.MarshalPKCS8(signer)
	if err != nil {
		return nil, &OrderError{Op: "encodeAccountKey", Err: err}
	}
	e.queueEarlyAction(func(ctx context.Context) Event {
		if err := e.cache.StoreAccount(ctx, e.contact, e.directoryURL, der); err != nil {
			return Event{Err: &CacheError{Op: "storeAccount", Store: true, Err: err}}
		}
		zerolog.Ctx(ctx).Info().Msg("stored account key in account cache")
		return Event{Kind: AccountCacheStore}
	})

	return acct, nil
}

// restoreAccount loads a previously persisted account key from the
// account cache, if any, adopting it as e.accountSigner.
func (e *Engine) restoreAccount(ctx context.Context) error {
	der, err := e.cache.LoadAccount(ctx, e.contact, e.directoryURL)
	if err != nil {
		return &CacheError{Op: "loadAccount", Err: err}
	}
	if der == nil {
		return nil
	}

	signer, err := keys.UnmarshalPKCS8(der)
	if err != nil {
		return fmt.Errorf("restore account: %w", err)
	}
	e.accountSigner = signer
	return nil
}
