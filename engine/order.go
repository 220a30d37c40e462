package engine

import (
	"context"
	"crypto"
	"encoding/pem"

	"golang.org/x/sync/errgroup"

	"github.com/loxdev/acmetls/acme"
	"github.com/loxdev/acmetls/acme/client"
	"github.com/loxdev/acmetls/acme/keys"
)

const orderProcessingMaxAttempts = 10

// runOrder executes one full order attempt for an already registered
// account: new-order (which rediscovers the directory), and the
// pending/processing/ready/valid/invalid status loop. It returns the PEM bundle for a freshly
// issued certificate on success.
func (e *Engine) runOrder(ctx context.Context, acct *client.Account) ([]byte, error) {
	orderURL, order, err := e.client.NewOrder(ctx, acct, e.domains)
	if err != nil {
		return nil, &OrderError{Op: "newOrder", Err: err}
	}

	// A fresh leaf key pair is generated for every order attempt and
	// never persisted or reused across renewals.
	leafKey, err := keys.NewP256Signer()
	if err != nil {
		return nil, &OrderError{Op: "generateLeafKey", Err: err}
	}

	for {
		switch order.Status {
		case acme.OrderStatusPending:
			if err := e.authorizeAll(ctx, acct, order.Authorizations); err != nil {
				return nil, err
			}
			order, err = e.client.GetOrder(ctx, acct, orderURL)
			if err != nil {
				return nil, &OrderError{Op: "getOrder", Err: err}
			}

		case acme.OrderStatusProcessing:
			order, err = e.pollUntilNotProcessing(ctx, acct, orderURL)
			if err != nil {
				return nil, err
			}

		case acme.OrderStatusReady:
			order, err = e.client.Finalize(ctx, acct, order.Finalize, e.domains, leafKey)
			if err != nil {
				return nil, &OrderError{Op: "finalize", Err: err}
			}

		case acme.OrderStatusValid:
			chainPEM, err := e.client.DownloadCertificate(ctx, acct, order.Certificate)
			if err != nil {
				return nil, &OrderError{Op: "downloadCertificate", Err: err}
			}
			return concatLeafKeyWithChain(leafKey, chainPEM)

		case acme.OrderStatusInvalid:
			return nil, &OrderError{Op: "order", Err: &ErrBadOrder{OrderURL: orderURL}}

		default:
			return nil, &OrderError{Op: "order", Err: &ErrBadOrder{OrderURL: orderURL}}
		}
	}
}

// authorizeAll drives every authorization for an order to valid in
// parallel, aborting the whole order attempt on the first failure.
func (e *Engine) authorizeAll(ctx context.Context, acct *client.Account, authzURLs []string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, url := range authzURLs {
		url := url
		g.Go(func() error {
			return e.authorize(gctx, acct, url)
		})
	}
	return g.Wait()
}

func (e *Engine) pollUntilNotProcessing(ctx context.Context, acct *client.Account, orderURL string) (*acme.Order, error) {
	for i := 0; i < orderProcessingMaxAttempts; i++ {
		if err := sleepCtx(ctx, backoffDelay(i)); err != nil {
			return nil, err
		}
		order, err := e.client.GetOrder(ctx, acct, orderURL)
		if err != nil {
			return nil, &OrderError{Op: "getOrder", Err: err}
		}
		if order.Status != acme.OrderStatusProcessing {
			return order, nil
		}
	}
	return nil, &OrderError{Op: "order", Err: &ErrProcessingTimeout{OrderURL: orderURL}}
}

// concatLeafKeyWithChain builds the persisted PEM bundle: the leaf
// private key PEM followed by the server's downloaded certificate chain
// PEM, verbatim.
func concatLeafKeyWithChain(leafKey crypto.Signer, chainPEM []byte) ([]byte, error) {
	keyDER, err := keys.MarshalPKCS8(leafKey)
	if err != nil {
		return nil, &OrderError{Op: "encodeLeafKey", Err: err}
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	return append(keyPEM, chainPEM...), nil
}
