package client

import (
	"context"
	"crypto"
	"net/http"

	"github.com/loxdev/acmetls/acme"
	"github.com/loxdev/acmetls/acme/keys"

	jose "github.com/go-jose/go-jose/v4"
)

// ctxNonceSource adapts Client's nonce cache to the jose.NonceSource
// interface, which has no context parameter of its own.
type ctxNonceSource struct {
	ctx    context.Context
	client *Client
}

func (n ctxNonceSource) Nonce() (string, error) {
	return n.client.takeNonce(n.ctx)
}

// takeNonce returns a nonce ready for immediate use, fetching one from the
// server's newNonce endpoint if none is cached.
func (c *Client) takeNonce(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nonce != "" {
		n := c.nonce
		c.nonce = ""
		return n, nil
	}
	return c.refreshNonceLocked(ctx)
}

// stashNonce records a nonce value observed on a response for reuse by the
// next signed request, avoiding an extra round trip when possible.
func (c *Client) stashNonce(resp *rawResponse) {
	if n := resp.Header.Get(acme.REPLAY_NONCE_HEADER); n != "" {
		c.mu.Lock()
		c.nonce = n
		c.mu.Unlock()
	}
}

func (c *Client) refreshNonceLocked(ctx context.Context) (string, error) {
	dir, err := c.Directory(ctx)
	if err != nil {
		return "", err
	}
	if dir.NewNonce == "" {
		return "", &acme.TransportError{Op: "newNonce", Header: "newNonce endpoint missing from directory"}
	}

	resp, err := c.transport.head(ctx, dir.NewNonce)
	if err != nil {
		return "", &acme.TransportError{Op: "newNonce", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &acme.TransportError{Op: "newNonce", StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	nonce := resp.Header.Get(acme.REPLAY_NONCE_HEADER)
	if nonce == "" {
		return "", &acme.TransportError{Op: "newNonce", Header: acme.REPLAY_NONCE_HEADER}
	}
	return nonce, nil
}

// signEmbedded produces a JWS with the signer's public key embedded as a
// JWK. This is required for newAccount requests, before a kid exists.
func (c *Client) signEmbedded(ctx context.Context, url string, signer crypto.Signer, payload []byte) ([]byte, error) {
	signingKey := keys.SigningKeyForSigner(signer, "")
	signer4, err := jose.NewSigner(signingKey, &jose.SignerOptions{
		NonceSource: ctxNonceSource{ctx: ctx, client: c},
		EmbedJWK:    true,
		ExtraHeaders: map[jose.HeaderKey]interface{}{
			"url": url,
		},
	})
	if err != nil {
		return nil, &acme.CryptoError{Op: "sign", Err: err}
	}
	return finishSign(signer4, payload)
}

// signKeyID produces a JWS identifying the account by kid rather than an
// embedded JWK. Used for every authenticated request after account
// creation.
func (c *Client) signKeyID(ctx context.Context, url, kid string, signer crypto.Signer, payload []byte) ([]byte, error) {
	signingKey := keys.SigningKeyForSigner(signer, kid)
	signer4, err := jose.NewSigner(signingKey, &jose.SignerOptions{
		NonceSource: ctxNonceSource{ctx: ctx, client: c},
		ExtraHeaders: map[jose.HeaderKey]interface{}{
			"url": url,
		},
	})
	if err != nil {
		return nil, &acme.CryptoError{Op: "sign", Err: err}
	}
	return finishSign(signer4, payload)
}

// finishSign signs payload and returns the flattened JSON serialization
// ACME requires (RFC 8555 §6.2); JWS compact form is not valid here since
// ACME JWS never has a detached/empty payload exception.
func finishSign(signer jose.Signer, payload []byte) ([]byte, error) {
	signed, err := signer.Sign(payload)
	if err != nil {
		return nil, &acme.CryptoError{Op: "sign", Err: err}
	}
	return []byte(signed.FullSerialize()), nil
}

// signerJWK returns the public JWK representation of signer, used when
// embedding a key or building an External Account Binding payload.
func signerJWK(signer crypto.Signer) jose.JSONWebKey {
	return keys.JWKForSigner(signer)
}

// signHS256 produces the HS256-signed inner JWS used to bind a new account
// key to an External Account Binding key, per RFC 8555 §7.3.4.
func signHS256(url string, hmacKey []byte, kid string, payload []byte) ([]byte, error) {
	sharedKey := jose.SigningKey{
		Algorithm: jose.HS256,
		Key: jose.JSONWebKey{
			Key:   hmacKey,
			KeyID: kid,
		},
	}
	signer, err := jose.NewSigner(sharedKey, &jose.SignerOptions{
		ExtraHeaders: map[jose.HeaderKey]interface{}{
			"url": url,
		},
	})
	if err != nil {
		return nil, &acme.CryptoError{Op: "eab sign", Err: err}
	}
	signed, err := signer.Sign(payload)
	if err != nil {
		return nil, &acme.CryptoError{Op: "eab sign", Err: err}
	}
	return []byte(signed.FullSerialize()), nil
}
