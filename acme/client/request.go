package client

import (
	"context"

	"github.com/loxdev/acmetls/acme"
)

// signedPost signs payload for url (embedding the account's public key if
// acct.Kid is still empty, i.e. before the account exists) and POSTs it,
// stashing any fresh nonce the response carries.
func (c *Client) signedPost(ctx context.Context, acct *Account, url string, payload []byte) (*rawResponse, error) {
	var jws []byte
	var err error
	if acct.Kid == "" {
		jws, err = c.signEmbedded(ctx, url, acct.Signer, payload)
	} else {
		jws, err = c.signKeyID(ctx, url, acct.Kid, acct.Signer, payload)
	}
	if err != nil {
		return nil, err
	}

	resp, err := c.transport.post(ctx, url, jws)
	if err != nil {
		return nil, &acme.TransportError{Op: "post", Err: err}
	}
	c.stashNonce(resp)
	return resp, nil
}

// postAsGet performs the POST-as-GET fetch pattern (RFC 8555 §6.3) used to
// refresh Order, Authorization and Challenge resources.
func (c *Client) postAsGet(ctx context.Context, acct *Account, url string) (*rawResponse, error) {
	return c.signedPost(ctx, acct, url, []byte{})
}

func isSuccess(resp *rawResponse) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func problemFromResponse(op string, resp *rawResponse) error {
	return &acme.TransportError{Op: op, StatusCode: resp.StatusCode, Body: string(resp.Body)}
}
