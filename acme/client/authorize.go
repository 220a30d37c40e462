package client

import (
	"context"
	"encoding/json"

	"github.com/loxdev/acmetls/acme"
)

// GetAuthorization fetches an Authorization resource by POST-as-GET.
func (c *Client) GetAuthorization(ctx context.Context, acct *Account, authzURL string) (*acme.Authorization, error) {
	resp, err := c.postAsGet(ctx, acct, authzURL)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp) {
		return nil, problemFromResponse("getAuthorization", resp)
	}
	var authz acme.Authorization
	if err := json.Unmarshal(resp.Body, &authz); err != nil {
		return nil, &acme.ProtocolError{Op: "getAuthorization", Err: err}
	}
	return &authz, nil
}

// TLSALPN01Challenge returns the tls-alpn-01 Challenge from authz, or
// ErrNoTLSALPN01Challenge if the server did not offer one.
func TLSALPN01Challenge(authz *acme.Authorization) (*acme.Challenge, error) {
	for i := range authz.Challenges {
		if authz.Challenges[i].Type == acme.TLS_ALPN_CHALLENGE_TYPE {
			return &authz.Challenges[i], nil
		}
	}
	return nil, acme.ErrNoTLSALPN01Challenge
}

// TriggerChallenge tells the server the client believes it has satisfied
// the challenge at challengeURL and is ready to be validated. The server responds with the
// Challenge's current state; subsequent progress is observed by polling
// the parent Authorization.
func (c *Client) TriggerChallenge(ctx context.Context, acct *Account, challengeURL string) error {
	resp, err := c.signedPost(ctx, acct, challengeURL, []byte("{}"))
	if err != nil {
		return err
	}
	if !isSuccess(resp) {
		return problemFromResponse("triggerChallenge", resp)
	}
	return nil
}
