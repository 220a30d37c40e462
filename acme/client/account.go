package client

import (
	"context"
	"crypto"
	"encoding/json"
	"net/http"

	"github.com/loxdev/acmetls/acme"
)

type newAccountRequest struct {
	Contact                []string                  `json:"contact,omitempty"`
	TermsOfServiceAgreed   bool                       `json:"termsOfServiceAgreed"`
	ExternalAccountBinding *externalAccountBindingJWS `json:"externalAccountBinding,omitempty"`
}

// CreateAccount registers signer as an ACME account, agreeing to the
// server's terms of service unconditionally, and returns an Account bound
// to the server-assigned kid. If the server already has an account under
// this key it returns the existing kid instead of creating a duplicate
// (RFC 8555 §7.3.1's "onlyReturnExisting"-free happy path: any repeat
// registration of the same key is idempotent).
func (c *Client) CreateAccount(ctx context.Context, signer crypto.Signer, contact []string, eab *acme.ExternalAccountKey) (*Account, error) {
	dir, err := c.Directory(ctx)
	if err != nil {
		return nil, err
	}
	if dir.NewAccount == "" {
		return nil, &acme.TransportError{Op: "newAccount", Header: "newAccount endpoint missing from directory"}
	}

	req := newAccountRequest{
		Contact:              contact,
		TermsOfServiceAgreed: true,
	}
	if eab != nil {
		binding, err := buildExternalAccountBinding(dir.NewAccount, signer, eab)
		if err != nil {
			return nil, err
		}
		req.ExternalAccountBinding = binding
	}

	payload, err := json.Marshal(&req)
	if err != nil {
		return nil, &acme.ProtocolError{Op: "newAccount", Err: err}
	}

	acct := &Account{Signer: signer}
	resp, err := c.signedPost(ctx, acct, dir.NewAccount, payload)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, problemFromResponse("newAccount", resp)
	}

	kid := resp.Header.Get(acme.LOCATION_HEADER)
	if kid == "" {
		return nil, &acme.TransportError{Op: "newAccount", Header: acme.LOCATION_HEADER}
	}

	acct.Kid = kid
	return acct, nil
}

// externalAccountBindingJWS is the flattened JWS envelope carried in the
// externalAccountBinding field of a newAccount request.
type externalAccountBindingJWS struct {
	Protected string `json:"protected"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

func buildExternalAccountBinding(newAccountURL string, signer crypto.Signer, eab *acme.ExternalAccountKey) (*externalAccountBindingJWS, error) {
	jwk := signerJWK(signer)
	payload, err := json.Marshal(jwk)
	if err != nil {
		return nil, &acme.ProtocolError{Op: "eab", Err: err}
	}

	full, err := signHS256(newAccountURL, eab.Key, eab.KID, payload)
	if err != nil {
		return nil, err
	}

	var flattened externalAccountBindingJWS
	if err := json.Unmarshal(full, &flattened); err != nil {
		return nil, &acme.ProtocolError{Op: "eab", Err: err}
	}
	return &flattened, nil
}
