package client

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"

	"github.com/loxdev/acmetls/acme"
)

type finalizeRequest struct {
	CSR string `json:"csr"`
}

// Finalize builds a CSR for domains signed by leafKey and submits it to the
// order's finalize URL. The returned Order reflects the server's immediate
// response; the caller must poll GetOrder until its status leaves
// "processing" before fetching the certificate.
func (c *Client) Finalize(ctx context.Context, acct *Account, finalizeURL string, domains []string, leafKey crypto.Signer) (*acme.Order, error) {
	template := &x509.CertificateRequest{
		Subject:  pkix.Name{CommonName: domains[0]},
		DNSNames: domains,
	}
	csrDER, err := x509.CreateCertificateRequest(rand.Reader, template, leafKey)
	if err != nil {
		return nil, &acme.CryptoError{Op: "finalize: create CSR", Err: err}
	}

	payload, err := json.Marshal(finalizeRequest{CSR: base64RawURL(csrDER)})
	if err != nil {
		return nil, &acme.ProtocolError{Op: "finalize", Err: err}
	}

	resp, err := c.signedPost(ctx, acct, finalizeURL, payload)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp) {
		return nil, problemFromResponse("finalize", resp)
	}

	var order acme.Order
	if err := json.Unmarshal(resp.Body, &order); err != nil {
		return nil, &acme.ProtocolError{Op: "finalize", Err: err}
	}
	return &order, nil
}
