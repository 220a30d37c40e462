package client

import (
	"context"
	"encoding/base64"

	"github.com/loxdev/acmetls/acme"
)

func base64RawURL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// DownloadCertificate fetches the issued certificate chain in PEM form
// from an order's certificate URL. The returned bytes are the leaf
// certificate followed by any intermediates, as served by the CA.
func (c *Client) DownloadCertificate(ctx context.Context, acct *Account, certURL string) ([]byte, error) {
	resp, err := c.postAsGet(ctx, acct, certURL)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp) {
		return nil, problemFromResponse("downloadCertificate", resp)
	}
	return resp.Body, nil
}
