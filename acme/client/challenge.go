package client

import (
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"time"

	"github.com/loxdev/acmetls/acme"
	"github.com/loxdev/acmetls/acme/keys"
)

// TLSALPN01Cert builds a self-signed validation certificate for domain
// carrying the critical acmeIdentifier extension required by RFC 8737 §3:
// a DER OCTET STRING wrapping SHA-256(key authorization). It returns the
// certificate's DER bytes and the fresh leaf key that signed it. The
// tls-alpn-01 demultiplexer presents this certificate instead of the live
// production certificate for the duration of the challenge handshake.
func TLSALPN01Cert(acctSigner crypto.Signer, token, domain string) (certDER []byte, leafKey crypto.Signer, err error) {
	keyAuth := keys.KeyAuth(acctSigner, token)
	digest := sha256.Sum256([]byte(keyAuth))

	extValue, err := asn1.Marshal(digest[:])
	if err != nil {
		return nil, nil, &acme.CryptoError{Op: "tls-alpn-01: marshal extension", Err: err}
	}

	leaf, err := keys.NewP256Signer()
	if err != nil {
		return nil, nil, &acme.CryptoError{Op: "tls-alpn-01: generate leaf key", Err: err}
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, &acme.CryptoError{Op: "tls-alpn-01: serial", Err: err}
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: domain},
		DNSNames:     []string{domain},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		ExtraExtensions: []pkix.Extension{
			{
				Id:       acme.AcmeIdentifierOID,
				Critical: true,
				Value:    extValue,
			},
		},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, leaf.Public(), leaf)
	if err != nil {
		return nil, nil, &acme.CryptoError{Op: fmt.Sprintf("tls-alpn-01: create certificate for %s", domain), Err: err}
	}

	return der, leaf, nil
}
