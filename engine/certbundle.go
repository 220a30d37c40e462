package engine

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/loxdev/acmetls/acme/keys"
	"github.com/loxdev/acmetls/resolver"
)

// serializeBundle concatenates a PKCS#8 private key PEM block with the
// leaf certificate PEM block and any intermediate chain PEM blocks, in
// that order, matching spec.md §3's persisted PEM bundle format.
func serializeBundle(leafKey crypto.Signer, chainDER [][]byte) ([]byte, error) {
	keyDER, err := keys.MarshalPKCS8(leafKey)
	if err != nil {
		return nil, fmt.Errorf("serialize bundle: %w", err)
	}

	var out []byte
	out = append(out, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})...)
	for _, der := range chainDER {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})...)
	}
	return out, nil
}

// parseBundle decodes a PEM bundle produced by serializeBundle (or an
// equivalent PEM chain downloaded from the ACME server and concatenated
// with a leaf key PEM) into a CertifiedKey plus the leaf certificate's
// validity window. It requires at least two PEM blocks — a private key
// followed by one or more certificates — with the private key first.
func parseBundle(bundle []byte) (*resolver.CertifiedKey, time.Time, time.Time, error) {
	var (
		signer   crypto.Signer
		chainDER [][]byte
		rest     = bundle
	)

	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "PRIVATE KEY":
			if signer != nil {
				return nil, time.Time{}, time.Time{}, fmt.Errorf("parse bundle: more than one private key block")
			}
			s, err := keys.UnmarshalPKCS8(block.Bytes)
			if err != nil {
				return nil, time.Time{}, time.Time{}, fmt.Errorf("parse bundle: %w", err)
			}
			signer = s
		case "CERTIFICATE":
			if signer == nil {
				return nil, time.Time{}, time.Time{}, fmt.Errorf("parse bundle: certificate block before private key block")
			}
			chainDER = append(chainDER, block.Bytes)
		default:
			return nil, time.Time{}, time.Time{}, fmt.Errorf("parse bundle: unexpected PEM block type %q", block.Type)
		}
	}

	if signer == nil {
		return nil, time.Time{}, time.Time{}, fmt.Errorf("parse bundle: missing private key block")
	}
	if len(chainDER) == 0 {
		return nil, time.Time{}, time.Time{}, fmt.Errorf("parse bundle: missing certificate block")
	}

	leaf, err := x509.ParseCertificate(chainDER[0])
	if err != nil {
		return nil, time.Time{}, time.Time{}, fmt.Errorf("parse bundle: parse leaf certificate: %w", err)
	}

	key := &resolver.CertifiedKey{Certificate: chainDER, PrivateKey: signer}
	return key, leaf.NotBefore, leaf.NotAfter, nil
}
