// Package cache defines the pluggable persistence contract the lifecycle
// engine uses to load and store accounts and certificates, plus a few
// illustrative implementations. The engine treats every cache as an
// external collaborator: it calls the interface, never a concrete type.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
)

// CertCache loads and stores the PEM bundle for a set of domains.
// LoadCert returns (nil, nil) for "no entry"; a non-nil error means the
// lookup itself failed and the caller must not proceed as if empty.
type CertCache interface {
	LoadCert(ctx context.Context, domains []string, directoryURL string) ([]byte, error)
	StoreCert(ctx context.Context, domains []string, directoryURL string, bundle []byte) error
}

// AccountCache loads and stores the PKCS#8 DER bytes of an account key.
type AccountCache interface {
	LoadAccount(ctx context.Context, contact []string, directoryURL string) ([]byte, error)
	StoreAccount(ctx context.Context, contact []string, directoryURL string, key []byte) error
}

// Cache is the full contract the engine is configured with.
type Cache interface {
	CertCache
	AccountCache
	String() string
}

// certFileName derives the cached_cert_ file name for domains and
// directoryURL: SHA-256 over each domain's bytes terminated by a zero
// byte, followed by the directory URL, base64url-no-pad encoded.
func certFileName(domains []string, directoryURL string) string {
	return "cached_cert_" + digestName(domains, directoryURL)
}

// accountFileName derives the cached_account_ file name the same way,
// over the ordered contact list instead of domains.
func accountFileName(contact []string, directoryURL string) string {
	return "cached_account_" + digestName(contact, directoryURL)
}

func digestName(elements []string, directoryURL string) string {
	h := sha256.New()
	for _, el := range elements {
		h.Write([]byte(el))
		h.Write([]byte{0})
	}
	h.Write([]byte(directoryURL))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
