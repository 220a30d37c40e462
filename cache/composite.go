package cache

import (
	"context"
	"fmt"
)

// CompositeCache composes an independent CertCache and AccountCache into
// a single Cache, so e.g. certificates can live in a DirCache while
// accounts live in a NoCache, or vice versa.
type CompositeCache struct {
	Certs    CertCache
	Accounts AccountCache
}

// NewCompositeCache returns a Cache backed by certs for certificate
// operations and accounts for account operations.
func NewCompositeCache(certs CertCache, accounts AccountCache) *CompositeCache {
	return &CompositeCache{Certs: certs, Accounts: accounts}
}

func (c *CompositeCache) String() string {
	return fmt.Sprintf("CompositeCache(certs: %v, accounts: %v)", c.Certs, c.Accounts)
}

func (c *CompositeCache) LoadCert(ctx context.Context, domains []string, directoryURL string) ([]byte, error) {
	return c.Certs.LoadCert(ctx, domains, directoryURL)
}

func (c *CompositeCache) StoreCert(ctx context.Context, domains []string, directoryURL string, bundle []byte) error {
	return c.Certs.StoreCert(ctx, domains, directoryURL, bundle)
}

func (c *CompositeCache) LoadAccount(ctx context.Context, contact []string, directoryURL string) ([]byte, error) {
	return c.Accounts.LoadAccount(ctx, contact, directoryURL)
}

func (c *CompositeCache) StoreAccount(ctx context.Context, contact []string, directoryURL string, key []byte) error {
	return c.Accounts.StoreAccount(ctx, contact, directoryURL, key)
}

var _ Cache = (*CompositeCache)(nil)
