// Package acmeconfig assembles the configuration a terminator needs to
// construct an acme client, a cache, and a lifecycle engine, following the
// same normalize-then-validate pattern the ACME client config uses.
package acmeconfig

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/loxdev/acmetls/acme"
	"github.com/loxdev/acmetls/cache"
)

// Config is the full set of knobs a terminator needs to run the ACME
// lifecycle engine for one certificate.
type Config struct {
	// Domains is the ordered, non-empty list of DNS names the certificate
	// must cover. The first entry is also used as the subject common name
	// of the CSR submitted at finalize.
	Domains []string
	// Contact is the ordered list of contact URIs passed to newAccount
	// (e.g. "mailto:ops@example.com"). May be empty.
	Contact []string
	// DirectoryURL is the ACME server's directory resource. Defaults to
	// the Let's Encrypt production directory if empty.
	DirectoryURL string
	// EABKeyID and EABKey configure External Account Binding. Both must
	// be set, or neither.
	EABKeyID string
	EABKey   []byte
	// CacheDir, if non-empty, selects a DirCache rooted at this
	// directory. If empty, NoCache is used and nothing is persisted.
	CacheDir string
	// HTTPClient is used for all requests to the ACME server. Set its
	// Transport's TLSClientConfig to pin a private CA root, e.g. for a
	// local Pebble or Boulder test instance.
	HTTPClient *http.Client
}

// normalize trims whitespace, applies defaults, and validates the
// combination of fields is usable. It does not perform I/O.
func (c *Config) normalize() error {
	c.DirectoryURL = strings.TrimSpace(c.DirectoryURL)
	if c.DirectoryURL == "" {
		c.DirectoryURL = acme.LETS_ENCRYPT_PRODUCTION_DIRECTORY
	}

	if len(c.Domains) == 0 {
		return fmt.Errorf("acmeconfig: Domains must not be empty")
	}
	for i, d := range c.Domains {
		d = strings.TrimSpace(strings.ToLower(d))
		if d == "" {
			return fmt.Errorf("acmeconfig: Domains[%d] must not be empty", i)
		}
		c.Domains[i] = d
	}

	if (c.EABKeyID == "") != (len(c.EABKey) == 0) {
		return fmt.Errorf("acmeconfig: EABKeyID and EABKey must be set together")
	}

	return nil
}

// ExternalAccountKey returns the EAB key this config describes, or nil if
// EAB is not configured.
func (c *Config) ExternalAccountKey() *acme.ExternalAccountKey {
	if c.EABKeyID == "" {
		return nil
	}
	return &acme.ExternalAccountKey{KID: c.EABKeyID, Key: c.EABKey}
}

// Cache builds the persistence layer this config describes.
func (c *Config) Cache() cache.Cache {
	if c.CacheDir == "" {
		return cache.NoCache{}
	}
	return cache.NewDirCache(c.CacheDir)
}

// Validate normalizes and checks c, returning the first problem found.
func Validate(c *Config) error {
	return c.normalize()
}
