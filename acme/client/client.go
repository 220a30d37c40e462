// Package client is a low-level ACME v2 (RFC 8555) client used by the
// lifecycle engine to discover a CA's directory, manage accounts and
// orders, and drive the tls-alpn-01 challenge to completion.
package client

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/loxdev/acmetls/acme"
)

// Client talks to a single ACME server. It caches the most recently
// observed Replay-Nonce so callers don't need to manage one themselves;
// the directory is rediscovered on every call rather than cached. A
// Client has no notion of "the" account; every account-scoped operation
// takes an *Account explicitly, so one Client can drive many accounts
// concurrently.
type Client struct {
	directoryURL string
	transport    *transport

	mu    sync.Mutex
	nonce string
}

// Config configures a new Client.
type Config struct {
	// DirectoryURL is the ACME server's directory resource URL. Required.
	DirectoryURL string
	// HTTPClient is used for all requests to the ACME server. If nil,
	// http.DefaultClient is used. Set its Transport's TLSClientConfig to
	// pin a private CA root (e.g. for a staging or Pebble instance).
	HTTPClient *http.Client
}

func (c *Config) normalize() error {
	c.DirectoryURL = strings.TrimSpace(c.DirectoryURL)
	if c.DirectoryURL == "" {
		return fmt.Errorf("DirectoryURL must not be empty")
	}
	return nil
}

// New creates a Client from the given Config. It does not contact the
// server; the directory is fetched lazily on first use.
func New(config Config) (*Client, error) {
	if err := config.normalize(); err != nil {
		return nil, err
	}
	return &Client{
		directoryURL: config.DirectoryURL,
		transport:    newTransport(config.HTTPClient),
	}, nil
}

// Directory fetches the ACME server's directory resource. It is
// rediscovered on every call rather than cached, matching the reference
// implementation's per-order-attempt discovery.
func (c *Client) Directory(ctx context.Context) (*acme.Directory, error) {
	resp, err := c.transport.get(ctx, c.directoryURL)
	if err != nil {
		return nil, &acme.TransportError{Op: "directory", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &acme.TransportError{Op: "directory", StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var dir acme.Directory
	if err := json.Unmarshal(resp.Body, &dir); err != nil {
		return nil, &acme.ProtocolError{Op: "directory", Err: err}
	}

	return &dir, nil
}

// Account bundles the key and server-assigned identifier used to
// authenticate ACME requests on behalf of a registered account.
type Account struct {
	Signer crypto.Signer
	Kid    string
}
