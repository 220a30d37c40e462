package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirCache persists accounts and certificates as flat files in a single
// directory. It replicates the source's non-atomic write (no
// temp-file-plus-rename): a crash mid-write can leave a truncated file
// that the next load will fail to parse. See DESIGN.md for why this
// behavior is kept rather than hardened.
type DirCache struct {
	dir string
}

// NewDirCache returns a DirCache rooted at dir. The directory is created
// lazily on first write, not at construction time.
func NewDirCache(dir string) *DirCache {
	return &DirCache{dir: dir}
}

func (c *DirCache) String() string {
	return fmt.Sprintf("DirCache(%s)", c.dir)
}

func (c *DirCache) readIfExists(name string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(c.dir, name))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (c *DirCache) write(name string, contents []byte) error {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.dir, name), contents, 0o600)
}

func (c *DirCache) LoadCert(_ context.Context, domains []string, directoryURL string) ([]byte, error) {
	return c.readIfExists(certFileName(domains, directoryURL))
}

func (c *DirCache) StoreCert(_ context.Context, domains []string, directoryURL string, bundle []byte) error {
	return c.write(certFileName(domains, directoryURL), bundle)
}

func (c *DirCache) LoadAccount(_ context.Context, contact []string, directoryURL string) ([]byte, error) {
	return c.readIfExists(accountFileName(contact, directoryURL))
}

func (c *DirCache) StoreAccount(_ context.Context, contact []string, directoryURL string, key []byte) error {
	return c.write(accountFileName(contact, directoryURL), key)
}

var (
	_ CertCache    = (*DirCache)(nil)
	_ AccountCache = (*DirCache)(nil)
	_ Cache        = (*DirCache)(nil)
)
