package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestNameOrderAndStability(t *testing.T) {
	a := certFileName([]string{"a.test", "b.test"}, "https://dir")
	b := certFileName([]string{"b.test", "a.test"}, "https://dir")
	assert.NotEqual(t, a, b, "reordering inputs must change the cache key")

	c := certFileName([]string{"a.test", "b.test"}, "https://dir")
	assert.Equal(t, a, c, "identical inputs must derive identical keys")
}

func TestDirCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := NewDirCache(dir)
	ctx := context.Background()

	domains := []string{"example.test"}
	directoryURL := "https://acme.example/directory"

	got, err := c.LoadCert(ctx, domains, directoryURL)
	require.NoError(t, err)
	require.Nil(t, got, "no entry yet")

	want := []byte("pem bundle contents")
	require.NoError(t, c.StoreCert(ctx, domains, directoryURL, want))

	got, err = c.LoadCert(ctx, domains, directoryURL)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDirCacheWritesUnderSuppliedDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	c := NewDirCache(dir)
	ctx := context.Background()

	require.NoError(t, c.StoreAccount(ctx, []string{"mailto:a@example.test"}, "https://dir", []byte("key-der")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNoCacheAlwaysMisses(t *testing.T) {
	var c NoCache
	ctx := context.Background()

	got, err := c.LoadCert(ctx, []string{"example.test"}, "https://dir")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.StoreCert(ctx, []string{"example.test"}, "https://dir", []byte("ignored")))
}

func TestCompositeCacheDelegates(t *testing.T) {
	certDir := t.TempDir()
	acctDir := t.TempDir()
	composite := NewCompositeCache(NewDirCache(certDir), NewDirCache(acctDir))
	ctx := context.Background()

	require.NoError(t, composite.StoreCert(ctx, []string{"example.test"}, "https://dir", []byte("cert")))
	require.NoError(t, composite.StoreAccount(ctx, []string{"mailto:a@example.test"}, "https://dir", []byte("acct")))

	certEntries, err := os.ReadDir(certDir)
	require.NoError(t, err)
	assert.Len(t, certEntries, 1)

	acctEntries, err := os.ReadDir(acctDir)
	require.NoError(t, err)
	assert.Len(t, acctEntries, 1)
}

func TestTestCacheAlwaysFindsACert(t *testing.T) {
	c, err := NewTestCache()
	require.NoError(t, err)

	bundle, err := c.LoadCert(context.Background(), []string{"example.test"}, "https://dir")
	require.NoError(t, err)
	assert.NotEmpty(t, bundle)
}
