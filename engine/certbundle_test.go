package engine

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSignedDER(t *testing.T, key *ecdsa.PrivateKey, cn string, nb, na time.Time) []byte {
	t.Helper()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    nb,
		NotAfter:     na,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	return der
}

func TestBundleRoundTrip(t *testing.T) {
	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	nb := time.Now().Add(-time.Hour).Truncate(time.Second)
	na := time.Now().Add(89 * 24 * time.Hour).Truncate(time.Second)
	leafDER := selfSignedDER(t, leafKey, "example.test", nb, na)

	bundle, err := serializeBundle(leafKey, [][]byte{leafDER})
	require.NoError(t, err)

	key, gotNB, gotNA, err := parseBundle(bundle)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{leafDER}, key.Certificate)
	assert.WithinDuration(t, nb, gotNB, 0)
	assert.WithinDuration(t, na, gotNA, 0)
}

func TestParseBundleRejectsMissingKey(t *testing.T) {
	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leafDER := selfSignedDER(t, leafKey, "example.test", time.Now(), time.Now().Add(time.Hour))

	bundle, err := serializeBundle(leafKey, [][]byte{leafDER})
	require.NoError(t, err)

	// Strip the private key block, keeping only the certificate block(s).
	_, rest := pem.Decode(bundle)

	_, _, _, err = parseBundle(rest)
	require.Error(t, err)
}
