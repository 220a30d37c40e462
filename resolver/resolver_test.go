package resolver

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveNoKeysPublished(t *testing.T) {
	r := New()
	cert, ok := r.Resolve(&tls.ClientHelloInfo{ServerName: "example.test"})
	require.False(t, ok)
	require.Nil(t, cert)
}

func TestResolveLiveKey(t *testing.T) {
	r := New()
	live := &CertifiedKey{Certificate: [][]byte{[]byte("leaf")}}
	r.SetCert(live)

	cert, ok := r.Resolve(&tls.ClientHelloInfo{ServerName: "example.test"})
	require.True(t, ok)
	assert.Equal(t, live.Certificate, cert.Certificate)
}

func TestResolvePrefersAuthKeyDuringTLSALPN01(t *testing.T) {
	r := New()
	live := &CertifiedKey{Certificate: [][]byte{[]byte("leaf")}}
	r.SetCert(live)
	auth := &CertifiedKey{Certificate: [][]byte{[]byte("challenge")}}
	r.SetAuthKey("example.test", auth)

	hello := &tls.ClientHelloInfo{ServerName: "example.test", SupportedProtos: []string{"acme-tls/1"}}
	cert, ok := r.Resolve(hello)
	require.True(t, ok)
	assert.Equal(t, auth.Certificate, cert.Certificate)

	// A production handshake for the same SNI still gets the live key.
	cert, ok = r.Resolve(&tls.ClientHelloInfo{ServerName: "example.test"})
	require.True(t, ok)
	assert.Equal(t, live.Certificate, cert.Certificate)
}

func TestClearAuthKeyFallsBackToLive(t *testing.T) {
	r := New()
	live := &CertifiedKey{Certificate: [][]byte{[]byte("leaf")}}
	r.SetCert(live)
	r.SetAuthKey("example.test", &CertifiedKey{Certificate: [][]byte{[]byte("challenge")}})
	r.ClearAuthKey("example.test")

	hello := &tls.ClientHelloInfo{ServerName: "example.test", SupportedProtos: []string{"acme-tls/1"}}
	cert, ok := r.Resolve(hello)
	require.True(t, ok)
	assert.Equal(t, live.Certificate, cert.Certificate)
}
