package tlsalpn

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loxdev/acmetls/resolver"
)

func selfSignedKey(t *testing.T, domain string) *resolver.CertifiedKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: domain},
		DNSNames:     []string{domain},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	return &resolver.CertifiedKey{Certificate: [][]byte{der}, PrivateKey: key}
}

func TestAcceptorProductionHandshake(t *testing.T) {
	res := resolver.New()
	res.SetCert(selfSignedKey(t, "example.test"))
	acceptor := New(res, []string{"http/1.1"})

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	done := make(chan struct{})
	var serverErr error
	go func() {
		defer close(done)
		_, serverErr = acceptor.Accept(context.Background(), serverConn)
	}()

	clientTLS := tls.Client(clientConn, &tls.Config{
		ServerName:         "example.test",
		InsecureSkipVerify: true,
		NextProtos:         []string{"http/1.1"},
	})
	require.NoError(t, clientTLS.Handshake())
	clientTLS.Close()

	<-done
	require.NoError(t, serverErr, "a production handshake completes and yields a connection")
}

func TestAcceptorChallengeHandshakeProducesNoStream(t *testing.T) {
	res := resolver.New()
	res.SetAuthKey("example.test", selfSignedKey(t, "example.test"))
	acceptor := New(res, []string{"http/1.1"})

	serverConn, clientConn := net.Pipe()

	done := make(chan struct{})
	var serverConnResult *tls.Conn
	var serverErr error
	go func() {
		defer close(done)
		serverConnResult, serverErr = acceptor.Accept(context.Background(), serverConn)
	}()

	clientTLS := tls.Client(clientConn, &tls.Config{
		ServerName:         "example.test",
		InsecureSkipVerify: true,
		NextProtos:         []string{"acme-tls/1"},
	})
	require.NoError(t, clientTLS.Handshake())
	clientTLS.Close()

	<-done
	require.NoError(t, serverErr)
	require.Nil(t, serverConnResult, "a tls-alpn-01 handshake yields no application stream")
}
