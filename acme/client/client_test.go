package client

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loxdev/acmetls/acme"
	"github.com/loxdev/acmetls/acme/keys"
)

// fakeCA is a minimal in-memory ACME server exercising just enough of
// RFC 8555 to drive a full order through this package's client.
type fakeCA struct {
	mux         *http.ServeMux
	srv         *httptest.Server
	nonceSeq    int
	orderStatus string
	caKey       *ecdsa.PrivateKey
	caCert      *x509.Certificate
	caDER       []byte

	// includeAuthz switches handleNewOrder to the pending-authorization
	// flow exercised by TestAuthorizationChallengeFlow.
	includeAuthz bool
	authzStatus  string

	// directoryHits counts requests served by handleDirectory.
	directoryHits int
}

func newFakeCA(t *testing.T) *fakeCA {
	t.Helper()
	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "fake CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, template, template, &caKey.PublicKey, caKey)
	require.NoError(t, err)
	caCert, err := x509.ParseCertificate(caDER)
	require.NoError(t, err)

	ca := &fakeCA{
		mux:         http.NewServeMux(),
		orderStatus: acme.OrderStatusReady,
		authzStatus: acme.AuthStatusPending,
		caKey:       caKey,
		caCert:      caCert,
		caDER:       caDER,
	}
	ca.srv = httptest.NewServer(ca.mux)

	ca.mux.HandleFunc("/directory", ca.handleDirectory)
	ca.mux.HandleFunc("/new-nonce", ca.handleNewNonce)
	ca.mux.HandleFunc("/new-account", ca.handleNewAccount)
	ca.mux.HandleFunc("/new-order", ca.handleNewOrder)
	ca.mux.HandleFunc("/order/1", ca.handleOrder)
	ca.mux.HandleFunc("/order/1/finalize", ca.handleFinalize)
	ca.mux.HandleFunc("/cert/1", ca.handleCertificate)
	ca.mux.HandleFunc("/authz/1", ca.handleAuthz)
	ca.mux.HandleFunc("/challenge/1", ca.handleChallengeTrigger)

	t.Cleanup(ca.srv.Close)
	return ca
}

func (ca *fakeCA) url(path string) string { return ca.srv.URL + path }

func (ca *fakeCA) setNonce(w http.ResponseWriter) {
	ca.nonceSeq++
	w.Header().Set(acme.REPLAY_NONCE_HEADER, "nonce-value")
}

func (ca *fakeCA) handleDirectory(w http.ResponseWriter, r *http.Request) {
	ca.directoryHits++
	dir := acme.Directory{
		NewNonce:   ca.url("/new-nonce"),
		NewAccount: ca.url("/new-account"),
		NewOrder:   ca.url("/new-order"),
	}
	_ = json.NewEncoder(w).Encode(&dir)
}

func (ca *fakeCA) handleNewNonce(w http.ResponseWriter, r *http.Request) {
	ca.setNonce(w)
	w.WriteHeader(http.StatusOK)
}

func (ca *fakeCA) handleNewAccount(w http.ResponseWriter, r *http.Request) {
	ca.setNonce(w)
	w.Header().Set(acme.LOCATION_HEADER, ca.url("/account/1"))
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(`{"status":"valid"}`))
}

func (ca *fakeCA) handleNewOrder(w http.ResponseWriter, r *http.Request) {
	ca.setNonce(w)
	w.Header().Set(acme.LOCATION_HEADER, ca.url("/order/1"))
	w.WriteHeader(http.StatusCreated)
	order := acme.Order{
		Status:         acme.OrderStatusReady,
		Authorizations: []string{},
		Finalize:       ca.url("/order/1/finalize"),
	}
	if ca.includeAuthz {
		order.Status = acme.OrderStatusPending
		order.Authorizations = []string{ca.url("/authz/1")}
	}
	_ = json.NewEncoder(w).Encode(&order)
}

func (ca *fakeCA) handleAuthz(w http.ResponseWriter, r *http.Request) {
	ca.setNonce(w)
	authz := acme.Authorization{
		Status:     ca.authzStatus,
		Identifier: acme.Identifier{Type: "dns", Value: "example.test"},
		Challenges: []acme.Challenge{
			{
				Type:   acme.TLS_ALPN_CHALLENGE_TYPE,
				URL:    ca.url("/challenge/1"),
				Token:  "fake-challenge-token",
				Status: ca.authzStatus,
			},
		},
	}
	_ = json.NewEncoder(w).Encode(&authz)
}

// handleChallengeTrigger simulates the CA validating the tls-alpn-01
// handshake out of band and marking the authorization valid the moment
// the client asks to be validated.
func (ca *fakeCA) handleChallengeTrigger(w http.ResponseWriter, r *http.Request) {
	ca.setNonce(w)
	ca.authzStatus = acme.AuthStatusValid
	chall := acme.Challenge{
		Type:   acme.TLS_ALPN_CHALLENGE_TYPE,
		URL:    ca.url("/challenge/1"),
		Token:  "fake-challenge-token",
		Status: acme.AuthStatusValid,
	}
	_ = json.NewEncoder(w).Encode(&chall)
}

func (ca *fakeCA) handleOrder(w http.ResponseWriter, r *http.Request) {
	ca.setNonce(w)
	order := acme.Order{
		Status:      ca.orderStatus,
		Finalize:    ca.url("/order/1/finalize"),
		Certificate: ca.url("/cert/1"),
	}
	_ = json.NewEncoder(w).Encode(&order)
}

func (ca *fakeCA) handleFinalize(w http.ResponseWriter, r *http.Request) {
	ca.setNonce(w)
	ca.orderStatus = acme.OrderStatusValid
	order := acme.Order{
		Status:      acme.OrderStatusValid,
		Finalize:    ca.url("/order/1/finalize"),
		Certificate: ca.url("/cert/1"),
	}
	_ = json.NewEncoder(w).Encode(&order)
}

func (ca *fakeCA) handleCertificate(w http.ResponseWriter, r *http.Request) {
	ca.setNonce(w)
	leafKey, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "example.test"},
		DNSNames:     []string{"example.test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(89 * 24 * time.Hour),
	}
	leafDER, _ := x509.CreateCertificate(rand.Reader, template, ca.caCert, &leafKey.PublicKey, ca.caKey)
	w.Header().Set("Content-Type", "application/pem-certificate-chain")
	_, _ = w.Write(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: leafDER}))
	_, _ = w.Write(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ca.caDER}))
}

func TestDirectoryIsRediscoveredEachCall(t *testing.T) {
	ca := newFakeCA(t)
	c, err := New(Config{DirectoryURL: ca.url("/directory")})
	require.NoError(t, err)

	dir1, err := c.Directory(context.Background())
	require.NoError(t, err)
	dir2, err := c.Directory(context.Background())
	require.NoError(t, err)
	require.Equal(t, dir1, dir2)
	require.Equal(t, 2, ca.directoryHits)
}

func TestCreateAccountAndRunOrderToCertificate(t *testing.T) {
	ca := newFakeCA(t)
	c, err := New(Config{DirectoryURL: ca.url("/directory")})
	require.NoError(t, err)

	signer, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	acct, err := c.CreateAccount(context.Background(), signer, []string{"mailto:ops@example.test"}, nil)
	require.NoError(t, err)
	require.Equal(t, ca.url("/account/1"), acct.Kid)

	orderURL, order, err := c.NewOrder(context.Background(), acct, []string{"example.test"})
	require.NoError(t, err)
	require.Equal(t, acme.OrderStatusReady, order.Status)

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	order, err = c.Finalize(context.Background(), acct, order.Finalize, []string{"example.test"}, leafKey)
	require.NoError(t, err)
	require.Equal(t, acme.OrderStatusValid, order.Status)

	order, err = c.GetOrder(context.Background(), acct, orderURL)
	require.NoError(t, err)
	require.Equal(t, acme.OrderStatusValid, order.Status)

	chainPEM, err := c.DownloadCertificate(context.Background(), acct, order.Certificate)
	require.NoError(t, err)
	block, _ := pem.Decode(chainPEM)
	require.NotNil(t, block)
	require.Equal(t, "CERTIFICATE", block.Type)
}

// TestAuthorizationChallengeFlow drives a pending authorization through
// challenge discovery, tls-alpn-01 validation certificate construction,
// and challenge triggering, matching the path engine/authorize.go takes
// on every fresh order.
func TestAuthorizationChallengeFlow(t *testing.T) {
	ca := newFakeCA(t)
	ca.includeAuthz = true
	c, err := New(Config{DirectoryURL: ca.url("/directory")})
	require.NoError(t, err)

	signer, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	acct, err := c.CreateAccount(context.Background(), signer, nil, nil)
	require.NoError(t, err)

	_, order, err := c.NewOrder(context.Background(), acct, []string{"example.test"})
	require.NoError(t, err)
	require.Equal(t, acme.OrderStatusPending, order.Status)
	require.Len(t, order.Authorizations, 1)

	authz, err := c.GetAuthorization(context.Background(), acct, order.Authorizations[0])
	require.NoError(t, err)
	require.Equal(t, acme.AuthStatusPending, authz.Status)

	chall, err := TLSALPN01Challenge(authz)
	require.NoError(t, err)
	require.Equal(t, acme.TLS_ALPN_CHALLENGE_TYPE, chall.Type)

	certDER, leafKey, err := TLSALPN01Cert(acct.Signer, chall.Token, authz.Identifier.Value)
	require.NoError(t, err)
	require.NotNil(t, leafKey)

	cert, err := x509.ParseCertificate(certDER)
	require.NoError(t, err)
	require.Equal(t, []string{"example.test"}, cert.DNSNames)

	var digest []byte
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(acme.AcmeIdentifierOID) {
			require.True(t, ext.Critical)
			_, err := asn1.Unmarshal(ext.Value, &digest)
			require.NoError(t, err)
		}
	}
	require.NotNil(t, digest, "certificate missing acmeIdentifier extension")

	keyAuth := keys.KeyAuth(acct.Signer, chall.Token)
	wantDigest := sha256.Sum256([]byte(keyAuth))
	require.Equal(t, wantDigest[:], digest)

	require.NoError(t, c.TriggerChallenge(context.Background(), acct, chall.URL))

	authz, err = c.GetAuthorization(context.Background(), acct, order.Authorizations[0])
	require.NoError(t, err)
	require.Equal(t, acme.AuthStatusValid, authz.Status)
}
