package cache

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"
)

// TestCache generates a self-signed CA once at construction, then mints a
// fresh leaf certificate for the requested domains on every LoadCert
// call. A cold engine pointed at a TestCache always "finds" a certificate
// without ever contacting a real ACME server, making it useful against
// ACME-incompatible test environments. Stores are no-ops and account
// loads always miss, matching original_source/src/caches/test.rs.
type TestCache struct {
	caKey  *ecdsa.PrivateKey
	caCert *x509.Certificate
	caDER  []byte
}

// NewTestCache generates the backing CA and returns a ready TestCache.
func NewTestCache() (*TestCache, error) {
	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("test cache: generate CA key: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Country:      []string{"US"},
			Organization: []string{"Test CA"},
			CommonName:   "Test CA",
		},
		NotBefore:             time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:              time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &caKey.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("test cache: self-sign CA: %w", err)
	}
	caCert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("test cache: parse CA: %w", err)
	}

	return &TestCache{caKey: caKey, caCert: caCert, caDER: der}, nil
}

func (c *TestCache) String() string { return "TestCache" }

// LoadCert mints a fresh leaf certificate for domains, signed by the
// TestCache's CA, and returns it as a PEM bundle (key, leaf, CA).
func (c *TestCache) LoadCert(_ context.Context, domains []string, _ string) ([]byte, error) {
	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("test cache: generate leaf key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("test cache: serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "Test Cert"},
		DNSNames:     domains,
		NotBefore:    time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:     time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	leafDER, err := x509.CreateCertificate(rand.Reader, template, c.caCert, &leafKey.PublicKey, c.caKey)
	if err != nil {
		return nil, fmt.Errorf("test cache: sign leaf: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(leafKey)
	if err != nil {
		return nil, fmt.Errorf("test cache: marshal leaf key: %w", err)
	}

	var bundle []byte
	bundle = append(bundle, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})...)
	bundle = append(bundle, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: leafDER})...)
	bundle = append(bundle, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.caDER})...)
	return bundle, nil
}

func (c *TestCache) StoreCert(ctx context.Context, _ []string, _ string, _ []byte) error {
	zerolog.Ctx(ctx).Info().Msg("test cache configured, could not store certificate")
	return nil
}

func (c *TestCache) LoadAccount(ctx context.Context, _ []string, _ string) ([]byte, error) {
	zerolog.Ctx(ctx).Info().Msg("test cache configured, could not load account")
	return nil, nil
}

func (c *TestCache) StoreAccount(ctx context.Context, _ []string, _ string, _ []byte) error {
	zerolog.Ctx(ctx).Info().Msg("test cache configured, could not store account")
	return nil
}

var _ Cache = (*TestCache)(nil)
