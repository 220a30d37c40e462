// Package resolver publishes certificates for TLS handshakes: one live
// production key shared by every connection, and short-lived per-domain
// validation keys published while an ACME authorization is in flight.
package resolver

import (
	"crypto"
	"crypto/tls"
	"sync"
	"sync/atomic"

	"github.com/loxdev/acmetls/acme"
)

// CertifiedKey pairs a DER-encoded certificate chain (leaf first) with the
// private key that signs for it.
type CertifiedKey struct {
	Certificate [][]byte
	PrivateKey  crypto.Signer
}

func (k *CertifiedKey) tlsCertificate() *tls.Certificate {
	if k == nil {
		return nil
	}
	return &tls.Certificate{
		Certificate: k.Certificate,
		PrivateKey:  k.PrivateKey,
	}
}

// Resolver is the only state shared between the lifecycle engine and
// in-flight TLS handshakes. SetCert and SetAuthKey/ClearAuthKey may be
// called concurrently with Resolve; a handshake always observes either
// the key in place before a call or the key in place after it, never a
// torn intermediate value.
type Resolver struct {
	live     atomic.Pointer[CertifiedKey]
	authKeys sync.Map // domain string -> *CertifiedKey
}

// New returns an empty Resolver. Resolve returns (nil, false) for every
// handshake until SetCert or SetAuthKey has been called.
func New() *Resolver {
	return &Resolver{}
}

// SetCert atomically replaces the live production key.
func (r *Resolver) SetCert(key *CertifiedKey) {
	r.live.Store(key)
}

// SetAuthKey publishes an ephemeral validation key for domain. It
// overwrites any previously published key for the same domain.
func (r *Resolver) SetAuthKey(domain string, key *CertifiedKey) {
	r.authKeys.Store(domain, key)
}

// ClearAuthKey removes domain's validation key, if any. It is safe to
// call even if no key was ever published for domain.
func (r *Resolver) ClearAuthKey(domain string) {
	r.authKeys.Delete(domain)
}

// Resolve selects the certificate for an incoming ClientHello. If the
// hello advertises exactly the tls-alpn-01 protocol and a validation key
// is published for its SNI name, that key is returned. Otherwise the live
// production key is returned, or (nil, false) if none has been published
// yet.
func (r *Resolver) Resolve(hello *tls.ClientHelloInfo) (*tls.Certificate, bool) {
	if isTLSALPN01(hello) {
		if v, ok := r.authKeys.Load(hello.ServerName); ok {
			key := v.(*CertifiedKey)
			return key.tlsCertificate(), true
		}
	}

	key := r.live.Load()
	if key == nil {
		return nil, false
	}
	return key.tlsCertificate(), true
}

func isTLSALPN01(hello *tls.ClientHelloInfo) bool {
	return len(hello.SupportedProtos) == 1 && hello.SupportedProtos[0] == acme.TLS_ALPN_PROTOCOL
}
