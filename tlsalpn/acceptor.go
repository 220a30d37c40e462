// Package tlsalpn demultiplexes a single listening port between
// TLS-ALPN-01 (RFC 8737) challenge handshakes and production TLS
// traffic, using the resolver's published keys to decide which
// certificate to present.
package tlsalpn

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/rs/zerolog"

	"github.com/loxdev/acmetls/acme"
	"github.com/loxdev/acmetls/resolver"
)

// Acceptor completes the TLS handshake for one accepted connection,
// routing it to the challenge-completion path or the production path
// depending on the ClientHello's ALPN offer. crypto/tls's
// GetConfigForClient callback is the idiomatic Go equivalent of a
// two-stage acceptor that stalls after the ClientHello is parsed but
// before any server flight is sent: Go parses the hello, calls back into
// our code to pick a *tls.Config, and only then continues the handshake
// using that config's GetCertificate.
type Acceptor struct {
	resolver *resolver.Resolver
	// ProductionProtos lists the ALPN protocols offered on production
	// handshakes, in preference order (e.g. "h2", "http/1.1").
	ProductionProtos []string
}

// New returns an Acceptor that resolves both challenge and production
// certificates from res.
func New(res *resolver.Resolver, productionProtos []string) *Acceptor {
	return &Acceptor{resolver: res, ProductionProtos: productionProtos}
}

// Accept completes the TLS handshake on conn. On the challenge-completion
// path it returns (nil, nil): the connection was handshaked and closed,
// but no application stream resulted, matching spec.md's "no application
// stream produced" observable for a tls-alpn-01 validation handshake.
func (a *Acceptor) Accept(ctx context.Context, conn net.Conn) (*tls.Conn, error) {
	isChallenge := false

	baseConfig := &tls.Config{
		NextProtos: append([]string{acme.TLS_ALPN_PROTOCOL}, a.ProductionProtos...),
		GetConfigForClient: func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
			if offersOnlyTLSALPN01(hello) {
				isChallenge = true
				return &tls.Config{
					NextProtos: []string{acme.TLS_ALPN_PROTOCOL},
					GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
						cert, ok := a.resolver.Resolve(hello)
						if !ok {
							return nil, fmt.Errorf("tlsalpn: no validation key published for %q", hello.ServerName)
						}
						return cert, nil
					},
				}, nil
			}
			return &tls.Config{
				NextProtos: a.ProductionProtos,
				GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
					cert, ok := a.resolver.Resolve(hello)
					if !ok {
						return nil, fmt.Errorf("tlsalpn: no production certificate published yet")
					}
					return cert, nil
				},
			}, nil
		},
	}

	tlsConn := tls.Server(conn, baseConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		tlsConn.Close()
		return nil, fmt.Errorf("tlsalpn: handshake: %w", err)
	}

	if isChallenge {
		zerolog.Ctx(ctx).Debug().Str("sni", tlsConn.ConnectionState().ServerName).Msg("completed tls-alpn-01 challenge handshake")
		tlsConn.Close()
		return nil, nil
	}

	return tlsConn, nil
}

func offersOnlyTLSALPN01(hello *tls.ClientHelloInfo) bool {
	return len(hello.SupportedProtos) == 1 && hello.SupportedProtos[0] == acme.TLS_ALPN_PROTOCOL
}
