// Package incoming combines TCP accept, the lifecycle engine's event
// stream, and the tls-alpn-01 demultiplexer into the single entry point a
// terminator needs: a channel of handshaked production connections.
package incoming

import (
	"context"
	"net"

	"github.com/rs/zerolog"

	"github.com/loxdev/acmetls/engine"
	"github.com/loxdev/acmetls/tlsalpn"
)

// Config configures the TLS-ALPN demultiplexer Listen builds.
type Config struct {
	// ProductionProtos lists the ALPN protocols offered on production
	// handshakes, in preference order (e.g. "h2", "http/1.1").
	ProductionProtos []string
}

// Listen starts eng.Run, accepts connections on ln, and completes a TLS
// handshake on each using a tlsalpn.Acceptor backed by eng's resolver.
// Only successfully handshaked production connections are sent on the
// returned channel; tls-alpn-01 challenge completions and handshake
// failures are logged and otherwise discarded, never surfaced on the
// returned channel. The channel is closed when ctx is cancelled or the
// listener's Accept returns any error.
func Listen(ctx context.Context, ln net.Listener, eng *engine.Engine, config Config) <-chan net.Conn {
	acceptor := tlsalpn.New(eng.Resolver(), config.ProductionProtos)
	out := make(chan net.Conn)

	go drainEvents(ctx, eng.Run(ctx))
	go acceptLoop(ctx, ln, acceptor, out)

	return out
}

func drainEvents(ctx context.Context, events <-chan engine.Event) {
	log := zerolog.Ctx(ctx)
	for ev := range events {
		if ev.Err != nil {
			log.Error().Err(ev.Err).Msg("engine event")
			continue
		}
		log.Info().Str("event", ev.Kind.String()).Msg("engine event")
	}
}

func acceptLoop(ctx context.Context, ln net.Listener, acceptor *tlsalpn.Acceptor, out chan<- net.Conn) {
	defer close(out)
	log := zerolog.Ctx(ctx)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("accept failed")
			return
		}

		go func() {
			tlsConn, err := acceptor.Accept(ctx, conn)
			if err != nil {
				log.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("handshake failed")
				return
			}
			if tlsConn == nil {
				// tls-alpn-01 challenge handshake: completed, no stream.
				return
			}
			select {
			case out <- tlsConn:
			case <-ctx.Done():
				tlsConn.Close()
			}
		}()
	}
}
