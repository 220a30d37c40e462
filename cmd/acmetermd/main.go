// The acmetermd command runs a minimal TLS terminator that provisions
// and renews its certificate via ACME, using TLS-ALPN-01 challenges
// answered on the same listening port.
package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	acmeclient "github.com/loxdev/acmetls/acme/client"
	"github.com/loxdev/acmetls/acmeconfig"
	acmecmd "github.com/loxdev/acmetls/cmd"
	"github.com/loxdev/acmetls/engine"
	"github.com/loxdev/acmetls/incoming"
	"github.com/loxdev/acmetls/resolver"
)

const (
	DIRECTORY_DEFAULT  = "https://acme-staging-v02.api.letsencrypt.org/directory"
	PRODUCTION_DEFAULT = false
	PORT_DEFAULT       = 8443
	CACHE_DIR_DEFAULT  = ""
	LOG_LEVEL_DEFAULT  = "info"
)

// domainList accumulates repeated -domain flags into an ordered slice.
type domainList []string

func (d *domainList) String() string { return strings.Join(*d, ",") }
func (d *domainList) Set(v string) error {
	*d = append(*d, v)
	return nil
}

func main() {
	var domains domainList
	flag.Var(&domains, "domain", "DNS name to request a certificate for (repeatable)")

	contact := flag.String("contact", "", "Contact URI for the ACME account (e.g. mailto:ops@example.com)")
	directory := flag.String("directory", DIRECTORY_DEFAULT, "ACME directory URL")
	production := flag.Bool("prod", PRODUCTION_DEFAULT, "Use the Let's Encrypt production directory instead of -directory")
	cacheDir := flag.String("cache-dir", CACHE_DIR_DEFAULT, "Directory to cache certificates and account keys in; empty disables caching")
	eabKID := flag.String("eab-kid", "", "External Account Binding key identifier")
	eabKey := flag.String("eab-key", "", "External Account Binding key, base64url-encoded")
	port := flag.Int("port", PORT_DEFAULT, "Port to listen for TLS connections on")
	logLevel := flag.String("log-level", LOG_LEVEL_DEFAULT, "Log level: debug, info, warn, error")

	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	acmecmd.FailOnError(err, fmt.Sprintf("invalid -log-level %q", *logLevel))
	zerolog.SetGlobalLevel(level)
	logger := log.Logger
	ctx := logger.WithContext(context.Background())

	if len(domains) == 0 {
		acmecmd.FailOnError(fmt.Errorf("at least one -domain is required"), "invalid configuration")
	}

	directoryURL := *directory
	if *production {
		directoryURL = ""
	}

	var contacts []string
	if *contact != "" {
		contacts = []string{*contact}
	}

	config := &acmeconfig.Config{
		Domains:      domains,
		Contact:      contacts,
		DirectoryURL: directoryURL,
		CacheDir:     *cacheDir,
	}
	if *eabKID != "" {
		config.EABKeyID = *eabKID
		decodedKey, err := base64.RawURLEncoding.DecodeString(*eabKey)
		acmecmd.FailOnError(err, "invalid -eab-key: not base64url")
		config.EABKey = decodedKey
	}
	acmecmd.FailOnError(acmeconfig.Validate(config), "invalid configuration")

	acmeClient, err := acmeclient.New(acmeclient.Config{DirectoryURL: config.DirectoryURL, HTTPClient: config.HTTPClient})
	acmecmd.FailOnError(err, "constructing ACME client")

	eng := engine.New(engine.Config{
		Domains:      config.Domains,
		Contact:      config.Contact,
		DirectoryURL: config.DirectoryURL,
		EAB:          config.ExternalAccountKey(),
		Cache:        config.Cache(),
		Client:       acmeClient,
		Resolver:     resolver.New(),
	})

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	acmecmd.FailOnError(err, "listening")
	logger.Info().Str("addr", ln.Addr().String()).Strs("domains", domains).Msg("acmetermd listening")

	ctx, cancel := context.WithCancel(ctx)
	conns := incoming.Listen(ctx, ln, eng, incoming.Config{ProductionProtos: []string{"http/1.1"}})

	go acmecmd.CatchSignals(func() {
		cancel()
		ln.Close()
	})

	for conn := range conns {
		go serve(ctx, conn)
	}
}

// serve writes a fixed demo response over a terminated production
// connection. A real deployment would proxy the plaintext stream to a
// backend instead.
func serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	const body = "acmetermd: TLS terminated successfully\n"
	response := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s", len(body), body)
	if _, err := conn.Write([]byte(response)); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("write failed")
	}
}
