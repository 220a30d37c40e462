// Package engine implements the ACME lifecycle state machine: cache
// lookup, account creation, order execution, certificate deployment, and
// renewal scheduling with exponential backoff on transient failure.
package engine

import (
	"context"
	"crypto"
	"time"

	"github.com/rs/zerolog"

	"github.com/loxdev/acmetls/acme"
	"github.com/loxdev/acmetls/acme/client"
	"github.com/loxdev/acmetls/cache"
	"github.com/loxdev/acmetls/resolver"
)

// Config configures a new Engine.
type Config struct {
	// Domains is the non-empty ordered list of DNS names to request a
	// certificate for. Order is significant: it is part of the cache key.
	Domains []string
	// Contact is the ordered list of contact URIs (typically
	// "mailto:..."), used both as account contact info and as part of
	// the account cache key.
	Contact []string
	// DirectoryURL is the ACME server's directory endpoint.
	DirectoryURL string
	// EAB is the optional External Account Binding key some CAs require.
	EAB *acme.ExternalAccountKey
	// Cache persists accounts and certificates across restarts. Required;
	// use cache.NoCache{} for a terminator that should not persist state.
	Cache cache.Cache
	// Client talks to the ACME server. Required.
	Client *client.Client
	// Resolver receives the live and validation certificates this engine
	// produces. Required.
	Resolver *resolver.Resolver
}

// Engine drives the ACME lifecycle for one (domains, directory) pair. It
// is not safe for concurrent use of Run; call Run once and consume the
// returned channel until it closes.
type Engine struct {
	domains      []string
	contact      []string
	directoryURL string
	eab          *acme.ExternalAccountKey
	cache        cache.Cache
	client       *client.Client
	resolver     *resolver.Resolver

	accountSigner crypto.Signer
	pendingEarly  earlyAction
	renewalAt     time.Time
}

type earlyAction func(ctx context.Context) Event

// New constructs an Engine from config. It performs no I/O.
func New(config Config) *Engine {
	return &Engine{
		domains:      config.Domains,
		contact:      config.Contact,
		directoryURL: config.DirectoryURL,
		eab:          config.EAB,
		cache:        config.Cache,
		client:       config.Client,
		resolver:     config.Resolver,
	}
}

// Resolver returns the resolver this engine publishes certificates to,
// for wiring into a tlsalpn.Acceptor.
func (e *Engine) Resolver() *resolver.Resolver {
	return e.resolver
}

func (e *Engine) queueEarlyAction(action earlyAction) {
	e.pendingEarly = action
}

func (e *Engine) runPendingEarlyAction(ctx context.Context) *Event {
	if e.pendingEarly == nil {
		return nil
	}
	action := e.pendingEarly
	e.pendingEarly = nil
	ev := action(ctx)
	return &ev
}

// Run starts the engine and returns a channel of events. The channel is
// closed when ctx is cancelled; in-flight work is abandoned at the next
// suspension point. The stream is otherwise infinite: renewal keeps
// producing events indefinitely.
func (e *Engine) Run(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go e.loop(ctx, out)
	return out
}

func (e *Engine) loop(ctx context.Context, out chan<- Event) {
	defer close(out)
	log := zerolog.Ctx(ctx)

	send := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !e.loadCachedCert(ctx, send) {
		return
	}
	if err := e.restoreAccount(ctx); err != nil {
		if !send(Event{Err: err}) {
			return
		}
	}

	failures := 0
	for {
		if !e.renewalAt.IsZero() {
			if wait := time.Until(e.renewalAt); wait > 0 {
				log.Debug().Dur("wait", wait).Msg("sleeping until renewal instant")
				if err := sleepCtx(ctx, wait); err != nil {
					return
				}
			}
		}

		acct, err := e.loadOrCreateAccount(ctx)
		if err != nil {
			wait := orderBackoff(failures)
			failures++
			if !send(Event{Err: err}) {
				return
			}
			if err := sleepCtx(ctx, wait); err != nil {
				return
			}
			continue
		}

		if ev := e.runPendingEarlyAction(ctx); ev != nil {
			if !send(*ev) {
				return
			}
		}

		bundle, err := e.runOrder(ctx, acct)
		if err != nil {
			wait := orderBackoff(failures)
			failures++
			if !send(Event{Err: err}) {
				return
			}
			if err := sleepCtx(ctx, wait); err != nil {
				return
			}
			continue
		}

		key, nb, na, err := parseBundle(bundle)
		if err != nil {
			wait := orderBackoff(failures)
			failures++
			if !send(Event{Err: &CertParseError{Err: err}}) {
				return
			}
			if err := sleepCtx(ctx, wait); err != nil {
				return
			}
			continue
		}

		e.resolver.SetCert(key)
		failures = 0
		e.renewalAt = renewalInstant(nb, na)
		if !send(Event{Kind: DeployedNewCert}) {
			return
		}

		if err := e.cache.StoreCert(ctx, e.domains, e.directoryURL, bundle); err != nil {
			if !send(Event{Err: &CacheError{Op: "storeCert", Store: true, Err: err}}) {
				return
			}
		} else if !send(Event{Kind: CertCacheStore}) {
			return
		}
	}
}

// loadCachedCert performs the one-shot startup cert-cache lookup. It
// returns false if the caller should stop (context cancelled while
// sending an event).
func (e *Engine) loadCachedCert(ctx context.Context, send func(Event) bool) bool {
	bundle, err := e.cache.LoadCert(ctx, e.domains, e.directoryURL)
	if err != nil {
		return send(Event{Err: &CacheError{Op: "loadCert", Err: err}})
	}
	if bundle == nil {
		return true
	}

	key, nb, na, err := parseBundle(bundle)
	if err != nil {
		// Cert-parse errors on cached data: report and proceed as if the
		// cache were empty.
		return send(Event{Err: &CertParseError{Cached: true, Err: err}})
	}

	e.resolver.SetCert(key)
	e.renewalAt = renewalInstant(nb, na)
	return send(Event{Kind: DeployedCachedCert})
}

// renewalInstant implements spec.md §4.4's renewal policy:
// na - (na-nb)/3, clamped to "now" if that instant has already passed.
func renewalInstant(nb, na time.Time) time.Time {
	lifetime := na.Sub(nb)
	instant := na.Add(-lifetime / 3)
	if instant.Before(time.Now()) {
		return time.Now()
	}
	return instant
}

// backoffUnit scales every exponential backoff delay in this package.
// Tests shrink it so multi-attempt polling loops don't block on
// real-world minutes of sleep.
var backoffUnit = time.Second

// orderBackoff implements spec.md §4.4's backoff policy: 2^min(n,16)
// units, where n is the consecutive order-failure count BEFORE the
// failure that just occurred is counted, so the first failure sleeps
// one unit, the second two units, and so on.
func orderBackoff(n int) time.Duration {
	return (1 << min(n, 16)) * backoffUnit
}
