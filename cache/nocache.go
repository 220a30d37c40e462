package cache

import (
	"context"

	"github.com/rs/zerolog"
)

// NoCache is a no-op Cache: every load returns (nil, nil) and every store
// succeeds without writing anything. Useful for a terminator that should
// never persist account or certificate material.
type NoCache struct{}

func (NoCache) String() string { return "NoCache" }

func (NoCache) LoadCert(ctx context.Context, _ []string, _ string) ([]byte, error) {
	zerolog.Ctx(ctx).Info().Msg("no cert cache configured, could not load certificate")
	return nil, nil
}

func (NoCache) StoreCert(ctx context.Context, _ []string, _ string, _ []byte) error {
	zerolog.Ctx(ctx).Info().Msg("no cert cache configured, could not store certificate")
	return nil
}

func (NoCache) LoadAccount(ctx context.Context, _ []string, _ string) ([]byte, error) {
	zerolog.Ctx(ctx).Info().Msg("no account cache configured, could not load account")
	return nil, nil
}

func (NoCache) StoreAccount(ctx context.Context, _ []string, _ string, _ []byte) error {
	zerolog.Ctx(ctx).Info().Msg("no account cache configured, could not store account")
	return nil
}

var _ Cache = NoCache{}
