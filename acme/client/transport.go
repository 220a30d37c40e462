package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime"

	"github.com/rs/zerolog"
)

const (
	version       = "0.1.0"
	userAgentBase = "acmetls"
)

// transport wraps an *http.Client with the ACME-specific request shaping
// (User-Agent, content type, body draining) the rest of the client package
// relies on.
type transport struct {
	httpClient *http.Client
}

func newTransport(httpClient *http.Client) *transport {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &transport{httpClient: httpClient}
}

// rawResponse is the drained result of a single HTTP round trip.
type rawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (t *transport) do(ctx context.Context, method, url string, body []byte, contentType string) (*rawResponse, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", fmt.Sprintf("%s/%s (%s; %s)",
		userAgentBase, version, runtime.GOOS, runtime.GOARCH))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	zerolog.Ctx(ctx).Debug().Str("method", method).Str("url", url).Msg("acme http request")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().Int("status", resp.StatusCode).Str("url", url).Msg("acme http response")

	return &rawResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

func (t *transport) get(ctx context.Context, url string) (*rawResponse, error) {
	return t.do(ctx, http.MethodGet, url, nil, "")
}

func (t *transport) head(ctx context.Context, url string) (*rawResponse, error) {
	return t.do(ctx, http.MethodHead, url, nil, "")
}

func (t *transport) post(ctx context.Context, url string, body []byte) (*rawResponse, error) {
	return t.do(ctx, http.MethodPost, url, body, "application/jose+json")
}
