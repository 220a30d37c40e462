package client

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/loxdev/acmetls/acme"
)

type newOrderRequest struct {
	Identifiers []acme.Identifier `json:"identifiers"`
}

// NewOrder submits a new order for the given domains and returns its URL
// and initial state.
func (c *Client) NewOrder(ctx context.Context, acct *Account, domains []string) (string, *acme.Order, error) {
	dir, err := c.Directory(ctx)
	if err != nil {
		return "", nil, err
	}
	if dir.NewOrder == "" {
		return "", nil, &acme.TransportError{Op: "newOrder", Header: "newOrder endpoint missing from directory"}
	}

	idents := make([]acme.Identifier, len(domains))
	for i, d := range domains {
		idents[i] = acme.Identifier{Type: "dns", Value: d}
	}

	payload, err := json.Marshal(newOrderRequest{Identifiers: idents})
	if err != nil {
		return "", nil, &acme.ProtocolError{Op: "newOrder", Err: err}
	}

	resp, err := c.signedPost(ctx, acct, dir.NewOrder, payload)
	if err != nil {
		return "", nil, err
	}
	if resp.StatusCode != http.StatusCreated {
		return "", nil, problemFromResponse("newOrder", resp)
	}

	orderURL := resp.Header.Get(acme.LOCATION_HEADER)
	if orderURL == "" {
		return "", nil, &acme.TransportError{Op: "newOrder", Header: acme.LOCATION_HEADER}
	}

	var order acme.Order
	if err := json.Unmarshal(resp.Body, &order); err != nil {
		return "", nil, &acme.ProtocolError{Op: "newOrder", Err: err}
	}
	return orderURL, &order, nil
}

// GetOrder refreshes an Order resource by POST-as-GET.
func (c *Client) GetOrder(ctx context.Context, acct *Account, orderURL string) (*acme.Order, error) {
	resp, err := c.postAsGet(ctx, acct, orderURL)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp) {
		return nil, problemFromResponse("getOrder", resp)
	}
	var order acme.Order
	if err := json.Unmarshal(resp.Body, &order); err != nil {
		return nil, &acme.ProtocolError{Op: "getOrder", Err: err}
	}
	return &order, nil
}
