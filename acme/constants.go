// Package acme provides ACME v2 (RFC 8555) protocol constants and
// resource types shared by the client and the lifecycle engine.
package acme

import "encoding/asn1"

const (
	// See https://tools.ietf.org/html/rfc8555#section-7.1.1
	// The ACME directory key for the newNonce endpoint
	NEW_NONCE_ENDPOINT = "newNonce"
	// The ACME directory key for the newAccount endpoint.
	NEW_ACCOUNT_ENDPOINT = "newAccount"
	// The ACME directory key for the newOrder endpoint.
	NEW_ORDER_ENDPOINT = "newOrder"
	// The HTTP response header used by ACME to communicate a fresh nonce. See
	// https://tools.ietf.org/html/rfc8555#section-6.5.1
	REPLAY_NONCE_HEADER = "Replay-Nonce"
	// LOCATION_HEADER carries the URL of a newly created resource.
	LOCATION_HEADER = "Location"

	// JOSE_CONTENT_TYPE is the Content-Type required on every signed
	// ACME request body. See https://tools.ietf.org/html/rfc8555#section-6.2
	JOSE_CONTENT_TYPE = "application/jose+json"

	// TLS_ALPN_PROTOCOL is the ALPN protocol name used to negotiate a
	// TLS-ALPN-01 challenge handshake. Exactly 10 bytes. See RFC 8737 §3.
	TLS_ALPN_PROTOCOL = "acme-tls/1"

	// TLS_ALPN_CHALLENGE_TYPE is the ACME challenge "type" string for
	// TLS-ALPN-01.
	TLS_ALPN_CHALLENGE_TYPE = "tls-alpn-01"

	// LETS_ENCRYPT_STAGING_DIRECTORY is the well-known staging directory URL.
	LETS_ENCRYPT_STAGING_DIRECTORY = "https://acme-staging-v02.api.letsencrypt.org/directory"
	// LETS_ENCRYPT_PRODUCTION_DIRECTORY is the well-known production directory URL.
	LETS_ENCRYPT_PRODUCTION_DIRECTORY = "https://acme-v02.api.letsencrypt.org/directory"
)

// AcmeIdentifierOID is the ASN.1 OID carried (critical) in a
// TLS-ALPN-01 validation certificate's custom extension. Its value is
// a DER OCTET STRING wrapping SHA-256(key authorization).
//
// See RFC 8737 §3.
var AcmeIdentifierOID = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 31}
