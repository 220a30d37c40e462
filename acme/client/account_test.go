package client

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loxdev/acmetls/acme"
)

type jwsProtectedHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	URL string `json:"url"`
}

// TestBuildExternalAccountBindingSignsWithSharedKey verifies the EAB
// inner JWS built for newAccount requests: HS256 over the account JWK,
// headers naming the CA-issued kid and target URL, and a signature that
// verifies against the shared HMAC key (RFC 8555 §7.3.4).
func TestBuildExternalAccountBindingSignsWithSharedKey(t *testing.T) {
	signer, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	eab := &acme.ExternalAccountKey{KID: "eab-kid-123", Key: []byte("shared-hmac-secret-key-material")}
	const newAccountURL = "https://ca.example.test/new-account"

	binding, err := buildExternalAccountBinding(newAccountURL, signer, eab)
	require.NoError(t, err)

	protectedJSON, err := base64.RawURLEncoding.DecodeString(binding.Protected)
	require.NoError(t, err)
	var header jwsProtectedHeader
	require.NoError(t, json.Unmarshal(protectedJSON, &header))
	require.Equal(t, "HS256", header.Alg)
	require.Equal(t, eab.KID, header.Kid)
	require.Equal(t, newAccountURL, header.URL)

	mac := hmac.New(sha256.New, eab.Key)
	mac.Write([]byte(binding.Protected + "." + binding.Payload))
	wantSignature := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	require.Equal(t, wantSignature, binding.Signature)

	payloadJSON, err := base64.RawURLEncoding.DecodeString(binding.Payload)
	require.NoError(t, err)
	var jwk map[string]any
	require.NoError(t, json.Unmarshal(payloadJSON, &jwk))
	require.Equal(t, "EC", jwk["kty"])
}
