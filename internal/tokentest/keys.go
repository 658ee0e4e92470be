// Package tokentest mints signed tokens and key sets for tests.
package tokentest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

const RS256 = "RS256"

// KeyPair is an RSA signing key with its key ID.
type KeyPair struct {
	KeyID      string
	PrivateKey *rsa.PrivateKey
}

// JWKS is a JSON Web Key Set document.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// NewKeyPair generates a 2048-bit RSA key.
func NewKeyPair(t testing.TB, keyID string) *KeyPair {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}
	return &KeyPair{KeyID: keyID, PrivateKey: privateKey}
}

func (kp *KeyPair) PublicKey() *rsa.PublicKey {
	return &kp.PrivateKey.PublicKey
}

// Sign returns an RS256 compact JWT with the key ID in its header.
func (kp *KeyPair) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kp.KeyID
	signed, err := tok.SignedString(kp.PrivateKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (kp *KeyPair) JWK() JWK {
	pub := kp.PublicKey()
	return JWK{
		Kty: "RSA",
		Use: "sig",
		Kid: kp.KeyID,
		Alg: RS256,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func (kp *KeyPair) JWKS() JWKS {
	return JWKS{Keys: []JWK{kp.JWK()}}
}

// JWKSHandler serves the key set, as a provider does at
// /.well-known/jwks.json.
func (kp *KeyPair) JWKSHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(kp.JWKS())
	})
}
