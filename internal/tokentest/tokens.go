package tokentest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var hmacSecret = []byte("tokentest-secret")

// AccessToken returns an HS256 JWT expiring at exp. The guard never verifies
// access tokens, so the secret is irrelevant.
func AccessToken(t testing.TB, exp time.Time) string {
	t.Helper()
	return HS256(t, jwt.MapClaims{
		"sub": "user-1",
		"iat": exp.Add(-time.Hour).Unix(),
		"exp": exp.Unix(),
		"jti": uuid.NewString(),
	})
}

// HS256 signs arbitrary claims.
func HS256(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(hmacSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// IDTokenClaims returns a minimal valid claim set for an ID token issued by
// issuer for audience, valid from now until exp.
func IDTokenClaims(issuer, audience string, now, exp time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":            issuer,
		"aud":            audience,
		"sub":            "user-1",
		"iat":            now.Unix(),
		"exp":            exp.Unix(),
		"email":          "ada@example.com",
		"email_verified": true,
		"name":           "Ada Lovelace",
		"given_name":     "Ada",
		"family_name":    "Lovelace",
		"locale":         "en",
	}
}
