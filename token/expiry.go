package token

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var unverifiedParser = jwt.NewParser()

// DecodeExpiry reads the exp claim of a JWT-shaped access token without
// verifying its signature. Only the payload segment is decoded, so the header
// and its alg are never consulted. ok is false for opaque or malformed tokens
// and for tokens that carry no exp claim.
func DecodeExpiry(accessToken string) (time.Time, bool) {
	parts := strings.Split(accessToken, ".")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	payload, err := unverifiedParser.DecodeSegment(parts[1])
	if err != nil {
		return time.Time{}, false
	}
	var claims jwt.MapClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// IsRefreshDue reports whether the token expires within threshold of now.
// A token whose expiry is unknown is never due.
func IsRefreshDue(accessToken string, now time.Time, threshold time.Duration) bool {
	exp, ok := DecodeExpiry(accessToken)
	if !ok {
		return false
	}
	return exp.Sub(now) <= threshold
}

// RefreshDelay returns how long to wait before refreshing a token that
// expires at exp. due is true when the refresh should happen straight away.
func RefreshDelay(exp, now time.Time, threshold, minDelay time.Duration) (delay time.Duration, due bool) {
	untilExpiry := exp.Sub(now)
	if untilExpiry <= threshold {
		return 0, true
	}
	delay = untilExpiry - threshold
	if delay < minDelay {
		delay = minDelay
	}
	return delay, false
}
