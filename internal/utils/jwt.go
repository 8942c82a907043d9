package utils // package utils provides helper functions for token creation and key generation

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string. Access tokens are short-lived
// bearer assertions binding the caller to a user's telegram id; they are
// purely cryptographic, never persisted, and carry no revocation path —
// rotating a device key or deactivating a user does not invalidate tokens
// issued earlier, they simply die at their fixed expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// ErrInvalidToken is returned by ParseAccessToken for any verification
// failure: bad signature, wrong algorithm, expired token or a missing
// subject claim. Callers treat all of these uniformly as Unauthorized.
var ErrInvalidToken = errors.New("invalid token")

// NewAccessToken builds and signs an HS256 JWT for a user. The subject
// claim carries the user's telegram id in decimal form; exp and iat are
// standard claims. ttlMin controls the token lifetime in minutes.
func NewAccessToken(secret string, telegramID int64, ttlMin int) (AccessToken, error) {
	exp := time.Now().UTC().Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(telegramID, 10),
		"exp": exp.Unix(),
		"iat": time.Now().UTC().Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies the token's signature and expiry and returns
// the telegram id from the subject claim. The signing method is pinned to
// HMAC so a token signed with another algorithm never validates.
func ParseAccessToken(secret, raw string) (int64, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return 0, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return 0, ErrInvalidToken
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}
