package bluesky

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// expiryMargin is subtracted from the token's lifetime so a token about to
// expire mid-request is refreshed up front.
const expiryMargin = 60 * time.Second

// Token is a Bluesky session credential pair. The access token's expiry is
// embedded in its JWT payload; refresh replaces the whole token.
type Token struct {
	Handle     string `json:"handle"`
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
}

// tokenClaims is the subset of the access token payload we need.
type tokenClaims struct {
	Sub string `json:"sub"`
	Iat int64  `json:"iat"`
	Exp int64  `json:"exp"`
	Aud string `json:"aud"`
}

// Expired reports whether the access token is past (or within the safety
// margin of) its embedded expiry claim.
func (t Token) Expired() (bool, error) {
	parts := strings.Split(t.AccessJwt, ".")
	if len(parts) < 2 {
		return false, fmt.Errorf("access token has no payload segment")
	}

	raw, err := decodeSegment(parts[1])
	if err != nil {
		return false, fmt.Errorf("decode token payload: %w", err)
	}

	var claims tokenClaims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return false, fmt.Errorf("parse token payload: %w", err)
	}

	return time.Now().Add(expiryMargin).Unix() >= claims.Exp, nil
}

// String redacts the JWTs so tokens can be logged safely.
func (t Token) String() string {
	return fmt.Sprintf("Token [Handle: %s, AccessJWT: %s, RefreshJWT: %s]",
		t.Handle, redact(t.AccessJwt), redact(t.RefreshJwt))
}

func redact(s string) string {
	if len(s) <= 5 {
		return s
	}
	return s[:5] + "..."
}

// decodeSegment accepts both base64url and standard base64 JWT payloads.
func decodeSegment(seg string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(seg); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(seg)
}
