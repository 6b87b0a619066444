package core

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// IDTokenClaims are the id token claims the client reads for display and
// tenant routing.
type IDTokenClaims struct {
	jwt.RegisteredClaims
	TenantID          string `json:"tid,omitempty"`
	ObjectID          string `json:"oid,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Name              string `json:"name,omitempty"`
}

// ParseIDTokenClaims reads claims without verifying the signature. The broker
// has already validated the token; never use this for authorization.
func ParseIDTokenClaims(idToken string) (IDTokenClaims, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return IDTokenClaims{}, decodeError(ErrorCodeDecodeFailed, "id token is empty", nil)
	}
	claims := IDTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, &claims); err != nil {
		return IDTokenClaims{}, decodeError(ErrorCodeDecodeFailed, "id token is malformed", err)
	}
	return claims, nil
}

// enrichFromIDToken fills identity fields the broker left blank.
func enrichFromIDToken(result AuthenticationResult) (AuthenticationResult, bool) {
	if result.IDToken == "" || (result.Username != "" && result.TenantID != "" && result.LocalAccountID != "") {
		return result, false
	}
	claims, err := ParseIDTokenClaims(result.IDToken)
	if err != nil {
		return result, false
	}
	if result.Username == "" {
		result.Username = claims.PreferredUsername
	}
	if result.TenantID == "" {
		result.TenantID = claims.TenantID
	}
	if result.LocalAccountID == "" {
		result.LocalAccountID = firstNonEmpty(claims.ObjectID, claims.Subject)
	}
	return result, true
}
