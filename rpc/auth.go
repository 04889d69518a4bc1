package rpc

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"gasstation/crypto"
	"gasstation/native/admin"
)

// authorizeAdmin validates the HMAC-signed bearer token on admin_* methods and
// exchanges the token's subject for an administrator capability. The subject
// must be the bech32 address of the recorded owner; the capability check is
// still performed against state, so a valid token for a non-owner subject is
// refused.
func (s *Server) authorizeAdmin(r *http.Request) (admin.Capability, *handlerError) {
	if len(s.adminSecret) == 0 {
		return admin.Capability{}, errUnauthorized("administrative interface is disabled")
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		return admin.Capability{}, errUnauthorized("missing bearer token")
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.adminSecret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return admin.Capability{}, errUnauthorized("invalid bearer token")
	}

	subject, err := crypto.DecodeAddress(claims.Subject)
	if err != nil {
		return admin.Capability{}, errUnauthorized("token subject is not a valid address")
	}
	c, err := admin.Authorize(s.st, subject.Bytes())
	if err != nil {
		return admin.Capability{}, errUnauthorized(err.Error())
	}
	return c, nil
}
