// Package session extracts the identity-provider session from requests.
//
// Identity issuance is external, this package only verifies the bearer token
// the provider minted and exposes its stable user id and email.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quadfeed/quadfeed/internal/entities"
)

// ErrInvalidToken ...
var ErrInvalidToken = errors.New("invalid token")

type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Verifier verifies provider-issued tokens.
type Verifier struct {
	secret []byte
}

// NewVerifier ...
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
	}
}

// FromRequest returns the session carried by the request's bearer token. A
// request without a token yields an anonymous session and no error.
func (v *Verifier) FromRequest(r *http.Request) (entities.Session, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return entities.Session{}, nil
	}

	raw := strings.TrimPrefix(h, "Bearer ")
	if raw == h {
		return entities.Session{}, ErrInvalidToken
	}

	var c claims
	t, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}

		return v.secret, nil
	})

	if err != nil || !t.Valid || c.Subject == "" {
		return entities.Session{}, ErrInvalidToken
	}

	return entities.Session{
		UserID: c.Subject,
		Email:  c.Email,
	}, nil
}
