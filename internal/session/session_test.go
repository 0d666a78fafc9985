package session

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quadfeed/quadfeed/internal/entities"
)

const secret = "test-secret"

func request(t *testing.T, authorization string) *http.Request {
	r, err := http.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, err)

	if authorization != "" {
		r.Header.Set("Authorization", authorization)
	}

	return r
}

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestVerifier_FromRequest(t *testing.T) {
	v := NewVerifier(secret)

	token := sign(t, secret, jwt.MapClaims{
		"sub":   "user-1",
		"email": "user-1@example.org",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	session, err := v.FromRequest(request(t, "Bearer "+token))
	require.NoError(t, err)
	assert.Equal(t, entities.Session{UserID: "user-1", Email: "user-1@example.org"}, session)
	assert.False(t, session.IsAnonymous())
}

func TestVerifier_FromRequest_anonymous(t *testing.T) {
	v := NewVerifier(secret)

	session, err := v.FromRequest(request(t, ""))
	require.NoError(t, err)
	assert.True(t, session.IsAnonymous())
}

func TestVerifier_FromRequest_invalid(t *testing.T) {
	v := NewVerifier(secret)

	tt := []struct {
		name          string
		authorization string
	}{
		{
			name:          "not bearer",
			authorization: "Basic dXNlcjpwYXNz",
		},
		{
			name:          "garbage",
			authorization: "Bearer garbage",
		},
		{
			name: "wrong secret",
			authorization: "Bearer " + sign(t, "other-secret", jwt.MapClaims{
				"sub": "user-1",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
		},
		{
			name: "expired",
			authorization: "Bearer " + sign(t, secret, jwt.MapClaims{
				"sub": "user-1",
				"exp": time.Now().Add(-time.Hour).Unix(),
			}),
		},
		{
			name: "no subject",
			authorization: "Bearer " + sign(t, secret, jwt.MapClaims{
				"email": "user-1@example.org",
				"exp":   time.Now().Add(time.Hour).Unix(),
			}),
		},
	}

	for i := range tt {
		tc := tt[i]

		t.Run(tc.name, func(t *testing.T) {
			_, err := v.FromRequest(request(t, tc.authorization))
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
