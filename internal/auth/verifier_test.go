package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyValidToken(t *testing.T) {
	verifier := NewJWTVerifier("secret")
	token := signToken(t, "secret", jwt.MapClaims{
		"uid": 42,
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	userID, err := verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, 42, userID)
}

func TestVerifyWrongSecret(t *testing.T) {
	verifier := NewJWTVerifier("secret")
	token := signToken(t, "other-secret", jwt.MapClaims{"uid": 42})

	_, err := verifier.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyExpiredToken(t *testing.T) {
	verifier := NewJWTVerifier("secret")
	token := signToken(t, "secret", jwt.MapClaims{
		"uid": 42,
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err := verifier.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyMissingUID(t *testing.T) {
	verifier := NewJWTVerifier("secret")
	token := signToken(t, "secret", jwt.MapClaims{"sub": "someone"})

	_, err := verifier.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyEmptyToken(t *testing.T) {
	verifier := NewJWTVerifier("secret")
	_, err := verifier.Verify("")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsUnexpectedAlgorithm(t *testing.T) {
	verifier := NewJWTVerifier("secret")

	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"uid": 42})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = verifier.Verify(signed)
	require.ErrorIs(t, err, ErrInvalidToken)
}
