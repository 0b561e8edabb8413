package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamshop/gateway/internal/models"
)

func TestParse(t *testing.T) {
	v := NewVerifier("test-secret")

	t.Run("valid", func(t *testing.T) {
		tok, err := v.Issue(42, "anna@example.com", time.Hour)
		require.NoError(t, err)

		c, err := v.Parse(tok)
		require.NoError(t, err)
		assert.Equal(t, models.UserID(42), c.UserID)
		assert.Equal(t, "anna@example.com", c.Email)
	})

	t.Run("no exp", func(t *testing.T) {
		tok, err := v.Issue(7, "", 0)
		require.NoError(t, err)
		_, err = v.Parse(tok)
		assert.NoError(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		tok, err := v.Issue(42, "", -time.Minute)
		require.NoError(t, err)
		_, err = v.Parse(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		tok, err := NewVerifier("other").Issue(42, "", time.Hour)
		require.NoError(t, err)
		_, err = v.Parse(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing id", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"email": "x@y.z"}).
			SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = v.Parse(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("string id", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": "15"}).
			SignedString([]byte("test-secret"))
		require.NoError(t, err)
		c, err := v.Parse(tok)
		require.NoError(t, err)
		assert.Equal(t, models.UserID(15), c.UserID)
	})

	t.Run("unsigned alg none", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"id": 1}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = v.Parse(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Parse("not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestFromHeader(t *testing.T) {
	tok, err := FromHeader("Bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", tok)

	tok, err = FromHeader("bearer xyz")
	require.NoError(t, err)
	assert.Equal(t, "xyz", tok)

	_, err = FromHeader("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = FromHeader("Basic dXNlcjpwYXNz")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = FromHeader("Bearer")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestClaimsContext(t *testing.T) {
	_, ok := ClaimsFrom(context.Background())
	assert.False(t, ok)

	ctx := WithClaims(context.Background(), &Claims{UserID: 3})
	c, ok := ClaimsFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, models.UserID(3), c.UserID)
}
