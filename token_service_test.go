package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/leadlocal/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService(key string) *auth.TokenService {
	return auth.NewTokenService([]byte(key), "test-issuer", []string{"test-audience"}, testLogger{})
}

func TestVerificationTokenRoundTrip(t *testing.T) {
	service := newTestTokenService("test-signing-key")
	user := &auth.User{
		ID:    uuid.New(),
		Email: "user@example.com",
	}

	tokenString, err := service.MintVerificationToken(user, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims, err := service.ReadVerificationToken(tokenString, time.Hour)
	require.NoError(t, err)

	uid, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, user.ID, uid)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, "test-issuer", claims.Issuer)
}

func TestVerificationTokenFailuresAreDistinguishable(t *testing.T) {
	service := newTestTokenService("test-signing-key")
	user := &auth.User{ID: uuid.New(), Email: "user@example.com"}

	t.Run("expired token", func(t *testing.T) {
		tokenString, err := service.MintVerificationToken(user, time.Millisecond)
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)

		claims, err := service.ReadVerificationToken(tokenString, time.Millisecond)
		assert.Nil(t, claims)
		assert.ErrorIs(t, err, auth.ErrTokenExpired)
		assert.True(t, auth.IsTokenExpiredError(err))
		assert.False(t, auth.IsBadSignatureError(err))
	})

	t.Run("tampered token", func(t *testing.T) {
		tokenString, err := service.MintVerificationToken(user, time.Hour)
		require.NoError(t, err)

		tampered := tokenString[:len(tokenString)-4] + "AAAA"

		claims, err := service.ReadVerificationToken(tampered, time.Hour)
		assert.Nil(t, claims)
		assert.ErrorIs(t, err, auth.ErrTokenBadSignature)
		assert.True(t, auth.IsBadSignatureError(err))
	})

	t.Run("wrong signing key", func(t *testing.T) {
		other := newTestTokenService("other-signing-key")
		tokenString, err := other.MintVerificationToken(user, time.Hour)
		require.NoError(t, err)

		claims, err := service.ReadVerificationToken(tokenString, time.Hour)
		assert.Nil(t, claims)
		assert.ErrorIs(t, err, auth.ErrTokenBadSignature)
	})

	t.Run("signature failure wins over expiry", func(t *testing.T) {
		// expired AND signed with the wrong key must read as tampered, never
		// as merely expired
		other := newTestTokenService("other-signing-key")
		tokenString, err := other.MintVerificationToken(user, time.Millisecond)
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)

		claims, err := service.ReadVerificationToken(tokenString, time.Millisecond)
		assert.Nil(t, claims)
		assert.ErrorIs(t, err, auth.ErrTokenBadSignature)
		assert.False(t, auth.IsTokenExpiredError(err))
	})

	t.Run("malformed input", func(t *testing.T) {
		for _, input := range []string{"", "garbage", "a.b", "a.b.c.d.e"} {
			claims, err := service.ReadVerificationToken(input, time.Hour)
			assert.Nil(t, claims)
			assert.ErrorIs(t, err, auth.ErrTokenMalformed, "input %q", input)
		}
	})

	t.Run("nil user can not mint", func(t *testing.T) {
		_, err := service.MintVerificationToken(nil, time.Hour)
		assert.Error(t, err)
	})
}

func TestVerificationTokenIsReusable(t *testing.T) {
	// accepting a token twice is harmless; the consuming flow owns idempotency
	service := newTestTokenService("test-signing-key")
	user := &auth.User{ID: uuid.New(), Email: "user@example.com"}

	tokenString, err := service.MintVerificationToken(user, time.Hour)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		claims, err := service.ReadVerificationToken(tokenString, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, user.Email, claims.Email)
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	service := newTestTokenService("test-signing-key")
	user := &auth.User{
		ID:            uuid.New(),
		AccountID:     uuid.New(),
		Email:         "machine@example.com",
		Role:          auth.RoleAdmin,
		EmailVerified: true,
	}

	tokenString, err := service.MintAccessToken(user, time.Hour, "reports:read")
	require.NoError(t, err)

	claims, err := service.ValidateAccessToken(tokenString)
	require.NoError(t, err)

	assert.Equal(t, user.ID.String(), claims.UserID())
	assert.Equal(t, user.AccountID.String(), claims.AccountID())
	assert.Equal(t, string(auth.RoleAdmin), claims.Role())
	assert.True(t, claims.EmailVerified())
	assert.Equal(t, []string{"reports:read"}, claims.Scopes)

	// bearer tokens never carry impersonation
	assert.False(t, claims.Impersonating())
	assert.Empty(t, claims.ActingAdminID())

	assert.True(t, claims.HasRole("admin"))
	assert.False(t, claims.HasRole("owner"))
	assert.True(t, claims.IsAtLeast("member"))
	assert.False(t, claims.IsAtLeast("owner"))
}

func TestAccessTokenValidation(t *testing.T) {
	service := newTestTokenService("test-signing-key")
	user := &auth.User{ID: uuid.New(), AccountID: uuid.New(), Role: auth.RoleMember}

	t.Run("requires a positive ttl", func(t *testing.T) {
		_, err := service.MintAccessToken(user, 0)
		assert.Error(t, err)
	})

	t.Run("rejects an unexpected signing algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"iss": "test-issuer",
			"aud": "test-audience",
			"sub": user.ID.String(),
		})
		tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		claims, err := service.ValidateAccessToken(tokenString)
		assert.Nil(t, claims)
		assert.Error(t, err)
	})

	t.Run("rejects a foreign issuer", func(t *testing.T) {
		foreign := auth.NewTokenService([]byte("test-signing-key"), "someone-else", []string{"test-audience"}, testLogger{})
		tokenString, err := foreign.MintAccessToken(user, time.Hour)
		require.NoError(t, err)

		claims, err := service.ValidateAccessToken(tokenString)
		assert.Nil(t, claims)
		assert.Error(t, err)
	})
}
