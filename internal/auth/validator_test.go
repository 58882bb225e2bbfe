package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"campus-chat/internal/auth"
	"campus-chat/internal/cache"
	"campus-chat/internal/mocks"
	"campus-chat/internal/models"
	"campus-chat/internal/repositories"
)

const secret = "test-secret"

func strPtr(s string) *string { return &s }

func signWith(t *testing.T, key string, claims *auth.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func claimsFor(sub string, ttl time.Duration) *auth.Claims {
	now := time.Now()
	return &auth.Claims{
		Type: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ID:        "jti-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func TestValidateAcceptsSignedAccessToken(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	users.On("GetUser", mock.Anything, 7).Return(models.User{ID: 7, FirstName: strPtr("alice"), IsActive: true}, nil)
	v := auth.NewJWTValidator(secret, users, cache.NewMemoryStore(), time.Second, nil)

	token, err := auth.SignAccessToken(secret, 7, time.Minute)
	require.NoError(t, err)

	identity, err := v.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, 7, identity.UserID)
	assert.Equal(t, "alice", *identity.FirstName)
	users.AssertExpectations(t)
}

func TestValidateRejections(t *testing.T) {
	refresh := claimsFor("7", time.Minute)
	refresh.Type = "refresh"

	cases := []struct {
		name   string
		token  string
		reason error
	}{
		{"missing", "   ", auth.ErrMissingToken},
		{"garbage", "not-a-jwt", auth.ErrMalformedToken},
		{"wrong secret", signWith(t, "other", claimsFor("7", time.Minute)), auth.ErrMalformedToken},
		{"expired", signWith(t, secret, claimsFor("7", -time.Minute)), auth.ErrExpiredToken},
		{"refresh token", signWith(t, secret, refresh), auth.ErrMalformedToken},
		{"non numeric subject", signWith(t, secret, claimsFor("abc", time.Minute)), auth.ErrMalformedToken},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			users := new(mocks.UserRepositoryMock)
			v := auth.NewJWTValidator(secret, users, nil, time.Second, nil)

			_, err := v.Validate(context.Background(), tc.token)
			require.ErrorIs(t, err, tc.reason)
			assert.True(t, auth.IsAuthError(err))
			users.AssertNotCalled(t, "GetUser", mock.Anything, mock.Anything)
		})
	}
}

func TestValidateRevokedToken(t *testing.T) {
	store := cache.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), cache.RevokedTokenKey("jti-1"), []byte("1"), time.Minute))
	users := new(mocks.UserRepositoryMock)
	v := auth.NewJWTValidator(secret, users, store, time.Second, nil)

	_, err := v.Validate(context.Background(), signWith(t, secret, claimsFor("7", time.Minute)))
	require.ErrorIs(t, err, auth.ErrRevokedToken)
}

type brokenStore struct{ cache.Store }

func (brokenStore) Exists(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestValidateToleratesRevocationOutage(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	users.On("GetUser", mock.Anything, 7).Return(models.User{ID: 7}, nil)
	v := auth.NewJWTValidator(secret, users, brokenStore{}, time.Second, nil)

	identity, err := v.Validate(context.Background(), signWith(t, secret, claimsFor("7", time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, 7, identity.UserID)
}

func TestValidateUnknownSubject(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	users.On("GetUser", mock.Anything, 7).Return(models.User{}, repositories.ErrUserNotFound)
	v := auth.NewJWTValidator(secret, users, nil, time.Second, nil)

	_, err := v.Validate(context.Background(), signWith(t, secret, claimsFor("7", time.Minute)))
	require.ErrorIs(t, err, auth.ErrUnknownSubject)
}

func TestValidateUpstreamTimeout(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	users.On("GetUser", mock.Anything, 7).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(models.User{}, context.DeadlineExceeded)
	v := auth.NewJWTValidator(secret, users, nil, 20*time.Millisecond, nil)

	_, err := v.Validate(context.Background(), signWith(t, secret, claimsFor("7", time.Minute)))
	require.ErrorIs(t, err, auth.ErrUpstream)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", auth.BearerToken("Bearer abc"))
	assert.Equal(t, "abc", auth.BearerToken("bearer  abc"))
	assert.Equal(t, "", auth.BearerToken("Basic abc"))
	assert.Equal(t, "", auth.BearerToken(""))
}
