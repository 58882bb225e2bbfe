package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"campus-chat/internal/cache"
	"campus-chat/internal/logging"
	"campus-chat/internal/repositories"
)

// Identity is the authenticated user behind a token.
type Identity struct {
	UserID    int
	FirstName *string
}

// Validator verifies bearer credentials.
type Validator interface {
	Validate(ctx context.Context, token string) (Identity, error)
}

// Claims are the access token claims. Subject carries the user id.
type Claims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// JWTValidator checks HS256 access tokens, their revocation marker and their subject.
type JWTValidator struct {
	secret      []byte
	users       repositories.UserRepository
	revocations cache.Store
	timeout     time.Duration
	logger      *zap.Logger
}

// NewJWTValidator constructs a JWTValidator. revocations may be nil.
func NewJWTValidator(secret string, users repositories.UserRepository, revocations cache.Store, timeout time.Duration, logger *zap.Logger) *JWTValidator {
	return &JWTValidator{
		secret:      []byte(secret),
		users:       users,
		revocations: revocations,
		timeout:     timeout,
		logger:      logging.OrNop(logger),
	}
}

// Validate verifies the token and resolves the user. Lookups run under the configured timeout,
// and cancelling ctx aborts them.
func (v *JWTValidator) Validate(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, fail(ErrMissingToken, nil)
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, fail(ErrExpiredToken, err)
		}
		return Identity{}, fail(ErrMalformedToken, err)
	}
	if !parsed.Valid || (claims.Type != "" && claims.Type != "access") {
		return Identity{}, fail(ErrMalformedToken, nil)
	}
	userID, err := strconv.Atoi(claims.Subject)
	if err != nil || userID <= 0 {
		return Identity{}, fail(ErrMalformedToken, err)
	}

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	if claims.ID != "" && v.revocations != nil {
		revoked, err := v.revocations.Exists(ctx, cache.RevokedTokenKey(claims.ID))
		if err != nil {
			v.logger.Warn("revocation lookup failed", zap.String("jti", claims.ID), zap.Error(err))
		} else if revoked {
			return Identity{}, fail(ErrRevokedToken, nil)
		}
	}

	user, err := v.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return Identity{}, fail(ErrUnknownSubject, err)
		}
		return Identity{}, fail(ErrUpstream, err)
	}
	return Identity{UserID: user.ID, FirstName: user.FirstName}, nil
}

// SignAccessToken issues an access token for userID.
func SignAccessToken(secret string, userID int, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Type: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(userID),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// BearerToken strips a case-insensitive "Bearer " prefix.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
