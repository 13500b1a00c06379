// ABOUTME: JWT credential verification for authenticating gateway requests
// ABOUTME: Uses HS256 signing with a shared secret; claims are sub, exp, role

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/taskvine/vine-gateway/internal/store"
)

// MinSecretLength is the minimum signing secret size in bytes.
const MinSecretLength = 32

// Token errors. Handlers report verification failures uniformly to callers;
// these sentinels exist for logging and tests.
var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token expired")
	ErrMissingClaim   = errors.New("missing required claim")
	ErrSecretTooShort = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
)

// Principal is the authenticated identity extracted from a verified
// credential, prior to any tenant authorization. It is derived fresh per
// request and never persisted.
type Principal struct {
	UserID uuid.UUID
	Role   store.Role
}

// TokenVerifier verifies a bearer credential and extracts the Principal.
type TokenVerifier interface {
	Verify(tokenString string) (*Principal, error)
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier with the given shared secret.
func NewJWTVerifier(secret []byte) (*JWTVerifier, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	return &JWTVerifier{secret: secret}, nil
}

// Verify validates signature and expiry and extracts the principal from the
// "sub" and "role" claims.
func (v *JWTVerifier) Verify(tokenString string) (*Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("%w: sub is not a UUID", ErrInvalidToken)
	}

	roleClaim, ok := claims["role"].(string)
	if !ok || roleClaim == "" {
		return nil, fmt.Errorf("%w: role", ErrMissingClaim)
	}
	role, err := store.ParseRole(roleClaim)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return &Principal{UserID: userID, Role: role}, nil
}

// Generate creates a signed token for the given user with an expiration.
func (v *JWTVerifier) Generate(userID uuid.UUID, role store.Role, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  userID.String(),
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
