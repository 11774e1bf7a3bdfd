package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"notify-collab/core"
)

// Failure reasons carried by Error.
const (
	ReasonMissingToken = "missing_token"
	ReasonInvalidToken = "invalid_token"
	ReasonUnknownUser  = "unknown_user"
)

// Error is a connect-time authentication failure. Connections that fail with
// it must be refused before they are registered anywhere.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "authentication error: " + e.Reason
}

// AppClaims represents the custom claims for the JWT. Subject carries the
// user ID.
type AppClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Verifier resolves a bearer token to a verified identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (core.Identity, error)
}

type jwtVerifier struct {
	secret []byte
	users  core.UserDirectory
}

// NewVerifier returns a Verifier that checks HS256 signatures with the given
// secret and resolves the subject against the user directory.
func NewVerifier(secret []byte, users core.UserDirectory) Verifier {
	return &jwtVerifier{secret: secret, users: users}
}

func (v *jwtVerifier) Verify(ctx context.Context, tokenString string) (core.Identity, error) {
	if tokenString == "" {
		return core.Identity{}, &Error{Reason: ReasonMissingToken}
	}

	claims, err := v.parse(tokenString)
	if err != nil {
		return core.Identity{}, &Error{Reason: ReasonInvalidToken}
	}

	user, err := v.users.FindUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			return core.Identity{}, &Error{Reason: ReasonUnknownUser}
		}
		return core.Identity{}, err
	}

	return user.Identity(), nil
}

func (v *jwtVerifier) parse(tokenString string) (*AppClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AppClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// CreateToken issues a signed token for a user. The realtime server only
// verifies tokens; this is used by tests and operational tooling.
func CreateToken(secret []byte, user *core.User, ttl time.Duration) (string, error) {
	claims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Username: user.Username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
