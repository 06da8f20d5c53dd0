package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/panelchat/internal/repository"
)

// ErrInvalidIdentity means the token was rejected or names an unknown user.
var ErrInvalidIdentity = errors.New("invalid identity")

// Identity is an already-verified user, as the chat core sees it.
type Identity struct {
	UserID      uuid.UUID
	DisplayName string
}

// Authenticator turns a bearer token into an Identity. Implementations must
// honour ctx: the connection manager bounds verification with a deadline.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// JWTAuthenticator verifies the token signature locally, then confirms the
// user still exists, which also supplies the display name.
type JWTAuthenticator struct {
	secret string
	users  repository.UserRepository
}

func NewJWTAuthenticator(secret string, users repository.UserRepository) *JWTAuthenticator {
	return &JWTAuthenticator{secret: secret, users: users}
}

func (a *JWTAuthenticator) Authenticate(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, fmt.Errorf("%w: missing token", ErrInvalidIdentity)
	}
	claims, err := ParseToken(token, a.secret)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}

	user, err := a.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return Identity{}, fmt.Errorf("look up user: %w", err)
	}
	if user == nil {
		return Identity{}, fmt.Errorf("%w: unknown user", ErrInvalidIdentity)
	}

	return Identity{UserID: user.ID, DisplayName: user.DisplayName}, nil
}
