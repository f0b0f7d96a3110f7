package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/relay/models"
	"github.com/cppla/relay/services"
	"github.com/cppla/relay/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextUsernameKey stores the username inside Gin context.
	ContextUsernameKey = "username"
	// ContextEmailKey stores the email inside Gin context.
	ContextEmailKey = "email"

	bearerPrefix = "Bearer "
)

// TokenVerifier checks a session token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*utils.Claims, error)
}

// UserFinder resolves a token subject to a stored user.
type UserFinder interface {
	FindByID(ctx context.Context, id uint) (*models.User, bool, error)
}

// Identity is what a verified token resolves to.
type Identity struct {
	UserID   uint
	Username string
	Email    string
}

// AuthGuard turns an Authorization header into an Identity.
type AuthGuard struct {
	tokens TokenVerifier
	users  UserFinder
}

// NewAuthGuard builds a guard from a token verifier and user lookup.
func NewAuthGuard(tokens TokenVerifier, users UserFinder) *AuthGuard {
	return &AuthGuard{tokens: tokens, users: users}
}

// Resolve verifies header and loads the user it names. Client-facing failures are the
// services.Err* auth kinds; any other error is an internal fault.
func (g *AuthGuard) Resolve(ctx context.Context, header string) (Identity, error) {
	if header == "" {
		return Identity{}, services.ErrUnauthenticated
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return Identity{}, services.ErrMalformedHeader
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" {
		return Identity{}, services.ErrUnauthenticated
	}

	claims, err := g.tokens.Verify(token)
	if err != nil {
		if errors.Is(err, utils.ErrTokenExpired) {
			return Identity{}, services.ErrTokenExpired
		}
		return Identity{}, services.ErrInvalidToken
	}

	user, ok, err := g.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return Identity{}, err
	}
	if !ok {
		return Identity{}, services.ErrUserNotFound
	}
	if !user.IsActive {
		return Identity{}, services.ErrAccountDeactivated
	}
	return Identity{UserID: user.ID, Username: user.Username, Email: user.Email}, nil
}

// Required rejects the request unless it carries a valid bearer token for an active user.
func (g *AuthGuard) Required() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id, err := g.Resolve(ctx.Request.Context(), ctx.GetHeader("Authorization"))
		if err != nil {
			status, code, message := authFailure(err)
			if status == http.StatusInternalServerError {
				utils.Logger.Error("auth middleware error",
					zap.Error(err),
					zap.String("request_id", ctx.GetString(utils.ContextRequestIDKey)))
			}
			utils.Error(ctx, status, code, message)
			ctx.Abort()
			return
		}

		ctx.Set(ContextUserIDKey, id.UserID)
		ctx.Set(ContextUsernameKey, id.Username)
		ctx.Set(ContextEmailKey, id.Email)
		ctx.Next()
	}
}

func authFailure(err error) (status int, code int, message string) {
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		return http.StatusUnauthorized, 40101, "no token provided, authorization denied"
	case errors.Is(err, services.ErrMalformedHeader):
		return http.StatusUnauthorized, 40102, "invalid token format, use Bearer token"
	case errors.Is(err, services.ErrInvalidToken):
		return http.StatusUnauthorized, 40103, "invalid token"
	case errors.Is(err, services.ErrTokenExpired):
		return http.StatusUnauthorized, 40104, "token has expired"
	case errors.Is(err, services.ErrUserNotFound):
		return http.StatusUnauthorized, 40105, "token is invalid, user not found"
	case errors.Is(err, services.ErrAccountDeactivated):
		return http.StatusUnauthorized, 40106, "account is deactivated"
	default:
		return http.StatusInternalServerError, 50001, "server error in authentication"
	}
}

// CurrentIdentity returns the identity stored by Required.
func CurrentIdentity(ctx *gin.Context) (Identity, bool) {
	v, ok := ctx.Get(ContextUserIDKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(uint)
	if !ok || id == 0 {
		return Identity{}, false
	}
	return Identity{
		UserID:   id,
		Username: ctx.GetString(ContextUsernameKey),
		Email:    ctx.GetString(ContextEmailKey),
	}, true
}
