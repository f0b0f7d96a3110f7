package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/relay/models"
	"github.com/cppla/relay/services"
	"github.com/cppla/relay/utils"
)

// UserStore is the subset of the credential store the auth endpoints use.
type UserStore interface {
	Create(ctx context.Context, in services.RegisterInput) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	FindByID(ctx context.Context, id uint) (*models.User, bool, error)
	UpdateProfile(ctx context.Context, id uint, upd services.ProfileUpdate) (*models.User, error)
	Deactivate(ctx context.Context, id uint) error
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(userID uint) (string, error)
}

// AuthController handles registration, login and the caller's own account.
type AuthController struct {
	users  UserStore
	tokens TokenIssuer
}

// NewAuthController creates an AuthController.
func NewAuthController(users UserStore, tokens TokenIssuer) *AuthController {
	return &AuthController{users: users, tokens: tokens}
}

// Register creates a local account and returns it with a fresh token.
func (a *AuthController) Register(ctx *gin.Context) {
	var req struct {
		Username  string `json:"username" binding:"required"`
		Email     string `json:"email" binding:"required"`
		Password  string `json:"password" binding:"required"`
		FirstName string `json:"firstName" binding:"required"`
		LastName  string `json:"lastName" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40000, "username, email, password, firstName and lastName are required")
		return
	}

	user, err := a.users.Create(ctx.Request.Context(), services.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		respondError(ctx, err, "user")
		return
	}

	token, err := a.tokens.Issue(user.ID)
	if err != nil {
		respondError(ctx, err, "user")
		return
	}

	utils.Sugar.Infof("user registered id=%d username=%s", user.ID, user.Username)
	utils.Respond(ctx, http.StatusCreated, gin.H{
		"message": "user registered successfully",
		"user":    services.NewOwnProfile(*user),
		"token":   token,
	})
}

// Login verifies credentials and issues a token.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badPayload(ctx)
		return
	}
	// Missing credentials fail the same way as wrong ones.
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		respondError(ctx, services.ErrInvalidCredentials, "user")
		return
	}

	user, err := a.users.Authenticate(ctx.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(ctx, err, "user")
		return
	}

	token, err := a.tokens.Issue(user.ID)
	if err != nil {
		respondError(ctx, err, "user")
		return
	}

	utils.Success(ctx, gin.H{
		"message": "login successful",
		"user":    services.NewOwnProfile(*user),
		"token":   token,
	})
}

// Me returns the authenticated user's profile.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	user, found, err := a.users.FindByID(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err, "user")
		return
	}
	if !found {
		respondError(ctx, services.ErrUserNotFound, "user")
		return
	}

	utils.Success(ctx, gin.H{"user": services.NewOwnProfile(*user)})
}

// UpdateProfile patches the caller's names, bio, picture or password.
func (a *AuthController) UpdateProfile(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	var req struct {
		FirstName      *string `json:"firstName"`
		LastName       *string `json:"lastName"`
		Bio            *string `json:"bio"`
		ProfilePicture *string `json:"profilePicture"`
		Password       *string `json:"password"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badPayload(ctx)
		return
	}

	user, err := a.users.UpdateProfile(ctx.Request.Context(), userID, services.ProfileUpdate{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Bio:            req.Bio,
		ProfilePicture: req.ProfilePicture,
		Password:       req.Password,
	})
	if err != nil {
		respondError(ctx, err, "user")
		return
	}

	utils.Success(ctx, gin.H{"user": services.NewOwnProfile(*user)})
}

// Deactivate soft-disables the caller's account.
func (a *AuthController) Deactivate(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	if err := a.users.Deactivate(ctx.Request.Context(), userID); err != nil {
		respondError(ctx, err, "user")
		return
	}

	utils.Sugar.Infof("user deactivated id=%d", userID)
	utils.Success(ctx, gin.H{"message": "account deactivated"})
}
