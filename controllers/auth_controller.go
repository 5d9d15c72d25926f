package controllers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/studymate/studymate/config"
	"github.com/studymate/studymate/middleware"
	"github.com/studymate/studymate/models"
	"github.com/studymate/studymate/utils"
)

// AuthController handles local account registration and bearer-token sessions.
type AuthController struct {
	db    *gorm.DB
	guard *utils.RegisterGuard
}

// NewAuthController creates an AuthController.
func NewAuthController(db *gorm.DB) *AuthController {
	cfg := config.Get()
	return &AuthController{
		db:    db,
		guard: utils.NewRegisterGuard(time.Duration(cfg.RegisterAttemptCooldownSec)*time.Second, cfg.RegisterMaxPerIPPerDay),
	}
}

// Register creates an account with a bcrypt hashed password and returns a token.
func (a *AuthController) Register(ctx *gin.Context) {
	type request struct {
		Username   string `json:"username" binding:"required"`
		Password   string `json:"password" binding:"required"`
		InviteCode string `json:"invite_code"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	ip := ctx.ClientIP()
	if !a.guard.TryAttempt(ctx.Request.Context(), ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42902, "please wait before trying again")
		return
	}
	if !a.guard.UnderDailyLimit(ctx.Request.Context(), ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42903, "too many registrations from this address today")
		return
	}

	cfg := config.Get()
	if cfg.RegistrationInviteCode != "" &&
		subtle.ConstantTimeCompare([]byte(req.InviteCode), []byte(cfg.RegistrationInviteCode)) != 1 {
		utils.Error(ctx, http.StatusForbidden, 40301, "invalid invite code")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if l := len([]rune(req.Username)); l < 3 || l > 32 || !validUsername(req.Username) {
		utils.Error(ctx, http.StatusBadRequest, 40002, "username must be 3-32 letters, digits, '-' or '_'")
		return
	}
	if len(req.Password) < 6 || len(req.Password) > 72 {
		utils.Error(ctx, http.StatusBadRequest, 40002, "password must be 6-72 characters")
		return
	}

	var existing models.User
	if err := a.db.Where("username = ?", req.Username).First(&existing).Error; err == nil {
		utils.Error(ctx, http.StatusConflict, 40901, "username already exists")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to hash password")
		return
	}

	user := models.User{Username: req.Username, PasswordHash: hash}
	if err := a.db.Create(&user).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to create user")
		return
	}
	a.guard.RecordSuccess(ctx.Request.Context(), ip)

	token, err := utils.GenerateToken(user.ID, user.Username, tokenTTL())
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{
		"token": token,
		"user":  user,
	})
}

func validUsername(s string) bool {
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '-' || r == '_' {
			continue
		}
		return false
	}
	return true
}

func tokenTTL() time.Duration {
	return time.Duration(config.Get().TokenTTLHours) * time.Hour
}

// Login verifies user credentials and issues a JWT.
func (a *AuthController) Login(ctx *gin.Context) {
	type request struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid request payload")
		return
	}

	var user models.User
	if err := a.db.Where("username = ?", strings.TrimSpace(req.Username)).First(&user).Error; err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid username or password")
		return
	}

	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid username or password")
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Username, tokenTTL())
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{
		"token": token,
		"user":  user,
	})
}

// Logout invalidates the token by blacklisting it until expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	token := ctx.GetString(middleware.ContextTokenKey)
	if token == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40107, "invalid authorization header")
		return
	}

	claims, err := utils.ParseToken(token)
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
		return
	}

	expiresAt := time.Now().Add(tokenTTL())
	if claims.RegisteredClaims.ExpiresAt != nil {
		expiresAt = claims.RegisteredClaims.ExpiresAt.Time
	}

	utils.BlacklistToken(ctx.Request.Context(), token, expiresAt)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the current authenticated user's information.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50005, "failed to load user")
		return
	}

	utils.Success(ctx, user)
}
