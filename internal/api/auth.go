package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/cohortchat/internal/auth"
	"github.com/lalith-99/cohortchat/internal/models"
	"github.com/lalith-99/cohortchat/internal/repository"
	"github.com/lalith-99/cohortchat/internal/service"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const oauthStateCookie = "cohortchat_oauth_state"

// AuthHandler serves the public /api/auth endpoints. They are the only
// API routes that run without AuthMiddleware.
type AuthHandler struct {
	users        *service.UserService
	google       *auth.GoogleProvider
	jwtSecret    string
	tokenTTL     time.Duration
	frontendURL  string
	secureCookie bool
	logger       *zap.Logger
}

type AuthConfig struct {
	JWTSecret   string
	TokenTTL    time.Duration
	FrontendURL string
	// SecureCookie marks the OAuth state cookie Secure; set it behind TLS.
	SecureCookie bool
}

func NewAuthHandler(users *service.UserService, google *auth.GoogleProvider, cfg AuthConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		users:        users,
		google:       google,
		jwtSecret:    cfg.JWTSecret,
		tokenTTL:     cfg.TokenTTL,
		frontendURL:  strings.TrimRight(cfg.FrontendURL, "/"),
		secureCookie: cfg.SecureCookie,
		logger:       logger,
	}
}

type signupRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// authResponse is what both signup and login return. The client sends the
// token back as "Authorization: Bearer <token>".
type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (h *AuthHandler) issue(u *models.User) (string, error) {
	return auth.GenerateToken(u.ID, u.Email, h.jwtSecret, h.tokenTTL)
}

// Signup handles POST /api/auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("failed to hash password", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "signup failed"})
		return
	}

	username := req.Username
	if username == "" {
		username, _, _ = strings.Cut(req.Email, "@")
	}
	u, err := h.users.Register(c.Request.Context(), repository.NewUser{
		Email:        strings.ToLower(req.Email),
		Username:     username,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: string(hash),
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	token, err := h.issue(u)
	if err != nil {
		h.logger.Error("failed to generate token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "signup failed"})
		return
	}
	c.JSON(http.StatusCreated, authResponse{Token: token, User: u})
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	u, err := h.users.GetByEmail(c.Request.Context(), strings.ToLower(req.Email))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	// Same answer for unknown email, Google-only account and wrong password.
	if u == nil || u.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	token, err := h.issue(u)
	if err != nil {
		h.logger.Error("failed to generate token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, authResponse{Token: token, User: u})
}

// GoogleLogin handles GET /api/auth/google/login by sending the browser to
// Google's consent screen.
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	if !h.google.Enabled() {
		c.JSON(http.StatusNotFound, gin.H{"error": "google login is not configured"})
		return
	}
	state := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, state, int((10 * time.Minute).Seconds()), "/api/auth/google", "", h.secureCookie, true)
	c.Redirect(http.StatusFound, h.google.AuthCodeURL(state))
}

// GoogleCallback handles GET /api/auth/google/callback. Success and failure
// both end in a redirect to the frontend; the token travels in the fragment
// so it never reaches a server log.
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	if !h.google.Enabled() {
		c.JSON(http.StatusNotFound, gin.H{"error": "google login is not configured"})
		return
	}
	if e := c.Query("error"); e != "" {
		h.failLogin(c, e)
		return
	}
	code := c.Query("code")
	if code == "" {
		h.failLogin(c, "missing code")
		return
	}
	state, err := c.Cookie(oauthStateCookie)
	if err != nil || state == "" || state != c.Query("state") {
		h.failLogin(c, "invalid state")
		return
	}
	c.SetCookie(oauthStateCookie, "", -1, "/api/auth/google", "", h.secureCookie, true)

	profile, err := h.google.Exchange(c.Request.Context(), code)
	if err != nil {
		h.logger.Warn("google exchange failed", zap.Error(err))
		h.failLogin(c, "exchange failed")
		return
	}
	u, err := h.users.LoginExternal(c.Request.Context(), service.ExternalProfile{
		Email:      strings.ToLower(profile.Email),
		GivenName:  profile.GivenName,
		FamilyName: profile.FamilyName,
		Picture:    profile.Picture,
	})
	if err != nil {
		var invalid *service.ValidationError
		if !errors.As(err, &invalid) {
			h.logger.Error("google login failed", zap.Error(err))
		}
		h.failLogin(c, "login failed")
		return
	}

	token, err := h.issue(u)
	if err != nil {
		h.logger.Error("failed to generate token", zap.Error(err))
		h.failLogin(c, "login failed")
		return
	}
	c.Redirect(http.StatusFound, h.frontendURL+"/login/success/#token="+url.QueryEscape(token))
}

func (h *AuthHandler) failLogin(c *gin.Context, reason string) {
	c.Redirect(http.StatusFound, h.frontendURL+"/login?error="+url.QueryEscape(reason))
}
