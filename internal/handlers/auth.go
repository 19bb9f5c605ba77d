package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/bugtrail/apiserver/internal/services"
	"github.com/bugtrail/apiserver/internal/store"
	"github.com/bugtrail/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 24 * time.Hour

// AuthHandler provides account creation, password change, and JWT
// authentication endpoints.
type AuthHandler struct {
	userService *services.UserService
	resolver    IdentityResolver
	secret      []byte
	tokenTTL    time.Duration
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, resolver IdentityResolver, jwtSecret string) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		resolver:    resolver,
		secret:      []byte(jwtSecret),
		tokenTTL:    defaultTokenTTL,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, userService *services.UserService, resolver IdentityResolver, jwtSecret string) {
	handler := NewAuthHandler(userService, resolver, jwtSecret)
	identity := RequireIdentity(resolver)

	r.Post("/create-account", handler.CreateAccount)
	r.Post("/login", handler.Login)
	r.With(identity).Put("/change-password", handler.ChangePassword)
	r.With(identity).Get("/me", handler.Me)
}

// CreateAccount registers a new user. No prior identity is required;
// the oldPassword field carries the provisional password the registrant
// is replacing and is only checked for inequality with the new one.
func (h *AuthHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.userService.CreateAccount(r.Context(), services.CreateAccountInput{
		Name:        req.Name,
		Email:       req.Email,
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
		Role:        req.Role,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, UserData{User: user}, "account created successfully")
}

// ChangePassword replaces the caller's password after verifying the
// current one. Requires a resolved identity.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.userService.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, nil, "password changed successfully")
}

// Login verifies credentials and returns a JWT.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.userService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound), errors.Is(err, services.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, services.ErrUserInactive):
			writeError(w, http.StatusUnauthorized, "account is deactivated")
		default:
			log.Printf("login: %v", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	token, err := issueToken(user.ID, h.secret, h.tokenTTL)
	if err != nil {
		log.Printf("issue token: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeSuccess(w, http.StatusOK, LoginData{Token: token, User: user}, "")
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		log.Printf("load user: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeSuccess(w, http.StatusOK, UserData{User: user}, "")
}

type CreateAccountRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
	Role        string `json:"role,omitempty"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserData struct {
	User types.User `json:"user"`
}

type LoginData struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

// writeServiceError maps domain errors onto the error envelope.
// Unexpected errors are logged and returned as a generic 500 so
// internal details never leak to the client.
func writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *services.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeFieldError(w, http.StatusBadRequest, validationErr.Field, validationErr.Message)
	case errors.Is(err, services.ErrEmailTaken):
		writeFieldError(w, http.StatusBadRequest, "email", "email already registered")
	case errors.Is(err, services.ErrInvalidCredentials):
		writeFieldError(w, http.StatusBadRequest, "oldPassword", "old password is incorrect")
	case errors.Is(err, services.ErrSamePassword):
		writeFieldError(w, http.StatusBadRequest, "newPassword", "new password must be different from the current password")
	case errors.Is(err, services.ErrUserInactive):
		writeError(w, http.StatusUnauthorized, "account is deactivated")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	default:
		log.Printf("auth handler: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func issueToken(userID int, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
