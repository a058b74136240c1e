package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goblog/apiserver/internal/services"
	"github.com/goblog/apiserver/internal/store"
	"github.com/goblog/apiserver/internal/token"
)

// AuthHandler provides registration, activation, and token endpoints.
type AuthHandler struct {
	userService *services.UserService
	verifier    *token.Verifier
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
// The verifier checks access tokens only; refresh tokens are verified inside
// the service against the refresh secret.
func NewAuthHandler(userService *services.UserService, accessVerifier *token.Verifier) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		verifier:    accessVerifier,
	}
}

// AuthRouter registers the account and token routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	r.Post("/register", handler.Register)
	r.Get("/activate/{code}", handler.Activate)
	r.Post("/login", handler.Login)
	r.Post("/refresh", handler.Refresh)
	r.With(handler.RequireAuth).Get("/me", handler.Me)
}

// RequireAuth verifies the bearer token, resolves it to a user record, and
// injects the identity into the request context. The password hash never
// travels past this point serialized; types.User hides it from JSON.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		subject, err := h.verifier.Verify(tokenString)
		if err != nil {
			if errors.Is(err, token.ErrExpiredToken) {
				writeError(w, http.StatusUnauthorized, "token expired")
				return
			}
			writeError(w, http.StatusForbidden, "invalid token")
			return
		}

		id, err := strconv.Atoi(subject)
		if err != nil {
			writeError(w, http.StatusForbidden, "invalid token")
			return
		}

		user, err := h.userService.GetByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "user not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to load user")
			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// Register creates a pending account and triggers the activation email.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Name == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	user, err := h.userService.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			writeError(w, http.StatusBadRequest, "email already taken")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// Activate redeems an activation code. An already-used code gets the same
// 404 as an unknown one.
func (h *AuthHandler) Activate(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	user, err := h.userService.Activate(r.Context(), code)
	if err != nil {
		if errors.Is(err, services.ErrCodeNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to activate account")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Login verifies credentials and returns an access/refresh token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	pair, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrWrongPassword):
			writeError(w, http.StatusBadRequest, "wrong email or password")
		case errors.Is(err, services.ErrAccountInactive):
			writeError(w, http.StatusBadRequest, "account is not active")
		default:
			writeError(w, http.StatusInternalServerError, "failed to authenticate")
		}
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// Refresh exchanges a refresh token for a new pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "missing refresh token")
		return
	}

	pair, err := h.userService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrExpiredToken), errors.Is(err, token.ErrInvalidToken), errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
		default:
			writeError(w, http.StatusInternalServerError, "failed to refresh token")
		}
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return "", errors.New("invalid authorization")
	}
	return tokenString, nil
}
