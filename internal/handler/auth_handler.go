package handler

import (
	stdErrors "errors"
	"net/http"

	"invoice-api/internal/container"
	"invoice-api/internal/domain"
	"invoice-api/internal/middleware"
	"invoice-api/internal/repository"
	"invoice-api/pkg/errors"
)

// AuthHandler handles requests about the authenticated caller
type AuthHandler struct {
	container *container.Container
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(container *container.Container) *AuthHandler {
	return &AuthHandler{
		container: container,
	}
}

// GetMe handles GET /api/me. The user record is resolved through the cached
// user directory. Without a database the profile is built from the token.
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	// Get user from context (set by auth middleware)
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeErrorResponse(w, r, errors.NewAuthenticationError("User not authenticated"), logger)
		return
	}

	users := h.container.GetUserDirectory()
	if users == nil {
		writeData(w, &domain.User{
			ExternalID: claims.Sub,
			Email:      claims.Email,
			Name:       claims.Name,
		}, logger)
		return
	}

	user, err := users.Resolve(r.Context(), claims.Sub)
	if err != nil {
		if stdErrors.Is(err, repository.ErrUserNotFound) {
			writeErrorResponse(w, r, errors.NewNotFoundError("User not found"), logger)
			return
		}
		writeErrorResponse(w, r, errors.NewUnavailableError("Failed to load user", err), logger)
		return
	}

	logger.WithField("user_id", user.ID).Debug("User profile retrieved successfully")
	writeData(w, user, logger)
}
