package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pvolkhin/chatgram-server/internal/store"
)

const searchResultLimit = 20

// UserHandlers provides HTTP handlers for user lookup endpoints.
type UserHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(st store.Store, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		store: st,
		log:   logger,
	}
}

// UserSummaryResponse represents a user search hit.
type UserSummaryResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar,omitempty"`
	IsOnline bool   `json:"is_online"`
}

// SearchUsers searches users by name or phone number.
// GET /api/users/search?q=
func (h *UserHandlers) SearchUsers(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	query := c.Query("q")
	if len(query) < 2 {
		c.JSON(http.StatusOK, []UserSummaryResponse{})
		return
	}

	users, err := h.store.SearchUsers(c.Request.Context(), query, uid, searchResultLimit)
	if err != nil {
		h.log.Error().Err(err).Str("query", query).Msg("failed to search users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]UserSummaryResponse, 0, len(users))
	for _, u := range users {
		response = append(response, UserSummaryResponse{
			ID:       u.ID,
			Name:     u.Name,
			Avatar:   u.Avatar,
			IsOnline: u.IsOnline,
		})
	}

	c.JSON(http.StatusOK, response)
}
