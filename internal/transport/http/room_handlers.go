package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/knagata/memosync-server/internal/auth"
	"github.com/knagata/memosync-server/internal/store"
)

// RoomHandlers provides the REST face of the access gate, used by the
// password modal before a WebSocket join is attempted.
type RoomHandlers struct {
	store store.AuthStore
	log   *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(st store.AuthStore, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		store: st,
		log:   logger,
	}
}

// ErrorResponse is the standard error body for API responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// VerifyRequest is the verify request body.
type VerifyRequest struct {
	Password string `json:"password"`
}

// VerifyResponse confirms access to a shared room. The secret itself is
// never echoed back.
type VerifyResponse struct {
	RoomID string `json:"roomId"`
	Title  string `json:"title,omitempty"`
}

// VerifyAccess checks whether the supplied password grants access to a
// shared room, mirroring the join-time gate over plain HTTP.
// POST /api/rooms/:id/verify
func (h *RoomHandlers) VerifyAccess(c *gin.Context) {
	roomID := c.Param("id")

	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	rec, err := h.store.FindRoomAuthorization(c.Request.Context(), roomID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("room", roomID).Msg("room authorization lookup failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if !rec.IsShared {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "room is not shared"})
		return
	}
	if !auth.MatchRoomPassword(rec.Password, req.Password) {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "incorrect password"})
		return
	}

	resp := VerifyResponse{RoomID: roomID}
	if tf, ok := h.store.(store.TitleFinder); ok {
		if title, err := tf.FindRoomTitle(c.Request.Context(), roomID); err == nil {
			resp.Title = title
		}
	}
	c.JSON(http.StatusOK, resp)
}
