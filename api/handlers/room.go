// Package handlers provides HTTP API request handlers.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/planning-poker/backend/internal/model"
	"github.com/planning-poker/backend/internal/room"
)

// RoomHandler serves the read-only admin surface over the room store. It
// only ever observes detached snapshots, never live store state.
type RoomHandler struct {
	store *room.Store
}

// NewRoomHandler creates a new RoomHandler.
func NewRoomHandler(store *room.Store) *RoomHandler {
	return &RoomHandler{store: store}
}

// List handles GET /api/rooms - lists live rooms with participant counts.
func (h *RoomHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.store.Rooms()})
}

// Get handles GET /api/rooms/:id - returns the room snapshot.
func (h *RoomHandler) Get(c *gin.Context) {
	roomID := c.Param("id")

	snap, err := h.store.Snapshot(roomID)
	if err != nil {
		if errors.Is(err, model.ErrRoomNotFound) {
			sendError(c, http.StatusNotFound, "ROOM_NOT_FOUND", "Room "+roomID+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, snap)
}

// RegisterRoutes registers the room handler routes on a Gin router group.
func (h *RoomHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/rooms", h.List)
	rg.GET("/rooms/:id", h.Get)
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
