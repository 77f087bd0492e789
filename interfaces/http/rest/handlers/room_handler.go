package handlers

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"sketchroom-backend/application/services"
	"sketchroom-backend/domain/core/entities"
	"sketchroom-backend/pkg/api"
	pkgerrors "sketchroom-backend/pkg/errors"
)

// SnapshotRenderer draws a room's finalized strokes into a document.
type SnapshotRenderer interface {
	Render(w io.Writer, ops []*entities.Operation) error
}

// RoomDetail describes one room.
type RoomDetail struct {
	ID         string              `json:"id"`
	Members    []entities.Presence `json:"members"`
	Operations int                 `json:"operations"`
	Redoable   int                 `json:"redoable"`
	InProgress int                 `json:"inProgress"`
}

// SnapshotResponse carries a room's applied history.
type SnapshotResponse struct {
	RoomID     string                `json:"roomId"`
	Operations []*entities.Operation `json:"operations"`
}

// RoomHandler serves read-only views of the live rooms.
type RoomHandler struct {
	registry *services.RoomRegistry
	renderer SnapshotRenderer
	logger   *zap.Logger
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(registry *services.RoomRegistry, renderer SnapshotRenderer, logger *zap.Logger) *RoomHandler {
	return &RoomHandler{
		registry: registry,
		renderer: renderer,
		logger:   logger,
	}
}

// ListRooms handles GET /rooms
// @Summary List rooms
// @Description Lists every room created since start, oldest first
// @Tags rooms
// @Produce json
// @Success 200 {array} services.RoomInfo
// @Router /rooms [get]
func (h *RoomHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, h.registry.Rooms())
}

// GetRoom handles GET /rooms/{roomId}
// @Summary Get room
// @Description Returns the member list and history size of a room. Looking a room up never creates it.
// @Tags rooms
// @Produce json
// @Param roomId path string true "Room ID"
// @Success 200 {object} RoomDetail
// @Failure 404 {object} api.ErrorResponse
// @Router /rooms/{roomId} [get]
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	info, ok := h.registry.Info(roomID)
	if !ok {
		api.HandleError(w, pkgerrors.NewNotFoundError("room"))
		return
	}

	api.Success(w, http.StatusOK, RoomDetail{
		ID:         info.ID,
		Members:    h.registry.ListMembers(roomID),
		Operations: info.Operations,
		Redoable:   info.Redoable,
		InProgress: info.InProgress,
	})
}

// GetSnapshot handles GET /rooms/{roomId}/snapshot
// @Summary Get room snapshot
// @Description Returns the applied operations of a room in order
// @Tags rooms
// @Produce json
// @Param roomId path string true "Room ID"
// @Success 200 {object} SnapshotResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /rooms/{roomId}/snapshot [get]
func (h *RoomHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if _, ok := h.registry.Lookup(roomID); !ok {
		api.HandleError(w, pkgerrors.NewNotFoundError("room"))
		return
	}

	api.Success(w, http.StatusOK, SnapshotResponse{
		RoomID:     roomID,
		Operations: h.registry.Snapshot(roomID),
	})
}

// ExportPDF handles GET /rooms/{roomId}/export.pdf
// @Summary Export room as PDF
// @Description Renders the room's finalized strokes onto a single PDF page
// @Tags rooms
// @Produce application/pdf
// @Param roomId path string true "Room ID"
// @Success 200 {file} binary
// @Failure 404 {object} api.ErrorResponse
// @Failure 500 {object} api.ErrorResponse
// @Router /rooms/{roomId}/export.pdf [get]
func (h *RoomHandler) ExportPDF(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if _, ok := h.registry.Lookup(roomID); !ok {
		api.HandleError(w, pkgerrors.NewNotFoundError("room"))
		return
	}

	// Render fully before writing so a failure can still become a JSON error.
	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, h.registry.Snapshot(roomID)); err != nil {
		h.logger.Error("Failed to render room",
			zap.String("roomID", roomID),
			zap.Error(err),
		)
		api.HandleError(w, pkgerrors.NewInternalError("failed to render room").WithCause(err))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+safeFilename(roomID)+`.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Debug("Failed to write PDF", zap.String("roomID", roomID), zap.Error(err))
	}
}

// safeFilename keeps ASCII letters, digits, dash and underscore.
func safeFilename(roomID string) string {
	out := make([]byte, 0, len(roomID))
	for i := 0; i < len(roomID); i++ {
		c := roomID[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return "room"
	}
	return string(out)
}
