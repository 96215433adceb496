// server/internal/api/handlers/dispatch_handler.go
package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"relief-dispatch-api-server/internal/api/middleware"
	"relief-dispatch-api-server/internal/dispatch"
	"relief-dispatch-api-server/internal/location"
	"relief-dispatch-api-server/internal/models"
	"relief-dispatch-api-server/internal/s3"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxProofBytes = 10 << 20

// PhotoUploader stores proof photos and returns their URL.
type PhotoUploader interface {
	UploadFile(ctx context.Context, file io.Reader, objectKey, contentType string) (string, error)
}

// DispatchHandler serves the volunteer side of an active dispatch.
type DispatchHandler struct {
	Channel     *location.Channel
	Coordinator *dispatch.Coordinator
	Uploader    PhotoUploader
}

type LocationRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

// PushLocation records the volunteer's position for an IN_PROGRESS dispatch.
func (h *DispatchHandler) PushLocation(c *gin.Context) {
	var req LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	pos, err := h.Channel.PushLocation(c.Request.Context(), c.Param("dispatchId"), middleware.CurrentVolunteer(c).ID,
		models.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispatch_id": c.Param("dispatchId"), "location": pos})
}

// GetLocation returns the last pushed position of a dispatch.
func (h *DispatchHandler) GetLocation(c *gin.Context) {
	ctx := c.Request.Context()
	dispatchID := c.Param("dispatchId")
	req, err := h.Coordinator.GetByDispatch(ctx, dispatchID)
	if err != nil {
		respondError(c, err)
		return
	}
	// Admins see every dispatch; volunteers only their own.
	if middleware.CurrentRole(c) != models.RoleAdmin && req.Dispatch.Volunteer.ID != middleware.CurrentVolunteer(c).ID {
		respondError(c, fmt.Errorf("dispatch %s: %w", dispatchID, models.ErrNotAuthorized))
		return
	}
	pos, err := h.Channel.ReadLatest(ctx, dispatchID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispatch_id": dispatchID, "location": pos})
}

// UploadProof stores a delivery photo (multipart field "photo") and attaches it to the dispatch.
func (h *DispatchHandler) UploadProof(c *gin.Context) {
	if h.Uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Photo storage is not configured"})
		return
	}
	fileHeader, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Photo file is required", "code": models.Code(models.ErrValidation)})
		return
	}
	if fileHeader.Size > maxProofBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Photo is larger than 10MB", "code": models.Code(models.ErrValidation)})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxProofBytes+1))
	if err != nil {
		respondError(c, err)
		return
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		respondError(c, fmt.Errorf("%w: photo must be an image, got %s", models.ErrValidation, contentType))
		return
	}

	ctx := c.Request.Context()
	dispatchID := c.Param("dispatchId")
	volunteer := middleware.CurrentVolunteer(c)
	owner, err := h.Coordinator.GetByDispatch(ctx, dispatchID)
	if err != nil {
		respondError(c, err)
		return
	}
	if owner.Dispatch.Volunteer.ID != volunteer.ID {
		respondError(c, fmt.Errorf("dispatch %s: %w", dispatchID, models.ErrNotAuthorized))
		return
	}

	sum := sha256.Sum256(data)
	proofID := uuid.NewString()
	url, err := h.Uploader.UploadFile(ctx, bytes.NewReader(data), s3.ProofKey(dispatchID, proofID, strings.ToLower(filepath.Ext(fileHeader.Filename))), contentType)
	if err != nil {
		respondError(c, err)
		return
	}

	proof := models.DeliveryProof{
		ID:         proofID,
		PhotoURL:   url,
		PhotoHash:  hex.EncodeToString(sum[:]),
		UploadedBy: volunteer.ID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.Coordinator.AddProof(ctx, dispatchID, volunteer.ID, proof); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, proof)
}
