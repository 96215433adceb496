// server/internal/api/handlers/requester_handler.go
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"relief-dispatch-api-server/internal/api/middleware"
	"relief-dispatch-api-server/internal/auth"
	"relief-dispatch-api-server/internal/models"
	"relief-dispatch-api-server/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequesterHandler manages anonymous requester devices.
type RequesterHandler struct {
	Requesters store.RequesterStore
	Issuer     *auth.Issuer
}

type RegisterDeviceRequest struct {
	DeviceID string `json:"device_id"`
	FullName string `json:"full_name" binding:"required"`
	Phone    string `json:"phone" binding:"required"`
}

// RegisterDevice creates the device identity on first use and refreshes it
// afterwards. A fresh token is returned each time without revoking older ones.
// Of two concurrent first registrations of one device id, only one wins.
func (h *RequesterHandler) RegisterDevice(c *gin.Context) {
	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	if len(deviceID) > 128 {
		respondError(c, fmt.Errorf("%w: device_id is too long", models.ErrValidation))
		return
	}

	// Re-registering a known device needs its current token. Anyone else
	// only gets in by creating the device id first.
	ctx := c.Request.Context()
	now := time.Now().UTC()
	var requester *models.Requester
	if h.holdsToken(c, deviceID) {
		r, err := h.Requesters.UpdateRequester(ctx, deviceID, req.FullName, req.Phone, now)
		if err != nil {
			respondError(c, err)
			return
		}
		requester = r
	} else {
		requester = &models.Requester{
			DeviceID:  deviceID,
			FullName:  req.FullName,
			Phone:     req.Phone,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err := h.Requesters.CreateRequester(ctx, requester)
		if errors.Is(err, models.ErrAlreadyExists) {
			respondError(c, fmt.Errorf("device already registered: %w", models.ErrNotAuthorized))
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
	}

	token, err := h.Issuer.GenerateDeviceToken(requester)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"device_id":    requester.DeviceID,
		"full_name":    requester.FullName,
		"phone":        requester.Phone,
		"device_token": token,
	})
}

func (h *RequesterHandler) holdsToken(c *gin.Context, deviceID string) bool {
	token := c.GetHeader(middleware.DeviceTokenHeader)
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if token == "" {
		return false
	}
	r, err := h.Issuer.VerifyDevice(c.Request.Context(), token, h.Requesters)
	return err == nil && r.DeviceID == deviceID
}

// RotateToken revokes every earlier token of the calling device.
func (h *RequesterHandler) RotateToken(c *gin.Context) {
	device := middleware.CurrentDevice(c)
	requester, err := h.Requesters.BumpTokenVersion(c.Request.Context(), device.DeviceID)
	if err != nil {
		respondError(c, err)
		return
	}
	token, err := h.Issuer.GenerateDeviceToken(requester)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"device_id": requester.DeviceID, "device_token": token})
}
