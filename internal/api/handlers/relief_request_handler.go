// server/internal/api/handlers/relief_request_handler.go
package handlers

import (
	"net/http"
	"strings"

	"relief-dispatch-api-server/internal/api/middleware"
	"relief-dispatch-api-server/internal/dispatch"
	"relief-dispatch-api-server/internal/models"
	"relief-dispatch-api-server/internal/tracking"

	"github.com/gin-gonic/gin"
)

type ReliefRequestHandler struct {
	Coordinator *dispatch.Coordinator
	Composer    *tracking.Composer
}

type CreateReliefRequest struct {
	Latitude     *float64 `json:"latitude" binding:"required"`
	Longitude    *float64 `json:"longitude" binding:"required"`
	Supplies     []string `json:"supplies"`
	UrgencyLevel int      `json:"urgency_level"`
	FullName     string   `json:"full_name"`
	Phone        string   `json:"phone"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// CreateRequest files a request for the calling device. Name and phone
// default to the device's registration.
func (h *ReliefRequestHandler) CreateRequest(c *gin.Context) {
	var req CreateReliefRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	requester := *middleware.CurrentDevice(c)
	if name := strings.TrimSpace(req.FullName); name != "" {
		requester.FullName = name
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		requester.Phone = phone
	}

	out, err := h.Coordinator.CreateRequest(c.Request.Context(), dispatch.CreateInput{
		Requester:    &requester,
		Location:     models.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude},
		Supplies:     req.Supplies,
		UrgencyLevel: req.UrgencyLevel,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":              out.Request.ID,
		"status":          out.Request.Status,
		"request":         out.Request,
		"relief_centre":   out.Centre,
		"route":           out.Route,
		"route_available": out.RouteAvailable,
	})
}

// GetTracking is polled by the requester's device.
func (h *ReliefRequestHandler) GetTracking(c *gin.Context) {
	snap, err := h.Composer.GetTracking(c.Request.Context(), c.Param("id"), middleware.CurrentDevice(c).DeviceID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// CancelByRequester lets a device cancel its own PENDING or ACCEPTED request.
func (h *ReliefRequestHandler) CancelByRequester(c *gin.Context) {
	h.cancel(c, dispatch.Actor{Kind: dispatch.ActorRequester, ID: middleware.CurrentDevice(c).DeviceID})
}

// Release gives an ACCEPTED request back up; only its volunteer may do so.
func (h *ReliefRequestHandler) Release(c *gin.Context) {
	h.cancel(c, dispatch.Actor{Kind: dispatch.ActorVolunteer, ID: middleware.CurrentVolunteer(c).ID})
}

func (h *ReliefRequestHandler) CancelByAdmin(c *gin.Context) {
	h.cancel(c, dispatch.Actor{Kind: dispatch.ActorAdmin, ID: middleware.CurrentVolunteer(c).ID})
}

func (h *ReliefRequestHandler) cancel(c *gin.Context, by dispatch.Actor) {
	req, err := h.Coordinator.Cancel(c.Request.Context(), c.Param("id"), by)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request_id": req.ID, "status": req.Status})
}

// ListByCentre lists a centre's requests, newest first, optionally filtered by ?status=.
func (h *ReliefRequestHandler) ListByCentre(c *gin.Context) {
	var status models.Status
	if s := c.Query("status"); s != "" {
		parsed, err := models.ParseStatus(strings.ToUpper(s))
		if err != nil {
			respondError(c, err)
			return
		}
		status = parsed
	}
	requests, err := h.Coordinator.ListForCentre(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, requests)
}

// MyActive returns the calling volunteer's ACCEPTED or IN_PROGRESS request.
func (h *ReliefRequestHandler) MyActive(c *gin.Context) {
	req, err := h.Coordinator.ActiveFor(c.Request.Context(), middleware.CurrentVolunteer(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if req == nil {
		c.JSON(http.StatusOK, gin.H{"request": nil, "dispatch": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": req, "dispatch": req.Dispatch})
}

// Accept claims a request. Losing a race returns 409 ALREADY_CLAIMED.
func (h *ReliefRequestHandler) Accept(c *gin.Context) {
	req, err := h.Coordinator.Accept(c.Request.Context(), c.Param("id"), middleware.CurrentVolunteer(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"dispatch_id": req.Dispatch.ID,
		"request_id":  req.ID,
		"status":      req.Status,
	})
}

func (h *ReliefRequestHandler) UpdateStatus(c *gin.Context) {
	var body UpdateStatusRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		bindError(c, err)
		return
	}
	target, err := models.ParseStatus(strings.ToUpper(strings.TrimSpace(body.Status)))
	if err != nil {
		respondError(c, err)
		return
	}
	req, err := h.Coordinator.UpdateStatus(c.Request.Context(), c.Param("id"), middleware.CurrentVolunteer(c).ID, target)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request_id": req.ID, "status": req.Status})
}
