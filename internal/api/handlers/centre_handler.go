// server/internal/api/handlers/centre_handler.go
package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"relief-dispatch-api-server/internal/geo"
	"relief-dispatch-api-server/internal/models"
	"relief-dispatch-api-server/internal/resolver"
	"relief-dispatch-api-server/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CentreHandler serves relief centre reads, admin CRUD and the
// nearest-centre and route queries. Every admin write refreshes Index.
type CentreHandler struct {
	Centres  store.CentreStore
	Index    *geo.Index
	Resolver *resolver.Resolver
}

type CentreRequest struct {
	ID        string   `json:"id"`
	Name      string   `json:"name" binding:"required"`
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
	Capacity  *int     `json:"capacity" binding:"omitempty,min=0"`
	Status    string   `json:"status"`
}

type PointRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

type RouteRequest struct {
	StartLat *float64 `json:"start_lat" binding:"required"`
	StartLng *float64 `json:"start_lng" binding:"required"`
	EndLat   *float64 `json:"end_lat" binding:"required"`
	EndLng   *float64 `json:"end_lng" binding:"required"`
}

func (r CentreRequest) toCentre(id string, now time.Time) (*models.ReliefCentre, error) {
	centre := &models.ReliefCentre{
		ID:        id,
		Name:      strings.TrimSpace(r.Name),
		Latitude:  *r.Latitude,
		Longitude: *r.Longitude,
		Capacity:  r.Capacity,
		Status:    models.CentreStatus(strings.ToLower(r.Status)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if centre.Status == "" {
		centre.Status = models.CentreActive
	}
	if centre.Status != models.CentreActive && centre.Status != models.CentreInactive {
		return nil, fmt.Errorf("%w: status must be active or inactive", models.ErrValidation)
	}
	if err := centre.Coordinate().Validate(); err != nil {
		return nil, err
	}
	return centre, nil
}

// ListActive returns the centres requesters can be sent to.
func (h *CentreHandler) ListActive(c *gin.Context) {
	c.JSON(http.StatusOK, h.Index.Active())
}

// Nearest resolves the closest active centre and the route to it.
func (h *CentreHandler) Nearest(c *gin.Context) {
	var req PointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	result, err := h.Resolver.Nearest(c.Request.Context(), models.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Route is a point-to-point route query.
func (h *CentreHandler) Route(c *gin.Context) {
	var req RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	route, err := h.Resolver.Route(c.Request.Context(),
		models.Coordinate{Latitude: *req.StartLat, Longitude: *req.StartLng},
		models.Coordinate{Latitude: *req.EndLat, Longitude: *req.EndLng},
	)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, route)
}

// CreateCentre adds a relief centre.
func (h *CentreHandler) CreateCentre(c *gin.Context) {
	var req CentreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	centre, err := req.toCentre(id, time.Now().UTC())
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.Centres.CreateCentre(c.Request.Context(), centre); err != nil {
		respondError(c, err)
		return
	}
	h.Index.Upsert(*centre)
	c.JSON(http.StatusCreated, centre)
}

// GetAllCentres lists every centre, inactive ones included.
func (h *CentreHandler) GetAllCentres(c *gin.Context) {
	centres, err := h.Centres.ListCentres(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, centres)
}

func (h *CentreHandler) GetCentreByID(c *gin.Context) {
	centre, err := h.Centres.GetCentre(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, centre)
}

func (h *CentreHandler) UpdateCentre(c *gin.Context) {
	var req CentreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	centre, err := req.toCentre(c.Param("id"), time.Now().UTC())
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.Centres.UpdateCentre(c.Request.Context(), centre); err != nil {
		respondError(c, err)
		return
	}
	stored, err := h.Centres.GetCentre(c.Request.Context(), centre.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.Index.Upsert(*stored)
	c.JSON(http.StatusOK, stored)
}

func (h *CentreHandler) DeleteCentre(c *gin.Context) {
	id := c.Param("id")
	if err := h.Centres.DeleteCentre(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	h.Index.Remove(id)
	c.JSON(http.StatusOK, gin.H{"message": "Relief centre deleted successfully"})
}
