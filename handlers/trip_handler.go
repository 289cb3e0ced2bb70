// Package handlers exposes the trip aggregation core over HTTP. The core
// itself is a library boundary; these handlers are the thin service layer in
// front of it.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/tripforge/tripforge-backend/errors"
	"github.com/tripforge/tripforge-backend/logger"
	"github.com/tripforge/tripforge-backend/models/trip"
	"github.com/tripforge/tripforge-backend/types"
)

// TripHandler handles HTTP requests related to trips.
type TripHandler struct {
	model *trip.TripModel
}

func NewTripHandler(model *trip.TripModel) *TripHandler {
	return &TripHandler{model: model}
}

// CreateTripRequest is the request body for creating a trip.
type CreateTripRequest struct {
	Traveler       types.Traveler             `json:"traveler" binding:"required"`
	Status         types.TripStatus           `json:"status,omitempty"`
	StartDate      string                     `json:"start_date" binding:"required"`
	EndDate        string                     `json:"end_date" binding:"required"`
	Purpose        string                     `json:"purpose,omitempty"`
	OriginType     types.OriginType           `json:"origin_type,omitempty"`
	TripConfidence *float64                   `json:"trip_confidence,omitempty"`
	Extensions     map[string]types.Extension `json:"extensions,omitempty"`
	SourceDocument *types.SourceDocument      `json:"source_document,omitempty"`
}

// UpdateTripRequest is the request body for an optimistic-concurrency update.
type UpdateTripRequest struct {
	BaseVersion    int                        `json:"base_version" binding:"required"`
	Status         *types.TripStatus          `json:"status,omitempty"`
	StartDate      *string                    `json:"start_date,omitempty"`
	EndDate        *string                    `json:"end_date,omitempty"`
	Purpose        *string                    `json:"purpose,omitempty"`
	Extensions     map[string]types.Extension `json:"extensions,omitempty"`
	SourceDocument types.SourceDocument       `json:"source_document"`
}

// CreateTrip handles POST /v1/trips.
func (h *TripHandler) CreateTrip(c *gin.Context) {
	var req CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.ValidationFailed("Invalid request body", err.Error()))
		return
	}

	startDate, err := parseDate(req.StartDate)
	if err != nil {
		respondError(c, apperrors.ValidationFailed("Invalid start_date", err.Error()))
		return
	}
	endDate, err := parseDate(req.EndDate)
	if err != nil {
		respondError(c, apperrors.ValidationFailed("Invalid end_date", err.Error()))
		return
	}

	created, err := h.model.CreateTrip(c.Request.Context(), trip.CreateInput{
		Traveler:       req.Traveler,
		Status:         req.Status,
		StartDate:      startDate,
		EndDate:        endDate,
		Purpose:        req.Purpose,
		OriginType:     req.OriginType,
		Confidence:     req.TripConfidence,
		Extensions:     req.Extensions,
		SourceDocument: req.SourceDocument,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GetTrip handles GET /v1/trips/:id.
func (h *TripHandler) GetTrip(c *gin.Context) {
	found, err := h.model.GetTrip(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

// UpdateTrip handles PUT /v1/trips/:id.
func (h *TripHandler) UpdateTrip(c *gin.Context) {
	var req UpdateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.ValidationFailed("Invalid request body", err.Error()))
		return
	}

	upd := trip.Update{
		BaseVersion:    req.BaseVersion,
		Status:         req.Status,
		Purpose:        req.Purpose,
		Extensions:     req.Extensions,
		SourceDocument: req.SourceDocument,
	}
	if req.StartDate != nil {
		t, err := parseDate(*req.StartDate)
		if err != nil {
			respondError(c, apperrors.ValidationFailed("Invalid start_date", err.Error()))
			return
		}
		upd.StartDate = &t
	}
	if req.EndDate != nil {
		t, err := parseDate(*req.EndDate)
		if err != nil {
			respondError(c, apperrors.ValidationFailed("Invalid end_date", err.Error()))
			return
		}
		upd.EndDate = &t
	}

	updated, err := h.model.UpdateTrip(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// ListTrips handles GET /v1/trips filtered by one of traveler_id
// (+start_date_from), status (+updated_since) or origin_type
// (+max_confidence).
func (h *TripHandler) ListTrips(c *gin.Context) {
	ctx := c.Request.Context()

	if travelerID := c.Query("traveler_id"); travelerID != "" {
		var from *time.Time
		if s := c.Query("start_date_from"); s != "" {
			t, err := parseDate(s)
			if err != nil {
				respondError(c, apperrors.ValidationFailed("Invalid start_date_from", err.Error()))
				return
			}
			from = &t
		}
		trips, err := h.model.ListByTraveler(ctx, travelerID, from)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"trips": trips})
		return
	}

	if status := c.Query("status"); status != "" {
		var since *time.Time
		if s := c.Query("updated_since"); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				respondError(c, apperrors.ValidationFailed("Invalid updated_since", err.Error()))
				return
			}
			since = &t
		}
		trips, err := h.model.ListByStatus(ctx, types.TripStatus(status), since)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"trips": trips})
		return
	}

	if origin := c.Query("origin_type"); origin != "" {
		var ceiling *float64
		if s := c.Query("max_confidence"); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				respondError(c, apperrors.ValidationFailed("Invalid max_confidence", err.Error()))
				return
			}
			ceiling = &v
		}
		trips, err := h.model.ListByOrigin(ctx, types.OriginType(origin), ceiling)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"trips": trips})
		return
	}

	respondError(c, apperrors.ValidationFailed("Missing query filter", "traveler_id, status or origin_type is required"))
}

// DetectMergeCandidates handles POST /v1/trips/:id/merge-candidates/detect.
func (h *TripHandler) DetectMergeCandidates(c *gin.Context) {
	candidates, err := h.model.DetectMergeCandidates(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if candidates == nil {
		candidates = []types.MergeCandidate{}
	}
	c.JSON(http.StatusOK, gin.H{"merge_candidates": candidates})
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// respondError maps AppErrors onto their HTTP status; anything else is a 500.
func respondError(c *gin.Context, err error) {
	if appErr, ok := err.(*apperrors.AppError); ok {
		c.JSON(appErr.HTTPStatus, gin.H{"error": appErr})
		return
	}
	logger.GetLogger().Errorw("Unhandled error", "error", err, "path", c.FullPath())
	c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "internal server error"}})
}
