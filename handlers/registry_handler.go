package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/tripforge/tripforge-backend/errors"
	"github.com/tripforge/tripforge-backend/internal/store"
)

// RegistryHandler exposes the field registry's read-only projections. It
// serves from the same backend registrations land in: the in-process catalog
// in a single-process deployment, the shared Redis catalog when workers fan
// out.
type RegistryHandler struct {
	registry store.RegistryStore
}

func NewRegistryHandler(reg store.RegistryStore) *RegistryHandler {
	return &RegistryHandler{registry: reg}
}

// Summary handles GET /v1/registry/summary.
func (h *RegistryHandler) Summary(c *gin.Context) {
	summary, err := h.registry.Summary(c.Request.Context())
	if err != nil {
		respondError(c, apperrors.NewDatabaseError(err))
		return
	}
	c.JSON(http.StatusOK, summary)
}

// SuggestIndexes handles GET /v1/registry/suggested-indexes. Advisory only.
func (h *RegistryHandler) SuggestIndexes(c *gin.Context) {
	suggestions, err := h.registry.SuggestIndexes(c.Request.Context())
	if err != nil {
		respondError(c, apperrors.NewDatabaseError(err))
		return
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"suggested_indexes": suggestions})
}

// ListFields handles GET /v1/registry/fields. With ?namespace= it narrows to
// one top-level namespace; otherwise it dumps the full schema export.
func (h *RegistryHandler) ListFields(c *gin.Context) {
	ctx := c.Request.Context()

	if namespace := c.Query("namespace"); namespace != "" {
		fields, err := h.registry.FieldsByNamespace(ctx, namespace)
		if err != nil {
			respondError(c, apperrors.NewDatabaseError(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"fields": fields})
		return
	}

	fields, err := h.registry.ExportSchema(ctx)
	if err != nil {
		respondError(c, apperrors.NewDatabaseError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"fields": fields})
}
