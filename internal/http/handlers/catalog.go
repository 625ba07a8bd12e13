package handlers

import (
	"context"
	"net/http"

	"github.com/bearound/booking-funnel/internal/catalog"
	"github.com/bearound/booking-funnel/pkg/logging"
)

// Catalog is the read side of the marketplace catalog.
type Catalog interface {
	Structures(ctx context.Context) ([]catalog.Structure, error)
	Search(ctx context.Context, q catalog.SearchQuery) ([]catalog.Experience, error)
}

// CatalogHandler serves the structures picklist and experience search.
type CatalogHandler struct {
	catalog Catalog
	logger  *logging.Logger
}

func NewCatalogHandler(c Catalog, logger *logging.Logger) *CatalogHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &CatalogHandler{catalog: c, logger: logger}
}

// Structures handles GET /api/structures.
func (h *CatalogHandler) Structures(w http.ResponseWriter, r *http.Request) {
	structures, err := h.catalog.Structures(r.Context())
	if err != nil {
		h.logger.Warn("structures lookup failed", "error", err)
		jsonError(w, "Impossibile caricare le strutture", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"structures": structures})
}

// Search handles GET /api/experiences/search.
func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	q, err := catalog.ParseSearchQuery(r.URL.Query())
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	results, err := h.catalog.Search(r.Context(), q)
	if err != nil {
		h.logger.Warn("experience search failed", "structure_id", q.StructureID, "error", err)
		jsonError(w, "Impossibile completare la ricerca", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"experiences": results})
}
