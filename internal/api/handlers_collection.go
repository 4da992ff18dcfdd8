package api

import (
	"net/http"

	"github.com/gorilla/mux"

	respond "github.com/hudson-blanoire/chroma-server/internal/api/respond"
	"github.com/hudson-blanoire/chroma-server/internal/api/validate"
	"github.com/hudson-blanoire/chroma-server/internal/model"
	"github.com/hudson-blanoire/chroma-server/internal/services"
)

// CollectionHandler is a thin HTTP transport over CollectionService.
type CollectionHandler struct {
	svc *services.CollectionService
}

func NewCollectionHandler(svc *services.CollectionService) *CollectionHandler {
	return &CollectionHandler{svc: svc}
}

func scopeParams(r *http.Request) (tenant, database string) {
	q := r.URL.Query()
	return q.Get("tenant"), q.Get("database")
}

// CreateCollection POST /api/v1/collections
func (h *CollectionHandler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string         `json:"name"`
		Metadata    model.Metadata `json:"metadata"`
		GetOrCreate bool           `json:"get_or_create"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	if err := validate.CreateCollection(req.Name, req.Metadata); err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	tenant, database := scopeParams(r)
	c, err := h.svc.Create(r.Context(), services.CreateCollectionRequest{
		Name:        req.Name,
		Metadata:    req.Metadata,
		GetOrCreate: req.GetOrCreate,
		Tenant:      tenant,
		Database:    database,
	})
	if err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, c)
}

// ListCollections GET /api/v1/collections?limit&offset&tenant&database
func (h *CollectionHandler) ListCollections(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	if err := validate.Page(limit, offset); err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	l, o := 0, 0
	if limit != nil {
		if *limit == 0 {
			respond.WriteJSON(w, http.StatusOK, []*model.Collection{})
			return
		}
		l = *limit
	}
	if offset != nil {
		o = *offset
	}
	tenant, database := scopeParams(r)
	cols, err := h.svc.List(r.Context(), tenant, database, l, o)
	if err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	if cols == nil {
		cols = []*model.Collection{}
	}
	respond.WriteJSON(w, http.StatusOK, cols)
}

// CountCollections GET /api/v1/count_collections
func (h *CollectionHandler) CountCollections(w http.ResponseWriter, r *http.Request) {
	tenant, database := scopeParams(r)
	n, err := h.svc.Count(r.Context(), tenant, database)
	if err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, n)
}

// GetCollection GET /api/v1/collections/{name}
func (h *CollectionHandler) GetCollection(w http.ResponseWriter, r *http.Request) {
	tenant, database := scopeParams(r)
	c, err := h.svc.Get(r.Context(), tenant, database, mux.Vars(r)["name"])
	if err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, c)
}

// DeleteCollection DELETE /api/v1/collections/{name}
func (h *CollectionHandler) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	tenant, database := scopeParams(r)
	if err := h.svc.Delete(r.Context(), tenant, database, mux.Vars(r)["name"]); err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, nil)
}

// UpdateCollection PUT /api/v1/collections/{id}
func (h *CollectionHandler) UpdateCollection(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := validate.CollectionID(id); err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	var req struct {
		NewName     *string        `json:"new_name"`
		NewMetadata model.Metadata `json:"new_metadata"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	if err := validate.UpdateCollection(req.NewName, req.NewMetadata); err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	if err := h.svc.Update(r.Context(), id, req.NewName, req.NewMetadata); err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, nil)
}
