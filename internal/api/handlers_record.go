package api

import (
	"net/http"

	"github.com/gorilla/mux"

	respond "github.com/hudson-blanoire/chroma-server/internal/api/respond"
	"github.com/hudson-blanoire/chroma-server/internal/api/validate"
	"github.com/hudson-blanoire/chroma-server/internal/model"
	"github.com/hudson-blanoire/chroma-server/internal/services"
)

// RecordHandler is a thin HTTP transport over RecordService.
type RecordHandler struct {
	svc *services.RecordService
}

func NewRecordHandler(svc *services.RecordService) *RecordHandler {
	return &RecordHandler{svc: svc}
}

type batchRequest struct {
	IDs        []string         `json:"ids"`
	Embeddings [][]float32      `json:"embeddings"`
	Documents  []*string        `json:"documents"`
	Metadatas  []model.Metadata `json:"metadatas"`
	URIs       []*string        `json:"uris"`
}

func (b batchRequest) toBatch() services.RecordBatch {
	return services.RecordBatch{
		IDs:        b.IDs,
		Embeddings: b.Embeddings,
		Documents:  b.Documents,
		Metadatas:  b.Metadatas,
		URIs:       b.URIs,
	}
}

// collectionID returns the validated {id} path variable, writing a 400 when invalid.
func collectionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	if err := validate.CollectionID(id); err != nil {
		respond.WriteServiceError(w, r, err)
		return "", false
	}
	return id, true
}

func (h *RecordHandler) writeBatch(w http.ResponseWriter, r *http.Request, status int, apply func(id string, b services.RecordBatch) error) {
	id, ok := collectionID(w, r)
	if !ok {
		return
	}
	var req batchRequest
	if err := decodeBody(w, r, &req); err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	if err := apply(id, req.toBatch()); err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, status, true)
}

// Add POST /api/v1/collections/{id}/add
func (h *RecordHandler) Add(w http.ResponseWriter, r *http.Request) {
	h.writeBatch(w, r, http.StatusCreated, func(id string, b services.RecordBatch) error {
		return h.svc.Add(r.Context(), id, b)
	})
}

// Upsert POST /api/v1/collections/{id}/upsert
func (h *RecordHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	h.writeBatch(w, r, http.StatusOK, func(id string, b services.RecordBatch) error {
		return h.svc.Upsert(r.Context(), id, b)
	})
}

// Update POST /api/v1/collections/{id}/update
func (h *RecordHandler) Update(w http.ResponseWriter, r *http.Request) {
	h.writeBatch(w, r, http.StatusOK, func(id string, b services.RecordBatch) error {
		return h.svc.Update(r.Context(), id, b)
	})
}

// Get POST /api/v1/collections/{id}/get
func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := collectionID(w, r)
	if !ok {
		return
	}
	var req struct {
		IDs           []string               `json:"ids"`
		Where         map[string]interface{} `json:"where"`
		WhereDocument map[string]interface{} `json:"where_document"`
		Limit         *int                   `json:"limit"`
		Offset        *int                   `json:"offset"`
		Include       []string               `json:"include"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	if err := validate.Page(req.Limit, req.Offset); err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	get := services.GetRequest{
		IDs:           req.IDs,
		Where:         req.Where,
		WhereDocument: req.WhereDocument,
		Limit:         req.Limit,
		Include:       req.Include,
	}
	if req.Offset != nil {
		get.Offset = *req.Offset
	}
	res, err := h.svc.Get(r.Context(), id, get)
	if err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

// Query POST /api/v1/collections/{id}/query
func (h *RecordHandler) Query(w http.ResponseWriter, r *http.Request) {
	id, ok := collectionID(w, r)
	if !ok {
		return
	}
	var req struct {
		QueryEmbeddings [][]float32            `json:"query_embeddings"`
		QueryTexts      []string               `json:"query_texts"`
		NResults        *int                   `json:"n_results"`
		Where           map[string]interface{} `json:"where"`
		WhereDocument   map[string]interface{} `json:"where_document"`
		Include         []string               `json:"include"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	q := services.QueryRequest{
		QueryEmbeddings: req.QueryEmbeddings,
		QueryTexts:      req.QueryTexts,
		Where:           req.Where,
		WhereDocument:   req.WhereDocument,
		Include:         req.Include,
	}
	if req.NResults != nil {
		if *req.NResults < 1 {
			respond.WriteServiceError(w, r, model.Invalidf("n_results", "must be >= 1"))
			return
		}
		q.NResults = *req.NResults
	}
	res, err := h.svc.Query(r.Context(), id, q)
	if err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

// Delete POST /api/v1/collections/{id}/delete
func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := collectionID(w, r)
	if !ok {
		return
	}
	var req struct {
		IDs           []string               `json:"ids"`
		Where         map[string]interface{} `json:"where"`
		WhereDocument map[string]interface{} `json:"where_document"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	ids, err := h.svc.Delete(r.Context(), id, services.DeleteRequest{
		IDs:           req.IDs,
		Where:         req.Where,
		WhereDocument: req.WhereDocument,
	})
	if err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, ids)
}

// Count GET /api/v1/collections/{id}/count
func (h *RecordHandler) Count(w http.ResponseWriter, r *http.Request) {
	id, ok := collectionID(w, r)
	if !ok {
		return
	}
	n, err := h.svc.Count(r.Context(), id)
	if err != nil {
		respond.WriteServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, n)
}
