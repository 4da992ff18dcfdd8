// Package api is the HTTP transport: a Chroma v1 compatible REST surface over
// the collection and record services.
package api

import (
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/hudson-blanoire/chroma-server/internal/api/recovery"
	"github.com/hudson-blanoire/chroma-server/internal/services"
)

// Deps are the components the router wires into handlers.
type Deps struct {
	Collections *services.CollectionService
	Records     *services.RecordService
	// IsHealthy reports aggregate dependency health; nil means always healthy.
	IsHealthy func() bool
	Log       zerolog.Logger
}

// NewRouter builds the route table.
func NewRouter(d Deps) *mux.Router {
	root := mux.NewRouter()
	root.Use(accessLog(d.Log))
	root.Use(recovery.Middleware)

	// System
	sys := NewSystemHandler(d.Records)
	root.HandleFunc("/api/v1", sys.Heartbeat).Methods("GET")
	root.HandleFunc("/api/v1/heartbeat", sys.Heartbeat).Methods("GET")
	root.HandleFunc("/api/v1/version", sys.Version).Methods("GET")
	root.HandleFunc("/api/v1/pre-flight-checks", sys.PreFlightChecks).Methods("GET")
	root.HandleFunc("/api/v1/reset", sys.Reset).Methods("POST")

	// Collections
	col := NewCollectionHandler(d.Collections)
	root.HandleFunc("/api/v1/collections", col.ListCollections).Methods("GET")
	root.HandleFunc("/api/v1/collections", col.CreateCollection).Methods("POST")
	root.HandleFunc("/api/v1/count_collections", col.CountCollections).Methods("GET")
	root.HandleFunc("/api/v1/collections/{name}", col.GetCollection).Methods("GET")
	root.HandleFunc("/api/v1/collections/{name}", col.DeleteCollection).Methods("DELETE")
	root.HandleFunc("/api/v1/collections/{id}", col.UpdateCollection).Methods("PUT")

	// Records
	rec := NewRecordHandler(d.Records)
	root.HandleFunc("/api/v1/collections/{id}/add", rec.Add).Methods("POST")
	root.HandleFunc("/api/v1/collections/{id}/upsert", rec.Upsert).Methods("POST")
	root.HandleFunc("/api/v1/collections/{id}/update", rec.Update).Methods("POST")
	root.HandleFunc("/api/v1/collections/{id}/get", rec.Get).Methods("POST")
	root.HandleFunc("/api/v1/collections/{id}/query", rec.Query).Methods("POST")
	root.HandleFunc("/api/v1/collections/{id}/delete", rec.Delete).Methods("POST")
	root.HandleFunc("/api/v1/collections/{id}/count", rec.Count).Methods("GET")

	// Health
	health := NewHealthHandler(d.IsHealthy)
	root.HandleFunc("/api/health", health.CheckHealth).Methods("GET")
	return root
}
