package api

import (
	"net/http"

	"pagespace/internal/middleware"
	"pagespace/internal/services/collaboration"

	"github.com/gorilla/mux"
)

func SetupRoutes(h *Handler, wsHandler *collaboration.WebSocketHandler) *mux.Router {
	r := mux.NewRouter()

	// Middleware runs in order: tracing first, then recovery, then CORS.
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(middleware.CORSMiddleware)

	api := r.PathPrefix("/api").Subrouter()

	// Workspace endpoints
	api.HandleFunc("/workspaces", h.CreateWorkspace).Methods("POST")
	api.HandleFunc("/workspaces", h.ListWorkspaces).Methods("GET")
	api.HandleFunc("/workspaces/{id}", h.GetWorkspace).Methods("GET")
	api.HandleFunc("/workspaces/{id}", h.UpdateWorkspace).Methods("PUT")
	api.HandleFunc("/workspaces/{id}", h.DeleteWorkspace).Methods("DELETE")

	// Page endpoints
	api.HandleFunc("/workspaces/{id}/pages", h.CreatePage).Methods("POST")
	api.HandleFunc("/workspaces/{id}/pages", h.ListPages).Methods("GET")
	api.HandleFunc("/pages/{id}", h.GetPage).Methods("GET")
	api.HandleFunc("/pages/{id}", h.UpdatePage).Methods("PUT")
	api.HandleFunc("/pages/{id}", h.DeletePage).Methods("DELETE")

	// Block endpoints
	api.HandleFunc("/pages/{id}/blocks", h.CreateBlock).Methods("POST")
	api.HandleFunc("/pages/{id}/blocks", h.ListBlocks).Methods("GET")
	api.HandleFunc("/pages/{id}/blocks/reorder", h.ReorderBlocks).Methods("POST")
	api.HandleFunc("/blocks/{id}", h.UpdateBlock).Methods("PUT")
	api.HandleFunc("/blocks/{id}", h.DeleteBlock).Methods("DELETE")

	// Health check endpoint
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Realtime collaboration endpoint
	r.HandleFunc("/ws/collaboration", wsHandler.HandleConnection)

	return r
}
