package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"pagespace/internal/models"
	"pagespace/internal/repository"

	"github.com/gorilla/mux"
)

// Handler handles HTTP requests for the CRUD surface. The realtime layer
// shares the same repositories through its own interfaces.
type Handler struct {
	workspaceRepo *repository.WorkspaceRepositoryImpl
	pageRepo      *repository.PageRepositoryImpl
	blockRepo     *repository.BlockRepositoryImpl
}

func NewHandler(
	workspaceRepo *repository.WorkspaceRepositoryImpl,
	pageRepo *repository.PageRepositoryImpl,
	blockRepo *repository.BlockRepositoryImpl,
) *Handler {
	return &Handler{
		workspaceRepo: workspaceRepo,
		pageRepo:      pageRepo,
		blockRepo:     blockRepo,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func pagination(r *http.Request) (limit, offset int) {
	limit, offset = 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	return limit, offset
}

// Workspace handlers

func (h *Handler) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var in models.WorkspaceCreate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	created, err := h.workspaceRepo.CreateWorkspace(r.Context(), &in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	workspaces, err := h.workspaceRepo.ListWorkspaces(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"workspaces": workspaces,
		"limit":      limit,
		"offset":     offset,
	})
}

func (h *Handler) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ws, err := h.workspaceRepo.GetWorkspace(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (h *Handler) UpdateWorkspace(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in models.WorkspaceUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	updated, err := h.workspaceRepo.UpdateWorkspace(r.Context(), id, &in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.workspaceRepo.DeleteWorkspace(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Page handlers

func (h *Handler) CreatePage(w http.ResponseWriter, r *http.Request) {
	var in models.PageCreate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	in.WorkspaceID = mux.Vars(r)["id"]
	if in.Title == "" {
		in.Title = "Untitled"
	}
	created, err := h.pageRepo.CreatePage(r.Context(), &in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	workspaceID := mux.Vars(r)["id"]
	limit, offset := pagination(r)
	pages, err := h.pageRepo.ListPages(r.Context(), workspaceID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pages":  pages,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	page, err := h.pageRepo.GetPage(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) UpdatePage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in models.PageUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	updated, err := h.pageRepo.UpdatePage(r.Context(), id, &in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeletePage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.pageRepo.DeletePage(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Block handlers

func (h *Handler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	var in models.BlockCreate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	in.PageID = mux.Vars(r)["id"]
	created, err := h.blockRepo.CreateBlock(r.Context(), &in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	pageID := mux.Vars(r)["id"]
	blocks, err := h.blockRepo.ListBlocks(r.Context(), pageID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"blocks": blocks})
}

func (h *Handler) UpdateBlock(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in models.BlockUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	updated, err := h.blockRepo.UpdateBlock(r.Context(), id, &in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.blockRepo.DeleteBlock(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ReorderBlocks(w http.ResponseWriter, r *http.Request) {
	pageID := mux.Vars(r)["id"]
	var in struct {
		BlockIDs []string `json:"block_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(in.BlockIDs) == 0 {
		http.Error(w, "block_ids is required", http.StatusBadRequest)
		return
	}
	if err := h.blockRepo.ReorderBlocks(r.Context(), pageID, in.BlockIDs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"page_id":   pageID,
		"block_ids": in.BlockIDs,
	})
}
