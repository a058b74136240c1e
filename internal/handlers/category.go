package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goblog/apiserver/internal/services"
	"github.com/goblog/apiserver/internal/store"
	"github.com/goblog/apiserver/types"
)

// CategoryHandler provides HTTP handlers for categories.
type CategoryHandler struct {
	categoryService *services.CategoryService
}

func NewCategoryHandler(categoryService *services.CategoryService) *CategoryHandler {
	return &CategoryHandler{categoryService: categoryService}
}

// CategoryRouter registers category routes. Listing is public; mutation
// requires authentication.
func CategoryRouter(r chi.Router, categoryService *services.CategoryService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewCategoryHandler(categoryService)

	r.Get("/", handler.ListCategories)
	r.With(authMiddleware).Post("/", handler.CreateCategory)
	r.With(authMiddleware).Delete("/{slug}", handler.DeleteCategory)
}

func (h *CategoryHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categoryService.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *CategoryHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req types.Category
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	category, err := h.categoryService.Create(r.Context(), req)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusBadRequest, "category already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create category")
		return
	}

	writeJSON(w, http.StatusCreated, category)
}

func (h *CategoryHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.categoryService.Delete(r.Context(), chi.URLParam(r, "slug")); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "category not found")
		case errors.Is(err, store.ErrBadReference):
			writeError(w, http.StatusBadRequest, "category is still referenced by posts")
		default:
			writeError(w, http.StatusInternalServerError, "failed to delete category")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
