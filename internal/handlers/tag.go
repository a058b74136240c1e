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

// TagHandler provides HTTP handlers for tags.
type TagHandler struct {
	tagService *services.TagService
}

func NewTagHandler(tagService *services.TagService) *TagHandler {
	return &TagHandler{tagService: tagService}
}

// TagRouter registers tag routes. Listing is public; mutation requires
// authentication.
func TagRouter(r chi.Router, tagService *services.TagService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewTagHandler(tagService)

	r.Get("/", handler.ListTags)
	r.With(authMiddleware).Post("/", handler.CreateTag)
	r.With(authMiddleware).Delete("/{slug}", handler.DeleteTag)
}

func (h *TagHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.tagService.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tags")
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (h *TagHandler) CreateTag(w http.ResponseWriter, r *http.Request) {
	var req types.Tag
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	tag, err := h.tagService.Create(r.Context(), req)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusBadRequest, "tag already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create tag")
		return
	}

	writeJSON(w, http.StatusCreated, tag)
}

func (h *TagHandler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	if err := h.tagService.Delete(r.Context(), chi.URLParam(r, "slug")); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "tag not found")
		case errors.Is(err, store.ErrBadReference):
			writeError(w, http.StatusBadRequest, "tag is still attached to posts")
		default:
			writeError(w, http.StatusInternalServerError, "failed to delete tag")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
