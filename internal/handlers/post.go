package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goblog/apiserver/internal/services"
	"github.com/goblog/apiserver/internal/store"
)

const (
	maxCoverBytes  = 16 << 20
	formFieldCover = "cover"
	maxCoverMemory = 16 << 20
	defaultCoverCT = "application/octet-stream"
)

// PostHandler provides HTTP handlers for posts.
type PostHandler struct {
	postService *services.PostService
}

func NewPostHandler(postService *services.PostService) *PostHandler {
	return &PostHandler{postService: postService}
}

// PostRouter registers post routes on the given router. Reads are public;
// writes require authentication, and update/delete additionally require the
// caller to be the post's author.
func PostRouter(r chi.Router, postService *services.PostService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewPostHandler(postService)

	r.Get("/", handler.ListPosts)
	r.With(authMiddleware).Post("/", handler.CreatePost)
	r.Route("/{slug}", func(r chi.Router) {
		r.Get("/", handler.GetPost)
		r.With(authMiddleware).Patch("/", handler.UpdatePost)
		r.With(authMiddleware).Delete("/", handler.DeletePost)
		r.Get("/cover", handler.GetCover)
		r.With(authMiddleware).Put("/cover", handler.UploadCover)
	})
}

func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.postService.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list posts")
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.postService.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch post")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	req.CategoryID = strings.TrimSpace(req.CategoryID)
	if req.Title == "" || req.Text == "" || req.CategoryID == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	post, err := h.postService.Create(r.Context(), user.ID, services.CreatePostInput{
		Title:      req.Title,
		Text:       req.Text,
		CategoryID: req.CategoryID,
		Tags:       req.Tags,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrDuplicateTitle):
			writeError(w, http.StatusBadRequest, "post with this title already exists")
		case errors.Is(err, store.ErrBadReference):
			writeError(w, http.StatusBadRequest, "unknown category or tag")
		default:
			writeError(w, http.StatusInternalServerError, "failed to create post")
		}
		return
	}

	writeJSON(w, http.StatusCreated, post)
}

func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpdatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	post, err := h.postService.Update(r.Context(), user.ID, chi.URLParam(r, "slug"), services.UpdatePostInput{
		Title:      req.Title,
		Text:       req.Text,
		CategoryID: req.CategoryID,
		Tags:       req.Tags,
	})
	if err != nil {
		writePostMutationError(w, err, "failed to update post")
		return
	}

	writeJSON(w, http.StatusOK, post)
}

func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.postService.Delete(r.Context(), user.ID, chi.URLParam(r, "slug")); err != nil {
		writePostMutationError(w, err, "failed to delete post")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UploadCover accepts a multipart form with a "cover" file field and stores
// it in object storage.
func (h *PostHandler) UploadCover(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxCoverMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile(formFieldCover)
	if err != nil {
		writeError(w, http.StatusBadRequest, "cover file is required")
		return
	}
	defer file.Close()

	if header.Size > maxCoverBytes {
		writeError(w, http.StatusBadRequest, "cover file too large")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultCoverCT
	}

	post, err := h.postService.UploadCover(r.Context(), user.ID, chi.URLParam(r, "slug"), file, header.Size, contentType)
	if err != nil {
		if errors.Is(err, services.ErrMediaDisabled) {
			writeError(w, http.StatusServiceUnavailable, "media storage is not configured")
			return
		}
		writePostMutationError(w, err, "failed to upload cover")
		return
	}

	writeJSON(w, http.StatusOK, post)
}

func (h *PostHandler) GetCover(w http.ResponseWriter, r *http.Request) {
	reader, err := h.postService.GetCover(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "cover not found")
		case errors.Is(err, services.ErrMediaDisabled):
			writeError(w, http.StatusServiceUnavailable, "media storage is not configured")
		default:
			writeError(w, http.StatusInternalServerError, "failed to fetch cover")
		}
		return
	}
	defer reader.Close()

	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

func writePostMutationError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "post not found")
	case errors.Is(err, services.ErrNotAuthor):
		writeError(w, http.StatusForbidden, "you are not the author")
	case errors.Is(err, services.ErrDuplicateTitle):
		writeError(w, http.StatusBadRequest, "post with this title already exists")
	case errors.Is(err, store.ErrBadReference):
		writeError(w, http.StatusBadRequest, "unknown category or tag")
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

type CreatePostRequest struct {
	Title      string   `json:"title"`
	Text       string   `json:"text"`
	CategoryID string   `json:"category_id"`
	Tags       []string `json:"tags"`
}

type UpdatePostRequest struct {
	Title      *string  `json:"title"`
	Text       *string  `json:"text"`
	CategoryID *string  `json:"category_id"`
	Tags       []string `json:"tags"`
}
