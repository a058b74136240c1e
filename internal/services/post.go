package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/goblog/apiserver/internal/storage"
	"github.com/goblog/apiserver/internal/store"
	"github.com/goblog/apiserver/types"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	List(ctx context.Context) ([]types.Post, error)
	GetBySlug(ctx context.Context, slug string) (types.Post, error)
	Create(ctx context.Context, post types.Post, tagSlugs []string) (types.Post, error)
	Update(ctx context.Context, post types.Post, tagSlugs []string) (types.Post, error)
	Delete(ctx context.Context, id int) error
	SetCoverKey(ctx context.Context, id int, key string) error
}

// CreatePostInput is the payload for creating a post.
type CreatePostInput struct {
	Title      string
	Text       string
	CategoryID string
	Tags       []string
}

// UpdatePostInput carries optional fields for a partial update. Nil fields
// are left unchanged; the slug never changes.
type UpdatePostInput struct {
	Title      *string
	Text       *string
	CategoryID *string
	Tags       []string
}

// PostService encapsulates post use-cases, including the single
// authorization rule of the system: only the author mutates a post.
type PostService struct {
	repo  PostRepository
	media storage.ObjectStorage
}

func NewPostService(repo PostRepository, media storage.ObjectStorage) *PostService {
	return &PostService{repo: repo, media: media}
}

func (s *PostService) List(ctx context.Context) ([]types.Post, error) {
	return s.repo.List(ctx)
}

func (s *PostService) GetBySlug(ctx context.Context, postSlug string) (types.Post, error) {
	return s.repo.GetBySlug(ctx, postSlug)
}

// Create derives the slug from the title and stores the post for the acting
// author. A duplicate title (and therefore a duplicate slug) is refused.
func (s *PostService) Create(ctx context.Context, authorID int, in CreatePostInput) (types.Post, error) {
	post := types.Post{
		Title:    in.Title,
		Slug:     slug.Make(in.Title),
		Text:     in.Text,
		Category: types.Category{Slug: in.CategoryID},
		AuthorID: authorID,
	}

	created, err := s.repo.Create(ctx, post, in.Tags)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.Post{}, ErrDuplicateTitle
		}
		return types.Post{}, err
	}
	return created, nil
}

// Update applies the non-nil fields after checking the caller owns the post.
func (s *PostService) Update(ctx context.Context, userID int, postSlug string, in UpdatePostInput) (types.Post, error) {
	post, err := s.authorizedPost(ctx, userID, postSlug)
	if err != nil {
		return types.Post{}, err
	}

	if in.Title != nil {
		post.Title = *in.Title
	}
	if in.Text != nil {
		post.Text = *in.Text
	}
	if in.CategoryID != nil {
		post.Category = types.Category{Slug: *in.CategoryID}
	}

	updated, err := s.repo.Update(ctx, post, in.Tags)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.Post{}, ErrDuplicateTitle
		}
		return types.Post{}, err
	}
	return updated, nil
}

// Delete removes the post after checking the caller owns it. The cover
// object, if any, is removed best-effort.
func (s *PostService) Delete(ctx context.Context, userID int, postSlug string) error {
	post, err := s.authorizedPost(ctx, userID, postSlug)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, post.ID); err != nil {
		return err
	}

	if post.CoverKey != "" && s.media != nil {
		_ = s.media.Delete(ctx, post.CoverKey)
	}
	return nil
}

// UploadCover stores a cover image for the post and records its object key.
// The previous cover object, if any, is removed best-effort.
func (s *PostService) UploadCover(ctx context.Context, userID int, postSlug string, r io.Reader, size int64, contentType string) (types.Post, error) {
	if s.media == nil {
		return types.Post{}, ErrMediaDisabled
	}

	post, err := s.authorizedPost(ctx, userID, postSlug)
	if err != nil {
		return types.Post{}, err
	}

	key := fmt.Sprintf("covers/%s", uuid.NewString())
	if err := s.media.Put(ctx, key, r, size, contentType); err != nil {
		return types.Post{}, err
	}
	if err := s.repo.SetCoverKey(ctx, post.ID, key); err != nil {
		_ = s.media.Delete(ctx, key)
		return types.Post{}, err
	}

	if post.CoverKey != "" {
		_ = s.media.Delete(ctx, post.CoverKey)
	}

	post.CoverKey = key
	return post, nil
}

// GetCover opens a reader over the post's cover image.
func (s *PostService) GetCover(ctx context.Context, postSlug string) (io.ReadCloser, error) {
	if s.media == nil {
		return nil, ErrMediaDisabled
	}

	post, err := s.repo.GetBySlug(ctx, postSlug)
	if err != nil {
		return nil, err
	}
	if post.CoverKey == "" {
		return nil, store.ErrNotFound
	}
	return s.media.Get(ctx, post.CoverKey)
}

func (s *PostService) authorizedPost(ctx context.Context, userID int, postSlug string) (types.Post, error) {
	post, err := s.repo.GetBySlug(ctx, postSlug)
	if err != nil {
		return types.Post{}, err
	}
	if post.AuthorID != userID {
		return types.Post{}, ErrNotAuthor
	}
	return post, nil
}
