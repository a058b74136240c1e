package services

import (
	"context"

	"github.com/goblog/apiserver/types"
	"github.com/gosimple/slug"
)

// TagRepository defines persistence operations for tags.
type TagRepository interface {
	List(ctx context.Context) ([]types.Tag, error)
	Create(ctx context.Context, tag types.Tag) (types.Tag, error)
	Delete(ctx context.Context, slug string) error
}

// TagService encapsulates tag use-cases.
type TagService struct {
	repo TagRepository
}

func NewTagService(repo TagRepository) *TagService {
	return &TagService{repo: repo}
}

func (s *TagService) List(ctx context.Context) ([]types.Tag, error) {
	return s.repo.List(ctx)
}

// Create stores a tag; a missing slug is derived from the title.
func (s *TagService) Create(ctx context.Context, tag types.Tag) (types.Tag, error) {
	if tag.Slug == "" {
		tag.Slug = slug.Make(tag.Title)
	}
	return s.repo.Create(ctx, tag)
}

func (s *TagService) Delete(ctx context.Context, tagSlug string) error {
	return s.repo.Delete(ctx, tagSlug)
}
