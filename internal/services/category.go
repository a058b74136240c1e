package services

import (
	"context"

	"github.com/goblog/apiserver/types"
	"github.com/gosimple/slug"
)

// CategoryRepository defines persistence operations for categories.
type CategoryRepository interface {
	List(ctx context.Context) ([]types.Category, error)
	Get(ctx context.Context, slug string) (types.Category, error)
	Create(ctx context.Context, category types.Category) (types.Category, error)
	Delete(ctx context.Context, slug string) error
}

// CategoryService encapsulates category use-cases.
type CategoryService struct {
	repo CategoryRepository
}

func NewCategoryService(repo CategoryRepository) *CategoryService {
	return &CategoryService{repo: repo}
}

func (s *CategoryService) List(ctx context.Context) ([]types.Category, error) {
	return s.repo.List(ctx)
}

func (s *CategoryService) Get(ctx context.Context, categorySlug string) (types.Category, error) {
	return s.repo.Get(ctx, categorySlug)
}

// Create stores a category; a missing slug is derived from the title.
func (s *CategoryService) Create(ctx context.Context, category types.Category) (types.Category, error) {
	if category.Slug == "" {
		category.Slug = slug.Make(category.Title)
	}
	return s.repo.Create(ctx, category)
}

func (s *CategoryService) Delete(ctx context.Context, categorySlug string) error {
	return s.repo.Delete(ctx, categorySlug)
}
