package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/goblog/apiserver/types"
)

// CategoryRepository handles persistence for categories.
type CategoryRepository struct {
	db *sql.DB
}

func NewCategoryRepository(db *sql.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) List(ctx context.Context) ([]types.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT slug, title FROM categories ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []types.Category{}
	for rows.Next() {
		var category types.Category
		if err := rows.Scan(&category.Slug, &category.Title); err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

func (r *CategoryRepository) Get(ctx context.Context, slug string) (types.Category, error) {
	var category types.Category
	err := r.db.QueryRowContext(ctx, `SELECT slug, title FROM categories WHERE slug = $1`, slug).
		Scan(&category.Slug, &category.Title)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Category{}, ErrNotFound
		}
		return types.Category{}, err
	}
	return category, nil
}

func (r *CategoryRepository) Create(ctx context.Context, category types.Category) (types.Category, error) {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO categories (slug, title) VALUES ($1, $2)`,
		category.Slug,
		category.Title,
	)
	if err != nil {
		return types.Category{}, mapPQError(err)
	}
	return category, nil
}

func (r *CategoryRepository) Delete(ctx context.Context, slug string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE slug = $1`, slug)
	if err != nil {
		return mapPQError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
