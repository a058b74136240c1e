package store

import (
	"context"
	"database/sql"

	"github.com/goblog/apiserver/types"
)

// TagRepository handles persistence for tags.
type TagRepository struct {
	db *sql.DB
}

func NewTagRepository(db *sql.DB) *TagRepository {
	return &TagRepository{db: db}
}

func (r *TagRepository) List(ctx context.Context) ([]types.Tag, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT slug, title FROM tags ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := []types.Tag{}
	for rows.Next() {
		var tag types.Tag
		if err := rows.Scan(&tag.Slug, &tag.Title); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (r *TagRepository) Create(ctx context.Context, tag types.Tag) (types.Tag, error) {
	_, err := r.db.ExecContext(ctx, `INSERT INTO tags (slug, title) VALUES ($1, $2)`, tag.Slug, tag.Title)
	if err != nil {
		return types.Tag{}, mapPQError(err)
	}
	return tag, nil
}

func (r *TagRepository) Delete(ctx context.Context, slug string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tags WHERE slug = $1`, slug)
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
