package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goblog/apiserver/types"
	"github.com/lib/pq"
)

// PostRepository handles persistence for posts, including their category
// and tag associations.
type PostRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) *PostRepository {
	return &PostRepository{db: db}
}

const postSelect = `
	SELECT p.id, p.title, p.slug, p.text, p.author_id, p.cover_key, p.created_at,
	       c.slug, c.title
	FROM posts p
	JOIN categories c ON c.slug = p.category_id`

func (r *PostRepository) List(ctx context.Context) ([]types.Post, error) {
	rows, err := r.db.QueryContext(ctx, postSelect+` ORDER BY p.created_at, p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := make([]types.Post, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		var post types.Post
		if err := rows.Scan(
			&post.ID,
			&post.Title,
			&post.Slug,
			&post.Text,
			&post.AuthorID,
			&post.CoverKey,
			&post.CreatedAt,
			&post.Category.Slug,
			&post.Category.Title,
		); err != nil {
			return nil, err
		}
		post.Tags = []types.Tag{}
		posts = append(posts, post)
		ids = append(ids, int64(post.ID))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachTags(ctx, posts, ids); err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *PostRepository) GetBySlug(ctx context.Context, slug string) (types.Post, error) {
	var post types.Post
	err := r.db.QueryRowContext(ctx, postSelect+` WHERE p.slug = $1`, slug).Scan(
		&post.ID,
		&post.Title,
		&post.Slug,
		&post.Text,
		&post.AuthorID,
		&post.CoverKey,
		&post.CreatedAt,
		&post.Category.Slug,
		&post.Category.Title,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Post{}, ErrNotFound
		}
		return types.Post{}, err
	}

	tags, err := r.tagsForPost(ctx, post.ID)
	if err != nil {
		return types.Post{}, err
	}
	post.Tags = tags
	return post, nil
}

// Create inserts the post and its tag links in one transaction.
func (r *PostRepository) Create(ctx context.Context, post types.Post, tagSlugs []string) (types.Post, error) {
	post.CreatedAt = time.Now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Post{}, err
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO posts (title, slug, text, category_id, author_id, cover_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := tx.QueryRowContext(
		ctx,
		query,
		post.Title,
		post.Slug,
		post.Text,
		post.Category.Slug,
		post.AuthorID,
		post.CoverKey,
		post.CreatedAt,
	).Scan(&post.ID); err != nil {
		return types.Post{}, mapPQError(err)
	}

	if err := insertTagLinks(ctx, tx, post.ID, tagSlugs); err != nil {
		return types.Post{}, err
	}

	if err := tx.Commit(); err != nil {
		return types.Post{}, err
	}
	return r.GetBySlug(ctx, post.Slug)
}

// Update rewrites the post row and, when tagSlugs is non-nil, replaces its
// tag links. The slug is never changed.
func (r *PostRepository) Update(ctx context.Context, post types.Post, tagSlugs []string) (types.Post, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Post{}, err
	}
	defer tx.Rollback()

	const query = `
		UPDATE posts
		SET title = $1, text = $2, category_id = $3
		WHERE id = $4`
	result, err := tx.ExecContext(ctx, query, post.Title, post.Text, post.Category.Slug, post.ID)
	if err != nil {
		return types.Post{}, mapPQError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Post{}, err
	}
	if affected == 0 {
		return types.Post{}, ErrNotFound
	}

	if tagSlugs != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM post_tags WHERE post_id = $1`, post.ID); err != nil {
			return types.Post{}, err
		}
		if err := insertTagLinks(ctx, tx, post.ID, tagSlugs); err != nil {
			return types.Post{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return types.Post{}, err
	}
	return r.GetBySlug(ctx, post.Slug)
}

func (r *PostRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return err
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

func (r *PostRepository) SetCoverKey(ctx context.Context, id int, key string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE posts SET cover_key = $1 WHERE id = $2`, key, id)
	if err != nil {
		return err
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

func insertTagLinks(ctx context.Context, tx *sql.Tx, postID int, tagSlugs []string) error {
	for _, tagSlug := range tagSlugs {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO post_tags (post_id, tag_slug) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			postID,
			tagSlug,
		); err != nil {
			return mapPQError(err)
		}
	}
	return nil
}

func (r *PostRepository) tagsForPost(ctx context.Context, postID int) ([]types.Tag, error) {
	const query = `
		SELECT t.slug, t.title
		FROM post_tags pt
		JOIN tags t ON t.slug = pt.tag_slug
		WHERE pt.post_id = $1
		ORDER BY t.slug`
	rows, err := r.db.QueryContext(ctx, query, postID)
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

// attachTags loads the tags for all listed posts in a single query.
func (r *PostRepository) attachTags(ctx context.Context, posts []types.Post, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	const query = `
		SELECT pt.post_id, t.slug, t.title
		FROM post_tags pt
		JOIN tags t ON t.slug = pt.tag_slug
		WHERE pt.post_id = ANY($1)
		ORDER BY pt.post_id, t.slug`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	byID := make(map[int]int, len(posts))
	for i := range posts {
		byID[posts[i].ID] = i
	}

	for rows.Next() {
		var postID int
		var tag types.Tag
		if err := rows.Scan(&postID, &tag.Slug, &tag.Title); err != nil {
			return err
		}
		if i, ok := byID[postID]; ok {
			posts[i].Tags = append(posts[i].Tags, tag)
		}
	}
	return rows.Err()
}
