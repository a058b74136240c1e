package types

import "time"

// Post represents a published blog entry.
//
// The slug is derived from the title at creation time and does not change
// afterwards, so links to a post survive title edits.
type Post struct {
	// ID is the unique identifier of the post.
	ID int `json:"id" db:"id"`

	// Title is the unique human-readable headline.
	Title string `json:"title" db:"title"`

	// Slug is the unique URL-safe identifier derived from the title.
	Slug string `json:"slug" db:"slug"`

	// Text is the post body.
	Text string `json:"text" db:"text"`

	// Category is the category the post belongs to.
	Category Category `json:"category"`

	// AuthorID is the identifier of the user who created the post.
	// Only the author may update or delete it.
	AuthorID int `json:"author_id" db:"author_id"`

	// Tags is the set of tags attached to the post.
	Tags []Tag `json:"tags"`

	// CoverKey is the object storage key of the post's cover image,
	// empty when no cover has been uploaded.
	CoverKey string `json:"-" db:"cover_key"`

	// CreatedAt is the server-assigned creation timestamp.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
