package types

// Tag is a free-form label attached to posts. The slug is the primary key.
type Tag struct {
	Title string `json:"title" db:"title"`
	Slug  string `json:"slug" db:"slug"`
}
