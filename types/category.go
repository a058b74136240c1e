package types

// Category is reference data grouping posts. The slug is the primary key.
type Category struct {
	Title string `json:"title" db:"title"`
	Slug  string `json:"slug" db:"slug"`
}
