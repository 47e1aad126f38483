package domain

import "time"

type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Title       string    `json:"title,omitempty"`
	Price       float64   `json:"price"`
	Category    string    `json:"category,omitempty"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	Rating      *Rating   `json:"rating,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DisplayName prefers the catalog name and falls back to the feed title.
func (p Product) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Title
}
