package models

import "time"

// Product is one catalog record. Image is a reference such as "/uploads/1700000000000-ab12cd34.png",
// nil when the product has no image.
type Product struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Image       *string   `json:"image"`
	Price       float64   `json:"price"`
	Stock       int       `json:"stock"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProductInput carries every mutable field of a product. Update replaces all of them,
// including Image, so callers must pass the existing reference to keep it.
// Price and Stock bounds match the NUMERIC(10,2) and INTEGER columns.
type ProductInput struct {
	Name        string   `json:"name" validate:"required,max=255"`
	Category    string   `json:"category" validate:"required,max=255"`
	Description string   `json:"description" validate:"max=2000"`
	Image       *string  `json:"image"`
	Price       *float64 `json:"price" validate:"required,gte=0,lte=99999999.99"`
	Stock       int      `json:"stock" validate:"gte=0,lte=2147483647"`
}
