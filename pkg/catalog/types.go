// Package catalog owns the product domain: types, slug normalization, and the
// service that keeps a product's image references consistent with the remote
// object store across create, partial update and delete.
package catalog

import (
	"context"
	"fmt"
	"time"
)

// Gender is the fixed product gender category.
type Gender string

const (
	GenderMen    Gender = "men"
	GenderWomen  Gender = "women"
	GenderKid    Gender = "kid"
	GenderUnisex Gender = "unisex"
)

// ParseGender validates a gender label.
func ParseGender(s string) (Gender, error) {
	switch g := Gender(s); g {
	case GenderMen, GenderWomen, GenderKid, GenderUnisex:
		return g, nil
	}
	return "", fmt.Errorf("invalid gender %q", s)
}

// ProductImage is a database record pointing to a blob in the remote object
// store. StorageID is the handle needed to delete the blob later.
type ProductImage struct {
	ID        int64  `json:"id"`
	URL       string `json:"url"`
	StorageID string `json:"storage_id"`
	ProductID string `json:"-"`
}

// Product is a catalog entry with its ordered image reference list. The image
// list is the only mutable substructure during update; it is owned
// exclusively by the product and cascades on delete.
type Product struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Price       float64        `json:"price"`
	Description string         `json:"description,omitempty"`
	Slug        string         `json:"slug"`
	Stock       int            `json:"stock"`
	Sizes       []string       `json:"sizes"`
	Gender      Gender         `json:"gender"`
	Tags        []string       `json:"tags"`
	UserID      string         `json:"user_id,omitempty"`
	Images      []ProductImage `json:"images"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Store is the relational repository for products and their image references.
// Implementations must surface storage.ErrNotFound and storage.ErrConflict.
type Store interface {
	// CreateProduct persists the product row and all its image references as
	// a single transaction.
	CreateProduct(ctx context.Context, p *Product) error

	// ListProducts returns a page of products with images eagerly attached,
	// in stable insertion order.
	ListProducts(ctx context.Context, limit, offset int) ([]*Product, error)

	// GetProductByID loads one product with images by identifier.
	GetProductByID(ctx context.Context, id string) (*Product, error)

	// GetProductByTerm loads one product with images by case-insensitive
	// title or exact slug. Title and slug uniqueness guarantee zero-or-one.
	GetProductByTerm(ctx context.Context, term string) (*Product, error)

	// UpdateProduct persists the merged product fields and final image
	// reference list in one transaction: the product row is updated, rows for
	// removedStorageIDs are deleted, and images with a zero ID are inserted.
	UpdateProduct(ctx context.Context, p *Product, removedStorageIDs []string) error

	// DeleteProduct removes the product row; image reference rows cascade.
	DeleteProduct(ctx context.Context, id string) error
}
