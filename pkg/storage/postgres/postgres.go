// Package postgres implements the credential store, the catalog repository
// and the S3 object store adapter on top of PostgreSQL and aws-sdk-go-v2.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/storefront-labs/threadline/pkg/auth"
	"github.com/storefront-labs/threadline/pkg/catalog"
	"github.com/storefront-labs/threadline/pkg/storage"
)

var tracer = otel.Tracer("threadline/storage/postgres")

// uniqueViolation is the PostgreSQL error code for unique-constraint
// violations, translated into storage.ErrConflict at this boundary.
const uniqueViolation = "23505"

// Storage implements auth.UserStore and catalog.Store using PostgreSQL.
type Storage struct {
	db  *sql.DB
	cfg storage.Config
}

// New connects to PostgreSQL and configures the connection pool.
func New(cfg storage.Config) (*Storage, error) {
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.PostgresMaxConns)
	db.SetMaxIdleConns(cfg.PostgresMinConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PostgresTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &Storage{db: db, cfg: cfg}, nil
}

// DB exposes the underlying pool for health checks.
func (s *Storage) DB() *sql.DB {
	return s.db
}

// Close closes the connection pool.
func (s *Storage) Close() error {
	return s.db.Close()
}

// translateErr maps driver errors onto the storage sentinel errors.
func translateErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return storage.ErrConflict
	}
	return err
}

// ----- auth.UserStore -----

// CreateUser persists a new user. Duplicate emails surface as
// storage.ErrConflict.
func (s *Storage) CreateUser(ctx context.Context, user *auth.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, full_name, is_active, roles)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	roles := make([]string, len(user.Roles))
	for i, r := range user.Roles {
		roles[i] = string(r)
	}

	err := s.db.QueryRowContext(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FullName,
		user.IsActive,
		pq.Array(roles),
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", translateErr(err))
	}
	return nil
}

// GetUserByEmail loads a user without its password hash.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	query := `
		SELECT id, email, full_name, is_active, roles, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email), false)
}

// GetUserWithPassword loads a user including the password hash. Only the
// signin flow uses this.
func (s *Storage) GetUserWithPassword(ctx context.Context, email string) (*auth.User, error) {
	query := `
		SELECT id, email, password_hash, full_name, is_active, roles, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email), true)
}

func (s *Storage) scanUser(row *sql.Row, withPassword bool) (*auth.User, error) {
	var (
		user  auth.User
		roles []string
	)

	var err error
	if withPassword {
		err = row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.FullName,
			&user.IsActive, pq.Array(&roles), &user.CreatedAt, &user.UpdatedAt)
	} else {
		err = row.Scan(&user.ID, &user.Email, &user.FullName,
			&user.IsActive, pq.Array(&roles), &user.CreatedAt, &user.UpdatedAt)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", translateErr(err))
	}

	user.Roles = make([]auth.Role, len(roles))
	for i, r := range roles {
		user.Roles[i] = auth.Role(r)
	}
	return &user, nil
}

// ----- catalog.Store -----

const productColumns = `id, title, price, description, slug, stock, sizes, gender, tags, user_id, created_at, updated_at`

// CreateProduct persists a product row and its image references in one
// transaction; the full set becomes visible atomically.
func (s *Storage) CreateProduct(ctx context.Context, p *catalog.Product) error {
	ctx, span := tracer.Start(ctx, "Storage.CreateProduct")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO products (id, title, price, description, slug, stock, sizes, gender, tags, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, query,
		p.ID,
		p.Title,
		p.Price,
		nullString(p.Description),
		p.Slug,
		p.Stock,
		pq.Array(p.Sizes),
		string(p.Gender),
		pq.Array(p.Tags),
		nullString(p.UserID),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", translateErr(err))
	}

	if err := insertImages(ctx, tx, p); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit product create: %w", translateErr(err))
	}
	return nil
}

// ListProducts returns a page of products with images eagerly attached,
// ordered by insertion (created_at, id).
func (s *Storage) ListProducts(ctx context.Context, limit, offset int) ([]*catalog.Product, error) {
	ctx, span := tracer.Start(ctx, "Storage.ListProducts")
	defer span.End()

	query := `
		SELECT ` + productColumns + `
		FROM products
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	if err := s.attachImages(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetProductByID loads one product with its images.
func (s *Storage) GetProductByID(ctx context.Context, id string) (*catalog.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	return s.getProduct(ctx, query, id)
}

// GetProductByTerm loads one product by case-insensitive title or exact slug.
func (s *Storage) GetProductByTerm(ctx context.Context, term string) (*catalog.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE UPPER(title) = UPPER($1) OR slug = $2`
	return s.getProduct(ctx, query, term, catalog.NormalizeSlug(term))
}

func (s *Storage) getProduct(ctx context.Context, query string, args ...interface{}) (*catalog.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to get product: %w", err)
		}
		return nil, storage.ErrNotFound
	}
	p, err := scanProduct(rows)
	if err != nil {
		return nil, err
	}

	if err := s.attachImages(ctx, []*catalog.Product{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProduct persists the merged fields and final image reference list in
// one transaction: row update, removal of the marked references, insertion of
// the new ones (zero ID).
func (s *Storage) UpdateProduct(ctx context.Context, p *catalog.Product, removedStorageIDs []string) error {
	ctx, span := tracer.Start(ctx, "Storage.UpdateProduct")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE products
		SET title = $1, price = $2, description = $3, slug = $4, stock = $5,
		    sizes = $6, gender = $7, tags = $8, updated_at = NOW()
		WHERE id = $9
	`
	res, err := tx.ExecContext(ctx, query,
		p.Title,
		p.Price,
		nullString(p.Description),
		p.Slug,
		p.Stock,
		pq.Array(p.Sizes),
		string(p.Gender),
		pq.Array(p.Tags),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", translateErr(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}

	if len(removedStorageIDs) > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM product_images WHERE product_id = $1 AND storage_id = ANY($2)`,
			p.ID, pq.Array(removedStorageIDs))
		if err != nil {
			return fmt.Errorf("failed to delete product images: %w", err)
		}
	}

	if err := insertImages(ctx, tx, p); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit product update: %w", translateErr(err))
	}
	return nil
}

// DeleteProduct removes the product row; product_images rows cascade via the
// foreign key.
func (s *Storage) DeleteProduct(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Storage.DeleteProduct")
	defer span.End()

	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// insertImages inserts references that have no row yet (zero ID) and stamps
// the generated identifiers back onto the product.
func insertImages(ctx context.Context, tx *sql.Tx, p *catalog.Product) error {
	for i := range p.Images {
		img := &p.Images[i]
		if img.ID != 0 {
			continue
		}
		img.ProductID = p.ID
		err := tx.QueryRowContext(ctx,
			`INSERT INTO product_images (url, storage_id, product_id) VALUES ($1, $2, $3) RETURNING id`,
			img.URL, img.StorageID, img.ProductID,
		).Scan(&img.ID)
		if err != nil {
			return fmt.Errorf("failed to insert product image: %w", translateErr(err))
		}
	}
	return nil
}

// attachImages batch-loads the image references for the given products,
// ordered by id so the stored order is stable.
func (s *Storage) attachImages(ctx context.Context, products []*catalog.Product) error {
	if len(products) == 0 {
		return nil
	}

	byID := make(map[string]*catalog.Product, len(products))
	ids := make([]string, len(products))
	for i, p := range products {
		p.Images = []catalog.ProductImage{}
		byID[p.ID] = p
		ids[i] = p.ID
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, storage_id, product_id FROM product_images WHERE product_id = ANY($1) ORDER BY id`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load product images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var img catalog.ProductImage
		if err := rows.Scan(&img.ID, &img.URL, &img.StorageID, &img.ProductID); err != nil {
			return fmt.Errorf("failed to scan product image: %w", err)
		}
		if p, ok := byID[img.ProductID]; ok {
			p.Images = append(p.Images, img)
		}
	}
	return rows.Err()
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row scanner) (*catalog.Product, error) {
	var (
		p           catalog.Product
		description sql.NullString
		userID      sql.NullString
		gender      string
		sizes       []string
		tags        []string
	)

	err := row.Scan(&p.ID, &p.Title, &p.Price, &description, &p.Slug, &p.Stock,
		pq.Array(&sizes), &gender, pq.Array(&tags), &userID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", translateErr(err))
	}

	p.Description = description.String
	p.UserID = userID.String
	p.Gender = catalog.Gender(gender)
	p.Sizes = sizes
	p.Tags = tags
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
