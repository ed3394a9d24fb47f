package postgres

import (
	"context"
	"fmt"
)

// schemaSQL bootstraps the relational schema. Statements are idempotent so
// startup can run them unconditionally.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	full_name     TEXT NOT NULL DEFAULT '',
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	roles         TEXT[] NOT NULL DEFAULT '{user}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS products (
	id          UUID PRIMARY KEY,
	title       TEXT NOT NULL UNIQUE,
	price       DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (price >= 0),
	description TEXT,
	slug        TEXT NOT NULL UNIQUE,
	stock       INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
	sizes       TEXT[] NOT NULL DEFAULT '{}',
	gender      TEXT NOT NULL CHECK (gender IN ('men', 'women', 'kid', 'unisex')),
	tags        TEXT[] NOT NULL DEFAULT '{}',
	user_id     UUID REFERENCES users(id),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS product_images (
	id         BIGSERIAL PRIMARY KEY,
	url        TEXT NOT NULL,
	storage_id TEXT NOT NULL,
	product_id UUID NOT NULL REFERENCES products(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_products_slug ON products(slug);
CREATE INDEX IF NOT EXISTS idx_product_images_product_id ON product_images(product_id);
CREATE INDEX IF NOT EXISTS idx_product_images_storage_id ON product_images(storage_id);
`

// Migrate creates the schema when it does not exist yet.
func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to run schema migration: %w", err)
	}
	return nil
}
