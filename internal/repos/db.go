package repos

import (
	"context"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers "sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// OpenDB opens the store and applies the schema for its dialect. The caller
// owns the handle and closes it at shutdown.
func OpenDB(driver, dsn string) (*sqlx.DB, error) {
	if driver == "" {
		driver = DriverSQLite
	}
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported DB driver %q", driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// One connection: transactions are serialized, and ":memory:" stays
		// a single database.
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

func isPostgres(q sqlx.ExtContext) bool { return q.DriverName() == DriverPostgres }

// lockClause returns the row-locking suffix for selects that feed a write.
// SQLite serializes writers already.
func lockClause(ctx context.Context, q sqlx.ExtContext, clause string) string {
	if isPostgres(q) && InTx(ctx) {
		return " " + clause
	}
	return ""
}

func ensureSchema(db *sqlx.DB) error {
	schema := sqliteSchema
	if db.DriverName() == DriverPostgres {
		schema = postgresSchema
	}
	_, err := db.Exec(schema)
	return err
}

const sqliteSchema = `
PRAGMA foreign_keys = ON;

-- Event owners
CREATE TABLE IF NOT EXISTS users(
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  role TEXT NOT NULL CHECK (role IN ('ADMIN','MANAGER','USER')),
  created_at TEXT NOT NULL
);

-- Catalog
CREATE TABLE IF NOT EXISTS products(
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS product_variants(
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
  sku TEXT NOT NULL,
  weight INTEGER,
  retail_price TEXT,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  soft_delete BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS product_variants_product_id_idx ON product_variants(product_id);

-- Batches & units
CREATE TABLE IF NOT EXISTS batches(
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  product_variant_id TEXT NOT NULL REFERENCES product_variants(id) ON DELETE CASCADE,
  production_date TEXT NOT NULL,
  expiration_date TEXT NOT NULL,
  quantity INTEGER NOT NULL CHECK (quantity >= 0),
  batch_code TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS batches_product_variant_id_idx ON batches(product_variant_id);
CREATE INDEX IF NOT EXISTS batches_expiration_date_idx ON batches(expiration_date);

CREATE TABLE IF NOT EXISTS units(
  id TEXT PRIMARY KEY,
  batch_id TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
  sku TEXT NOT NULL,
  sold BOOLEAN NOT NULL DEFAULT FALSE,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  is_available BOOLEAN NOT NULL DEFAULT TRUE,
  movement_status TEXT NOT NULL DEFAULT 'in_stock'
    CHECK (movement_status IN ('in_stock','sold','returned','discarded')),
  return_reason TEXT,
  return_date TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS units_batch_id_idx ON units(batch_id);
CREATE INDEX IF NOT EXISTS units_status_idx ON units(sold, is_available);

-- Events
CREATE TABLE IF NOT EXISTS events(
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT,
  event_date TEXT NOT NULL,
  start_time TEXT,
  end_time TEXT,
  image_url TEXT,
  status TEXT NOT NULL CHECK (status IN ('PLANNED','CONFIRMED','CANCELLED','FINISHED')),
  internal_owner_id TEXT NOT NULL REFERENCES users(id),
  allocated_units INTEGER NOT NULL,
  max_sales_capacity INTEGER,
  event_price TEXT NOT NULL DEFAULT '0',
  transport_cost TEXT,
  food_cost TEXT,
  rating INTEGER CHECK (rating BETWEEN 1 AND 5),
  rating_comment TEXT,
  address_street TEXT,
  address_number TEXT,
  address_city TEXT,
  address_state TEXT,
  address_postal_code TEXT,
  address_country TEXT,
  deleted_at TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS events_event_date_idx ON events(event_date);

-- Allocation ledger: rows are never deleted, only released.
CREATE TABLE IF NOT EXISTS event_units(
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL REFERENCES events(id) ON DELETE RESTRICT,
  unit_id TEXT NOT NULL REFERENCES units(id) ON DELETE RESTRICT,
  allocated_at TEXT NOT NULL,
  released_at TEXT
);
CREATE INDEX IF NOT EXISTS event_units_event_id_idx ON event_units(event_id);
CREATE INDEX IF NOT EXISTS event_units_availability_idx ON event_units(unit_id, released_at);
CREATE UNIQUE INDEX IF NOT EXISTS event_units_one_open_idx ON event_units(unit_id) WHERE released_at IS NULL;
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users(
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  role TEXT NOT NULL CHECK (role IN ('ADMIN','MANAGER','USER')),
  created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS products(
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS product_variants(
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
  sku TEXT NOT NULL,
  weight INTEGER,
  retail_price NUMERIC(10,2),
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  soft_delete BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS product_variants_product_id_idx ON product_variants(product_id);

CREATE TABLE IF NOT EXISTS batches(
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  product_variant_id TEXT NOT NULL REFERENCES product_variants(id) ON DELETE CASCADE,
  production_date TIMESTAMPTZ NOT NULL,
  expiration_date TIMESTAMPTZ NOT NULL,
  quantity INTEGER NOT NULL CHECK (quantity >= 0),
  batch_code TEXT,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS batches_product_variant_id_idx ON batches(product_variant_id);
CREATE INDEX IF NOT EXISTS batches_expiration_date_idx ON batches(expiration_date);

CREATE TABLE IF NOT EXISTS units(
  id TEXT PRIMARY KEY,
  batch_id TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
  sku TEXT NOT NULL,
  sold BOOLEAN NOT NULL DEFAULT FALSE,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  is_available BOOLEAN NOT NULL DEFAULT TRUE,
  movement_status TEXT NOT NULL DEFAULT 'in_stock'
    CHECK (movement_status IN ('in_stock','sold','returned','discarded')),
  return_reason TEXT,
  return_date TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS units_batch_id_idx ON units(batch_id);
CREATE INDEX IF NOT EXISTS units_status_idx ON units(sold, is_available);

CREATE TABLE IF NOT EXISTS events(
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT,
  event_date TIMESTAMPTZ NOT NULL,
  start_time TIMESTAMPTZ,
  end_time TIMESTAMPTZ,
  image_url TEXT,
  status TEXT NOT NULL CHECK (status IN ('PLANNED','CONFIRMED','CANCELLED','FINISHED')),
  internal_owner_id TEXT NOT NULL REFERENCES users(id),
  allocated_units INTEGER NOT NULL,
  max_sales_capacity INTEGER,
  event_price NUMERIC(10,2) NOT NULL DEFAULT 0,
  transport_cost NUMERIC(10,2),
  food_cost NUMERIC(10,2),
  rating INTEGER CHECK (rating BETWEEN 1 AND 5),
  rating_comment TEXT,
  address_street TEXT,
  address_number TEXT,
  address_city TEXT,
  address_state TEXT,
  address_postal_code TEXT,
  address_country TEXT,
  deleted_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS events_event_date_idx ON events(event_date);

CREATE TABLE IF NOT EXISTS event_units(
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL REFERENCES events(id) ON DELETE RESTRICT,
  unit_id TEXT NOT NULL REFERENCES units(id) ON DELETE RESTRICT,
  allocated_at TIMESTAMPTZ NOT NULL,
  released_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS event_units_event_id_idx ON event_units(event_id);
CREATE INDEX IF NOT EXISTS event_units_availability_idx ON event_units(unit_id, released_at);
CREATE UNIQUE INDEX IF NOT EXISTS event_units_one_open_idx ON event_units(unit_id) WHERE released_at IS NULL;
`
