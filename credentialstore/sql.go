package credentialstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/deploymenttheory/go-api-auth-client/credentials"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type credentialBundleRecord struct {
	bun.BaseModel `bun:"table:credential_bundles,alias:cb"`

	Namespace string    `bun:"namespace,pk"`
	Key       string    `bun:"key,pk"`
	Payload   string    `bun:"payload,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// SQLStore keeps the bundle as one row of the credential_bundles table.
type SQLStore struct {
	db        *bun.DB
	namespace string
	key       string
	owned     bool
}

// OpenSQLStore opens driver/dsn, selects the matching bun dialect and creates the table if needed.
func OpenSQLStore(ctx context.Context, driver, dsn, namespace, key string) (*SQLStore, error) {
	var dialect schema.Dialect
	switch driver {
	case DriverSQLite:
		dialect = sqlitedialect.New()
	case DriverPostgres:
		dialect = pgdialect.New()
	default:
		return nil, fmt.Errorf("credential store: unsupported sql driver %q", driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	store := &SQLStore{db: bun.NewDB(sqlDB, dialect), namespace: namespace, key: key, owned: true}
	if err := store.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an existing bun.DB. Call Migrate before first use.
func NewSQLStore(db *bun.DB, namespace, key string) *SQLStore {
	return &SQLStore{db: db, namespace: namespace, key: key}
}

// Migrate creates the credential_bundles table when it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*credentialBundleRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("creating credential_bundles table: %w", err)
	}
	return nil
}

func (s *SQLStore) Save(ctx context.Context, bundle credentials.Bundle) error {
	payload, err := credentials.Encode(bundle)
	if err != nil {
		return err
	}

	record := &credentialBundleRecord{
		Namespace: s.namespace,
		Key:       s.key,
		Payload:   string(payload),
		UpdatedAt: time.Now().UTC(),
	}
	_, err = s.db.NewInsert().
		Model(record).
		On("CONFLICT (namespace, key) DO UPDATE").
		Set("payload = EXCLUDED.payload").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *SQLStore) Load(ctx context.Context) (*credentials.Bundle, error) {
	record := new(credentialBundleRecord)
	err := s.db.NewSelect().
		Model(record).
		Where("? = ?", bun.Ident("namespace"), s.namespace).
		Where("? = ?", bun.Ident("key"), s.key).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	bundle, err := credentials.Decode([]byte(record.Payload))
	if err != nil {
		return nil, err
	}
	return &bundle, nil
}

func (s *SQLStore) Delete(ctx context.Context) error {
	_, err := s.db.NewDelete().
		Model((*credentialBundleRecord)(nil)).
		Where("? = ?", bun.Ident("namespace"), s.namespace).
		Where("? = ?", bun.Ident("key"), s.key).
		Exec(ctx)
	return err
}

// Close closes the database when the store opened it.
func (s *SQLStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
