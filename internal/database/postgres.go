package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PriceTracker/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sellers (
	id BIGINT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	scraper_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS listings (
	id BIGSERIAL PRIMARY KEY,
	device_id BIGINT NOT NULL,
	seller_id BIGINT NOT NULL REFERENCES sellers(id),
	url TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS price_history (
	id BIGSERIAL PRIMARY KEY,
	listing_id BIGINT NOT NULL REFERENCES listings(id),
	price DOUBLE PRECISION NOT NULL,
	in_stock BOOLEAN NOT NULL,
	valid_from TIMESTAMPTZ NOT NULL,
	valid_to TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS price_history_one_open
	ON price_history(listing_id) WHERE valid_to IS NULL;

CREATE INDEX IF NOT EXISTS price_history_listing
	ON price_history(listing_id, valid_from);
`

// PostgresStore is the Store for multi-process deployments. The listing row is
// locked with SELECT ... FOR UPDATE inside each price transaction.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// OpenPostgres connects a pool to dsn and makes sure the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns < 4 {
		cfg.MaxConns = 4
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{Pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.Pool.Close()
	return nil
}

func (s *PostgresStore) ListActiveListings(ctx context.Context) ([]models.Listing, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, device_id, seller_id, url, active, metadata::text, created_at
		FROM listings
		WHERE active
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query active listings: %w", err)
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		l, err := scanPgListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func (s *PostgresStore) FindSeller(ctx context.Context, id int64) (*models.Seller, error) {
	var seller models.Seller
	err := s.Pool.QueryRow(ctx, "SELECT id, name, scraper_id FROM sellers WHERE id = $1", id).
		Scan(&seller.ID, &seller.Name, &seller.ScraperID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query seller %d: %w", id, err)
	}
	return &seller, nil
}

func (s *PostgresStore) SaveSeller(ctx context.Context, seller models.Seller) error {
	return savePgSeller(ctx, s.Pool, seller)
}

func (s *PostgresStore) SaveListing(ctx context.Context, l models.Listing) error {
	return savePgListing(ctx, s.Pool, l)
}

// pgExecer is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func savePgSeller(ctx context.Context, db pgExecer, seller models.Seller) error {
	_, err := db.Exec(ctx, `
		INSERT INTO sellers (id, name, scraper_id) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, scraper_id = excluded.scraper_id`,
		seller.ID, seller.Name, seller.ScraperID)
	if err != nil {
		return fmt.Errorf("save seller %d: %w", seller.ID, err)
	}
	return nil
}

func savePgListing(ctx context.Context, db pgExecer, l models.Listing) error {
	meta, _ := l.Metadata.Value()
	var err error
	if l.ID == 0 {
		_, err = db.Exec(ctx, `
			INSERT INTO listings (device_id, seller_id, url, active, metadata)
			VALUES ($1, $2, $3, $4, $5::jsonb)`,
			l.DeviceID, l.SellerID, l.URL, l.Active, meta)
	} else {
		_, err = db.Exec(ctx, `
			INSERT INTO listings (id, device_id, seller_id, url, active, metadata)
			VALUES ($1, $2, $3, $4, $5, $6::jsonb)
			ON CONFLICT (id) DO UPDATE SET
				device_id = excluded.device_id,
				seller_id = excluded.seller_id,
				url = excluded.url,
				active = excluded.active,
				metadata = excluded.metadata`,
			l.ID, l.DeviceID, l.SellerID, l.URL, l.Active, meta)
	}
	if err != nil {
		return fmt.Errorf("save listing %s: %w", l.URL, err)
	}
	return nil
}

// WithinTx runs fn in a read-committed transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	pgTx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			pgTx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if err != nil {
			pgTx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(&postgresTx{tx: pgTx}); err != nil {
		return err
	}
	if err = pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) OpenPriceRecords(ctx context.Context, listingID int64) ([]models.PriceRecord, error) {
	rows, err := s.Pool.Query(ctx,
		"SELECT "+priceColumns+" FROM price_history WHERE listing_id = $1 AND valid_to IS NULL ORDER BY id",
		listingID)
	if err != nil {
		return nil, fmt.Errorf("query open price records: %w", err)
	}
	return collectPgPrices(rows)
}

func (s *PostgresStore) PriceHistory(ctx context.Context, listingID int64) ([]models.PriceRecord, error) {
	rows, err := s.Pool.Query(ctx,
		"SELECT "+priceColumns+" FROM price_history WHERE listing_id = $1 ORDER BY valid_from, id",
		listingID)
	if err != nil {
		return nil, fmt.Errorf("query price history: %w", err)
	}
	return collectPgPrices(rows)
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) SaveSeller(ctx context.Context, seller models.Seller) error {
	return savePgSeller(ctx, t.tx, seller)
}

func (t *postgresTx) SaveListing(ctx context.Context, l models.Listing) error {
	return savePgListing(ctx, t.tx, l)
}

func (t *postgresTx) FindListingByID(ctx context.Context, id int64) (*models.Listing, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, device_id, seller_id, url, active, metadata::text, created_at
		FROM listings WHERE id = $1
		FOR UPDATE`, id)
	l, err := scanPgListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query listing %d: %w", id, err)
	}
	return l, nil
}

func (t *postgresTx) FindOpenPriceRecord(ctx context.Context, listingID int64) (*models.PriceRecord, error) {
	row := t.tx.QueryRow(ctx,
		"SELECT "+priceColumns+" FROM price_history WHERE listing_id = $1 AND valid_to IS NULL FOR UPDATE",
		listingID)
	rec, err := scanPgPrice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query open price record: %w", err)
	}
	return rec, nil
}

func (t *postgresTx) ClosePriceRecord(ctx context.Context, id int64, now time.Time) error {
	tag, err := t.tx.Exec(ctx,
		"UPDATE price_history SET valid_to = $1, updated_at = $1 WHERE id = $2 AND valid_to IS NULL",
		now, id)
	if err != nil {
		return fmt.Errorf("close price record %d: %w", id, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("price record %d: %w", id, ErrNotFound)
	}
	return nil
}

func (t *postgresTx) InsertPriceRecord(ctx context.Context, rec models.PriceRecord) (*models.PriceRecord, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO price_history (listing_id, price, in_stock, valid_from, valid_to, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		rec.ListingID, rec.Price, rec.InStock, rec.ValidFrom, rec.ValidTo, rec.CreatedAt, rec.UpdatedAt).
		Scan(&rec.ID)
	if err != nil {
		return nil, fmt.Errorf("insert price record: %w", err)
	}
	return &rec, nil
}

func (t *postgresTx) TouchPriceRecord(ctx context.Context, id int64, now time.Time) error {
	tag, err := t.tx.Exec(ctx, "UPDATE price_history SET updated_at = $1 WHERE id = $2", now, id)
	if err != nil {
		return fmt.Errorf("touch price record %d: %w", id, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("price record %d: %w", id, ErrNotFound)
	}
	return nil
}

func scanPgListing(row pgx.Row) (*models.Listing, error) {
	var (
		l    models.Listing
		meta string
	)
	if err := row.Scan(&l.ID, &l.DeviceID, &l.SellerID, &l.URL, &l.Active, &meta, &l.CreatedAt); err != nil {
		return nil, err
	}
	l.Metadata = models.Metadata(meta)
	return &l, nil
}

func scanPgPrice(row pgx.Row) (*models.PriceRecord, error) {
	var rec models.PriceRecord
	if err := row.Scan(&rec.ID, &rec.ListingID, &rec.Price, &rec.InStock, &rec.ValidFrom, &rec.ValidTo, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func collectPgPrices(rows pgx.Rows) ([]models.PriceRecord, error) {
	defer rows.Close()
	var records []models.PriceRecord
	for rows.Next() {
		rec, err := scanPgPrice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan price record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}
