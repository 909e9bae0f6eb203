package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"PriceTracker/internal/models"

	_ "modernc.org/sqlite"
)

// sqlitePragmas are appended to every DSN. _txlock=immediate makes each
// transaction take the write lock at BEGIN, so the read of the open record
// and the writes that follow cannot interleave with another updater.
const sqlitePragmas = "_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sellers (
	"id" INTEGER NOT NULL PRIMARY KEY,
	"name" TEXT NOT NULL DEFAULT '',
	"scraper_id" TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS listings (
	"id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	"device_id" INTEGER NOT NULL,
	"seller_id" INTEGER NOT NULL REFERENCES sellers(id),
	"url" TEXT NOT NULL,
	"active" BOOLEAN NOT NULL DEFAULT 1,
	"metadata" TEXT NOT NULL DEFAULT '{}',
	"created_at" DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS price_history (
	"id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	"listing_id" INTEGER NOT NULL REFERENCES listings(id),
	"price" REAL NOT NULL,
	"in_stock" BOOLEAN NOT NULL,
	"valid_from" DATETIME NOT NULL,
	"valid_to" DATETIME,
	"created_at" DATETIME NOT NULL,
	"updated_at" DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS price_history_one_open
	ON price_history(listing_id) WHERE valid_to IS NULL;

CREATE INDEX IF NOT EXISTS price_history_listing
	ON price_history(listing_id, valid_from);
`

const priceColumns = `id, listing_id, price, in_stock, valid_from, valid_to, created_at, updated_at`

// SQLiteStore is the default Store, backed by modernc.org/sqlite.
type SQLiteStore struct {
	DB *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and makes sure
// the schema exists.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&" + sqlitePragmas
	} else {
		dsn += "?" + sqlitePragmas
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	for _, stmt := range strings.Split(sqliteSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err = db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &SQLiteStore{DB: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.DB.Close()
}

// ListActiveListings returns every listing with the active flag set.
func (s *SQLiteStore) ListActiveListings(ctx context.Context) ([]models.Listing, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, device_id, seller_id, url, active, metadata, created_at
		FROM listings
		WHERE active = 1
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query active listings: %w", err)
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		var l models.Listing
		if err := rows.Scan(&l.ID, &l.DeviceID, &l.SellerID, &l.URL, &l.Active, &l.Metadata, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// FindSeller returns the seller with id, or ErrNotFound.
func (s *SQLiteStore) FindSeller(ctx context.Context, id int64) (*models.Seller, error) {
	var seller models.Seller
	err := s.DB.QueryRowContext(ctx, "SELECT id, name, scraper_id FROM sellers WHERE id = ?", id).
		Scan(&seller.ID, &seller.Name, &seller.ScraperID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query seller %d: %w", id, err)
	}
	return &seller, nil
}

// SaveSeller inserts or replaces a seller.
func (s *SQLiteStore) SaveSeller(ctx context.Context, seller models.Seller) error {
	return saveSQLiteSeller(ctx, s.DB, seller)
}

// SaveListing inserts or updates a listing. A zero ID lets the database pick one.
func (s *SQLiteStore) SaveListing(ctx context.Context, l models.Listing) error {
	return saveSQLiteListing(ctx, s.DB, l)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func saveSQLiteSeller(ctx context.Context, db execer, seller models.Seller) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sellers (id, name, scraper_id) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, scraper_id=excluded.scraper_id`,
		seller.ID, seller.Name, seller.ScraperID)
	if err != nil {
		return fmt.Errorf("save seller %d: %w", seller.ID, err)
	}
	return nil
}

func saveSQLiteListing(ctx context.Context, db execer, l models.Listing) error {
	var id interface{}
	if l.ID != 0 {
		id = l.ID
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO listings (id, device_id, seller_id, url, active, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			device_id=excluded.device_id,
			seller_id=excluded.seller_id,
			url=excluded.url,
			active=excluded.active,
			metadata=excluded.metadata`,
		id, l.DeviceID, l.SellerID, l.URL, l.Active, l.Metadata, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save listing %s: %w", l.URL, err)
	}
	return nil
}

// WithinTx runs fn inside an immediate transaction.
func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	sqlTx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			sqlTx.Rollback()
		}
	}()

	if err = fn(&sqliteTx{tx: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// OpenPriceRecords returns every record of the listing without an end time.
// Outside of a bug this is at most one row.
func (s *SQLiteStore) OpenPriceRecords(ctx context.Context, listingID int64) ([]models.PriceRecord, error) {
	rows, err := s.DB.QueryContext(ctx,
		"SELECT "+priceColumns+" FROM price_history WHERE listing_id = ? AND valid_to IS NULL ORDER BY id",
		listingID)
	if err != nil {
		return nil, fmt.Errorf("query open price records: %w", err)
	}
	return scanPriceRows(rows)
}

// PriceHistory returns all records of the listing, oldest first.
func (s *SQLiteStore) PriceHistory(ctx context.Context, listingID int64) ([]models.PriceRecord, error) {
	rows, err := s.DB.QueryContext(ctx,
		"SELECT "+priceColumns+" FROM price_history WHERE listing_id = ? ORDER BY valid_from, id",
		listingID)
	if err != nil {
		return nil, fmt.Errorf("query price history: %w", err)
	}
	return scanPriceRows(rows)
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) SaveSeller(ctx context.Context, seller models.Seller) error {
	return saveSQLiteSeller(ctx, t.tx, seller)
}

func (t *sqliteTx) SaveListing(ctx context.Context, l models.Listing) error {
	return saveSQLiteListing(ctx, t.tx, l)
}

func (t *sqliteTx) FindListingByID(ctx context.Context, id int64) (*models.Listing, error) {
	var l models.Listing
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, device_id, seller_id, url, active, metadata, created_at
		FROM listings WHERE id = ?`, id).
		Scan(&l.ID, &l.DeviceID, &l.SellerID, &l.URL, &l.Active, &l.Metadata, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query listing %d: %w", id, err)
	}
	return &l, nil
}

func (t *sqliteTx) FindOpenPriceRecord(ctx context.Context, listingID int64) (*models.PriceRecord, error) {
	row := t.tx.QueryRowContext(ctx,
		"SELECT "+priceColumns+" FROM price_history WHERE listing_id = ? AND valid_to IS NULL",
		listingID)
	rec, err := scanPrice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query open price record: %w", err)
	}
	return rec, nil
}

func (t *sqliteTx) ClosePriceRecord(ctx context.Context, id int64, now time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE price_history SET valid_to = ?, updated_at = ? WHERE id = ? AND valid_to IS NULL",
		now, now, id)
	if err != nil {
		return fmt.Errorf("close price record %d: %w", id, err)
	}
	return expectOneRow(res, id)
}

func (t *sqliteTx) InsertPriceRecord(ctx context.Context, rec models.PriceRecord) (*models.PriceRecord, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO price_history (listing_id, price, in_stock, valid_from, valid_to, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ListingID, rec.Price, rec.InStock, rec.ValidFrom, rec.ValidTo, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert price record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert price record: %w", err)
	}
	rec.ID = id
	return &rec, nil
}

func (t *sqliteTx) TouchPriceRecord(ctx context.Context, id int64, now time.Time) error {
	res, err := t.tx.ExecContext(ctx, "UPDATE price_history SET updated_at = ? WHERE id = ?", now, id)
	if err != nil {
		return fmt.Errorf("touch price record %d: %w", id, err)
	}
	return expectOneRow(res, id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPrice(row rowScanner) (*models.PriceRecord, error) {
	var (
		rec     models.PriceRecord
		validTo sql.NullTime
	)
	if err := row.Scan(&rec.ID, &rec.ListingID, &rec.Price, &rec.InStock, &rec.ValidFrom, &validTo, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if validTo.Valid {
		t := validTo.Time
		rec.ValidTo = &t
	}
	return &rec, nil
}

func scanPriceRows(rows *sql.Rows) ([]models.PriceRecord, error) {
	defer rows.Close()
	var records []models.PriceRecord
	for rows.Next() {
		rec, err := scanPrice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan price record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func expectOneRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("price record %d: %w", id, ErrNotFound)
	}
	return nil
}
