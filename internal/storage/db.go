package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"rfqcrm/internal"
)

const MetaLastQPLReclassify = "accounts.last_qpl_reclassify"

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: the pragmas below stick, and concurrent ingestion runs
	// serialize on it.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA busy_timeout = 5000;`,
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS accounts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  nameNorm TEXT NOT NULL,
  type TEXT NOT NULL,
  parentAccountId INTEGER,
  cageCode TEXT,
  summary TEXT NOT NULL DEFAULT '',
  billingAddress TEXT NOT NULL DEFAULT '',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(parentAccountId) REFERENCES accounts(id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_name_parent ON accounts(nameNorm, COALESCE(parentAccountId, 0));
CREATE INDEX IF NOT EXISTS idx_accounts_parent ON accounts(parentAccountId);
CREATE INDEX IF NOT EXISTS idx_accounts_cage ON accounts(cageCode);

CREATE TABLE IF NOT EXISTS contacts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  accountId INTEGER NOT NULL,
  firstName TEXT NOT NULL DEFAULT '',
  lastName TEXT NOT NULL DEFAULT '',
  email TEXT,
  emailNorm TEXT UNIQUE,
  phone TEXT NOT NULL DEFAULT '',
  fax TEXT NOT NULL DEFAULT '',
  buyerCode TEXT NOT NULL DEFAULT '',
  department TEXT NOT NULL DEFAULT '',
  address TEXT NOT NULL DEFAULT '',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(accountId) REFERENCES accounts(id)
);

CREATE TABLE IF NOT EXISTS products (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  nsn TEXT NOT NULL,
  fsc TEXT NOT NULL DEFAULT '',
  name TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  unitOfIssue TEXT NOT NULL DEFAULT '',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_products_nsn ON products(nsn);

CREATE TABLE IF NOT EXISTS product_manufacturers (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  productId INTEGER NOT NULL,
  accountId INTEGER NOT NULL,
  manufacturerName TEXT NOT NULL DEFAULT '',
  cageCode TEXT NOT NULL DEFAULT '',
  partNumber TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(productId, accountId, partNumber),
  FOREIGN KEY(productId) REFERENCES products(id),
  FOREIGN KEY(accountId) REFERENCES accounts(id)
);

CREATE TABLE IF NOT EXISTS opportunities (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  requestNumber TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  stage TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  documentId TEXT NOT NULL DEFAULT '',
  accountId INTEGER,
  contactId INTEGER,
  productId INTEGER,
  nsn TEXT NOT NULL DEFAULT '',
  quantity INTEGER,
  unitOfIssue TEXT NOT NULL DEFAULT '',
  deliveryDays INTEGER,
  fob TEXT NOT NULL DEFAULT '',
  isoRequired TEXT NOT NULL DEFAULT '',
  samplingRequired TEXT NOT NULL DEFAULT '',
  inspectionPoint TEXT NOT NULL DEFAULT '',
  manufacturerText TEXT NOT NULL DEFAULT '',
  closeDate TEXT,
  paymentHistory TEXT NOT NULL DEFAULT '',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(accountId) REFERENCES accounts(id),
  FOREIGN KEY(contactId) REFERENCES contacts(id),
  FOREIGN KEY(productId) REFERENCES products(id)
);

CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId TEXT NOT NULL UNIQUE,
  source TEXT NOT NULL,
  startedAt TEXT NOT NULL,
  finishedAt TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// WithinTx runs fn against a repository bound to a fresh transaction. fn's
// error rolls everything back.
func (d *DB) WithinTx(ctx context.Context, fn func(repo internal.Repository) error) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&repo{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// Repository returns a repository running each call in autocommit mode.
// Meant for read paths and tests.
func (d *DB) Repository() internal.Repository {
	return &repo{q: d.conn}
}

// ReclassifyQPLVendors retypes Vendor accounts that own at least one
// manufacturer qualification to QPL. Returns the number of accounts changed.
func (d *DB) ReclassifyQPLVendors(ctx context.Context) (int64, error) {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
UPDATE accounts SET type = ?, updatedAt = CURRENT_TIMESTAMP
WHERE type = ? AND id IN (SELECT DISTINCT accountId FROM product_manufacturers)
`, string(internal.AccountQPL), string(internal.AccountVendor))
	if err != nil {
		return 0, err
	}
	changed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, MetaLastQPLReclassify, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return 0, err
	}

	return changed, tx.Commit()
}

// EntityCounts reports row counts for the CRM tables.
func (d *DB) EntityCounts(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int)
	for _, table := range []string{"accounts", "contacts", "products", "product_manufacturers", "opportunities"} {
		var n int
		if err := d.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		out[table] = n
	}
	return out, nil
}

func (d *DB) ListAccounts(ctx context.Context) ([]internal.Account, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY COALESCE(parentAccountId, id), parentAccountId IS NOT NULL, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (d *DB) ListQualifications(ctx context.Context, productID int64) ([]internal.ManufacturerQualification, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT id, productId, accountId, manufacturerName, cageCode, partNumber
FROM product_manufacturers WHERE productId = ? ORDER BY id
`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ManufacturerQualification
	for rows.Next() {
		var q internal.ManufacturerQualification
		if err := rows.Scan(&q.ID, &q.ProductID, &q.AccountID, &q.ManufacturerName, &q.CageCode, &q.PartNumber); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (d *DB) InsertRun(ctx context.Context, runID, source string, startedAt, finishedAt time.Time, counts map[string]int) error {
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.ExecContext(ctx, `INSERT INTO runs (runId, source, startedAt, finishedAt, countsJson) VALUES (?, ?, ?, ?, ?)`,
		runID, source, startedAt.UTC().Format(time.RFC3339), finishedAt.UTC().Format(time.RFC3339), string(countsJSON))
	return err
}

// GetRunCounts returns the stored counters of a run, nil when unknown.
func (d *DB) GetRunCounts(ctx context.Context, runID string) (map[string]int, error) {
	var raw string
	err := d.conn.QueryRowContext(ctx, `SELECT countsJson FROM runs WHERE runId = ?`, runID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	if err := json.Unmarshal([]byte(raw), &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

func (d *DB) SetMetadata(ctx context.Context, key, value string) error {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(ctx context.Context, key string) (*string, error) {
	var value string
	err := d.conn.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
