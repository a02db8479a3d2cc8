package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"rfqcrm/internal"
)

// Email statuses.
const (
	EmailFetched   = "fetched"
	EmailProcessed = "processed"
	EmailSkipped   = "skipped"
	EmailFailed    = "failed"
)

const emailColumns = `id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef`

func scanEmail(s rowScanner) (*internal.EmailRow, error) {
	var (
		row                       internal.EmailRow
		subject, sender, received sql.NullString
	)
	if err := s.Scan(&row.ID, &row.Provider, &row.MessageID, &subject, &sender, &received, &row.Hash, &row.Status, &row.RawRef); err != nil {
		return nil, err
	}
	row.Subject, row.Sender, row.ReceivedAt = subject.String, sender.String, received.String
	return &row, nil
}

// UpsertEmail records a fetched message. An existing row keeps its status.
func (d *DB) UpsertEmail(ctx context.Context, msg internal.FetchedMailMessage, hash, rawRef string) (internal.EmailRow, error) {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, hash, EmailFetched, rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}

	row, err := d.GetEmailByProviderMessageID(ctx, msg.Provider, msg.MessageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, fmt.Errorf("email not found after upsert: provider=%s messageId=%s", msg.Provider, msg.MessageID)
	}
	return *row, nil
}

func (d *DB) GetEmailByProviderMessageID(ctx context.Context, provider, messageID string) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRowContext(ctx, `SELECT `+emailColumns+` FROM emails WHERE provider = ? AND messageId = ?`, provider, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return row, err
}

func (d *DB) GetEmailByID(ctx context.Context, id int) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRowContext(ctx, `SELECT `+emailColumns+` FROM emails WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return row, err
}

func (d *DB) ListEmailsByStatus(ctx context.Context, status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT `+emailColumns+` FROM emails WHERE status = ? ORDER BY receivedAt ASC, id ASC LIMIT ?
`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		row, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(ctx context.Context, emailID int, status string) error {
	_, err := d.conn.ExecContext(ctx, `UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}
