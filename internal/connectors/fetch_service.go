package connectors

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"rfqcrm/internal"
	"rfqcrm/internal/logging"
	"rfqcrm/internal/storage"
)

// FetchService copies new mailbox messages into the raw mail directory and
// the emails table, where the processing service picks them up.
type FetchService struct {
	db         *storage.DB
	connector  MailConnector
	rawMailDir string
	logger     *slog.Logger
}

type FetchResult struct {
	Fetched int
	Stored  int
	// Known counts messages already recorded by an earlier fetch.
	Known int
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector, logger *slog.Logger) *FetchService {
	return &FetchService{db: db, connector: connector, rawMailDir: rawMailDir, logger: logging.Or(logger)}
}

func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch %s: %w", label, err)
	}

	res := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		existing, err := s.db.GetEmailByProviderMessageID(ctx, msg.Provider, msg.MessageID)
		if err != nil {
			return res, err
		}
		if existing != nil {
			res.Known++
			continue
		}
		row, err := s.Store(ctx, msg)
		if err != nil {
			return res, err
		}
		s.logger.Debug("email stored", "email_id", row.ID, "provider", row.Provider, "subject", row.Subject)
		res.Stored++
	}
	return res, nil
}

// Store writes the raw message under its content hash and records it.
func (s *FetchService) Store(ctx context.Context, msg internal.FetchedMailMessage) (internal.EmailRow, error) {
	sum := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(sum[:])

	if err := os.MkdirAll(s.rawMailDir, 0o755); err != nil {
		return internal.EmailRow{}, err
	}
	rawPath := filepath.Join(s.rawMailDir, hash+".eml")
	if _, err := os.Stat(rawPath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(rawPath, msg.Raw, 0o644); err != nil {
			return internal.EmailRow{}, err
		}
	}
	return s.db.UpsertEmail(ctx, msg, hash, rawPath)
}
