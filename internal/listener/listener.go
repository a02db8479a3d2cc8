package listener

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"rfqcrm/internal/config"
	"rfqcrm/internal/connectors"
	gmailconnector "rfqcrm/internal/connectors/gmail"
	imapconnector "rfqcrm/internal/connectors/imap"
	"rfqcrm/internal/logging"
	"rfqcrm/internal/pipeline"
	"rfqcrm/internal/storage"
)

// Service polls a mailbox, ingests RFQ emails and optionally writes one
// report workbook per ingested email.
type Service struct {
	db        *storage.DB
	cfg       config.Config
	logger    *slog.Logger
	processor *pipeline.ProcessingService
	provider  string

	connect func(ctx context.Context, provider string) (connectors.MailConnector, error)
}

func NewService(db *storage.DB, cfg config.Config, logger *slog.Logger) (*Service, error) {
	settings, err := cfg.Qualification()
	if err != nil {
		return nil, err
	}
	logger = logging.Or(logger).With("component", "listener")

	ingestor := pipeline.NewIngestor(db, settings, logger)
	ingestor.SetStage(cfg.OpportunityStage)

	s := &Service{
		db:        db,
		cfg:       cfg,
		logger:    logger,
		processor: pipeline.NewProcessingService(db, ingestor, logger),
		provider:  strings.ToLower(strings.TrimSpace(cfg.MailListenerProvider)),
	}
	s.connect = func(ctx context.Context, provider string) (connectors.MailConnector, error) {
		return Connect(ctx, cfg, provider)
	}
	return s, nil
}

// Connect builds the mailbox connector for provider ("gmail" or "imap").
func Connect(ctx context.Context, cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case gmailconnector.Provider:
		return gmailconnector.NewConnector(ctx, cfg)
	case imapconnector.Provider:
		return imapconnector.NewConnector(cfg)
	}
	return nil, fmt.Errorf("%w: unsupported mail provider: %q", config.ErrInvalidConfig, provider)
}

// Run loops until ctx is cancelled. A failed cycle is logged and retried
// on the next tick.
func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.MailListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("listener cycle failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle performs one fetch and process pass.
func (s *Service) RunCycle(ctx context.Context) error {
	mail, err := s.connect(ctx, s.provider)
	if err != nil {
		return err
	}

	fetched, err := connectors.NewFetchService(s.db, s.cfg.RawMailDir, mail, s.logger).
		FetchAndStore(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return err
	}

	results, err := s.processor.ProcessPending(ctx, s.cfg.MailListenerProcessBatch, s.provider)
	if err != nil {
		return err
	}

	committed, exported := 0, 0
	for _, res := range results {
		if res.Report == nil {
			continue
		}
		committed += res.Report.Committed
		if !s.cfg.MailListenerAutoExport {
			continue
		}
		path := filepath.Join(s.cfg.OutputDir, "listener", fmt.Sprintf("email-%d_%s.xlsx", res.EmailID, res.Report.RunID))
		if err := pipeline.ExportReportToXLSX(res.Report, path); err != nil {
			return fmt.Errorf("export email %d: %w", res.EmailID, err)
		}
		exported++
	}

	s.logger.Info("listener cycle done",
		"provider", s.provider, "fetched", fetched.Fetched, "stored", fetched.Stored,
		"processed", len(results), "committed", committed, "exported", exported)
	return nil
}
