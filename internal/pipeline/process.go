package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"rfqcrm/internal"
	"rfqcrm/internal/logging"
	"rfqcrm/internal/storage"
	"rfqcrm/internal/util"
)

// ProcessingService feeds stored emails through the ingestor.
type ProcessingService struct {
	db       *storage.DB
	ingestor *Ingestor
	logger   *slog.Logger
}

func NewProcessingService(db *storage.DB, ingestor *Ingestor, logger *slog.Logger) *ProcessingService {
	return &ProcessingService{db: db, ingestor: ingestor, logger: logging.Or(logger)}
}

type ProcessResult struct {
	EmailID int
	Status  string
	// Report is nil when the email was not an RFQ.
	Report *ProcessingReport
}

func (s *ProcessingService) ProcessPending(ctx context.Context, limit int, provider string) ([]ProcessResult, error) {
	pending, err := s.db.ListEmailsByStatus(ctx, storage.EmailFetched, limit)
	if err != nil {
		return nil, err
	}
	var results []ProcessResult
	for _, email := range pending {
		if provider != "" && email.Provider != provider {
			continue
		}
		res, err := s.ProcessEmail(ctx, email)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *ProcessingService) ProcessEmail(ctx context.Context, email internal.EmailRow) (ProcessResult, error) {
	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return ProcessResult{}, err
	}

	content, err := DocumentsFromEmail(email.Provider+":"+email.MessageID, raw)
	if err != nil {
		if uerr := s.db.UpdateEmailStatus(ctx, email.ID, storage.EmailFailed); uerr != nil {
			return ProcessResult{}, uerr
		}
		s.logger.Warn("email unparseable", "email_id", email.ID, "err", err)
		return ProcessResult{EmailID: email.ID, Status: storage.EmailFailed}, nil
	}

	detect := DetectRFQ(util.FirstNonEmpty(content.Subject, email.Subject), content.Text, content.AttachmentNames)
	if !detect.IsRFQ || len(content.Documents) == 0 {
		s.logger.Info("email skipped", "email_id", email.ID, "score", detect.Score, "documents", len(content.Documents))
		if err := s.db.UpdateEmailStatus(ctx, email.ID, storage.EmailSkipped); err != nil {
			return ProcessResult{}, err
		}
		return ProcessResult{EmailID: email.ID, Status: storage.EmailSkipped}, nil
	}

	report := s.ingestor.Run(ctx, "email:"+strconv.Itoa(email.ID), content.Documents)
	if err := s.db.InsertRun(ctx, report.RunID, report.Source, report.StartedAt, report.FinishedAt, report.Counts()); err != nil {
		return ProcessResult{}, fmt.Errorf("store run: %w", err)
	}

	status := emailStatus(report)
	if status == storage.EmailFetched {
		s.logger.Warn("email run stopped before any document", "email_id", email.ID, "run_id", report.RunID)
		return ProcessResult{EmailID: email.ID, Status: status, Report: report}, nil
	}
	if err := s.db.UpdateEmailStatus(ctx, email.ID, status); err != nil {
		return ProcessResult{}, err
	}
	return ProcessResult{EmailID: email.ID, Status: status, Report: report}, nil
}

// emailStatus is failed only when every processed document failed. A run
// that processed nothing leaves the email fetched for the next pass.
func emailStatus(report *ProcessingReport) string {
	switch {
	case report.Processed == 0:
		return storage.EmailFetched
	case report.Failed == report.Processed:
		return storage.EmailFailed
	}
	return storage.EmailProcessed
}
