package pipeline

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"rfqcrm/internal"
	"rfqcrm/internal/logging"
	"rfqcrm/internal/qualify"
	"rfqcrm/internal/resolve"
	"rfqcrm/internal/util"
)

const DefaultStage = "Prospecting"

// Ingestor runs documents through extraction, resolution and qualification,
// one transaction per document.
type Ingestor struct {
	store    internal.TxRunner
	resolver *resolve.Resolver
	settings qualify.Config
	stage    string
	logger   *slog.Logger
	now      func() time.Time
}

func NewIngestor(store internal.TxRunner, settings qualify.Config, logger *slog.Logger) *Ingestor {
	logger = logging.Or(logger)
	return &Ingestor{
		store:    store,
		resolver: resolve.New(logger),
		settings: settings,
		stage:    DefaultStage,
		logger:   logger,
		now:      time.Now,
	}
}

// SetStage overrides the stage given to new opportunities.
func (in *Ingestor) SetStage(stage string) {
	if strings.TrimSpace(stage) != "" {
		in.stage = stage
	}
}

// Run ingests docs in order. A failing document never stops the batch;
// a cancelled ctx stops before the next document.
func (in *Ingestor) Run(ctx context.Context, source string, docs []Document) *ProcessingReport {
	runID := ulid.MustNew(ulid.Timestamp(in.now()), rand.Reader).String()
	report := newReport(runID, source, in.settings, in.now())
	logger := in.logger.With("run_id", runID)

	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("run stopped: %d document(s) not processed: %v", len(docs)-i, err))
			break
		}
		in.ingest(ctx, logger, report, doc)
	}

	report.FinishedAt = in.now()
	logger.Info("ingestion run finished",
		"source", source, "processed", report.Processed, "committed", report.Committed,
		"skipped", report.Skipped, "failed", report.Failed)
	return report
}

type outcome struct {
	state   DocumentState
	reasons []string
	oppID   *int64
}

func (in *Ingestor) ingest(ctx context.Context, logger *slog.Logger, report *ProcessingReport, doc Document) {
	dr := DocumentReport{DocumentID: doc.ID, Path: doc.Path, State: StateExtracted}
	if doc.Err != nil {
		dr.State = StateFailed
		dr.Error = "read document: " + doc.Err.Error()
		logger.Error("document unreadable", "document", doc.ID, "err", doc.Err)
		report.addDocument(dr)
		return
	}

	req := Extract(doc)
	dr.RequestNumber = req.RequestNumber
	dr.NSN = req.NationalStockNumber
	dr.Unresolved = req.Unresolved
	if len(req.Unresolved) > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%s: unresolved fields: %s", doc.ID, strings.Join(req.Unresolved, ", ")))
	}
	verdict := qualify.Qualify(req, in.settings)

	var (
		res resolve.Resolution
		out outcome
	)
	err := in.store.WithinTx(ctx, func(repo internal.Repository) error {
		var err error
		out = outcome{}
		res, err = in.resolver.Resolve(ctx, repo, req)
		if err != nil {
			return err
		}
		out.state = StateResolved

		if !verdict.Eligible {
			out.state, out.reasons = StateSkipped, verdict.Reasons
			return nil
		}
		out.state = StateQualified

		if req.RequestNumber == "" {
			out.state, out.reasons = StateSkipped, []string{"missing request number"}
			return nil
		}
		existing, err := repo.FindOpportunityByRequestNumber(ctx, req.RequestNumber)
		if err != nil {
			return fmt.Errorf("%w: find opportunity %s: %w", resolve.ErrResolution, req.RequestNumber, err)
		}
		if existing != nil {
			out.state = StateSkipped
			out.reasons = []string{fmt.Sprintf("duplicate opportunity: request %s already tracked as opportunity %d", req.RequestNumber, existing.ID)}
			return nil
		}

		id, err := repo.CreateOpportunity(ctx, in.opportunity(req, res))
		if err != nil {
			return fmt.Errorf("%w: create opportunity %s: %w", resolve.ErrResolution, req.RequestNumber, err)
		}
		out.state, out.oppID = StateCommitted, &id
		return nil
	})
	if err != nil {
		dr.State = StateFailed
		dr.Error = err.Error()
		logger.Error("document failed", "document", doc.ID, "request", req.RequestNumber, "err", err)
		report.addDocument(dr)
		return
	}

	for _, e := range res.Events {
		report.addEntity(doc.ID, e.Kind, e.ID, e.Name, e.Created)
	}
	for _, w := range res.Warnings {
		report.Warnings = append(report.Warnings, doc.ID+": "+w)
	}
	if out.oppID != nil {
		report.addEntity(doc.ID, internal.KindOpportunity, *out.oppID, req.RequestNumber, true)
	}

	dr.State, dr.Reasons, dr.OpportunityID = out.state, out.reasons, out.oppID
	logger.Info("document ingested", "document", doc.ID, "request", req.RequestNumber, "state", dr.State)
	report.addDocument(dr)
}

func (in *Ingestor) opportunity(req internal.ParsedRequest, res resolve.Resolution) internal.Opportunity {
	opp := internal.Opportunity{
		RequestNumber:       req.RequestNumber,
		Name:                req.RequestNumber,
		Stage:               in.stage,
		DocumentID:          req.DocumentID,
		AccountID:           res.AccountID,
		ContactID:           res.ContactID,
		ProductID:           res.ProductID,
		NationalStockNumber: req.NationalStockNumber,
		UnitOfIssue:         req.UnitOfIssue,
		FOB:                 req.FOB,
		ISORequired:         req.ISORequired,
		SamplingRequired:    req.SamplingRequired,
		InspectionPoint:     req.InspectionPoint,
		ManufacturerText:    req.ManufacturerText,
		CloseDate:           req.CloseDate,
		PaymentHistory:      req.PaymentHistoryText,
	}
	if req.Quantity != internal.UnknownNumber {
		opp.Quantity = util.IntPtr(req.Quantity)
	}
	if req.DeliveryDays != internal.UnknownNumber {
		opp.DeliveryDays = util.IntPtr(req.DeliveryDays)
	}
	opp.Description = fmt.Sprintf("Created from RFQ %s. Product: %s. Buyer: %s. Email: %s",
		req.RequestNumber,
		util.FirstNonEmpty(req.ProductDescription, "unknown"),
		util.FirstNonEmpty(req.BuyerName, "unknown"),
		util.FirstNonEmpty(req.BuyerEmail, "n/a"))
	return opp
}
