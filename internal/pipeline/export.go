package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	documentsSheet = "documents"
	createdSheet   = "created"
	summarySheet   = "summary"
)

// ExportReportToXLSX writes the run report as a workbook with one sheet per
// view: run summary, per-document outcome, created records.
func ExportReportToXLSX(report *ProcessingReport, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return err
	}
	summary := [][]any{
		{"run_id", report.RunID},
		{"source", report.Source},
		{"started_at", report.StartedAt.Format("2006-01-02 15:04:05")},
		{"finished_at", report.FinishedAt.Format("2006-01-02 15:04:05")},
		{"processed", report.Processed},
		{"committed", report.Committed},
		{"skipped", report.Skipped},
		{"failed", report.Failed},
		{"min_delivery_days", report.Settings.MinDeliveryDays},
		{"iso_policy", string(report.Settings.ISOPolicy)},
		{"sampling_policy", string(report.Settings.SamplingPolicy)},
		{"inspection_point", string(report.Settings.RequiredInspectionPoint)},
		{"preferred_manufacturers", strings.Join(report.Settings.PreferredManufacturers, ", ")},
	}
	for _, kind := range reportKinds {
		summary = append(summary,
			[]any{"created." + string(kind), report.Created[kind]},
			[]any{"matched." + string(kind), report.Matched[kind]})
	}
	for _, w := range report.Warnings {
		summary = append(summary, []any{"warning", w})
	}
	if err := writeRows(f, summarySheet, nil, summary); err != nil {
		return err
	}

	if _, err := f.NewSheet(documentsSheet); err != nil {
		return err
	}
	docRows := make([][]any, 0, len(report.Documents))
	for _, d := range report.Documents {
		var oppID any = ""
		if d.OpportunityID != nil {
			oppID = *d.OpportunityID
		}
		docRows = append(docRows, []any{
			d.DocumentID, d.RequestNumber, d.NSN, string(d.State), oppID,
			strings.Join(d.Reasons, "; "), d.Error, strings.Join(d.Unresolved, ", "),
		})
	}
	if err := writeRows(f, documentsSheet,
		[]string{"document_id", "request_number", "nsn", "state", "opportunity_id", "reasons", "error", "unresolved_fields"},
		docRows); err != nil {
		return err
	}

	if _, err := f.NewSheet(createdSheet); err != nil {
		return err
	}
	createdRows := make([][]any, 0, len(report.CreatedRecords))
	for _, c := range report.CreatedRecords {
		createdRows = append(createdRows, []any{string(c.Kind), c.ID, c.Name, c.DocumentID})
	}
	if err := writeRows(f, createdSheet, []string{"kind", "id", "name", "document_id"}, createdRows); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func writeRows(f *excelize.File, sheet string, headers []string, rows [][]any) error {
	r := 1
	if len(headers) > 0 {
		for i, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, r)
			if err := f.SetCellValue(sheet, cell, h); err != nil {
				return err
			}
		}
		r++
	}
	for _, row := range rows {
		for i, v := range row {
			cell, _ := excelize.CoordinatesToCellName(i+1, r)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
		r++
	}
	return nil
}
