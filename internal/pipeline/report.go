package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"rfqcrm/internal"
	"rfqcrm/internal/qualify"
)

// DocumentState is where a document ended up in the ingestion state machine.
type DocumentState string

const (
	StateExtracted DocumentState = "Extracted"
	StateResolved  DocumentState = "Resolved"
	StateQualified DocumentState = "Qualified"
	StateCommitted DocumentState = "Committed"
	StateSkipped   DocumentState = "Skipped"
	StateFailed    DocumentState = "Failed"
)

type DocumentReport struct {
	DocumentID    string
	Path          string
	RequestNumber string
	NSN           string
	State         DocumentState
	Reasons       []string
	Error         string
	OpportunityID *int64
	Unresolved    []string
}

type CreatedRecord struct {
	Kind       internal.EntityKind
	ID         int64
	Name       string
	DocumentID string
}

// ProcessingReport is the outcome of one ingestion run.
type ProcessingReport struct {
	RunID      string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	Settings   qualify.Config

	Created map[internal.EntityKind]int
	Matched map[internal.EntityKind]int

	Processed int
	Committed int
	Skipped   int
	Failed    int

	Documents      []DocumentReport
	CreatedRecords []CreatedRecord
	Warnings       []string
	Errors         []string
}

func newReport(runID, source string, settings qualify.Config, now time.Time) *ProcessingReport {
	return &ProcessingReport{
		RunID:     runID,
		Source:    source,
		StartedAt: now,
		Settings:  settings,
		Created:   map[internal.EntityKind]int{},
		Matched:   map[internal.EntityKind]int{},
	}
}

func (r *ProcessingReport) addDocument(d DocumentReport) {
	r.Processed++
	switch d.State {
	case StateCommitted:
		r.Committed++
	case StateSkipped:
		r.Skipped++
	case StateFailed:
		r.Failed++
		r.Errors = append(r.Errors, fmt.Sprintf("%s: %s", d.DocumentID, d.Error))
	}
	r.Documents = append(r.Documents, d)
}

func (r *ProcessingReport) addEntity(documentID string, kind internal.EntityKind, id int64, name string, created bool) {
	if !created {
		r.Matched[kind]++
		return
	}
	r.Created[kind]++
	r.CreatedRecords = append(r.CreatedRecords, CreatedRecord{Kind: kind, ID: id, Name: name, DocumentID: documentID})
}

// Counts flattens the counters for persistence.
func (r *ProcessingReport) Counts() map[string]int {
	out := map[string]int{
		"processed": r.Processed,
		"committed": r.Committed,
		"skipped":   r.Skipped,
		"failed":    r.Failed,
		"warnings":  len(r.Warnings),
	}
	for kind, n := range r.Created {
		out["created."+string(kind)] = n
	}
	for kind, n := range r.Matched {
		out["matched."+string(kind)] = n
	}
	return out
}

var reportKinds = []internal.EntityKind{
	internal.KindAccount, internal.KindContact, internal.KindProduct, internal.KindQualification, internal.KindOpportunity,
}

// Summary renders the run for terminal output.
func (r *ProcessingReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s (%s) %s\n", r.RunID, r.Source, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(&b, "documents: processed=%d committed=%d skipped=%d failed=%d\n", r.Processed, r.Committed, r.Skipped, r.Failed)
	for _, kind := range reportKinds {
		fmt.Fprintf(&b, "  %-13s created=%d matched=%d\n", kind, r.Created[kind], r.Matched[kind])
	}

	docs := append([]DocumentReport(nil), r.Documents...)
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].State < docs[j].State })
	for _, d := range docs {
		label := d.DocumentID
		if d.RequestNumber != "" {
			label += " [" + d.RequestNumber + "]"
		}
		switch {
		case d.OpportunityID != nil:
			fmt.Fprintf(&b, "- %s %s opportunity=%d\n", d.State, label, *d.OpportunityID)
		case d.Error != "":
			fmt.Fprintf(&b, "- %s %s error=%s\n", d.State, label, d.Error)
		default:
			fmt.Fprintf(&b, "- %s %s %s\n", d.State, label, strings.Join(d.Reasons, "; "))
		}
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	return b.String()
}
