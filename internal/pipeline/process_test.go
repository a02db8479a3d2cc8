package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfqcrm/internal"
	"rfqcrm/internal/qualify"
	"rfqcrm/internal/storage"
)

func storeEmail(t *testing.T, db *storage.DB, messageID, subject, body string) internal.EmailRow {
	t.Helper()
	raw := "From: buyer@dla.mil\r\n" +
		"Subject: " + subject + "\r\n" +
		"Message-ID: " + messageID + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" + body
	path := filepath.Join(t.TempDir(), "raw.eml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	row, err := db.UpsertEmail(context.Background(), internal.FetchedMailMessage{
		Provider:   "imap",
		MessageID:  messageID,
		Subject:    subject,
		From:       "buyer@dla.mil",
		ReceivedAt: "2025-05-01T09:00:00Z",
	}, "hash-"+messageID, path)
	require.NoError(t, err)
	return row
}

func TestProcessPending(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	form := loadFixture(t, "rfq_form.txt")

	rfq := storeEmail(t, db, "<rfq-1@dla.mil>", "RFQ SPE7M125T1234", form.Text)
	news := storeEmail(t, db, "<news-1@example.com>", "Weekly update", "nothing to quote here")

	svc := NewProcessingService(db, NewIngestor(db, qualify.DefaultConfig(), nil), nil)
	results, err := svc.ProcessPending(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := map[int]ProcessResult{}
	for _, r := range results {
		byID[r.EmailID] = r
	}

	got := byID[rfq.ID]
	assert.Equal(t, storage.EmailProcessed, got.Status)
	require.NotNil(t, got.Report)
	assert.Equal(t, 1, got.Report.Committed)

	counts, err := db.GetRunCounts(ctx, got.Report.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["committed"])

	assert.Equal(t, storage.EmailSkipped, byID[news.ID].Status)
	assert.Nil(t, byID[news.ID].Report)

	stored, err := db.GetEmailByID(ctx, rfq.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.EmailProcessed, stored.Status)

	again, err := svc.ProcessPending(ctx, 10, "")
	require.NoError(t, err)
	assert.Empty(t, again, "nothing left in fetched state")
}

func TestProcessPendingFiltersProvider(t *testing.T) {
	db := openDB(t)
	storeEmail(t, db, "<x@dla.mil>", "RFQ", "1. REQUEST NO. SPE7M125T1234")

	svc := NewProcessingService(db, NewIngestor(db, qualify.DefaultConfig(), nil), nil)
	results, err := svc.ProcessPending(context.Background(), 10, "gmail")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEmailStatus(t *testing.T) {
	cases := []struct {
		name   string
		report ProcessingReport
		want   string
	}{
		{"nothing processed", ProcessingReport{}, storage.EmailFetched},
		{"all failed", ProcessingReport{Processed: 2, Failed: 2}, storage.EmailFailed},
		{"one committed", ProcessingReport{Processed: 2, Committed: 1, Failed: 1}, storage.EmailProcessed},
		{"skipped only", ProcessingReport{Processed: 1, Skipped: 1}, storage.EmailProcessed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, emailStatus(&tc.report))
		})
	}
}
