package connectors

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfqcrm/internal"
	"rfqcrm/internal/storage"
)

type stubConnector struct {
	messages []internal.FetchedMailMessage
	label    string
}

func (s *stubConnector) FetchInbox(_ context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	s.label = label
	if len(s.messages) > max {
		return s.messages[:max], nil
	}
	return s.messages, nil
}

func TestFetchAndStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "crm.db"))
	require.NoError(t, err)
	defer db.Close()

	stub := &stubConnector{messages: []internal.FetchedMailMessage{
		{Provider: "imap", MessageID: "<a@dla.mil>", Subject: "RFQ A", ReceivedAt: "2025-05-01T09:00:00Z", Raw: []byte("Subject: RFQ A\r\n\r\nbody a")},
		{Provider: "imap", MessageID: "<b@dla.mil>", Subject: "RFQ B", ReceivedAt: "2025-05-01T10:00:00Z", Raw: []byte("Subject: RFQ B\r\n\r\nbody b")},
	}}
	rawDir := filepath.Join(dir, "raw")
	svc := NewFetchService(db, rawDir, stub, nil)

	res, err := svc.FetchAndStore(ctx, "INBOX", 10)
	require.NoError(t, err)
	assert.Equal(t, FetchResult{Fetched: 2, Stored: 2}, res)
	assert.Equal(t, "INBOX", stub.label)

	pending, err := db.ListEmailsByStatus(ctx, storage.EmailFetched, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	raw, err := os.ReadFile(pending[0].RawRef)
	require.NoError(t, err)
	assert.Equal(t, "Subject: RFQ A\r\n\r\nbody a", string(raw))
	assert.Len(t, pending[0].Hash, 64)

	again, err := svc.FetchAndStore(ctx, "INBOX", 10)
	require.NoError(t, err)
	assert.Equal(t, FetchResult{Fetched: 2, Known: 2}, again, "second fetch stores nothing")
}
