package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfqcrm/internal"
	"rfqcrm/internal/qualify"
	"rfqcrm/internal/storage"
)

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "crm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestIngestCommitsOpportunity(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	in := NewIngestor(db, qualify.DefaultConfig(), nil)

	report := in.Run(ctx, "test", []Document{loadFixture(t, "rfq_form.txt")})
	require.Len(t, report.Documents, 1)
	doc := report.Documents[0]
	require.Equal(t, StateCommitted, doc.State, "reasons=%v error=%s", doc.Reasons, doc.Error)
	require.NotNil(t, doc.OpportunityID)

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Committed)
	assert.Equal(t, 3, report.Created[internal.KindAccount], "office, division, manufacturer")
	assert.Equal(t, 1, report.Created[internal.KindContact])
	assert.Equal(t, 1, report.Created[internal.KindProduct])
	assert.Equal(t, 1, report.Created[internal.KindQualification])
	assert.Equal(t, 1, report.Created[internal.KindOpportunity])
	assert.Len(t, report.CreatedRecords, 7)
	assert.NotEmpty(t, report.RunID)

	opp, err := db.Repository().FindOpportunityByRequestNumber(ctx, "SPE7M125T1234")
	require.NoError(t, err)
	require.NotNil(t, opp)
	assert.Equal(t, *doc.OpportunityID, opp.ID)
	assert.Equal(t, "SPE7M125T1234", opp.Name)
	assert.Equal(t, DefaultStage, opp.Stage)
	require.NotNil(t, opp.Quantity)
	assert.Equal(t, 1250, *opp.Quantity)
	require.NotNil(t, opp.AccountID)
	require.NotNil(t, opp.ContactID)
	require.NotNil(t, opp.ProductID)
	assert.Contains(t, opp.Description, "O-RING")

	account, err := db.Repository().FindAccountByNormalizedName(ctx, "FLUID HANDLING DIVISION")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, account.ID, *opp.AccountID, "opportunity hangs off the division")
}

func TestIngestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	in := NewIngestor(db, qualify.DefaultConfig(), nil)
	doc := loadFixture(t, "rfq_form.txt")

	first := in.Run(ctx, "test", []Document{doc})
	require.Equal(t, 1, first.Committed)
	before, err := db.EntityCounts(ctx)
	require.NoError(t, err)

	second := in.Run(ctx, "test", []Document{doc})
	require.Len(t, second.Documents, 1)
	assert.Equal(t, StateSkipped, second.Documents[0].State)
	require.Len(t, second.Documents[0].Reasons, 1)
	assert.True(t, strings.HasPrefix(second.Documents[0].Reasons[0], "duplicate opportunity"))
	for _, kind := range reportKinds {
		assert.Zero(t, second.Created[kind], "nothing created for %s", kind)
	}
	assert.Equal(t, 3, second.Matched[internal.KindAccount])

	after, err := db.EntityCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestIngestIneligibleKeepsEntities(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	in := NewIngestor(db, qualify.DefaultConfig(), nil)

	doc := loadFixture(t, "rfq_form.txt")
	doc.Text = strings.Replace(doc.Text, "6. DELIVER BY 120", "6. DELIVER BY 30", 1)

	report := in.Run(ctx, "test", []Document{doc})
	require.Len(t, report.Documents, 1)
	assert.Equal(t, StateSkipped, report.Documents[0].State)
	assert.Equal(t, []string{"delivery too short: 30 days (minimum: 120)"}, report.Documents[0].Reasons)
	assert.Nil(t, report.Documents[0].OpportunityID)

	counts, err := db.EntityCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts["accounts"])
	assert.Equal(t, 1, counts["products"])
	assert.Zero(t, counts["opportunities"])
}

func TestIngestFailureIsolation(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	in := NewIngestor(db, qualify.DefaultConfig(), nil)

	broken := Document{ID: "broken.pdf", Err: errors.New("pdf has no extractable text")}
	report := in.Run(ctx, "test", []Document{broken, loadFixture(t, "rfq_form.txt")})

	require.Len(t, report.Documents, 2)
	assert.Equal(t, StateFailed, report.Documents[0].State)
	assert.Contains(t, report.Documents[0].Error, "no extractable text")
	assert.Equal(t, StateCommitted, report.Documents[1].State)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Committed)
	assert.Len(t, report.Errors, 1)
}

type failingStore struct{}

func (failingStore) WithinTx(ctx context.Context, fn func(repo internal.Repository) error) error {
	return fn(brokenRepo{})
}

// brokenRepo fails every call.
type brokenRepo struct{ internal.Repository }

var errBroken = errors.New("disk on fire")

func (brokenRepo) FindAccountByNormalizedName(context.Context, string) (*internal.Account, error) {
	return nil, errBroken
}

func TestIngestResolverErrorFailsDocument(t *testing.T) {
	in := NewIngestor(failingStore{}, qualify.DefaultConfig(), nil)

	report := in.Run(context.Background(), "test", []Document{loadFixture(t, "rfq_form.txt")})
	require.Len(t, report.Documents, 1)
	assert.Equal(t, StateFailed, report.Documents[0].State)
	assert.Contains(t, report.Documents[0].Error, "disk on fire")
	assert.Zero(t, report.Created[internal.KindAccount])
}

func TestIngestStopsOnCancel(t *testing.T) {
	db := openDB(t)
	in := NewIngestor(db, qualify.DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := in.Run(ctx, "test", []Document{loadFixture(t, "rfq_form.txt")})
	assert.Zero(t, report.Processed)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "1 document(s) not processed")
}

func TestIngestMissingRequestNumber(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	in := NewIngestor(db, qualify.DefaultConfig(), nil)

	doc := loadFixture(t, "rfq_form.txt")
	doc.Text = strings.Replace(doc.Text, "1. REQUEST NO. SPE7M125T1234\n", "", 1)
	report := in.Run(ctx, "test", []Document{doc})

	require.Len(t, report.Documents, 1)
	assert.Equal(t, StateSkipped, report.Documents[0].State)
	assert.Equal(t, []string{"missing request number"}, report.Documents[0].Reasons)
	assert.Contains(t, report.Documents[0].Unresolved, FieldRequestNumber)
}
