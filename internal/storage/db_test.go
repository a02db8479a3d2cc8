package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfqcrm/internal"
	"rfqcrm/internal/util"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "crm.db"))
	require.NoError(t, err, "open sqlite")
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestAccountHierarchyLookups(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := db.Repository()

	parentID, err := repo.CreateAccount(ctx, internal.Account{Name: "DLA Land and Maritime", Type: internal.AccountCustomer})
	require.NoError(t, err)
	childID, err := repo.CreateAccount(ctx, internal.Account{Name: "Fluid Handling Division", Type: internal.AccountCustomer, ParentAccountID: &parentID})
	require.NoError(t, err)

	parent, err := repo.FindAccountByNormalizedName(ctx, "DLA LAND AND MARITIME")
	require.NoError(t, err)
	require.NotNil(t, parent)
	assert.Equal(t, parentID, parent.ID)
	assert.Equal(t, "DLA Land and Maritime", parent.Name, "display form is preserved")
	assert.False(t, parent.IsDivision())

	child, err := repo.FindChildAccount(ctx, parentID, "FLUID HANDLING")
	require.NoError(t, err)
	require.NotNil(t, child, "substring match on division name")
	assert.Equal(t, childID, child.ID)
	assert.True(t, child.IsDivision())

	missing, err := repo.FindChildAccount(ctx, parentID, "")
	require.NoError(t, err)
	assert.Nil(t, missing, "empty division never matches")

	_, err = repo.CreateAccount(ctx, internal.Account{Name: "fluid  handling division", Type: internal.AccountCustomer, ParentAccountID: &parentID})
	assert.Error(t, err, "same normalized name under same parent violates uniqueness")

	_, err = repo.CreateAccount(ctx, internal.Account{Name: "Fluid Handling Division", Type: internal.AccountCustomer})
	assert.NoError(t, err, "same name at top level is a different key")
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	err := db.WithinTx(ctx, func(repo internal.Repository) error {
		if _, err := repo.CreateProduct(ctx, internal.Product{NationalStockNumber: "5331011267254"}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	p, err := db.Repository().FindProductByNSN(ctx, "5331011267254")
	require.NoError(t, err)
	assert.Nil(t, p, "product insert must be rolled back")

	err = db.WithinTx(ctx, func(repo internal.Repository) error {
		_, err := repo.CreateProduct(ctx, internal.Product{NationalStockNumber: "5331011267254"})
		return err
	})
	require.NoError(t, err)
	counts, err := db.EntityCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["products"])
}

func TestOpportunityRoundTripAndUniqueness(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := db.Repository()

	closeDate := time.Date(2025, time.March, 14, 0, 0, 0, 0, time.UTC)
	opp := internal.Opportunity{
		RequestNumber:    "SPE7M125T0001",
		Name:             "SPE7M125T0001 - O-RING",
		Stage:            "Prospecting",
		Quantity:         util.IntPtr(25),
		DeliveryDays:     util.IntPtr(150),
		FOB:              internal.FOBDestination,
		ISORequired:      internal.RequirementNo,
		SamplingRequired: internal.RequirementNo,
		InspectionPoint:  internal.InspectionDestination,
		CloseDate:        &closeDate,
	}
	id, err := repo.CreateOpportunity(ctx, opp)
	require.NoError(t, err)

	got, err := repo.FindOpportunityByRequestNumber(ctx, "SPE7M125T0001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Nil(t, got.AccountID)
	require.NotNil(t, got.Quantity)
	assert.Equal(t, 25, *got.Quantity)
	require.NotNil(t, got.CloseDate)
	assert.True(t, closeDate.Equal(*got.CloseDate))
	assert.Equal(t, internal.InspectionDestination, got.InspectionPoint)

	_, err = repo.CreateOpportunity(ctx, opp)
	assert.Error(t, err, "request number is unique")
}

func TestQualificationUniqueKey(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := db.Repository()

	productID, err := repo.CreateProduct(ctx, internal.Product{NationalStockNumber: "5331011267254"})
	require.NoError(t, err)
	accountID, err := repo.CreateAccount(ctx, internal.Account{Name: "MOOG INC", Type: internal.AccountQPL, CageCode: util.StringPtr("94697")})
	require.NoError(t, err)

	q := internal.ManufacturerQualification{ProductID: productID, AccountID: accountID, ManufacturerName: "MOOG INC", CageCode: "94697", PartNumber: "58532-012"}
	_, err = repo.CreateQualification(ctx, q)
	require.NoError(t, err)
	_, err = repo.CreateQualification(ctx, q)
	assert.Error(t, err, "(product, account, part) is unique")

	found, err := repo.FindQualification(ctx, productID, accountID, "58532-012")
	require.NoError(t, err)
	require.NotNil(t, found)

	byCage, err := repo.FindAccountByCageCode(ctx, "94697")
	require.NoError(t, err)
	require.NotNil(t, byCage)
	assert.Equal(t, accountID, byCage.ID)
}

func TestReclassifyQPLVendors(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := db.Repository()

	productID, err := repo.CreateProduct(ctx, internal.Product{NationalStockNumber: "5330001234567"})
	require.NoError(t, err)
	vendorWithQPL, err := repo.CreateAccount(ctx, internal.Account{Name: "PARKER HANNIFIN", Type: internal.AccountVendor})
	require.NoError(t, err)
	_, err = repo.CreateAccount(ctx, internal.Account{Name: "PLAIN VENDOR", Type: internal.AccountVendor})
	require.NoError(t, err)
	_, err = repo.CreateQualification(ctx, internal.ManufacturerQualification{ProductID: productID, AccountID: vendorWithQPL, PartNumber: "TBD"})
	require.NoError(t, err)

	changed, err := db.ReclassifyQPLVendors(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	accounts, err := db.ListAccounts(ctx)
	require.NoError(t, err)
	types := map[string]internal.AccountType{}
	for _, a := range accounts {
		types[a.Name] = a.Type
	}
	assert.Equal(t, internal.AccountQPL, types["PARKER HANNIFIN"])
	assert.Equal(t, internal.AccountVendor, types["PLAIN VENDOR"])

	stamp, err := db.GetMetadata(ctx, MetaLastQPLReclassify)
	require.NoError(t, err)
	assert.NotNil(t, stamp, "reclassification time is recorded")
}

func TestEmailStatusFlow(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	msg := internal.FetchedMailMessage{Provider: "imap", MessageID: "INBOX:42", Subject: "RFQ SPE7M1", From: "buyer@dla.mil", ReceivedAt: "2025-03-01T10:00:00Z"}
	row, err := db.UpsertEmail(ctx, msg, "abc", "/raw/abc.eml")
	require.NoError(t, err)
	assert.Equal(t, EmailFetched, row.Status)

	require.NoError(t, db.UpdateEmailStatus(ctx, row.ID, EmailProcessed))

	again, err := db.UpsertEmail(ctx, msg, "abc", "/raw/abc.eml")
	require.NoError(t, err)
	assert.Equal(t, row.ID, again.ID)
	assert.Equal(t, EmailProcessed, again.Status, "re-fetch keeps status")

	pending, err := db.ListEmailsByStatus(ctx, EmailFetched, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunsAndMetadata(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	now := time.Now()
	require.NoError(t, db.InsertRun(ctx, "01HZZZ", "dir", now, now, map[string]int{"committed": 2}))
	counts, err := db.GetRunCounts(ctx, "01HZZZ")
	require.NoError(t, err)
	assert.Equal(t, 2, counts["committed"])

	missing, err := db.GetRunCounts(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, db.SetMetadata(ctx, "k", "v1"))
	require.NoError(t, db.SetMetadata(ctx, "k", "v2"))
	v, err := db.GetMetadata(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "v2", *v)
}
