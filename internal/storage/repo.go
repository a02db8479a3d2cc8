package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"rfqcrm/internal"
	"rfqcrm/internal/util"
)

const dateLayout = "2006-01-02"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// repo implements internal.Repository over a transaction or the pool.
type repo struct {
	q querier
}

type rowScanner interface {
	Scan(dest ...any) error
}

const accountColumns = `id, name, type, parentAccountId, cageCode, summary, billingAddress`

func scanAccount(s rowScanner) (*internal.Account, error) {
	var (
		a        internal.Account
		accType  string
		parentID sql.NullInt64
		cage     sql.NullString
	)
	if err := s.Scan(&a.ID, &a.Name, &accType, &parentID, &cage, &a.Summary, &a.BillingAddress); err != nil {
		return nil, err
	}
	a.Type = internal.AccountType(accType)
	if parentID.Valid {
		a.ParentAccountID = util.Int64Ptr(parentID.Int64)
	}
	if cage.Valid && cage.String != "" {
		a.CageCode = util.StringPtr(cage.String)
	}
	return &a, nil
}

func (r *repo) queryAccount(ctx context.Context, query string, args ...any) (*internal.Account, error) {
	a, err := scanAccount(r.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// FindAccountByNormalizedName prefers a top-level account when a division
// elsewhere shares the name.
func (r *repo) FindAccountByNormalizedName(ctx context.Context, normalizedName string) (*internal.Account, error) {
	return r.queryAccount(ctx, `
SELECT `+accountColumns+` FROM accounts
WHERE nameNorm = ?
ORDER BY parentAccountId IS NOT NULL, id
LIMIT 1`, normalizedName)
}

// FindChildAccount matches a division of parentID whose normalized name
// equals or contains the given text; exact matches win.
func (r *repo) FindChildAccount(ctx context.Context, parentID int64, normalizedNameSubstring string) (*internal.Account, error) {
	if normalizedNameSubstring == "" {
		return nil, nil
	}
	return r.queryAccount(ctx, `
SELECT `+accountColumns+` FROM accounts
WHERE parentAccountId = ? AND (nameNorm = ? OR instr(nameNorm, ?) > 0)
ORDER BY nameNorm = ? DESC, id
LIMIT 1`, parentID, normalizedNameSubstring, normalizedNameSubstring, normalizedNameSubstring)
}

func (r *repo) FindAccountByCageCode(ctx context.Context, cageCode string) (*internal.Account, error) {
	cageCode = strings.ToUpper(strings.TrimSpace(cageCode))
	if cageCode == "" {
		return nil, nil
	}
	return r.queryAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE cageCode = ? ORDER BY id LIMIT 1`, cageCode)
}

func (r *repo) CreateAccount(ctx context.Context, a internal.Account) (int64, error) {
	var cage any
	if a.CageCode != nil && *a.CageCode != "" {
		cage = strings.ToUpper(*a.CageCode)
	}
	res, err := r.q.ExecContext(ctx, `
INSERT INTO accounts (name, nameNorm, type, parentAccountId, cageCode, summary, billingAddress)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, a.Name, util.NormalizeName(a.Name), string(a.Type), a.ParentAccountID, cage, a.Summary, a.BillingAddress)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *repo) FindContactByEmail(ctx context.Context, normalizedEmail string) (*internal.Contact, error) {
	if normalizedEmail == "" {
		return nil, nil
	}
	var (
		c     internal.Contact
		email sql.NullString
	)
	err := r.q.QueryRowContext(ctx, `
SELECT id, accountId, firstName, lastName, email, phone, fax, buyerCode, department, address
FROM contacts WHERE emailNorm = ?
`, normalizedEmail).Scan(&c.ID, &c.AccountID, &c.FirstName, &c.LastName, &email, &c.Phone, &c.Fax, &c.BuyerCode, &c.Department, &c.Address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Email = email.String
	return &c, nil
}

func (r *repo) CreateContact(ctx context.Context, c internal.Contact) (int64, error) {
	var email, emailNorm any
	if norm := util.NormalizeEmail(c.Email); norm != "" {
		email, emailNorm = c.Email, norm
	}
	res, err := r.q.ExecContext(ctx, `
INSERT INTO contacts (accountId, firstName, lastName, email, emailNorm, phone, fax, buyerCode, department, address)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, c.AccountID, c.FirstName, c.LastName, email, emailNorm, c.Phone, c.Fax, c.BuyerCode, c.Department, c.Address)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *repo) FindProductByNSN(ctx context.Context, nsn string) (*internal.Product, error) {
	var p internal.Product
	err := r.q.QueryRowContext(ctx, `
SELECT id, nsn, fsc, name, description, unitOfIssue FROM products WHERE nsn = ? ORDER BY id LIMIT 1
`, nsn).Scan(&p.ID, &p.NationalStockNumber, &p.FederalSupplyClass, &p.Name, &p.Description, &p.UnitOfIssue)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) CreateProduct(ctx context.Context, p internal.Product) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
INSERT INTO products (nsn, fsc, name, description, unitOfIssue) VALUES (?, ?, ?, ?, ?)
`, p.NationalStockNumber, p.FederalSupplyClass, p.Name, p.Description, p.UnitOfIssue)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *repo) FindQualification(ctx context.Context, productID, accountID int64, partNumber string) (*internal.ManufacturerQualification, error) {
	var q internal.ManufacturerQualification
	err := r.q.QueryRowContext(ctx, `
SELECT id, productId, accountId, manufacturerName, cageCode, partNumber
FROM product_manufacturers WHERE productId = ? AND accountId = ? AND partNumber = ?
`, productID, accountID, partNumber).Scan(&q.ID, &q.ProductID, &q.AccountID, &q.ManufacturerName, &q.CageCode, &q.PartNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *repo) CreateQualification(ctx context.Context, q internal.ManufacturerQualification) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
INSERT INTO product_manufacturers (productId, accountId, manufacturerName, cageCode, partNumber)
VALUES (?, ?, ?, ?, ?)
`, q.ProductID, q.AccountID, q.ManufacturerName, strings.ToUpper(q.CageCode), q.PartNumber)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *repo) FindOpportunityByRequestNumber(ctx context.Context, requestNumber string) (*internal.Opportunity, error) {
	var (
		o                        internal.Opportunity
		accountID, contactID     sql.NullInt64
		productID                sql.NullInt64
		quantity, deliveryDays   sql.NullInt64
		fob, iso, sampling, insp string
		closeDate                sql.NullString
	)
	err := r.q.QueryRowContext(ctx, `
SELECT id, requestNumber, name, stage, description, documentId, accountId, contactId, productId,
       nsn, quantity, unitOfIssue, deliveryDays, fob, isoRequired, samplingRequired, inspectionPoint,
       manufacturerText, closeDate, paymentHistory
FROM opportunities WHERE requestNumber = ?
`, requestNumber).Scan(
		&o.ID, &o.RequestNumber, &o.Name, &o.Stage, &o.Description, &o.DocumentID, &accountID, &contactID, &productID,
		&o.NationalStockNumber, &quantity, &o.UnitOfIssue, &deliveryDays, &fob, &iso, &sampling, &insp,
		&o.ManufacturerText, &closeDate, &o.PaymentHistory,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if accountID.Valid {
		o.AccountID = util.Int64Ptr(accountID.Int64)
	}
	if contactID.Valid {
		o.ContactID = util.Int64Ptr(contactID.Int64)
	}
	if productID.Valid {
		o.ProductID = util.Int64Ptr(productID.Int64)
	}
	if quantity.Valid {
		o.Quantity = util.IntPtr(int(quantity.Int64))
	}
	if deliveryDays.Valid {
		o.DeliveryDays = util.IntPtr(int(deliveryDays.Int64))
	}
	o.FOB = internal.FOBTerm(fob)
	o.ISORequired = internal.Requirement(iso)
	o.SamplingRequired = internal.Requirement(sampling)
	o.InspectionPoint = internal.InspectionPoint(insp)
	if closeDate.Valid {
		if t, err := time.Parse(dateLayout, closeDate.String); err == nil {
			o.CloseDate = &t
		}
	}
	return &o, nil
}

func (r *repo) CreateOpportunity(ctx context.Context, o internal.Opportunity) (int64, error) {
	var closeDate any
	if o.CloseDate != nil {
		closeDate = o.CloseDate.Format(dateLayout)
	}
	res, err := r.q.ExecContext(ctx, `
INSERT INTO opportunities (
  requestNumber, name, stage, description, documentId, accountId, contactId, productId,
  nsn, quantity, unitOfIssue, deliveryDays, fob, isoRequired, samplingRequired, inspectionPoint,
  manufacturerText, closeDate, paymentHistory
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, o.RequestNumber, o.Name, o.Stage, o.Description, o.DocumentID, o.AccountID, o.ContactID, o.ProductID,
		o.NationalStockNumber, o.Quantity, o.UnitOfIssue, o.DeliveryDays, string(o.FOB), string(o.ISORequired),
		string(o.SamplingRequired), string(o.InspectionPoint), o.ManufacturerText, closeDate, o.PaymentHistory)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
