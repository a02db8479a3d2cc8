// Package resolve finds or creates the CRM records an RFQ refers to. It only
// ever reads and inserts: existing records are never updated, merged or
// deleted.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"rfqcrm/internal"
	"rfqcrm/internal/logging"
	"rfqcrm/internal/util"
)

// ErrResolution wraps every repository failure met while resolving.
var ErrResolution = errors.New("resolution failure")

// Event records one entity the resolver touched.
type Event struct {
	Kind    internal.EntityKind
	ID      int64
	Name    string
	Created bool
}

type Resolution struct {
	AccountID        *int64
	ContactID        *int64
	ProductID        *int64
	QualificationIDs []int64
	Events           []Event
	// Warnings carries data-quality findings such as combined-name accounts.
	Warnings []string
}

func (r *Resolution) record(kind internal.EntityKind, id int64, name string, created bool) {
	r.Events = append(r.Events, Event{Kind: kind, ID: id, Name: name, Created: created})
}

type Resolver struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Resolver {
	return &Resolver{logger: logging.Or(logger)}
}

// Resolve runs account, contact, product and qualification resolution for
// one request against repo. Any repository error aborts and is returned
// wrapped in ErrResolution; the caller's transaction decides what persists.
func (r *Resolver) Resolve(ctx context.Context, repo internal.Repository, req internal.ParsedRequest) (Resolution, error) {
	var res Resolution

	accountID, err := r.ResolveAccount(ctx, repo, req.BuyerOffice, req.BuyerDivision, req.BuyerAddress, &res)
	if err != nil {
		return res, err
	}
	res.AccountID = accountID

	if accountID != nil {
		if res.ContactID, err = r.resolveContact(ctx, repo, *accountID, req, &res); err != nil {
			return res, err
		}
	}

	if req.NationalStockNumber != "" {
		if res.ProductID, err = r.resolveProduct(ctx, repo, req, &res); err != nil {
			return res, err
		}
	}

	if res.ProductID != nil {
		for _, line := range ParseManufacturerLines(req.ManufacturerText) {
			qid, err := r.resolveQualification(ctx, repo, *res.ProductID, line, &res)
			if err != nil {
				return res, err
			}
			res.QualificationIDs = append(res.QualificationIDs, qid)
		}
	}

	return res, nil
}

func (r *Resolver) resolveContact(ctx context.Context, repo internal.Repository, accountID int64, req internal.ParsedRequest, res *Resolution) (*int64, error) {
	email := util.NormalizeEmail(req.BuyerEmail)
	if email == "" {
		if req.BuyerName != "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("buyer %q has no usable email; contact not linked", req.BuyerName))
		}
		return nil, nil
	}

	existing, err := repo.FindContactByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: find contact %s: %w", ErrResolution, email, err)
	}
	if existing != nil {
		res.record(internal.KindContact, existing.ID, email, false)
		return &existing.ID, nil
	}

	first, last := util.SplitPersonName(req.BuyerName)
	id, err := repo.CreateContact(ctx, internal.Contact{
		AccountID:  accountID,
		FirstName:  first,
		LastName:   last,
		Email:      req.BuyerEmail,
		Phone:      req.BuyerPhone,
		Fax:        req.BuyerFax,
		BuyerCode:  req.BuyerCode,
		Department: req.BuyerDivision,
		Address:    req.BuyerAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create contact %s: %w", ErrResolution, email, err)
	}
	r.logger.Debug("contact created", "id", id, "email", email)
	res.record(internal.KindContact, id, email, true)
	return &id, nil
}

func (r *Resolver) resolveProduct(ctx context.Context, repo internal.Repository, req internal.ParsedRequest, res *Resolution) (*int64, error) {
	existing, err := repo.FindProductByNSN(ctx, req.NationalStockNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: find product %s: %w", ErrResolution, req.NationalStockNumber, err)
	}
	if existing != nil {
		res.record(internal.KindProduct, existing.ID, req.NationalStockNumber, false)
		return &existing.ID, nil
	}

	name := req.ProductDescription
	if name == "" {
		name = "Product " + req.NationalStockNumber
	}
	id, err := repo.CreateProduct(ctx, internal.Product{
		NationalStockNumber: req.NationalStockNumber,
		FederalSupplyClass:  req.FederalSupplyClass,
		Name:                name,
		Description:         req.ProductDescription,
		UnitOfIssue:         req.UnitOfIssue,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create product %s: %w", ErrResolution, req.NationalStockNumber, err)
	}
	r.logger.Debug("product created", "id", id, "nsn", req.NationalStockNumber)
	res.record(internal.KindProduct, id, req.NationalStockNumber, true)
	return &id, nil
}

func (r *Resolver) resolveQualification(ctx context.Context, repo internal.Repository, productID int64, line ManufacturerLine, res *Resolution) (int64, error) {
	vendorID, err := r.resolveManufacturerAccount(ctx, repo, line, res)
	if err != nil {
		return 0, err
	}

	existing, err := repo.FindQualification(ctx, productID, vendorID, line.PartNumber)
	if err != nil {
		return 0, fmt.Errorf("%w: find qualification %s: %w", ErrResolution, line.PartNumber, err)
	}
	label := line.AccountName + " P/N " + line.PartNumber
	if existing != nil {
		res.record(internal.KindQualification, existing.ID, label, false)
		return existing.ID, nil
	}

	id, err := repo.CreateQualification(ctx, internal.ManufacturerQualification{
		ProductID:        productID,
		AccountID:        vendorID,
		ManufacturerName: line.AccountName,
		CageCode:         line.CageCode,
		PartNumber:       line.PartNumber,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: create qualification %s: %w", ErrResolution, label, err)
	}
	res.record(internal.KindQualification, id, label, true)
	return id, nil
}

// resolveManufacturerAccount looks the supplier up by CAGE code, then by
// name. New suppliers with a CAGE code are typed QPL, others Vendor.
func (r *Resolver) resolveManufacturerAccount(ctx context.Context, repo internal.Repository, line ManufacturerLine, res *Resolution) (int64, error) {
	if line.CageCode != "" {
		existing, err := repo.FindAccountByCageCode(ctx, line.CageCode)
		if err != nil {
			return 0, fmt.Errorf("%w: find account by cage %s: %w", ErrResolution, line.CageCode, err)
		}
		if existing != nil {
			res.record(internal.KindAccount, existing.ID, existing.Name, false)
			return existing.ID, nil
		}
	}

	existing, err := repo.FindAccountByNormalizedName(ctx, util.NormalizeName(line.AccountName))
	if err != nil {
		return 0, fmt.Errorf("%w: find account %q: %w", ErrResolution, line.AccountName, err)
	}
	if existing != nil {
		res.record(internal.KindAccount, existing.ID, existing.Name, false)
		return existing.ID, nil
	}

	account := internal.Account{Name: line.AccountName, Type: internal.AccountVendor}
	if line.CageCode != "" {
		account.Type = internal.AccountQPL
		account.CageCode = util.StringPtr(line.CageCode)
		account.Summary = "Qualified manufacturer, CAGE " + line.CageCode
	}
	id, err := repo.CreateAccount(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("%w: create account %q: %w", ErrResolution, line.AccountName, err)
	}
	r.logger.Debug("manufacturer account created", "id", id, "name", line.AccountName, "type", account.Type)
	res.record(internal.KindAccount, id, line.AccountName, true)
	return id, nil
}
