package internal

import "context"

// Repository is the lookup/create surface the entity resolver and the
// ingestion orchestrator work against. Every call runs inside the
// transaction the repository was obtained from. Find methods return
// (nil, nil) when nothing matches. Names passed to account lookups are
// already normalized.
type Repository interface {
	FindAccountByNormalizedName(ctx context.Context, normalizedName string) (*Account, error)
	FindChildAccount(ctx context.Context, parentID int64, normalizedNameSubstring string) (*Account, error)
	FindAccountByCageCode(ctx context.Context, cageCode string) (*Account, error)
	CreateAccount(ctx context.Context, account Account) (int64, error)

	FindContactByEmail(ctx context.Context, normalizedEmail string) (*Contact, error)
	CreateContact(ctx context.Context, contact Contact) (int64, error)

	FindProductByNSN(ctx context.Context, nsn string) (*Product, error)
	CreateProduct(ctx context.Context, product Product) (int64, error)

	FindQualification(ctx context.Context, productID, accountID int64, partNumber string) (*ManufacturerQualification, error)
	CreateQualification(ctx context.Context, q ManufacturerQualification) (int64, error)

	FindOpportunityByRequestNumber(ctx context.Context, requestNumber string) (*Opportunity, error)
	CreateOpportunity(ctx context.Context, opp Opportunity) (int64, error)
}

// TxRunner hands out a Repository bound to one transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(repo Repository) error) error
}
