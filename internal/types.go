package internal

import "time"

// UnknownNumber marks an integer field the extractor could not resolve.
const UnknownNumber = -1

// TBD is the part number recorded when a manufacturer line carries no P/N.
const TBD = "TBD"

type FOBTerm string

const (
	FOBUnknown     FOBTerm = "Unknown"
	FOBOrigin      FOBTerm = "Origin"
	FOBDestination FOBTerm = "Destination"
)

type Requirement string

const (
	RequirementUnknown Requirement = "Unknown"
	RequirementYes     Requirement = "Yes"
	RequirementNo      Requirement = "No"
)

type InspectionPoint string

const (
	InspectionUnknown     InspectionPoint = "Unknown"
	InspectionOrigin      InspectionPoint = "Origin"
	InspectionDestination InspectionPoint = "Destination"
)

type AccountType string

const (
	AccountCustomer   AccountType = "Customer"
	AccountVendor     AccountType = "Vendor"
	AccountQPL        AccountType = "QPL"
	AccountCompetitor AccountType = "Competitor"
	AccountProspect   AccountType = "Prospect Customer"
)

// EntityKind names a record family in processing reports.
type EntityKind string

const (
	KindAccount       EntityKind = "account"
	KindContact       EntityKind = "contact"
	KindProduct       EntityKind = "product"
	KindQualification EntityKind = "qualification"
	KindOpportunity   EntityKind = "opportunity"
)

// ParsedRequest is the structured view of one RFQ document. String fields
// are empty and numeric fields are UnknownNumber when extraction failed.
type ParsedRequest struct {
	DocumentID          string
	RequestNumber       string
	PurchaseNumber      string
	NationalStockNumber string
	FederalSupplyClass  string
	Quantity            int
	UnitOfIssue         string
	DeliveryDays        int
	FOB                 FOBTerm
	ISORequired         Requirement
	SamplingRequired    Requirement
	InspectionPoint     InspectionPoint
	ManufacturerText    string
	BuyerName           string
	BuyerCode           string
	BuyerEmail          string
	BuyerPhone          string
	BuyerFax            string
	BuyerOffice         string
	BuyerDivision       string
	BuyerAddress        string
	ProductDescription  string
	Packaging           string
	PackageType         string
	OpenDate            *time.Time
	CloseDate           *time.Time
	PaymentHistoryText  string

	// Unresolved lists the fields no rule matched.
	Unresolved []string
}

type Account struct {
	ID              int64
	Name            string
	Type            AccountType
	ParentAccountID *int64
	CageCode        *string
	Summary         string
	BillingAddress  string
}

// IsDivision reports whether the account hangs under a parent account.
func (a Account) IsDivision() bool {
	return a.ParentAccountID != nil
}

type Contact struct {
	ID         int64
	AccountID  int64
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Fax        string
	BuyerCode  string
	Department string
	Address    string
}

type Product struct {
	ID                  int64
	NationalStockNumber string
	FederalSupplyClass  string
	Name                string
	Description         string
	UnitOfIssue         string
}

// ManufacturerQualification is one QPL entry: a manufacturer approved to
// supply a product under a given part number.
type ManufacturerQualification struct {
	ID               int64
	ProductID        int64
	AccountID        int64
	ManufacturerName string
	CageCode         string
	PartNumber       string
}

type Opportunity struct {
	ID                  int64
	RequestNumber       string
	Name                string
	Stage               string
	Description         string
	DocumentID          string
	AccountID           *int64
	ContactID           *int64
	ProductID           *int64
	NationalStockNumber string
	Quantity            *int
	UnitOfIssue         string
	DeliveryDays        *int
	FOB                 FOBTerm
	ISORequired         Requirement
	SamplingRequired    Requirement
	InspectionPoint     InspectionPoint
	ManufacturerText    string
	CloseDate           *time.Time
	PaymentHistory      string
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
