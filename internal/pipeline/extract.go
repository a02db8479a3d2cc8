package pipeline

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"rfqcrm/internal"
	"rfqcrm/internal/util"
)

// Field names reported in ParsedRequest.Unresolved.
const (
	FieldRequestNumber   = "request_number"
	FieldPurchaseNumber  = "purchase_number"
	FieldNSN             = "national_stock_number"
	FieldQuantity        = "quantity"
	FieldUnitOfIssue     = "unit_of_issue"
	FieldDeliveryDays    = "delivery_days"
	FieldFOB             = "fob_term"
	FieldISO             = "iso_required"
	FieldSampling        = "sampling_required"
	FieldInspectionPoint = "inspection_point"
	FieldManufacturer    = "manufacturer_text"
	FieldBuyer           = "buyer"
	FieldBuyerEmail      = "buyer_email"
	FieldDescription     = "product_description"
	FieldPackaging       = "packaging"
	FieldPackageType     = "package_type"
	FieldBidDates        = "bid_dates"
	FieldPaymentHistory  = "payment_history"
)

var (
	requestRules = []rule{
		rx(`1\.\s*REQUEST NO\.\s*(\S+)`),
		rx(`(?i)REQUEST\s+(?:NO|NUMBER)\.?:?\s*(SP[A-Z0-9]{11,})`),
	}
	purchaseRules = []rule{
		rx(`3\.\s*REQUISITION/PURCHASE REQUEST NO\.\s*(\S+)`),
	}
	nsnPairPattern     = regexp.MustCompile(`NSN/FSC:\s*(\d+)/(\d+)`)
	nsnMaterialPattern = regexp.MustCompile(`NSN/MATERIAL:\s*(\d+)`)
	nsnClassPrefixes   = []string{"5331", "5330"}

	deliveryRules = []rule{
		// An optional date token may sit between the label and the days.
		rx(`6\.\s*DELIVER BY\s*(?:\S+\s+)??(\d+)\b`),
		rx(`(?i)DELIVERY\s*(?:DAYS)?\s*:\s*(\d+)`),
		rx(`(?i)\b(\d+)\s+DAYS\s+(?:ADO|ARO|AFTER)`),
	}
	quantityRules = []rule{
		columnRule{header: regexp.MustCompile(`\bUI\b.*\bQUANTITY\b`), column: "QUANTITY"},
		rx(`(?i)QUANTITY\s*:\s*([\d,]+(?:\.\d+)?)`),
	}
	unitRules = []rule{
		columnRule{header: regexp.MustCompile(`\bUI\b.*\bQUANTITY\b`), column: "UI"},
		rx(`(?i)UNIT OF ISSUE\s*:\s*([A-Z]{2})\b`),
	}
	fobRules        = []rule{rx(`FOB:\s*(\w+)`), rx(`(?i)F\.O\.B\.?\s*:?\s*(ORIGIN|DESTINATION)`)}
	inspectionRules = []rule{rx(`INSPECTION\s*POINT:\s*(\w+)`), rx(`(?i)INSPECTION\s+AT\s+(ORIGIN|DESTINATION)`)}
	isoRules        = []rule{presenceRule{re: regexp.MustCompile(`\bISO\b`), value: "YES"}}
	samplingRules   = []rule{presenceRule{re: regexp.MustCompile(`\bSAMPLING\b`), value: "YES"}}

	manufacturerRules = []rule{
		linePrefixRule{sep: " ", prefixes: []linePrefix{
			{prefix: "IAW BASIC SPEC NR"},
			{prefix: "IAW REFERENCE SPEC NR"},
			{prefix: "REVISION NR", contains: "DTD"},
			{prefix: "PART PIECE NUMBER:"},
		}},
		allMatchesRule{re: regexp.MustCompile(`(?m)^(.+?\s+\w{5}\s+P/N\s+.+)$`), sep: "\n"},
	}
	descriptionRules = []rule{rx(`ITEM\s*DESCRIPTION \s*(.*)`), rx(`(?i)NOMENCLATURE\s*:\s*(.+)`)}
	packagingRules   = []rule{rx(`(?s)PKGING DATA - (.+?)(?:\n\s*\n|\z)`)}
	packageTypeRules = []rule{
		presenceRule{re: regexp.MustCompile(`ASTM`), value: "ASTM"},
		rx(`(MIL-STD-\S*)`),
	}

	buyerBlockRules = []rule{
		blockRule{anchor: regexp.MustCompile(`(?i)^DLA\b`), follow: 4, pick: pickBuyerBlock},
		blockRule{anchor: regexp.MustCompile(`(?i)^DLA\b`), follow: 0, pick: func(b []string) (string, bool) { return b[0], true }},
	}
	buyerNameRules  = []rule{rx(`Name:\s*(.+?)\s+Buyer\s*Code:`), rx(`(?m)^Name:\s*(.+)$`)}
	buyerCodeRules  = []rule{rx(`Buyer\s*Code:\s*(\w+)`)}
	buyerPhoneRules = []rule{rx(`Tel:\s*(.+?)\s+(?:Fax:|Email:)`), rx(`Tel:\s*(\S+)`)}
	buyerFaxRules   = []rule{rx(`Fax:\s*([\d-]+)`)}
	buyerEmailRules = []rule{rx(`Email:\s*(\S+@\S+)`), rx(`(?i)([\w.+-]+@dla\.mil)\b`)}

	bidDatePattern = regexp.MustCompile(`(\d{4})\s+([A-Za-z]{3})\s+(\d{1,2})\b`)

	paymentHistoryRules = []rule{tableRule{
		header: regexp.MustCompile(`CAGE\s+Contract Number\s+Quantity\s+Unit Cost\s+AWD Date`),
		skip:   2,
		row:    paymentRow,
		sep:    "\n",
	}}

	// The request-number form label. Its presence means the form is a
	// complete RFQ, so missing ISO/sampling clauses mean "not required".
	rfqFormAnchor = regexp.MustCompile(`REQUEST NO\.`)
)

// buyerBlock separates office, division and address inside a block value.
const buyerBlockSep = "\x1f"

func pickBuyerBlock(block []string) (string, bool) {
	if !strings.EqualFold(block[4], "USA") {
		return "", false
	}
	return strings.Join([]string{block[0], block[1], block[2] + " " + block[3]}, buyerBlockSep), true
}

func paymentRow(fields []string) (string, bool) {
	if len(fields) < 5 {
		return "", false
	}
	qty, err := strconv.ParseFloat(strings.ReplaceAll(fields[2], ",", ""), 64)
	if err != nil {
		return "", false
	}
	cost, err := strconv.ParseFloat(strings.ReplaceAll(fields[3], ",", ""), 64)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%d@ $%.2f on %s", int(math.Round(qty)), cost, fields[4]), true
}

// Extract turns a document's raw text into a ParsedRequest. It never fails:
// each field is extracted on its own, and a field that matches no rule (or
// whose rule panics) is left at its unknown value and listed in Unresolved.
func Extract(doc Document) internal.ParsedRequest {
	src := newSourceText(doc.Text)
	req := internal.ParsedRequest{
		DocumentID:       doc.ID,
		Quantity:         internal.UnknownNumber,
		DeliveryDays:     internal.UnknownNumber,
		FOB:              internal.FOBUnknown,
		ISORequired:      internal.RequirementUnknown,
		SamplingRequired: internal.RequirementUnknown,
		InspectionPoint:  internal.InspectionUnknown,
	}
	isForm := rfqFormAnchor.MatchString(src.text)

	field := func(name string, fn func() bool) {
		ok := false
		func() {
			defer func() {
				if recover() != nil {
					ok = false
				}
			}()
			ok = fn()
		}()
		if !ok {
			req.Unresolved = append(req.Unresolved, name)
		}
	}
	text := func(dst *string, rules []rule) func() bool {
		return func() bool {
			v, ok := firstMatch(src, rules...)
			if ok {
				*dst = v
			}
			return ok
		}
	}

	field(FieldRequestNumber, text(&req.RequestNumber, requestRules))
	field(FieldPurchaseNumber, text(&req.PurchaseNumber, purchaseRules))
	field(FieldNSN, func() bool {
		req.NationalStockNumber, req.FederalSupplyClass = extractNSN(src.text)
		return req.NationalStockNumber != ""
	})
	field(FieldQuantity, func() bool {
		v, ok := firstMatch(src, quantityRules...)
		if !ok {
			return false
		}
		req.Quantity, ok = util.ParseWholeNumber(v)
		return ok
	})
	field(FieldUnitOfIssue, func() bool {
		v, ok := firstMatch(src, unitRules...)
		req.UnitOfIssue = strings.ToUpper(v)
		return ok
	})
	field(FieldDeliveryDays, func() bool {
		v, ok := firstMatch(src, deliveryRules...)
		if !ok {
			return false
		}
		req.DeliveryDays, ok = util.ParseWholeNumber(v)
		return ok
	})
	field(FieldFOB, func() bool {
		v, _ := firstMatch(src, fobRules...)
		req.FOB = internal.FOBTerm(mapLocation(v, string(internal.FOBUnknown)))
		return req.FOB != internal.FOBUnknown
	})
	field(FieldInspectionPoint, func() bool {
		v, _ := firstMatch(src, inspectionRules...)
		req.InspectionPoint = internal.InspectionPoint(mapLocation(v, string(internal.InspectionUnknown)))
		return req.InspectionPoint != internal.InspectionUnknown
	})
	field(FieldISO, func() bool {
		req.ISORequired = requirement(src, isoRules, isForm)
		return req.ISORequired != internal.RequirementUnknown
	})
	field(FieldSampling, func() bool {
		req.SamplingRequired = requirement(src, samplingRules, isForm)
		return req.SamplingRequired != internal.RequirementUnknown
	})
	field(FieldManufacturer, text(&req.ManufacturerText, manufacturerRules))
	field(FieldBuyer, func() bool {
		v, ok := firstMatch(src, buyerBlockRules...)
		if !ok {
			return false
		}
		parts := strings.Split(v, buyerBlockSep)
		req.BuyerOffice = parts[0]
		if len(parts) == 3 {
			req.BuyerDivision = parts[1]
			req.BuyerAddress = util.CollapseSpaces(parts[2])
		}
		return true
	})
	field(FieldBuyerEmail, text(&req.BuyerEmail, buyerEmailRules))
	// Secondary buyer details are best-effort and not reported individually.
	text(&req.BuyerName, buyerNameRules)()
	text(&req.BuyerCode, buyerCodeRules)()
	text(&req.BuyerPhone, buyerPhoneRules)()
	text(&req.BuyerFax, buyerFaxRules)()

	field(FieldDescription, text(&req.ProductDescription, descriptionRules))
	field(FieldPackaging, func() bool {
		v, ok := firstMatch(src, packagingRules...)
		req.Packaging = util.CollapseSpaces(v)
		return ok
	})
	field(FieldPackageType, func() bool {
		v, ok := firstMatch(src, packageTypeRules...)
		req.PackageType = strings.ReplaceAll(v, ",", "")
		return ok
	})
	field(FieldBidDates, func() bool {
		req.OpenDate, req.CloseDate = extractBidDates(src.text)
		return req.CloseDate != nil
	})
	field(FieldPaymentHistory, text(&req.PaymentHistoryText, paymentHistoryRules))

	return req
}

// extractNSN prefers the NSN/FSC pair (FSC digits first, then the rest);
// otherwise NSN/MATERIAL digits get the class prefix unless they carry one.
func extractNSN(text string) (nsn, fsc string) {
	if m := nsnPairPattern.FindStringSubmatch(text); m != nil {
		return m[2] + m[1], m[2]
	}
	if m := nsnMaterialPattern.FindStringSubmatch(text); m != nil {
		digits := m[1]
		for _, prefix := range nsnClassPrefixes {
			if strings.HasPrefix(digits, prefix) {
				return digits, prefix
			}
		}
		return nsnClassPrefixes[0] + digits, nsnClassPrefixes[0]
	}
	return "", ""
}

func requirement(src *sourceText, rules []rule, isForm bool) internal.Requirement {
	v, ok := firstMatch(src, rules...)
	if ok {
		switch strings.ToUpper(v) {
		case "YES", "Y", "REQUIRED":
			return internal.RequirementYes
		case "NO", "N":
			return internal.RequirementNo
		}
		return internal.RequirementUnknown
	}
	if isForm {
		return internal.RequirementNo
	}
	return internal.RequirementUnknown
}

// mapLocation maps ORIGIN/DESTINATION tokens; anything else is unknown.
func mapLocation(token, unknown string) string {
	switch strings.ToUpper(strings.TrimSpace(token)) {
	case "ORIGIN", "O":
		return "Origin"
	case "DESTINATION", "DEST", "D":
		return "Destination"
	}
	return unknown
}

// extractBidDates reads "YYYY MON DD" dates: the first is the open date,
// the second the close date.
func extractBidDates(text string) (open, closing *time.Time) {
	var dates []time.Time
	for _, m := range bidDatePattern.FindAllStringSubmatch(text, -1) {
		month := strings.ToUpper(m[2][:1]) + strings.ToLower(m[2][1:])
		t, err := time.Parse("2006 Jan 2", m[1]+" "+month+" "+m[3])
		if err != nil {
			continue
		}
		dates = append(dates, t)
		if len(dates) == 2 {
			break
		}
	}
	if len(dates) > 0 {
		open = &dates[0]
	}
	if len(dates) > 1 {
		closing = &dates[1]
	}
	return open, closing
}
