package resolve

import (
	"regexp"
	"strings"

	"rfqcrm/internal"
	"rfqcrm/internal/util"
)

var manufacturerEntry = regexp.MustCompile(`([A-Z][A-Z\s\-&.,()]+?)\s+([A-Z0-9]{5})\s+P/N\s+([\w\-/]+)`)

// ManufacturerLine is one supplier named in an RFQ's manufacturer text.
type ManufacturerLine struct {
	// Manufacturer is the text before P/N, CAGE code included.
	Manufacturer string
	// AccountName is Manufacturer without a trailing CAGE code.
	AccountName string
	CageCode    string
	PartNumber  string
}

// SplitManufacturer applies the P/N rule: text before the first "P/N" is the
// manufacturer, text after it the part number. Without the marker the whole
// blob is the manufacturer and the part number is TBD.
func SplitManufacturer(blob string) (manufacturer, partNumber string) {
	blob = util.CollapseSpaces(blob)
	before, after, found := strings.Cut(blob, "P/N")
	if !found {
		return blob, internal.TBD
	}
	manufacturer = strings.TrimSpace(before)
	partNumber = strings.Trim(strings.TrimSpace(after), ":")
	partNumber = strings.TrimSpace(partNumber)
	if manufacturer == "" {
		manufacturer = blob
	}
	if partNumber == "" {
		partNumber = internal.TBD
	}
	return manufacturer, partNumber
}

// ParseManufacturerLines turns raw manufacturer text into supplier lines.
// Two or more "NAME CAGE P/N PART" entries are split apart; anything else
// goes through SplitManufacturer as a single line.
func ParseManufacturerLines(blob string) []ManufacturerLine {
	blob = util.CollapseSpaces(blob)
	if blob == "" {
		return nil
	}

	if matches := manufacturerEntry.FindAllStringSubmatch(blob, -1); len(matches) >= 2 && allCageCodes(matches) {
		lines := make([]ManufacturerLine, 0, len(matches))
		for _, m := range matches {
			name := strings.TrimSpace(m[1])
			lines = append(lines, ManufacturerLine{
				Manufacturer: name + " " + m[2],
				AccountName:  name,
				CageCode:     m[2],
				PartNumber:   m[3],
			})
		}
		return lines
	}

	manufacturer, part := SplitManufacturer(blob)
	line := ManufacturerLine{Manufacturer: manufacturer, AccountName: manufacturer, PartNumber: part}
	if idx := strings.LastIndex(manufacturer, " "); idx > 0 {
		if token := manufacturer[idx+1:]; util.LooksLikeCageCode(token) {
			line.CageCode = strings.ToUpper(token)
			line.AccountName = strings.TrimSpace(manufacturer[:idx])
		}
	}
	return []ManufacturerLine{line}
}

// allCageCodes rejects entries whose CAGE slot caught a plain word, such as
// a five-letter name just before P/N.
func allCageCodes(matches [][]string) bool {
	for _, m := range matches {
		if !util.LooksLikeCageCode(m[2]) {
			return false
		}
	}
	return true
}
