package pipeline

import (
	"regexp"
	"strings"
)

type DetectResult struct {
	IsRFQ  bool
	Score  float64
	Reason string
}

var (
	detectKeywords = []string{"rfq", "request for quot", "solicitation", "dibbs", "quote", "bid", "nsn", "dla"}
	solicitationNo = regexp.MustCompile(`(?i)\bSP[A-Z0-9]{4}\d{2}[A-Z]\d{3,4}\b`)
)

// DetectRFQ scores a fetched email for being a quote request. A body that
// carries the RFQ form label is accepted outright.
func DetectRFQ(subject, text string, attachmentNames []string) DetectResult {
	if rfqFormAnchor.MatchString(text) {
		return DetectResult{IsRFQ: true, Score: 1, Reason: "rfq_form_body"}
	}
	subject = strings.ToLower(subject)
	lowerText := strings.ToLower(text)

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
		if strings.Contains(lowerText, kw) {
			score += 0.1
		}
	}

	if solicitationNo.MatchString(subject) || solicitationNo.MatchString(text) {
		score += 0.3
	}

	for _, name := range attachmentNames {
		if strings.HasSuffix(strings.ToLower(name), ".pdf") {
			score += 0.25
			break
		}
	}
	if score > 1 {
		score = 1
	}

	isRFQ := score >= 0.45
	reason := "rules_negative"
	if isRFQ {
		reason = "rules_positive"
	}
	return DetectResult{IsRFQ: isRFQ, Score: score, Reason: reason}
}
