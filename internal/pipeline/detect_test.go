package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectRFQ(t *testing.T) {
	tests := []struct {
		name        string
		subject     string
		text        string
		attachments []string
		want        bool
	}{
		{name: "form body", text: "1. REQUEST NO. SPE7M125T1234", want: true},
		{name: "subject and pdf", subject: "DIBBS RFQ SPE7M125T1234", attachments: []string{"SPE7M125T1234.PDF"}, want: true},
		{name: "keywords only in body", subject: "hello", text: "see the solicitation for this nsn", want: false},
		{name: "newsletter", subject: "Weekly update", text: "nothing to see", attachments: []string{"logo.png"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectRFQ(tt.subject, tt.text, tt.attachments)
			assert.Equal(t, tt.want, got.IsRFQ, "score %.2f", got.Score)
			assert.LessOrEqual(t, got.Score, 1.0)
		})
	}
}
