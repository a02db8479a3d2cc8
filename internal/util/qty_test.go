package util

import "testing"

func TestParseWholeNumber(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		want   int
		wantOK bool
	}{
		{name: "plain", input: "150", want: 150, wantOK: true},
		{name: "thousands comma", input: "1,000", want: 1000, wantOK: true},
		{name: "decimal", input: "00012.000", want: 12, wantOK: true},
		{name: "rounded", input: "2.6", want: 3, wantOK: true},
		{name: "embedded", input: "DELIVER IN 120 DAYS", want: 120, wantOK: true},
		{name: "missing", input: "N/A", want: -1, wantOK: false},
		{name: "empty", input: "", want: -1, wantOK: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseWholeNumber(tc.input)
			if ok != tc.wantOK {
				t.Fatalf("ok=%v want %v", ok, tc.wantOK)
			}
			if got != tc.want {
				t.Fatalf("got %d want %d", got, tc.want)
			}
		})
	}
}

func TestParseNumberCost(t *testing.T) {
	got, ok := ParseNumber("125.50")
	if !ok || got != 125.5 {
		t.Fatalf("got %v ok=%v", got, ok)
	}
	got, ok = ParseNumber("12,5")
	if !ok || got != 12.5 {
		t.Fatalf("decimal comma: got %v ok=%v", got, ok)
	}
}
