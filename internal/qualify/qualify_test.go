package qualify

import (
	"errors"
	"strings"
	"testing"

	"rfqcrm/internal"
)

func eligibleRequest() internal.ParsedRequest {
	return internal.ParsedRequest{
		DeliveryDays:     150,
		ISORequired:      internal.RequirementNo,
		SamplingRequired: internal.RequirementNo,
		InspectionPoint:  internal.InspectionDestination,
		ManufacturerText: "PARKER HANNIFIN CORP 94697 P/N 58532-012",
	}
}

func TestQualifyDefaultConfig(t *testing.T) {
	v := Qualify(eligibleRequest(), DefaultConfig())
	if !v.Eligible || len(v.Reasons) != 0 {
		t.Fatalf("expected eligible, got %+v", v)
	}

	short := eligibleRequest()
	short.DeliveryDays = 90
	v = Qualify(short, DefaultConfig())
	if v.Eligible {
		t.Fatal("expected rejection for 90 delivery days")
	}
	if len(v.Reasons) != 1 || !strings.Contains(v.Reasons[0], "delivery") {
		t.Fatalf("unexpected reasons: %v", v.Reasons)
	}
}

func TestQualifyCollectsEveryFailedRule(t *testing.T) {
	req := internal.ParsedRequest{
		DeliveryDays:     internal.UnknownNumber,
		ISORequired:      internal.RequirementYes,
		SamplingRequired: internal.RequirementUnknown,
		InspectionPoint:  internal.InspectionOrigin,
	}
	cfg := DefaultConfig()
	cfg.PreferredManufacturers = []string{"Parker"}

	v := Qualify(req, cfg)
	if v.Eligible {
		t.Fatal("expected rejection")
	}
	if len(v.Reasons) != 5 {
		t.Fatalf("expected 5 reasons, got %d: %v", len(v.Reasons), v.Reasons)
	}
	if !strings.Contains(v.Reasons[0], "missing delivery days") {
		t.Fatalf("first reason should cite delivery days: %q", v.Reasons[0])
	}
}

func TestQualifyPolicies(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*Config, *internal.ParsedRequest)
		eligible bool
	}{
		{
			name: "any iso accepts yes",
			mutate: func(c *Config, r *internal.ParsedRequest) {
				c.ISOPolicy = PolicyAny
				r.ISORequired = internal.RequirementYes
			},
			eligible: true,
		},
		{
			name: "require yes rejects unknown sampling",
			mutate: func(c *Config, r *internal.ParsedRequest) {
				c.SamplingPolicy = PolicyRequireYes
				r.SamplingRequired = internal.RequirementUnknown
			},
		},
		{
			name: "any inspection accepts origin",
			mutate: func(c *Config, r *internal.ParsedRequest) {
				c.RequiredInspectionPoint = InspectionAny
				r.InspectionPoint = internal.InspectionOrigin
			},
			eligible: true,
		},
		{
			name: "preferred manufacturer matches case-insensitively",
			mutate: func(c *Config, r *internal.ParsedRequest) {
				c.PreferredManufacturers = []string{"parker"}
			},
			eligible: true,
		},
		{
			name: "preferred manufacturer missing",
			mutate: func(c *Config, r *internal.ParsedRequest) {
				c.PreferredManufacturers = []string{"MOOG"}
			},
		},
		{
			name: "delivery days equal to minimum",
			mutate: func(c *Config, r *internal.ParsedRequest) {
				r.DeliveryDays = c.MinDeliveryDays
			},
			eligible: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			req := eligibleRequest()
			tc.mutate(&cfg, &req)
			if got := Qualify(req, cfg); got.Eligible != tc.eligible {
				t.Fatalf("eligible=%v want %v (reasons %v)", got.Eligible, tc.eligible, got.Reasons)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{
		MinDeliveryDays:         60,
		ISOPolicy:               "require_yes",
		SamplingPolicy:          "",
		RequiredInspectionPoint: "origin",
		PreferredManufacturers:  []string{" Parker ", ""},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.ISOPolicy != PolicyRequireYes || cfg.SamplingPolicy != PolicyAny || cfg.RequiredInspectionPoint != InspectionOrigin {
		t.Fatalf("unexpected canonical config: %+v", cfg)
	}
	if len(cfg.PreferredManufacturers) != 1 || cfg.PreferredManufacturers[0] != "Parker" {
		t.Fatalf("unexpected manufacturers: %v", cfg.PreferredManufacturers)
	}

	bad := DefaultConfig()
	bad.ISOPolicy = "SOMETIMES"
	if err := bad.Validate(); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
}
