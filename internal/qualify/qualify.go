// Package qualify decides whether an extracted request may become an
// opportunity. Everything here is pure: no I/O, no clock.
package qualify

import (
	"errors"
	"fmt"
	"strings"

	"rfqcrm/internal"
)

var ErrInvalidPolicy = errors.New("invalid qualification policy")

// Policy is the filter applied to a Yes/No requirement field.
type Policy string

const (
	PolicyAny        Policy = "ANY"
	PolicyRequireYes Policy = "REQUIRE_YES"
	PolicyRequireNo  Policy = "REQUIRE_NO"
)

// InspectionPolicy is the filter applied to the inspection point.
type InspectionPolicy string

const (
	InspectionAny         InspectionPolicy = "ANY"
	InspectionOrigin      InspectionPolicy = "Origin"
	InspectionDestination InspectionPolicy = "Destination"
)

type Config struct {
	MinDeliveryDays         int              `yaml:"min_delivery_days" json:"min_delivery_days"`
	ISOPolicy               Policy           `yaml:"iso_policy" json:"iso_policy"`
	SamplingPolicy          Policy           `yaml:"sampling_policy" json:"sampling_policy"`
	RequiredInspectionPoint InspectionPolicy `yaml:"required_inspection_point" json:"required_inspection_point"`
	PreferredManufacturers  []string         `yaml:"preferred_manufacturers" json:"preferred_manufacturers"`
}

func DefaultConfig() Config {
	return Config{
		MinDeliveryDays:         120,
		ISOPolicy:               PolicyRequireNo,
		SamplingPolicy:          PolicyRequireNo,
		RequiredInspectionPoint: InspectionDestination,
	}
}

// ParsePolicy accepts the policy names case-insensitively; "" means ANY.
func ParsePolicy(value string) (Policy, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "", "ANY":
		return PolicyAny, nil
	case "REQUIRE_YES", "YES":
		return PolicyRequireYes, nil
	case "REQUIRE_NO", "NO":
		return PolicyRequireNo, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, value)
}

func ParseInspectionPolicy(value string) (InspectionPolicy, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "", "ANY":
		return InspectionAny, nil
	case "ORIGIN":
		return InspectionOrigin, nil
	case "DESTINATION":
		return InspectionDestination, nil
	}
	return "", fmt.Errorf("%w: inspection point %q", ErrInvalidPolicy, value)
}

// Validate canonicalizes the policy fields in place.
func (c *Config) Validate() error {
	var err error
	if c.MinDeliveryDays < 0 {
		return fmt.Errorf("%w: min_delivery_days %d", ErrInvalidPolicy, c.MinDeliveryDays)
	}
	if c.ISOPolicy, err = ParsePolicy(string(c.ISOPolicy)); err != nil {
		return fmt.Errorf("iso_policy: %w", err)
	}
	if c.SamplingPolicy, err = ParsePolicy(string(c.SamplingPolicy)); err != nil {
		return fmt.Errorf("sampling_policy: %w", err)
	}
	if c.RequiredInspectionPoint, err = ParseInspectionPolicy(string(c.RequiredInspectionPoint)); err != nil {
		return err
	}
	cleaned := c.PreferredManufacturers[:0]
	for _, name := range c.PreferredManufacturers {
		if name = strings.TrimSpace(name); name != "" {
			cleaned = append(cleaned, name)
		}
	}
	c.PreferredManufacturers = cleaned
	return nil
}

type Verdict struct {
	Eligible bool
	Reasons  []string
}

// Qualify applies every rule and collects one reason per unmet rule. The
// request is eligible only when no rule failed.
func Qualify(req internal.ParsedRequest, cfg Config) Verdict {
	var reasons []string

	switch {
	case req.DeliveryDays == internal.UnknownNumber:
		reasons = append(reasons, "missing delivery days information")
	case req.DeliveryDays < cfg.MinDeliveryDays:
		reasons = append(reasons, fmt.Sprintf("delivery too short: %d days (minimum: %d)", req.DeliveryDays, cfg.MinDeliveryDays))
	}

	if reason, ok := checkRequirement("ISO", req.ISORequired, cfg.ISOPolicy); !ok {
		reasons = append(reasons, reason)
	}
	if reason, ok := checkRequirement("sampling", req.SamplingRequired, cfg.SamplingPolicy); !ok {
		reasons = append(reasons, reason)
	}

	if cfg.RequiredInspectionPoint != "" && cfg.RequiredInspectionPoint != InspectionAny {
		if string(req.InspectionPoint) != string(cfg.RequiredInspectionPoint) {
			reasons = append(reasons, fmt.Sprintf("inspection point mismatch: requires %s, request has %s",
				cfg.RequiredInspectionPoint, orUnknown(string(req.InspectionPoint))))
		}
	}

	if len(cfg.PreferredManufacturers) > 0 && !containsPreferred(req.ManufacturerText, cfg.PreferredManufacturers) {
		if strings.TrimSpace(req.ManufacturerText) == "" {
			reasons = append(reasons, "missing manufacturer information")
		} else {
			reasons = append(reasons, fmt.Sprintf("manufacturer not in preferred list: %q", req.ManufacturerText))
		}
	}

	return Verdict{Eligible: len(reasons) == 0, Reasons: reasons}
}

func checkRequirement(label string, got internal.Requirement, policy Policy) (string, bool) {
	var want internal.Requirement
	switch policy {
	case PolicyRequireYes:
		want = internal.RequirementYes
	case PolicyRequireNo:
		want = internal.RequirementNo
	default:
		return "", true
	}
	if got == want {
		return "", true
	}
	return fmt.Sprintf("%s requirement mismatch: requires %s, request has %s", label, want, orUnknown(string(got))), false
}

func containsPreferred(text string, preferred []string) bool {
	upper := strings.ToUpper(text)
	for _, name := range preferred {
		if strings.Contains(upper, strings.ToUpper(name)) {
			return true
		}
	}
	return false
}

func orUnknown(s string) string {
	if s == "" {
		return string(internal.RequirementUnknown)
	}
	return s
}
