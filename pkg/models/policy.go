package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidPolicy = errors.New("invalid delinquency policy")

type PenaltyMode string

const (
	PenaltyModeFlat       PenaltyMode = "FLAT"
	PenaltyModePercentage PenaltyMode = "PERCENTAGE"
)

// PenaltyTier is a lateness threshold in days and the flat penalty it carries.
type PenaltyTier struct {
	Days   int             `json:"days"`
	Amount decimal.Decimal `json:"amount"`
}

// DelinquencyPolicy is the stored singleton that drives mora accrual. In percentage
// mode only Mild.Days is used, as the grace period.
type DelinquencyPolicy struct {
	Mode       PenaltyMode     `json:"mode"`
	Mild       PenaltyTier     `json:"mild"`     // leve
	Moderate   PenaltyTier     `json:"moderate"` // media
	Severe     PenaltyTier     `json:"severe"`   // grave
	Percentage decimal.Decimal `json:"percentage"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func DefaultPolicy() DelinquencyPolicy {
	return DelinquencyPolicy{
		Mode:       PenaltyModeFlat,
		Mild:       PenaltyTier{Days: 5, Amount: decimal.NewFromInt(5)},
		Moderate:   PenaltyTier{Days: 10, Amount: decimal.NewFromInt(10)},
		Severe:     PenaltyTier{Days: 20, Amount: decimal.NewFromInt(20)},
		Percentage: decimal.NewFromInt(3),
	}
}

func (p DelinquencyPolicy) Validate() error {
	if p.Mode != PenaltyModeFlat && p.Mode != PenaltyModePercentage {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidPolicy, p.Mode)
	}
	if p.Mild.Days < 0 || p.Mild.Days >= p.Moderate.Days || p.Moderate.Days >= p.Severe.Days {
		return fmt.Errorf("%w: thresholds must increase (mild %d, moderate %d, severe %d)",
			ErrInvalidPolicy, p.Mild.Days, p.Moderate.Days, p.Severe.Days)
	}
	for _, tier := range []PenaltyTier{p.Mild, p.Moderate, p.Severe} {
		if tier.Amount.IsNegative() {
			return fmt.Errorf("%w: negative tier amount %s", ErrInvalidPolicy, tier.Amount)
		}
	}
	if p.Percentage.IsNegative() || p.Percentage.GreaterThan(hundred) {
		return fmt.Errorf("%w: percentage %s out of range", ErrInvalidPolicy, p.Percentage)
	}
	return nil
}
