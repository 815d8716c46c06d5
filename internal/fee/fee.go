// Package fee computes parking charges from the configured fee schedule.
// Calculations are pure: policy in, duration in, amount out.
package fee

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"parkgate-service/internal/config"
)

// ErrInvalidPolicy signals a fee schedule the calculator refuses to price
// against. Sessions hitting it are surfaced for manual fee entry instead of
// being charged a guessed amount.
var ErrInvalidPolicy = errors.New("invalid fee policy")

// Compute returns the amount due in cents for a stay from entry to exit.
//
// The grace period is a global override checked before any mode logic: stays
// at or under it are free regardless of schedule. Hourly billing rounds
// partial hours up. Tiered billing picks the first tier whose hour threshold
// covers the stay ("up to N hours" buckets); stays longer than every tier are
// charged the largest one.
func Compute(policy config.FeeConfig, entryTime, exitTime time.Time) (int64, error) {
	duration := exitTime.Sub(entryTime)
	if duration < 0 {
		// Clock skew between camera sources. Charge nothing rather than
		// invent a negative stay.
		duration = 0
	}

	if policy.GracePeriodMinutes > 0 {
		grace := time.Duration(policy.GracePeriodMinutes) * time.Minute
		if duration <= grace {
			return 0, nil
		}
	}

	switch policy.Mode {
	case config.FeeFree:
		return 0, nil

	case config.FeeFixed:
		if policy.FixedRateCents < 0 {
			return 0, fmt.Errorf("%w: negative fixed rate", ErrInvalidPolicy)
		}
		return policy.FixedRateCents, nil

	case config.FeeHourly:
		if policy.HourlyRateCents < 0 {
			return 0, fmt.Errorf("%w: negative hourly rate", ErrInvalidPolicy)
		}
		hours := int64((duration + time.Hour - 1) / time.Hour)
		return hours * policy.HourlyRateCents, nil

	case config.FeeTiered:
		return computeTiered(policy.Tiers, duration)

	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidPolicy, policy.Mode)
	}
}

func computeTiered(tiers []config.FeeTier, duration time.Duration) (int64, error) {
	if len(tiers) == 0 {
		return 0, fmt.Errorf("%w: tiered mode with no tiers", ErrInvalidPolicy)
	}

	// Configuration ordering is not trusted; evaluate against a sorted copy.
	sorted := make([]config.FeeTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Hours < sorted[j].Hours })

	for _, t := range sorted {
		if t.Hours <= 0 {
			return 0, fmt.Errorf("%w: non-positive tier threshold %d", ErrInvalidPolicy, t.Hours)
		}
		if t.AmountCents < 0 {
			return 0, fmt.Errorf("%w: negative tier amount", ErrInvalidPolicy)
		}
		if duration <= time.Duration(t.Hours)*time.Hour {
			return t.AmountCents, nil
		}
	}
	// Past the largest threshold: the top tier applies.
	return sorted[len(sorted)-1].AmountCents, nil
}
