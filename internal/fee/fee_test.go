package fee

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkgate-service/internal/config"
)

func stay(t *testing.T, minutes int) (time.Time, time.Time) {
	t.Helper()
	entry := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	return entry, entry.Add(time.Duration(minutes) * time.Minute)
}

func TestComputeFree(t *testing.T) {
	policy := config.FeeConfig{Mode: config.FeeFree, Currency: "EUR"}
	entry, exit := stay(t, 600)

	got, err := Compute(policy, entry, exit)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestComputeFixed(t *testing.T) {
	policy := config.FeeConfig{Mode: config.FeeFixed, Currency: "EUR", FixedRateCents: 350}

	for _, minutes := range []int{1, 59, 600} {
		entry, exit := stay(t, minutes)
		got, err := Compute(policy, entry, exit)
		require.NoError(t, err)
		assert.Equal(t, int64(350), got, "duration %d minutes", minutes)
	}
}

func TestComputeHourlyRoundsPartialHoursUp(t *testing.T) {
	policy := config.FeeConfig{Mode: config.FeeHourly, Currency: "EUR", HourlyRateCents: 200}

	tests := []struct {
		minutes  int
		expected int64
	}{
		{59, 200},
		{60, 200},
		{61, 400},
		{120, 400},
		{121, 600},
		{0, 0},
	}

	for _, test := range tests {
		entry, exit := stay(t, test.minutes)
		got, err := Compute(policy, entry, exit)
		require.NoError(t, err)
		assert.Equal(t, test.expected, got, "duration %d minutes", test.minutes)
	}
}

func TestComputeGracePeriodOverridesMode(t *testing.T) {
	policy := config.FeeConfig{
		Mode:               config.FeeHourly,
		Currency:           "EUR",
		HourlyRateCents:    200,
		GracePeriodMinutes: 15,
	}

	entry, exit := stay(t, 10)
	got, err := Compute(policy, entry, exit)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	// Exactly at the grace boundary is still free.
	entry, exit = stay(t, 15)
	got, err = Compute(policy, entry, exit)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	// One minute past it the schedule applies.
	entry, exit = stay(t, 16)
	got, err = Compute(policy, entry, exit)
	require.NoError(t, err)
	assert.Equal(t, int64(200), got)
}

func TestComputeTiered(t *testing.T) {
	policy := config.FeeConfig{
		Mode:     config.FeeTiered,
		Currency: "EUR",
		Tiers: []config.FeeTier{
			{Hours: 1, AmountCents: 200},
			{Hours: 3, AmountCents: 500},
			{Hours: 24, AmountCents: 1000},
		},
	}

	tests := []struct {
		minutes  int
		expected int64
	}{
		{30, 200},    // below the lowest threshold
		{60, 200},    // exactly one hour stays in the first tier
		{120, 500},   // two hours fall into the up-to-3h tier
		{180, 500},   // exact boundary
		{181, 1000},  // past it
		{1440, 1000}, // exactly 24h
		{1800, 1000}, // beyond every tier: top tier applies
	}

	for _, test := range tests {
		entry, exit := stay(t, test.minutes)
		got, err := Compute(policy, entry, exit)
		require.NoError(t, err)
		assert.Equal(t, test.expected, got, "duration %d minutes", test.minutes)
	}
}

func TestComputeTieredSortsUnsortedConfiguration(t *testing.T) {
	policy := config.FeeConfig{
		Mode:     config.FeeTiered,
		Currency: "EUR",
		Tiers: []config.FeeTier{
			{Hours: 24, AmountCents: 1000},
			{Hours: 1, AmountCents: 200},
			{Hours: 3, AmountCents: 500},
		},
	}

	entry, exit := stay(t, 120)
	got, err := Compute(policy, entry, exit)
	require.NoError(t, err)
	assert.Equal(t, int64(500), got)
}

func TestComputeBackwardClockChargesNothing(t *testing.T) {
	policy := config.FeeConfig{Mode: config.FeeHourly, Currency: "EUR", HourlyRateCents: 200}
	entry := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	exit := entry.Add(-5 * time.Minute)

	got, err := Compute(policy, entry, exit)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestComputeInvalidPolicy(t *testing.T) {
	entry, exit := stay(t, 120)

	tests := []struct {
		name   string
		policy config.FeeConfig
	}{
		{"unknown mode", config.FeeConfig{Mode: "weekly", Currency: "EUR"}},
		{"tiered without tiers", config.FeeConfig{Mode: config.FeeTiered, Currency: "EUR"}},
		{"negative hourly rate", config.FeeConfig{Mode: config.FeeHourly, Currency: "EUR", HourlyRateCents: -1}},
		{"negative fixed rate", config.FeeConfig{Mode: config.FeeFixed, Currency: "EUR", FixedRateCents: -1}},
		{"negative tier amount", config.FeeConfig{
			Mode:     config.FeeTiered,
			Currency: "EUR",
			Tiers:    []config.FeeTier{{Hours: 1, AmountCents: -5}},
		}},
		{"non-positive tier threshold", config.FeeConfig{
			Mode:     config.FeeTiered,
			Currency: "EUR",
			Tiers:    []config.FeeTier{{Hours: 0, AmountCents: 100}},
		}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Compute(test.policy, entry, exit)
			assert.ErrorIs(t, err, ErrInvalidPolicy)
		})
	}
}
