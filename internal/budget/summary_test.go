package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWindowFor(t *testing.T) {
	// A Wednesday mid-month, mid-year.
	now := time.Date(2024, time.March, 13, 15, 4, 5, 0, time.UTC)

	tests := []struct {
		period        string
		expectedStart time.Time
		expectedEnd   time.Time
	}{
		{
			period:        PeriodMonthly,
			expectedStart: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
			expectedEnd:   time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			period:        PeriodWeekly,
			expectedStart: time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC),
			expectedEnd:   time.Date(2024, time.March, 18, 0, 0, 0, 0, time.UTC),
		},
		{
			period:        PeriodYearly,
			expectedStart: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
			expectedEnd:   time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			period:        PeriodCustom,
			expectedStart: now.Add(-30 * 24 * time.Hour),
			expectedEnd:   now,
		},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			start, end := windowFor(tt.period, now)
			require.Equal(t, tt.expectedStart, start)
			require.Equal(t, tt.expectedEnd, end)
		})
	}
}

func TestWindowForWeekBoundaries(t *testing.T) {
	monday := time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC)

	// A Sunday still belongs to the week that started the previous Monday.
	sunday := time.Date(2024, time.March, 17, 23, 59, 59, 0, time.UTC)
	start, end := windowFor(PeriodWeekly, sunday)
	require.Equal(t, monday, start)
	require.Equal(t, monday.AddDate(0, 0, 7), end)

	// Monday itself opens a fresh window.
	start, _ = windowFor(PeriodWeekly, monday.Add(time.Hour))
	require.Equal(t, monday, start)
}

func TestRound2(t *testing.T) {
	require.Equal(t, 0.1, round2(0.1))
	require.Equal(t, 10.57, round2(10.567))
	require.Equal(t, 10.56, round2(10.564))
	require.Equal(t, -2.35, round2(-2.346))
	require.Equal(t, 0.0, round2(0))
	require.Equal(t, 0.3, round2(0.1+0.2))
}
