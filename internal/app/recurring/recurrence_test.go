package recurring

import (
	"testing"
	"time"

	"github.com/tasklife/project/internal/contracts"
)

func TestNextDueAt_Daily(t *testing.T) {
	base := time.Date(2026, 2, 9, 10, 30, 0, 0, time.UTC)
	got := NextDueAt(base, contracts.RecurrenceDaily)
	want := time.Date(2026, 2, 10, 10, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("NextDueAt daily = %v, want %v", got, want)
	}
}

func TestNextDueAt_Weekly(t *testing.T) {
	base := time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC)
	got := NextDueAt(base, contracts.RecurrenceWeekly)
	want := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("NextDueAt weekly = %v, want %v", got, want)
	}
}

func TestNextDueAt_MonthlyClamping(t *testing.T) {
	tests := []struct {
		name string
		base time.Time
		want time.Time
	}{
		{
			name: "jan 31 clamps to feb 28 in a non-leap year",
			base: time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
			want: time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "jan 31 clamps to feb 29 in a leap year",
			base: time.Date(2028, 1, 31, 0, 0, 0, 0, time.UTC),
			want: time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "mar 31 clamps to apr 30",
			base: time.Date(2026, 3, 31, 9, 15, 0, 0, time.UTC),
			want: time.Date(2026, 4, 30, 9, 15, 0, 0, time.UTC),
		},
		{
			name: "mid-month day is untouched",
			base: time.Date(2026, 5, 14, 0, 0, 0, 0, time.UTC),
			want: time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "dec 15 rolls into january of the next year",
			base: time.Date(2026, 12, 15, 0, 0, 0, 0, time.UTC),
			want: time.Date(2027, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "feb 29 advances to mar 29",
			base: time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC),
			want: time.Date(2028, 3, 29, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextDueAt(tt.base, contracts.RecurrenceMonthly)
			if !got.Equal(tt.want) {
				t.Errorf("NextDueAt monthly(%v) = %v, want %v", tt.base, got, tt.want)
			}
		})
	}
}
