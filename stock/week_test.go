package stock

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWeek(t *testing.T) {
	tests := []struct {
		in      string
		want    Week
		wantErr bool
	}{
		{in: "2025-W01", want: Week{2025, 1}},
		{in: " 2025-W52 ", want: Week{2025, 52}},
		{in: "2020-W53", want: Week{2020, 53}},
		{in: "2026-W53", want: Week{2026, 53}},
		{in: "2021-W53", wantErr: true},
		{in: "2025-W00", wantErr: true},
		{in: "2025-W1", wantErr: true},
		{in: "2025W01", wantErr: true},
		{in: "2025-01-06", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWeek(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWeek_MondayAndWeekOf(t *testing.T) {
	// GIVEN: 2025-W01, whose Monday falls in the previous calendar year
	w := MustParseWeek("2025-W01")

	// THEN: Monday is 2024-12-30 and every day of that week maps back
	assert.Equal(t, "2024-12-30", w.MondayDate())
	for d := 0; d < 7; d++ {
		day := w.Monday().AddDate(0, 0, d)
		assert.Equal(t, w, WeekOf(day), day.Format(DateLayout))
		assert.True(t, w.Contains(day))
	}
	assert.Equal(t, MustParseWeek("2025-W02"), WeekOf(w.Monday().AddDate(0, 0, 7)))
}

func TestWeekOf_MondayOfAgreeEveryDay(t *testing.T) {
	// Every day from 2015 through 2030 covers the 53-week years 2015, 2020 and 2026.
	long := map[int]bool{}
	end := time.Date(2031, time.January, 1, 0, 0, 0, 0, time.UTC)
	for d := time.Date(2015, time.January, 1, 12, 0, 0, 0, time.UTC); d.Before(end); d = d.AddDate(0, 0, 1) {
		w := WeekOf(d)
		if !assert.Equal(t, MondayOf(d), w.Monday(), d.Format(DateLayout)) {
			return
		}
		if w.Num == 53 {
			long[w.Year] = true
		}
	}
	assert.Equal(t, map[int]bool{2015: true, 2020: true, 2026: true}, long)
}

func TestMondayOf(t *testing.T) {
	sunday := time.Date(2025, time.March, 9, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC), MondayOf(sunday))

	monday := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, monday, MondayOf(monday))
}

func TestWeek_AddWeeksAcrossYears(t *testing.T) {
	assert.Equal(t, MustParseWeek("2025-W01"), MustParseWeek("2024-W52").AddWeeks(1))
	assert.Equal(t, MustParseWeek("2020-W53"), MustParseWeek("2021-W01").AddWeeks(-1))
	assert.Equal(t, MustParseWeek("2025-W10"), MustParseWeek("2025-W10").AddWeeks(0))
}

func TestWeek_StringOrderIsChronological(t *testing.T) {
	// GIVEN: weeks in random order
	weeks := []Week{{2025, 10}, {2024, 52}, {2025, 2}, {2020, 53}, {2025, 1}}

	// WHEN: sorted by their text form
	strs := make([]string, len(weeks))
	for i, w := range weeks {
		strs[i] = w.String()
	}
	sort.Strings(strs)

	// THEN: the order matches Before and Monday order
	for i := 1; i < len(strs); i++ {
		prev, cur := MustParseWeek(strs[i-1]), MustParseWeek(strs[i])
		assert.True(t, prev.Before(cur), "%s before %s", prev, cur)
		assert.True(t, prev.Monday().Before(cur.Monday()))
	}
}

func TestResolveWeek(t *testing.T) {
	// Explicit week wins over the legacy date.
	w, err := ResolveWeek("2025-W10", "2025-01-01")
	require.NoError(t, err)
	assert.Equal(t, Week{2025, 10}, w)

	// Legacy date maps to the week containing it.
	w, err = ResolveWeek("", "2025-01-01")
	require.NoError(t, err)
	assert.Equal(t, Week{2025, 1}, w)

	_, err = ResolveWeek("", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = ResolveWeek("", "01/01/2025")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestWeek_TextRoundTrip(t *testing.T) {
	var w Week
	require.NoError(t, w.UnmarshalText([]byte("2025-W07")))
	b, err := w.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2025-W07", string(b))

	assert.Error(t, w.UnmarshalText([]byte("2025-W60")))
}
