package store_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/eventcal/internal/store"
	"github.com/nhle/eventcal/tests/testutil"
)

func TestParseOffset(t *testing.T) {
	tests := []struct {
		in      string
		seconds int
		wantErr bool
	}{
		{in: "+08:00", seconds: 8 * 3600},
		{in: "-05:30", seconds: -(5*3600 + 30*60)},
		{in: "Z", seconds: 0},
		{in: "eight", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			loc, err := store.ParseOffset(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, store.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
			assert.Equal(t, tt.seconds, offset)
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	loc := store.DefaultRangeLocation

	tests := []struct {
		in   string
		want string
	}{
		{in: "2024-01-10T09:00:00Z", want: "2024-01-10T09:00:00Z"},
		{in: "2024-01-10T09:00:00.250-05:00", want: "2024-01-10T14:00:00.25Z"},
		{in: "2024-01-10T09:00:00", want: "2024-01-10T01:00:00Z"},
		{in: "2024-01-10T09:00", want: "2024-01-10T01:00:00Z"},
		{in: "2024-01-10", want: "2024-01-09T16:00:00Z"},
		{in: " 2024-01-10 ", want: "2024-01-09T16:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := store.ParseTimestamp(tt.in, loc)
			require.NoError(t, err)
			testutil.EqualInstant(t, testutil.MustTime(t, tt.want), got)
		})
	}

	_, err := store.ParseTimestamp("10/01/2024", loc)
	assert.ErrorIs(t, err, store.ErrInvalidArgument)
}

func TestResolveRange(t *testing.T) {
	from, to, err := store.ResolveRange("2024-01-10", "2024-01-10", store.DefaultRangeLocation)
	require.NoError(t, err)
	testutil.EqualInstant(t, testutil.MustTime(t, "2024-01-10T00:00:00+08:00"), from)
	testutil.EqualInstant(t, testutil.MustTime(t, "2024-01-11T00:00:00+08:00"), to)

	utc, err := store.ParseOffset("Z")
	require.NoError(t, err)
	from, to, err = store.ResolveRange("2024-01-10", "2024-01-12T06:00:00Z", utc)
	require.NoError(t, err)
	testutil.EqualInstant(t, testutil.MustTime(t, "2024-01-10T00:00:00Z"), from)
	testutil.EqualInstant(t, testutil.MustTime(t, "2024-01-12T06:00:00Z"), to)

	_, _, err = store.ResolveRange("2024-01-10", "soon", nil)
	assert.ErrorIs(t, err, store.ErrInvalidArgument)
}
