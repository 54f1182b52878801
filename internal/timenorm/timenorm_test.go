package timenorm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classcal/internal/apperrors"
)

func newNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := New("Asia/Ho_Chi_Minh",
		[]string{"Asia/Ho_Chi_Minh", "UTC", "America/Chicago", "Not/AZone"},
		map[string]string{"Asia/Ho_Chi_Minh": "Vietnam Time"})
	require.NoError(t, err)
	return n
}

func TestParseKeepsExplicitOffset(t *testing.T) {
	n := newNormalizer(t)

	cases := []struct {
		in   string
		zone string
		want string
		hour int
	}{
		{"2024-11-28T09:00:00+07:00", "UTC", "2024-11-28T02:00:00Z", 9},
		{"2024-11-28T02:00:00Z", "Asia/Ho_Chi_Minh", "2024-11-28T02:00:00Z", 2},
		{"2024-11-28T09:00:00", "Asia/Ho_Chi_Minh", "2024-11-28T02:00:00Z", 9},
		{"2024-11-28T09:00", "UTC", "2024-11-28T09:00:00Z", 9},
		{"2024-11-28 09:00:00", "America/Chicago", "2024-11-28T15:00:00Z", 9},
		{"2024-11-28T09:00:00.250+07:00", "", "2024-11-28T02:00:00.25Z", 9},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			local, err := n.Parse(tc.in, tc.zone)
			require.NoError(t, err)
			assert.Equal(t, tc.hour, local.Hour())

			abs, err := n.Canonical(tc.in, tc.zone)
			require.NoError(t, err)
			assert.Equal(t, tc.want, abs.Format(time.RFC3339Nano))
		})
	}
}

func TestSameInstantDifferentOffsets(t *testing.T) {
	n := newNormalizer(t)
	a, err := n.Canonical("2024-11-28T09:00:00+07:00", "")
	require.NoError(t, err)
	b, err := n.Canonical("2024-11-28T02:00:00+00:00", "")
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestParseInvalid(t *testing.T) {
	n := newNormalizer(t)
	for _, in := range []string{"", "   ", "tomorrow", "2024-13-45T99:00"} {
		_, err := n.Parse(in, "UTC")
		assert.ErrorIs(t, err, apperrors.ErrInvalidTimestamp, in)
	}
}

func TestZoneSubstitutesDefault(t *testing.T) {
	n := newNormalizer(t)

	name, loc := n.Zone("Mars/Olympus")
	assert.Equal(t, "Asia/Ho_Chi_Minh", name)
	assert.Equal(t, "Asia/Ho_Chi_Minh", loc.String())

	name, _ = n.Zone("Europe/Paris")
	assert.Equal(t, "Asia/Ho_Chi_Minh", name, "zones outside the allow-list fall back")

	name, _ = n.Zone("America/Chicago")
	assert.Equal(t, "America/Chicago", name)
}

func TestLocalize(t *testing.T) {
	n := newNormalizer(t)
	s, abs, err := n.Localize("2024-11-28T09:00:00", "America/Chicago")
	require.NoError(t, err)
	assert.Equal(t, "2024-11-28T09:00:00-06:00", s)
	assert.Equal(t, 15, abs.UTC().Hour())
}

func TestTimezones(t *testing.T) {
	n := newNormalizer(t)
	zones := n.Timezones()
	require.Len(t, zones, 3)
	assert.Equal(t, "Asia/Ho_Chi_Minh", zones[0].Name)
	assert.Equal(t, "Vietnam Time", zones[0].Label)
	assert.Equal(t, "UTC", zones[1].Label)
}

func TestHasZone(t *testing.T) {
	assert.True(t, HasZone("2024-11-28T09:00:00Z"))
	assert.True(t, HasZone("2024-11-28T09:00:00-05:00"))
	assert.False(t, HasZone("2024-11-28T09:00:00"))
}
