package billingcycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndBounds(t *testing.T) {
	p, err := Parse("2026-03")
	require.NoError(t, err)
	assert.Equal(t, "2026-03", p.String())

	start, end := p.Bounds(time.UTC)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), end)

	_, err = Parse("2026-13")
	assert.ErrorIs(t, err, ErrInvalidPeriod)
	_, err = Parse("march")
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestForTimeAppliesOffset(t *testing.T) {
	now := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-12", ForTime(now, time.UTC, -1).String())
	assert.Equal(t, "2026-01", ForTime(now, time.UTC, 0).String())
	assert.Equal(t, "2026-01", Period{Year: 2025, Month: time.December}.Next().String())
}

func TestLoadLocationFallsBack(t *testing.T) {
	assert.Equal(t, time.UTC, LoadLocation(""))
	assert.Equal(t, time.UTC, LoadLocation("Nowhere/Atlantis"))
}
