package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDayTemplateSkipsBreak(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	doctor := uuid.New()
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, loc)
	slots := DefaultDayTemplate().Slots(doctor, day, loc)

	require.Len(t, slots, 15)

	breakStart := time.Date(2024, 6, 1, 15, 45, 0, 0, loc)
	breakEnd := time.Date(2024, 6, 1, 16, 15, 0, 0, loc)
	dayEnd := time.Date(2024, 6, 1, 20, 0, 0, 0, loc)

	assert.True(t, slots[0].StartTime.Equal(time.Date(2024, 6, 1, 8, 15, 0, 0, loc)))
	assert.True(t, slots[len(slots)-1].EndTime.Equal(dayEnd))

	for i, s := range slots {
		assert.Equal(t, doctor, s.DoctorID)
		assert.True(t, s.IsAvailable)
		assert.Equal(t, 45*time.Minute, s.EndTime.Sub(s.StartTime))
		assert.False(t, s.StartTime.Before(breakEnd) && s.EndTime.After(breakStart), "slot %d overlaps the break", i)
		assert.False(t, s.EndTime.After(dayEnd))
		if i > 0 {
			assert.False(t, slots[i-1].overlaps(s), "slots %d and %d overlap", i-1, i)
		}
	}

	// first window after the break starts exactly when the break ends
	assert.True(t, slots[10].StartTime.Equal(breakEnd))
}

func TestDayTemplateWithoutBreak(t *testing.T) {
	tpl, err := ParseDayTemplate("09:00", "12:00", "00:00", "00:00", time.Hour)
	require.NoError(t, err)

	slots := tpl.Slots(uuid.New(), time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC), time.UTC)
	require.Len(t, slots, 3)
	assert.Equal(t, 9, slots[0].StartTime.Hour())
	assert.Equal(t, 12, slots[2].EndTime.Hour())
}

func TestDayTemplateDropsPartialLastWindow(t *testing.T) {
	tpl, err := ParseDayTemplate("09:00", "10:30", "00:00", "00:00", time.Hour)
	require.NoError(t, err)

	slots := tpl.Slots(uuid.New(), time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC), time.UTC)
	require.Len(t, slots, 1)
}

func TestParseDayTemplateRejectsBadInput(t *testing.T) {
	_, err := ParseDayTemplate("8h", "20:00", "15:45", "16:15", time.Hour)
	assert.Error(t, err)

	_, err = ParseDayTemplate("20:00", "08:00", "15:45", "16:15", time.Hour)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = ParseDayTemplate("08:00", "20:00", "15:45", "16:15", 0)
	assert.ErrorAs(t, err, &ve)
}

func TestClockTimeString(t *testing.T) {
	c, err := ParseClockTime("08:15")
	require.NoError(t, err)
	assert.Equal(t, "08:15", c.String())
}
