package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ClockTime is a wall-clock time of day, in minutes after midnight.
type ClockTime int

func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock time %q: %w", s, err)
	}
	return ClockTime(t.Hour()*60 + t.Minute()), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c ClockTime) on(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, loc)
}

// DayTemplate describes a doctor's workday: fixed-length windows between
// DayStart and DayEnd, skipping the break.
type DayTemplate struct {
	DayStart   ClockTime
	DayEnd     ClockTime
	BreakStart ClockTime
	BreakEnd   ClockTime
	SlotLength time.Duration
}

func DefaultDayTemplate() DayTemplate {
	return DayTemplate{
		DayStart:   8*60 + 15,
		DayEnd:     20 * 60,
		BreakStart: 15*60 + 45,
		BreakEnd:   16*60 + 15,
		SlotLength: 45 * time.Minute,
	}
}

func ParseDayTemplate(dayStart, dayEnd, breakStart, breakEnd string, length time.Duration) (DayTemplate, error) {
	var (
		tpl DayTemplate
		err error
	)
	if tpl.DayStart, err = ParseClockTime(dayStart); err != nil {
		return DayTemplate{}, err
	}
	if tpl.DayEnd, err = ParseClockTime(dayEnd); err != nil {
		return DayTemplate{}, err
	}
	if tpl.BreakStart, err = ParseClockTime(breakStart); err != nil {
		return DayTemplate{}, err
	}
	if tpl.BreakEnd, err = ParseClockTime(breakEnd); err != nil {
		return DayTemplate{}, err
	}
	tpl.SlotLength = length
	return tpl, tpl.Validate()
}

func (t DayTemplate) Validate() error {
	if t.SlotLength <= 0 {
		return &ValidationError{Field: "slot_length", Reason: "must be positive"}
	}
	if t.DayStart >= t.DayEnd {
		return &ValidationError{Field: "day_end", Reason: "must be after day_start"}
	}
	if t.BreakStart > t.BreakEnd {
		return &ValidationError{Field: "break_end", Reason: "must not be before break_start"}
	}
	return nil
}

// Slots lays out the windows for day in loc. A window touching the break
// moves the cursor to the end of the break; a window running past DayEnd
// ends the day.
func (t DayTemplate) Slots(doctorID uuid.UUID, day time.Time, loc *time.Location) []Slot {
	if loc == nil {
		loc = time.UTC
	}

	cursor := t.DayStart.on(day, loc)
	dayEnd := t.DayEnd.on(day, loc)
	breakStart := t.BreakStart.on(day, loc)
	breakEnd := t.BreakEnd.on(day, loc)
	hasBreak := breakStart.Before(breakEnd)

	var slots []Slot
	for cursor.Before(dayEnd) {
		end := cursor.Add(t.SlotLength)

		if hasBreak && cursor.Before(breakEnd) && end.After(breakStart) {
			cursor = breakEnd
			continue
		}
		if end.After(dayEnd) {
			break
		}

		slots = append(slots, Slot{
			ID:          uuid.New(),
			DoctorID:    doctorID,
			StartTime:   cursor.UTC(),
			EndTime:     end.UTC(),
			IsAvailable: true,
		})
		cursor = end
	}
	return slots
}
