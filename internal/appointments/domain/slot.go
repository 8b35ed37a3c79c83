package domain

import (
	"time"

	"clinicbook_backend/platform/apperr"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ParseSlot combines a YYYY-MM-DD date and an HH:MM time into one instant in loc.
func ParseSlot(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, apperr.BadRequest("invalid appointment date or time format").
			WithDetails(map[string]string{"date": date, "time": clock})
	}
	return t, nil
}

// RequireFuture rejects a start instant that is not strictly after now.
func RequireFuture(start, now time.Time) error {
	if !start.After(now) {
		return apperr.BadRequest("appointment must be scheduled in the future")
	}
	return nil
}

// Grid is the fixed daily slot grid, e.g. 09:00 to 17:00 every 30 minutes.
// End is exclusive.
type Grid struct {
	Start string
	End   string
	Step  time.Duration
}

// DefaultGrid is 09:00-17:00 in 30 minute steps.
var DefaultGrid = Grid{Start: "09:00", End: "17:00", Step: 30 * time.Minute}

// Times lists the HH:MM labels of every slot in the grid.
func (g Grid) Times() ([]string, error) {
	start, err := time.Parse(TimeLayout, g.Start)
	if err != nil {
		return nil, apperr.Internal("invalid slot grid start")
	}
	end, err := time.Parse(TimeLayout, g.End)
	if err != nil {
		return nil, apperr.Internal("invalid slot grid end")
	}
	if g.Step <= 0 {
		return nil, apperr.Internal("invalid slot grid step")
	}
	var out []string
	for t := start; t.Before(end); t = t.Add(g.Step) {
		out = append(out, t.Format(TimeLayout))
	}
	return out, nil
}

// AvailableSlots returns the grid times on date that are not booked and lie
// strictly after now.
func AvailableSlots(g Grid, date string, booked []string, now time.Time, loc *time.Location) ([]string, error) {
	times, err := g.Times()
	if err != nil {
		return nil, err
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, apperr.BadRequest("invalid date format, expected YYYY-MM-DD")
	}

	taken := make(map[string]struct{}, len(booked))
	for _, b := range booked {
		taken[b] = struct{}{}
	}

	free := make([]string, 0, len(times))
	for _, clock := range times {
		if _, ok := taken[clock]; ok {
			continue
		}
		start, err := ParseSlot(date, clock, loc)
		if err != nil {
			return nil, err
		}
		if !start.After(now) {
			continue
		}
		free = append(free, clock)
	}
	return free, nil
}
