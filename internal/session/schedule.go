// Package session models exchange trading calendars for session-bound
// instruments. Continuous venues (crypto) simply have no schedule.
package session

import (
	"fmt"
	"strings"
	"time"
)

// Schedule describes one exchange's regular trading hours. Public
// holidays are not modelled; operators should watch holiday calendars
// independently.
type Schedule struct {
	Name     string
	Location *time.Location

	openHour, openMinute   int
	closeHour, closeMinute int
}

// NewSchedule builds a schedule for an exchange in the given IANA timezone.
func NewSchedule(name, timezone string, openHour, openMinute, closeHour, closeMinute int) (*Schedule, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
	}
	return &Schedule{
		Name:        name,
		Location:    loc,
		openHour:    openHour,
		openMinute:  openMinute,
		closeHour:   closeHour,
		closeMinute: closeMinute,
	}, nil
}

// IsMarketDay reports whether now falls on a weekday in exchange local time.
func (s *Schedule) IsMarketDay(now time.Time) bool {
	wd := now.In(s.Location).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// IsOpen reports whether the exchange is actively trading at now.
func (s *Schedule) IsOpen(now time.Time) bool {
	if !s.IsMarketDay(now) {
		return false
	}
	local := now.In(s.Location)
	open := s.openAt(local)
	close := s.closeAt(local)
	return !local.Before(open) && !local.After(close)
}

// UntilOpen returns the time until today's open, or false when the market
// is already open or it is not a market day.
func (s *Schedule) UntilOpen(now time.Time) (time.Duration, bool) {
	if !s.IsMarketDay(now) {
		return 0, false
	}
	local := now.In(s.Location)
	d := s.openAt(local).Sub(local)
	if d <= 0 {
		return 0, false
	}
	return d, true
}

// UntilClose returns the time until today's close, or false when the
// market is closed.
func (s *Schedule) UntilClose(now time.Time) (time.Duration, bool) {
	if !s.IsOpen(now) {
		return 0, false
	}
	local := now.In(s.Location)
	return s.closeAt(local).Sub(local), true
}

// SinceOpen returns the time elapsed since today's open, or false when
// the market is closed.
func (s *Schedule) SinceOpen(now time.Time) (time.Duration, bool) {
	if !s.IsOpen(now) {
		return 0, false
	}
	local := now.In(s.Location)
	return local.Sub(s.openAt(local)), true
}

// IsPreMarketWindow reports whether now is within the given duration
// before today's open.
func (s *Schedule) IsPreMarketWindow(now time.Time, window time.Duration) bool {
	d, ok := s.UntilOpen(now)
	return ok && d <= window
}

// IsOpeningRangeWindow reports whether now is within the opening-range
// data collection period right after the open.
func (s *Schedule) IsOpeningRangeWindow(now time.Time, window time.Duration) bool {
	d, ok := s.SinceOpen(now)
	return ok && d <= window
}

// IsClosingWindow reports whether now is within the given duration before
// today's close. The lifecycle engine force-closes session-bound
// positions in this window.
func (s *Schedule) IsClosingWindow(now time.Time, window time.Duration) bool {
	d, ok := s.UntilClose(now)
	return ok && d <= window
}

func (s *Schedule) openAt(local time.Time) time.Time {
	return time.Date(local.Year(), local.Month(), local.Day(), s.openHour, s.openMinute, 0, 0, s.Location)
}

func (s *Schedule) closeAt(local time.Time) time.Time {
	return time.Date(local.Year(), local.Month(), local.Day(), s.closeHour, s.closeMinute, 0, 0, s.Location)
}

func (s *Schedule) String() string {
	return fmt.Sprintf("Schedule(%s, tz=%s, open=%02d:%02d, close=%02d:%02d)",
		s.Name, s.Location, s.openHour, s.openMinute, s.closeHour, s.closeMinute)
}

// Get returns a prebuilt schedule by name, case-insensitive.
func Get(name string) (*Schedule, error) {
	switch strings.ToUpper(name) {
	case "NYSE":
		return NewSchedule("NYSE", "America/New_York", 9, 30, 16, 0)
	case "LSE":
		return NewSchedule("LSE", "Europe/London", 8, 0, 16, 30)
	default:
		return nil, fmt.Errorf("unknown exchange %q (available: NYSE, LSE)", name)
	}
}
