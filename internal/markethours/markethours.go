package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"SignalScanner/internal/model"
)

// Session is the trading-hours rule for one market class.
//
// Entries are allowed from EntryStart through the whole EntryEnd minute.
// Outside [EntryStart, SquareOff) on a trading day, and on any non-trading
// day, the session is past square-off and open intraday positions must exit.
type Session struct {
	AlwaysOpen   bool
	Location     *time.Location
	EntryStart   int // minutes after midnight
	EntryEnd     int
	SquareOff    int
	WeekdaysOnly bool
}

// AlwaysOpenSession is the 24/7 rule used for crypto.
var AlwaysOpenSession = Session{AlwaysOpen: true, Location: time.UTC}

// NewSession builds a session from "HH:MM" clock strings in the named time zone.
func NewSession(tz, entryStart, entryEnd, squareOff string, weekdaysOnly bool) (Session, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Session{}, fmt.Errorf("load location %q: %w", tz, err)
	}
	start, err := parseClock(entryStart)
	if err != nil {
		return Session{}, fmt.Errorf("entry start: %w", err)
	}
	end, err := parseClock(entryEnd)
	if err != nil {
		return Session{}, fmt.Errorf("entry end: %w", err)
	}
	sq, err := parseClock(squareOff)
	if err != nil {
		return Session{}, fmt.Errorf("square off: %w", err)
	}
	if end < start {
		return Session{}, fmt.Errorf("entry end %s before entry start %s", entryEnd, entryStart)
	}
	if sq <= end {
		return Session{}, fmt.Errorf("square off %s must follow entry end %s", squareOff, entryEnd)
	}
	return Session{Location: loc, EntryStart: start, EntryEnd: end, SquareOff: sq, WeekdaysOnly: weekdaysOnly}, nil
}

// EntryOpen reports whether new positions may be opened at t.
func (s Session) EntryOpen(t time.Time) bool {
	if s.AlwaysOpen {
		return true
	}
	local := t.In(s.loc())
	if !s.tradingDay(local) {
		return false
	}
	m := minuteOfDay(local)
	return m >= s.EntryStart && m <= s.EntryEnd
}

// PastSquareOff reports whether intraday positions must be flattened at t.
func (s Session) PastSquareOff(t time.Time) bool {
	if s.AlwaysOpen {
		return false
	}
	local := t.In(s.loc())
	if !s.tradingDay(local) {
		return true
	}
	m := minuteOfDay(local)
	return m >= s.SquareOff || m < s.EntryStart
}

func (s Session) tradingDay(t time.Time) bool {
	if !s.WeekdaysOnly {
		return true
	}
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func (s Session) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// Table maps each market class to its session.
type Table map[model.MarketClass]Session

// For returns the session for market. Unknown markets are reported with ok=false.
func (t Table) For(market model.MarketClass) (Session, bool) {
	s, ok := t[market]
	return s, ok
}

func parseClock(v string) (int, error) {
	c, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", v, err)
	}
	return c.Hour()*60 + c.Minute(), nil
}

func minuteOfDay(t time.Time) int { return t.Hour()*60 + t.Minute() }
