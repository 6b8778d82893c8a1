package domain

import "time"

// Clock tells the time in the location whose calendar decides what "today" is.
// The zero value uses time.Now in UTC.
type Clock struct {
	Location *time.Location
	NowFunc  func() time.Time
}

// NewClock returns a Clock on the wall time of loc.
func NewClock(loc *time.Location) Clock {
	return Clock{Location: loc}
}

// Now returns the current time in the clock's location.
func (c Clock) Now() time.Time {
	now := time.Now
	if c.NowFunc != nil {
		now = c.NowFunc
	}
	return now().In(c.location())
}

// Today returns the current calendar date in the clock's location, as midnight UTC.
func (c Clock) Today() time.Time {
	return DateOf(c.Now())
}

// At returns a copy of c frozen at t.
func (c Clock) At(t time.Time) Clock {
	c.NowFunc = func() time.Time { return t }
	return c
}

func (c Clock) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}
