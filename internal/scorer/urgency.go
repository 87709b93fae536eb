package scorer

import (
	"time"

	"github.com/sells-group/property-scorer/internal/model"
)

// urgency is the event chosen to drive the urgency factor.
type urgency struct {
	days    *int
	event   *model.DistressEvent
	undated int // active events without a date
}

// selectUrgency picks the earliest active event dated today or later. When
// every dated active event is in the past it falls back to the most recent
// one, yielding negative days. Inactive events never count; urgency is never
// summed across events.
func selectUrgency(events []model.DistressEvent, now time.Time) urgency {
	today := civilDate(now)

	var (
		u                   urgency
		upcoming, past      *model.DistressEvent
		upcomingDays, pastD int
	)
	for i := range events {
		e := &events[i]
		if !e.IsActive() {
			continue
		}
		if e.EventDate == nil {
			u.undated++
			continue
		}
		d := DaysBetween(today, civilDate(*e.EventDate))
		if d >= 0 {
			if upcoming == nil || d < upcomingDays {
				upcoming, upcomingDays = e, d
			}
			continue
		}
		if past == nil || d > pastD {
			past, pastD = e, d
		}
	}

	switch {
	case upcoming != nil:
		u.event, u.days = upcoming, &upcomingDays
	case past != nil:
		u.event, u.days = past, &pastD
	}
	return u
}

// civilDate truncates t to midnight of its UTC calendar date.
func civilDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole calendar days from a to b (negative when b
// is earlier). Both must be UTC midnights.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// UrgencyDays exposes the urgency selection for callers that only need the
// day count, such as list views.
func UrgencyDays(events []model.DistressEvent, now time.Time) *int {
	return selectUrgency(events, now).days
}
