package ical

import (
	"fmt"
	"io"
	"time"

	goical "github.com/emersion/go-ical"

	"github.com/beekhof/astrocal/internal/calendar"
)

const productID = "-//astrocal//astrocal//EN"

// Encode writes the labelled days of month as all-day events.
func Encode(w io.Writer, month calendar.Month, now time.Time) error {
	cal := goical.NewCalendar()
	cal.Props.SetText(goical.PropVersion, "2.0")
	cal.Props.SetText(goical.PropProductID, productID)
	cal.Props.SetText("X-WR-CALNAME", month.Label)

	for _, ev := range month.Events() {
		cal.Children = append(cal.Children, newEvent(ev.Date, ev.Label, now))
	}

	if len(cal.Children) == 0 {
		// RFC 5545 requires at least one component.
		cal.Children = append(cal.Children, emptyTimezone())
	}

	if err := goical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

func newEvent(day calendar.Date, label string, now time.Time) *goical.Component {
	event := goical.NewEvent()
	event.Props.SetText(goical.PropUID, fmt.Sprintf("%s@astrocal", day.Key()))
	event.Props.SetDateTime(goical.PropDateTimeStamp, now.UTC())
	event.Props.SetText(goical.PropSummary, label)

	start := goical.NewProp(goical.PropDateTimeStart)
	start.SetDate(day.Time())
	event.Props.Set(start)

	end := goical.NewProp(goical.PropDateTimeEnd)
	end.SetDate(day.Time().AddDate(0, 0, 1))
	event.Props.Set(end)

	return event.Component
}

func emptyTimezone() *goical.Component {
	tz := goical.NewComponent(goical.CompTimezone)
	tz.Props.SetText(goical.PropTimezoneID, "UTC")
	std := goical.NewComponent(goical.CompTimezoneStandard)
	std.Props.SetDateTime(goical.PropDateTimeStart, time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC))
	std.Props.SetText(goical.PropTimezoneOffsetFrom, "+0000")
	std.Props.SetText(goical.PropTimezoneOffsetTo, "+0000")
	tz.Children = append(tz.Children, std)
	return tz
}
