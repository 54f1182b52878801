// Package ics renders listed sessions as an iCalendar feed so calendar
// clients can subscribe to the schedule.
package ics

import (
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "classcal/internal/log"
	"classcal/internal/model"
)

const (
	productID = "-//classcal//Class Schedule//EN"
	uidDomain = "@classcal"

	propPartition = ical.ComponentProperty("X-CLASSCAL-CALENDAR")
	propTeacher   = ical.ComponentProperty("X-CLASSCAL-TEACHER")
)

// Render writes sessions to w as a VCALENDAR named name. Sessions without
// a usable interval are skipped.
func Render(w io.Writer, name string, sessions []model.Session, now time.Time) error {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	cal.SetCalscale("GREGORIAN")
	if name != "" {
		cal.SetXWRCalName(name)
	}

	skipped := 0
	for _, s := range sessions {
		if s.Start.IsZero() || !s.End.After(s.Start) {
			skipped++
			continue
		}
		ev := cal.AddEvent(s.ID + uidDomain)
		ev.SetDtStampTime(now)
		ev.SetStartAt(s.Start)
		ev.SetEndAt(s.End)
		ev.SetSummary(s.Title)
		ev.SetDescription(description(s))
		if s.JoinLink != "" {
			ev.SetLocation(s.JoinLink)
		}
		ev.SetStatus(ical.ObjectStatusConfirmed)
		if s.Partition != "" {
			ev.SetProperty(propPartition, string(s.Partition))
		}
		if s.Teacher != "" {
			ev.SetProperty(propTeacher, s.Teacher)
		}
	}

	if skipped > 0 {
		appLog.Warn("ics: skipped sessions without interval", "count", skipped)
	}
	return cal.SerializeTo(w)
}

func description(s model.Session) string {
	var lines []string
	add := func(label, v string) {
		if v != "" {
			lines = append(lines, label+": "+v)
		}
	}
	add("Teacher", s.Teacher)
	add("Class", s.ClassName)
	add("Program", s.Program)
	add("Join", s.JoinLink)
	add("Meeting ID", s.MeetingID)
	add("Passcode", s.Passcode)
	add("Repeats", s.RecurrenceDescription)
	return strings.Join(lines, "\n")
}
