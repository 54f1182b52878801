package schedule

import (
	"strings"
	"time"

	"classcal/internal/calendar"
	"classcal/internal/model"
	"classcal/internal/timenorm"
)

// Keys of the description block written on every remote event.
const (
	keyClassName  = "Classname"
	keyTeacher    = "Teacher"
	keyJoinLink   = "Zoom"
	keyMeetingID  = "Meeting ID"
	keyPasscode   = "Passcode"
	keyProgram    = "Program"
	keyRecurrence = "Recurrence"
)

// describeBlock renders the fixed description block. The recurrence line
// is only present for series.
func describeBlock(r SessionRequest, recurrenceText string) string {
	lines := []string{
		keyClassName + ": " + r.ClassName,
		keyTeacher + ": " + r.Teacher,
		keyJoinLink + ": " + r.JoinLink,
		keyMeetingID + ": " + r.MeetingID,
		keyPasscode + ": " + r.Passcode,
		keyProgram + ": " + r.Program,
	}
	if recurrenceText != "" {
		lines = append(lines, keyRecurrence+": "+recurrenceText)
	}
	return strings.Join(lines, "\n")
}

// parseBlock reads "Key: value" lines back. Unknown lines are ignored.
func parseBlock(desc string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(desc, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out
}

// toSession decodes a remote event listed from calendarID.
func toSession(ev calendar.Event, p model.Partition, calendarID string) model.Session {
	block := parseBlock(ev.Description)
	s := model.Session{
		ID:                    ev.ID,
		Title:                 ev.Summary,
		Teacher:               block[keyTeacher],
		ClassName:             block[keyClassName],
		Program:               block[keyProgram],
		JoinLink:              block[keyJoinLink],
		MeetingID:             block[keyMeetingID],
		Passcode:              block[keyPasscode],
		StartRaw:              ev.Start.DateTime,
		EndRaw:                ev.End.DateTime,
		TimeZone:              ev.Start.TimeZone,
		Recurrence:            ev.Recurrence,
		RecurrenceDescription: block[keyRecurrence],
		RecurringEventID:      ev.RecurringEventID,
		Partition:             p,
		CalendarID:            calendarID,
		Status:                model.StatusActive,
	}
	if s.JoinLink == "" {
		s.JoinLink = ev.Location
	}
	if ev.Status == calendar.StatusCancelled {
		s.Status = model.StatusCancelled
	}
	s.Start, _ = eventTime(ev.Start)
	s.End, _ = eventTime(ev.End)
	if ev.OriginalStart.DateTime != "" {
		s.OriginalStart, _ = eventTime(ev.OriginalStart)
	}
	return s
}

// eventTime parses a remote timestamp, reading offset-less values in the
// event's own zone.
func eventTime(et calendar.EventTime) (time.Time, error) {
	loc := time.UTC
	if et.TimeZone != "" {
		if l, err := time.LoadLocation(et.TimeZone); err == nil {
			loc = l
		}
	}
	return timenorm.Parse(et.DateTime, loc)
}
