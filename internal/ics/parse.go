package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "classcal/internal/log"
)

// FeedEvent is a VEVENT read back from a rendered feed.
type FeedEvent struct {
	ID          string
	Summary     string
	Description string
	Location    string
	Teacher     string
	Partition   string
	Start       time.Time
	End         time.Time
}

// Parse reads a feed produced by Render. Events without a UID are skipped.
func Parse(body []byte) ([]FeedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err)
		return nil, err
	}

	events := make([]FeedEvent, 0)
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (FeedEvent, error) {
	var out FeedEvent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.ID = strings.TrimSuffix(uid.Value, uidDomain)

	out.Summary = value(ve, ical.ComponentPropertySummary)
	out.Description = value(ve, ical.ComponentPropertyDescription)
	out.Location = value(ve, ical.ComponentPropertyLocation)
	out.Teacher = value(ve, propTeacher)
	out.Partition = value(ve, propPartition)

	// Render always writes UTC, so the library's parse is exact here.
	out.Start, _ = ve.GetStartAt()
	out.End, _ = ve.GetEndAt()
	return out, nil
}

func value(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return prop.Value
	}
	return ""
}
