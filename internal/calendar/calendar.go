// Package calendar is the client side of the remote calendar service: a
// small Events API implemented by Google Calendar and by an in-memory
// backend used for development and tests.
package calendar

import (
	"context"
	"time"
)

const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// EventTime is a wall-clock timestamp (RFC 3339) with its IANA zone name.
type EventTime struct {
	DateTime string
	TimeZone string
}

// Event is the subset of a remote calendar event the scheduler uses.
type Event struct {
	ID          string
	Summary     string
	Description string
	Location    string
	Start       EventTime
	End         EventTime

	// Recurrence holds RRULE/EXDATE lines on series masters.
	Recurrence []string

	// RecurringEventID and OriginalStart are set on series instances.
	RecurringEventID string
	OriginalStart    EventTime

	Status string
}

// Events is the remote calendar API. Implementations return errors that
// match apperrors.ErrRemoteNotFound for missing events and
// apperrors.ErrRemoteService for anything else.
type Events interface {
	// List returns non-cancelled events of a calendar with recurring
	// series expanded into instances, ordered by start, up to windowEnd.
	List(ctx context.Context, calendarID string, windowEnd time.Time) ([]Event, error)
	Get(ctx context.Context, calendarID, id string) (Event, error)
	Insert(ctx context.Context, calendarID string, ev Event) (Event, error)
	Update(ctx context.Context, calendarID, id string, ev Event) (Event, error)
	Delete(ctx context.Context, calendarID, id string) error
}
