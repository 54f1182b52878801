package calendar

import (
	"context"
	"errors"
	"net/http"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"classcal/internal/apperrors"
	appLog "classcal/internal/log"
)

const listPageSize = 2500

// GoogleOptions configures the Google Calendar backend.
type GoogleOptions struct {
	// CredentialsFile is a service-account JSON key.
	CredentialsFile string
	// Endpoint overrides the API base URL.
	Endpoint string
	// HTTPClient, when set, is used as-is and disables credential lookup.
	HTTPClient *http.Client
}

// Google talks to the Google Calendar v3 API.
type Google struct {
	svc *gcal.Service
}

func NewGoogle(ctx context.Context, opts GoogleOptions) (*Google, error) {
	var clientOpts []option.ClientOption
	switch {
	case opts.HTTPClient != nil:
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	case opts.CredentialsFile != "":
		clientOpts = append(clientOpts,
			option.WithCredentialsFile(opts.CredentialsFile),
			option.WithScopes(gcal.CalendarScope))
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	svc, err := gcal.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemoteService, "calendar init", err)
	}
	return &Google{svc: svc}, nil
}

func (g *Google) List(ctx context.Context, calendarID string, windowEnd time.Time) ([]Event, error) {
	call := g.svc.Events.List(calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		ShowDeleted(false).
		MaxResults(listPageSize).
		TimeMax(windowEnd.UTC().Format(time.RFC3339))

	var out []Event
	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			if item.Status == StatusCancelled {
				continue
			}
			out = append(out, fromAPI(item))
		}
		return nil
	})
	if err != nil {
		return nil, mapError("list", err)
	}
	appLog.Debug("calendar list", "calendar", calendarID, "count", len(out))
	return out, nil
}

func (g *Google) Get(ctx context.Context, calendarID, id string) (Event, error) {
	item, err := g.svc.Events.Get(calendarID, id).Context(ctx).Do()
	if err != nil {
		return Event{}, mapError("get", err)
	}
	return fromAPI(item), nil
}

func (g *Google) Insert(ctx context.Context, calendarID string, ev Event) (Event, error) {
	item, err := g.svc.Events.Insert(calendarID, toAPI(ev)).Context(ctx).Do()
	if err != nil {
		return Event{}, mapError("insert", err)
	}
	return fromAPI(item), nil
}

func (g *Google) Update(ctx context.Context, calendarID, id string, ev Event) (Event, error) {
	item, err := g.svc.Events.Update(calendarID, id, toAPI(ev)).Context(ctx).Do()
	if err != nil {
		return Event{}, mapError("update", err)
	}
	return fromAPI(item), nil
}

func (g *Google) Delete(ctx context.Context, calendarID, id string) error {
	if err := g.svc.Events.Delete(calendarID, id).Context(ctx).Do(); err != nil {
		return mapError("delete", err)
	}
	return nil
}

// mapError classifies API failures: 404 and 410 (already deleted) are
// not-found, everything else is a service error.
func mapError(op string, err error) error {
	var ae *googleapi.Error
	if errors.As(err, &ae) && (ae.Code == http.StatusNotFound || ae.Code == http.StatusGone) {
		return apperrors.Wrap(apperrors.ErrRemoteNotFound, op, err)
	}
	return apperrors.Wrap(apperrors.ErrRemoteService, op, err)
}

func toAPI(ev Event) *gcal.Event {
	item := &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.DateTime, TimeZone: ev.Start.TimeZone},
		End:         &gcal.EventDateTime{DateTime: ev.End.DateTime, TimeZone: ev.End.TimeZone},
		Recurrence:  ev.Recurrence,
		Status:      ev.Status,
	}
	if ev.RecurringEventID != "" {
		item.RecurringEventId = ev.RecurringEventID
		item.OriginalStartTime = &gcal.EventDateTime{DateTime: ev.OriginalStart.DateTime, TimeZone: ev.OriginalStart.TimeZone}
	}
	// Update replaces the whole resource; send empty recurrence explicitly
	// so a former series does not keep its rule.
	if ev.Recurrence == nil && ev.RecurringEventID == "" {
		item.ForceSendFields = append(item.ForceSendFields, "Recurrence")
	}
	return item
}

func fromAPI(item *gcal.Event) Event {
	ev := Event{
		ID:               item.Id,
		Summary:          item.Summary,
		Description:      item.Description,
		Location:         item.Location,
		Recurrence:       item.Recurrence,
		RecurringEventID: item.RecurringEventId,
		Status:           item.Status,
	}
	if item.Start != nil {
		ev.Start = EventTime{DateTime: item.Start.DateTime, TimeZone: item.Start.TimeZone}
	}
	if item.End != nil {
		ev.End = EventTime{DateTime: item.End.DateTime, TimeZone: item.End.TimeZone}
	}
	if item.OriginalStartTime != nil {
		ev.OriginalStart = EventTime{DateTime: item.OriginalStartTime.DateTime, TimeZone: item.OriginalStartTime.TimeZone}
	}
	return ev
}
