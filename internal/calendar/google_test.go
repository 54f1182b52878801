package calendar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classcal/internal/apperrors"
)

// fakeCalendarAPI serves the handful of Calendar v3 routes the backend uses.
func fakeCalendarAPI(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var seen []string
	mux := http.NewServeMux()

	mux.HandleFunc("GET /calendars/{cal}/events", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.RawQuery)
		if r.URL.Query().Get("pageToken") == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"nextPageToken": "p2",
				"items": []map[string]any{
					{"id": "a", "summary": "Math", "status": "confirmed",
						"start": map[string]string{"dateTime": "2024-11-28T09:00:00+07:00", "timeZone": "Asia/Ho_Chi_Minh"},
						"end":   map[string]string{"dateTime": "2024-11-28T10:00:00+07:00", "timeZone": "Asia/Ho_Chi_Minh"}},
					{"id": "b", "status": "cancelled"},
				},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"id": "s_20241128T020000Z", "recurringEventId": "s", "status": "confirmed",
					"originalStartTime": map[string]string{"dateTime": "2024-11-28T09:00:00+07:00"}},
			},
		})
	})
	mux.HandleFunc("GET /calendars/{cal}/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "gone" {
			w.WriteHeader(http.StatusGone)
			_, _ = io.WriteString(w, `{"error":{"code":410,"message":"Resource has been deleted"}}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":404,"message":"Not Found"}}`)
	})
	mux.HandleFunc("POST /calendars/{cal}/events", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		body["id"] = "new1"
		_ = json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("DELETE /calendars/{cal}/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"code":500,"message":"backend error"}}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &seen
}

func newTestGoogle(t *testing.T) (*Google, *[]string) {
	srv, seen := fakeCalendarAPI(t)
	g, err := NewGoogle(context.Background(), GoogleOptions{
		HTTPClient: srv.Client(),
		Endpoint:   srv.URL + "/",
	})
	require.NoError(t, err)
	return g, seen
}

func TestGoogleListPagesAndFilters(t *testing.T) {
	g, seen := newTestGoogle(t)

	events, err := g.List(context.Background(), "odd", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Math", events[0].Summary)
	assert.Equal(t, "Asia/Ho_Chi_Minh", events[0].Start.TimeZone)
	assert.Equal(t, "s", events[1].RecurringEventID)
	assert.Equal(t, "2024-11-28T09:00:00+07:00", events[1].OriginalStart.DateTime)

	require.Len(t, *seen, 2)
	q := (*seen)[0]
	assert.Contains(t, q, "singleEvents=true")
	assert.Contains(t, q, "orderBy=startTime")
	assert.Contains(t, q, "maxResults=2500")
	assert.True(t, strings.Contains(q, "timeMax=2025-01-01T00%3A00%3A00Z"), q)
}

func TestGoogleErrorMapping(t *testing.T) {
	g, _ := newTestGoogle(t)
	ctx := context.Background()

	_, err := g.Get(ctx, "odd", "missing")
	assert.ErrorIs(t, err, apperrors.ErrRemoteNotFound)

	_, err = g.Get(ctx, "odd", "gone")
	assert.ErrorIs(t, err, apperrors.ErrRemoteNotFound)

	err = g.Delete(ctx, "odd", "x")
	assert.ErrorIs(t, err, apperrors.ErrRemoteService)
	assert.NotErrorIs(t, err, apperrors.ErrRemoteNotFound)
}

func TestGoogleInsertRoundTrip(t *testing.T) {
	g, _ := newTestGoogle(t)

	ev, err := g.Insert(context.Background(), "even", Event{
		Summary:    "Physics",
		Location:   "https://zoom.us/j/1",
		Start:      EventTime{DateTime: "2024-11-28T10:00:00+07:00", TimeZone: "Asia/Ho_Chi_Minh"},
		End:        EventTime{DateTime: "2024-11-28T11:00:00+07:00", TimeZone: "Asia/Ho_Chi_Minh"},
		Recurrence: []string{"RRULE:FREQ=DAILY;COUNT=2;INTERVAL=1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "new1", ev.ID)
	assert.Equal(t, "Physics", ev.Summary)
	assert.Equal(t, []string{"RRULE:FREQ=DAILY;COUNT=2;INTERVAL=1"}, ev.Recurrence)
	assert.Equal(t, "2024-11-28T11:00:00+07:00", ev.End.DateTime)
}
