package schedule

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classcal/internal/apperrors"
	"classcal/internal/auxstore"
	"classcal/internal/calendar"
	"classcal/internal/model"
	"classcal/internal/router"
	"classcal/internal/suggest"
	"classcal/internal/timenorm"
)

const (
	evenCal = "even@group.calendar.google.com"
	oddCal  = "odd@group.calendar.google.com"
)

type fixture struct {
	m   *Manager
	mem *calendar.Memory
	aux auxstore.Store
}

func newFixture(t *testing.T, now time.Time, events calendar.Events, client suggest.Client) fixture {
	t.Helper()
	norm, err := timenorm.New("Asia/Ho_Chi_Minh",
		[]string{"Asia/Ho_Chi_Minh", "UTC", "America/New_York"},
		map[string]string{"Asia/Ho_Chi_Minh": "Vietnam"})
	require.NoError(t, err)

	mem := calendar.NewMemory()
	if events == nil {
		events = mem
	}
	aux := auxstore.NewFile(filepath.Join(t.TempDir(), "classes_extra.json"))
	m := New(Options{
		Events:      events,
		Aux:         aux,
		Router:      router.New(evenCal, oddCal, model.PartitionOdd),
		Normalizer:  norm,
		Suggest:     client,
		ListHorizon: 365 * 24 * time.Hour,
		Now:         func() time.Time { return now },
	})
	return fixture{m: m, mem: mem, aux: aux}
}

var clock = time.Date(2024, 11, 20, 0, 0, 0, 0, time.UTC)

func linhRequest(start, end string) SessionRequest {
	return SessionRequest{
		Name:      "IELTS Speaking",
		ClassName: "IELTS-7",
		Teacher:   "Linh",
		JoinLink:  "https://zoom.us/j/111",
		Program:   "IELTS",
		MeetingID: "111 222 333",
		Passcode:  "abc",
		Start:     start,
		End:       end,
		TimeZone:  "Asia/Ho_Chi_Minh",
	}
}

func weekly(count int) SessionRequest {
	req := linhRequest("2024-11-28T09:00:00", "2024-11-28T10:00:00")
	req.Recurrence = "WEEKLY"
	req.RepeatCount = &count
	req.ByDay = []string{"TH"}
	return req
}

func TestCreateRoutesByLocalHour(t *testing.T) {
	f := newFixture(t, clock, nil, nil)
	ctx := context.Background()

	odd, err := f.m.Create(ctx, linhRequest("2024-11-28T09:00:00", "2024-11-28T10:00:00"))
	require.NoError(t, err)
	assert.Equal(t, model.PartitionOdd, odd.Partition)
	assert.Equal(t, oddCal, odd.CalendarID)
	assert.Equal(t, "2024-11-28T09:00:00+07:00", odd.StartRaw)
	assert.Equal(t, "Asia/Ho_Chi_Minh", odd.TimeZone)

	// 10:00+07:00 is 03:00 UTC; the local hour decides.
	even, err := f.m.Create(ctx, linhRequest("2024-11-28T10:00:00+07:00", "2024-11-28T11:00:00+07:00"))
	require.NoError(t, err)
	assert.Equal(t, model.PartitionEven, even.Partition)

	rec, ok, err := f.aux.Get(ctx, even.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, evenCal, rec.CalendarID)
	assert.Equal(t, "111 222 333", rec.MeetingID)

	got, err := f.m.Get(ctx, even.ID)
	require.NoError(t, err)
	assert.Equal(t, "Linh", got.Teacher)
	assert.Equal(t, "IELTS-7", got.ClassName)
	assert.Equal(t, "IELTS", got.Program)
	assert.Equal(t, "abc", got.Passcode)
	assert.Equal(t, "https://zoom.us/j/111", got.JoinLink)

	raw, err := f.mem.Get(ctx, evenCal, even.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://zoom.us/j/111", raw.Location)
	assert.Equal(t, "Classname: IELTS-7\nTeacher: Linh\nZoom: https://zoom.us/j/111\nMeeting ID: 111 222 333\nPasscode: abc\nProgram: IELTS", raw.Description)
	assert.Empty(t, raw.Recurrence)
}

func TestCreateRecurring(t *testing.T) {
	f := newFixture(t, clock, nil, nil)
	ctx := context.Background()

	master, err := f.m.Create(ctx, weekly(10))
	require.NoError(t, err)
	assert.Equal(t, []string{"RRULE:FREQ=WEEKLY;COUNT=10;BYDAY=TH;INTERVAL=1"}, master.Recurrence)
	assert.Equal(t, "Weekly on Thursday (Vietnam)", master.RecurrenceDescription)

	sessions, err := f.m.List(ctx, "odd")
	require.NoError(t, err)
	require.Len(t, sessions, 10)
	for _, s := range sessions {
		assert.Equal(t, master.ID, s.RecurringEventID)
		assert.Equal(t, "Linh", s.Teacher)
	}
}

func TestCreateRejects(t *testing.T) {
	f := newFixture(t, clock, nil, nil)
	ctx := context.Background()

	req := linhRequest("2024-11-28T09:00:00", "2024-11-28T10:00:00")
	req.Name = ""
	_, err := f.m.Create(ctx, req)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.m.Create(ctx, linhRequest("2024-11-28T10:00:00", "2024-11-28T09:00:00"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInterval)

	_, err = f.m.Create(ctx, linhRequest("28/11/2024 09:00", "2024-11-28T10:00:00"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidTimestamp)

	for _, mutate := range []func(*SessionRequest){
		func(r *SessionRequest) { r.ByDay = []string{"THURSDAY"} },
		func(r *SessionRequest) { r.Recurrence = "YEARLY"; r.ByMonth = []int{13} },
		func(r *SessionRequest) { r.Recurrence = "MONTHLY"; r.ByMonthDay = []int{0} },
		func(r *SessionRequest) { r.Recurrence = "HOURLY" },
	} {
		req = weekly(3)
		mutate(&req)
		_, err = f.m.Create(ctx, req)
		assert.ErrorIs(t, err, apperrors.ErrValidation, req.Recurrence)
	}

	sessions, err := f.m.List(ctx, "both")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestCreateIgnoresUnusedSelectors(t *testing.T) {
	f := newFixture(t, clock, nil, nil)
	ctx := context.Background()
	one := 1

	req := linhRequest("2024-11-28T09:00:00", "2024-11-28T10:00:00")
	req.Recurrence = "DAILY"
	req.RepeatCount = &one
	req.ByDay = []string{"MONDAY"}
	daily, err := f.m.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"RRULE:FREQ=DAILY;COUNT=1;INTERVAL=1"}, daily.Recurrence)

	req = weekly(2)
	req.Recurrence = "Weekly"
	req.ByMonthDay = []int{0}
	req.ByMonth = []int{13}
	weeklySession, err := f.m.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"RRULE:FREQ=WEEKLY;COUNT=2;BYDAY=TH;INTERVAL=1"}, weeklySession.Recurrence)
}

func TestCreateUnknownZoneUsesDefault(t *testing.T) {
	f := newFixture(t, clock, nil, nil)
	req := linhRequest("2024-11-28T09:00:00", "2024-11-28T10:00:00")
	req.TimeZone = "Mars/Olympus"

	s, err := f.m.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Asia/Ho_Chi_Minh", s.TimeZone)
	assert.Equal(t, "2024-11-28T09:00:00+07:00", s.StartRaw)
}

func TestUpdateInPlace(t *testing.T) {
	f := newFixture(t, clock, nil, nil)
	ctx := context.Background()
	created, err := f.m.Create(ctx, linhRequest("2024-11-28T09:00:00", "2024-11-28T10:00:00"))
	require.NoError(t, err)

	req := linhRequest("2024-11-28T11:00:00", "2024-11-28T12:00:00")
	req.Name = "IELTS Writing"
	req.Passcode = "xyz"
	updated, err := f.m.Update(ctx, created.ID, req)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, model.PartitionOdd, updated.Partition)
	assert.Equal(t, "IELTS Writing", updated.Title)

	rec, ok, err := f.aux.Get(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "xyz", rec.Passcode)
}

func TestUpdateMigratesPartition(t *testing.T) {
	f := newFixture(t, clock, nil, nil)
	ctx := context.Background()
	created, err := f.m.Create(ctx, linhRequest("2024-11-28T09:00:00", "2024-11-28T10:00:00"))
	require.NoError(t, err)

	moved, err := f.m.Update(ctx, created.ID, linhRequest("2024-11-28T14:00:00", "2024-11-28T15:00:00"))
	require.NoError(t, err)
	assert.NotEqual(t, created.ID, moved.ID)
	assert.Equal(t, model.PartitionEven, moved.Partition)
	assert.Equal(t, evenCal, moved.CalendarID)

	_, err = f.m.Get(ctx, created.ID)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)

	_, ok, err := f.aux.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, ok, "old aux record must be removed")
	rec, ok, err := f.aux.Get(ctx, moved.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, evenCal, rec.CalendarID)
}

func TestUpdateAndGetErrors(t *testing.T) {
	f := newFixture(t, clock, nil, nil)
	ctx := context.Background()
	req := linhRequest("2024-11-28T09:00:00", "2024-11-28T10:00:00")

	_, err := f.m.Update(ctx, "missing", req)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)

	for _, id := range []string{"", "undefined"} {
		_, err = f.m.Update(ctx, id, req)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
		_, err = f.m.Get(ctx, id)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
		_, err = f.m.Delete(ctx, id, model.DeleteThis)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	}

	f.mem.SetFailure(oddCal, errors.New("backend down"))
	_, err = f.m.Get(ctx, "any")
	assert.ErrorIs(t, err, apperrors.ErrRemoteService)
}

func TestDeleteSingle(t *testing.T) {
	f := newFixture(t, clock, nil, nil)
	ctx := context.Background()
	created, err := f.m.Create(ctx, linhRequest("2024-11-28T09:00:00", "2024-11-28T10:00:00"))
	require.NoError(t, err)

	res, err := f.m.Delete(ctx, created.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.DeleteThis, res.Mode)
	assert.Equal(t, []string{created.ID}, res.DeletedIDs)

	_, ok, err := f.aux.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.m.Delete(ctx, created.ID, model.DeleteThis)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)

	_, err = f.m.Delete(ctx, created.ID, "some")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func seriesFixture(t *testing.T, count int) (fixture, model.Session, []model.Session) {
	t.Helper()
	f := newFixture(t, clock, nil, nil)
	master, err := f.m.Create(context.Background(), weekly(count))
	require.NoError(t, err)
	instances, err := f.m.List(context.Background(), "odd")
	require.NoError(t, err)
	require.Len(t, instances, count)
	return f, master, instances
}

func TestDeleteThisInstance(t *testing.T) {
	f, _, instances := seriesFixture(t, 10)
	ctx := context.Background()

	_, err := f.m.Delete(ctx, instances[1].ID, model.DeleteThis)
	require.NoError(t, err)

	left, err := f.m.List(ctx, "odd")
	require.NoError(t, err)
	assert.Len(t, left, 9)
	for _, s := range left {
		assert.NotEqual(t, instances[1].ID, s.ID)
	}
}

func TestDeleteAllFromInstance(t *testing.T) {
	f, master, instances := seriesFixture(t, 10)
	ctx := context.Background()

	res, err := f.m.Delete(ctx, instances[4].ID, model.DeleteAll)
	require.NoError(t, err)
	assert.Equal(t, master.ID, res.MasterID)
	assert.Equal(t, master.ID, res.DeletedIDs[0])

	left, err := f.m.List(ctx, "both")
	require.NoError(t, err)
	assert.Empty(t, left)

	_, ok, err := f.aux.Get(ctx, master.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteFollowingFirstInstanceRemovesSeries(t *testing.T) {
	f, master, instances := seriesFixture(t, 10)
	ctx := context.Background()

	res, err := f.m.Delete(ctx, instances[0].ID, model.DeleteFollowing)
	require.NoError(t, err)
	assert.Equal(t, model.DeleteFollowing, res.Mode)
	assert.Equal(t, master.ID, res.MasterID)

	left, err := f.m.List(ctx, "both")
	require.NoError(t, err)
	assert.Empty(t, left)
	_, err = f.m.Get(ctx, master.ID)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestDeleteFollowingThirdInstance(t *testing.T) {
	f, master, instances := seriesFixture(t, 10)
	ctx := context.Background()

	res, err := f.m.Delete(ctx, instances[2].ID, model.DeleteFollowing)
	require.NoError(t, err)
	assert.Empty(t, res.Warning)
	assert.Equal(t, []string{instances[2].ID}, res.DeletedIDs)

	left, err := f.m.List(ctx, "odd")
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, instances[0].ID, left[0].ID)
	assert.Equal(t, instances[1].ID, left[1].ID)

	got, err := f.m.Get(ctx, master.ID)
	require.NoError(t, err)
	assert.Contains(t, got.Recurrence, "RRULE:FREQ=WEEKLY;BYDAY=TH;INTERVAL=1;UNTIL=20241212T015959Z")
}

// failingUpdate lets every call through except Update.
type failingUpdate struct {
	calendar.Events
}

func (failingUpdate) Update(context.Context, string, string, calendar.Event) (calendar.Event, error) {
	return calendar.Event{}, apperrors.New(apperrors.ErrRemoteService, "update", "backend error")
}

func TestDeleteFollowingMasterUpdateFailureIsAWarning(t *testing.T) {
	mem := calendar.NewMemory()
	f := newFixture(t, clock, failingUpdate{mem}, nil)
	ctx := context.Background()
	_, err := f.m.Create(ctx, weekly(10))
	require.NoError(t, err)
	instances, err := f.m.List(ctx, "odd")
	require.NoError(t, err)

	res, err := f.m.Delete(ctx, instances[2].ID, model.DeleteFollowing)
	require.NoError(t, err)
	assert.Contains(t, res.Warning, "recurrence")
	assert.Equal(t, []string{instances[2].ID}, res.DeletedIDs)

	left, err := f.m.List(ctx, "odd")
	require.NoError(t, err)
	assert.Len(t, left, 9, "instance stays deleted, series continues")
}

// unreadableInstance serves one instance with a start that cannot be parsed.
type unreadableInstance struct {
	calendar.Events
	id string
}

func (u unreadableInstance) Get(ctx context.Context, calendarID, id string) (calendar.Event, error) {
	ev, err := u.Events.Get(ctx, calendarID, id)
	if err == nil && id == u.id {
		ev.Start.DateTime = "not a time"
		ev.OriginalStart = calendar.EventTime{}
	}
	return ev, err
}

func TestDeleteFollowingUnreadableStartKeepsSeries(t *testing.T) {
	mem := calendar.NewMemory()
	events := &unreadableInstance{Events: mem}
	f := newFixture(t, clock, events, nil)
	ctx := context.Background()
	master, err := f.m.Create(ctx, weekly(10))
	require.NoError(t, err)
	instances, err := f.m.List(ctx, "odd")
	require.NoError(t, err)
	require.Len(t, instances, 10)
	events.id = instances[2].ID

	res, err := f.m.Delete(ctx, instances[2].ID, model.DeleteFollowing)
	require.NoError(t, err)
	assert.Equal(t, model.DeleteFollowing, res.Mode)
	assert.Equal(t, []string{instances[2].ID}, res.DeletedIDs)
	assert.Contains(t, res.Warning, "series left unchanged")

	left, err := f.m.List(ctx, "odd")
	require.NoError(t, err)
	assert.Len(t, left, 9)
	got, err := f.m.Get(ctx, master.ID)
	require.NoError(t, err)
	assert.Contains(t, got.Recurrence, master.Recurrence[0], "rule is not terminated")
}

func TestListPartitions(t *testing.T) {
	f := newFixture(t, clock, nil, nil)
	ctx := context.Background()
	_, err := f.m.Create(ctx, linhRequest("2024-11-28T09:00:00", "2024-11-28T10:00:00"))
	require.NoError(t, err)
	_, err = f.m.Create(ctx, linhRequest("2024-11-28T10:00:00", "2024-11-28T11:00:00"))
	require.NoError(t, err)

	for filter, n := range map[string]int{"odd": 1, "even": 1, "both": 2, "": 2} {
		got, err := f.m.List(ctx, filter)
		require.NoError(t, err)
		assert.Len(t, got, n, filter)
	}

	f.mem.SetFailure(evenCal, errors.New("quota"))
	got, err := f.m.List(ctx, "both")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.PartitionOdd, got[0].Partition)

	f.mem.SetFailure(oddCal, errors.New("quota"))
	_, err = f.m.List(ctx, "both")
	assert.ErrorIs(t, err, apperrors.ErrRemoteService)
}

func TestListDropsEndedSessions(t *testing.T) {
	later := time.Date(2024, 11, 28, 3, 30, 0, 0, time.UTC)
	f := newFixture(t, later, nil, nil)
	ctx := context.Background()
	_, err := f.m.Create(ctx, linhRequest("2024-11-28T09:00:00", "2024-11-28T10:00:00"))
	require.NoError(t, err)
	_, err = f.m.Create(ctx, linhRequest("2024-11-28T10:00:00", "2024-11-28T11:00:00"))
	require.NoError(t, err)

	got, err := f.m.List(ctx, "both")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2024-11-28T10:00:00+07:00", got[0].StartRaw)
}

func TestTimezonesAndDefaultMode(t *testing.T) {
	f := newFixture(t, clock, nil, nil)
	zones := f.m.Timezones()
	require.Len(t, zones, 3)
	assert.Equal(t, model.Timezone{Name: "Asia/Ho_Chi_Minh", Label: "Vietnam"}, zones[0])
	assert.Equal(t, model.DeleteThis, f.m.DefaultDeleteMode())
}
