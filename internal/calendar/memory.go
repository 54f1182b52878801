package calendar

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"classcal/internal/apperrors"
	"classcal/internal/recurrence"
	"classcal/internal/timenorm"
)

const instanceIDLayout = "20060102T150405Z"

// Memory is an in-process Events implementation that behaves like the
// Google backend for the operations the scheduler uses: masters expand
// into instances with ids "<master>_<UTC start>", deleting an instance adds
// an EXDATE to its master, and deleting a master removes the series.
type Memory struct {
	mu       sync.Mutex
	cals     map[string]map[string]Event
	failures map[string]error
}

func NewMemory() *Memory {
	return &Memory{
		cals:     make(map[string]map[string]Event),
		failures: make(map[string]error),
	}
}

// SetFailure makes every call against calendarID fail with a service error
// wrapping err. A nil err clears it.
func (m *Memory) SetFailure(calendarID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, calendarID)
		return
	}
	m.failures[calendarID] = err
}

func (m *Memory) List(_ context.Context, calendarID string, windowEnd time.Time) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("list", calendarID); err != nil {
		return nil, err
	}

	var out []Event
	for _, ev := range m.cals[calendarID] {
		if ev.Status == StatusCancelled {
			continue
		}
		if _, ok := recurrence.RuleLine(ev.Recurrence); ok {
			out = append(out, m.instances(ev, windowEnd)...)
			continue
		}
		start, err := eventStart(ev.Start)
		if err == nil && start.After(windowEnd) {
			continue
		}
		out = append(out, ev)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, _ := eventStart(out[i].Start)
		b, _ := eventStart(out[j].Start)
		if a.Equal(b) {
			return out[i].ID < out[j].ID
		}
		return a.Before(b)
	})
	return out, nil
}

func (m *Memory) Get(_ context.Context, calendarID, id string) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("get", calendarID); err != nil {
		return Event{}, err
	}

	if ev, ok := m.cals[calendarID][id]; ok {
		return ev, nil
	}
	if inst, ok := m.instance(calendarID, id); ok {
		return inst, nil
	}
	return Event{}, notFound("get", calendarID, id)
}

func (m *Memory) Insert(_ context.Context, calendarID string, ev Event) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("insert", calendarID); err != nil {
		return Event{}, err
	}

	ev.ID = strings.ReplaceAll(uuid.NewString(), "-", "")
	if ev.Status == "" {
		ev.Status = StatusConfirmed
	}
	ev.Recurrence = append([]string(nil), ev.Recurrence...)
	m.calendar(calendarID)[ev.ID] = ev
	return ev, nil
}

func (m *Memory) Update(_ context.Context, calendarID, id string, ev Event) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("update", calendarID); err != nil {
		return Event{}, err
	}

	cal := m.calendar(calendarID)
	if cur, ok := cal[id]; ok && cur.Status != StatusCancelled {
		ev.ID = id
		ev.RecurringEventID = cur.RecurringEventID
		ev.OriginalStart = cur.OriginalStart
		if ev.Status == "" {
			ev.Status = cur.Status
		}
		ev.Recurrence = append([]string(nil), ev.Recurrence...)
		cal[id] = ev
		return ev, nil
	}

	// Editing a single instance detaches it as an exception: the master
	// skips that start and the edited copy is stored under the instance id.
	inst, ok := m.instance(calendarID, id)
	if !ok {
		return Event{}, notFound("update", calendarID, id)
	}
	master := cal[inst.RecurringEventID]
	master.Recurrence = append(master.Recurrence, recurrence.ExDateLine(mustStart(inst.OriginalStart)))
	cal[master.ID] = master

	ev.ID = id
	ev.RecurringEventID = inst.RecurringEventID
	ev.OriginalStart = inst.OriginalStart
	ev.Recurrence = nil
	if ev.Status == "" {
		ev.Status = StatusConfirmed
	}
	cal[id] = ev
	return ev, nil
}

func (m *Memory) Delete(_ context.Context, calendarID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("delete", calendarID); err != nil {
		return err
	}

	cal := m.calendar(calendarID)
	if ev, ok := cal[id]; ok {
		if ev.Status == StatusCancelled {
			return notFound("delete", calendarID, id)
		}
		delete(cal, id)
		// A master takes its detached exceptions with it.
		for otherID, other := range cal {
			if other.RecurringEventID == id {
				delete(cal, otherID)
			}
		}
		return nil
	}

	inst, ok := m.instance(calendarID, id)
	if !ok {
		return notFound("delete", calendarID, id)
	}
	master := cal[inst.RecurringEventID]
	master.Recurrence = append(master.Recurrence, recurrence.ExDateLine(mustStart(inst.OriginalStart)))
	cal[master.ID] = master
	return nil
}

func (m *Memory) calendar(id string) map[string]Event {
	cal, ok := m.cals[id]
	if !ok {
		cal = make(map[string]Event)
		m.cals[id] = cal
	}
	return cal
}

func (m *Memory) failure(op, calendarID string) error {
	if err, ok := m.failures[calendarID]; ok {
		return apperrors.Wrap(apperrors.ErrRemoteService, op, err)
	}
	return nil
}

// instance resolves a "<master>_<UTC start>" id to a live occurrence.
func (m *Memory) instance(calendarID, id string) (Event, bool) {
	i := strings.LastIndex(id, "_")
	if i <= 0 {
		return Event{}, false
	}
	master, ok := m.cals[calendarID][id[:i]]
	if !ok || master.Status == StatusCancelled {
		return Event{}, false
	}
	at, err := time.Parse(instanceIDLayout, id[i+1:])
	if err != nil {
		return Event{}, false
	}
	dtstart, err := eventStart(master.Start)
	if err != nil {
		return Event{}, false
	}
	occ, _, err := recurrence.Expand(master.Recurrence, dtstart, recurrence.ExpandConfig{RangeStart: at, RangeEnd: at})
	if err != nil || len(occ) == 0 {
		return Event{}, false
	}
	return m.materialize(master, dtstart, occ[0]), true
}

func (m *Memory) instances(master Event, windowEnd time.Time) []Event {
	dtstart, err := eventStart(master.Start)
	if err != nil {
		return nil
	}
	occ, _, err := recurrence.Expand(master.Recurrence, dtstart, recurrence.ExpandConfig{
		RangeStart: dtstart,
		RangeEnd:   windowEnd,
	})
	if err != nil {
		return nil
	}
	out := make([]Event, 0, len(occ))
	for _, at := range occ {
		out = append(out, m.materialize(master, dtstart, at))
	}
	return out
}

func (m *Memory) materialize(master Event, dtstart, at time.Time) Event {
	dur := time.Hour
	if end, err := eventStart(master.End); err == nil {
		dur = end.Sub(dtstart)
	}
	ts := EventTime{DateTime: at.Format(timenorm.Layout), TimeZone: master.Start.TimeZone}
	return Event{
		ID:               master.ID + "_" + at.UTC().Format(instanceIDLayout),
		Summary:          master.Summary,
		Description:      master.Description,
		Location:         master.Location,
		Start:            ts,
		End:              EventTime{DateTime: at.Add(dur).Format(timenorm.Layout), TimeZone: master.End.TimeZone},
		RecurringEventID: master.ID,
		OriginalStart:    ts,
		Status:           master.Status,
	}
}

// eventStart parses an EventTime in its own zone so that series keep their
// wall clock across DST changes.
func eventStart(et EventTime) (time.Time, error) {
	loc := time.UTC
	if et.TimeZone != "" {
		if l, err := time.LoadLocation(et.TimeZone); err == nil {
			loc = l
		}
	}
	t, err := timenorm.Parse(et.DateTime, loc)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}

func mustStart(et EventTime) time.Time {
	t, _ := eventStart(et)
	return t
}

func notFound(op, calendarID, id string) error {
	return apperrors.New(apperrors.ErrRemoteNotFound, op, "event "+id+" not found in "+calendarID)
}
