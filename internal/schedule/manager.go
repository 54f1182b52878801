// Package schedule is the session lifecycle manager. It ties the router,
// the recurrence builder, the remote calendar and the auxiliary store
// together and owns the create, update and delete flows.
package schedule

import (
	"context"
	"time"

	"classcal/internal/apperrors"
	"classcal/internal/auxstore"
	"classcal/internal/calendar"
	"classcal/internal/conflict"
	appLog "classcal/internal/log"
	"classcal/internal/metrics"
	"classcal/internal/model"
	"classcal/internal/recurrence"
	"classcal/internal/router"
	"classcal/internal/suggest"
	"classcal/internal/timenorm"
)

const (
	defaultListHorizon   = 60 * 24 * time.Hour
	defaultFirstInstance = 60 * time.Second
)

// Options wires a Manager. Suggest may be nil.
type Options struct {
	Events     calendar.Events
	Aux        auxstore.Store
	Router     *router.Router
	Normalizer *timenorm.Normalizer
	Suggest    suggest.Client

	// ListHorizon bounds how far ahead List looks.
	ListHorizon time.Duration
	// FirstInstanceTolerance is how close an instance must start to its
	// series start to count as the first instance.
	FirstInstanceTolerance time.Duration

	Now func() time.Time
}

type Manager struct {
	events   calendar.Events
	aux      auxstore.Store
	router   *router.Router
	norm     *timenorm.Normalizer
	suggest  suggest.Client
	detector *conflict.Detector

	horizon   time.Duration
	tolerance time.Duration
	now       func() time.Time
}

func New(opts Options) *Manager {
	m := &Manager{
		events:    opts.Events,
		aux:       opts.Aux,
		router:    opts.Router,
		norm:      opts.Normalizer,
		suggest:   opts.Suggest,
		detector:  conflict.NewDetector(opts.Normalizer, opts.Suggest),
		horizon:   opts.ListHorizon,
		tolerance: opts.FirstInstanceTolerance,
		now:       opts.Now,
	}
	if m.horizon <= 0 {
		m.horizon = defaultListHorizon
	}
	if m.tolerance <= 0 {
		m.tolerance = defaultFirstInstance
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// located is a remote event together with the partition it was found in.
type located struct {
	ev         calendar.Event
	partition  model.Partition
	calendarID string
}

// Create inserts a new session into the partition chosen by its start hour
// and records its auxiliary metadata.
func (m *Manager) Create(ctx context.Context, req SessionRequest) (s model.Session, err error) {
	defer func() { metrics.Lifecycle("create", err) }()

	if err := req.Validate(); err != nil {
		return model.Session{}, err
	}
	return m.create(ctx, req)
}

func (m *Manager) create(ctx context.Context, req SessionRequest) (model.Session, error) {
	ev, err := m.compose(req)
	if err != nil {
		return model.Session{}, err
	}

	p := m.router.Route(req.Start)
	calID := m.router.CalendarID(p)
	created, err := m.events.Insert(ctx, calID, ev)
	if err != nil {
		appLog.Error("create session failed", err, "partition", string(p))
		return model.Session{}, err
	}
	appLog.Info("session created", "id", created.ID, "partition", string(p), "recurring", len(ev.Recurrence) > 0)

	rec := auxRecord(req, calID)
	m.putAux(ctx, created.ID, rec)

	s := toSession(created, p, calID)
	rec.Apply(&s)
	return s, nil
}

// Update rewrites a session. When the new start hour has the other parity
// the session moves: the old event is deleted and a new one created in the
// target partition, so the returned id differs from id.
func (m *Manager) Update(ctx context.Context, id string, req SessionRequest) (s model.Session, err error) {
	defer func() { metrics.Lifecycle("update", err) }()

	if err := checkID(id); err != nil {
		return model.Session{}, err
	}
	if err := req.Validate(); err != nil {
		return model.Session{}, err
	}

	cur, err := m.locate(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	next, err := m.compose(req)
	if err != nil {
		return model.Session{}, err
	}

	target := m.router.Route(req.Start)
	if target != cur.partition {
		appLog.Info("session changes partition", "id", id, "from", string(cur.partition), "to", string(target))
		if err := m.events.Delete(ctx, cur.calendarID, id); err != nil && !apperrors.Is(err, apperrors.ErrRemoteNotFound) {
			return model.Session{}, err
		}
		m.deleteAux(ctx, id)
		return m.create(ctx, req)
	}

	if cur.ev.RecurringEventID != "" {
		// Instances cannot carry their own rule.
		next.Recurrence = nil
	}
	updated, err := m.events.Update(ctx, cur.calendarID, id, next)
	if err != nil {
		appLog.Error("update session failed", err, "id", id, "partition", string(cur.partition))
		return model.Session{}, err
	}
	appLog.Info("session updated", "id", id, "partition", string(cur.partition))

	rec := auxRecord(req, cur.calendarID)
	m.putAux(ctx, id, rec)

	s = toSession(updated, cur.partition, cur.calendarID)
	rec.Apply(&s)
	return s, nil
}

// Delete removes a session in the given mode. An empty mode means
// model.DefaultDeleteMode.
func (m *Manager) Delete(ctx context.Context, id string, mode model.DeleteMode) (res model.DeleteResult, err error) {
	defer func() { metrics.Lifecycle("delete", err) }()

	if err := checkID(id); err != nil {
		return model.DeleteResult{}, err
	}
	if mode == "" {
		mode = model.DefaultDeleteMode
	}
	if !mode.Valid() {
		return model.DeleteResult{}, apperrors.New(apperrors.ErrValidation, "delete", "unknown delete mode "+string(mode))
	}

	cur, err := m.locate(ctx, id)
	if err != nil {
		return model.DeleteResult{}, err
	}
	appLog.Info("deleting session", "id", id, "partition", string(cur.partition), "mode", string(mode))

	switch mode {
	case model.DeleteAll:
		return m.deleteAll(ctx, cur)
	case model.DeleteFollowing:
		return m.deleteFollowing(ctx, cur)
	default:
		return m.deleteThis(ctx, cur)
	}
}

func (m *Manager) deleteThis(ctx context.Context, cur located) (model.DeleteResult, error) {
	if err := m.events.Delete(ctx, cur.calendarID, cur.ev.ID); err != nil {
		return model.DeleteResult{}, m.notFound(err, cur.ev.ID)
	}
	m.deleteAux(ctx, cur.ev.ID)
	return model.DeleteResult{Mode: model.DeleteThis, DeletedIDs: []string{cur.ev.ID}}, nil
}

func (m *Manager) deleteAll(ctx context.Context, cur located) (model.DeleteResult, error) {
	id := cur.ev.ID
	masterID := cur.ev.RecurringEventID
	if masterID == "" {
		masterID = id
	}

	if err := m.events.Delete(ctx, cur.calendarID, masterID); err != nil {
		return model.DeleteResult{}, m.notFound(err, masterID)
	}
	res := model.DeleteResult{Mode: model.DeleteAll, DeletedIDs: []string{masterID}, MasterID: masterID}

	if id != masterID {
		// The instance usually went with its master; a detached one may not.
		switch err := m.events.Delete(ctx, cur.calendarID, id); {
		case err == nil:
			res.DeletedIDs = append(res.DeletedIDs, id)
		case !apperrors.Is(err, apperrors.ErrRemoteNotFound):
			appLog.Error("delete instance after master failed", err, "id", id, "master", masterID)
		}
		m.deleteAux(ctx, id)
	}
	m.deleteAux(ctx, masterID)
	return res, nil
}

// deleteFollowing removes the instance and everything after it. The first
// instance collapses to deleteAll. A failure rewriting the master after
// the instance is gone is reported in the result, not returned.
func (m *Manager) deleteFollowing(ctx context.Context, cur located) (model.DeleteResult, error) {
	masterID := cur.ev.RecurringEventID
	if masterID == "" {
		return m.following(m.deleteAll(ctx, cur))
	}

	master, err := m.events.Get(ctx, cur.calendarID, masterID)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrRemoteNotFound) {
			return model.DeleteResult{}, err
		}
		appLog.Warn("series master not found, deleting instance only", "id", cur.ev.ID, "master", masterID)
		res, err := m.deleteThis(ctx, cur)
		res.Mode = model.DeleteFollowing
		return res, err
	}

	instStart := instanceStart(cur.ev)
	masterStart, _ := eventTime(master.Start)
	if recurrence.IsFirstInstance(masterStart, master.Recurrence, instStart, m.tolerance) {
		appLog.Info("first instance of series, deleting whole series", "id", cur.ev.ID, "master", masterID)
		return m.following(m.deleteAll(ctx, cur))
	}

	if err := m.events.Delete(ctx, cur.calendarID, cur.ev.ID); err != nil {
		return model.DeleteResult{}, m.notFound(err, cur.ev.ID)
	}
	m.deleteAux(ctx, cur.ev.ID)
	res := model.DeleteResult{Mode: model.DeleteFollowing, DeletedIDs: []string{cur.ev.ID}, MasterID: masterID}

	if instStart.IsZero() {
		err := apperrors.New(apperrors.ErrRecurrenceMutation, "delete following", "instance start unreadable, series left unchanged")
		appLog.Error("cannot terminate series", err, "id", cur.ev.ID, "master", masterID)
		res.Warning = err.Error()
		return res, nil
	}
	lines, ok := recurrence.TerminateLines(master.Recurrence, instStart)
	if !ok {
		err := apperrors.New(apperrors.ErrRecurrenceMutation, "delete following", "series master has no recurrence rule")
		appLog.Error("cannot terminate series", err, "master", masterID)
		res.Warning = err.Error()
		return res, nil
	}
	master.Recurrence = lines
	if _, err := m.events.Update(ctx, cur.calendarID, masterID, master); err != nil {
		werr := apperrors.Wrap(apperrors.ErrRecurrenceMutation, "delete following", err)
		appLog.Error("instance deleted but series master not updated", werr, "id", cur.ev.ID, "master", masterID)
		res.Warning = werr.Error()
		return res, nil
	}
	appLog.Info("series terminated", "master", masterID, "before", instStart)
	return res, nil
}

func (m *Manager) following(res model.DeleteResult, err error) (model.DeleteResult, error) {
	if err == nil {
		res.Mode = model.DeleteFollowing
	}
	return res, err
}

// List returns the sessions of the partitions named by filter ("odd",
// "even" or "both") that have not ended yet, with auxiliary fields merged.
// A failing partition is skipped; the call fails only when all do.
func (m *Manager) List(ctx context.Context, filter string) ([]model.Session, error) {
	now := m.now()
	windowEnd := now.Add(m.horizon)

	extra, err := m.aux.All(ctx)
	if err != nil {
		appLog.Error("read aux store failed, listing without it", err)
		extra = nil
	}

	parts := router.Resolve(filter)
	var (
		out      []model.Session
		failures int
		lastErr  error
	)
	for _, p := range parts {
		calID := m.router.CalendarID(p)
		events, err := m.events.List(ctx, calID, windowEnd)
		if err != nil {
			failures++
			lastErr = err
			appLog.Error("list partition failed", err, "partition", string(p))
			continue
		}
		for _, ev := range events {
			if ev.Status == calendar.StatusCancelled {
				continue
			}
			s := toSession(ev, p, calID)
			if !s.End.IsZero() && s.End.Before(now) {
				continue
			}
			if rec, ok := extra[s.ID]; ok {
				rec.Apply(&s)
			}
			out = append(out, s)
		}
	}
	if failures == len(parts) {
		return nil, apperrors.Wrapf(apperrors.ErrRemoteService, "list", "every partition failed", lastErr)
	}
	appLog.Debug("listed sessions", "filter", filter, "count", len(out))
	return out, nil
}

// Get fetches one session, probing odd then even.
func (m *Manager) Get(ctx context.Context, id string) (model.Session, error) {
	if err := checkID(id); err != nil {
		return model.Session{}, err
	}
	cur, err := m.locate(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	s := toSession(cur.ev, cur.partition, cur.calendarID)
	rec, ok, err := m.aux.Get(ctx, id)
	if err != nil {
		appLog.Error("read aux record failed", err, "id", id)
	} else if ok {
		rec.Apply(&s)
	}
	return s, nil
}

// Timezones lists the supported zones.
func (m *Manager) Timezones() []model.Timezone {
	return m.norm.Timezones()
}

// DefaultDeleteMode is the mode used when a caller does not name one.
func (m *Manager) DefaultDeleteMode() model.DeleteMode {
	return model.DefaultDeleteMode
}

// Locate reports the partition holding id. It is used by the
// reconciliation job; a missing session is ErrSessionNotFound.
func (m *Manager) Locate(ctx context.Context, id string) (model.Partition, error) {
	cur, err := m.locate(ctx, id)
	if err != nil {
		return "", err
	}
	return cur.partition, nil
}

// locate probes every partition for id. Not-found in one partition moves
// on to the next; any other error stops the probe.
func (m *Manager) locate(ctx context.Context, id string) (located, error) {
	for _, p := range model.Partitions {
		calID := m.router.CalendarID(p)
		ev, err := m.events.Get(ctx, calID, id)
		switch {
		case err == nil && ev.Status != calendar.StatusCancelled:
			return located{ev: ev, partition: p, calendarID: calID}, nil
		case err == nil, apperrors.Is(err, apperrors.ErrRemoteNotFound):
			continue
		default:
			return located{}, err
		}
	}
	return located{}, apperrors.New(apperrors.ErrSessionNotFound, "locate", "session "+id+" not found in any calendar")
}

// compose builds the remote event payload for req.
func (m *Manager) compose(req SessionRequest) (calendar.Event, error) {
	zone, loc := m.norm.Zone(req.TimeZone)
	start, startAt, err := m.norm.Localize(req.Start, zone)
	if err != nil {
		return calendar.Event{}, err
	}
	end, endAt, err := m.norm.Localize(req.End, zone)
	if err != nil {
		return calendar.Event{}, err
	}
	if !endAt.After(startAt) {
		return calendar.Event{}, apperrors.New(apperrors.ErrInvalidInterval, "compose", "end must be after start")
	}

	d, err := req.Descriptor(loc)
	if err != nil {
		return calendar.Event{}, err
	}
	var (
		lines []string
		text  string
	)
	if rule := recurrence.Build(d); rule != "" {
		lines = []string{rule}
		text = recurrence.Describe(d, m.norm.Label(zone))
	}

	return calendar.Event{
		Summary:     req.Name,
		Description: describeBlock(req, text),
		Location:    req.JoinLink,
		Start:       calendar.EventTime{DateTime: start, TimeZone: zone},
		End:         calendar.EventTime{DateTime: end, TimeZone: zone},
		Recurrence:  lines,
	}, nil
}

func (m *Manager) putAux(ctx context.Context, id string, rec model.AuxRecord) {
	if err := m.aux.Put(ctx, id, rec); err != nil {
		appLog.Error("aux record not saved", err, "id", id)
	}
}

func (m *Manager) deleteAux(ctx context.Context, id string) {
	if err := m.aux.Delete(ctx, id); err != nil {
		appLog.Error("aux record not removed", err, "id", id)
	}
}

// notFound turns a remote not-found into ErrSessionNotFound.
func (m *Manager) notFound(err error, id string) error {
	if apperrors.Is(err, apperrors.ErrRemoteNotFound) {
		return apperrors.Wrapf(apperrors.ErrSessionNotFound, "delete", "session "+id+" not found", err)
	}
	return err
}

func auxRecord(req SessionRequest, calendarID string) model.AuxRecord {
	return model.AuxRecord{
		JoinLink:   req.JoinLink,
		MeetingID:  req.MeetingID,
		Passcode:   req.Passcode,
		ClassName:  req.ClassName,
		CalendarID: calendarID,
	}
}

// instanceStart is the original slot of an instance, falling back to its
// current start.
func instanceStart(ev calendar.Event) time.Time {
	if ev.OriginalStart.DateTime != "" {
		if t, err := eventTime(ev.OriginalStart); err == nil {
			return t
		}
	}
	t, _ := eventTime(ev.Start)
	return t
}

func checkID(id string) error {
	if id == "" || id == "undefined" {
		return apperrors.New(apperrors.ErrValidation, "session id", "invalid session id")
	}
	return nil
}
