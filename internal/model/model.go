package model

import "time"

// Partition is one of the two backing calendars, selected by start-hour
// parity.
type Partition string

const (
	PartitionEven Partition = "even"
	PartitionOdd  Partition = "odd"
)

// Partitions lists every partition in probe order.
var Partitions = []Partition{PartitionOdd, PartitionEven}

func (p Partition) Valid() bool {
	return p == PartitionEven || p == PartitionOdd
}

type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

// RecurrenceDescriptor is the structured form of a recurrence rule.
// Selectors that do not apply to Frequency are ignored.
type RecurrenceDescriptor struct {
	Frequency Frequency `json:"frequency"`
	// Interval defaults to 1.
	Interval int `json:"interval,omitempty"`
	// Count and Until are mutually exclusive in generated rules; Count wins.
	Count int       `json:"count,omitempty"`
	Until time.Time `json:"until,omitzero"`

	ByDay      []string `json:"byday,omitempty"`      // WEEKLY: MO, TU, ...
	ByMonthDay []int    `json:"bymonthday,omitempty"` // MONTHLY, YEARLY
	ByMonth    []int    `json:"bymonth,omitempty"`    // YEARLY
}

// IsZero reports whether d describes a non-recurring session.
func (d RecurrenceDescriptor) IsZero() bool {
	return d.Frequency == ""
}

type Status string

const (
	StatusActive    Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Session is a single bookable occurrence or a series master, decoded from
// a remote event and enriched with its auxiliary record.
type Session struct {
	ID        string `json:"id"`
	Title     string `json:"name"`
	Teacher   string `json:"teacher"`
	ClassName string `json:"classname"`
	Program   string `json:"program"`

	JoinLink  string `json:"zoom_link"`
	MeetingID string `json:"meeting_id"`
	Passcode  string `json:"passcode"`

	// Start and End are absolute; StartRaw and EndRaw keep the remote
	// representation verbatim.
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	StartRaw string    `json:"start_raw,omitempty"`
	EndRaw   string    `json:"end_raw,omitempty"`
	TimeZone string    `json:"timezone"`

	// Recurrence holds the raw RRULE/EXDATE lines of a series master.
	Recurrence            []string `json:"recurrence,omitempty"`
	RecurrenceDescription string   `json:"recurrence_description,omitempty"`
	// RecurringEventID is set on series instances and points at the master.
	RecurringEventID string    `json:"recurring_event_id,omitempty"`
	OriginalStart    time.Time `json:"original_start,omitzero"`

	Partition  Partition `json:"calendar_type"`
	CalendarID string    `json:"calendar_id"`
	Status     Status    `json:"status"`
}

// IsInstance reports whether s is a materialized occurrence of a series.
func (s Session) IsInstance() bool {
	return s.RecurringEventID != ""
}

// SeriesInstance is a materialized occurrence with a back-reference to its
// master.
type SeriesInstance struct {
	ID       string
	MasterID string
	Start    time.Time
}

// AuxRecord is the supplementary metadata kept outside the remote calendar.
// The JSON keys match the on-disk format of data/classes_extra.json.
type AuxRecord struct {
	JoinLink   string `json:"zoom_link"`
	MeetingID  string `json:"meeting_id"`
	Passcode   string `json:"passcode"`
	ClassName  string `json:"classname"`
	CalendarID string `json:"calendar_id,omitempty"`
}

// Apply merges r onto s. The aux store owns the join link, meeting id and
// passcode; class name and calendar id only override when set.
func (r AuxRecord) Apply(s *Session) {
	s.JoinLink = r.JoinLink
	s.MeetingID = r.MeetingID
	s.Passcode = r.Passcode
	if r.ClassName != "" {
		s.ClassName = r.ClassName
	}
	if r.CalendarID != "" {
		s.CalendarID = r.CalendarID
	}
}

// Tier tags which detection tier produced a result.
type Tier string

const (
	TierDeterministic Tier = "deterministic"
	TierAssisted      Tier = "assisted"
)

const ConflictTeacherSchedule = "teacher_schedule_conflict"

// Conflict is one existing session that overlaps a candidate window.
type Conflict struct {
	EventID      string `json:"event_id,omitempty"`
	Title        string `json:"event_summary"`
	Teacher      string `json:"event_teacher"`
	Start        string `json:"event_start"`
	End          string `json:"event_end"`
	ConflictType string `json:"conflict_type"`
}

// Suggestion is an alternative window proposed by the assisted tier or the
// deterministic slot finder.
type Suggestion struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	Description string `json:"description,omitempty"`
}

// ConflictReport is the merged result of a conflict check.
type ConflictReport struct {
	HasConflict   bool         `json:"has_conflict"`
	Conflicts     []Conflict   `json:"conflicts"`
	ConflictCount int          `json:"conflict_count"`
	Suggestions   []Suggestion `json:"suggestions,omitempty"`
	Analysis      string       `json:"ai_analysis,omitempty"`
	Tier          Tier         `json:"check_type"`
}

// SlotSuggestion is the answer to a free-slot request.
type SlotSuggestion struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Note  string `json:"note,omitempty"`
	Tier  Tier   `json:"check_type"`
}

type DeleteMode string

const (
	DeleteThis      DeleteMode = "this"
	DeleteAll       DeleteMode = "all"
	DeleteFollowing DeleteMode = "following"
)

// DefaultDeleteMode applies when a caller does not name a mode.
const DefaultDeleteMode = DeleteThis

func (m DeleteMode) Valid() bool {
	switch m {
	case DeleteThis, DeleteAll, DeleteFollowing:
		return true
	}
	return false
}

// DeleteResult reports what a delete actually removed.
type DeleteResult struct {
	Mode       DeleteMode `json:"mode"`
	DeletedIDs []string   `json:"deleted_ids"`
	// MasterID is set when the delete resolved a series master.
	MasterID string `json:"master_id,omitempty"`
	// Warning carries a recovered recurrence-mutation failure.
	Warning string `json:"warning,omitempty"`
}

// Timezone is a supported zone with its display label.
type Timezone struct {
	Name  string `json:"value"`
	Label string `json:"label"`
}
