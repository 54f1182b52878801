package recurrence

import (
	"errors"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "classcal/internal/log"
)

const defaultMaxOccurrences = 5000

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// RangeStart / RangeEnd define the inclusive window for occurrences.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrences is a safety cap for open-ended rules. If zero,
	// defaultMaxOccurrences is used.
	MaxOccurrences int
}

// NewSet builds an rrule set from a master's recurrence lines anchored at
// dtstart. EXDATE lines are applied; lines that fail to parse are logged
// and skipped. It fails only when no RRULE line could be used.
func NewSet(lines []string, dtstart time.Time) (*rrule.Set, error) {
	var set rrule.Set
	haveRule := false

	for _, line := range lines {
		switch {
		case hasRulePrefix(line):
			r, err := rrule.StrToRRule(strings.Join(terms(line), ";"))
			if err != nil {
				appLog.Error("recurrence: failed to parse RRULE", err, "rule", line)
				continue
			}
			// Anchor at the master's start so BYDAY defaults and the
			// series' wall clock follow its zone.
			r.DTStart(dtstart)
			set.RRule(r)
			haveRule = true
		case isExDate(line):
			dates, err := rrule.StrToDatesInLoc(exdateValue(line), dtstart.Location())
			if err != nil {
				appLog.Error("recurrence: failed to parse EXDATE", err, "line", line)
				continue
			}
			for _, ex := range dates {
				set.ExDate(ex.In(dtstart.Location()))
			}
		}
	}
	if !haveRule {
		return nil, errors.New("recurrence: no usable RRULE")
	}
	return &set, nil
}

// Expand returns the occurrence starts of a series inside cfg's window. The
// bool result reports whether the cap truncated the list.
func Expand(lines []string, dtstart time.Time, cfg ExpandConfig) ([]time.Time, bool, error) {
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return nil, false, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrences <= 0 {
		cfg.MaxOccurrences = defaultMaxOccurrences
	}

	set, err := NewSet(lines, dtstart)
	if err != nil {
		return nil, false, err
	}

	loc := dtstart.Location()
	occ := set.Between(cfg.RangeStart.In(loc), cfg.RangeEnd.In(loc), true)
	if len(occ) > cfg.MaxOccurrences {
		appLog.Warn("expand: truncated occurrences", "cap", cfg.MaxOccurrences, "dtstart", dtstart)
		return occ[:cfg.MaxOccurrences], true, nil
	}
	return occ, false, nil
}

// FirstOccurrence returns the first start the rule generates at or after
// dtstart. ok is false if the rule is unusable or generates nothing.
func FirstOccurrence(lines []string, dtstart time.Time) (time.Time, bool) {
	set, err := NewSet(lines, dtstart)
	if err != nil {
		return time.Time{}, false
	}
	first := set.After(dtstart, true)
	return first, !first.IsZero()
}

// IsFirstInstance reports whether an instance starting at instanceStart is
// the first of the series. It matches either the master's own start or the
// first occurrence the rule generates, each within tol. Times are compared
// as absolute instants.
func IsFirstInstance(masterStart time.Time, lines []string, instanceStart time.Time, tol time.Duration) bool {
	if masterStart.IsZero() || instanceStart.IsZero() {
		return false
	}
	if within(instanceStart, masterStart, tol) {
		return true
	}
	if first, ok := FirstOccurrence(lines, masterStart); ok {
		return within(instanceStart, first, tol)
	}
	return false
}

func within(a, b time.Time, tol time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= tol
}

// exdateValue strips the property name, leaving "[params:]dates" as
// rrule.StrToDatesInLoc expects.
func exdateValue(line string) string {
	line = strings.TrimSpace(line)[len(exdatePrefix):]
	return strings.TrimPrefix(strings.TrimPrefix(line, ":"), ";")
}
