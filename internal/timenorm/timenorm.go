// Package timenorm parses the loosely formatted timestamps that arrive from
// clients and the remote calendar, and resolves zone names against the
// configured allow-list.
package timenorm

import (
	"strings"
	"time"
	_ "time/tzdata"

	"classcal/internal/apperrors"
	"classcal/internal/log"
	"classcal/internal/model"
)

// Layout is the wire format used for every timestamp sent to the remote
// calendar.
const Layout = time.RFC3339

// zoned layouts carry an explicit offset or a literal Z.
var zoned = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05Z07:00",
}

// naive layouts are interpreted in the fallback zone.
var naive = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Parse parses s. Strings with an offset or a literal Z keep it; anything
// else is read as wall-clock time in loc. The returned value keeps the
// zone it was written in, so Hour() reports the local hour as given.
func Parse(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, apperrors.New(apperrors.ErrInvalidTimestamp, "parse", "empty timestamp")
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range zoned {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range naive {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperrors.New(apperrors.ErrInvalidTimestamp, "parse", "cannot parse "+quote(s))
}

// HasZone reports whether s carries its own offset or zone marker.
func HasZone(s string) bool {
	s = strings.TrimSpace(s)
	for _, layout := range zoned {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// Normalizer resolves zone names and converts timestamps into the
// canonical UTC frame used for comparisons.
type Normalizer struct {
	defName string
	def     *time.Location
	order   []string
	zones   map[string]*time.Location
	labels  map[string]string
}

// New builds a Normalizer. Allowed zones that the runtime cannot load are
// skipped with a warning; the default zone must load.
func New(defaultZone string, allowed []string, labels map[string]string) (*Normalizer, error) {
	def, err := time.LoadLocation(defaultZone)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidTimezone, "timenorm", "default zone "+quote(defaultZone), err)
	}
	n := &Normalizer{
		defName: defaultZone,
		def:     def,
		zones:   map[string]*time.Location{defaultZone: def},
		labels:  labels,
	}
	seenDefault := false
	for _, name := range allowed {
		if name == defaultZone {
			seenDefault = true
			n.order = append(n.order, name)
			continue
		}
		loc, err := time.LoadLocation(name)
		if err != nil {
			log.Warn("skip unloadable zone", "zone", name, "err", err)
			continue
		}
		n.zones[name] = loc
		n.order = append(n.order, name)
	}
	if !seenDefault {
		n.order = append([]string{defaultZone}, n.order...)
	}
	return n, nil
}

// Default returns the default zone name and location.
func (n *Normalizer) Default() (string, *time.Location) {
	return n.defName, n.def
}

// Zone validates name against the allow-list. Unknown or empty names are
// replaced by the default zone; this is never an error.
func (n *Normalizer) Zone(name string) (string, *time.Location) {
	name = strings.TrimSpace(name)
	if name == "" {
		return n.defName, n.def
	}
	if loc, ok := n.zones[name]; ok {
		return name, loc
	}
	log.Warn("unknown timezone, using default", "zone", name, "default", n.defName)
	return n.defName, n.def
}

// Parse reads s, attaching zone when s has none. The result keeps its
// original offset.
func (n *Normalizer) Parse(s, zone string) (time.Time, error) {
	_, loc := n.Zone(zone)
	return Parse(s, loc)
}

// Canonical is Parse converted to UTC.
func (n *Normalizer) Canonical(s, zone string) (time.Time, error) {
	t, err := n.Parse(s, zone)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Localize parses s and renders it as an RFC 3339 string in the resolved
// zone, the form the remote calendar expects. Strings that already carry
// an offset keep it.
func (n *Normalizer) Localize(s, zone string) (string, time.Time, error) {
	t, err := n.Parse(s, zone)
	if err != nil {
		return "", time.Time{}, err
	}
	return t.Format(Layout), t, nil
}

// Label returns the display label for a zone, or the zone name itself.
func (n *Normalizer) Label(zone string) string {
	if l, ok := n.labels[zone]; ok && l != "" {
		return l
	}
	return zone
}

// Timezones lists the supported zones in configured order.
func (n *Normalizer) Timezones() []model.Timezone {
	out := make([]model.Timezone, 0, len(n.order))
	for _, name := range n.order {
		out = append(out, model.Timezone{Name: name, Label: n.Label(name)})
	}
	return out
}

func quote(s string) string {
	return "\"" + s + "\""
}
