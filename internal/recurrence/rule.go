// Package recurrence builds, parses and mutates RFC 5545 recurrence rules in
// the form the remote calendar stores them ("RRULE:FREQ=...;...").
package recurrence

import (
	"strconv"
	"strings"
	"time"

	"classcal/internal/model"
)

const (
	rulePrefix   = "RRULE:"
	exdatePrefix = "EXDATE"

	// UntilLayout is the UTC form used for UNTIL and EXDATE values.
	UntilLayout = "20060102T150405Z"
)

// Build renders d as a single "RRULE:" line. It returns "" when d has no
// frequency. Terms are emitted as FREQ, COUNT or UNTIL, the selectors that
// apply to the frequency, and always INTERVAL last.
func Build(d model.RecurrenceDescriptor) string {
	freq := model.Frequency(strings.ToUpper(strings.TrimSpace(string(d.Frequency))))
	if freq == "" {
		return ""
	}

	parts := []string{"FREQ=" + string(freq)}
	switch {
	case d.Count > 0:
		parts = append(parts, "COUNT="+strconv.Itoa(d.Count))
	case !d.Until.IsZero():
		parts = append(parts, "UNTIL="+d.Until.UTC().Format(UntilLayout))
	}

	switch freq {
	case model.Weekly:
		if days := normalizeDays(d.ByDay); len(days) > 0 {
			parts = append(parts, "BYDAY="+strings.Join(days, ","))
		}
	case model.Monthly:
		if len(d.ByMonthDay) > 0 {
			parts = append(parts, "BYMONTHDAY="+joinInts(d.ByMonthDay))
		}
	case model.Yearly:
		if len(d.ByMonth) > 0 {
			parts = append(parts, "BYMONTH="+joinInts(d.ByMonth))
		}
		if len(d.ByMonthDay) > 0 {
			parts = append(parts, "BYMONTHDAY="+joinInts(d.ByMonthDay))
		}
	}

	interval := d.Interval
	if interval < 1 {
		interval = 1
	}
	parts = append(parts, "INTERVAL="+strconv.Itoa(interval))

	return rulePrefix + strings.Join(parts, ";")
}

// Parse recovers a descriptor from a rule line, with or without the
// "RRULE:" prefix. Unknown or malformed terms are skipped; whatever could
// be read is returned.
func Parse(rule string) model.RecurrenceDescriptor {
	d := model.RecurrenceDescriptor{Interval: 1}
	for _, term := range terms(rule) {
		key, value, ok := strings.Cut(term, "=")
		if !ok || value == "" {
			continue
		}
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "FREQ":
			d.Frequency = model.Frequency(strings.ToUpper(value))
		case "COUNT":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				d.Count = n
			}
		case "UNTIL":
			if t, ok := parseUntil(value); ok {
				d.Until = t
			}
		case "INTERVAL":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				d.Interval = n
			}
		case "BYDAY":
			d.ByDay = normalizeDays(strings.Split(value, ","))
		case "BYMONTHDAY":
			d.ByMonthDay = splitInts(value)
		case "BYMONTH":
			d.ByMonth = splitInts(value)
		}
	}
	return d
}

// TerminateBefore rewrites rule so that no occurrence at or after bound is
// generated: any COUNT or UNTIL term is dropped and UNTIL is set to one
// second before bound, in UTC. The "RRULE:" prefix is preserved if present.
func TerminateBefore(rule string, bound time.Time) string {
	prefix := ""
	if hasRulePrefix(rule) {
		prefix = rulePrefix
	}

	kept := make([]string, 0, 8)
	for _, term := range terms(rule) {
		key, _, _ := strings.Cut(term, "=")
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "COUNT", "UNTIL":
			continue
		}
		kept = append(kept, term)
	}
	kept = append(kept, "UNTIL="+bound.Add(-time.Second).UTC().Format(UntilLayout))
	return prefix + strings.Join(kept, ";")
}

// TerminateLines applies TerminateBefore to every RRULE line of a master's
// recurrence list. EXDATE lines are kept; anything else is dropped. ok is
// false when the list has no RRULE line.
func TerminateLines(lines []string, bound time.Time) (out []string, ok bool) {
	for _, line := range lines {
		switch {
		case hasRulePrefix(line):
			out = append(out, TerminateBefore(line, bound))
			ok = true
		case isExDate(line):
			out = append(out, line)
		}
	}
	return out, ok
}

// RuleLine returns the first RRULE line of a recurrence list.
func RuleLine(lines []string) (string, bool) {
	for _, line := range lines {
		if hasRulePrefix(line) {
			return line, true
		}
	}
	return "", false
}

// ExDateLine renders an EXDATE line for a single instance start.
func ExDateLine(t time.Time) string {
	return exdatePrefix + ":" + t.UTC().Format(UntilLayout)
}

func terms(rule string) []string {
	rule = strings.TrimSpace(rule)
	if hasRulePrefix(rule) {
		rule = rule[len(rulePrefix):]
	}
	var out []string
	for _, t := range strings.Split(rule, ";") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func hasRulePrefix(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) >= len(rulePrefix) && strings.EqualFold(s[:len(rulePrefix)], rulePrefix)
}

func isExDate(s string) bool {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.HasPrefix(s, exdatePrefix+":") || strings.HasPrefix(s, exdatePrefix+";")
}

func parseUntil(v string) (time.Time, bool) {
	for _, layout := range []string{UntilLayout, "20060102T150405", "20060102"} {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func normalizeDays(days []string) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		d = strings.ToUpper(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

func joinInts(v []int) string {
	s := make([]string, len(v))
	for i, n := range v {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, ",")
}

func splitInts(v string) []int {
	var out []int
	for _, p := range strings.Split(v, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			out = append(out, n)
		}
	}
	return out
}
