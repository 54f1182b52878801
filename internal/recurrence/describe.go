package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"classcal/internal/model"
)

var dayNames = map[string]string{
	"MO": "Monday",
	"TU": "Tuesday",
	"WE": "Wednesday",
	"TH": "Thursday",
	"FR": "Friday",
	"SA": "Saturday",
	"SU": "Sunday",
}

// Describe renders a human-readable summary of d for display, suffixed with
// the zone label. The result is never parsed back.
func Describe(d model.RecurrenceDescriptor, zoneLabel string) string {
	switch model.Frequency(strings.ToUpper(string(d.Frequency))) {
	case model.Daily:
		return fmt.Sprintf("Daily (%s)", zoneLabel)
	case model.Weekly:
		days := make([]string, 0, len(d.ByDay))
		for _, code := range normalizeDays(d.ByDay) {
			if name, ok := dayNames[code]; ok {
				days = append(days, name)
			} else {
				days = append(days, code)
			}
		}
		return fmt.Sprintf("Weekly on %s (%s)", strings.Join(days, ", "), zoneLabel)
	case model.Monthly:
		return fmt.Sprintf("Monthly on day %s (%s)", joinList(d.ByMonthDay), zoneLabel)
	case model.Yearly:
		months := make([]string, 0, len(d.ByMonth))
		for _, m := range d.ByMonth {
			if m >= 1 && m <= 12 {
				months = append(months, time.Month(m).String())
			} else {
				months = append(months, "month "+strconv.Itoa(m))
			}
		}
		return fmt.Sprintf("Yearly on day %s of %s (%s)", joinList(d.ByMonthDay), strings.Join(months, ", "), zoneLabel)
	default:
		return fmt.Sprintf("Repeats (%s)", zoneLabel)
	}
}

func joinList(v []int) string {
	return strings.ReplaceAll(joinInts(v), ",", ", ")
}
