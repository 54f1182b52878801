package schedule

import (
	"context"
	"time"

	"classcal/internal/conflict"
	appLog "classcal/internal/log"
	"classcal/internal/metrics"
	"classcal/internal/model"
	"classcal/internal/suggest"
	"classcal/internal/timenorm"
)

const (
	slotSearchDays = 7
	slotStep       = 30 * time.Minute
	workdayOpen    = 8
	workdayClose   = 18
	// firstSlotHour is where the search starts on the first day.
	firstSlotHour = 9
)

// CheckConflict checks a candidate window against every listed session of
// both partitions.
func (m *Manager) CheckConflict(ctx context.Context, req conflict.Request) (model.ConflictReport, error) {
	existing, err := m.List(ctx, "both")
	if err != nil {
		return model.ConflictReport{}, err
	}
	return m.detector.Check(ctx, req, existing)
}

// SuggestSlot proposes a free window of dur for teacher. The suggestion
// service is asked first; without it, or when it fails, the first free
// weekday working-hour slot from tomorrow is returned.
func (m *Manager) SuggestSlot(ctx context.Context, teacher string, dur time.Duration) (model.SlotSuggestion, error) {
	if dur <= 0 {
		dur = time.Hour
	}
	existing, err := m.List(ctx, "both")
	if err != nil {
		return model.SlotSuggestion{}, err
	}

	zone, _ := m.norm.Default()
	if m.suggest != nil {
		got, err := m.suggest.SuggestSlot(ctx, suggest.SlotRequest{
			Teacher:  teacher,
			Duration: dur,
			Zone:     zone,
			Existing: existing,
		})
		if err == nil {
			return model.SlotSuggestion{Start: got.Start, End: got.End, Note: got.Description, Tier: model.TierAssisted}, nil
		}
		metrics.SuggestionFailure()
		appLog.Error("slot suggestion failed, using working-hours search", err, "teacher", teacher)
	}
	return m.freeSlot(teacher, dur, existing), nil
}

// freeSlot walks weekday working hours in the default zone in half-hour
// steps and returns the first window without a teacher conflict.
func (m *Manager) freeSlot(teacher string, dur time.Duration, existing []model.Session) model.SlotSuggestion {
	_, loc := m.norm.Default()
	today := m.now().In(loc)
	y, mo, d := today.Date()

	first := time.Date(y, mo, d+1, firstSlotHour, 0, 0, 0, loc)
	for day := 1; day <= slotSearchDays; day++ {
		date := time.Date(y, mo, d+day, 0, 0, 0, 0, loc)
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		open := time.Date(y, mo, d+day, workdayOpen, 0, 0, 0, loc)
		if day == 1 {
			open = first
		}
		closing := time.Date(y, mo, d+day, workdayClose, 0, 0, 0, loc)
		for start := open; !start.Add(dur).After(closing); start = start.Add(slotStep) {
			end := start.Add(dur)
			if teacher != "" && len(conflict.Deterministic(teacher, start, end, existing, "")) > 0 {
				continue
			}
			return model.SlotSuggestion{
				Start: start.Format(timenorm.Layout),
				End:   end.Format(timenorm.Layout),
				Note:  "First free working-hour slot",
				Tier:  model.TierDeterministic,
			}
		}
	}
	return model.SlotSuggestion{
		Start: first.Format(timenorm.Layout),
		End:   first.Add(dur).Format(timenorm.Layout),
		Note:  "No free working-hour slot in the next 7 days",
		Tier:  model.TierDeterministic,
	}
}
