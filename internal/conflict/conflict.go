// Package conflict detects teacher double-booking. The deterministic tier
// is authoritative; the assisted tier only adds suggestions and narrative.
package conflict

import (
	"context"
	"fmt"
	"strings"
	"time"

	"classcal/internal/apperrors"
	appLog "classcal/internal/log"
	"classcal/internal/metrics"
	"classcal/internal/model"
	"classcal/internal/suggest"
	"classcal/internal/timenorm"
)

// Request is a candidate window to check.
type Request struct {
	Teacher   string `json:"teacher"`
	Start     string `json:"start"`
	End       string `json:"end"`
	ExcludeID string `json:"exclude_event_id"`
	// Zone applies to timestamps without an offset.
	Zone string `json:"timezone"`
}

// Detector runs the two-tier pipeline. A nil client disables Tier 2.
type Detector struct {
	norm   *timenorm.Normalizer
	client suggest.Client
}

func NewDetector(norm *timenorm.Normalizer, client suggest.Client) *Detector {
	return &Detector{norm: norm, client: client}
}

// NormalizeTeacher case-folds name and collapses whitespace. Punctuation
// is kept.
func NormalizeTeacher(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// TeacherOf returns the teacher of s: the explicit field, else the part
// after " - " in a "Title - Teacher" title, else "".
func TeacherOf(s model.Session) string {
	if t := strings.TrimSpace(s.Teacher); t != "" {
		return t
	}
	parts := strings.Split(s.Title, " - ")
	if len(parts) > 1 {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Intervals that only touch do not.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// Deterministic returns every session of teacher that overlaps
// [start, end), in input order. Sessions without a usable interval or
// teacher are skipped.
func Deterministic(teacher string, start, end time.Time, existing []model.Session, excludeID string) []model.Conflict {
	want := NormalizeTeacher(teacher)
	if want == "" {
		return nil
	}
	start, end = start.UTC(), end.UTC()

	var out []model.Conflict
	for _, s := range existing {
		if excludeID != "" && s.ID == excludeID {
			continue
		}
		name := TeacherOf(s)
		if NormalizeTeacher(name) != want {
			continue
		}
		if s.Start.IsZero() || s.End.IsZero() {
			appLog.Debug("skip session without interval", "id", s.ID)
			continue
		}
		if !Overlaps(s.Start.UTC(), s.End.UTC(), start, end) {
			continue
		}
		out = append(out, model.Conflict{
			EventID:      s.ID,
			Title:        s.Title,
			Teacher:      name,
			Start:        rawOr(s.StartRaw, s.Start),
			End:          rawOr(s.EndRaw, s.End),
			ConflictType: model.ConflictTeacherSchedule,
		})
	}
	return out
}

// CountTeacher counts the sessions attributed to teacher.
func CountTeacher(teacher string, existing []model.Session) int {
	want := NormalizeTeacher(teacher)
	n := 0
	for _, s := range existing {
		if want != "" && NormalizeTeacher(TeacherOf(s)) == want {
			n++
		}
	}
	return n
}

// Check runs Tier 1 and, when it finds conflicts and a client is set,
// Tier 2. Only an invalid candidate window is an error; a failing Tier 2
// degrades to the Tier 1 report.
func (d *Detector) Check(ctx context.Context, req Request, existing []model.Session) (model.ConflictReport, error) {
	start, end, err := d.window(req)
	if err != nil {
		return model.ConflictReport{}, err
	}

	conflicts := Deterministic(req.Teacher, start, end, existing, req.ExcludeID)
	report := model.ConflictReport{
		HasConflict:   len(conflicts) > 0,
		Conflicts:     conflicts,
		ConflictCount: len(conflicts),
		Tier:          model.TierDeterministic,
	}
	if report.Conflicts == nil {
		report.Conflicts = []model.Conflict{}
	}

	if report.HasConflict && d.client != nil {
		res, err := d.client.CheckConflict(ctx, suggest.ConflictRequest{
			Teacher:         req.Teacher,
			Start:           req.Start,
			End:             req.End,
			Duration:        end.Sub(start),
			TeacherSessions: CountTeacher(req.Teacher, existing),
			Existing:        existing,
		})
		if err != nil {
			metrics.SuggestionFailure()
			appLog.Error("assisted conflict check failed, using deterministic result", err, "teacher", req.Teacher)
		} else {
			report.Suggestions = res.Suggestions
			report.Analysis = res.Analysis
			report.Tier = model.TierAssisted
		}
	}

	if report.Analysis == "" {
		report.Analysis = quickAnalysis(len(conflicts))
	}
	metrics.ConflictCheck(string(report.Tier))
	appLog.Info("conflict check", "teacher", req.Teacher, "conflicts", len(conflicts), "tier", string(report.Tier))
	return report, nil
}

func (d *Detector) window(req Request) (time.Time, time.Time, error) {
	start, err := d.norm.Canonical(req.Start, req.Zone)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := d.norm.Canonical(req.End, req.Zone)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, apperrors.New(apperrors.ErrInvalidInterval, "check conflict", "end must be after start")
	}
	return start, end, nil
}

func quickAnalysis(n int) string {
	if n == 0 {
		return "No conflicts"
	}
	return fmt.Sprintf("Quick check: %d conflict(s)", n)
}

func rawOr(raw string, t time.Time) string {
	if raw != "" {
		return raw
	}
	return t.Format(timenorm.Layout)
}
