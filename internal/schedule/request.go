package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"classcal/internal/apperrors"
	"classcal/internal/model"
	"classcal/internal/timenorm"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(validateRecurrence, SessionRequest{})
	return v
}

// SessionRequest is the create/update payload. Recurrence fields follow the
// flat form the admin UI sends: a frequency name plus selectors.
type SessionRequest struct {
	Name      string `json:"name" validate:"required"`
	ClassName string `json:"classname"`
	Teacher   string `json:"teacher" validate:"required"`
	JoinLink  string `json:"zoom_link"`
	Program   string `json:"program"`
	MeetingID string `json:"meeting_id"`
	Passcode  string `json:"passcode"`

	Start    string `json:"start" validate:"required"`
	End      string `json:"end" validate:"required"`
	TimeZone string `json:"timezone"`

	// Recurrence is a frequency name in any case. Selectors are checked
	// only for the frequencies that use them and ignored otherwise.
	Recurrence string `json:"recurrence"`
	// RepeatCount defaults to 1. Zero means no COUNT, in which case Until
	// bounds the series if set.
	RepeatCount *int     `json:"repeat_count,omitempty" validate:"omitempty,min=0"`
	Until       string   `json:"until,omitempty"`
	Interval    int      `json:"interval,omitempty" validate:"min=0"`
	ByDay       []string `json:"byday,omitempty"`      // WEEKLY
	ByMonthDay  []int    `json:"bymonthday,omitempty"` // MONTHLY, YEARLY
	ByMonth     []int    `json:"bymonth,omitempty"`    // YEARLY
}

func (r SessionRequest) frequency() model.Frequency {
	return model.Frequency(strings.ToUpper(strings.TrimSpace(r.Recurrence)))
}

// validateRecurrence checks the frequency name and the selectors that
// apply to it.
func validateRecurrence(sl validator.StructLevel) {
	r := sl.Current().Interface().(SessionRequest)
	switch r.frequency() {
	case "", model.Daily:
	case model.Weekly:
		for i, day := range r.ByDay {
			if len(strings.TrimSpace(day)) != 2 {
				sl.ReportError(day, fmt.Sprintf("ByDay[%d]", i), "ByDay", "len", "2")
			}
		}
	case model.Monthly:
		checkMonthDays(sl, r.ByMonthDay)
	case model.Yearly:
		checkMonthDays(sl, r.ByMonthDay)
		for i, m := range r.ByMonth {
			if m < 1 || m > 12 {
				sl.ReportError(m, fmt.Sprintf("ByMonth[%d]", i), "ByMonth", "range", "1..12")
			}
		}
	default:
		sl.ReportError(r.Recurrence, "Recurrence", "Recurrence", "oneof", "DAILY WEEKLY MONTHLY YEARLY")
	}
}

func checkMonthDays(sl validator.StructLevel, days []int) {
	for i, d := range days {
		if d == 0 || d < -31 || d > 31 {
			sl.ReportError(d, fmt.Sprintf("ByMonthDay[%d]", i), "ByMonthDay", "range", "-31..-1, 1..31")
		}
	}
}

// Validate checks required fields and selector ranges.
func (r SessionRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Wrap(apperrors.ErrValidation, "validate", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, formatValidationError(fe))
	}
	return apperrors.New(apperrors.ErrValidation, "validate", strings.Join(msgs, "; "))
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "oneof":
		return e.Field() + " must be one of " + e.Param()
	case "len":
		return e.Field() + " must have length " + e.Param()
	case "range":
		return e.Field() + " must be in " + e.Param()
	default:
		return fmt.Sprintf("%s failed %s validation", e.Field(), e.Tag())
	}
}

// Descriptor converts the recurrence fields. A request without a frequency
// yields the zero descriptor; selectors the frequency does not use are
// dropped.
func (r SessionRequest) Descriptor(loc *time.Location) (model.RecurrenceDescriptor, error) {
	freq := r.frequency()
	if freq == "" {
		return model.RecurrenceDescriptor{}, nil
	}
	d := model.RecurrenceDescriptor{
		Frequency: freq,
		Interval:  r.Interval,
		Count:     1,
	}
	switch freq {
	case model.Weekly:
		d.ByDay = r.ByDay
	case model.Monthly:
		d.ByMonthDay = r.ByMonthDay
	case model.Yearly:
		d.ByMonthDay = r.ByMonthDay
		d.ByMonth = r.ByMonth
	}
	if r.RepeatCount != nil {
		d.Count = *r.RepeatCount
	}
	if d.Count == 0 && r.Until != "" {
		until, err := timenorm.Parse(r.Until, loc)
		if err != nil {
			return model.RecurrenceDescriptor{}, err
		}
		d.Until = until
	}
	return d, nil
}
