// Package suggest is the client for the external suggestion service, an
// OpenAI-compatible chat-completions endpoint asked to answer in JSON.
package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"classcal/internal/apperrors"
	appLog "classcal/internal/log"
	"classcal/internal/model"
)

// ConflictRequest describes a candidate window for the assisted tier.
type ConflictRequest struct {
	Teacher  string
	Start    string
	End      string
	Duration time.Duration
	// TeacherSessions is how many existing sessions belong to Teacher.
	TeacherSessions int
	Existing        []model.Session
}

// ConflictResult is the structured answer of the assisted tier.
type ConflictResult struct {
	HasConflict bool               `json:"has_conflict"`
	Conflicts   []model.Conflict   `json:"conflicts"`
	Suggestions []model.Suggestion `json:"suggestions"`
	Analysis    string             `json:"ai_analysis"`
}

// SlotRequest asks for one free window of Duration for Teacher.
type SlotRequest struct {
	Teacher  string
	Duration time.Duration
	Zone     string
	Existing []model.Session
}

// Client is the suggestion service. Every failure, including a reply that
// does not match the expected JSON, is an ErrSuggestionService.
type Client interface {
	CheckConflict(ctx context.Context, req ConflictRequest) (ConflictResult, error)
	SuggestSlot(ctx context.Context, req SlotRequest) (model.Suggestion, error)
}

// Options configures the OpenAI-compatible client.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAI implements Client with go-openai.
type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAI(opts Options) *OpenAI {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(cfg),
		model:   opts.Model,
		timeout: opts.Timeout,
	}
}

const systemPrompt = "You are a scheduling assistant for a language school. " +
	"Answer with a single JSON object and nothing else."

func (o *OpenAI) CheckConflict(ctx context.Context, req ConflictRequest) (ConflictResult, error) {
	var res ConflictResult
	if err := o.complete(ctx, "suggest conflict", ConflictPrompt(req), &res); err != nil {
		return ConflictResult{}, err
	}
	for _, s := range res.Suggestions {
		if s.Start == "" || s.End == "" {
			return ConflictResult{}, apperrors.New(apperrors.ErrSuggestionService, "suggest conflict", "suggestion without start/end")
		}
	}
	return res, nil
}

func (o *OpenAI) SuggestSlot(ctx context.Context, req SlotRequest) (model.Suggestion, error) {
	var res model.Suggestion
	if err := o.complete(ctx, "suggest slot", SlotPrompt(req), &res); err != nil {
		return model.Suggestion{}, err
	}
	if res.Start == "" || res.End == "" {
		return model.Suggestion{}, apperrors.New(apperrors.ErrSuggestionService, "suggest slot", "response missing start/end")
	}
	return res, nil
}

func (o *OpenAI) complete(ctx context.Context, op, prompt string, out any) error {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrSuggestionService, op, err)
	}
	if len(resp.Choices) == 0 {
		return apperrors.New(apperrors.ErrSuggestionService, op, "empty response")
	}

	text := stripFences(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		appLog.Debug("undecodable suggestion response", "op", op, "raw", text)
		return apperrors.Wrapf(apperrors.ErrSuggestionService, op, "malformed JSON response", err)
	}
	return nil
}

// stripFences removes a surrounding ```json ... ``` block some models add
// even in JSON mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ConflictPrompt renders the assisted-tier request.
func ConflictPrompt(req ConflictRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CHECK REQUEST:\n")
	fmt.Fprintf(&b, "- Teacher: %s\n", req.Teacher)
	fmt.Fprintf(&b, "- Requested time: %s to %s\n", req.Start, req.End)
	fmt.Fprintf(&b, "- Duration: %.1f hours\n", req.Duration.Hours())
	fmt.Fprintf(&b, "- This teacher currently has %d sessions\n\n", req.TeacherSessions)
	b.WriteString("CURRENT SCHEDULE:\n")
	b.WriteString(ScheduleText(req.Existing))
	fmt.Fprintf(&b, "\nTASKS:\n1. List every direct conflict for teacher %s.\n", req.Teacher)
	b.WriteString("2. Suggest the 2 best alternative windows within the next 3 days.\n")
	b.WriteString("3. Give a short analysis.\n\n")
	b.WriteString(`Return JSON of this shape:
{
  "has_conflict": true,
  "conflicts": [{"event_summary": "", "event_teacher": "", "event_start": "", "event_end": "", "conflict_type": "teacher_schedule_conflict"}],
  "suggestions": [{"start": "YYYY-MM-DDTHH:MM:SS", "end": "YYYY-MM-DDTHH:MM:SS", "description": ""}],
  "ai_analysis": ""
}`)
	return b.String()
}

// SlotPrompt renders a free-slot request.
func SlotPrompt(req SlotRequest) string {
	var b strings.Builder
	b.WriteString("CURRENT SCHEDULE:\n")
	b.WriteString(ScheduleText(req.Existing))
	b.WriteString("\nREQUIREMENTS:\n")
	fmt.Fprintf(&b, "- Find a free window lasting %.1f hours\n", req.Duration.Hours())
	if req.Teacher != "" {
		fmt.Fprintf(&b, "- Avoid conflicts with teacher %s\n", req.Teacher)
	} else {
		b.WriteString("- No specific teacher constraint\n")
	}
	b.WriteString("- Prefer working hours (08:00-18:00) on weekdays\n")
	fmt.Fprintf(&b, "- Use time zone %s\n", req.Zone)
	b.WriteString(`- Return only {"start": "YYYY-MM-DDTHH:MM:SS", "end": "YYYY-MM-DDTHH:MM:SS"}`)
	return b.String()
}

// ScheduleText renders one line per session.
func ScheduleText(sessions []model.Session) string {
	if len(sessions) == 0 {
		return "(empty)\n"
	}
	var b strings.Builder
	for _, s := range sessions {
		teacher := s.Teacher
		if teacher == "" {
			teacher = "unknown"
		}
		fmt.Fprintf(&b, "- %s (Teacher: %s): %s to %s\n", s.Title, teacher, displayTime(s.StartRaw, s.Start), displayTime(s.EndRaw, s.End))
	}
	return b.String()
}

func displayTime(raw string, t time.Time) string {
	if raw != "" {
		return raw
	}
	if t.IsZero() {
		return "unknown"
	}
	return t.Format(time.RFC3339)
}
