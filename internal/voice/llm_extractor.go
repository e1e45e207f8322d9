package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/practice-scheduler/internal/llm"
	"github.com/wolfman30/practice-scheduler/internal/scheduling"
)

// ErrMalformedExtraction is returned when the model reply is not the expected JSON.
var ErrMalformedExtraction = errors.New("voice: malformed extraction")

// Extractor fills in fields the rule parser could not find.
type Extractor interface {
	Extract(ctx context.Context, transcript string, now time.Time) (*Extraction, error)
}

// Extraction is the strict JSON shape the model is asked to return.
type Extraction struct {
	Action          string `json:"action"`
	ClientName      string `json:"client_name"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	NewDate         string `json:"new_date"`
	NewTime         string `json:"new_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Repeats         string `json:"repeats"`
	Notes           string `json:"notes"`
}

const extractionPrompt = `You extract scheduling details from a therapist's voice command.
Today is %s (%s). Respond with one JSON object and nothing else:
{"action":"create|cancel|reschedule|query","client_name":"","date":"YYYY-MM-DD","time":"HH:MM","new_date":"YYYY-MM-DD","new_time":"HH:MM","duration_minutes":0,"repeats":"none|weekly|biweekly|monthly","notes":""}
Use 24-hour time. For reschedule, date/time describe the existing appointment and new_date/new_time the new slot.
Leave a field empty when the command does not say it. Never invent a client name.`

// LLMExtractor asks a language model for missing command fields.
type LLMExtractor struct {
	client      llm.Client
	maxTokens   int32
	temperature float32
}

func NewLLMExtractor(client llm.Client, maxTokens int32, temperature float32) *LLMExtractor {
	if client == nil {
		panic("voice: llm client cannot be nil")
	}
	if maxTokens <= 0 {
		maxTokens = 400
	}
	return &LLMExtractor{client: client, maxTokens: maxTokens, temperature: temperature}
}

func (e *LLMExtractor) Extract(ctx context.Context, transcript string, now time.Time) (*Extraction, error) {
	resp, err := e.client.Complete(ctx, llm.Request{
		System:      []string{fmt.Sprintf(extractionPrompt, now.Format("2006-01-02"), now.Weekday())},
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: transcript}},
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("voice: extraction failed: %w", err)
	}
	var out Extraction
	if err := json.Unmarshal([]byte(llm.ExtractJSONObject(resp.Text)), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedExtraction, err)
	}
	return &out, nil
}

// Apply copies extracted values into the fields cmd left empty. Values that do
// not parse are skipped.
func (x *Extraction) Apply(cmd *Command, now time.Time) {
	if x == nil || cmd == nil {
		return
	}
	if cmd.ClientName == "" {
		cmd.ClientName = strings.ToLower(strings.TrimSpace(x.ClientName))
	}
	fill := func(slot *Slot, date, clock string) {
		if !slot.HasDate {
			if t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(date), now.Location()); err == nil {
				slot.Date = t
				slot.HasDate = true
				slot.DateText = date
				slot.span = DateRange{Start: t, End: t.AddDate(0, 0, 1)}
			}
		}
		if !slot.HasTime {
			if t, err := time.Parse("15:04", strings.TrimSpace(clock)); err == nil {
				slot.Time = TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
				slot.HasTime = true
				slot.TimeText = clock
			}
		}
	}
	if cmd.Action == ActionReschedule {
		fill(&cmd.When, x.Date, x.Time)
		fill(&cmd.NewWhen, x.NewDate, x.NewTime)
	} else {
		fill(&cmd.When, x.Date, x.Time)
	}
	if cmd.DurationMinutes == 0 && x.DurationMinutes > 0 && x.DurationMinutes <= 12*60 {
		cmd.DurationMinutes = x.DurationMinutes
	}
	if cmd.Repeats == "" || cmd.Repeats == scheduling.RepeatNone {
		if r := scheduling.Repeat(strings.ToLower(strings.TrimSpace(x.Repeats))); r.Valid() {
			cmd.Repeats = r
		}
	}
	if cmd.Notes == "" {
		cmd.Notes = strings.TrimSpace(x.Notes)
	}
}
