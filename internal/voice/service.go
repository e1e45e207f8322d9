package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/wolfman30/practice-scheduler/internal/llm"
	"github.com/wolfman30/practice-scheduler/internal/observability/metrics"
	"github.com/wolfman30/practice-scheduler/internal/scheduling"
	"github.com/wolfman30/practice-scheduler/pkg/logging"
)

var voiceTracer = otel.Tracer("practice.internal.voice")

// ErrEmptyTranscript is returned when a command carries no words.
var ErrEmptyTranscript = errors.New("voice: transcript is empty")

const helpMessage = `I can book, cancel, reschedule or look up appointments. Try "Book Jane Doe next Friday at 3pm" or "What do I have tomorrow?"`

const assistantPrompt = `You are a concise assistant for a therapy practice. Answer in two or three sentences suitable for reading aloud. Do not give clinical diagnoses. If the question is about the practitioner's calendar, tell them to ask for it as a calendar command.`

// Calendar is the part of the scheduling service the voice layer drives.
type Calendar interface {
	Location() *time.Location
	DefaultDuration() int
	ListClients(ctx context.Context, ownerUID string) ([]*scheduling.Client, error)
	GetAppointment(ctx context.Context, ownerUID, id string) (*scheduling.Appointment, error)
	ListAppointments(ctx context.Context, ownerUID string, filter scheduling.AppointmentFilter) ([]*scheduling.Appointment, error)
	PreviewSeries(ctx context.Context, ownerUID string, in scheduling.AppointmentInput) ([]*scheduling.Appointment, []*scheduling.Appointment, error)
	CheckConflicts(ctx context.Context, ownerUID string, candidate *scheduling.Appointment, excludeID string) ([]*scheduling.Appointment, error)
	CreateAppointment(ctx context.Context, ownerUID string, in scheduling.AppointmentInput) (*scheduling.CreateResult, error)
	CancelAppointment(ctx context.Context, ownerUID, id string) (*scheduling.Appointment, error)
	RescheduleAppointment(ctx context.Context, ownerUID, id string, newStart time.Time, durationMinutes int, allowConflicts bool) (*scheduling.Appointment, []*scheduling.Appointment, error)
}

// ResultKind tells the UI what to do with a Result.
type ResultKind string

const (
	ResultPending       ResultKind = "pending"
	ResultClarification ResultKind = "needs_clarification"
	ResultAnswer        ResultKind = "answer"
	ResultCommitted     ResultKind = "committed"
	ResultDiscarded     ResultKind = "discarded"
)

// Result is the reply to one voice interaction. Message is written to be
// spoken back to the practitioner.
type Result struct {
	Kind         ResultKind                `json:"kind"`
	Intent       Kind                      `json:"intent"`
	Action       Action                    `json:"action,omitempty"`
	Transcript   string                    `json:"transcript,omitempty"`
	Message      string                    `json:"message"`
	Pending      *PendingCommand           `json:"pending,omitempty"`
	Candidates   []string                  `json:"candidates,omitempty"`
	Conflicts    []*scheduling.Appointment `json:"conflicts,omitempty"`
	Appointments []*scheduling.Appointment `json:"appointments,omitempty"`
}

// Options tunes a Service. Zero values fall back to defaults.
type Options struct {
	PendingTTL     time.Duration
	MatchThreshold float64
	// Extractor is consulted only when the rule parser misses the client or date.
	Extractor Extractor
	// Assistant answers general questions. Nil returns a help message instead.
	Assistant   llm.Client
	MaxTokens   int32
	Temperature float32
	Metrics     *metrics.PracticeMetrics
	Now         func() time.Time
	NewID       func() string
}

// Service runs the classify, extract, match, check and stage pipeline and
// commits staged commands on confirmation.
type Service struct {
	calendar    Calendar
	pending     PendingStore
	logger      *logging.Logger
	metrics     *metrics.PracticeMetrics
	extractor   Extractor
	assistant   llm.Client
	ttl         time.Duration
	threshold   float64
	maxTokens   int32
	temperature float32
	now         func() time.Time
	newID       func() string
}

func NewService(calendar Calendar, pending PendingStore, logger *logging.Logger, opts Options) *Service {
	if calendar == nil {
		panic("voice: calendar required")
	}
	if pending == nil {
		panic("voice: pending store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		calendar:    calendar,
		pending:     pending,
		logger:      logger,
		metrics:     opts.Metrics,
		extractor:   opts.Extractor,
		assistant:   opts.Assistant,
		ttl:         opts.PendingTTL,
		threshold:   opts.MatchThreshold,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		now:         opts.Now,
		newID:       opts.NewID,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultPendingTTL
	}
	if s.threshold <= 0 {
		s.threshold = DefaultMatchThreshold
	}
	if s.maxTokens <= 0 {
		s.maxTokens = 300
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Interpret handles one transcript. Confirm and decline utterances act on the
// owner's latest pending command; calendar commands are staged, never
// committed directly.
func (s *Service) Interpret(ctx context.Context, ownerUID, transcript string) (*Result, error) {
	ctx, span := voiceTracer.Start(ctx, "voice.interpret")
	defer span.End()
	started := time.Now()

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, ErrEmptyTranscript
	}
	if strings.TrimSpace(ownerUID) == "" {
		return nil, scheduling.ErrMissingOwner
	}
	now := s.now().In(s.calendar.Location())
	cmd := ParseCommand(transcript, now)
	span.SetAttributes(
		attribute.String("practice.voice.kind", string(cmd.Kind)),
		attribute.String("practice.voice.action", string(cmd.Action)),
	)

	var (
		res *Result
		err error
	)
	switch cmd.Kind {
	case KindConfirm:
		res, err = s.confirmLatest(ctx, ownerUID)
	case KindDecline:
		res, err = s.discardLatest(ctx, ownerUID)
	case KindCalendar:
		s.fillGaps(ctx, &cmd, now)
		switch cmd.Action {
		case ActionQuery:
			res, err = s.answerQuery(ctx, ownerUID, cmd, now)
		case ActionCreate:
			res, err = s.stageCreate(ctx, ownerUID, cmd, now)
		case ActionCancel:
			res, err = s.stageCancel(ctx, ownerUID, cmd, now)
		case ActionReschedule:
			res, err = s.stageReschedule(ctx, ownerUID, cmd, now)
		default:
			res = &Result{Kind: ResultAnswer, Message: helpMessage}
		}
	default:
		res = s.answerGeneral(ctx, transcript)
	}

	s.metrics.ObserveInterpret(string(cmd.Kind), time.Since(started).Seconds())
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveCommand(string(cmd.Kind), string(cmd.Action), "error")
		return nil, err
	}
	res.Intent = cmd.Kind
	if res.Action == ActionNone {
		res.Action = cmd.Action
	}
	res.Transcript = transcript
	s.metrics.ObserveCommand(string(cmd.Kind), string(cmd.Action), string(res.Kind))
	s.logger.Info("voice command interpreted",
		"owner_uid", ownerUID,
		"kind", cmd.Kind,
		"action", cmd.Action,
		"result", res.Kind,
	)
	return res, nil
}

// fillGaps asks the extractor for the client or date when the rules missed them.
func (s *Service) fillGaps(ctx context.Context, cmd *Command, now time.Time) {
	if s.extractor == nil || cmd.Action == ActionQuery {
		return
	}
	missingDate := cmd.When.Empty()
	if cmd.Action == ActionReschedule {
		missingDate = cmd.NewWhen.Empty() && cmd.Shift == 0
	}
	if cmd.ClientName != "" && !missingDate {
		return
	}
	extraction, err := s.extractor.Extract(ctx, cmd.Transcript, now)
	if err != nil {
		s.logger.Warn("voice extraction ignored", "error", err)
		return
	}
	extraction.Apply(cmd, now)
}

// Pending returns the owner's latest staged command.
func (s *Service) Pending(ctx context.Context, ownerUID string) (*PendingCommand, error) {
	return s.pending.Latest(ctx, ownerUID)
}

// Confirm commits a staged command. Conflicts were shown when it was staged, so
// the commit goes through with AllowConflicts. The command is taken from the
// store before committing, so a second confirm of the same id gets
// ErrPendingNotFound instead of committing twice.
func (s *Service) Confirm(ctx context.Context, ownerUID, id string) (*Result, error) {
	ctx, span := voiceTracer.Start(ctx, "voice.confirm")
	defer span.End()
	span.SetAttributes(attribute.String("practice.voice.command_id", id))

	cmd, err := s.pending.Take(ctx, ownerUID, id)
	if err != nil {
		return nil, err
	}

	res := &Result{Kind: ResultCommitted, Intent: KindConfirm, Action: cmd.Action}
	switch cmd.Action {
	case ActionCreate:
		created, err := s.calendar.CreateAppointment(ctx, ownerUID, scheduling.AppointmentInput{
			ClientID:        cmd.ClientID,
			Start:           cmd.Start,
			DurationMinutes: cmd.DurationMinutes,
			Repeats:         cmd.Repeats,
			Notes:           cmd.Notes,
			AllowConflicts:  true,
		})
		if err != nil {
			span.RecordError(err)
			return nil, s.restore(ctx, cmd, err)
		}
		res.Appointments = []*scheduling.Appointment{created.Appointment}
		res.Conflicts = created.Conflicts
		res.Message = fmt.Sprintf("Booked %s for %s.", cmd.ClientName, s.formatWhen(created.Appointment.Start))
		if created.Occurrences > 1 {
			res.Message = fmt.Sprintf("Booked %d %s sessions with %s starting %s.", created.Occurrences, cmd.Repeats, cmd.ClientName, s.formatWhen(created.Appointment.Start))
		}
	case ActionCancel:
		appt, err := s.calendar.CancelAppointment(ctx, ownerUID, cmd.AppointmentID)
		if err != nil {
			span.RecordError(err)
			return nil, s.restore(ctx, cmd, err)
		}
		res.Appointments = []*scheduling.Appointment{appt}
		res.Message = fmt.Sprintf("Cancelled %s's appointment on %s.", cmd.ClientName, s.formatWhen(appt.Start))
	case ActionReschedule:
		appt, conflicts, err := s.calendar.RescheduleAppointment(ctx, ownerUID, cmd.AppointmentID, cmd.Start, cmd.DurationMinutes, true)
		if err != nil {
			span.RecordError(err)
			return nil, s.restore(ctx, cmd, err)
		}
		res.Appointments = []*scheduling.Appointment{appt}
		res.Conflicts = conflicts
		res.Message = fmt.Sprintf("Moved %s to %s.", cmd.ClientName, s.formatWhen(appt.Start))
	default:
		return nil, fmt.Errorf("voice: cannot confirm action %q", cmd.Action)
	}

	s.metrics.ObserveCommand(string(KindConfirm), string(cmd.Action), string(ResultCommitted))
	s.logger.Info("voice command committed", "owner_uid", ownerUID, "command_id", id, "action", cmd.Action)
	return res, nil
}

// restore puts a taken command back after a failed commit so it can be
// confirmed again. Commands whose appointment has disappeared stay dropped.
func (s *Service) restore(ctx context.Context, cmd *PendingCommand, err error) error {
	if errors.Is(err, scheduling.ErrAppointmentNotFound) {
		return err
	}
	remaining := cmd.ExpiresAt.Sub(s.now())
	if remaining <= 0 {
		return err
	}
	if saveErr := s.pending.Save(ctx, cmd, remaining); saveErr != nil {
		s.logger.Warn("failed to restore voice command", "command_id", cmd.ID, "error", saveErr)
	}
	return err
}

// Cancel discards a staged command without touching the calendar.
func (s *Service) Cancel(ctx context.Context, ownerUID, id string) (*Result, error) {
	cmd, err := s.pending.Get(ctx, ownerUID, id)
	if err != nil {
		return nil, err
	}
	if err := s.pending.Delete(ctx, ownerUID, id); err != nil {
		return nil, err
	}
	s.metrics.ObserveCommand(string(KindDecline), string(cmd.Action), string(ResultDiscarded))
	s.logger.Info("voice command discarded", "owner_uid", ownerUID, "command_id", id)
	return &Result{
		Kind:    ResultDiscarded,
		Intent:  KindDecline,
		Action:  cmd.Action,
		Pending: cmd,
		Message: "Okay, I won't make that change.",
	}, nil
}

func (s *Service) confirmLatest(ctx context.Context, ownerUID string) (*Result, error) {
	cmd, err := s.pending.Latest(ctx, ownerUID)
	if errors.Is(err, ErrPendingNotFound) {
		return &Result{Kind: ResultAnswer, Message: "There's nothing waiting for confirmation."}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.Confirm(ctx, ownerUID, cmd.ID)
}

func (s *Service) discardLatest(ctx context.Context, ownerUID string) (*Result, error) {
	cmd, err := s.pending.Latest(ctx, ownerUID)
	if errors.Is(err, ErrPendingNotFound) {
		return &Result{Kind: ResultAnswer, Message: "There's nothing to cancel."}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.Cancel(ctx, ownerUID, cmd.ID)
}

func clarify(action Action, msg string, candidates ...string) *Result {
	return &Result{Kind: ResultClarification, Action: action, Message: msg, Candidates: candidates}
}

// resolveClient maps the spoken name to one client or explains why it could not.
func (s *Service) resolveClient(ctx context.Context, ownerUID string, action Action, name string) (*scheduling.Client, *Result, error) {
	if name == "" {
		return nil, clarify(action, "Which client is this for?"), nil
	}
	clients, err := s.calendar.ListClients(ctx, ownerUID)
	if err != nil {
		return nil, nil, err
	}
	match := NewNameIndex(clients, s.threshold).Match(name)
	if len(match.Candidates) > 0 {
		s.metrics.ObserveMatchScore(match.Candidates[0].Score)
	}
	names := candidateNames(match.Candidates, 3)
	if match.Best == nil {
		if len(names) > 0 {
			return nil, clarify(action, fmt.Sprintf("I couldn't find a client named %s. Did you mean %s?", titleCase(name), joinOr(names)), names...), nil
		}
		return nil, clarify(action, fmt.Sprintf("I couldn't find a client named %s.", titleCase(name))), nil
	}
	if match.Ambiguous {
		var tied []string
		for _, c := range match.Candidates {
			if match.Best.Score-c.Score < AmbiguityMargin {
				tied = append(tied, c.Name)
			}
		}
		return nil, clarify(action, fmt.Sprintf("Did you mean %s?", joinOr(tied)), tied...), nil
	}
	for _, c := range clients {
		if c.ID == match.Best.ClientID {
			return c, nil, nil
		}
	}
	return nil, clarify(action, fmt.Sprintf("I couldn't find a client named %s.", titleCase(name))), nil
}

func (s *Service) stageCreate(ctx context.Context, ownerUID string, cmd Command, now time.Time) (*Result, error) {
	client, res, err := s.resolveClient(ctx, ownerUID, ActionCreate, cmd.ClientName)
	if res != nil || err != nil {
		return res, err
	}
	if cmd.When.Empty() {
		return clarify(ActionCreate, fmt.Sprintf("When should I book %s?", client.Name)), nil
	}
	if !cmd.When.HasTime {
		return clarify(ActionCreate, fmt.Sprintf("What time on %s?", cmd.When.Date.Format("Monday, January 2"))), nil
	}
	start, _ := cmd.When.Start(now)
	if start.Before(now) {
		return clarify(ActionCreate, fmt.Sprintf("%s has already passed. When should I book %s instead?", s.formatWhen(start), client.Name)), nil
	}

	duration := cmd.DurationMinutes
	if duration <= 0 {
		duration = s.calendar.DefaultDuration()
	}
	repeats := cmd.Repeats
	if repeats == "" {
		repeats = scheduling.RepeatNone
	}
	in := scheduling.AppointmentInput{
		ClientID:        client.ID,
		Start:           start,
		DurationMinutes: duration,
		Repeats:         repeats,
		Notes:           cmd.Notes,
	}
	occurrences, conflicts, err := s.calendar.PreviewSeries(ctx, ownerUID, in)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveConflicts("voice", len(conflicts))

	summary := fmt.Sprintf("Book %s on %s for %d minutes", client.Name, s.formatWhen(start), duration)
	if repeats != scheduling.RepeatNone {
		summary += fmt.Sprintf(", repeating %s (%d sessions)", repeats, len(occurrences))
	}
	summary += "." + conflictWarning(conflicts)

	pending := &PendingCommand{
		Action:          ActionCreate,
		Transcript:      cmd.Transcript,
		ClientID:        client.ID,
		ClientName:      client.Name,
		Start:           start,
		End:             start.Add(time.Duration(duration) * time.Minute),
		DurationMinutes: duration,
		Repeats:         repeats,
		Occurrences:     len(occurrences),
		Notes:           cmd.Notes,
		Conflicts:       conflicts,
		Summary:         summary,
	}
	return s.stage(ctx, ownerUID, pending)
}

func (s *Service) stageCancel(ctx context.Context, ownerUID string, cmd Command, now time.Time) (*Result, error) {
	client, res, err := s.resolveClient(ctx, ownerUID, ActionCancel, cmd.ClientName)
	if res != nil || err != nil {
		return res, err
	}
	target, err := s.selectTarget(ctx, ownerUID, client.ID, cmd.When, now)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return clarify(ActionCancel, fmt.Sprintf("I couldn't find an upcoming appointment for %s.", client.Name)), nil
	}
	pending := &PendingCommand{
		Action:          ActionCancel,
		Transcript:      cmd.Transcript,
		ClientID:        client.ID,
		ClientName:      client.Name,
		AppointmentID:   target.ID,
		Start:           target.Start,
		End:             target.End,
		DurationMinutes: target.DurationMinutes,
		Summary:         fmt.Sprintf("Cancel %s's appointment on %s.", client.Name, s.formatWhen(target.Start)),
	}
	return s.stage(ctx, ownerUID, pending)
}

func (s *Service) stageReschedule(ctx context.Context, ownerUID string, cmd Command, now time.Time) (*Result, error) {
	client, res, err := s.resolveClient(ctx, ownerUID, ActionReschedule, cmd.ClientName)
	if res != nil || err != nil {
		return res, err
	}
	target, err := s.selectTarget(ctx, ownerUID, client.ID, cmd.When, now)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return clarify(ActionReschedule, fmt.Sprintf("I couldn't find an upcoming appointment for %s.", client.Name)), nil
	}

	loc := s.calendar.Location()
	current := target.Start.In(loc)
	var newStart time.Time
	switch {
	case cmd.NewWhen.HasDate && cmd.NewWhen.HasTime:
		newStart, _ = cmd.NewWhen.Start(now)
	case cmd.NewWhen.HasDate:
		// Keep the current time of day; Start applies the bare-weekday roll-forward.
		slot := cmd.NewWhen
		slot.Time = TimeOfDay{Hour: current.Hour(), Minute: current.Minute()}
		slot.HasTime = true
		newStart, _ = slot.Start(now)
	case cmd.NewWhen.HasTime:
		newStart = cmd.NewWhen.Time.On(current)
	case cmd.Shift != 0:
		newStart = current.Add(cmd.Shift)
	default:
		return clarify(ActionReschedule, fmt.Sprintf("When should I move %s's appointment on %s to?", client.Name, s.formatWhen(target.Start))), nil
	}
	if newStart.Before(now) {
		return clarify(ActionReschedule, fmt.Sprintf("%s has already passed. When should I move it to instead?", s.formatWhen(newStart))), nil
	}

	duration := cmd.DurationMinutes
	if duration <= 0 {
		duration = target.DurationMinutes
	}
	if duration <= 0 {
		duration = int(target.End.Sub(target.Start) / time.Minute)
	}
	candidate := target.Clone()
	candidate.Start = newStart
	candidate.End = newStart.Add(time.Duration(duration) * time.Minute)
	candidate.DurationMinutes = duration
	candidate.Status = scheduling.StatusScheduled
	conflicts, err := s.calendar.CheckConflicts(ctx, ownerUID, candidate, target.ID)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveConflicts("voice", len(conflicts))

	pending := &PendingCommand{
		Action:          ActionReschedule,
		Transcript:      cmd.Transcript,
		ClientID:        client.ID,
		ClientName:      client.Name,
		AppointmentID:   target.ID,
		Start:           candidate.Start,
		End:             candidate.End,
		DurationMinutes: duration,
		Conflicts:       conflicts,
		Summary: fmt.Sprintf("Move %s from %s to %s.%s", client.Name, s.formatWhen(target.Start),
			s.formatWhen(candidate.Start), conflictWarning(conflicts)),
	}
	return s.stage(ctx, ownerUID, pending)
}

func (s *Service) stage(ctx context.Context, ownerUID string, cmd *PendingCommand) (*Result, error) {
	now := s.now()
	cmd.ID = s.newID()
	cmd.OwnerUID = ownerUID
	cmd.CreatedAt = now.UTC()
	cmd.ExpiresAt = now.Add(s.ttl).UTC()
	if err := s.pending.Save(ctx, cmd, s.ttl); err != nil {
		return nil, err
	}
	s.logger.Info("voice command staged",
		"owner_uid", ownerUID,
		"command_id", cmd.ID,
		"action", cmd.Action,
		"client_id", cmd.ClientID,
		"conflicts", len(cmd.Conflicts),
	)
	return &Result{
		Kind:      ResultPending,
		Action:    cmd.Action,
		Message:   cmd.Summary + " Should I go ahead?",
		Pending:   cmd,
		Conflicts: cmd.Conflicts,
	}, nil
}

// selectTarget picks the client's scheduled appointment on the slot's date,
// closest to the slot's time, or else the next upcoming one.
func (s *Service) selectTarget(ctx context.Context, ownerUID, clientID string, slot Slot, now time.Time) (*scheduling.Appointment, error) {
	appts, err := s.calendar.ListAppointments(ctx, ownerUID, scheduling.AppointmentFilter{
		ClientID: clientID,
		Status:   scheduling.StatusScheduled,
	})
	if err != nil {
		return nil, err
	}
	if slot.HasDate {
		dayStart := slot.Date
		dayEnd := dayStart.AddDate(0, 0, 1)
		var best *scheduling.Appointment
		var bestGap time.Duration
		for _, appt := range appts {
			if appt.Start.Before(dayStart) || !appt.Start.Before(dayEnd) {
				continue
			}
			gap := time.Duration(0)
			if slot.HasTime {
				gap = absDuration(appt.Start.Sub(slot.Time.On(dayStart)))
			}
			if best == nil || gap < bestGap {
				best, bestGap = appt, gap
			}
		}
		if best != nil {
			return best, nil
		}
	}
	for _, appt := range appts {
		if !appt.Start.Before(now) {
			return appt, nil
		}
	}
	return nil, nil
}

func (s *Service) answerQuery(ctx context.Context, ownerUID string, cmd Command, now time.Time) (*Result, error) {
	filter := scheduling.AppointmentFilter{ActiveOnly: true}
	var client *scheduling.Client
	if cmd.ClientName != "" {
		c, res, err := s.resolveClient(ctx, ownerUID, ActionQuery, cmd.ClientName)
		if res != nil || err != nil {
			return res, err
		}
		client = c
		filter.ClientID = c.ID
	}

	label := "today"
	switch r, ok := cmd.When.Range(); {
	case ok:
		filter.From, filter.To = r.Start, r.End
		label = "on " + r.Start.Format("Monday, January 2")
		if r.Days() > 1 {
			label = fmt.Sprintf("between %s and %s", r.Start.Format("Monday, January 2"), r.End.AddDate(0, 0, -1).Format("Monday, January 2"))
		}
	case cmd.NextOnly || client != nil:
		filter.From = now
		label = "coming up"
	default:
		filter.From = startOfDay(now)
		filter.To = filter.From.AddDate(0, 0, 1)
	}

	appts, err := s.calendar.ListAppointments(ctx, ownerUID, filter)
	if err != nil {
		return nil, err
	}
	if cmd.NextOnly && len(appts) > 1 {
		appts = appts[:1]
	}

	names, err := s.clientNames(ctx, ownerUID)
	if err != nil {
		return nil, err
	}
	res := &Result{Kind: ResultAnswer, Action: ActionQuery, Appointments: appts}
	switch {
	case len(appts) == 0 && client != nil:
		res.Message = fmt.Sprintf("%s has no appointments %s.", client.Name, label)
	case len(appts) == 0:
		res.Message = fmt.Sprintf("You have no appointments %s.", label)
	case cmd.NextOnly && client != nil:
		res.Message = fmt.Sprintf("%s's next appointment is %s.", client.Name, s.formatWhen(appts[0].Start))
	default:
		parts := make([]string, 0, len(appts))
		for _, appt := range appts {
			parts = append(parts, fmt.Sprintf("%s with %s", s.formatWhen(appt.Start), names[appt.ClientID]))
		}
		noun := "appointments"
		if len(appts) == 1 {
			noun = "appointment"
		}
		res.Message = fmt.Sprintf("You have %d %s %s: %s.", len(appts), noun, label, strings.Join(parts, "; "))
	}
	return res, nil
}

func (s *Service) clientNames(ctx context.Context, ownerUID string) (map[string]string, error) {
	clients, err := s.calendar.ListClients(ctx, ownerUID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(clients))
	for _, c := range clients {
		out[c.ID] = c.Name
	}
	return out, nil
}

func (s *Service) answerGeneral(ctx context.Context, question string) *Result {
	if s.assistant == nil {
		return &Result{Kind: ResultAnswer, Message: helpMessage}
	}
	resp, err := s.assistant.Complete(ctx, llm.Request{
		System:      []string{assistantPrompt},
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: question}},
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		s.logger.Warn("general answer unavailable", "error", err)
		return &Result{Kind: ResultAnswer, Message: helpMessage}
	}
	return &Result{Kind: ResultAnswer, Message: strings.TrimSpace(resp.Text)}
}

func (s *Service) formatWhen(t time.Time) string {
	return t.In(s.calendar.Location()).Format("Monday, January 2 at 3:04 PM")
}

func conflictWarning(conflicts []*scheduling.Appointment) string {
	switch len(conflicts) {
	case 0:
		return ""
	case 1:
		return " Heads up: this overlaps 1 existing appointment."
	default:
		return fmt.Sprintf(" Heads up: this overlaps %d existing appointments.", len(conflicts))
	}
}

func candidateNames(cands []Candidate, limit int) []string {
	var out []string
	for _, c := range cands {
		if len(out) == limit {
			break
		}
		out = append(out, c.Name)
	}
	return out
}

func joinOr(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " or " + names[len(names)-1]
	}
}

// titleCase capitalises each word of a spoken name. Casers hold state, so one is
// built per call.
func titleCase(s string) string {
	return cases.Title(language.Und).String(strings.Join(strings.Fields(s), " "))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
