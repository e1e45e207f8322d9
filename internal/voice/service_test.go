package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/practice-scheduler/internal/scheduling"
	"github.com/wolfman30/practice-scheduler/pkg/logging"
)

const testOwner = "owner-1"

type voiceFixture struct {
	svc      *Service
	calendar *scheduling.Service
	store    *MemoryPendingStore
	clients  map[string]*scheduling.Client
}

func newVoiceFixture(t *testing.T, opts Options) *voiceFixture {
	t.Helper()
	logger := logging.NewWithWriter("error", &bytes.Buffer{})
	now := func() time.Time { return refNow }
	n := 0
	calendar := scheduling.NewService(scheduling.NewInMemoryRepository(), logger, scheduling.Options{
		Now: now,
		NewID: func() string {
			n++
			return fmt.Sprintf("appt-%03d", n)
		},
	})
	store := NewMemoryPendingStore(now)
	opts.Now = now
	m := 0
	opts.NewID = func() string {
		m++
		return fmt.Sprintf("cmd-%03d", m)
	}
	f := &voiceFixture{
		svc:      NewService(calendar, store, logger, opts),
		calendar: calendar,
		store:    store,
		clients:  make(map[string]*scheduling.Client),
	}
	for _, name := range []string{"Jane Doe", "John Smith", "Maria Garcia", "Mario Garcia"} {
		c, err := calendar.CreateClient(context.Background(), testOwner, scheduling.ClientInput{Name: name})
		require.NoError(t, err)
		f.clients[name] = c
	}
	return f
}

func (f *voiceFixture) book(t *testing.T, client string, start time.Time) *scheduling.Appointment {
	t.Helper()
	res, err := f.calendar.CreateAppointment(context.Background(), testOwner, scheduling.AppointmentInput{
		ClientID: f.clients[client].ID,
		Start:    start,
	})
	require.NoError(t, err)
	return res.Appointment
}

func at(d, h, min int) time.Time {
	return time.Date(2026, 10, d, h, min, 0, 0, time.UTC)
}

func TestInterpretStagesCreateWithoutCommitting(t *testing.T) {
	f := newVoiceFixture(t, Options{})
	ctx := context.Background()

	res, err := f.svc.Interpret(ctx, testOwner, "Book Jane Doe Friday at 3pm for 45 minutes")
	require.NoError(t, err)
	assert.Equal(t, ResultPending, res.Kind)
	assert.Equal(t, KindCalendar, res.Intent)
	assert.Equal(t, ActionCreate, res.Action)
	require.NotNil(t, res.Pending)
	assert.Equal(t, f.clients["Jane Doe"].ID, res.Pending.ClientID)
	assert.Equal(t, at(16, 15, 0), res.Pending.Start)
	assert.Equal(t, at(16, 15, 45), res.Pending.End)
	assert.Contains(t, res.Message, "Friday, October 16 at 3:00 PM")
	assert.Contains(t, res.Message, "Should I go ahead?")

	appts, err := f.calendar.ListAppointments(ctx, testOwner, scheduling.AppointmentFilter{})
	require.NoError(t, err)
	assert.Empty(t, appts)

	res, err = f.svc.Interpret(ctx, testOwner, "yes")
	require.NoError(t, err)
	assert.Equal(t, ResultCommitted, res.Kind)
	require.Len(t, res.Appointments, 1)
	assert.Equal(t, 45, res.Appointments[0].DurationMinutes)

	_, err = f.store.Latest(ctx, testOwner)
	assert.ErrorIs(t, err, ErrPendingNotFound)
}

func TestInterpretCreateWarnsAboutConflicts(t *testing.T) {
	f := newVoiceFixture(t, Options{})
	ctx := context.Background()
	f.book(t, "John Smith", at(16, 15, 30))

	res, err := f.svc.Interpret(ctx, testOwner, "book jane doe friday at 3pm")
	require.NoError(t, err)
	assert.Equal(t, ResultPending, res.Kind)
	assert.Len(t, res.Conflicts, 1)
	assert.Contains(t, res.Message, "overlaps 1 existing appointment")

	res, err = f.svc.Confirm(ctx, testOwner, res.Pending.ID)
	require.NoError(t, err)
	assert.Equal(t, ResultCommitted, res.Kind)
	assert.Len(t, res.Conflicts, 1)
}

func TestInterpretRecurringCreate(t *testing.T) {
	f := newVoiceFixture(t, Options{})
	ctx := context.Background()

	res, err := f.svc.Interpret(ctx, testOwner, "book John weekly on Mondays at 10am")
	require.NoError(t, err)
	require.Equal(t, ResultPending, res.Kind)
	assert.Equal(t, scheduling.RepeatWeekly, res.Pending.Repeats)
	assert.Greater(t, res.Pending.Occurrences, 20)

	res, err = f.svc.Confirm(ctx, testOwner, res.Pending.ID)
	require.NoError(t, err)
	assert.Contains(t, res.Message, "weekly sessions with John Smith")
}

func TestInterpretAsksForMissingPieces(t *testing.T) {
	f := newVoiceFixture(t, Options{})
	ctx := context.Background()

	res, err := f.svc.Interpret(ctx, testOwner, "book an appointment for friday at 2")
	require.NoError(t, err)
	assert.Equal(t, ResultClarification, res.Kind)
	assert.Equal(t, "Which client is this for?", res.Message)

	res, err = f.svc.Interpret(ctx, testOwner, "book jane doe on friday")
	require.NoError(t, err)
	assert.Equal(t, ResultClarification, res.Kind)
	assert.Contains(t, res.Message, "What time")

	res, err = f.svc.Interpret(ctx, testOwner, "book jane doe at 9am")
	require.NoError(t, err)
	assert.Equal(t, ResultClarification, res.Kind)
	assert.Contains(t, res.Message, "already passed")

	res, err = f.svc.Interpret(ctx, testOwner, "book bartholomew tomorrow at 3pm")
	require.NoError(t, err)
	assert.Equal(t, ResultClarification, res.Kind)
	assert.Contains(t, res.Message, "couldn't find a client named Bartholomew")
}

func TestInterpretAmbiguousClient(t *testing.T) {
	f := newVoiceFixture(t, Options{})
	res, err := f.svc.Interpret(context.Background(), testOwner, "book garcia tomorrow at 3pm")
	require.NoError(t, err)
	assert.Equal(t, ResultClarification, res.Kind)
	assert.ElementsMatch(t, []string{"Maria Garcia", "Mario Garcia"}, res.Candidates)
	assert.Equal(t, "Did you mean Maria Garcia or Mario Garcia?", res.Message)
}

func TestInterpretCancelAndDecline(t *testing.T) {
	f := newVoiceFixture(t, Options{})
	ctx := context.Background()
	appt := f.book(t, "Maria Garcia", at(15, 11, 0))

	res, err := f.svc.Interpret(ctx, testOwner, "cancel Maria Garcia's appointment on thursday")
	require.NoError(t, err)
	require.Equal(t, ResultPending, res.Kind)
	assert.Equal(t, appt.ID, res.Pending.AppointmentID)

	res, err = f.svc.Interpret(ctx, testOwner, "no, never mind")
	require.NoError(t, err)
	assert.Equal(t, ResultDiscarded, res.Kind)

	stored, err := f.calendar.GetAppointment(ctx, testOwner, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusScheduled, stored.Status)

	res, err = f.svc.Interpret(ctx, testOwner, "cancel Maria Garcia's appointment")
	require.NoError(t, err)
	res, err = f.svc.Confirm(ctx, testOwner, res.Pending.ID)
	require.NoError(t, err)
	assert.Equal(t, ResultCommitted, res.Kind)
	stored, err = f.calendar.GetAppointment(ctx, testOwner, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusCancelled, stored.Status)
}

func TestInterpretCancelWithoutAppointment(t *testing.T) {
	f := newVoiceFixture(t, Options{})
	res, err := f.svc.Interpret(context.Background(), testOwner, "cancel john smith's session")
	require.NoError(t, err)
	assert.Equal(t, ResultClarification, res.Kind)
	assert.Contains(t, res.Message, "upcoming appointment for John Smith")
}

func TestInterpretReschedule(t *testing.T) {
	f := newVoiceFixture(t, Options{})
	ctx := context.Background()
	appt := f.book(t, "John Smith", at(15, 11, 0))

	res, err := f.svc.Interpret(ctx, testOwner, "reschedule John Smith from thursday to friday")
	require.NoError(t, err)
	require.Equal(t, ResultPending, res.Kind)
	assert.Equal(t, appt.ID, res.Pending.AppointmentID)
	assert.Equal(t, at(16, 11, 0), res.Pending.Start)

	res, err = f.svc.Interpret(ctx, testOwner, "move John Smith's appointment to 4pm")
	require.NoError(t, err)
	require.Equal(t, ResultPending, res.Kind)
	assert.Equal(t, at(15, 16, 0), res.Pending.Start)

	res, err = f.svc.Interpret(ctx, testOwner, "push John Smith's session back by 30 minutes")
	require.NoError(t, err)
	require.Equal(t, ResultPending, res.Kind)
	assert.Equal(t, at(15, 11, 30), res.Pending.Start)
	assert.Equal(t, 60, res.Pending.DurationMinutes)

	res, err = f.svc.Confirm(ctx, testOwner, res.Pending.ID)
	require.NoError(t, err)
	stored, err := f.calendar.GetAppointment(ctx, testOwner, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, at(15, 11, 30), stored.Start)
}

func TestInterpretRescheduleChecksConflictsExcludingItself(t *testing.T) {
	f := newVoiceFixture(t, Options{})
	ctx := context.Background()
	f.book(t, "John Smith", at(15, 11, 0))
	f.book(t, "Jane Doe", at(15, 12, 0))

	res, err := f.svc.Interpret(ctx, testOwner, "move John Smith's appointment to 11:30am")
	require.NoError(t, err)
	require.Equal(t, ResultPending, res.Kind)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, f.clients["Jane Doe"].ID, res.Conflicts[0].ClientID)
}

func TestInterpretQuery(t *testing.T) {
	f := newVoiceFixture(t, Options{})
	ctx := context.Background()
	f.book(t, "Jane Doe", at(15, 9, 0))
	f.book(t, "John Smith", at(15, 14, 0))
	f.book(t, "John Smith", at(22, 14, 0))

	res, err := f.svc.Interpret(ctx, testOwner, "What do I have tomorrow?")
	require.NoError(t, err)
	assert.Equal(t, ResultAnswer, res.Kind)
	assert.Len(t, res.Appointments, 2)
	assert.Contains(t, res.Message, "You have 2 appointments on Thursday, October 15")
	assert.Contains(t, res.Message, "with Jane Doe")

	res, err = f.svc.Interpret(ctx, testOwner, "when is John Smith's next appointment")
	require.NoError(t, err)
	require.Len(t, res.Appointments, 1)
	assert.Equal(t, "John Smith's next appointment is Thursday, October 15 at 2:00 PM.", res.Message)

	res, err = f.svc.Interpret(ctx, testOwner, "what's on my calendar for the 20th")
	require.NoError(t, err)
	assert.Equal(t, "You have no appointments on Tuesday, October 20.", res.Message)
}

func TestInterpretConfirmWithNothingPending(t *testing.T) {
	f := newVoiceFixture(t, Options{})
	res, err := f.svc.Interpret(context.Background(), testOwner, "yes")
	require.NoError(t, err)
	assert.Equal(t, ResultAnswer, res.Kind)
	assert.Equal(t, KindConfirm, res.Intent)
}

func TestInterpretGeneralQuestion(t *testing.T) {
	f := newVoiceFixture(t, Options{})
	res, err := f.svc.Interpret(context.Background(), testOwner, "What is EMDR?")
	require.NoError(t, err)
	assert.Equal(t, ResultAnswer, res.Kind)
	assert.Equal(t, helpMessage, res.Message)

	assistant := &stubLLM{text: "  EMDR is a structured therapy.  "}
	f = newVoiceFixture(t, Options{Assistant: assistant})
	res, err = f.svc.Interpret(context.Background(), testOwner, "What is EMDR?")
	require.NoError(t, err)
	assert.Equal(t, "EMDR is a structured therapy.", res.Message)
	require.Len(t, assistant.calls, 1)
	assert.Equal(t, "What is EMDR?", assistant.calls[0].Messages[0].Content)

	f = newVoiceFixture(t, Options{Assistant: &stubLLM{err: errors.New("down")}})
	res, err = f.svc.Interpret(context.Background(), testOwner, "What is EMDR?")
	require.NoError(t, err)
	assert.Equal(t, helpMessage, res.Message)
}

func TestInterpretUsesExtractorForGaps(t *testing.T) {
	extractor := NewLLMExtractor(&stubLLM{text: `{"client_name":"jane doe","date":"2026-10-16","time":"15:00"}`}, 0, 0)
	f := newVoiceFixture(t, Options{Extractor: extractor})

	res, err := f.svc.Interpret(context.Background(), testOwner, "book Jane Doe for her usual slot")
	require.NoError(t, err)
	require.Equal(t, ResultPending, res.Kind)
	assert.Equal(t, at(16, 15, 0), res.Pending.Start)
}

func TestInterpretValidatesInput(t *testing.T) {
	f := newVoiceFixture(t, Options{})
	_, err := f.svc.Interpret(context.Background(), testOwner, "   ")
	assert.ErrorIs(t, err, ErrEmptyTranscript)
	_, err = f.svc.Interpret(context.Background(), "", "book jane")
	assert.ErrorIs(t, err, scheduling.ErrMissingOwner)
}

func TestConfirmAndCancelAreOwnerScoped(t *testing.T) {
	f := newVoiceFixture(t, Options{})
	ctx := context.Background()
	res, err := f.svc.Interpret(ctx, testOwner, "book jane doe tomorrow at 3pm")
	require.NoError(t, err)
	id := res.Pending.ID

	_, err = f.svc.Confirm(ctx, "intruder", id)
	assert.ErrorIs(t, err, ErrPendingNotFound)
	_, err = f.svc.Cancel(ctx, "intruder", id)
	assert.ErrorIs(t, err, ErrPendingNotFound)

	pending, err := f.svc.Pending(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, id, pending.ID)

	res, err = f.svc.Cancel(ctx, testOwner, id)
	require.NoError(t, err)
	assert.Equal(t, ResultDiscarded, res.Kind)
	_, err = f.svc.Confirm(ctx, testOwner, id)
	assert.ErrorIs(t, err, ErrPendingNotFound)
}

// slowCalendar delays commits so concurrent confirms overlap.
type slowCalendar struct {
	*scheduling.Service
	delay time.Duration
}

func (c slowCalendar) CreateAppointment(ctx context.Context, ownerUID string, in scheduling.AppointmentInput) (*scheduling.CreateResult, error) {
	time.Sleep(c.delay)
	return c.Service.CreateAppointment(ctx, ownerUID, in)
}

func TestConcurrentConfirmCommitsOnce(t *testing.T) {
	f := newVoiceFixture(t, Options{})
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := NewService(slowCalendar{Service: f.calendar, delay: 50 * time.Millisecond}, NewRedisPendingStore(client),
		logging.NewWithWriter("error", &bytes.Buffer{}), Options{Now: func() time.Time { return refNow }})

	res, err := svc.Interpret(ctx, testOwner, "Book Jane Doe Friday at 3pm")
	require.NoError(t, err)
	require.Equal(t, ResultPending, res.Kind)
	id := res.Pending.ID

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Confirm(ctx, testOwner, id)
		}(i)
	}
	wg.Wait()

	var failed int
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrPendingNotFound)
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	appts, err := f.calendar.ListAppointments(ctx, testOwner, scheduling.AppointmentFilter{})
	require.NoError(t, err)
	assert.Len(t, appts, 1)
}

func TestConfirmRestoresCommandWhenCommitFails(t *testing.T) {
	f := newVoiceFixture(t, Options{})
	ctx := context.Background()

	res, err := f.svc.Interpret(ctx, testOwner, "book jane doe tomorrow at 3pm")
	require.NoError(t, err)
	id := res.Pending.ID
	_, err = f.calendar.DeleteClient(ctx, testOwner, f.clients["Jane Doe"].ID)
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, testOwner, id)
	require.Error(t, err)
	pending, err := f.svc.Pending(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, id, pending.ID)
}

func TestInterpretUnknownAccentedName(t *testing.T) {
	f := newVoiceFixture(t, Options{})

	res, err := f.svc.Interpret(context.Background(), testOwner, "Book Élodie tomorrow at 3pm")
	require.NoError(t, err)
	assert.Equal(t, ResultClarification, res.Kind)
	assert.True(t, utf8.ValidString(res.Message))
	assert.Equal(t, "I couldn't find a client named Élodie.", res.Message)
}

func TestInterpretRescheduleToBareWeekdayRollsForward(t *testing.T) {
	f := newVoiceFixture(t, Options{})
	ctx := context.Background()
	// refNow is Wednesday 10:00, so 9:00 today has already gone.
	appt := f.book(t, "John Smith", at(15, 9, 0))

	res, err := f.svc.Interpret(ctx, testOwner, "move John Smith's appointment to wednesday")
	require.NoError(t, err)
	require.Equal(t, ResultPending, res.Kind, res.Message)
	assert.Equal(t, appt.ID, res.Pending.AppointmentID)
	assert.Equal(t, at(21, 9, 0), res.Pending.Start)

	res, err = f.svc.Interpret(ctx, testOwner, "move John Smith's appointment to friday")
	require.NoError(t, err)
	require.Equal(t, ResultPending, res.Kind, res.Message)
	assert.Equal(t, at(16, 9, 0), res.Pending.Start)
}

func TestNewServicePanicsWithoutDependencies(t *testing.T) {
	assert.Panics(t, func() { NewService(nil, NewMemoryPendingStore(nil), nil, Options{}) })
	calendar := scheduling.NewService(scheduling.NewInMemoryRepository(), nil, scheduling.Options{})
	assert.Panics(t, func() { NewService(calendar, nil, nil, Options{}) })
}
