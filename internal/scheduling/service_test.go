package scheduling

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/practice-scheduler/pkg/logging"
)

const owner = "owner-1"

var fixedNow = time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *InMemoryRepository) {
	t.Helper()
	repo := NewInMemoryRepository()
	n := 0
	svc := NewService(repo, logging.NewWithWriter("error", &bytes.Buffer{}), Options{
		Now: func() time.Time { return fixedNow },
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%03d", n)
		},
	})
	return svc, repo
}

func mustClient(t *testing.T, svc *Service, name string) *Client {
	t.Helper()
	client, err := svc.CreateClient(context.Background(), owner, ClientInput{Name: name})
	require.NoError(t, err)
	return client
}

func TestCreateClientValidatesAndColors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateClient(ctx, owner, ClientInput{Name: "  "})
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = svc.CreateClient(ctx, "", ClientInput{Name: "Jane"})
	assert.ErrorIs(t, err, ErrMissingOwner)

	client, err := svc.CreateClient(ctx, owner, ClientInput{Name: " Jane Doe "})
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", client.Name)
	assert.Equal(t, PaletteColor("Jane Doe"), client.Color)
	assert.Equal(t, owner, client.OwnerUID)
}

func TestClientsAreOwnerScoped(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	client := mustClient(t, svc, "Jane")

	_, err := svc.GetClient(ctx, "someone-else", client.ID)
	assert.ErrorIs(t, err, ErrClientNotFound)

	others, err := svc.ListClients(ctx, "someone-else")
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestCreateAppointmentDerivesEnd(t *testing.T) {
	svc, _ := newTestService(t)
	client := mustClient(t, svc, "Jane")
	start := time.Date(2026, 10, 15, 14, 0, 0, 0, time.UTC)

	res, err := svc.CreateAppointment(context.Background(), owner, AppointmentInput{ClientID: client.ID, Start: start})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Occurrences)
	assert.Equal(t, start.Add(time.Hour), res.Appointment.End)
	assert.Equal(t, 60, res.Appointment.DurationMinutes)
	assert.Equal(t, StatusScheduled, res.Appointment.Status)
	assert.Equal(t, PriorityNormal, res.Appointment.Priority)
	assert.Equal(t, RepeatNone, res.Appointment.Repeats)
	assert.Empty(t, res.Appointment.SeriesID)

	res, err = svc.CreateAppointment(context.Background(), owner, AppointmentInput{
		ClientID: client.ID,
		Start:    start.Add(2 * time.Hour),
		End:      start.Add(2*time.Hour + 45*time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, 45, res.Appointment.DurationMinutes)
}

func TestCreateAppointmentValidation(t *testing.T) {
	svc, _ := newTestService(t)
	client := mustClient(t, svc, "Jane")
	start := time.Date(2026, 10, 15, 14, 0, 0, 0, time.UTC)
	ctx := context.Background()

	tests := []struct {
		name string
		in   AppointmentInput
		is   error
	}{
		{"missing client", AppointmentInput{Start: start}, ErrInvalidAppointment},
		{"unknown client", AppointmentInput{ClientID: "nope", Start: start}, ErrClientNotFound},
		{"unknown provider", AppointmentInput{ClientID: client.ID, ProviderID: "nope", Start: start}, ErrProviderNotFound},
		{"missing start", AppointmentInput{ClientID: client.ID}, ErrInvalidAppointment},
		{"end before start", AppointmentInput{ClientID: client.ID, Start: start, End: start.Add(-time.Minute)}, ErrInvalidTimeRange},
		{"end equals start", AppointmentInput{ClientID: client.ID, Start: start, End: start}, ErrInvalidTimeRange},
		{"bad repeat", AppointmentInput{ClientID: client.ID, Start: start, Repeats: "daily"}, ErrInvalidAppointment},
		{"bad priority", AppointmentInput{ClientID: client.ID, Start: start, Priority: "urgent"}, ErrInvalidAppointment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateAppointment(ctx, owner, tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.is)
			assert.ErrorIs(t, err, ErrInvalidAppointment)
		})
	}
}

func TestCreateAppointmentRejectsConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	jane := mustClient(t, svc, "Jane")
	john := mustClient(t, svc, "John")
	start := time.Date(2026, 10, 15, 14, 0, 0, 0, time.UTC)

	first, err := svc.CreateAppointment(ctx, owner, AppointmentInput{ClientID: jane.ID, Start: start})
	require.NoError(t, err)

	_, err = svc.CreateAppointment(ctx, owner, AppointmentInput{ClientID: john.ID, Start: start.Add(30 * time.Minute)})
	var conflictErr *ConflictError
	require.True(t, errors.As(err, &conflictErr))
	require.Len(t, conflictErr.Conflicts, 1)
	assert.Equal(t, first.Appointment.ID, conflictErr.Conflicts[0].ID)

	res, err := svc.CreateAppointment(ctx, owner, AppointmentInput{ClientID: john.ID, Start: start.Add(30 * time.Minute), AllowConflicts: true})
	require.NoError(t, err)
	assert.Len(t, res.Conflicts, 1)

	_, err = svc.CreateAppointment(ctx, owner, AppointmentInput{ClientID: john.ID, Start: start.Add(2 * time.Hour)})
	assert.NoError(t, err, "back-to-back slots do not conflict")
}

func TestCreateRecurringSeries(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	jane := mustClient(t, svc, "Jane")
	start := time.Date(2026, 10, 16, 15, 0, 0, 0, time.UTC)

	res, err := svc.CreateAppointment(ctx, owner, AppointmentInput{ClientID: jane.ID, Start: start, Repeats: RepeatWeekly})
	require.NoError(t, err)
	assert.Equal(t, 27, res.Occurrences)
	assert.NotEmpty(t, res.SeriesID)

	stored, err := repo.ListAppointments(ctx, owner, AppointmentFilter{})
	require.NoError(t, err)
	require.Len(t, stored, 27)
	for _, appt := range stored {
		assert.Equal(t, res.SeriesID, appt.SeriesID)
	}
}

func TestCreateRecurringSeriesChecksEveryOccurrence(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	jane := mustClient(t, svc, "Jane")
	john := mustClient(t, svc, "John")

	blocker, err := svc.CreateAppointment(ctx, owner, AppointmentInput{
		ClientID: john.ID,
		Start:    time.Date(2026, 11, 13, 15, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	_, err = svc.CreateAppointment(ctx, owner, AppointmentInput{
		ClientID: jane.ID,
		Start:    time.Date(2026, 10, 16, 15, 0, 0, 0, time.UTC),
		Repeats:  RepeatWeekly,
	})
	var conflictErr *ConflictError
	require.True(t, errors.As(err, &conflictErr))
	assert.Equal(t, blocker.Appointment.ID, conflictErr.Conflicts[0].ID)

	stored, err := repo.ListAppointments(ctx, owner, AppointmentFilter{})
	require.NoError(t, err)
	assert.Len(t, stored, 1, "a rejected series stores nothing")
}

func TestCancelAndTransitions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	jane := mustClient(t, svc, "Jane")
	res, err := svc.CreateAppointment(ctx, owner, AppointmentInput{ClientID: jane.ID, Start: time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	id := res.Appointment.ID

	cancelled, err := svc.CancelAppointment(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	_, err = svc.CancelAppointment(ctx, owner, id)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	completed := StatusCompleted
	_, _, err = svc.UpdateAppointment(ctx, owner, id, AppointmentPatch{Status: &completed})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	reopened := StatusScheduled
	appt, _, err := svc.UpdateAppointment(ctx, owner, id, AppointmentPatch{Status: &reopened})
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)

	appt, _, err = svc.UpdateAppointment(ctx, owner, id, AppointmentPatch{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, appt.Status)
}

func TestCancelledSlotIsFree(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	jane := mustClient(t, svc, "Jane")
	start := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	res, err := svc.CreateAppointment(ctx, owner, AppointmentInput{ClientID: jane.ID, Start: start})
	require.NoError(t, err)
	_, err = svc.CancelAppointment(ctx, owner, res.Appointment.ID)
	require.NoError(t, err)

	_, err = svc.CreateAppointment(ctx, owner, AppointmentInput{ClientID: jane.ID, Start: start})
	assert.NoError(t, err)
}

func TestRescheduleKeepsDurationAndExcludesSelf(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	jane := mustClient(t, svc, "Jane")
	john := mustClient(t, svc, "John")
	start := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)

	res, err := svc.CreateAppointment(ctx, owner, AppointmentInput{ClientID: jane.ID, Start: start, DurationMinutes: 50})
	require.NoError(t, err)
	_, err = svc.CreateAppointment(ctx, owner, AppointmentInput{ClientID: john.ID, Start: start.Add(3 * time.Hour)})
	require.NoError(t, err)

	moved, conflicts, err := svc.RescheduleAppointment(ctx, owner, res.Appointment.ID, start.Add(30*time.Minute), 0, false)
	require.NoError(t, err, "overlapping its own old slot is not a conflict")
	assert.Empty(t, conflicts)
	assert.Equal(t, 50, moved.DurationMinutes)
	assert.Equal(t, start.Add(80*time.Minute), moved.End)

	_, _, err = svc.RescheduleAppointment(ctx, owner, res.Appointment.ID, start.Add(3*time.Hour), 0, false)
	assert.ErrorIs(t, err, ErrConflict)

	moved, conflicts, err = svc.RescheduleAppointment(ctx, owner, res.Appointment.ID, start.Add(3*time.Hour), 90, true)
	require.NoError(t, err)
	assert.Len(t, conflicts, 1)
	assert.Equal(t, 90, moved.DurationMinutes)
}

func TestDeleteClientCascades(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	jane := mustClient(t, svc, "Jane")
	john := mustClient(t, svc, "John")
	_, err := svc.CreateAppointment(ctx, owner, AppointmentInput{ClientID: jane.ID, Start: time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC), Repeats: RepeatMonthly})
	require.NoError(t, err)
	_, err = svc.CreateAppointment(ctx, owner, AppointmentInput{ClientID: john.ID, Start: time.Date(2026, 10, 20, 13, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	removed, err := svc.DeleteClient(ctx, owner, jane.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, removed)

	left, err := repo.ListAppointments(ctx, owner, AppointmentFilter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, john.ID, left[0].ClientID)
}

func TestDeleteProviderUnassigns(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	jane := mustClient(t, svc, "Jane")
	provider, err := svc.CreateProvider(ctx, owner, ProviderInput{Name: "Dr. Adams", Title: "LCSW"})
	require.NoError(t, err)
	res, err := svc.CreateAppointment(ctx, owner, AppointmentInput{ClientID: jane.ID, ProviderID: provider.ID, Start: time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	unassigned, err := svc.DeleteProvider(ctx, owner, provider.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unassigned)

	appt, err := svc.GetAppointment(ctx, owner, res.Appointment.ID)
	require.NoError(t, err)
	assert.Empty(t, appt.ProviderID)
}

func TestListAppointmentsDropsInvalidRows(t *testing.T) {
	var logs bytes.Buffer
	repo := NewInMemoryRepository()
	svc := NewService(repo, logging.NewWithWriter("info", &logs), Options{})
	ctx := context.Background()

	start := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.CreateAppointments(ctx, []*Appointment{
		{ID: "good", OwnerUID: owner, ClientID: "c", Start: start, End: start.Add(time.Hour), Status: StatusScheduled},
		{ID: "legacy", OwnerUID: owner, ClientID: "c", Start: start, End: start.Add(-time.Hour), Status: StatusScheduled},
	}))

	appts, err := svc.ListAppointments(ctx, owner, AppointmentFilter{})
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, "good", appts[0].ID)
	assert.Contains(t, logs.String(), "legacy")
}

func TestConflictReport(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	jane := mustClient(t, svc, "Jane")
	john := mustClient(t, svc, "John")
	start := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	_, err := svc.CreateAppointment(ctx, owner, AppointmentInput{ClientID: jane.ID, Start: start})
	require.NoError(t, err)
	_, err = svc.CreateAppointment(ctx, owner, AppointmentInput{ClientID: john.ID, Start: start.Add(15 * time.Minute), AllowConflicts: true})
	require.NoError(t, err)

	pairs, err := svc.ConflictReport(ctx, owner, start.Add(-24*time.Hour), start.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, jane.ID, pairs[0].First.ClientID)
}

func TestPreviewSeriesWritesNothing(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	jane := mustClient(t, svc, "Jane")

	occurrences, conflicts, err := svc.PreviewSeries(ctx, owner, AppointmentInput{
		ClientID: jane.ID,
		Start:    time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC),
		Repeats:  RepeatBiweekly,
	})
	require.NoError(t, err)
	assert.Len(t, occurrences, 14)
	assert.Empty(t, conflicts)

	stored, err := repo.ListAppointments(ctx, owner, AppointmentFilter{})
	require.NoError(t, err)
	assert.Empty(t, stored)
}
