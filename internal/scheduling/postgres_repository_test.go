package scheduling

import (
	"context"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appointmentCols = []string{
	"id", "owner_uid", "client_id", "provider_id", "start_at", "end_at", "duration_minutes",
	"priority", "status", "notes", "repeats", "series_id", "created_at", "updated_at",
}

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return newPostgresRepositoryWithDB(mock), mock
}

func TestPostgresCreateAppointmentsInOneTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)
	start := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	appts := []*Appointment{
		{ID: "a1", OwnerUID: owner, ClientID: "c1", Start: start, End: start.Add(time.Hour), DurationMinutes: 60, Priority: PriorityNormal, Status: StatusScheduled, Repeats: RepeatWeekly, SeriesID: "s1"},
		{ID: "a2", OwnerUID: owner, ClientID: "c1", Start: start.AddDate(0, 0, 7), End: start.AddDate(0, 0, 7).Add(time.Hour), DurationMinutes: 60, Priority: PriorityNormal, Status: StatusScheduled, Repeats: RepeatWeekly, SeriesID: "s1"},
	}

	mock.ExpectBegin()
	for _, a := range appts {
		mock.ExpectExec("INSERT INTO appointments").
			WithArgs(a.ID, owner, "c1", nil, a.Start, a.End, 60, "normal", "scheduled", "", "weekly", "s1", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	require.NoError(t, repo.CreateAppointments(context.Background(), appts))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateAppointmentsRollsBackOnError(t *testing.T) {
	repo, mock := newMockRepo(t)
	start := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO appointments").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.CreateAppointments(context.Background(), []*Appointment{
		{ID: "a1", OwnerUID: owner, ClientID: "c1", Start: start, End: start.Add(time.Hour)},
	})
	require.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetAppointment(t *testing.T) {
	repo, mock := newMockRepo(t)
	start := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .+ FROM appointments WHERE owner_uid = \\$1 AND id = \\$2").
		WithArgs(owner, "a1").
		WillReturnRows(pgxmock.NewRows(appointmentCols).AddRow(
			"a1", owner, "c1", "", start, start.Add(50*time.Minute), 50,
			"high", "no-show", "late cancel", "none", "", start, start,
		))
	appt, err := repo.GetAppointment(context.Background(), owner, "a1")
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, appt.Status)
	assert.Equal(t, PriorityHigh, appt.Priority)
	assert.Equal(t, 50, appt.DurationMinutes)
	assert.Empty(t, appt.ProviderID)

	mock.ExpectQuery("SELECT .+ FROM appointments").WithArgs(owner, "missing").WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetAppointment(context.Background(), owner, "missing")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteClientCascades(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM appointments WHERE owner_uid = \\$1 AND client_id = \\$2").
		WithArgs(owner, "c1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("DELETE FROM clients").
		WithArgs(owner, "c1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	removed, err := repo.DeleteClient(context.Background(), owner, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteClientNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM appointments").WithArgs(owner, "nope").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM clients").WithArgs(owner, "nope").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	_, err := repo.DeleteClient(context.Background(), owner, "nope")
	assert.ErrorIs(t, err, ErrClientNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteProviderUnassigns(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE appointments SET provider_id = NULL").WithArgs(owner, "p1").WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec("DELETE FROM providers").WithArgs(owner, "p1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	unassigned, err := repo.DeleteProvider(context.Background(), owner, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, unassigned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateClientNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE clients").WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateClient(context.Background(), &Client{ID: "c1", OwnerUID: owner, Name: "Jane"})
	assert.ErrorIs(t, err, ErrClientNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListClients(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT .+ FROM clients WHERE owner_uid = \\$1 ORDER BY name").
		WithArgs(owner).
		WillReturnRows(pgxmock.NewRows([]string{"id", "owner_uid", "name", "email", "phone", "color", "notes", "created_at", "updated_at"}).
			AddRow("c1", owner, "Jane Doe", "jane@example.com", "", "#4F86C6", "", now, now).
			AddRow("c2", owner, "John Smith", "", "555-0100", "#E07A5F", "prefers mornings", now, now))

	clients, err := repo.ListClients(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "John Smith", clients[1].Name)
	assert.Equal(t, "prefers mornings", clients[1].Notes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildAppointmentQuery(t *testing.T) {
	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	query, args := buildAppointmentQuery(owner, AppointmentFilter{From: from, To: to, ClientID: "c1", ActiveOnly: true})

	assert.Contains(t, query, "owner_uid = $1")
	assert.Contains(t, query, "end_at > $2")
	assert.Contains(t, query, "start_at < $3")
	assert.Contains(t, query, "client_id = $4")
	assert.Contains(t, query, "status <> 'cancelled'")
	assert.Equal(t, []any{owner, from, to, "c1"}, args)
}
