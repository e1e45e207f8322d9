package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txBeginner interface {
	dbtx
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository stores scheduling records in Postgres.
type PostgresRepository struct {
	db txBeginner
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithDB(db txBeginner) *PostgresRepository {
	if db == nil {
		panic("scheduling: db required")
	}
	return &PostgresRepository{db: db}
}

const clientColumns = `id, owner_uid, name, email, phone, color, notes, created_at, updated_at`

func (r *PostgresRepository) CreateClient(ctx context.Context, c *Client) error {
	query := `
		INSERT INTO clients (id, owner_uid, name, email, phone, color, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := r.db.Exec(ctx, query,
		c.ID, c.OwnerUID, c.Name, c.Email, c.Phone, c.Color, c.Notes, c.CreatedAt, c.UpdatedAt,
	); err != nil {
		return fmt.Errorf("scheduling: insert client: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateClient(ctx context.Context, c *Client) error {
	query := `
		UPDATE clients
		SET name = $3, email = $4, phone = $5, color = $6, notes = $7, updated_at = $8
		WHERE owner_uid = $1 AND id = $2
	`
	tag, err := r.db.Exec(ctx, query, c.OwnerUID, c.ID, c.Name, c.Email, c.Phone, c.Color, c.Notes, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("scheduling: update client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClientNotFound
	}
	return nil
}

func (r *PostgresRepository) GetClient(ctx context.Context, ownerUID, id string) (*Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE owner_uid = $1 AND id = $2`
	client, err := scanClient(r.db.QueryRow(ctx, query, ownerUID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("scheduling: select client: %w", err)
	}
	return client, nil
}

func (r *PostgresRepository) ListClients(ctx context.Context, ownerUID string) ([]*Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE owner_uid = $1 ORDER BY name`
	rows, err := r.db.Query(ctx, query, ownerUID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list clients: %w", err)
	}
	defer rows.Close()

	out := make([]*Client, 0)
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan client: %w", err)
		}
		out = append(out, client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: list clients: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) DeleteClient(ctx context.Context, ownerUID, id string) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("scheduling: begin delete client: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM appointments WHERE owner_uid = $1 AND client_id = $2`, ownerUID, id)
	if err != nil {
		return 0, fmt.Errorf("scheduling: delete client appointments: %w", err)
	}
	removed := int(tag.RowsAffected())

	tag, err = tx.Exec(ctx, `DELETE FROM clients WHERE owner_uid = $1 AND id = $2`, ownerUID, id)
	if err != nil {
		return 0, fmt.Errorf("scheduling: delete client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrClientNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("scheduling: commit delete client: %w", err)
	}
	return removed, nil
}

const providerColumns = `id, owner_uid, name, email, title, color, created_at, updated_at`

func (r *PostgresRepository) CreateProvider(ctx context.Context, p *Provider) error {
	query := `
		INSERT INTO providers (id, owner_uid, name, email, title, color, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := r.db.Exec(ctx, query,
		p.ID, p.OwnerUID, p.Name, p.Email, p.Title, p.Color, p.CreatedAt, p.UpdatedAt,
	); err != nil {
		return fmt.Errorf("scheduling: insert provider: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateProvider(ctx context.Context, p *Provider) error {
	query := `
		UPDATE providers
		SET name = $3, email = $4, title = $5, color = $6, updated_at = $7
		WHERE owner_uid = $1 AND id = $2
	`
	tag, err := r.db.Exec(ctx, query, p.OwnerUID, p.ID, p.Name, p.Email, p.Title, p.Color, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("scheduling: update provider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProviderNotFound
	}
	return nil
}

func (r *PostgresRepository) GetProvider(ctx context.Context, ownerUID, id string) (*Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE owner_uid = $1 AND id = $2`
	provider, err := scanProvider(r.db.QueryRow(ctx, query, ownerUID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("scheduling: select provider: %w", err)
	}
	return provider, nil
}

func (r *PostgresRepository) ListProviders(ctx context.Context, ownerUID string) ([]*Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE owner_uid = $1 ORDER BY name`
	rows, err := r.db.Query(ctx, query, ownerUID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list providers: %w", err)
	}
	defer rows.Close()

	out := make([]*Provider, 0)
	for rows.Next() {
		provider, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan provider: %w", err)
		}
		out = append(out, provider)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: list providers: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) DeleteProvider(ctx context.Context, ownerUID, id string) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("scheduling: begin delete provider: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE appointments SET provider_id = NULL, updated_at = now() WHERE owner_uid = $1 AND provider_id = $2`, ownerUID, id)
	if err != nil {
		return 0, fmt.Errorf("scheduling: unassign provider: %w", err)
	}
	unassigned := int(tag.RowsAffected())

	tag, err = tx.Exec(ctx, `DELETE FROM providers WHERE owner_uid = $1 AND id = $2`, ownerUID, id)
	if err != nil {
		return 0, fmt.Errorf("scheduling: delete provider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrProviderNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("scheduling: commit delete provider: %w", err)
	}
	return unassigned, nil
}

const appointmentColumns = `id, owner_uid, client_id, COALESCE(provider_id, ''), start_at, end_at, duration_minutes,
	priority, status, notes, repeats, COALESCE(series_id, ''), created_at, updated_at`

const insertAppointment = `
	INSERT INTO appointments (id, owner_uid, client_id, provider_id, start_at, end_at, duration_minutes,
		priority, status, notes, repeats, series_id, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
`

func (r *PostgresRepository) CreateAppointments(ctx context.Context, appts []*Appointment) error {
	if len(appts) == 0 {
		return nil
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("scheduling: begin insert appointments: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, a := range appts {
		if _, err := tx.Exec(ctx, insertAppointment,
			a.ID, a.OwnerUID, a.ClientID, nullable(a.ProviderID), a.Start, a.End, a.DurationMinutes,
			string(a.Priority), string(a.Status), a.Notes, string(a.Repeats), nullable(a.SeriesID), a.CreatedAt, a.UpdatedAt,
		); err != nil {
			return fmt.Errorf("scheduling: insert appointment: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("scheduling: commit appointments: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateAppointment(ctx context.Context, a *Appointment) error {
	query := `
		UPDATE appointments
		SET client_id = $3, provider_id = $4, start_at = $5, end_at = $6, duration_minutes = $7,
			priority = $8, status = $9, notes = $10, updated_at = $11
		WHERE owner_uid = $1 AND id = $2
	`
	tag, err := r.db.Exec(ctx, query,
		a.OwnerUID, a.ID, a.ClientID, nullable(a.ProviderID), a.Start, a.End, a.DurationMinutes,
		string(a.Priority), string(a.Status), a.Notes, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("scheduling: update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PostgresRepository) GetAppointment(ctx context.Context, ownerUID, id string) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE owner_uid = $1 AND id = $2`
	appt, err := scanAppointment(r.db.QueryRow(ctx, query, ownerUID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("scheduling: select appointment: %w", err)
	}
	return appt, nil
}

func (r *PostgresRepository) ListAppointments(ctx context.Context, ownerUID string, filter AppointmentFilter) ([]*Appointment, error) {
	query, args := buildAppointmentQuery(ownerUID, filter)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list appointments: %w", err)
	}
	defer rows.Close()

	out := make([]*Appointment, 0)
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan appointment: %w", err)
		}
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: list appointments: %w", err)
	}
	return out, nil
}

func buildAppointmentQuery(ownerUID string, filter AppointmentFilter) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT ` + appointmentColumns + ` FROM appointments WHERE owner_uid = $1`)
	args := []any{ownerUID}
	add := func(clause string, arg any) {
		args = append(args, arg)
		fmt.Fprintf(&b, " AND "+clause, len(args))
	}
	if !filter.From.IsZero() {
		add("end_at > $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("start_at < $%d", filter.To)
	}
	if filter.ClientID != "" {
		add("client_id = $%d", filter.ClientID)
	}
	if filter.ProviderID != "" {
		add("provider_id = $%d", filter.ProviderID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.ActiveOnly {
		b.WriteString(" AND status <> 'cancelled'")
	}
	b.WriteString(" ORDER BY start_at, id")
	return b.String(), args
}

func (r *PostgresRepository) DeleteAppointment(ctx context.Context, ownerUID, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM appointments WHERE owner_uid = $1 AND id = $2`, ownerUID, id)
	if err != nil {
		return fmt.Errorf("scheduling: delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	if err := row.Scan(&c.ID, &c.OwnerUID, &c.Name, &c.Email, &c.Phone, &c.Color, &c.Notes, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	if err := row.Scan(&p.ID, &p.OwnerUID, &p.Name, &p.Email, &p.Title, &p.Color, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a                         Appointment
		priority, status, repeats string
	)
	if err := row.Scan(
		&a.ID,
		&a.OwnerUID,
		&a.ClientID,
		&a.ProviderID,
		&a.Start,
		&a.End,
		&a.DurationMinutes,
		&priority,
		&status,
		&a.Notes,
		&repeats,
		&a.SeriesID,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Priority = Priority(priority)
	a.Status = Status(status)
	a.Repeats = Repeat(repeats)
	return &a, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
