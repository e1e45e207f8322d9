package scheduling

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/practice-scheduler/internal/observability/metrics"
	"github.com/wolfman30/practice-scheduler/pkg/logging"
)

var schedulingTracer = otel.Tracer("practice.internal.scheduling")

// DefaultAppointmentMinutes is used when neither end nor duration is given.
const DefaultAppointmentMinutes = 60

// Options tunes a Service. Zero values fall back to defaults.
type Options struct {
	DefaultDurationMinutes int
	HorizonMonths          int
	Location               *time.Location
	Metrics                *metrics.PracticeMetrics
	Now                    func() time.Time
	NewID                  func() string
}

// Service owns the scheduling rules: validation, conflict detection,
// recurrence expansion and status transitions.
type Service struct {
	repo            Repository
	logger          *logging.Logger
	metrics         *metrics.PracticeMetrics
	loc             *time.Location
	defaultDuration int
	horizonMonths   int
	now             func() time.Time
	newID           func() string
}

// NewService constructs a scheduling service.
func NewService(repo Repository, logger *logging.Logger, opts Options) *Service {
	if repo == nil {
		panic("scheduling: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		repo:            repo,
		logger:          logger,
		metrics:         opts.Metrics,
		loc:             opts.Location,
		defaultDuration: opts.DefaultDurationMinutes,
		horizonMonths:   opts.HorizonMonths,
		now:             opts.Now,
		newID:           opts.NewID,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.defaultDuration <= 0 {
		s.defaultDuration = DefaultAppointmentMinutes
	}
	if s.horizonMonths <= 0 {
		s.horizonMonths = DefaultHorizonMonths
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Location is the practice timezone used to interpret wall-clock times.
func (s *Service) Location() *time.Location {
	return s.loc
}

// DefaultDuration returns the configured appointment length in minutes.
func (s *Service) DefaultDuration() int {
	return s.defaultDuration
}

func requireOwner(ownerUID string) error {
	if strings.TrimSpace(ownerUID) == "" {
		return ErrMissingOwner
	}
	return nil
}

// CreateClient stores a new client. A blank color gets a palette color.
func (s *Service) CreateClient(ctx context.Context, ownerUID string, in ClientInput) (*Client, error) {
	if err := requireOwner(ownerUID); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	client := &Client{
		ID:        s.newID(),
		OwnerUID:  ownerUID,
		Name:      strings.TrimSpace(in.Name),
		Email:     strings.TrimSpace(in.Email),
		Phone:     strings.TrimSpace(in.Phone),
		Color:     strings.TrimSpace(in.Color),
		Notes:     in.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if client.Color == "" {
		client.Color = PaletteColor(client.Name)
	}
	if err := s.repo.CreateClient(ctx, client); err != nil {
		return nil, err
	}
	s.logger.Info("client created", "owner_uid", ownerUID, "client_id", client.ID)
	return client, nil
}

func (s *Service) UpdateClient(ctx context.Context, ownerUID, id string, in ClientInput) (*Client, error) {
	if err := requireOwner(ownerUID); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	client, err := s.repo.GetClient(ctx, ownerUID, id)
	if err != nil {
		return nil, err
	}
	client.Name = strings.TrimSpace(in.Name)
	client.Email = strings.TrimSpace(in.Email)
	client.Phone = strings.TrimSpace(in.Phone)
	client.Notes = in.Notes
	if color := strings.TrimSpace(in.Color); color != "" {
		client.Color = color
	}
	client.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateClient(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

func (s *Service) GetClient(ctx context.Context, ownerUID, id string) (*Client, error) {
	if err := requireOwner(ownerUID); err != nil {
		return nil, err
	}
	return s.repo.GetClient(ctx, ownerUID, id)
}

func (s *Service) ListClients(ctx context.Context, ownerUID string) ([]*Client, error) {
	if err := requireOwner(ownerUID); err != nil {
		return nil, err
	}
	return s.repo.ListClients(ctx, ownerUID)
}

// DeleteClient removes a client together with its appointments and reports
// how many appointments went with it.
func (s *Service) DeleteClient(ctx context.Context, ownerUID, id string) (int, error) {
	if err := requireOwner(ownerUID); err != nil {
		return 0, err
	}
	removed, err := s.repo.DeleteClient(ctx, ownerUID, id)
	if err != nil {
		return 0, err
	}
	s.logger.Info("client deleted", "owner_uid", ownerUID, "client_id", id, "appointments_removed", removed)
	return removed, nil
}

func (s *Service) CreateProvider(ctx context.Context, ownerUID string, in ProviderInput) (*Provider, error) {
	if err := requireOwner(ownerUID); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	provider := &Provider{
		ID:        s.newID(),
		OwnerUID:  ownerUID,
		Name:      strings.TrimSpace(in.Name),
		Email:     strings.TrimSpace(in.Email),
		Title:     strings.TrimSpace(in.Title),
		Color:     strings.TrimSpace(in.Color),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if provider.Color == "" {
		provider.Color = PaletteColor(provider.Name)
	}
	if err := s.repo.CreateProvider(ctx, provider); err != nil {
		return nil, err
	}
	s.logger.Info("provider created", "owner_uid", ownerUID, "provider_id", provider.ID)
	return provider, nil
}

func (s *Service) UpdateProvider(ctx context.Context, ownerUID, id string, in ProviderInput) (*Provider, error) {
	if err := requireOwner(ownerUID); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	provider, err := s.repo.GetProvider(ctx, ownerUID, id)
	if err != nil {
		return nil, err
	}
	provider.Name = strings.TrimSpace(in.Name)
	provider.Email = strings.TrimSpace(in.Email)
	provider.Title = strings.TrimSpace(in.Title)
	if color := strings.TrimSpace(in.Color); color != "" {
		provider.Color = color
	}
	provider.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateProvider(ctx, provider); err != nil {
		return nil, err
	}
	return provider, nil
}

func (s *Service) GetProvider(ctx context.Context, ownerUID, id string) (*Provider, error) {
	if err := requireOwner(ownerUID); err != nil {
		return nil, err
	}
	return s.repo.GetProvider(ctx, ownerUID, id)
}

func (s *Service) ListProviders(ctx context.Context, ownerUID string) ([]*Provider, error) {
	if err := requireOwner(ownerUID); err != nil {
		return nil, err
	}
	return s.repo.ListProviders(ctx, ownerUID)
}

// DeleteProvider removes a provider and leaves its appointments unassigned.
func (s *Service) DeleteProvider(ctx context.Context, ownerUID, id string) (int, error) {
	if err := requireOwner(ownerUID); err != nil {
		return 0, err
	}
	unassigned, err := s.repo.DeleteProvider(ctx, ownerUID, id)
	if err != nil {
		return 0, err
	}
	s.logger.Info("provider deleted", "owner_uid", ownerUID, "provider_id", id, "appointments_unassigned", unassigned)
	return unassigned, nil
}

// CreateAppointment validates in, checks it against the owner's calendar, expands
// recurrence and stores every occurrence in one write.
func (s *Service) CreateAppointment(ctx context.Context, ownerUID string, in AppointmentInput) (*CreateResult, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.create_appointment")
	defer span.End()
	span.SetAttributes(
		attribute.String("practice.owner_uid", ownerUID),
		attribute.String("practice.client_id", in.ClientID),
		attribute.String("practice.repeats", string(in.Repeats)),
	)

	if err := requireOwner(ownerUID); err != nil {
		return nil, err
	}
	template, err := s.buildAppointment(ctx, ownerUID, in)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	seriesID := ""
	if template.Repeats != RepeatNone {
		seriesID = s.newID()
	}
	occurrences := ExpandSeries(template, s.horizonMonths, seriesID, s.newID)

	var conflicts []*Appointment
	if template.Active() {
		conflicts, err = s.seriesConflicts(ctx, ownerUID, occurrences, "")
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
	}
	if len(conflicts) > 0 && !in.AllowConflicts {
		s.metrics.ObserveConflicts("api", len(conflicts))
		err := &ConflictError{Conflicts: conflicts}
		span.RecordError(err)
		return nil, err
	}

	if err := s.repo.CreateAppointments(ctx, occurrences); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("practice.occurrences", len(occurrences)))
	s.logger.Info("appointment created",
		"owner_uid", ownerUID,
		"appointment_id", occurrences[0].ID,
		"client_id", template.ClientID,
		"occurrences", len(occurrences),
		"conflicts", len(conflicts),
	)
	return &CreateResult{
		Appointment: occurrences[0],
		Occurrences: len(occurrences),
		SeriesID:    seriesID,
		Conflicts:   conflicts,
	}, nil
}

func (s *Service) buildAppointment(ctx context.Context, ownerUID string, in AppointmentInput) (*Appointment, error) {
	if strings.TrimSpace(in.ClientID) == "" {
		return nil, invalidf("clientId is required")
	}
	if _, err := s.repo.GetClient(ctx, ownerUID, in.ClientID); err != nil {
		return nil, validationOrErr(err)
	}
	if in.ProviderID != "" {
		if _, err := s.repo.GetProvider(ctx, ownerUID, in.ProviderID); err != nil {
			return nil, validationOrErr(err)
		}
	}
	if in.Start.IsZero() {
		return nil, invalidf("start is required")
	}

	start := in.Start.In(s.loc)
	end, duration, err := s.resolveEnd(start, in.End, in.DurationMinutes)
	if err != nil {
		return nil, err
	}

	priority := in.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	if !priority.Valid() {
		return nil, invalidf("unknown priority %q", priority)
	}
	status := in.Status
	if status == "" {
		status = StatusScheduled
	}
	if !status.Valid() {
		return nil, invalidf("unknown status %q", status)
	}
	repeats := in.Repeats
	if repeats == "" {
		repeats = RepeatNone
	}
	if !repeats.Valid() {
		return nil, invalidf("unknown repeat rule %q", repeats)
	}

	now := s.now().UTC()
	return &Appointment{
		OwnerUID:        ownerUID,
		ClientID:        in.ClientID,
		ProviderID:      in.ProviderID,
		Start:           start,
		End:             end,
		DurationMinutes: duration,
		Priority:        priority,
		Status:          status,
		Notes:           in.Notes,
		Repeats:         repeats,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// resolveEnd derives the end from the duration or the duration from the end.
// An explicit end wins.
func (s *Service) resolveEnd(start, end time.Time, durationMinutes int) (time.Time, int, error) {
	if !end.IsZero() {
		end = end.In(s.loc)
		if !end.After(start) {
			return time.Time{}, 0, invalid(ErrInvalidTimeRange)
		}
		return end, int(end.Sub(start).Round(time.Minute) / time.Minute), nil
	}
	if durationMinutes < 0 {
		return time.Time{}, 0, invalid(ErrInvalidTimeRange)
	}
	if durationMinutes == 0 {
		durationMinutes = s.defaultDuration
	}
	return start.Add(time.Duration(durationMinutes) * time.Minute), durationMinutes, nil
}

func validationOrErr(err error) error {
	if errors.Is(err, ErrClientNotFound) || errors.Is(err, ErrProviderNotFound) {
		return invalid(err)
	}
	return err
}

// seriesConflicts checks every occurrence against the owner's active
// appointments in the series window, skipping excludeID.
func (s *Service) seriesConflicts(ctx context.Context, ownerUID string, occurrences []*Appointment, excludeID string) ([]*Appointment, error) {
	if len(occurrences) == 0 {
		return nil, nil
	}
	from, to := occurrences[0].Start, occurrences[0].End
	for _, occ := range occurrences[1:] {
		if occ.Start.Before(from) {
			from = occ.Start
		}
		if occ.End.After(to) {
			to = occ.End
		}
	}
	existing, err := s.repo.ListAppointments(ctx, ownerUID, AppointmentFilter{From: from, To: to, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	if excludeID != "" {
		filtered := existing[:0]
		for _, appt := range existing {
			if appt.ID != excludeID {
				filtered = append(filtered, appt)
			}
		}
		existing = filtered
	}
	var conflicts []*Appointment
	for _, occ := range occurrences {
		conflicts = append(conflicts, FindConflicts(occ, existing)...)
	}
	return dedupeAppointments(conflicts), nil
}

// CheckConflicts returns the owner's appointments that candidate would collide
// with, ignoring excludeID.
func (s *Service) CheckConflicts(ctx context.Context, ownerUID string, candidate *Appointment, excludeID string) ([]*Appointment, error) {
	if err := requireOwner(ownerUID); err != nil {
		return nil, err
	}
	return s.seriesConflicts(ctx, ownerUID, []*Appointment{candidate}, excludeID)
}

// PreviewSeries returns the occurrences CreateAppointment would store for in
// without writing anything.
func (s *Service) PreviewSeries(ctx context.Context, ownerUID string, in AppointmentInput) ([]*Appointment, []*Appointment, error) {
	if err := requireOwner(ownerUID); err != nil {
		return nil, nil, err
	}
	template, err := s.buildAppointment(ctx, ownerUID, in)
	if err != nil {
		return nil, nil, err
	}
	occurrences := ExpandSeries(template, s.horizonMonths, "", func() string { return "" })
	conflicts, err := s.seriesConflicts(ctx, ownerUID, occurrences, "")
	if err != nil {
		return nil, nil, err
	}
	return occurrences, conflicts, nil
}

func (s *Service) GetAppointment(ctx context.Context, ownerUID, id string) (*Appointment, error) {
	if err := requireOwner(ownerUID); err != nil {
		return nil, err
	}
	return s.repo.GetAppointment(ctx, ownerUID, id)
}

// ListAppointments returns matching appointments sorted by start. Stored rows
// whose end is not after their start are dropped with a warning.
func (s *Service) ListAppointments(ctx context.Context, ownerUID string, filter AppointmentFilter) ([]*Appointment, error) {
	if err := requireOwner(ownerUID); err != nil {
		return nil, err
	}
	appts, err := s.repo.ListAppointments(ctx, ownerUID, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*Appointment, 0, len(appts))
	for _, appt := range appts {
		if !appt.ValidRange() {
			s.logger.Warn("skipping appointment with invalid time range",
				"owner_uid", ownerUID,
				"appointment_id", appt.ID,
				"start", appt.Start,
				"end", appt.End,
			)
			continue
		}
		out = append(out, appt)
	}
	sortByStart(out)
	return out, nil
}

// UpdateAppointment applies patch, re-validating the result and re-checking
// conflicts against everything but the appointment itself.
func (s *Service) UpdateAppointment(ctx context.Context, ownerUID, id string, patch AppointmentPatch) (*Appointment, []*Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.update_appointment")
	defer span.End()
	span.SetAttributes(
		attribute.String("practice.owner_uid", ownerUID),
		attribute.String("practice.appointment_id", id),
	)

	if err := requireOwner(ownerUID); err != nil {
		return nil, nil, err
	}
	appt, err := s.repo.GetAppointment(ctx, ownerUID, id)
	if err != nil {
		return nil, nil, err
	}

	if patch.ClientID != nil && *patch.ClientID != appt.ClientID {
		if _, err := s.repo.GetClient(ctx, ownerUID, *patch.ClientID); err != nil {
			return nil, nil, validationOrErr(err)
		}
		appt.ClientID = *patch.ClientID
	}
	if patch.ProviderID != nil && *patch.ProviderID != appt.ProviderID {
		if *patch.ProviderID != "" {
			if _, err := s.repo.GetProvider(ctx, ownerUID, *patch.ProviderID); err != nil {
				return nil, nil, validationOrErr(err)
			}
		}
		appt.ProviderID = *patch.ProviderID
	}
	if patch.Priority != nil {
		if !patch.Priority.Valid() {
			return nil, nil, invalidf("unknown priority %q", *patch.Priority)
		}
		appt.Priority = *patch.Priority
	}
	if patch.Notes != nil {
		appt.Notes = *patch.Notes
	}
	if patch.Status != nil {
		if !appt.Status.CanTransition(*patch.Status) {
			return nil, nil, transitionError(appt.Status, *patch.Status)
		}
		appt.Status = *patch.Status
	}

	if patch.Start != nil || patch.End != nil || patch.DurationMinutes != nil {
		start := appt.Start.In(s.loc)
		if patch.Start != nil {
			start = patch.Start.In(s.loc)
		}
		var end time.Time
		duration := appt.DurationMinutes
		switch {
		case patch.End != nil:
			end = *patch.End
		case patch.DurationMinutes != nil:
			duration = *patch.DurationMinutes
			if duration <= 0 {
				return nil, nil, invalid(ErrInvalidTimeRange)
			}
		}
		resolvedEnd, resolvedDuration, err := s.resolveEnd(start, end, duration)
		if err != nil {
			return nil, nil, err
		}
		appt.Start, appt.End, appt.DurationMinutes = start, resolvedEnd, resolvedDuration
	}

	conflicts, err := s.guardConflicts(ctx, ownerUID, appt, patch.AllowConflicts)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	appt.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateAppointment(ctx, appt); err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	s.logger.Info("appointment updated", "owner_uid", ownerUID, "appointment_id", id, "status", appt.Status)
	return appt, conflicts, nil
}

func (s *Service) guardConflicts(ctx context.Context, ownerUID string, appt *Appointment, allow bool) ([]*Appointment, error) {
	if !appt.Active() {
		return nil, nil
	}
	conflicts, err := s.seriesConflicts(ctx, ownerUID, []*Appointment{appt}, appt.ID)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 && !allow {
		s.metrics.ObserveConflicts("api", len(conflicts))
		return nil, &ConflictError{Conflicts: conflicts}
	}
	return conflicts, nil
}

// CancelAppointment marks a scheduled appointment cancelled.
func (s *Service) CancelAppointment(ctx context.Context, ownerUID, id string) (*Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.cancel_appointment")
	defer span.End()
	span.SetAttributes(attribute.String("practice.appointment_id", id))

	if err := requireOwner(ownerUID); err != nil {
		return nil, err
	}
	appt, err := s.repo.GetAppointment(ctx, ownerUID, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusScheduled {
		return nil, transitionError(appt.Status, StatusCancelled)
	}
	appt.Status = StatusCancelled
	appt.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateAppointment(ctx, appt); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("appointment cancelled", "owner_uid", ownerUID, "appointment_id", id)
	return appt, nil
}

// RescheduleAppointment moves an appointment to newStart. A zero
// durationMinutes keeps the current length.
func (s *Service) RescheduleAppointment(ctx context.Context, ownerUID, id string, newStart time.Time, durationMinutes int, allowConflicts bool) (*Appointment, []*Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.reschedule_appointment")
	defer span.End()
	span.SetAttributes(attribute.String("practice.appointment_id", id))

	if err := requireOwner(ownerUID); err != nil {
		return nil, nil, err
	}
	if newStart.IsZero() {
		return nil, nil, invalidf("start is required")
	}
	if durationMinutes < 0 {
		return nil, nil, invalid(ErrInvalidTimeRange)
	}
	appt, err := s.repo.GetAppointment(ctx, ownerUID, id)
	if err != nil {
		return nil, nil, err
	}
	if durationMinutes == 0 {
		durationMinutes = appt.DurationMinutes
		if durationMinutes <= 0 {
			durationMinutes = int(appt.End.Sub(appt.Start) / time.Minute)
		}
		if durationMinutes <= 0 {
			durationMinutes = s.defaultDuration
		}
	}

	appt.Start = newStart.In(s.loc)
	appt.End = appt.Start.Add(time.Duration(durationMinutes) * time.Minute)
	appt.DurationMinutes = durationMinutes
	appt.Status = StatusScheduled

	conflicts, err := s.guardConflicts(ctx, ownerUID, appt, allowConflicts)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	appt.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateAppointment(ctx, appt); err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	s.logger.Info("appointment rescheduled", "owner_uid", ownerUID, "appointment_id", id, "start", appt.Start)
	return appt, conflicts, nil
}

func (s *Service) DeleteAppointment(ctx context.Context, ownerUID, id string) error {
	if err := requireOwner(ownerUID); err != nil {
		return err
	}
	if err := s.repo.DeleteAppointment(ctx, ownerUID, id); err != nil {
		return err
	}
	s.logger.Info("appointment deleted", "owner_uid", ownerUID, "appointment_id", id)
	return nil
}

// ConflictReport lists every pair of active appointments in [from, to) that
// collide.
func (s *Service) ConflictReport(ctx context.Context, ownerUID string, from, to time.Time) ([]ConflictPair, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.conflict_report")
	defer span.End()

	appts, err := s.ListAppointments(ctx, ownerUID, AppointmentFilter{From: from, To: to, ActiveOnly: true})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	pairs := ScanConflicts(appts)
	span.SetAttributes(attribute.Int("practice.conflict_pairs", len(pairs)))
	s.metrics.ObserveConflicts("report", len(pairs))
	return pairs, nil
}
