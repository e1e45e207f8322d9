package scheduling

import (
	"hash/fnv"
	"strings"
	"time"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no-show"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// CanTransition reports whether an appointment in status s may move to next.
// Scheduled appointments may be closed out in any way, and anything may be
// reopened as scheduled.
func (s Status) CanTransition(next Status) bool {
	if !next.Valid() {
		return false
	}
	if s == next || next == StatusScheduled {
		return true
	}
	return s == StatusScheduled
}

// Repeat is the recurrence rule of an appointment series.
type Repeat string

const (
	RepeatNone     Repeat = "none"
	RepeatWeekly   Repeat = "weekly"
	RepeatBiweekly Repeat = "biweekly"
	RepeatMonthly  Repeat = "monthly"
)

func (r Repeat) Valid() bool {
	switch r {
	case RepeatNone, RepeatWeekly, RepeatBiweekly, RepeatMonthly:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	}
	return false
}

// Client is a person receiving therapy from the practice.
type Client struct {
	ID        string    `json:"id"`
	OwnerUID  string    `json:"ownerUid"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Color     string    `json:"color"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Provider is a clinician appointments can be assigned to.
type Provider struct {
	ID        string    `json:"id"`
	OwnerUID  string    `json:"ownerUid"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Title     string    `json:"title,omitempty"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Appointment is a single calendar entry. Recurring bookings are stored as
// one Appointment per occurrence sharing a SeriesID.
type Appointment struct {
	ID              string    `json:"id"`
	OwnerUID        string    `json:"ownerUid"`
	ClientID        string    `json:"clientId"`
	ProviderID      string    `json:"providerId,omitempty"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration"`
	Priority        Priority  `json:"priority"`
	Status          Status    `json:"status"`
	Notes           string    `json:"notes,omitempty"`
	Repeats         Repeat    `json:"repeats"`
	SeriesID        string    `json:"seriesId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Active reports whether the appointment still occupies its slot.
func (a *Appointment) Active() bool {
	return a != nil && a.Status != StatusCancelled
}

// ValidRange reports whether End is strictly after Start.
func (a *Appointment) ValidRange() bool {
	return a != nil && a.End.After(a.Start)
}

// Clone returns a shallow copy safe to mutate.
func (a *Appointment) Clone() *Appointment {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

// ClientInput is the body for creating or updating a client.
type ClientInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Color string `json:"color"`
	Notes string `json:"notes"`
}

func (in *ClientInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrInvalidName
	}
	return nil
}

// ProviderInput is the body for creating or updating a provider.
type ProviderInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Title string `json:"title"`
	Color string `json:"color"`
}

func (in *ProviderInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrInvalidName
	}
	return nil
}

// AppointmentInput is the body for creating an appointment. End may be omitted,
// in which case it is derived from DurationMinutes.
type AppointmentInput struct {
	ClientID        string    `json:"clientId"`
	ProviderID      string    `json:"providerId"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration"`
	Priority        Priority  `json:"priority"`
	Status          Status    `json:"status"`
	Notes           string    `json:"notes"`
	Repeats         Repeat    `json:"repeats"`
	AllowConflicts  bool      `json:"allowConflicts"`
}

// AppointmentPatch updates only the fields that are set.
type AppointmentPatch struct {
	ClientID        *string    `json:"clientId"`
	ProviderID      *string    `json:"providerId"`
	Start           *time.Time `json:"start"`
	End             *time.Time `json:"end"`
	DurationMinutes *int       `json:"duration"`
	Priority        *Priority  `json:"priority"`
	Status          *Status    `json:"status"`
	Notes           *string    `json:"notes"`
	AllowConflicts  bool       `json:"allowConflicts"`
}

// AppointmentFilter narrows ListAppointments. From/To select appointments that
// overlap the window; zero values leave that side open.
type AppointmentFilter struct {
	From       time.Time
	To         time.Time
	ClientID   string
	ProviderID string
	Status     Status
	// ActiveOnly drops cancelled appointments.
	ActiveOnly bool
}

// Matches reports whether appt passes the filter.
func (f AppointmentFilter) Matches(appt *Appointment) bool {
	if appt == nil {
		return false
	}
	if !f.From.IsZero() && !appt.End.After(f.From) {
		return false
	}
	if !f.To.IsZero() && !appt.Start.Before(f.To) {
		return false
	}
	if f.ClientID != "" && appt.ClientID != f.ClientID {
		return false
	}
	if f.ProviderID != "" && appt.ProviderID != f.ProviderID {
		return false
	}
	if f.Status != "" && appt.Status != f.Status {
		return false
	}
	if f.ActiveOnly && !appt.Active() {
		return false
	}
	return true
}

// CreateResult describes a committed create. Occurrences is 1 for a single
// appointment and the series length for recurring ones.
type CreateResult struct {
	Appointment *Appointment   `json:"appointment"`
	Occurrences int            `json:"occurrences"`
	SeriesID    string         `json:"seriesId,omitempty"`
	Conflicts   []*Appointment `json:"conflicts,omitempty"`
}

// ConflictPair is two active appointments whose slots overlap.
type ConflictPair struct {
	First  *Appointment `json:"first"`
	Second *Appointment `json:"second"`
}

var palette = []string{
	"#4F86C6", "#E07A5F", "#81B29A", "#F2CC8F",
	"#9B5DE5", "#F15BB5", "#00BBF9", "#3D405B",
}

// PaletteColor picks a stable calendar color for name.
func PaletteColor(name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(name))))
	return palette[int(h.Sum32()%uint32(len(palette)))]
}
