package scheduling

import (
	"context"
	"sort"
	"sync"
)

// Repository persists clients, providers and appointments. Every lookup is
// scoped to the owner uid.
type Repository interface {
	CreateClient(ctx context.Context, client *Client) error
	UpdateClient(ctx context.Context, client *Client) error
	GetClient(ctx context.Context, ownerUID, id string) (*Client, error)
	ListClients(ctx context.Context, ownerUID string) ([]*Client, error)
	// DeleteClient removes the client and its appointments, returning how many
	// appointments were removed.
	DeleteClient(ctx context.Context, ownerUID, id string) (int, error)

	CreateProvider(ctx context.Context, provider *Provider) error
	UpdateProvider(ctx context.Context, provider *Provider) error
	GetProvider(ctx context.Context, ownerUID, id string) (*Provider, error)
	ListProviders(ctx context.Context, ownerUID string) ([]*Provider, error)
	// DeleteProvider removes the provider and unassigns its appointments,
	// returning how many were unassigned.
	DeleteProvider(ctx context.Context, ownerUID, id string) (int, error)

	// CreateAppointments inserts all rows or none.
	CreateAppointments(ctx context.Context, appts []*Appointment) error
	UpdateAppointment(ctx context.Context, appt *Appointment) error
	GetAppointment(ctx context.Context, ownerUID, id string) (*Appointment, error)
	ListAppointments(ctx context.Context, ownerUID string, filter AppointmentFilter) ([]*Appointment, error)
	DeleteAppointment(ctx context.Context, ownerUID, id string) error
}

// InMemoryRepository keeps everything in maps. It backs development runs
// without DATABASE_URL and the service tests.
type InMemoryRepository struct {
	mu           sync.RWMutex
	clients      map[string]*Client
	providers    map[string]*Provider
	appointments map[string]*Appointment
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		clients:      make(map[string]*Client),
		providers:    make(map[string]*Provider),
		appointments: make(map[string]*Appointment),
	}
}

func (r *InMemoryRepository) CreateClient(ctx context.Context, client *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *client
	r.clients[client.ID] = &cp
	return nil
}

func (r *InMemoryRepository) UpdateClient(ctx context.Context, client *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.clients[client.ID]
	if !ok || existing.OwnerUID != client.OwnerUID {
		return ErrClientNotFound
	}
	cp := *client
	r.clients[client.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetClient(ctx context.Context, ownerUID, id string) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[id]
	if !ok || client.OwnerUID != ownerUID {
		return nil, ErrClientNotFound
	}
	cp := *client
	return &cp, nil
}

func (r *InMemoryRepository) ListClients(ctx context.Context, ownerUID string) ([]*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0)
	for _, client := range r.clients {
		if client.OwnerUID == ownerUID {
			cp := *client
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *InMemoryRepository) DeleteClient(ctx context.Context, ownerUID, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	client, ok := r.clients[id]
	if !ok || client.OwnerUID != ownerUID {
		return 0, ErrClientNotFound
	}
	removed := 0
	for apptID, appt := range r.appointments {
		if appt.OwnerUID == ownerUID && appt.ClientID == id {
			delete(r.appointments, apptID)
			removed++
		}
	}
	delete(r.clients, id)
	return removed, nil
}

func (r *InMemoryRepository) CreateProvider(ctx context.Context, provider *Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *provider
	r.providers[provider.ID] = &cp
	return nil
}

func (r *InMemoryRepository) UpdateProvider(ctx context.Context, provider *Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.providers[provider.ID]
	if !ok || existing.OwnerUID != provider.OwnerUID {
		return ErrProviderNotFound
	}
	cp := *provider
	r.providers[provider.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetProvider(ctx context.Context, ownerUID, id string) (*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.providers[id]
	if !ok || provider.OwnerUID != ownerUID {
		return nil, ErrProviderNotFound
	}
	cp := *provider
	return &cp, nil
}

func (r *InMemoryRepository) ListProviders(ctx context.Context, ownerUID string) ([]*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Provider, 0)
	for _, provider := range r.providers {
		if provider.OwnerUID == ownerUID {
			cp := *provider
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *InMemoryRepository) DeleteProvider(ctx context.Context, ownerUID, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	provider, ok := r.providers[id]
	if !ok || provider.OwnerUID != ownerUID {
		return 0, ErrProviderNotFound
	}
	unassigned := 0
	for _, appt := range r.appointments {
		if appt.OwnerUID == ownerUID && appt.ProviderID == id {
			appt.ProviderID = ""
			unassigned++
		}
	}
	delete(r.providers, id)
	return unassigned, nil
}

func (r *InMemoryRepository) CreateAppointments(ctx context.Context, appts []*Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, appt := range appts {
		r.appointments[appt.ID] = appt.Clone()
	}
	return nil
}

func (r *InMemoryRepository) UpdateAppointment(ctx context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.appointments[appt.ID]
	if !ok || existing.OwnerUID != appt.OwnerUID {
		return ErrAppointmentNotFound
	}
	r.appointments[appt.ID] = appt.Clone()
	return nil
}

func (r *InMemoryRepository) GetAppointment(ctx context.Context, ownerUID, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	appt, ok := r.appointments[id]
	if !ok || appt.OwnerUID != ownerUID {
		return nil, ErrAppointmentNotFound
	}
	return appt.Clone(), nil
}

func (r *InMemoryRepository) ListAppointments(ctx context.Context, ownerUID string, filter AppointmentFilter) ([]*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Appointment, 0)
	for _, appt := range r.appointments {
		if appt.OwnerUID == ownerUID && filter.Matches(appt) {
			out = append(out, appt.Clone())
		}
	}
	sortByStart(out)
	return out, nil
}

func (r *InMemoryRepository) DeleteAppointment(ctx context.Context, ownerUID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.appointments[id]
	if !ok || appt.OwnerUID != ownerUID {
		return ErrAppointmentNotFound
	}
	delete(r.appointments, id)
	return nil
}
