package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/practice-scheduler/internal/scheduling"
)

// DefaultPendingTTL is how long a staged command waits for confirmation.
const DefaultPendingTTL = 5 * time.Minute

// ErrPendingNotFound is returned for unknown, expired or foreign command ids.
var ErrPendingNotFound = errors.New("voice: pending command not found")

// PendingCommand is a parsed command waiting for the practitioner to confirm.
type PendingCommand struct {
	ID              string                    `json:"id"`
	OwnerUID        string                    `json:"ownerUid"`
	Action          Action                    `json:"action"`
	Transcript      string                    `json:"transcript"`
	ClientID        string                    `json:"clientId"`
	ClientName      string                    `json:"clientName"`
	AppointmentID   string                    `json:"appointmentId,omitempty"`
	Start           time.Time                 `json:"start"`
	End             time.Time                 `json:"end"`
	DurationMinutes int                       `json:"duration"`
	Repeats         scheduling.Repeat         `json:"repeats,omitempty"`
	Occurrences     int                       `json:"occurrences,omitempty"`
	Notes           string                    `json:"notes,omitempty"`
	Conflicts       []*scheduling.Appointment `json:"conflicts,omitempty"`
	Summary         string                    `json:"summary"`
	CreatedAt       time.Time                 `json:"createdAt"`
	ExpiresAt       time.Time                 `json:"expiresAt"`
}

// PendingStore holds staged commands until they are confirmed, cancelled or
// expire. Lookups are owner-scoped.
type PendingStore interface {
	Save(ctx context.Context, cmd *PendingCommand, ttl time.Duration) error
	Get(ctx context.Context, ownerUID, id string) (*PendingCommand, error)
	Latest(ctx context.Context, ownerUID string) (*PendingCommand, error)
	Delete(ctx context.Context, ownerUID, id string) error
	// Take removes and returns the command in one step, so only one caller can
	// claim it for commit.
	Take(ctx context.Context, ownerUID, id string) (*PendingCommand, error)
}

// RedisPendingStore keeps each command as JSON under its own key with a TTL,
// plus a pointer to the owner's most recent command.
type RedisPendingStore struct {
	client *redis.Client
}

func NewRedisPendingStore(client *redis.Client) *RedisPendingStore {
	if client == nil {
		panic("voice: redis client cannot be nil")
	}
	return &RedisPendingStore{client: client}
}

func pendingKey(id string) string {
	return fmt.Sprintf("voice:pending:%s", id)
}

func latestPendingKey(ownerUID string) string {
	return fmt.Sprintf("voice:pending:latest:%s", ownerUID)
}

func (s *RedisPendingStore) Save(ctx context.Context, cmd *PendingCommand, ttl time.Duration) error {
	if cmd == nil || cmd.ID == "" || cmd.OwnerUID == "" {
		return errors.New("voice: pending command requires id and owner")
	}
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("voice: failed to marshal pending command: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, pendingKey(cmd.ID), data, ttl)
	pipe.Set(ctx, latestPendingKey(cmd.OwnerUID), cmd.ID, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("voice: failed to persist pending command: %w", err)
	}
	return nil
}

func (s *RedisPendingStore) Get(ctx context.Context, ownerUID, id string) (*PendingCommand, error) {
	data, err := s.client.Get(ctx, pendingKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPendingNotFound
		}
		return nil, fmt.Errorf("voice: failed to load pending command: %w", err)
	}
	var cmd PendingCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("voice: failed to decode pending command: %w", err)
	}
	if cmd.OwnerUID != ownerUID {
		return nil, ErrPendingNotFound
	}
	return &cmd, nil
}

func (s *RedisPendingStore) Latest(ctx context.Context, ownerUID string) (*PendingCommand, error) {
	id, err := s.client.Get(ctx, latestPendingKey(ownerUID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPendingNotFound
		}
		return nil, fmt.Errorf("voice: failed to load latest pending command: %w", err)
	}
	return s.Get(ctx, ownerUID, id)
}

func (s *RedisPendingStore) Delete(ctx context.Context, ownerUID, id string) error {
	if _, err := s.Get(ctx, ownerUID, id); err != nil {
		return err
	}
	if err := s.client.Del(ctx, pendingKey(id)).Err(); err != nil {
		return fmt.Errorf("voice: failed to delete pending command: %w", err)
	}
	latest, err := s.client.Get(ctx, latestPendingKey(ownerUID)).Result()
	if err == nil && latest == id {
		if err := s.client.Del(ctx, latestPendingKey(ownerUID)).Err(); err != nil {
			return fmt.Errorf("voice: failed to clear latest pending pointer: %w", err)
		}
	}
	return nil
}

func (s *RedisPendingStore) Take(ctx context.Context, ownerUID, id string) (*PendingCommand, error) {
	// Owner check first so a foreign caller cannot consume the command.
	if _, err := s.Get(ctx, ownerUID, id); err != nil {
		return nil, err
	}
	data, err := s.client.GetDel(ctx, pendingKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPendingNotFound
		}
		return nil, fmt.Errorf("voice: failed to take pending command: %w", err)
	}
	var cmd PendingCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("voice: failed to decode pending command: %w", err)
	}
	if cmd.OwnerUID != ownerUID {
		return nil, ErrPendingNotFound
	}
	latest, err := s.client.Get(ctx, latestPendingKey(ownerUID)).Result()
	if err == nil && latest == id {
		_ = s.client.Del(ctx, latestPendingKey(ownerUID)).Err()
	}
	return &cmd, nil
}

// MemoryPendingStore is the in-process PendingStore used without Redis.
type MemoryPendingStore struct {
	mu       sync.Mutex
	commands map[string]*PendingCommand
	latest   map[string]string
	now      func() time.Time
}

func NewMemoryPendingStore(now func() time.Time) *MemoryPendingStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryPendingStore{
		commands: make(map[string]*PendingCommand),
		latest:   make(map[string]string),
		now:      now,
	}
}

func (s *MemoryPendingStore) Save(ctx context.Context, cmd *PendingCommand, ttl time.Duration) error {
	if cmd == nil || cmd.ID == "" || cmd.OwnerUID == "" {
		return errors.New("voice: pending command requires id and owner")
	}
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	cp := *cmd
	cp.ExpiresAt = s.now().Add(ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[cmd.ID] = &cp
	s.latest[cmd.OwnerUID] = cmd.ID
	return nil
}

func (s *MemoryPendingStore) Get(ctx context.Context, ownerUID, id string) (*PendingCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(ownerUID, id)
}

func (s *MemoryPendingStore) getLocked(ownerUID, id string) (*PendingCommand, error) {
	cmd, ok := s.commands[id]
	if !ok {
		return nil, ErrPendingNotFound
	}
	if !s.now().Before(cmd.ExpiresAt) {
		delete(s.commands, id)
		return nil, ErrPendingNotFound
	}
	if cmd.OwnerUID != ownerUID {
		return nil, ErrPendingNotFound
	}
	cp := *cmd
	return &cp, nil
}

func (s *MemoryPendingStore) Latest(ctx context.Context, ownerUID string) (*PendingCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.latest[ownerUID]
	if !ok {
		return nil, ErrPendingNotFound
	}
	cmd, err := s.getLocked(ownerUID, id)
	if err != nil {
		delete(s.latest, ownerUID)
		return nil, err
	}
	return cmd, nil
}

func (s *MemoryPendingStore) Delete(ctx context.Context, ownerUID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.getLocked(ownerUID, id); err != nil {
		return err
	}
	delete(s.commands, id)
	if s.latest[ownerUID] == id {
		delete(s.latest, ownerUID)
	}
	return nil
}

func (s *MemoryPendingStore) Take(ctx context.Context, ownerUID, id string) (*PendingCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, err := s.getLocked(ownerUID, id)
	if err != nil {
		return nil, err
	}
	delete(s.commands, id)
	if s.latest[ownerUID] == id {
		delete(s.latest, ownerUID)
	}
	return cmd, nil
}
