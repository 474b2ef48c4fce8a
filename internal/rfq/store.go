package rfq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// State is the persisted working allocation of an opened comparison.
type State struct {
	RFQID      int64       `json:"rfq_id"`
	Selections []Selection `json:"selections"`
	Changes    []Change    `json:"changes,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// StateStore keeps working allocations between requests. Writes are
// last-write-wins; there is no versioning.
type StateStore interface {
	Load(ctx context.Context, rfqID int64) (State, error)
	Save(ctx context.Context, state State) error
	Delete(ctx context.Context, rfqID int64) error
}

// RedisStore keeps working state in Redis with a sliding TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore constructs the store. A zero ttl keeps keys forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func stateKey(rfqID int64) string {
	return fmt.Sprintf("rfq:comparison:%d", rfqID)
}

// Load returns ErrNoComparison when nothing is stored for the RFQ.
func (s *RedisStore) Load(ctx context.Context, rfqID int64) (State, error) {
	raw, err := s.client.Get(ctx, stateKey(rfqID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, ErrNoComparison
	}
	if err != nil {
		return State{}, fmt.Errorf("rfq: load state: %w", err)
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return State{}, fmt.Errorf("rfq: decode state: %w", err)
	}
	return state, nil
}

// Save overwrites the stored state.
func (s *RedisStore) Save(ctx context.Context, state State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, stateKey(state.RFQID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("rfq: save state: %w", err)
	}
	return nil
}

// Delete drops the stored state.
func (s *RedisStore) Delete(ctx context.Context, rfqID int64) error {
	return s.client.Del(ctx, stateKey(rfqID)).Err()
}

// MemoryStore is a process-local StateStore.
type MemoryStore struct {
	mu     sync.Mutex
	states map[int64]State
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[int64]State)}
}

func (s *MemoryStore) Load(ctx context.Context, rfqID int64) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[rfqID]
	if !ok {
		return State{}, ErrNoComparison
	}
	state.Selections = append([]Selection(nil), state.Selections...)
	state.Changes = append([]Change(nil), state.Changes...)
	return state, nil
}

func (s *MemoryStore) Save(ctx context.Context, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.Selections = append([]Selection(nil), state.Selections...)
	state.Changes = append([]Change(nil), state.Changes...)
	s.states[state.RFQID] = state
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, rfqID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, rfqID)
	return nil
}
