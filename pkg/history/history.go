// Package history manages per-user conversation history: a bounded FIFO
// queue per user, stored as a single cache entry whose TTL is refreshed on
// every append. Idle users' queues expire and are destroyed by the cache
// engine; active users keep a sliding window proportional to engagement.
package history

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/developer-mesh/rag-core/pkg/cache"
	"github.com/developer-mesh/rag-core/pkg/errors"
	"github.com/developer-mesh/rag-core/pkg/observability"
)

// Turn is one question/answer exchange in a conversation.
type Turn struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTurn creates a turn with a fresh ID. The timestamp is set by the
// manager on append so it follows the injected clock.
func NewTurn(question, answer string) Turn {
	return Turn{ID: uuid.NewString(), Question: question, Answer: answer}
}

// Config holds configuration for the history manager.
type Config struct {
	QueueSize int           `mapstructure:"queue_size"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.QueueSize <= 0 {
		return errors.InvalidArgumentf("history.config", "queue_size must be positive, got %d", c.QueueSize)
	}
	if c.TTL <= 0 {
		return errors.InvalidArgumentf("history.config", "ttl must be positive, got %s", c.TTL)
	}
	return nil
}

// stripeCount is a power of two so the stripe index is a cheap mask.
const stripeCount = 64

// Manager owns the per-user queues. Append is a read-modify-write on one
// cache entry, serialized per user through striped mutexes so concurrent
// appends for the same user never lose turns.
type Manager struct {
	store   cache.Cache
	config  Config
	clock   cache.Clock
	logger  observability.Logger
	stripes [stripeCount]sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the wall clock.
func WithClock(clock cache.Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithLogger sets the manager logger.
func WithLogger(logger observability.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a history manager over the given cache store.
func NewManager(store cache.Cache, config Config, opts ...Option) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		store:  store,
		config: config,
		clock:  time.Now,
		logger: observability.NewStandardLogger("history"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) stripeFor(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &m.stripes[h.Sum32()&(stripeCount-1)]
}

// Append adds a turn to the user's queue, truncating the oldest turns above
// the configured size and refreshing the queue's expiry to now + TTL.
func (m *Manager) Append(ctx context.Context, userID string, turn Turn) error {
	if userID == "" {
		return errors.InvalidArgumentf("history.append", "user_id must not be empty")
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = m.clock()
	}

	mu := m.stripeFor(userID)
	mu.Lock()
	defer mu.Unlock()

	key := cache.HistoryKey(userID)

	var turns []Turn
	if err := m.store.Get(ctx, key, &turns); err != nil && !errors.IsNotFound(err) {
		return fmt.Errorf("loading history for %q: %w", userID, err)
	}

	turns = append(turns, turn)
	if excess := len(turns) - m.config.QueueSize; excess > 0 {
		turns = turns[excess:]
	}

	if err := m.store.Set(ctx, key, turns, m.config.TTL); err != nil {
		return fmt.Errorf("storing history for %q: %w", userID, err)
	}

	m.logger.Debug("history appended", map[string]interface{}{
		"user_id": userID,
		"length":  len(turns),
	})
	return nil
}

// Get returns the user's turns oldest-first. A missing or expired queue is
// an empty history, not an error.
func (m *Manager) Get(ctx context.Context, userID string) ([]Turn, error) {
	if userID == "" {
		return nil, errors.InvalidArgumentf("history.get", "user_id must not be empty")
	}

	var turns []Turn
	err := m.store.Get(ctx, cache.HistoryKey(userID), &turns)
	if errors.IsNotFound(err) {
		return []Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading history for %q: %w", userID, err)
	}
	return turns, nil
}

// Clear removes the user's queue.
func (m *Manager) Clear(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.InvalidArgumentf("history.clear", "user_id must not be empty")
	}
	return m.store.Delete(ctx, cache.HistoryKey(userID))
}

// PromptBlock renders the user's history as a prompt fragment, oldest turn
// first. Empty history renders to an empty string.
func (m *Manager) PromptBlock(ctx context.Context, userID string) (string, error) {
	turns, err := m.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(turns) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for _, turn := range turns {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", turn.Question, turn.Answer)
	}
	return b.String(), nil
}
