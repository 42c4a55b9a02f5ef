package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taskflow/pkg/circuitbreaker"
	"taskflow/pkg/trace"
)

type fakeStore struct {
	mu      sync.Mutex
	events  map[int64]*Event
	pending []*Event
	sent    []int64
	failed  []int64
}

func newFakeStore(events ...*Event) *fakeStore {
	s := &fakeStore{events: map[int64]*Event{}}
	for _, e := range events {
		s.events[e.ID] = e
		if e.Status == StatusPending {
			s.pending = append(s.pending, e)
		}
	}
	return s
}

func (s *fakeStore) ClaimPendingEvents(_ context.Context, limit int) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) > limit {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

func (s *fakeStore) MarkAsSent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, id)
	return nil
}

func (s *fakeStore) MarkAsFailed(_ context.Context, id int64, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, id)
	return nil
}

func (s *fakeStore) GetEventByID(_ context.Context, id int64) (*Event, error) {
	e, ok := s.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return e, nil
}

func (s *fakeStore) GetFailedEvents(_ context.Context, limit int) ([]*Event, error) {
	var out []*Event
	for _, e := range s.events {
		if e.Status == StatusFailed && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

type published struct {
	routingKey string
	body       string
	traceID    string
}

type fakePublisher struct {
	err  error
	msgs []published
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	if p.err != nil {
		return p.err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.msgs = append(p.msgs, published{routingKey: routingKey, body: string(body), traceID: trace.FromContext(ctx)})
	return nil
}

func pendingEvent(id int64, payload string) *Event {
	return &Event{
		ID:            id,
		AggregateType: "task",
		AggregateID:   "task-1",
		RoutingKey:    "assignee.progress.updated",
		Payload:       json.RawMessage(payload),
		Status:        StatusPending,
	}
}

func TestDispatchOnce_PublishesAndMarksSent(t *testing.T) {
	store := newFakeStore(
		pendingEvent(1, `{"task_id":"task-1","trace_id":"abc123"}`),
		pendingEvent(2, `{"task_id":"task-1"}`),
	)
	pub := &fakePublisher{}
	d := NewDispatcher(store, pub, nil, zap.NewNop())

	sent := d.DispatchOnce(context.Background())

	assert.Equal(t, 2, sent)
	assert.Equal(t, []int64{1, 2}, store.sent)
	assert.Empty(t, store.failed)
	require.Len(t, pub.msgs, 2)
	assert.JSONEq(t, `{"task_id":"task-1","trace_id":"abc123"}`, pub.msgs[0].body)
	assert.Equal(t, "abc123", pub.msgs[0].traceID)
	assert.Empty(t, pub.msgs[1].traceID)
}

func TestDispatchOnce_RespectsBatchSize(t *testing.T) {
	store := newFakeStore(pendingEvent(1, `{}`), pendingEvent(2, `{}`), pendingEvent(3, `{}`))
	d := NewDispatcher(store, &fakePublisher{}, nil, zap.NewNop()).WithBatchSize(2)

	assert.Equal(t, 2, d.DispatchOnce(context.Background()))
	assert.Equal(t, []int64{1, 2}, store.sent)
}

func TestDispatchOnce_InvalidPayloadMarksFailed(t *testing.T) {
	store := newFakeStore(pendingEvent(1, `{not json`))
	pub := &fakePublisher{}
	d := NewDispatcher(store, pub, nil, zap.NewNop())

	assert.Equal(t, 0, d.DispatchOnce(context.Background()))
	assert.Equal(t, []int64{1}, store.failed)
	assert.Empty(t, pub.msgs)
}

func TestDispatchOnce_BreakerOpenStopsBatch(t *testing.T) {
	store := newFakeStore(pendingEvent(1, `{}`), pendingEvent(2, `{}`), pendingEvent(3, `{}`))
	pub := &fakePublisher{err: errors.New("connection reset")}
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		FailureThreshold: 2,
		Timeout:          time.Minute,
	})
	d := NewDispatcher(store, pub, breaker, zap.NewNop())

	assert.Equal(t, 0, d.DispatchOnce(context.Background()))
	// the third event is left pending without consuming a retry
	assert.Equal(t, []int64{1, 2}, store.failed)
	assert.Equal(t, circuitbreaker.StateOpen, breaker.GetState())

	store.failed = nil
	assert.Equal(t, 0, d.DispatchOnce(context.Background()))
	assert.Empty(t, store.failed)
}

func TestNextAttempt(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	status, next := NextAttempt(1, 5, now)
	assert.Equal(t, StatusPending, status)
	require.NotNil(t, next)
	assert.Equal(t, now.Add(5*time.Second), *next)

	status, next = NextAttempt(3, 5, now)
	assert.Equal(t, StatusPending, status)
	assert.Equal(t, now.Add(15*time.Second), *next)

	status, next = NextAttempt(5, 5, now)
	assert.Equal(t, StatusFailed, status)
	assert.Nil(t, next)
}

func TestReplayService(t *testing.T) {
	failed := pendingEvent(7, `{"task_id":"task-9"}`)
	failed.Status = StatusFailed
	store := newFakeStore(failed)

	t.Run("replays failed events", func(t *testing.T) {
		pub := &fakePublisher{}
		svc := NewReplayService(store, pub, zap.NewNop(), 0)

		n, err := svc.ReplayFailedEvents(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Contains(t, store.sent, int64(7))
		require.Len(t, pub.msgs, 1)
		assert.Equal(t, "assignee.progress.updated", pub.msgs[0].routingKey)
	})

	t.Run("publish failure marks failed", func(t *testing.T) {
		svc := NewReplayService(store, &fakePublisher{err: errors.New("down")}, zap.NewNop(), 3)

		err := svc.ReplayEvent(context.Background(), 7)
		require.Error(t, err)
		assert.Contains(t, store.failed, int64(7))
	})

	t.Run("unknown event", func(t *testing.T) {
		svc := NewReplayService(store, &fakePublisher{}, zap.NewNop(), 3)

		err := svc.ReplayEvent(context.Background(), 99)
		assert.ErrorIs(t, err, ErrEventNotFound)
	})
}
