package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dreamshop/gateway/internal/events"
)

type fakeRepo struct {
	mu      sync.Mutex
	nextID  int
	tasks   map[int]*Task
	deleted []int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{tasks: make(map[int]*Task)}
}

func (r *fakeRepo) CreateTask(_ context.Context, key string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.tasks[r.nextID] = &Task{ID: r.nextID, EventKey: key, Payload: payload, Status: TaskStatusCreated}
	return nil
}

func (r *fakeRepo) GetPendingTasks(_ context.Context, limit, maxAttempts int) ([]*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Task
	for id := 1; id <= r.nextID && len(out) < limit; id++ {
		t, ok := r.tasks[id]
		if !ok || t.AttemptCount >= maxAttempts {
			continue
		}
		if t.Status == TaskStatusCreated || t.Status == TaskStatusFailed {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeRepo) MarkTaskProcessing(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[id].Status = TaskStatusProcessing
	return nil
}

func (r *fakeRepo) DeleteTask(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeRepo) UpdateTaskFailure(_ context.Context, id int, attempts int, st TaskStatus, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[id].AttemptCount = attempts
	r.tasks[id].Status = st
	return nil
}

type fakePublisher struct {
	fail bool
	sent []string
}

func (p *fakePublisher) Publish(_, key string, _ []byte) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.sent = append(p.sent, key)
	return nil
}

func TestWriterAndProcessor(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	pub := &fakePublisher{}
	w := NewWriter(repo)

	ev := events.NewPaymentEvent(events.KindOrder, "stripe", "pi_1")
	require.NoError(t, w.Emit(ctx, ev))

	p := NewProcessor(repo, pub, "payments", time.Second, 10, zap.NewNop())
	p.processPendingTasks(ctx)

	assert.Equal(t, []string{"stripe:pi_1"}, pub.sent)
	assert.Equal(t, []int{1}, repo.deleted)
}

func TestProcessorRetriesThenGivesUp(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	pub := &fakePublisher{fail: true}
	require.NoError(t, repo.CreateTask(ctx, "k", []byte(`{}`)))

	p := NewProcessor(repo, pub, "payments", time.Second, 10, zap.NewNop())
	for i := 0; i < 5; i++ {
		p.processPendingTasks(ctx)
	}

	task := repo.tasks[1]
	require.NotNil(t, task)
	assert.Equal(t, 3, task.AttemptCount)
	assert.Equal(t, TaskStatusNoAttemptsLeft, task.Status)
	assert.Empty(t, repo.deleted)
}

func TestDirectEmitter(t *testing.T) {
	pub := &fakePublisher{}
	d := Direct{Publisher: pub, Topic: "payments"}
	require.NoError(t, d.Emit(context.Background(), events.NewPaymentEvent(events.KindResinFee, "paypal", "CAP1")))
	assert.Equal(t, []string{"paypal:CAP1"}, pub.sent)
}
