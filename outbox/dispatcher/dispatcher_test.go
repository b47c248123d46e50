package dispatcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"peopleops/webhook-outbox-relay/config"
	"peopleops/webhook-outbox-relay/outbox"
	"peopleops/webhook-outbox-relay/outbox/test"

	"github.com/google/uuid"
)

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time {
	return c.t
}

type mockNotifier struct {
	mu         sync.Mutex
	failFor    map[uuid.UUID]error
	dispatched []uuid.UUID
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{failFor: map[uuid.UUID]error{}}
}

func (m *mockNotifier) Dispatch(ctx context.Context, e *outbox.Entry, env *outbox.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.failFor[e.Id]; ok {
		return err
	}

	m.dispatched = append(m.dispatched, e.Id)
	return nil
}

func (m *mockNotifier) FailFor(id uuid.UUID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFor[id] = err
}

func (m *mockNotifier) Dispatched(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.dispatched {
		if d == id {
			return true
		}
	}
	return false
}

var testNow = time.Date(2021, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestCoordinator(repo repository, n *mockNotifier, cfg *config.Config) *Coordinator {
	if cfg == nil {
		cfg = &config.Config{
			MaxAttempts:      5,
			RetryBaseDelayMs: 1000,
			ClaimTTLMs:       600000,
			BatchSize:        100,
			DispatchWorkers:  2,
			ParallelDispatch: true,
		}
	}
	return New(cfg, repo, n, fixedClock{t: testNow})
}

func pendingEntry() *outbox.Entry {
	env := outbox.NewEnvelope([]byte(`{"employeeId":"e-123"}`), "", nil)
	payload, _ := env.Encode()

	return &outbox.Entry{
		Id:          uuid.New(),
		TenantId:    "acme",
		EventType:   "EMPLOYEE_CREATED",
		Destination: "hrpartner",
		Payload:     payload,
		Status:      outbox.StatusPending,
	}
}

func TestNew(t *testing.T) {
	c := newTestCoordinator(test.NewMockRepository(), newMockNotifier(), nil)

	if c == nil {
		t.Fatal("received nil from New()")
	}
	if c.WorkerId() == "" {
		t.Error("expected a non-empty worker ID")
	}
}

func TestCoordinator_RunPass(t *testing.T) {
	t.Run("it claims and delivers due entries", func(t *testing.T) {
		repo := test.NewMockRepository()
		n := newMockNotifier()
		c := newTestCoordinator(repo, n, nil)

		e1 := pendingEntry()
		e2 := pendingEntry()
		repo.AddDue(e1, e2)

		if err := c.RunPass(context.Background()); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}

		for _, e := range []*outbox.Entry{e1, e2} {
			if repo.ClaimedBy(e.Id) != c.WorkerId() {
				t.Errorf("entry %s was not claimed by this coordinator", e.Id)
			}
			if !n.Dispatched(e.Id) {
				t.Errorf("entry %s was not dispatched", e.Id)
			}
			if !repo.WasCompleted(e.Id) {
				t.Errorf("entry %s was not completed", e.Id)
			}
		}
	})

	t.Run("it skips entries claimed by another process", func(t *testing.T) {
		repo := test.NewMockRepository()
		n := newMockNotifier()
		c := newTestCoordinator(repo, n, nil)

		mine := pendingEntry()
		theirs := pendingEntry()
		repo.AddDue(mine, theirs)
		repo.DenyClaim(theirs.Id)

		if err := c.RunPass(context.Background()); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}

		if n.Dispatched(theirs.Id) {
			t.Error("an entry owned by another process was dispatched")
		}
		if !n.Dispatched(mine.Id) {
			t.Error("the claimable entry was not dispatched")
		}
	})

	t.Run("a failing entry does not abort its siblings", func(t *testing.T) {
		repo := test.NewMockRepository()
		n := newMockNotifier()
		c := newTestCoordinator(repo, n, nil)

		failing := pendingEntry()
		healthy := pendingEntry()
		repo.AddDue(failing, healthy)
		n.FailFor(failing.Id, errors.New("connection refused"))

		if err := c.RunPass(context.Background()); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}

		if !repo.WasCompleted(healthy.Id) {
			t.Error("the healthy entry was not completed")
		}
		if repo.WasCompleted(failing.Id) {
			t.Error("the failing entry must not be completed")
		}
		if _, ok := repo.RescheduledFor(failing.Id); !ok {
			t.Error("the failing entry was not rescheduled")
		}
	})

	t.Run("it refreshes the pending gauge even when idle", func(t *testing.T) {
		repo := test.NewMockRepository()
		c := newTestCoordinator(repo, newMockNotifier(), nil)

		if err := c.RunPass(context.Background()); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}

		if repo.PendingCountReadings() != 1 {
			t.Errorf("expected one pending count reading, got %d", repo.PendingCountReadings())
		}
	})

	t.Run("it surfaces fetch errors", func(t *testing.T) {
		repo := test.NewMockRepository()
		repo.ReturnErrors()
		c := newTestCoordinator(repo, newMockNotifier(), nil)

		if err := c.RunPass(context.Background()); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestCoordinator_DispatchOne(t *testing.T) {
	t.Run("a failed delivery is rescheduled with backoff", func(t *testing.T) {
		repo := test.NewMockRepository()
		n := newMockNotifier()
		c := newTestCoordinator(repo, n, nil)

		e := pendingEntry()
		repo.AddDue(e)
		n.FailFor(e.Id, errors.New("remote returned 503"))

		if err := c.RunPass(context.Background()); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}

		if e.Attempts != 1 {
			t.Errorf("expected 1 attempt, got %d", e.Attempts)
		}

		at, ok := repo.RescheduledFor(e.Id)
		if !ok {
			t.Fatal("the entry was not rescheduled")
		}
		if exp := testNow.Add(time.Second); !at.Equal(exp) {
			t.Errorf("expected a next attempt at %s, got %s", exp, at)
		}
	})

	t.Run("an exhausted entry moves to the dead letter store", func(t *testing.T) {
		repo := test.NewMockRepository()
		n := newMockNotifier()
		cfg := &config.Config{
			MaxAttempts:      2,
			RetryBaseDelayMs: 1000,
			BatchSize:        100,
			DispatchWorkers:  1,
		}
		c := newTestCoordinator(repo, n, cfg)

		e := pendingEntry()
		e.Attempts = 1
		repo.AddDue(e)
		n.FailFor(e.Id, errors.New("remote returned 503"))

		if err := c.RunPass(context.Background()); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}

		if !repo.WasDeadLettered(e.Id) {
			t.Fatal("expected the entry to be dead lettered")
		}
		if e.Attempts != 2 {
			t.Errorf("expected 2 attempts, got %d", e.Attempts)
		}
		if repo.DeadLetterError(e.Id) == "" {
			t.Error("expected a non-empty last error on the dead letter entry")
		}
	})

	t.Run("a poison payload counts toward the dead letter transition", func(t *testing.T) {
		repo := test.NewMockRepository()
		n := newMockNotifier()
		c := newTestCoordinator(repo, n, nil)

		e := pendingEntry()
		e.Payload = []byte("{not json")
		repo.AddDue(e)

		if err := c.RunPass(context.Background()); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}

		if n.Dispatched(e.Id) {
			t.Error("a poison payload must never reach the notifier")
		}
		if e.Attempts != 1 {
			t.Errorf("expected the parse failure to count as an attempt, got %d", e.Attempts)
		}
		if _, ok := repo.RescheduledFor(e.Id); !ok {
			t.Error("the poison entry was not rescheduled toward the dead letter transition")
		}
	})

	t.Run("a lost completion update leaves the entry for claim TTL recovery", func(t *testing.T) {
		repo := test.NewMockRepository()
		repo.FailMarkCompleted()
		n := newMockNotifier()
		c := newTestCoordinator(repo, n, nil)

		e := pendingEntry()
		repo.AddDue(e)

		if err := c.RunPass(context.Background()); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}

		if !n.Dispatched(e.Id) {
			t.Error("the entry should still have been dispatched")
		}
		if repo.WasCompleted(e.Id) {
			t.Error("the completion must not be recorded")
		}
		if _, ok := repo.RescheduledFor(e.Id); ok {
			t.Error("a delivered entry must not be rescheduled")
		}
	})
}

func TestNewWorkerId(t *testing.T) {
	a := newWorkerId()
	b := newWorkerId()

	if a == b {
		t.Error("expected worker IDs to be unique per coordinator")
	}
	if !strings.Contains(a, "-") {
		t.Errorf("unexpected worker ID format: %s", a)
	}
}
