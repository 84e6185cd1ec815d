package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compevent/registration/internal/clock"
	"github.com/compevent/registration/internal/model"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// fakeBackend implements the engine's Ledger and Events interfaces over an
// in-memory ledger. Events in failing report errors on every access, to
// exercise partial progress.
type fakeBackend struct {
	regs    []model.Registration
	events  map[string]*model.EventCapacitySnapshot
	order   []string
	failing map[string]bool

	touched bool // any storage access at all
	writes  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		events:  make(map[string]*model.EventCapacitySnapshot),
		failing: make(map[string]bool),
	}
}

func (f *fakeBackend) addEvent(id string, admitted, waitlisted int) {
	f.events[id] = &model.EventCapacitySnapshot{
		EventID:           id,
		MaxCapacity:       10,
		AdmittedCount:     admitted,
		WaitlistedCount:   waitlisted,
		AllowRegistration: true,
	}
	f.order = append(f.order, id)
}

func (f *fakeBackend) addRegistration(eventID, userID string, status model.Status) {
	f.regs = append(f.regs, model.Registration{
		ID:      fmt.Sprintf("reg-%d", len(f.regs)+1),
		EventID: eventID, UserID: userID, Status: status,
		RegisteredAt: testNow,
	})
}

func (f *fakeBackend) CountByStatus(_ context.Context, eventID string, status model.Status) (int, error) {
	f.touched = true
	if f.failing[eventID] {
		return 0, fmt.Errorf("count failed")
	}
	n := 0
	for _, r := range f.regs {
		if r.EventID == eventID && r.Status == status {
			n++
		}
	}
	return n, nil
}

func (f *fakeBackend) OrphanedEventIDs(_ context.Context) ([]string, error) {
	f.touched = true
	seen := map[string]bool{}
	var ids []string
	for _, r := range f.regs {
		if !r.Status.IsActive() || seen[r.EventID] {
			continue
		}
		if _, ok := f.events[r.EventID]; !ok {
			ids = append(ids, r.EventID)
			seen[r.EventID] = true
		}
	}
	return ids, nil
}

func (f *fakeBackend) CancelActiveForEvent(_ context.Context, eventID string) (int64, error) {
	f.touched = true
	var n int64
	for i := range f.regs {
		if f.regs[i].EventID == eventID && f.regs[i].Status.IsActive() {
			f.regs[i].Status = model.StatusCancelled
			n++
		}
	}
	return n, nil
}

func (f *fakeBackend) GetCapacity(_ context.Context, eventID string) (*model.EventCapacitySnapshot, error) {
	f.touched = true
	if f.failing[eventID] {
		return nil, fmt.Errorf("read failed")
	}
	e, ok := f.events[eventID]
	if !ok {
		return nil, model.ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeBackend) WriteCounts(_ context.Context, eventID string, admitted, waitlisted int) error {
	f.touched = true
	f.writes++
	e, ok := f.events[eventID]
	if !ok {
		return model.ErrEventNotFound
	}
	e.AdmittedCount = admitted
	e.WaitlistedCount = waitlisted
	return nil
}

func (f *fakeBackend) ListEventIDs(_ context.Context) ([]string, error) {
	f.touched = true
	return append([]string(nil), f.order...), nil
}

func newEngine(backend *fakeBackend) *Engine {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(backend, backend, clock.NewFixed(testNow), log)
}

func TestRunRejectsConflictingOptions(t *testing.T) {
	backend := newFakeBackend()
	engine := newEngine(backend)

	_, err := engine.Run(context.Background(), model.ReconcileOptions{DryRun: true, AutoFix: true})
	assert.ErrorIs(t, err, model.ErrConflictingOptions)
	// Rejected before any database access.
	assert.False(t, backend.touched)
}

func TestRunDetectsAndFixesDrift(t *testing.T) {
	ctx := context.Background()

	t.Run("corrupted counter is repaired with auto-fix", func(t *testing.T) {
		backend := newFakeBackend()
		backend.addEvent("ev-1", 5, 0) // cached says 5
		backend.addRegistration("ev-1", "alice", model.StatusRegistered)
		backend.addRegistration("ev-1", "bob", model.StatusRegistered) // truth is 2
		engine := newEngine(backend)

		report, err := engine.Run(ctx, model.ReconcileOptions{AutoFix: true})
		require.NoError(t, err)

		assert.Equal(t, 1, report.EventsChecked)
		assert.Equal(t, 1, report.DiscrepanciesFound)
		assert.Equal(t, 1, report.DiscrepanciesFixed)
		require.Len(t, report.Discrepancies, 1)
		assert.Equal(t, model.Discrepancy{EventID: "ev-1", RegisteredDiff: 3, WaitlistedDiff: 0}, report.Discrepancies[0])
		assert.Equal(t, 2, backend.events["ev-1"].AdmittedCount)
		assert.Equal(t, testNow, report.RanAt)
	})

	t.Run("dry run reports without writing", func(t *testing.T) {
		backend := newFakeBackend()
		backend.addEvent("ev-1", 5, 1)
		backend.addRegistration("ev-1", "alice", model.StatusRegistered)
		engine := newEngine(backend)

		report, err := engine.Run(ctx, model.ReconcileOptions{DryRun: true})
		require.NoError(t, err)

		assert.Equal(t, 1, report.DiscrepanciesFound)
		assert.Equal(t, 0, report.DiscrepanciesFixed)
		assert.Equal(t, 0, backend.writes)
		assert.Equal(t, 5, backend.events["ev-1"].AdmittedCount)
	})

	t.Run("consistent counters produce a clean report", func(t *testing.T) {
		backend := newFakeBackend()
		backend.addEvent("ev-1", 1, 1)
		backend.addRegistration("ev-1", "alice", model.StatusRegistered)
		backend.addRegistration("ev-1", "bob", model.StatusWaitlisted)
		engine := newEngine(backend)

		report, err := engine.Run(ctx, model.ReconcileOptions{})
		require.NoError(t, err)
		assert.True(t, report.Clean())
	})

	t.Run("single event target", func(t *testing.T) {
		backend := newFakeBackend()
		backend.addEvent("ev-1", 3, 0)
		backend.addEvent("ev-2", 7, 0)
		engine := newEngine(backend)

		report, err := engine.Run(ctx, model.ReconcileOptions{EventID: "ev-2", AutoFix: true})
		require.NoError(t, err)

		assert.Equal(t, 1, report.EventsChecked)
		assert.Equal(t, 0, backend.events["ev-2"].AdmittedCount)
		// The untargeted event is left alone.
		assert.Equal(t, 3, backend.events["ev-1"].AdmittedCount)
	})
}

func TestRunIsIdempotent(t *testing.T) {
	backend := newFakeBackend()
	backend.addEvent("ev-1", 9, 9)
	backend.addRegistration("ev-1", "alice", model.StatusRegistered)
	backend.addRegistration("ev-1", "bob", model.StatusWaitlisted)
	engine := newEngine(backend)

	first, err := engine.Run(context.Background(), model.ReconcileOptions{AutoFix: true})
	require.NoError(t, err)
	assert.Equal(t, 1, first.DiscrepanciesFixed)

	second, err := engine.Run(context.Background(), model.ReconcileOptions{AutoFix: true})
	require.NoError(t, err)
	assert.Equal(t, 0, second.DiscrepanciesFound)
	assert.True(t, second.Clean())
}

func TestRunResolvesOrphans(t *testing.T) {
	ctx := context.Background()

	t.Run("orphaned registrations are cancelled", func(t *testing.T) {
		backend := newFakeBackend()
		backend.addRegistration("ev-gone", "alice", model.StatusRegistered)
		backend.addRegistration("ev-gone", "bob", model.StatusRegistered)
		backend.addRegistration("ev-gone", "carol", model.StatusWaitlisted)
		engine := newEngine(backend)

		report, err := engine.Run(ctx, model.ReconcileOptions{AutoFix: true, IncludeOrphaned: true})
		require.NoError(t, err)

		assert.Equal(t, 3, report.OrphanedResolved)
		for _, r := range backend.regs {
			assert.Equal(t, model.StatusCancelled, r.Status)
		}

		// A second pass finds nothing left to resolve.
		again, err := engine.Run(ctx, model.ReconcileOptions{AutoFix: true, IncludeOrphaned: true})
		require.NoError(t, err)
		assert.Equal(t, 0, again.OrphanedResolved)
	})

	t.Run("dry run counts orphans without cancelling", func(t *testing.T) {
		backend := newFakeBackend()
		backend.addRegistration("ev-gone", "alice", model.StatusRegistered)
		engine := newEngine(backend)

		report, err := engine.Run(ctx, model.ReconcileOptions{DryRun: true, IncludeOrphaned: true})
		require.NoError(t, err)

		assert.Equal(t, 1, report.OrphanedResolved)
		assert.Equal(t, model.StatusRegistered, backend.regs[0].Status)
	})

	t.Run("orphans untouched without the flag", func(t *testing.T) {
		backend := newFakeBackend()
		backend.addRegistration("ev-gone", "alice", model.StatusRegistered)
		engine := newEngine(backend)

		report, err := engine.Run(ctx, model.ReconcileOptions{AutoFix: true})
		require.NoError(t, err)

		assert.Equal(t, 0, report.OrphanedResolved)
		assert.Equal(t, model.StatusRegistered, backend.regs[0].Status)
	})
}

func TestRunMakesPartialProgress(t *testing.T) {
	backend := newFakeBackend()
	backend.addEvent("ev-bad", 1, 0)
	backend.addEvent("ev-good", 4, 0)
	backend.failing["ev-bad"] = true
	engine := newEngine(backend)

	report, err := engine.Run(context.Background(), model.ReconcileOptions{AutoFix: true})
	require.NoError(t, err)

	// The broken event lands in the error list; the healthy one is still
	// checked and repaired.
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "ev-bad")
	assert.Equal(t, 2, report.EventsChecked)
	assert.Equal(t, 1, report.DiscrepanciesFixed)
	assert.Equal(t, 0, backend.events["ev-good"].AdmittedCount)
}
