package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"smartalarm/internal/config"
	"smartalarm/internal/model"
)

type fakeScheduler struct {
	mu      sync.Mutex
	next    int
	live    map[string]string // handle -> alarm id
	failure error
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{live: make(map[string]string)}
}

func (f *fakeScheduler) Schedule(alarmID string, fireAt time.Time, payload map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failure != nil {
		return "", f.failure
	}
	f.next++
	handle := fmt.Sprintf("n%d", f.next)
	f.live[handle] = alarmID
	return handle, nil
}

func (f *fakeScheduler) Cancel(handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, handle)
	return nil
}

func (f *fakeScheduler) ListScheduled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.live))
	for h := range f.live {
		out = append(out, h)
	}
	return out
}

func (f *fakeScheduler) liveFor(alarmID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.live {
		if id == alarmID {
			n++
		}
	}
	return n
}

type fakePersist struct {
	mu      sync.Mutex
	saved   []model.Alarm
	saves   int
	failure error
}

func (f *fakePersist) Init(ctx context.Context) error { return nil }
func (f *fakePersist) Close() error                   { return nil }

func (f *fakePersist) SaveAlarms(ctx context.Context, alarms []model.Alarm) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failure != nil {
		return f.failure
	}
	f.saved = append([]model.Alarm(nil), alarms...)
	f.saves++
	return nil
}

func (f *fakePersist) LoadAlarms(ctx context.Context) ([]model.Alarm, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Alarm(nil), f.saved...), nil
}

func newTestStore() (*Store, *fakeScheduler, *fakePersist) {
	sched := newFakeScheduler()
	p := &fakePersist{}
	s := NewStore(p, sched, nil, nil, nil)
	s.Now = func() time.Time {
		return time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	}
	return s, sched, p
}

func TestCreate(t *testing.T) {
	s, sched, p := newTestStore()
	a, err := s.Create(context.Background(), "07:00", "wake up", model.ChallengeMath, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID == "" {
		t.Error("expected assigned id")
	}
	if !a.IsActive || a.IsTriggered {
		t.Errorf("new alarm state: active=%v triggered=%v", a.IsActive, a.IsTriggered)
	}
	if a.NotificationID == "" {
		t.Error("expected scheduled notification handle")
	}
	if sched.liveFor(a.ID) != 1 {
		t.Errorf("live handles = %d, want 1", sched.liveFor(a.ID))
	}
	if p.saves != 1 {
		t.Errorf("saves = %d, want 1", p.saves)
	}
}

func TestCreateInvalid(t *testing.T) {
	s, _, _ := newTestStore()
	if _, err := s.Create(context.Background(), "25:00", "", model.ChallengeMath, 1); model.ErrorCode(err) != model.ErrInvalid {
		t.Errorf("expected invalid_input for bad time, got %v", err)
	}
	if _, err := s.Create(context.Background(), "07:00", "", "yoga", 1); model.ErrorCode(err) != model.ErrInvalid {
		t.Errorf("expected invalid_input for bad challenge, got %v", err)
	}
}

func TestCreateDefaultDifficulty(t *testing.T) {
	s, _, _ := newTestStore()
	a, err := s.Create(context.Background(), "07:00", "", model.ChallengeShake, 0)
	if err != nil {
		t.Fatal(err)
	}
	if a.Difficulty != model.DefaultDifficulty {
		t.Errorf("difficulty = %d, want %d", a.Difficulty, model.DefaultDifficulty)
	}
}

func TestCreateClampsDifficulty(t *testing.T) {
	sched := newFakeScheduler()
	s := NewStore(&fakePersist{}, sched, nil, config.NewStaticManager(config.DefaultConfig()), nil)
	s.Now = func() time.Time {
		return time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	}
	ctx := context.Background()

	a, err := s.Create(ctx, "07:00", "", model.ChallengeMath, 1_000_000)
	if err != nil {
		t.Fatal(err)
	}
	if a.Difficulty != config.DefaultConfig().Lifecycle.MaxDifficulty {
		t.Errorf("difficulty = %d, want clamped to %d", a.Difficulty, config.DefaultConfig().Lifecycle.MaxDifficulty)
	}

	huge := 9999
	upd, err := s.Update(ctx, a.ID, UpdateFields{Difficulty: &huge})
	if err != nil {
		t.Fatal(err)
	}
	if upd.Difficulty != config.DefaultConfig().Lifecycle.MaxDifficulty {
		t.Errorf("updated difficulty = %d, want clamped to %d", upd.Difficulty, config.DefaultConfig().Lifecycle.MaxDifficulty)
	}

	// In-range values pass through untouched.
	two := 2
	upd, err = s.Update(ctx, a.ID, UpdateFields{Difficulty: &two})
	if err != nil {
		t.Fatal(err)
	}
	if upd.Difficulty != 2 {
		t.Errorf("difficulty = %d, want 2", upd.Difficulty)
	}
}

func TestToggle(t *testing.T) {
	s, sched, _ := newTestStore()
	ctx := context.Background()
	a, _ := s.Create(ctx, "07:00", "", model.ChallengeMath, 1)

	if _, err := s.MarkTriggered(ctx, a.ID); err != nil {
		t.Fatal(err)
	}

	off, err := s.Toggle(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if off.IsActive {
		t.Error("expected inactive after toggle")
	}
	if off.NotificationID != "" {
		t.Error("inactive alarm must not hold a notification handle")
	}
	if off.IsTriggered {
		t.Error("toggle must reset isTriggered")
	}
	if sched.liveFor(a.ID) != 0 {
		t.Errorf("live handles = %d, want 0", sched.liveFor(a.ID))
	}

	on, err := s.Toggle(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !on.IsActive || on.IsTriggered {
		t.Errorf("re-enabled alarm state: active=%v triggered=%v", on.IsActive, on.IsTriggered)
	}
	if sched.liveFor(a.ID) != 1 {
		t.Errorf("live handles = %d, want exactly 1", sched.liveFor(a.ID))
	}
}

func TestToggleNotFound(t *testing.T) {
	s, _, _ := newTestStore()
	if _, err := s.Toggle(context.Background(), "nope"); model.ErrorCode(err) != model.ErrNotFound {
		t.Errorf("expected not_found, got %v", err)
	}
}

func TestUpdateReschedules(t *testing.T) {
	s, sched, _ := newTestStore()
	ctx := context.Background()
	a, _ := s.Create(ctx, "07:00", "", model.ChallengeMath, 1)
	old := a.NotificationID

	newTime := "09:30"
	upd, err := s.Update(ctx, a.ID, UpdateFields{Time: &newTime})
	if err != nil {
		t.Fatal(err)
	}
	if upd.Time != "09:30" {
		t.Errorf("time = %q, want 09:30", upd.Time)
	}
	if upd.NotificationID == "" || upd.NotificationID == old {
		t.Error("expected a fresh notification handle")
	}
	if sched.liveFor(a.ID) != 1 {
		t.Errorf("live handles = %d, want 1", sched.liveFor(a.ID))
	}

	inactive := false
	upd, err = s.Update(ctx, a.ID, UpdateFields{IsActive: &inactive})
	if err != nil {
		t.Fatal(err)
	}
	if upd.NotificationID != "" || sched.liveFor(a.ID) != 0 {
		t.Error("deactivated alarm must not keep a scheduled notification")
	}
}

func TestDeleteIdempotent(t *testing.T) {
	s, sched, _ := newTestStore()
	ctx := context.Background()
	a, _ := s.Create(ctx, "07:00", "", model.ChallengeMath, 1)

	if err := s.Delete(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if sched.liveFor(a.ID) != 0 {
		t.Error("delete must cancel the scheduled notification")
	}
	if err := s.Delete(ctx, a.ID); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}
	if err := s.Delete(ctx, "never-existed"); err != nil {
		t.Errorf("deleting unknown id should be a no-op, got %v", err)
	}
}

func TestRearm(t *testing.T) {
	s, sched, _ := newTestStore()
	ctx := context.Background()
	a, _ := s.Create(ctx, "07:00", "", model.ChallengeMath, 1)
	if _, err := s.MarkTriggered(ctx, a.ID); err != nil {
		t.Fatal(err)
	}

	re, err := s.Rearm(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if re.IsTriggered {
		t.Error("rearm must clear isTriggered")
	}
	if re.NotificationID == "" || sched.liveFor(a.ID) != 1 {
		t.Error("rearm of an active alarm must schedule exactly one notification")
	}
}

func TestRearmInactiveStaysUnscheduled(t *testing.T) {
	s, sched, _ := newTestStore()
	ctx := context.Background()
	a, _ := s.Create(ctx, "07:00", "", model.ChallengeMath, 1)
	if _, err := s.Toggle(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	re, err := s.Rearm(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if re.NotificationID != "" || sched.liveFor(a.ID) != 0 {
		t.Error("rearm of an inactive alarm must not schedule")
	}
}

func TestListSorted(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()
	for _, tm := range []string{"23:00", "05:00", "12:00"} {
		if _, err := s.Create(ctx, tm, "", model.ChallengeMath, 1); err != nil {
			t.Fatal(err)
		}
	}
	list := s.List()
	want := []string{"05:00", "12:00", "23:00"}
	if len(list) != len(want) {
		t.Fatalf("len = %d, want %d", len(list), len(want))
	}
	for i, a := range list {
		if a.Time != want[i] {
			t.Errorf("list[%d].Time = %q, want %q", i, a.Time, want[i])
		}
	}
}

func TestPersistenceFailureIsRecoverable(t *testing.T) {
	s, _, p := newTestStore()
	p.failure = errors.New("disk full")
	a, err := s.Create(context.Background(), "07:00", "", model.ChallengeMath, 1)
	if model.ErrorCode(err) != model.ErrPersistence {
		t.Fatalf("expected persistence_failure, got %v", err)
	}
	// In-memory state stays authoritative.
	if _, ok := s.Get(a.ID); !ok {
		t.Error("alarm must remain in memory after persistence failure")
	}
}

func TestSchedulingFailureIsNonFatal(t *testing.T) {
	s, sched, _ := newTestStore()
	sched.failure = errors.New("notifications unavailable")
	a, err := s.Create(context.Background(), "07:00", "", model.ChallengeMath, 1)
	if err != nil {
		t.Fatalf("scheduling failure should not fail create: %v", err)
	}
	if a.NotificationID != "" {
		t.Error("failed schedule must leave the handle empty")
	}
	if !a.IsActive {
		t.Error("alarm stays active, tick fallback covers firing")
	}
}

func TestLoadReschedulesActives(t *testing.T) {
	s, sched, p := newTestStore()
	ctx := context.Background()
	p.saved = []model.Alarm{
		{ID: "a1", Time: "07:00", IsActive: true, Challenge: model.ChallengeMath, Difficulty: 2, NotificationID: "stale"},
		{ID: "a2", Time: "09:00", IsActive: false, Challenge: model.ChallengeShake, Difficulty: 5},
	}
	if err := s.Load(ctx); err != nil {
		t.Fatal(err)
	}
	a1, ok := s.Get("a1")
	if !ok {
		t.Fatal("a1 missing after load")
	}
	if a1.NotificationID == "" || a1.NotificationID == "stale" {
		t.Error("active alarm must get a fresh handle on load")
	}
	if sched.liveFor("a1") != 1 || sched.liveFor("a2") != 0 {
		t.Error("only active alarms get scheduled on load")
	}
}
