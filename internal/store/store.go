package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"smartalarm/internal/config"
	"smartalarm/internal/model"
	"smartalarm/internal/persist"
	"smartalarm/internal/timeutil"
)

// ConfigSource provides the live config. Satisfied by config.Manager.
type ConfigSource interface {
	Get() *config.Config
}

// Scheduler is the external notification service. Schedule returns an
// opaque handle used to cancel the pending fire; delivery of the callback
// near fireAt is the scheduler's concern.
type Scheduler interface {
	Schedule(alarmID string, fireAt time.Time, payload map[string]string) (string, error)
	Cancel(handle string) error
	ListScheduled() []string
}

// EventSink receives lifecycle records. Satisfied by history.Store.
type EventSink interface {
	Add(ev model.AlarmEvent)
}

// UpdateFields carries a partial alarm update; nil fields are left as-is.
type UpdateFields struct {
	Time       *string
	Label      *string
	IsActive   *bool
	Challenge  *model.ChallengeType
	Difficulty *int
}

// Store is the single writer for the alarm collection. Every mutation is
// serialized under one mutex, persists the full collection afterwards, and
// keeps at most one live scheduled-notification handle per alarm.
type Store struct {
	mu      sync.Mutex
	alarms  map[string]model.Alarm
	persist persist.Store
	sched   Scheduler
	events  EventSink
	cfg     ConfigSource
	logger  *slog.Logger

	// Now is the clock used for scheduling decisions, injectable in tests.
	Now func() time.Time
}

func NewStore(p persist.Store, sched Scheduler, events EventSink, cfg ConfigSource, logger *slog.Logger) *Store {
	return &Store{
		alarms:  make(map[string]model.Alarm),
		persist: p,
		sched:   sched,
		events:  events,
		cfg:     cfg,
		logger:  logger,
		Now:     time.Now,
	}
}

// Load hydrates the collection from persistence and re-schedules every
// active alarm. Stale notification handles from a previous run are
// discarded.
func (s *Store) Load(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	alarms, err := s.persist.LoadAlarms(ctx)
	if err != nil {
		return model.Errorf(model.ErrPersistence, "load alarms: %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alarms = make(map[string]model.Alarm, len(alarms))
	for _, a := range alarms {
		a.NotificationID = ""
		if a.IsActive {
			s.scheduleLocked(&a)
		}
		s.alarms[a.ID] = a
	}
	return nil
}

func (s *Store) Create(ctx context.Context, timeOfDay, label string, challenge model.ChallengeType, difficulty int) (model.Alarm, error) {
	if !timeutil.IsValidTime(timeOfDay) {
		return model.Alarm{}, model.Errorf(model.ErrInvalid, "invalid time %q", timeOfDay)
	}
	switch challenge {
	case model.ChallengeMath, model.ChallengeShake:
	default:
		return model.Alarm{}, model.Errorf(model.ErrInvalid, "unknown challenge type %q", challenge)
	}
	if difficulty <= 0 {
		difficulty = model.DefaultDifficulty
	}
	difficulty = s.clampDifficulty(difficulty)

	s.mu.Lock()
	defer s.mu.Unlock()
	a := model.Alarm{
		ID:         uuid.NewString(),
		Time:       timeutil.Normalize(timeOfDay),
		Label:      label,
		IsActive:   true,
		Challenge:  challenge,
		Difficulty: difficulty,
	}
	s.scheduleLocked(&a)
	s.alarms[a.ID] = a
	s.recordLocked(a, model.EventCreated, nil)
	return a, s.persistLocked(ctx)
}

func (s *Store) Update(ctx context.Context, id string, fields UpdateFields) (model.Alarm, error) {
	if fields.Time != nil && !timeutil.IsValidTime(*fields.Time) {
		return model.Alarm{}, model.Errorf(model.ErrInvalid, "invalid time %q", *fields.Time)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alarms[id]
	if !ok {
		return model.Alarm{}, model.Errorf(model.ErrNotFound, "alarm %s", id)
	}

	s.cancelLocked(&a)
	if fields.Time != nil {
		a.Time = timeutil.Normalize(*fields.Time)
	}
	if fields.Label != nil {
		a.Label = *fields.Label
	}
	if fields.IsActive != nil {
		a.IsActive = *fields.IsActive
	}
	if fields.Challenge != nil {
		a.Challenge = *fields.Challenge
	}
	if fields.Difficulty != nil && *fields.Difficulty > 0 {
		a.Difficulty = s.clampDifficulty(*fields.Difficulty)
	}
	if a.IsActive {
		s.scheduleLocked(&a)
	}
	s.alarms[id] = a
	s.recordLocked(a, model.EventUpdated, nil)
	return a, s.persistLocked(ctx)
}

// Toggle flips IsActive. Turning an alarm back on always clears
// IsTriggered so a previously fired alarm is re-armed.
func (s *Store) Toggle(ctx context.Context, id string) (model.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alarms[id]
	if !ok {
		return model.Alarm{}, model.Errorf(model.ErrNotFound, "alarm %s", id)
	}
	a.IsActive = !a.IsActive
	a.IsTriggered = false
	if a.IsActive {
		s.scheduleLocked(&a)
	} else {
		s.cancelLocked(&a)
	}
	s.alarms[id] = a
	s.recordLocked(a, model.EventToggled, map[string]string{"active": boolString(a.IsActive)})
	return a, s.persistLocked(ctx)
}

// Delete is idempotent; removing an unknown id is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alarms[id]
	if !ok {
		return nil
	}
	s.cancelLocked(&a)
	delete(s.alarms, id)
	s.recordLocked(a, model.EventDeleted, nil)
	return s.persistLocked(ctx)
}

func (s *Store) MarkTriggered(ctx context.Context, id string) (model.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alarms[id]
	if !ok {
		return model.Alarm{}, model.Errorf(model.ErrNotFound, "alarm %s", id)
	}
	a.IsTriggered = true
	s.alarms[id] = a
	return a, s.persistLocked(ctx)
}

// Rearm clears IsTriggered after a dismissal and, if the alarm is still
// active, schedules its next occurrence.
func (s *Store) Rearm(ctx context.Context, id string) (model.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alarms[id]
	if !ok {
		return model.Alarm{}, model.Errorf(model.ErrNotFound, "alarm %s", id)
	}
	a.IsTriggered = false
	if a.IsActive {
		s.scheduleLocked(&a)
		s.recordLocked(a, model.EventRearmed, nil)
	}
	s.alarms[id] = a
	return a, s.persistLocked(ctx)
}

func (s *Store) Get(id string) (model.Alarm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alarms[id]
	return a, ok
}

// List returns the collection sorted ascending by time of day.
func (s *Store) List() []model.Alarm {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Alarm, 0, len(s.alarms))
	for _, a := range s.alarms {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return timeutil.Compare(out[i].Time, out[j].Time) < 0
	})
	return out
}

// Scheduled returns the scheduler's live notification handles, for
// diagnostics.
func (s *Store) Scheduled() []string {
	if s.sched == nil {
		return nil
	}
	return s.sched.ListScheduled()
}

func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.alarms {
		if a.IsActive {
			n++
		}
	}
	return n
}

// scheduleLocked arms a notification for the alarm's next occurrence. Any
// existing handle is cancelled first so at most one stays live. Scheduling
// failures are non-fatal: the periodic tick is the fallback fire path.
func (s *Store) scheduleLocked(a *model.Alarm) {
	s.cancelLocked(a)
	if s.sched == nil {
		return
	}
	fireAt, err := timeutil.NextOccurrence(a.Time, s.Now())
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("cannot compute next occurrence", "alarm_id", a.ID, "time", a.Time, "err", err)
		}
		return
	}
	payload := map[string]string{
		"label":     a.Label,
		"challenge": string(a.Challenge),
	}
	handle, err := s.sched.Schedule(a.ID, fireAt, payload)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("schedule failed, relying on tick fallback", "alarm_id", a.ID, "err", err)
		}
		return
	}
	a.NotificationID = handle
	s.recordLocked(*a, model.EventScheduled, map[string]string{"fire_at": fireAt.Format(time.RFC3339)})
}

func (s *Store) cancelLocked(a *model.Alarm) {
	if a.NotificationID == "" {
		return
	}
	if s.sched != nil {
		if err := s.sched.Cancel(a.NotificationID); err != nil && s.logger != nil {
			s.logger.Warn("cancel failed", "alarm_id", a.ID, "handle", a.NotificationID, "err", err)
		}
	}
	a.NotificationID = ""
}

// persistLocked writes the full collection. A failure is logged and
// surfaced with a persistence code, but the in-memory state stays
// authoritative.
func (s *Store) persistLocked(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	alarms := make([]model.Alarm, 0, len(s.alarms))
	for _, a := range s.alarms {
		alarms = append(alarms, a)
	}
	sort.Slice(alarms, func(i, j int) bool {
		return timeutil.Compare(alarms[i].Time, alarms[j].Time) < 0
	})
	if err := s.persist.SaveAlarms(ctx, alarms); err != nil {
		if s.logger != nil {
			s.logger.Warn("persist failed, continuing with in-memory state", "err", err)
		}
		return model.Errorf(model.ErrPersistence, "save alarms: %v", err)
	}
	return nil
}

// clampDifficulty caps difficulty at the configured maximum, bounding how
// many problems a single alarm can demand. A nil config source leaves it
// unbounded.
func (s *Store) clampDifficulty(d int) int {
	if s.cfg == nil {
		return d
	}
	if max := s.cfg.Get().Lifecycle.MaxDifficulty; max > 0 && d > max {
		return max
	}
	return d
}

func (s *Store) recordLocked(a model.Alarm, kind model.EventKind, ctxMap map[string]string) {
	if s.events == nil {
		return
	}
	s.events.Add(model.AlarmEvent{
		Timestamp: s.Now(),
		AlarmID:   a.ID,
		Kind:      kind,
		Time:      a.Time,
		Challenge: a.Challenge,
		Context:   ctxMap,
	})
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
