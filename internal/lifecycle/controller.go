package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"smartalarm/internal/challenge"
	"smartalarm/internal/config"
	"smartalarm/internal/model"
	"smartalarm/internal/store"
	"smartalarm/internal/timeutil"
)

// ErrWrongAnswers is the normal outcome of a failed answer check; the
// session is retained and the caller re-prompts.
var ErrWrongAnswers = errors.New("one or more answers are wrong")

// ErrNotFiring is returned by challenge operations when no alarm is firing.
var ErrNotFiring = errors.New("no alarm is firing")

// ConfigSource provides the live config. Satisfied by config.Manager, so
// reloads reach the controller without a restart.
type ConfigSource interface {
	Get() *config.Config
}

// AudioPlayer loops the alarm sound while an alarm is firing. Both calls
// must be idempotent.
type AudioPlayer interface {
	PlayLoop(source string)
	Stop()
}

// MotionSensor delivers acceleration magnitude samples while started. Both
// calls must be idempotent.
type MotionSensor interface {
	Start(onSample func(magnitude float64))
	Stop()
}

// Firing is a snapshot of the currently firing alarm and its challenge
// session.
type Firing struct {
	Alarm model.Alarm         `json:"alarm"`
	Math  *model.MathSession  `json:"math,omitempty"`
	Shake *model.ShakeSession `json:"shake,omitempty"`
}

// Controller is the alarm state machine. It reacts to the periodic tick
// and to scheduler callbacks through the single idempotent Fire entry
// point, and drives the challenge session while an alarm is firing. At
// most one alarm fires at a time.
type Controller struct {
	mu      sync.Mutex
	alarms  *store.Store
	engine  *challenge.Engine
	audio   AudioPlayer
	sensor  MotionSensor
	cfg     ConfigSource
	events  store.EventSink
	logger  *slog.Logger
	firing  *Firing

	// Now is injectable for tests.
	Now func() time.Time
}

func NewController(alarms *store.Store, engine *challenge.Engine, audio AudioPlayer, sensor MotionSensor, cfg ConfigSource, events store.EventSink, logger *slog.Logger) *Controller {
	return &Controller{
		alarms: alarms,
		engine: engine,
		audio:  audio,
		sensor: sensor,
		cfg:    cfg,
		events: events,
		logger: logger,
		Now:    time.Now,
	}
}

// Run drives the periodic tick until ctx is done. The tick is the
// in-process backstop for missed scheduler callbacks. The interval is
// re-read after every tick so config reloads take effect.
func (c *Controller) Run(ctx context.Context) {
	interval := c.cfg.Get().Lifecycle.TickInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(ctx)
			if next := c.cfg.Get().Lifecycle.TickInterval; next != interval && next > 0 {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// Tick fires every armed alarm whose time of day matches the current
// minute.
func (c *Controller) Tick(ctx context.Context) {
	current := timeutil.FormatTime(c.Now())
	for _, a := range c.alarms.List() {
		if a.IsActive && !a.IsTriggered && a.Time == current {
			if err := c.Fire(ctx, a.ID); err != nil {
				if c.logger != nil {
					c.logger.Warn("tick fire failed", "alarm_id", a.ID, "err", err)
				}
			}
		}
	}
}

// HandleNotification is the scheduler-callback path into Fire. Unknown ids
// are ignored; the alarm may have been deleted after scheduling.
func (c *Controller) HandleNotification(ctx context.Context, alarmID string) {
	if _, ok := c.alarms.Get(alarmID); !ok {
		if c.logger != nil {
			c.logger.Debug("notification for unknown alarm", "alarm_id", alarmID)
		}
		return
	}
	if err := c.Fire(ctx, alarmID); err != nil && c.logger != nil {
		c.logger.Warn("notification fire failed", "alarm_id", alarmID, "err", err)
	}
}

// Fire transitions an alarm to Firing. It is idempotent: once IsTriggered
// is set, a racing second arrival (tick vs. delivered notification) is a
// no-op and no second session is created.
func (c *Controller) Fire(ctx context.Context, alarmID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.alarms.Get(alarmID)
	if !ok {
		return model.Errorf(model.ErrNotFound, "alarm %s", alarmID)
	}
	if !a.IsActive || a.IsTriggered {
		return nil
	}
	if c.firing != nil {
		if c.firing.Alarm.ID == alarmID {
			return nil
		}
		// Another alarm holds the session; this one stays armed and
		// fires on a later tick.
		if c.logger != nil {
			c.logger.Warn("alarm due while another is firing", "alarm_id", alarmID, "firing", c.firing.Alarm.ID)
		}
		return nil
	}

	a, err := c.alarms.MarkTriggered(ctx, alarmID)
	if err != nil && model.ErrorCode(err) != model.ErrPersistence {
		return err
	}

	cfg := c.cfg.Get()
	c.audio.PlayLoop(cfg.Audio.Source)

	f := &Firing{Alarm: a}
	switch a.Challenge {
	case model.ChallengeShake:
		f.Shake = c.engine.NewShake(a.ID, a.Difficulty)
		c.sensor.Start(c.handleSample)
	default:
		f.Math = c.engine.GenerateMath(a.ID, a.Difficulty)
	}
	c.firing = f

	c.record(a, model.EventFired, nil)
	if c.logger != nil {
		c.logger.Info("alarm firing", "alarm_id", a.ID, "time", a.Time, "challenge", a.Challenge)
	}
	return nil
}

func (c *Controller) record(a model.Alarm, kind model.EventKind, ctxMap map[string]string) {
	if c.events == nil {
		return
	}
	c.events.Add(model.AlarmEvent{
		Timestamp: c.Now(),
		AlarmID:   a.ID,
		Kind:      kind,
		Time:      a.Time,
		Challenge: a.Challenge,
		Context:   ctxMap,
	})
}

// handleSample qualifies one accelerometer sample against the configured
// shake threshold.
func (c *Controller) handleSample(magnitude float64) {
	if magnitude <= c.cfg.Get().Sensor.ShakeThreshold {
		return
	}
	c.RegisterShake(context.Background())
}

// RegisterShake counts one qualifying shake and dismisses the alarm when
// the requirement is met. The required > 0 guard keeps an uninitialized
// session from completing trivially.
func (c *Controller) RegisterShake(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.firing == nil || c.firing.Shake == nil {
		return
	}
	sess := c.firing.Shake
	sess.Current++
	if challenge.IsShakeComplete(sess.Current, sess.Required) {
		c.dismissLocked(ctx, "shake_complete")
	}
}

// UpdateAnswer stores the user's text for one math problem. No validation
// happens until SubmitAnswers.
func (c *Controller) UpdateAnswer(index int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.firing == nil || c.firing.Math == nil {
		return ErrNotFiring
	}
	return challenge.UpdateAnswer(c.firing.Math, index, text)
}

// SubmitAnswers checks the whole set. All answers must be right; a failed
// check keeps the session (typed answers included) for retry.
func (c *Controller) SubmitAnswers(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.firing == nil || c.firing.Math == nil {
		return ErrNotFiring
	}
	if !challenge.CheckAllAnswers(c.firing.Math) {
		return ErrWrongAnswers
	}
	c.dismissLocked(ctx, "math_complete")
	return nil
}

// Dismiss is the manual emergency override; it skips the challenge.
func (c *Controller) Dismiss(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.firing == nil {
		return ErrNotFiring
	}
	c.dismissLocked(ctx, "override")
	return nil
}

// dismissLocked stops audio and shake sampling, destroys the session, and
// re-arms the alarm for its next occurrence if it is still active.
func (c *Controller) dismissLocked(ctx context.Context, reason string) {
	f := c.firing
	c.firing = nil
	c.audio.Stop()
	c.sensor.Stop()

	if _, err := c.alarms.Rearm(ctx, f.Alarm.ID); err != nil {
		if model.ErrorCode(err) == model.ErrNotFound {
			// Deleted while firing; nothing left to re-arm.
			return
		}
		if c.logger != nil {
			c.logger.Warn("rearm after dismiss failed", "alarm_id", f.Alarm.ID, "err", err)
		}
	}
	c.record(f.Alarm, model.EventDismissed, map[string]string{"reason": reason})
	if c.logger != nil {
		c.logger.Info("alarm dismissed", "alarm_id", f.Alarm.ID, "reason", reason)
	}
}

// Teardown clears the live session if it belongs to alarmID. Called after
// an alarm is deleted while firing. Safe to call redundantly.
func (c *Controller) Teardown(alarmID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.firing == nil || c.firing.Alarm.ID != alarmID {
		return
	}
	c.firing = nil
	c.audio.Stop()
	c.sensor.Stop()
}

// Firing returns a deep snapshot of the live session, or nil when no alarm
// is firing.
func (c *Controller) Firing() *Firing {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.firing == nil {
		return nil
	}
	out := &Firing{Alarm: c.firing.Alarm}
	if c.firing.Math != nil {
		m := *c.firing.Math
		m.Problems = append([]model.MathProblem(nil), c.firing.Math.Problems...)
		out.Math = &m
	}
	if c.firing.Shake != nil {
		s := *c.firing.Shake
		out.Shake = &s
	}
	return out
}
