package model

import "time"

type ChallengeType string

const (
	ChallengeMath  ChallengeType = "math"
	ChallengeShake ChallengeType = "shake"
)

// DefaultDifficulty is used when a create request leaves difficulty unset.
// For math alarms difficulty is the number of problems to solve, for shake
// alarms the number of qualifying shakes.
const DefaultDifficulty = 3

type Alarm struct {
	ID             string        `json:"id"`
	Time           string        `json:"time"` // "HH:MM", 24h
	Label          string        `json:"label,omitempty"`
	IsActive       bool          `json:"is_active"`
	Challenge      ChallengeType `json:"challenge"`
	Difficulty     int           `json:"difficulty"`
	IsTriggered    bool          `json:"is_triggered"`
	NotificationID string        `json:"notification_id,omitempty"`
}

type MathProblem struct {
	Question   string `json:"question"` // "12 + 7"
	Answer     int    `json:"answer"`
	UserAnswer string `json:"user_answer"`
}

// MathSession lives only while a math alarm is firing.
type MathSession struct {
	AlarmID  string        `json:"alarm_id"`
	Problems []MathProblem `json:"problems"`
}

// ShakeSession lives only while a shake alarm is firing.
type ShakeSession struct {
	AlarmID  string `json:"alarm_id"`
	Required int    `json:"required"`
	Current  int    `json:"current"`
}

type EventKind string

const (
	EventCreated   EventKind = "created"
	EventUpdated   EventKind = "updated"
	EventToggled   EventKind = "toggled"
	EventDeleted   EventKind = "deleted"
	EventScheduled EventKind = "scheduled"
	EventFired     EventKind = "fired"
	EventDismissed EventKind = "dismissed"
	EventRearmed   EventKind = "rearmed"
)

// AlarmEvent is a lifecycle record kept for diagnostics and, when enabled,
// published to the event stream.
type AlarmEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	AlarmID   string            `json:"alarm_id"`
	Kind      EventKind         `json:"kind"`
	Time      string            `json:"time,omitempty"`
	Challenge ChallengeType     `json:"challenge,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
}
