// Package models defines the core domain types for questline.
package models

import (
	"fmt"
	"strings"
	"time"
)

// QuestType identifies the kind of a quest. The numeric value is the tag
// used as the prefix of a quest number.
type QuestType int

const (
	QuestTypeClick QuestType = iota
	QuestTypeTimer
	QuestTypeSideline
	QuestTypeMainline
	QuestTypeActivity
	QuestTypeDaily
	QuestTypeWeekly
	QuestTypeMonthly
)

// QuestTypes lists every known quest type in tag order.
var QuestTypes = []QuestType{
	QuestTypeClick,
	QuestTypeTimer,
	QuestTypeSideline,
	QuestTypeMainline,
	QuestTypeActivity,
	QuestTypeDaily,
	QuestTypeWeekly,
	QuestTypeMonthly,
}

var partitions = map[QuestType]string{
	QuestTypeClick:    "click_quest",
	QuestTypeTimer:    "timer_quest",
	QuestTypeSideline: "sideline_quest",
	QuestTypeMainline: "mainline_quest",
	QuestTypeActivity: "activity_quest",
	QuestTypeDaily:    "daily_quest",
	QuestTypeWeekly:   "weekly_quest",
	QuestTypeMonthly:  "monthly_quest",
}

// CounterPartition is the scalar partition holding the global quest counter.
const CounterPartition = "quest_number"

// Partition returns the storage partition name for the type.
func (t QuestType) Partition() string {
	return partitions[t]
}

// Tag returns the numeric tag used to prefix quest numbers.
func (t QuestType) Tag() int {
	return int(t)
}

// Valid reports whether t is one of the known quest types.
func (t QuestType) Valid() bool {
	_, ok := partitions[t]
	return ok
}

// String returns the short name of the type ("click", "timer", ...).
func (t QuestType) String() string {
	if p, ok := partitions[t]; ok {
		return strings.TrimSuffix(p, "_quest")
	}
	return fmt.Sprintf("QuestType(%d)", int(t))
}

// ParseQuestType accepts either the short name ("timer") or the partition
// name ("timer_quest").
func ParseQuestType(s string) (QuestType, error) {
	name := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "_quest")
	for _, t := range QuestTypes {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown quest type %q", s)
}

// QuestState represents the current lifecycle state of a quest.
type QuestState string

const (
	QuestStateInitialization QuestState = "initialization"
	QuestStateStarted        QuestState = "started"
	QuestStateCompleted      QuestState = "completed"
	QuestStateFailed         QuestState = "failed"
)

// Terminal reports whether no further transition can leave the state.
func (s QuestState) Terminal() bool {
	return s == QuestStateCompleted || s == QuestStateFailed
}

// Valid reports whether s is a known state.
func (s QuestState) Valid() bool {
	switch s {
	case QuestStateInitialization, QuestStateStarted, QuestStateCompleted, QuestStateFailed:
		return true
	}
	return false
}

// Unset marks a timestamp that has not happened yet.
const Unset int64 = -1

// Quest is the persisted record shared by every quest type. Variant fields
// are only meaningful for the types noted next to them.
type Quest struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Type        QuestType  `json:"type"`
	State       QuestState `json:"state"`
	Number      string     `json:"number"`
	Events      []string   `json:"events"`
	Creation    int64      `json:"creation"`
	Finish      int64      `json:"finish"`

	// Timer and sideline.
	Start int64 `json:"start,omitempty"`
	// Timer, in milliseconds.
	Duration int64 `json:"duration,omitempty"`

	// Sideline.
	Head  string   `json:"head,omitempty"`
	Order []string `json:"order,omitempty"`
	Dep   []string `json:"dep,omitempty"`
}

// IsAnchor reports whether a sideline quest heads its own chain.
func (q *Quest) IsAnchor() bool {
	return q.Type == QuestTypeSideline && q.Head == q.ID
}

// Deadline returns the last millisecond at which a started timer quest may
// still complete.
func (q *Quest) Deadline() int64 {
	return q.Start + q.Duration
}

// QuestPatch holds the fields a transition merges into a stored record.
// Nil fields are left untouched.
type QuestPatch struct {
	State  *QuestState
	Start  *int64
	Finish *int64
	Order  *[]string
}

// Apply merges the patch into q.
func (p QuestPatch) Apply(q *Quest) {
	if p.State != nil {
		q.State = *p.State
	}
	if p.Start != nil {
		q.Start = *p.Start
	}
	if p.Finish != nil {
		q.Finish = *p.Finish
	}
	if p.Order != nil {
		q.Order = append([]string(nil), (*p.Order)...)
	}
}

// TimeSpan is a coarse duration for timer quests.
type TimeSpan struct {
	Days    int `json:"days,omitempty" yaml:"days"`
	Hours   int `json:"hours,omitempty" yaml:"hours"`
	Minutes int `json:"minutes,omitempty" yaml:"minutes"`
	Seconds int `json:"seconds,omitempty" yaml:"seconds"`
}

// IsZero reports whether no component of the span is set.
func (s TimeSpan) IsZero() bool {
	return s == TimeSpan{}
}

// Duration converts the span to a time.Duration.
func (s TimeSpan) Duration() time.Duration {
	return time.Duration(s.Days)*24*time.Hour +
		time.Duration(s.Hours)*time.Hour +
		time.Duration(s.Minutes)*time.Minute +
		time.Duration(s.Seconds)*time.Second
}

// Transition is an audit entry for a lifecycle operation on a quest.
type Transition struct {
	ID         string    `json:"id"`
	QuestID    string    `json:"quest_id"`
	QuestType  QuestType `json:"quest_type"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Millis converts t to Unix milliseconds, the unit of every quest timestamp.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
