package quest

import (
	"fmt"
	"time"

	"github.com/fentz26/questline/internal/models"
)

// DefaultTimerDuration applies to timer quests created without a duration.
const DefaultTimerDuration = time.Hour

// Input carries the caller-supplied fields common to every quest type.
// Zero values are filled with defaults at creation.
type Input struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Number      string   `json:"number,omitempty"`
	Events      []string `json:"events,omitempty"`
	Creation    int64    `json:"creation,omitempty"`
}

// TimerInput describes a timer quest. Duration wins over Span; when both
// are zero the service default applies.
type TimerInput struct {
	Input
	Duration time.Duration
	Span     models.TimeSpan
}

// SidelineInput describes a sideline quest. An empty Head makes the quest
// the anchor of a new chain.
type SidelineInput struct {
	Input
	Head string
	Dep  []string
}

// builder fills defaults from injected sources so every record leaves it
// fully populated.
type builder struct {
	now          func() time.Time
	newID        func() string
	seq          Sequence
	defaultTimer time.Duration
}

func (b builder) base(t models.QuestType, in Input) (models.Quest, error) {
	q := models.Quest{
		ID:          in.ID,
		Name:        in.Name,
		Description: in.Description,
		Type:        t,
		State:       models.QuestStateInitialization,
		Number:      in.Number,
		Creation:    in.Creation,
		Finish:      models.Unset,
	}
	if q.ID == "" {
		q.ID = b.newID()
	}
	if q.Creation == 0 {
		q.Creation = models.Millis(b.now())
	}
	if q.Number == "" {
		n, err := b.seq.Next(t)
		if err != nil {
			return models.Quest{}, err
		}
		q.Number = n
	}
	q.Events = append([]string{}, in.Events...)
	return q, nil
}

func (b builder) timer(in TimerInput) (models.Quest, error) {
	if in.Duration < 0 {
		return models.Quest{}, fmt.Errorf("%w: negative timer duration", ErrGuardFailed)
	}
	q, err := b.base(models.QuestTypeTimer, in.Input)
	if err != nil {
		return models.Quest{}, err
	}
	d := in.Duration
	if d == 0 {
		d = in.Span.Duration()
	}
	if d == 0 {
		d = b.defaultTimer
	}
	q.Duration = d.Milliseconds()
	q.Start = models.Unset
	return q, nil
}

// sideline fills a sideline record. The anchor of a new chain starts
// immediately with an empty order; a follower waits in INITIALIZATION and
// has no order of its own.
func (b builder) sideline(in SidelineInput) (models.Quest, error) {
	q, err := b.base(models.QuestTypeSideline, in.Input)
	if err != nil {
		return models.Quest{}, err
	}
	q.Head = in.Head
	if q.Head == "" {
		q.Head = q.ID
	}
	if in.Dep != nil {
		q.Dep = append([]string{}, in.Dep...)
	}

	if q.IsAnchor() {
		q.State = models.QuestStateStarted
		q.Start = models.Millis(b.now())
		q.Order = []string{}
	} else {
		q.Start = models.Unset
		q.Order = nil
	}
	return q, nil
}
