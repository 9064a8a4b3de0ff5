// Package quest implements the quest lifecycle: per-type creation, the
// validated state transitions, and listener notification after each
// transition.
package quest

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fentz26/questline/internal/events"
	"github.com/fentz26/questline/internal/models"
	"github.com/fentz26/questline/internal/store"
)

// Store is the persistence the lifecycle needs.
type Store interface {
	CreateID() string
	FindQuest(partition, id string) (*models.Quest, error)
	ListQuests(partition string, state models.QuestState) ([]models.Quest, error)
	PushQuest(partition string, q *models.Quest) error
	TransitionQuest(partition, id string, expected models.QuestState, patch models.QuestPatch) (*models.Quest, error)
	CreateFollower(partition string, follower *models.Quest) (*models.Quest, error)
}

// Sequence allocates quest numbers.
type Sequence interface {
	Next(t models.QuestType) (string, error)
}

// Recorder keeps an audit trail of lifecycle operations.
type Recorder interface {
	Record(action string, questType models.QuestType, questID string, inputs any, outcome, details string) (*models.Transition, error)
}

// Service provides the quest lifecycle operations.
type Service struct {
	store    Store
	registry *events.Registry
	recorder Recorder
	build    builder
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.build.now = now }
}

// WithIDGenerator replaces the store's id generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.build.newID = newID }
}

// WithRecorder enables the audit trail.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithDefaultTimer sets the duration of timer quests created without one.
func WithDefaultTimer(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.build.defaultTimer = d
		}
	}
}

// NewService creates a lifecycle service. The registry is owned by the
// caller and shared by every operation of the service.
func NewService(st Store, registry *events.Registry, seq Sequence, opts ...Option) *Service {
	s := &Service{
		store:    st,
		registry: registry,
		build: builder{
			now:          time.Now,
			newID:        st.CreateID,
			seq:          seq,
			defaultTimer: DefaultTimerDuration,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the listener registry used for notifications.
func (s *Service) Registry() *events.Registry {
	return s.registry
}

// Register attaches a listener to an event key. See events.Registry.Register.
func (s *Service) Register(key string, listener events.Listener, ttl time.Duration) bool {
	return s.registry.Register(key, listener, ttl)
}

// Now returns the service clock in quest milliseconds.
func (s *Service) Now() int64 {
	return models.Millis(s.build.now())
}

// --- Queries ---

// Find returns the quest with id in the partition of t.
func (s *Service) Find(t models.QuestType, id string) (*models.Quest, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown quest type %d", ErrNotSupported, int(t))
	}
	q, err := s.store.FindQuest(t.Partition(), id)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, t, id)
	}
	return q, nil
}

// List returns the quests of type t, optionally filtered by state.
func (s *Service) List(t models.QuestType, state models.QuestState) ([]models.Quest, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown quest type %d", ErrNotSupported, int(t))
	}
	return s.store.ListQuests(t.Partition(), state)
}

// --- Creation ---

// Create creates a quest of any type from the common input. Timer quests
// get the default duration and sideline quests become chain anchors.
func (s *Service) Create(t models.QuestType, in Input) (*models.Quest, error) {
	switch t {
	case models.QuestTypeTimer:
		return s.CreateTimer(TimerInput{Input: in})
	case models.QuestTypeSideline:
		return s.CreateSideline(SidelineInput{Input: in})
	}
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown quest type %d", ErrNotSupported, int(t))
	}
	q, err := s.build.base(t, in)
	if err != nil {
		return nil, err
	}
	return s.push(&q, in)
}

// CreateClick creates a click quest.
func (s *Service) CreateClick(in Input) (*models.Quest, error) {
	return s.Create(models.QuestTypeClick, in)
}

// CreateMainline creates a mainline quest. Mainline quests have no
// lifecycle operations beyond creation.
func (s *Service) CreateMainline(in Input) (*models.Quest, error) {
	return s.Create(models.QuestTypeMainline, in)
}

// CreateActivity creates an activity quest.
func (s *Service) CreateActivity(in Input) (*models.Quest, error) {
	return s.Create(models.QuestTypeActivity, in)
}

// CreateDaily creates a daily quest.
func (s *Service) CreateDaily(in Input) (*models.Quest, error) {
	return s.Create(models.QuestTypeDaily, in)
}

// CreateWeekly creates a weekly quest.
func (s *Service) CreateWeekly(in Input) (*models.Quest, error) {
	return s.Create(models.QuestTypeWeekly, in)
}

// CreateMonthly creates a monthly quest.
func (s *Service) CreateMonthly(in Input) (*models.Quest, error) {
	return s.Create(models.QuestTypeMonthly, in)
}

// CreateTimer creates a timer quest.
func (s *Service) CreateTimer(in TimerInput) (*models.Quest, error) {
	q, err := s.build.timer(in)
	if err != nil {
		return nil, err
	}
	return s.push(&q, in)
}

func (s *Service) push(q *models.Quest, inputs any) (*models.Quest, error) {
	if err := s.store.PushQuest(q.Type.Partition(), q); err != nil {
		if errors.Is(err, store.ErrDuplicateQuest) {
			err = fmt.Errorf("%w: %s %s", ErrDuplicate, q.Type, q.ID)
		}
		s.record("quest.create", q.Type, q.ID, inputs, err)
		return nil, err
	}
	s.record("quest.create", q.Type, q.ID, inputs, nil)
	slog.Debug("quest created",
		slog.String("quest_id", q.ID),
		slog.String("type", q.Type.String()),
		slog.String("number", q.Number))
	return q, nil
}

// --- Transitions ---

// guardFunc inspects the current record at time now. It returns the patch
// to apply, or nil to reject the transition. A patch returned together
// with an error is applied and notified, and the error is still reported.
type guardFunc func(q *models.Quest, now int64) (*models.QuestPatch, error)

// transition runs one lifecycle operation: lookup, guard, conditional
// write, dispatch.
func (s *Service) transition(t models.QuestType, id, action string, guard guardFunc) (*models.Quest, error) {
	inputs := map[string]string{"id": id}

	q, err := s.store.FindQuest(t.Partition(), id)
	if err != nil {
		return nil, err
	}
	if q == nil {
		err := fmt.Errorf("%w: %s %s", ErrNotFound, t, id)
		s.record(action, t, id, inputs, err)
		return nil, err
	}

	now := models.Millis(s.build.now())
	patch, guardErr := guard(q, now)
	if patch == nil {
		s.record(action, t, id, inputs, guardErr)
		return nil, guardErr
	}

	updated, err := s.store.TransitionQuest(t.Partition(), id, q.State, *patch)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrStateConflict):
			err = fmt.Errorf("%w: %s %s changed state concurrently", ErrInvalidState, t, id)
		case errors.Is(err, store.ErrQuestNotFound):
			err = fmt.Errorf("%w: %s %s", ErrNotFound, t, id)
		}
		s.record(action, t, id, inputs, err)
		return nil, err
	}

	s.record(action, t, id, inputs, guardErr)
	s.notify(updated)
	return updated, guardErr
}

func (s *Service) notify(q *models.Quest) {
	if len(q.Events) == 0 {
		return
	}
	n := s.registry.Dispatch(q.Events, *q)
	slog.Debug("quest events dispatched",
		slog.String("quest_id", q.ID),
		slog.String("state", string(q.State)),
		slog.Int("events", len(q.Events)),
		slog.Int("delivered", n))
}

func (s *Service) record(action string, t models.QuestType, id string, inputs any, err error) {
	if s.recorder == nil {
		return
	}
	outcome, details := "success", ""
	if err != nil {
		outcome, details = "failed", err.Error()
	}
	if _, rerr := s.recorder.Record(action, t, id, inputs, outcome, details); rerr != nil {
		slog.Warn("failed to record transition",
			slog.String("action", action),
			slog.String("quest_id", id),
			slog.Any("error", rerr))
	}
}

func requireState(q *models.Quest, want models.QuestState) error {
	if q.State != want {
		return fmt.Errorf("%w: %s %s is %s, want %s", ErrInvalidState, q.Type, q.ID, q.State, want)
	}
	return nil
}

func terminal(state models.QuestState, now int64) *models.QuestPatch {
	return &models.QuestPatch{State: &state, Finish: &now}
}

// CompleteClick moves a click quest from INITIALIZATION to COMPLETED.
func (s *Service) CompleteClick(id string) (*models.Quest, error) {
	return s.transition(models.QuestTypeClick, id, "quest.complete", func(q *models.Quest, now int64) (*models.QuestPatch, error) {
		if err := requireState(q, models.QuestStateInitialization); err != nil {
			return nil, err
		}
		return terminal(models.QuestStateCompleted, now), nil
	})
}

// StartTimer moves a timer quest from INITIALIZATION to STARTED and starts
// its window.
func (s *Service) StartTimer(id string) (*models.Quest, error) {
	return s.transition(models.QuestTypeTimer, id, "quest.start", func(q *models.Quest, now int64) (*models.QuestPatch, error) {
		if err := requireState(q, models.QuestStateInitialization); err != nil {
			return nil, err
		}
		started := models.QuestStateStarted
		return &models.QuestPatch{State: &started, Start: &now}, nil
	})
}

// CompleteTimer completes a started timer quest inside its window. Past
// the window the quest is marked FAILED, listeners are notified of the
// failure and ErrTimerExpired is returned alongside the failed record.
func (s *Service) CompleteTimer(id string) (*models.Quest, error) {
	return s.transition(models.QuestTypeTimer, id, "quest.complete", func(q *models.Quest, now int64) (*models.QuestPatch, error) {
		if err := requireState(q, models.QuestStateStarted); err != nil {
			return nil, err
		}
		if now > q.Deadline() {
			return terminal(models.QuestStateFailed, now), ErrTimerExpired
		}
		return terminal(models.QuestStateCompleted, now), nil
	})
}

// FailTimer marks a started timer quest FAILED once its window has passed.
func (s *Service) FailTimer(id string) (*models.Quest, error) {
	return s.transition(models.QuestTypeTimer, id, "quest.fail", func(q *models.Quest, now int64) (*models.QuestPatch, error) {
		if err := requireState(q, models.QuestStateStarted); err != nil {
			return nil, err
		}
		if now <= q.Deadline() {
			return nil, ErrTimerRunning
		}
		return terminal(models.QuestStateFailed, now), nil
	})
}

// Start dispatches the start operation for the quest type.
func (s *Service) Start(t models.QuestType, id string) (*models.Quest, error) {
	if t == models.QuestTypeTimer {
		return s.StartTimer(id)
	}
	return nil, fmt.Errorf("%w: start %s quest", ErrNotSupported, t)
}

// Complete dispatches the complete operation for the quest type.
func (s *Service) Complete(t models.QuestType, id string) (*models.Quest, error) {
	switch t {
	case models.QuestTypeClick:
		return s.CompleteClick(id)
	case models.QuestTypeTimer:
		return s.CompleteTimer(id)
	case models.QuestTypeSideline:
		return nil, s.CompleteSideline(id)
	}
	return nil, fmt.Errorf("%w: complete %s quest", ErrNotSupported, t)
}

// Fail dispatches the fail operation for the quest type.
func (s *Service) Fail(t models.QuestType, id string) (*models.Quest, error) {
	if t == models.QuestTypeTimer {
		return s.FailTimer(id)
	}
	return nil, fmt.Errorf("%w: fail %s quest", ErrNotSupported, t)
}
