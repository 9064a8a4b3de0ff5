// Package sweeper runs the scheduled job that fails overdue timer quests.
package sweeper

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fentz26/questline/internal/models"
	"github.com/fentz26/questline/internal/quest"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Lifecycle is the subset of the quest service the sweeper drives.
type Lifecycle interface {
	List(t models.QuestType, state models.QuestState) ([]models.Quest, error)
	FailTimer(id string) (*models.Quest, error)
	Now() int64
}

// Stats summarizes the sweeper's work so far.
type Stats struct {
	Schedule string    `json:"schedule"`
	Runs     int       `json:"runs"`
	Failed   int       `json:"failed"`
	LastRun  time.Time `json:"last_run,omitempty"`
	LastErr  string    `json:"last_error,omitempty"`
}

// Sweeper periodically fails started timer quests whose window has passed,
// through the regular fail operation so their listeners are notified.
type Sweeper struct {
	svc      Lifecycle
	schedule string
	cron     *cron.Cron

	mu    sync.Mutex
	stats Stats
}

// New creates a sweeper for a standard cron schedule ("@every 30s",
// "*/5 * * * *").
func New(svc Lifecycle, schedule string) *Sweeper {
	return &Sweeper{
		svc:      svc,
		schedule: schedule,
		cron:     cron.New(),
		stats:    Stats{Schedule: schedule},
	}
}

// Start schedules the sweep job.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.Sweep() }); err != nil {
		return fmt.Errorf("sweeper: schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	slog.Info("sweeper started", slog.String("schedule", s.schedule))
	return nil
}

// Stop stops scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("sweeper stopped")
}

// Sweep fails every overdue started timer quest and returns how many were
// failed.
func (s *Sweeper) Sweep() int {
	runID := uuid.New().String()
	started, err := s.svc.List(models.QuestTypeTimer, models.QuestStateStarted)
	if err != nil {
		slog.Error("sweeper: list started timers", slog.String("run_id", runID), slog.Any("error", err))
		s.finish(0, err)
		return 0
	}

	now := s.svc.Now()
	failed := 0
	var lastErr error
	for _, q := range started {
		if now <= q.Deadline() {
			continue
		}
		_, err := s.svc.FailTimer(q.ID)
		switch {
		case err == nil:
			failed++
			slog.Info("sweeper failed overdue timer",
				slog.String("run_id", runID),
				slog.String("quest_id", q.ID),
				slog.String("number", q.Number))
		case errors.Is(err, quest.ErrInvalidState):
			// Completed or failed by a caller since the listing.
		default:
			lastErr = err
			slog.Warn("sweeper: fail timer",
				slog.String("run_id", runID),
				slog.String("quest_id", q.ID),
				slog.Any("error", err))
		}
	}
	s.finish(failed, lastErr)
	return failed
}

func (s *Sweeper) finish(failed int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Runs++
	s.stats.Failed += failed
	s.stats.LastRun = time.Now().UTC()
	s.stats.LastErr = ""
	if err != nil {
		s.stats.LastErr = err.Error()
	}
}

// GetStats returns current sweeper statistics.
func (s *Sweeper) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
