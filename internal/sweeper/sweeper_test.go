package sweeper

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/fentz26/questline/internal/events"
	"github.com/fentz26/questline/internal/models"
	"github.com/fentz26/questline/internal/numbering"
	"github.com/fentz26/questline/internal/quest"
	"github.com/fentz26/questline/internal/store"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newTestService(t *testing.T) (*quest.Service, *clock, *events.Registry) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	c := &clock{t: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	reg := events.NewRegistry(time.Hour, events.WithClock(c.Now))
	return quest.NewService(st, reg, numbering.New(st), quest.WithClock(c.Now)), c, reg
}

func TestSweep_FailsOnlyOverdueTimers(t *testing.T) {
	svc, c, reg := newTestService(t)

	var notified []string
	reg.Register("timeout", func(q models.Quest) { notified = append(notified, q.ID) }, 0)

	short, _ := svc.CreateTimer(quest.TimerInput{Input: quest.Input{Name: "short", Events: []string{"timeout"}}, Duration: time.Second})
	long, _ := svc.CreateTimer(quest.TimerInput{Input: quest.Input{Name: "long"}, Duration: time.Hour})
	idle, _ := svc.CreateTimer(quest.TimerInput{Input: quest.Input{Name: "idle"}, Duration: time.Second})
	for _, q := range []*models.Quest{short, long} {
		if _, err := svc.StartTimer(q.ID); err != nil {
			t.Fatalf("StartTimer failed: %v", err)
		}
	}
	notified = nil

	sw := New(svc, "@every 1m")
	c.t = c.t.Add(2 * time.Second)

	if n := sw.Sweep(); n != 1 {
		t.Fatalf("Expected 1 failed timer, got %d", n)
	}

	got, _ := svc.Find(models.QuestTypeTimer, short.ID)
	if got.State != models.QuestStateFailed {
		t.Errorf("Expected overdue timer failed, got %s", got.State)
	}
	got, _ = svc.Find(models.QuestTypeTimer, long.ID)
	if got.State != models.QuestStateStarted {
		t.Errorf("Expected running timer untouched, got %s", got.State)
	}
	got, _ = svc.Find(models.QuestTypeTimer, idle.ID)
	if got.State != models.QuestStateInitialization {
		t.Errorf("Expected unstarted timer untouched, got %s", got.State)
	}
	if len(notified) != 1 || notified[0] != short.ID {
		t.Errorf("Expected failure notification for %s, got %v", short.ID, notified)
	}

	// Nothing left to do on the next run.
	if n := sw.Sweep(); n != 0 {
		t.Errorf("Expected idempotent sweep, got %d", n)
	}
	stats := sw.GetStats()
	if stats.Runs != 2 || stats.Failed != 1 || stats.LastErr != "" {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

type brokenLifecycle struct{}

func (brokenLifecycle) List(models.QuestType, models.QuestState) ([]models.Quest, error) {
	return nil, errors.New("db closed")
}
func (brokenLifecycle) FailTimer(string) (*models.Quest, error) { return nil, nil }
func (brokenLifecycle) Now() int64                              { return 0 }

func TestSweep_ListError(t *testing.T) {
	sw := New(brokenLifecycle{}, "@every 1m")
	if n := sw.Sweep(); n != 0 {
		t.Errorf("Expected 0, got %d", n)
	}
	if sw.GetStats().LastErr != "db closed" {
		t.Errorf("Expected last error to be recorded, got %+v", sw.GetStats())
	}
}

func TestStart_InvalidSchedule(t *testing.T) {
	sw := New(brokenLifecycle{}, "whenever")
	if err := sw.Start(); err == nil {
		t.Error("Expected error for invalid schedule")
	}
}

func TestStartStop(t *testing.T) {
	sw := New(brokenLifecycle{}, "@every 1h")
	if err := sw.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	sw.Stop()
}
