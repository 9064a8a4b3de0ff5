package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fentz26/questline/internal/models"
)

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNew_InitializesPartitions(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	for _, qt := range models.QuestTypes {
		ok, err := s.Has(qt.Partition())
		if err != nil {
			t.Fatalf("Has failed: %v", err)
		}
		if !ok {
			t.Errorf("Expected partition %s to exist", qt.Partition())
		}
		quests, err := s.ListQuests(qt.Partition(), "")
		if err != nil {
			t.Fatalf("ListQuests failed: %v", err)
		}
		if len(quests) != 0 {
			t.Errorf("Expected empty partition %s, got %d records", qt.Partition(), len(quests))
		}
	}

	v, err := s.GetCounter(models.CounterPartition)
	if err != nil {
		t.Fatalf("GetCounter failed: %v", err)
	}
	if v != 0 {
		t.Errorf("Expected counter 0, got %d", v)
	}

	ok, err := s.Has("nope")
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if ok {
		t.Error("Expected unknown key to be absent")
	}
}

func TestNew_ReopenKeepsCounter(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := s.SetCounter(models.CounterPartition, 41); err != nil {
		t.Fatalf("SetCounter failed: %v", err)
	}
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s.Close()

	v, err := s.GetCounter(models.CounterPartition)
	if err != nil {
		t.Fatalf("GetCounter failed: %v", err)
	}
	if v != 41 {
		t.Errorf("Expected counter 41 after reopen, got %d", v)
	}
}

func TestQuestCRUD(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	partition := models.QuestTypeTimer.Partition()
	q := testQuest(s.CreateID(), models.QuestTypeTimer, "100000000")
	q.Start = models.Unset
	q.Duration = 1000
	q.Events = []string{"e1", "e2"}

	if err := s.PushQuest(partition, q); err != nil {
		t.Fatalf("PushQuest failed: %v", err)
	}

	got, err := s.FindQuest(partition, q.ID)
	if err != nil {
		t.Fatalf("FindQuest failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected quest to be found")
	}
	if got.Name != q.Name || got.Number != q.Number || got.Duration != 1000 || got.Start != models.Unset {
		t.Errorf("Unexpected quest: %+v", got)
	}
	if len(got.Events) != 2 || got.Events[1] != "e2" {
		t.Errorf("Expected events to round trip, got %v", got.Events)
	}
	if got.Order != nil {
		t.Errorf("Expected nil order, got %v", got.Order)
	}

	// Other partitions do not see the record.
	other, err := s.FindQuest(models.QuestTypeClick.Partition(), q.ID)
	if err != nil {
		t.Fatalf("FindQuest failed: %v", err)
	}
	if other != nil {
		t.Error("Expected quest to be scoped to its partition")
	}

	missing, err := s.FindQuest(partition, "missing")
	if err != nil {
		t.Fatalf("FindQuest failed: %v", err)
	}
	if missing != nil {
		t.Error("Expected nil for missing quest")
	}
}

func TestPushQuest_Duplicates(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	partition := models.QuestTypeClick.Partition()
	if err := s.PushQuest(partition, testQuest("a", models.QuestTypeClick, "000000000")); err != nil {
		t.Fatalf("PushQuest failed: %v", err)
	}

	err := s.PushQuest(partition, testQuest("a", models.QuestTypeClick, "000000001"))
	if !errors.Is(err, ErrDuplicateQuest) {
		t.Errorf("Expected ErrDuplicateQuest for id, got %v", err)
	}
	err = s.PushQuest(partition, testQuest("b", models.QuestTypeClick, "000000000"))
	if !errors.Is(err, ErrDuplicateQuest) {
		t.Errorf("Expected ErrDuplicateQuest for number, got %v", err)
	}
}

func TestPushQuest_UnknownPartition(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	err := s.PushQuest("epic_quest", testQuest("a", models.QuestTypeClick, "0"))
	if !errors.Is(err, ErrUnknownPartition) {
		t.Errorf("Expected ErrUnknownPartition, got %v", err)
	}
}

func TestListQuests_OrderAndFilter(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	partition := models.QuestTypeClick.Partition()
	for i := 0; i < 3; i++ {
		q := testQuest(fmt.Sprintf("q%d", i), models.QuestTypeClick, fmt.Sprintf("%09d", i))
		if i == 1 {
			q.State = models.QuestStateCompleted
		}
		if err := s.PushQuest(partition, q); err != nil {
			t.Fatalf("PushQuest failed: %v", err)
		}
	}

	all, err := s.ListQuests(partition, "")
	if err != nil {
		t.Fatalf("ListQuests failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != "q0" || all[2].ID != "q2" {
		t.Errorf("Expected insertion order, got %+v", all)
	}

	done, err := s.ListQuests(partition, models.QuestStateCompleted)
	if err != nil {
		t.Fatalf("ListQuests failed: %v", err)
	}
	if len(done) != 1 || done[0].ID != "q1" {
		t.Errorf("Expected only q1, got %+v", done)
	}
}

func TestTransitionQuest(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	partition := models.QuestTypeClick.Partition()
	q := testQuest("a", models.QuestTypeClick, "000000000")
	if err := s.PushQuest(partition, q); err != nil {
		t.Fatalf("PushQuest failed: %v", err)
	}

	state := models.QuestStateCompleted
	finish := int64(1234)
	updated, err := s.TransitionQuest(partition, "a", models.QuestStateInitialization, models.QuestPatch{State: &state, Finish: &finish})
	if err != nil {
		t.Fatalf("TransitionQuest failed: %v", err)
	}
	if updated.State != models.QuestStateCompleted || updated.Finish != 1234 {
		t.Errorf("Unexpected updated quest: %+v", updated)
	}
	if updated.Name != q.Name || updated.Number != q.Number {
		t.Error("Expected untouched fields to be preserved")
	}

	// Same transition again no longer matches the expected state.
	_, err = s.TransitionQuest(partition, "a", models.QuestStateInitialization, models.QuestPatch{State: &state})
	if !errors.Is(err, ErrStateConflict) {
		t.Errorf("Expected ErrStateConflict, got %v", err)
	}

	_, err = s.TransitionQuest(partition, "missing", models.QuestStateInitialization, models.QuestPatch{State: &state})
	if !errors.Is(err, ErrQuestNotFound) {
		t.Errorf("Expected ErrQuestNotFound, got %v", err)
	}
}

func TestTransitionQuest_ConcurrentWritersSingleWinner(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	partition := models.QuestTypeClick.Partition()
	if err := s.PushQuest(partition, testQuest("a", models.QuestTypeClick, "000000000")); err != nil {
		t.Fatalf("PushQuest failed: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			state := models.QuestStateCompleted
			finish := int64(i)
			_, err := s.TransitionQuest(partition, "a", models.QuestStateInitialization, models.QuestPatch{State: &state, Finish: &finish})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, ErrStateConflict) {
				t.Errorf("Unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("Expected exactly one winning transition, got %d", wins)
	}
}

func TestCreateFollower(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	partition := models.QuestTypeSideline.Partition()
	anchor := testQuest("head", models.QuestTypeSideline, "200000000")
	anchor.Head = "head"
	anchor.Order = []string{}
	anchor.State = models.QuestStateStarted
	if err := s.PushQuest(partition, anchor); err != nil {
		t.Fatalf("PushQuest failed: %v", err)
	}

	for i, id := range []string{"f1", "f2"} {
		f := testQuest(id, models.QuestTypeSideline, fmt.Sprintf("20000000%d", i+1))
		f.Head = "head"
		head, err := s.CreateFollower(partition, f)
		if err != nil {
			t.Fatalf("CreateFollower failed: %v", err)
		}
		if head.Order[len(head.Order)-1] != id {
			t.Errorf("Expected %s appended to order, got %v", id, head.Order)
		}
	}

	got, err := s.FindQuest(partition, "head")
	if err != nil {
		t.Fatalf("FindQuest failed: %v", err)
	}
	if len(got.Order) != 2 || got.Order[0] != "f1" || got.Order[1] != "f2" {
		t.Errorf("Expected order [f1 f2], got %v", got.Order)
	}

	follower, err := s.FindQuest(partition, "f1")
	if err != nil {
		t.Fatalf("FindQuest failed: %v", err)
	}
	if follower == nil || follower.Head != "head" || follower.Order != nil {
		t.Errorf("Unexpected follower: %+v", follower)
	}
}

func TestCreateFollower_MissingHeadWritesNothing(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	partition := models.QuestTypeSideline.Partition()
	f := testQuest("f1", models.QuestTypeSideline, "200000000")
	f.Head = "ghost"

	_, err := s.CreateFollower(partition, f)
	if !errors.Is(err, ErrHeadNotFound) {
		t.Fatalf("Expected ErrHeadNotFound, got %v", err)
	}

	quests, err := s.ListQuests(partition, "")
	if err != nil {
		t.Fatalf("ListQuests failed: %v", err)
	}
	if len(quests) != 0 {
		t.Errorf("Expected no records after failed join, got %d", len(quests))
	}
}

func TestCreateFollower_HeadIsFollower(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	partition := models.QuestTypeSideline.Partition()
	anchor := testQuest("head", models.QuestTypeSideline, "200000000")
	anchor.Head = "head"
	anchor.Order = []string{}
	if err := s.PushQuest(partition, anchor); err != nil {
		t.Fatalf("PushQuest failed: %v", err)
	}
	f1 := testQuest("f1", models.QuestTypeSideline, "200000001")
	f1.Head = "head"
	if _, err := s.CreateFollower(partition, f1); err != nil {
		t.Fatalf("CreateFollower failed: %v", err)
	}

	f2 := testQuest("f2", models.QuestTypeSideline, "200000002")
	f2.Head = "f1"
	if _, err := s.CreateFollower(partition, f2); !errors.Is(err, ErrNotAnchor) {
		t.Errorf("Expected ErrNotAnchor, got %v", err)
	}
}

func TestCounters(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	for want := int64(0); want < 3; want++ {
		got, err := s.NextCounter(models.CounterPartition)
		if err != nil {
			t.Fatalf("NextCounter failed: %v", err)
		}
		if got != want {
			t.Errorf("Expected %d, got %d", want, got)
		}
	}

	v, err := s.GetCounter(models.CounterPartition)
	if err != nil {
		t.Fatalf("GetCounter failed: %v", err)
	}
	if v != 3 {
		t.Errorf("Expected persisted counter 3, got %d", v)
	}

	if _, err := s.NextCounter("nope"); !errors.Is(err, ErrUnknownPartition) {
		t.Errorf("Expected ErrUnknownPartition, got %v", err)
	}
}

func TestTransitions(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	if _, err := s.WriteTransition("a", models.QuestTypeClick, "quest.create", "hash", "success", ""); err != nil {
		t.Fatalf("WriteTransition failed: %v", err)
	}
	if _, err := s.WriteTransition("a", models.QuestTypeClick, "quest.complete", "hash", "failed", "invalid state"); err != nil {
		t.Fatalf("WriteTransition failed: %v", err)
	}

	entries, err := s.ListTransitions("a")
	if err != nil {
		t.Fatalf("ListTransitions failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Action != "quest.create" || entries[1].Details != "invalid state" {
		t.Errorf("Unexpected entries: %+v", entries)
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func testQuest(id string, qt models.QuestType, number string) *models.Quest {
	return &models.Quest{
		ID:       id,
		Name:     "Quest " + id,
		Type:     qt,
		State:    models.QuestStateInitialization,
		Number:   number,
		Events:   []string{},
		Creation: 1000,
		Finish:   models.Unset,
	}
}

func newTestStore(t *testing.T) *Store {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}
