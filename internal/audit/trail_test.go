package audit

import (
	"path/filepath"
	"testing"

	"github.com/fentz26/questline/internal/models"
	"github.com/fentz26/questline/internal/store"
)

func TestRecordAndHistory(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	w := NewWriter(s)
	entry, err := w.Record("quest.start", models.QuestTypeTimer, "q1", map[string]string{"id": "q1"}, "success", "")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if entry.InputsHash != hashInputs(map[string]string{"id": "q1"}) {
		t.Errorf("Expected inputs hash to be deterministic, got %s", entry.InputsHash)
	}

	history, err := w.History("q1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 || history[0].Action != "quest.start" || history[0].QuestType != models.QuestTypeTimer {
		t.Errorf("Unexpected history: %+v", history)
	}
}

func TestHashInputs(t *testing.T) {
	a := hashInputs(map[string]int{"x": 1})
	b := hashInputs(map[string]int{"x": 1})
	c := hashInputs(map[string]int{"x": 2})
	if a != b {
		t.Error("Expected equal inputs to hash equally")
	}
	if a == c {
		t.Error("Expected different inputs to hash differently")
	}
	if hashInputs(func() {}) != "hash_error" {
		t.Error("Expected hash_error for unmarshalable input")
	}
}
