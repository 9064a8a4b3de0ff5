// Package audit keeps the transition audit trail for questline.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/fentz26/questline/internal/models"
	"github.com/fentz26/questline/internal/store"
)

// Writer writes transition records for every lifecycle operation.
type Writer struct {
	store *store.Store
}

// NewWriter creates a new audit writer.
func NewWriter(s *store.Store) *Writer {
	return &Writer{store: s}
}

// Record writes an entry for a lifecycle operation on a quest.
func (w *Writer) Record(action string, questType models.QuestType, questID string, inputs any, outcome, details string) (*models.Transition, error) {
	return w.store.WriteTransition(questID, questType, action, hashInputs(inputs), outcome, details)
}

// History returns the recorded operations of a quest, oldest first.
func (w *Writer) History(questID string) ([]models.Transition, error) {
	return w.store.ListTransitions(questID)
}

// hashInputs creates a SHA256 hash of the inputs for reproducibility.
func hashInputs(inputs any) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
