// Package numbering hands out display numbers for quests.
package numbering

import (
	"fmt"

	"github.com/fentz26/questline/internal/models"
)

// Width is the minimum number of digits of the counter part.
const Width = 8

// CounterStore persists the global quest counter.
type CounterStore interface {
	// NextCounter returns the current value and persists value+1.
	NextCounter(name string) (int64, error)
}

// Sequencer builds quest numbers from a counter shared by every quest type.
type Sequencer struct {
	store   CounterStore
	counter string
}

// New creates a Sequencer backed by the quest counter partition.
func New(store CounterStore) *Sequencer {
	return &Sequencer{store: store, counter: models.CounterPartition}
}

// Next returns the type tag followed by the zero-padded counter value and
// advances the counter. Values wider than Width digits are not truncated.
func (s *Sequencer) Next(t models.QuestType) (string, error) {
	n, err := s.store.NextCounter(s.counter)
	if err != nil {
		return "", fmt.Errorf("next quest number: %w", err)
	}
	return Format(t, n), nil
}

// Format renders a quest number for the type and counter value.
func Format(t models.QuestType, n int64) string {
	return fmt.Sprintf("%d%0*d", t.Tag(), Width, n)
}
