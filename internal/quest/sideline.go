package quest

import (
	"errors"
	"fmt"

	"github.com/fentz26/questline/internal/models"
	"github.com/fentz26/questline/internal/store"
)

// CreateSideline creates a sideline quest. Without a head the quest anchors
// a new chain and starts at once. With a head the quest joins that chain:
// its id is appended to the anchor's order in the same write that stores
// the follower, and nothing is written if the anchor is missing.
func (s *Service) CreateSideline(in SidelineInput) (*models.Quest, error) {
	partition := models.QuestTypeSideline.Partition()

	if in.Head != "" && in.Head != in.ID {
		// Checked before a quest number is allocated.
		head, err := s.store.FindQuest(partition, in.Head)
		if err != nil {
			return nil, err
		}
		if head == nil {
			err := fmt.Errorf("%w: sideline head %s", ErrMissingDependency, in.Head)
			s.record("quest.create", models.QuestTypeSideline, in.ID, in, err)
			return nil, err
		}
	}

	q, err := s.build.sideline(in)
	if err != nil {
		return nil, err
	}
	if q.IsAnchor() {
		return s.push(&q, in)
	}

	if _, err := s.store.CreateFollower(partition, &q); err != nil {
		switch {
		case errors.Is(err, store.ErrHeadNotFound):
			err = fmt.Errorf("%w: sideline head %s", ErrMissingDependency, q.Head)
		case errors.Is(err, store.ErrNotAnchor):
			err = fmt.Errorf("%w: sideline head %s is not a chain anchor", ErrMissingDependency, q.Head)
		case errors.Is(err, store.ErrDuplicateQuest):
			err = fmt.Errorf("%w: %s %s", ErrDuplicate, q.Type, q.ID)
		}
		s.record("quest.create", q.Type, q.ID, in, err)
		return nil, err
	}
	s.record("quest.create", q.Type, q.ID, in, nil)
	return &q, nil
}

// Chain returns the anchor of the chain q belongs to followed by its
// followers in arrival order.
func (s *Service) Chain(id string) ([]models.Quest, error) {
	q, err := s.Find(models.QuestTypeSideline, id)
	if err != nil {
		return nil, err
	}
	anchor := q
	if !q.IsAnchor() {
		anchor, err = s.Find(models.QuestTypeSideline, q.Head)
		if err != nil {
			return nil, fmt.Errorf("%w: sideline head %s", ErrMissingDependency, q.Head)
		}
	}

	chain := []models.Quest{*anchor}
	for _, fid := range anchor.Order {
		f, err := s.Find(models.QuestTypeSideline, fid)
		if err != nil {
			return nil, err
		}
		chain = append(chain, *f)
	}
	return chain, nil
}

// CompleteSideline is not defined for sideline chains yet: it is unclear
// whether an anchor may complete before its followers.
func (s *Service) CompleteSideline(id string) error {
	return fmt.Errorf("%w: complete sideline quest %s", ErrNotSupported, id)
}
