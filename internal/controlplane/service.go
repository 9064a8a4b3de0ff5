// Package controlplane provides the HTTP API and service layer for questline.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/fentz26/questline/internal/audit"
	"github.com/fentz26/questline/internal/events"
	"github.com/fentz26/questline/internal/models"
	"github.com/fentz26/questline/internal/quest"
	"github.com/fentz26/questline/internal/store"
)

// DefaultWebhookTimeout bounds a single webhook delivery.
const DefaultWebhookTimeout = 5 * time.Second

// Service provides the control plane business logic.
type Service struct {
	quests *quest.Service
	audit  *audit.Writer
	store  *store.Store
	client *http.Client
}

// NewService creates a new control plane service.
func NewService(quests *quest.Service, trail *audit.Writer, st *store.Store) *Service {
	return &Service{
		quests: quests,
		audit:  trail,
		store:  st,
		client: &http.Client{Timeout: DefaultWebhookTimeout},
	}
}

// CreateRequest is the body of a quest creation call. Timer and sideline
// fields are ignored for other types.
type CreateRequest struct {
	quest.Input
	DurationMS int64           `json:"duration_ms,omitempty"`
	Span       models.TimeSpan `json:"span"`
	Head       string          `json:"head,omitempty"`
	Dep        []string        `json:"dep,omitempty"`
}

// --- Quest Operations ---

// CreateQuest creates a quest of type t.
func (s *Service) CreateQuest(t models.QuestType, req CreateRequest) (*models.Quest, error) {
	switch t {
	case models.QuestTypeTimer:
		return s.quests.CreateTimer(quest.TimerInput{
			Input:    req.Input,
			Duration: time.Duration(req.DurationMS) * time.Millisecond,
			Span:     req.Span,
		})
	case models.QuestTypeSideline:
		return s.quests.CreateSideline(quest.SidelineInput{
			Input: req.Input,
			Head:  req.Head,
			Dep:   req.Dep,
		})
	}
	return s.quests.Create(t, req.Input)
}

// GetQuest retrieves a quest by type and ID.
func (s *Service) GetQuest(t models.QuestType, id string) (*models.Quest, error) {
	return s.quests.Find(t, id)
}

// ListQuests returns the quests of a type, optionally filtered by state.
func (s *Service) ListQuests(t models.QuestType, state models.QuestState) ([]models.Quest, error) {
	return s.quests.List(t, state)
}

// Advance runs a lifecycle action (start, complete or fail) on a quest.
func (s *Service) Advance(t models.QuestType, id, action string) (*models.Quest, error) {
	switch action {
	case "start":
		return s.quests.Start(t, id)
	case "complete":
		return s.quests.Complete(t, id)
	case "fail":
		return s.quests.Fail(t, id)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
}

// Chain returns the sideline chain a quest belongs to.
func (s *Service) Chain(id string) ([]models.Quest, error) {
	return s.quests.Chain(id)
}

// History returns the audit trail of a quest.
func (s *Service) History(id string) ([]models.Transition, error) {
	return s.audit.History(id)
}

// Ping checks the database.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- Listeners ---

// Notification is the body posted to a webhook listener.
type Notification struct {
	Key   string       `json:"key"`
	Quest models.Quest `json:"quest"`
	Sent  int64        `json:"sent"`
}

// RegisterWebhook attaches a listener that posts each notification for key
// to target. It reports false when a live listener already holds the key.
func (s *Service) RegisterWebhook(key, target string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false, fmt.Errorf("%w: %q", ErrInvalidURL, target)
	}
	return s.quests.Register(key, s.webhook(key, u.String()), ttl), nil
}

// webhook delivers on its own goroutine so a slow endpoint never holds up
// the transition that triggered it.
func (s *Service) webhook(key, target string) events.Listener {
	return func(q models.Quest) {
		body, err := json.Marshal(Notification{Key: key, Quest: q, Sent: s.quests.Now()})
		if err != nil {
			slog.Warn("webhook: encode notification", slog.String("key", key), slog.Any("error", err))
			return
		}
		go s.deliver(key, target, body)
	}
}

func (s *Service) deliver(key, target string, body []byte) {
	resp, err := s.client.Post(target, "application/json", bytes.NewReader(body))
	if err != nil {
		slog.Warn("webhook delivery failed",
			slog.String("key", key),
			slog.String("url", target),
			slog.Any("error", err))
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		slog.Warn("webhook rejected notification",
			slog.String("key", key),
			slog.String("url", target),
			slog.Int("status", resp.StatusCode))
		return
	}
	slog.Debug("webhook delivered", slog.String("key", key), slog.String("url", target))
}
