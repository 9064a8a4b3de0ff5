package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fentz26/questline/internal/models"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// Client wraps HTTP calls to the questline API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client with timeout
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

// ListQuests fetches the quests of a type, optionally filtered by state
func (c *Client) ListQuests(t models.QuestType, state models.QuestState) ([]models.Quest, error) {
	path := "/quests/" + t.String()
	if state != "" {
		path += "?state=" + url.QueryEscape(string(state))
	}
	var quests []models.Quest
	if err := c.get(path, &quests); err != nil {
		return nil, err
	}
	return quests, nil
}

// GetQuest fetches a single quest
func (c *Client) GetQuest(t models.QuestType, id string) (*models.Quest, error) {
	var q models.Quest
	if err := c.get("/quests/"+t.String()+"/"+url.PathEscape(id), &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// History fetches the audit trail of a quest
func (c *Client) History(t models.QuestType, id string) ([]models.Transition, error) {
	var history []models.Transition
	if err := c.get("/quests/"+t.String()+"/"+url.PathEscape(id)+"/history", &history); err != nil {
		return nil, err
	}
	return history, nil
}

// CreateQuest creates a quest. Extra carries the type-specific fields
// (duration_ms, span, head, dep).
func (c *Client) CreateQuest(t models.QuestType, name string, extra map[string]any) (*models.Quest, error) {
	body := map[string]any{"name": name}
	for k, v := range extra {
		body[k] = v
	}
	resp, err := c.post("/quests/"+t.String(), body)
	if err != nil {
		return nil, err
	}
	var q models.Quest
	if err := json.Unmarshal(resp, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// Advance runs start, complete or fail on a quest
func (c *Client) Advance(t models.QuestType, id, action string) (*models.Quest, error) {
	resp, err := c.post("/quests/"+t.String()+"/"+url.PathEscape(id)+"/"+action, nil)
	if err != nil {
		return nil, err
	}
	var q models.Quest
	if err := json.Unmarshal(resp, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// CheckHealth checks if the daemon is healthy
func (c *Client) CheckHealth() (bool, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}

	var health struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false, err
	}

	return health.OK, nil
}

func (c *Client) get(path string, v any) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return apiError(body)
	}
	return json.Unmarshal(body, v)
}

func (c *Client) post(path string, data any) ([]byte, error) {
	var payload io.Reader = http.NoBody
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(jsonData)
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, apiError(body)
	}

	return body, nil
}

// apiError extracts the message of a JSON error body.
func apiError(body []byte) error {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("API error: %s", e.Error)
	}
	return fmt.Errorf("API error: %s", bytes.TrimSpace(body))
}
