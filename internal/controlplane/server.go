package controlplane

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fentz26/questline/internal/models"
	"github.com/fentz26/questline/internal/sweeper"
)

// Version is reported by the health endpoint. Set at build time with
// -ldflags "-X github.com/fentz26/questline/internal/controlplane.Version=...".
var Version = "dev"

// Server provides the HTTP API for questline.
type Server struct {
	service *Service
	sweeper *sweeper.Sweeper
	addr    string
	server  *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, addr string) *Server {
	return &Server{
		service: service,
		addr:    addr,
	}
}

// SetSweeper exposes the sweeper's statistics on /sweeper.
func (s *Server) SetSweeper(sw *sweeper.Sweeper) {
	s.sweeper = sw
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Quest endpoints
	mux.HandleFunc("/quests/", s.handleQuests)

	// Listener endpoints
	mux.HandleFunc("/listeners", s.handleListeners)

	mux.HandleFunc("/sweeper", s.handleSweeper)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	slog.Info("starting questline daemon", slog.String("addr", s.addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handleQuests handles /quests/{type}[/{id}[/{action}]]
func (s *Server) handleQuests(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/quests/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" || len(parts) > 3 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	t, err := models.ParseQuestType(parts[0])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	id, action := "", ""
	if len(parts) > 1 {
		id = parts[1]
	}
	if len(parts) > 2 {
		action = parts[2]
	}

	switch {
	case id == "" && r.Method == http.MethodPost:
		s.createQuest(w, r, t)
	case id == "" && r.Method == http.MethodGet:
		s.listQuests(w, r, t)
	case id != "" && action == "" && r.Method == http.MethodGet:
		s.getQuest(w, t, id)
	case action == "history" && r.Method == http.MethodGet:
		s.getHistory(w, t, id)
	case action == "chain" && r.Method == http.MethodGet && t == models.QuestTypeSideline:
		s.getChain(w, id)
	case action != "" && r.Method == http.MethodPost:
		s.advanceQuest(w, t, id, action)
	case id == "" || action == "":
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// --- Quest Handlers ---

func (s *Server) createQuest(w http.ResponseWriter, r *http.Request, t models.QuestType) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	q, err := s.service.CreateQuest(t, req)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) listQuests(w http.ResponseWriter, r *http.Request, t models.QuestType) {
	state := models.QuestState(r.URL.Query().Get("state"))
	if state != "" && !state.Valid() {
		http.Error(w, "unknown state "+string(state), http.StatusBadRequest)
		return
	}

	quests, err := s.service.ListQuests(t, state)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if quests == nil {
		quests = []models.Quest{}
	}
	writeJSON(w, http.StatusOK, quests)
}

func (s *Server) getQuest(w http.ResponseWriter, t models.QuestType, id string) {
	q, err := s.service.GetQuest(t, id)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) advanceQuest(w http.ResponseWriter, t models.QuestType, id, action string) {
	q, err := s.service.Advance(t, id, action)
	if err != nil {
		// An expired timer completion still returns the failed record.
		writeError(w, err, q)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) getHistory(w http.ResponseWriter, t models.QuestType, id string) {
	if _, err := s.service.GetQuest(t, id); err != nil {
		writeError(w, err, nil)
		return
	}
	history, err := s.service.History(id)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if history == nil {
		history = []models.Transition{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) getChain(w http.ResponseWriter, id string) {
	chain, err := s.service.Chain(id)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, chain)
}

// --- Listener Handlers ---

type registerListenerRequest struct {
	Key    string `json:"key"`
	URL    string `json:"url"`
	TTLSec int    `json:"ttl_sec"`
}

type registerListenerResponse struct {
	Key        string `json:"key"`
	Registered bool   `json:"registered"`
}

func (s *Server) handleListeners(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerListenerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	ok, err := s.service.RegisterWebhook(req.Key, req.URL, time.Duration(req.TTLSec)*time.Second)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	status := http.StatusCreated
	if !ok {
		status = http.StatusConflict
	}
	writeJSON(w, status, registerListenerResponse{Key: req.Key, Registered: ok})
}

// --- Operational Handlers ---

func (s *Server) handleSweeper(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.sweeper == nil {
		http.Error(w, "sweeper disabled", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.sweeper.GetStats())
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	health := HealthResponse{
		OK:      true,
		DB:      "ok",
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if err := s.service.Ping(ctx); err != nil {
		health.OK = false
		health.DB = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// errorResponse is the body of every failed quest operation.
type errorResponse struct {
	Error string        `json:"error"`
	Quest *models.Quest `json:"quest,omitempty"`
}

func writeError(w http.ResponseWriter, err error, q *models.Quest) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", slog.Any("error", err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Quest: q})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
