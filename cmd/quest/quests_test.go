package main

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fentz26/questline/internal/models"
)

func TestQuestPath(t *testing.T) {
	if got := questPath(models.QuestTypeTimer, "a b", "start"); got != "/quests/timer/a%20b/start" {
		t.Errorf("Unexpected path: %s", got)
	}
	if got := questPath(models.QuestTypeClick, "x"); got != "/quests/click/x" {
		t.Errorf("Unexpected path: %s", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"a longer line", 8, "a lon..."},
		{"two\nlines", 20, "two lines"},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestPrintQuests(t *testing.T) {
	var buf bytes.Buffer
	printQuests(&buf, []models.Quest{
		{ID: "0123456789abcdef", Number: "000000000", Name: "Press", State: models.QuestStateCompleted},
	})
	out := buf.String()
	for _, want := range []string{"NUMBER", "000000000", "01234567", "Press", "completed"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "0123456789") {
		t.Error("Expected id to be shortened")
	}
}

func TestPrintQuest_Timer(t *testing.T) {
	var buf bytes.Buffer
	printQuest(&buf, &models.Quest{
		ID:       "t1",
		Type:     models.QuestTypeTimer,
		State:    models.QuestStateInitialization,
		Start:    models.Unset,
		Finish:   models.Unset,
		Duration: 90000,
	})
	out := buf.String()
	if !strings.Contains(out, "1m30s") {
		t.Errorf("Expected duration in output:\n%s", out)
	}
	if strings.Contains(out, "Deadline") {
		t.Errorf("Expected no deadline before start:\n%s", out)
	}
}

func TestAPIPost_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"quest guard failed: timer window elapsed","quest":{"id":"t1","state":"failed"}}`))
	}))
	defer srv.Close()

	old := apiAddr
	apiAddr = srv.URL
	defer func() { apiAddr = old }()

	_, err := apiPost("/quests/timer/t1/complete", struct{}{})
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected apiError, got %v", err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d", apiErr.Status)
	}
	if apiErr.Message != "quest guard failed: timer window elapsed" {
		t.Errorf("Unexpected message: %s", apiErr.Message)
	}
	if !bytes.Contains(apiErr.Body, []byte(`"failed"`)) {
		t.Error("Expected raw body to be kept")
	}
}

func TestCheckHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"ok":false,"db":"sql: database is closed","version":"dev","time":"now"}`))
	}))
	defer srv.Close()

	old := apiAddr
	apiAddr = srv.URL
	defer func() { apiAddr = old }()

	health, err := CheckHealth()
	if err == nil {
		t.Error("Expected error for unhealthy daemon")
	}
	if health == nil || health.OK || health.DB == "ok" {
		t.Errorf("Expected unhealthy payload, got %+v", health)
	}
	if isDaemonRunning() {
		t.Error("Expected daemon to be reported down")
	}
}
