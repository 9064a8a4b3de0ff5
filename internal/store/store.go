// Package store provides SQLite-backed persistence for questline.
//
// Records live in logical partitions, one per quest type, plus scalar
// counters. The store only knows about partitions and records; lifecycle
// rules belong to the quest package.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fentz26/questline/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	// ErrQuestNotFound indicates no record with the id exists in the partition.
	ErrQuestNotFound = errors.New("quest not found")
	// ErrStateConflict indicates the record left the expected state before the write.
	ErrStateConflict = errors.New("quest state changed concurrently")
	// ErrHeadNotFound indicates a sideline follower references a missing anchor.
	ErrHeadNotFound = errors.New("sideline head not found")
	// ErrNotAnchor indicates a follower tried to join a record that is itself a follower.
	ErrNotAnchor = errors.New("sideline head is not a chain anchor")
	// ErrDuplicateQuest indicates the id or number is already used in the partition.
	ErrDuplicateQuest = errors.New("quest id or number already exists")
	// ErrUnknownPartition indicates the partition was never registered.
	ErrUnknownPartition = errors.New("unknown partition")
)

// Store provides access to the questline SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store, runs migrations and makes sure every quest
// partition and the quest counter exist.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.ensurePartitions(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init partitions: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS partitions (
		name TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS quests (
		partition TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		type INTEGER NOT NULL,
		state TEXT NOT NULL,
		number TEXT NOT NULL,
		events TEXT NOT NULL DEFAULT '[]',
		creation INTEGER NOT NULL,
		finish INTEGER NOT NULL DEFAULT -1,
		start INTEGER NOT NULL DEFAULT 0,
		duration INTEGER NOT NULL DEFAULT 0,
		head TEXT,
		order_ids TEXT,
		dep TEXT,
		PRIMARY KEY (partition, id),
		UNIQUE (partition, number),
		FOREIGN KEY (partition) REFERENCES partitions(name)
	);

	CREATE TABLE IF NOT EXISTS transitions (
		id TEXT PRIMARY KEY,
		quest_id TEXT NOT NULL,
		quest_type INTEGER NOT NULL,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_quests_state ON quests(partition, state);
	CREATE INDEX IF NOT EXISTS idx_transitions_quest_id ON transitions(quest_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) ensurePartitions() error {
	for _, t := range models.QuestTypes {
		if _, err := s.db.Exec(`INSERT OR IGNORE INTO partitions (name) VALUES (?)`, t.Partition()); err != nil {
			return err
		}
	}
	_, err := s.db.Exec(`INSERT OR IGNORE INTO counters (name, value) VALUES (?, 0)`, models.CounterPartition)
	return err
}

// CreateID returns a new opaque unique identifier.
func (s *Store) CreateID() string {
	return uuid.New().String()
}

// Has reports whether key names a known partition or counter.
func (s *Store) Has(key string) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT (SELECT COUNT(*) FROM partitions WHERE name = ?) + (SELECT COUNT(*) FROM counters WHERE name = ?)`,
		key, key,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query key: %w", err)
	}
	return n > 0, nil
}

// --- Counter Operations ---

// GetCounter returns the current value of a counter.
func (s *Store) GetCounter(name string) (int64, error) {
	var v int64
	err := s.db.QueryRow(`SELECT value FROM counters WHERE name = ?`, name).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, ErrUnknownPartition
	}
	if err != nil {
		return 0, fmt.Errorf("query counter: %w", err)
	}
	return v, nil
}

// SetCounter overwrites the value of a counter, creating it if needed.
func (s *Store) SetCounter(name string, value int64) error {
	_, err := s.db.Exec(
		`INSERT INTO counters (name, value) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		name, value,
	)
	if err != nil {
		return fmt.Errorf("set counter: %w", err)
	}
	return nil
}

// NextCounter returns the current value of a counter and persists the
// incremented value in the same transaction.
func (s *Store) NextCounter(name string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var v int64
	err = tx.QueryRow(`SELECT value FROM counters WHERE name = ?`, name).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, ErrUnknownPartition
	}
	if err != nil {
		return 0, fmt.Errorf("query counter: %w", err)
	}

	if _, err := tx.Exec(`UPDATE counters SET value = ? WHERE name = ?`, v+1, name); err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return v, nil
}

// --- Quest Operations ---

const questColumns = `id, name, description, type, state, number, events, creation, finish, start, duration, head, order_ids, dep`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuest(row rowScanner) (*models.Quest, error) {
	var q models.Quest
	var description, head, order, dep sql.NullString
	var events string

	err := row.Scan(&q.ID, &q.Name, &description, &q.Type, &q.State, &q.Number, &events,
		&q.Creation, &q.Finish, &q.Start, &q.Duration, &head, &order, &dep)
	if err != nil {
		return nil, err
	}
	q.Description = description.String
	q.Head = head.String

	if err := json.Unmarshal([]byte(events), &q.Events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	if q.Events == nil {
		q.Events = []string{}
	}
	if order.Valid {
		if err := json.Unmarshal([]byte(order.String), &q.Order); err != nil {
			return nil, fmt.Errorf("decode order: %w", err)
		}
		if q.Order == nil {
			q.Order = []string{}
		}
	}
	if dep.Valid {
		if err := json.Unmarshal([]byte(dep.String), &q.Dep); err != nil {
			return nil, fmt.Errorf("decode dep: %w", err)
		}
	}
	return &q, nil
}

// encodeList stores nil as NULL so that "no order" and "empty order" stay
// distinguishable.
func encodeList(list []string) (sql.NullString, error) {
	if list == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertQuest(ex execer, partition string, q *models.Quest) error {
	events := q.Events
	if events == nil {
		events = []string{}
	}
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}
	order, err := encodeList(q.Order)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	dep, err := encodeList(q.Dep)
	if err != nil {
		return fmt.Errorf("encode dep: %w", err)
	}

	_, err = ex.Exec(
		`INSERT INTO quests (partition, `+questColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		partition, q.ID, q.Name, nullString(q.Description), q.Type, q.State, q.Number, string(eventsJSON),
		q.Creation, q.Finish, q.Start, q.Duration, nullString(q.Head), order, dep,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateQuest
		}
		return fmt.Errorf("insert quest: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "unique constraint")
}

func (s *Store) checkPartition(partition string) error {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM partitions WHERE name = ?`, partition).Scan(&n); err != nil {
		return fmt.Errorf("query partition: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownPartition, partition)
	}
	return nil
}

// PushQuest appends a new record to a partition.
func (s *Store) PushQuest(partition string, q *models.Quest) error {
	if err := s.checkPartition(partition); err != nil {
		return err
	}
	return insertQuest(s.db, partition, q)
}

// FindQuest retrieves a record by id. It returns nil, nil when the record
// does not exist.
func (s *Store) FindQuest(partition, id string) (*models.Quest, error) {
	q, err := scanQuest(s.db.QueryRow(
		`SELECT `+questColumns+` FROM quests WHERE partition = ? AND id = ?`,
		partition, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query quest: %w", err)
	}
	return q, nil
}

// ListQuests returns the records of a partition in insertion order,
// optionally filtered by state.
func (s *Store) ListQuests(partition string, state models.QuestState) ([]models.Quest, error) {
	query := `SELECT ` + questColumns + ` FROM quests WHERE partition = ?`
	args := []any{partition}

	if state != "" {
		query += ` AND state = ?`
		args = append(args, state)
	}
	query += ` ORDER BY rowid ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query quests: %w", err)
	}
	defer rows.Close()

	var quests []models.Quest
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quest: %w", err)
		}
		quests = append(quests, *q)
	}
	return quests, rows.Err()
}

func writePatch(ex execer, partition, id string, q *models.Quest, expected models.QuestState) (int64, error) {
	order, err := encodeList(q.Order)
	if err != nil {
		return 0, fmt.Errorf("encode order: %w", err)
	}

	query := `UPDATE quests SET state = ?, start = ?, finish = ?, order_ids = ? WHERE partition = ? AND id = ?`
	args := []any{q.State, q.Start, q.Finish, order, partition, id}
	if expected != "" {
		query += ` AND state = ?`
		args = append(args, expected)
	}

	result, err := ex.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("update quest: %w", err)
	}
	return result.RowsAffected()
}

// UpdateQuest merges patch into the stored record and returns the result.
func (s *Store) UpdateQuest(partition, id string, patch models.QuestPatch) (*models.Quest, error) {
	return s.TransitionQuest(partition, id, "", patch)
}

// TransitionQuest merges patch into the stored record only while the
// record is still in the expected state. An empty expected state skips the
// check. The read and the conditional write share one transaction.
func (s *Store) TransitionQuest(partition, id string, expected models.QuestState, patch models.QuestPatch) (*models.Quest, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q, err := scanQuest(tx.QueryRow(
		`SELECT `+questColumns+` FROM quests WHERE partition = ? AND id = ?`,
		partition, id,
	))
	if err == sql.ErrNoRows {
		return nil, ErrQuestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query quest: %w", err)
	}
	if expected != "" && q.State != expected {
		return nil, ErrStateConflict
	}

	patch.Apply(q)

	n, err := writePatch(tx, partition, id, q, expected)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Record was modified by another writer between the read and the update
		return nil, ErrStateConflict
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return q, nil
}

// CreateFollower appends follower.ID to the order of the anchor named by
// follower.Head and inserts the follower, atomically. If the anchor does
// not exist nothing is written and ErrHeadNotFound is returned.
func (s *Store) CreateFollower(partition string, follower *models.Quest) (*models.Quest, error) {
	if err := s.checkPartition(partition); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	head, err := scanQuest(tx.QueryRow(
		`SELECT `+questColumns+` FROM quests WHERE partition = ? AND id = ?`,
		partition, follower.Head,
	))
	if err == sql.ErrNoRows {
		return nil, ErrHeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query head: %w", err)
	}
	if !head.IsAnchor() {
		return nil, ErrNotAnchor
	}

	head.Order = append(head.Order, follower.ID)
	if _, err := writePatch(tx, partition, head.ID, head, ""); err != nil {
		return nil, err
	}

	if err := insertQuest(tx, partition, follower); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return head, nil
}

// --- Transition Audit Operations ---

// WriteTransition records an audit entry for a lifecycle operation.
func (s *Store) WriteTransition(questID string, questType models.QuestType, action, inputsHash, outcome, details string) (*models.Transition, error) {
	t := &models.Transition{
		ID:         uuid.New().String(),
		QuestID:    questID,
		QuestType:  questType,
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO transitions (id, quest_id, quest_type, action, inputs_hash, outcome, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.QuestID, t.QuestType, t.Action, t.InputsHash, t.Outcome, t.Details, t.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert transition: %w", err)
	}
	return t, nil
}

// ListTransitions returns the audit entries of a quest, oldest first.
func (s *Store) ListTransitions(questID string) ([]models.Transition, error) {
	rows, err := s.db.Query(
		`SELECT id, quest_id, quest_type, action, inputs_hash, outcome, details, timestamp FROM transitions WHERE quest_id = ? ORDER BY timestamp ASC, rowid ASC`,
		questID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []models.Transition
	for rows.Next() {
		var t models.Transition
		var details sql.NullString
		if err := rows.Scan(&t.ID, &t.QuestID, &t.QuestType, &t.Action, &t.InputsHash, &t.Outcome, &details, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.Details = details.String
		out = append(out, t)
	}
	return out, rows.Err()
}
