// Package store persists terminal workflow results. It is the durable
// side of the workflow boundary: it sees only final results, never
// intermediate attempt state.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"storyforge/internal/logging"
	"storyforge/internal/workflow"
)

// StoryStore persists workflow results to SQLite.
type StoryStore struct {
	db     *sql.DB
	dbPath string
}

// Story is one persisted row.
type Story struct {
	ID               string
	CreatedAt        time.Time
	Status           string
	StoryType        string
	Language         string
	Moral            string
	Content          string
	OverallScore     int
	AttemptCount     int
	SelectedAttempt  int
	RejectionReasons []string
}

// NewStoryStore opens (and migrates) the SQLite database at the given
// path.
func NewStoryStore(path string) (*StoryStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewStoryStore")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.Get(logging.CategoryStore).Debug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.Get(logging.CategoryStore).Debug("failed to set journal_mode=WAL: %v", err)
	}

	s := &StoryStore{db: db, dbPath: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("story store ready at %s", path)
	return s, nil
}

func (s *StoryStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stories (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		story_type TEXT NOT NULL,
		language TEXT,
		moral TEXT,
		content TEXT,
		overall_score INTEGER,
		attempt_count INTEGER,
		selected_attempt INTEGER,
		rejection_reasons TEXT,
		scores TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_stories_status ON stories(status);
	CREATE INDEX IF NOT EXISTS idx_stories_created ON stories(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// SaveResult writes a terminal workflow result.
func (s *StoryStore) SaveResult(result *workflow.Result) error {
	if result == nil {
		return fmt.Errorf("nil result")
	}
	if !result.Status.IsTerminal() {
		return fmt.Errorf("refusing to persist non-terminal status %q", result.Status)
	}

	var (
		overallScore    int
		attemptCount    int
		selectedAttempt int
		scoresJSON      []byte
	)
	if result.Quality != nil {
		overallScore = result.Quality.Assessment.OverallScore
		attemptCount = result.Quality.AttemptCount
		selectedAttempt = result.Quality.SelectedAttempt
		var err error
		scoresJSON, err = json.Marshal(result.Quality)
		if err != nil {
			return fmt.Errorf("failed to marshal quality metadata: %w", err)
		}
	}

	reasonsJSON, err := json.Marshal(result.RejectionReasons)
	if err != nil {
		return fmt.Errorf("failed to marshal rejection reasons: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO stories
		(id, created_at, status, story_type, language, moral, content,
		 overall_score, attempt_count, selected_attempt, rejection_reasons, scores)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID,
		result.CompletedAt,
		string(result.Status),
		string(result.Request.StoryType),
		result.Request.Language,
		result.Request.Moral,
		result.SelectedContent,
		overallScore,
		attemptCount,
		selectedAttempt,
		string(reasonsJSON),
		string(scoresJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert story: %w", err)
	}

	logging.Store("persisted result %s (status=%s, score=%d)", result.ID, result.Status, overallScore)
	return nil
}

// GetStory loads one persisted story by ID.
func (s *StoryStore) GetStory(id string) (*Story, error) {
	row := s.db.QueryRow(`
		SELECT id, created_at, status, story_type, language, moral, content,
		       overall_score, attempt_count, selected_attempt, rejection_reasons
		FROM stories WHERE id = ?`, id)

	var st Story
	var reasonsJSON string
	err := row.Scan(&st.ID, &st.CreatedAt, &st.Status, &st.StoryType, &st.Language,
		&st.Moral, &st.Content, &st.OverallScore, &st.AttemptCount, &st.SelectedAttempt, &reasonsJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("story %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load story: %w", err)
	}

	if reasonsJSON != "" {
		if err := json.Unmarshal([]byte(reasonsJSON), &st.RejectionReasons); err != nil {
			logging.Get(logging.CategoryStore).Warn("story %s has malformed rejection_reasons: %v", id, err)
		}
	}

	return &st, nil
}

// ListStories returns the most recent stories, newest first.
func (s *StoryStore) ListStories(limit int) ([]Story, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, created_at, status, story_type, language, moral, content,
		       overall_score, attempt_count, selected_attempt, rejection_reasons
		FROM stories ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stories: %w", err)
	}
	defer rows.Close()

	var out []Story
	for rows.Next() {
		var st Story
		var reasonsJSON string
		if err := rows.Scan(&st.ID, &st.CreatedAt, &st.Status, &st.StoryType, &st.Language,
			&st.Moral, &st.Content, &st.OverallScore, &st.AttemptCount, &st.SelectedAttempt, &reasonsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan story: %w", err)
		}
		if reasonsJSON != "" {
			_ = json.Unmarshal([]byte(reasonsJSON), &st.RejectionReasons)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *StoryStore) Close() error {
	return s.db.Close()
}
