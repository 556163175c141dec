package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Session is one assessment attempt.
type Session struct {
	ID        string    `json:"id"`
	LessonID  int       `json:"lesson_id"`
	StartedAt time.Time `json:"started_at"`
}

// Progress marks a lesson whose assessment was passed.
type Progress struct {
	LessonID    int       `json:"lesson_id"`
	Title       string    `json:"title"`
	CompletedAt time.Time `json:"completed_at"`
}

// SessionRepository provides access to sessions and progress.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Start creates a new session for lessonID.
func (r *SessionRepository) Start(lessonID int, at time.Time) (*Session, error) {
	sess := &Session{ID: uuid.NewString(), LessonID: lessonID, StartedAt: at}
	_, err := r.db.Exec(
		`INSERT INTO sessions (id, lesson_id, started_at) VALUES (?, ?, ?)`,
		sess.ID, sess.LessonID, at.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns the session with id.
func (r *SessionRepository) Get(id string) (*Session, error) {
	sess := &Session{}
	var ms int64
	err := r.db.QueryRow(
		`SELECT id, lesson_id, started_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.LessonID, &ms)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sess.StartedAt = time.UnixMilli(ms)
	return sess, nil
}

// Complete records that lessonID was passed. Repeated calls keep the first completion.
func (r *SessionRepository) Complete(lessonID int, title string, at time.Time) error {
	_, err := r.db.Exec(
		`INSERT INTO progress (lesson_id, title, completed_at) VALUES (?, ?, ?)
		 ON CONFLICT(lesson_id) DO NOTHING`,
		lessonID, title, at.UnixMilli(),
	)
	return err
}

// Progress lists completed lessons in lesson order.
func (r *SessionRepository) Progress() ([]Progress, error) {
	rows, err := r.db.Query(`SELECT lesson_id, title, completed_at FROM progress ORDER BY lesson_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Progress
	for rows.Next() {
		var p Progress
		var ms int64
		if err := rows.Scan(&p.LessonID, &p.Title, &ms); err != nil {
			return nil, err
		}
		p.CompletedAt = time.UnixMilli(ms)
		out = append(out, p)
	}
	return out, rows.Err()
}
