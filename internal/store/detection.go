package store

import (
	"crypto/rand"
	"database/sql"
	"time"

	"github.com/oklog/ulid/v2"
)

// Detection is one published prediction.
type Detection struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id,omitempty"`
	LessonID   int       `json:"lesson_id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Match selects detections for counting.
type Match struct {
	LessonID      int
	Label         string
	MinConfidence float64
	Since         time.Time
}

// DetectionRepository provides access to the detections table.
type DetectionRepository struct {
	db *sql.DB
}

// Detections returns the detection repository for this store.
func (s *Store) Detections() *DetectionRepository {
	return &DetectionRepository{db: s.db}
}

// NewID returns a ULID for t, so IDs sort by creation time.
func NewID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// Create inserts d. Missing ID and CreatedAt are filled in.
func (r *DetectionRepository) Create(d *Detection) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	if d.ID == "" {
		d.ID = NewID(d.CreatedAt)
	}

	var session any
	if d.SessionID != "" {
		session = d.SessionID
	}

	_, err := r.db.Exec(
		`INSERT INTO detections (id, session_id, lesson_id, label, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, session, d.LessonID, d.Label, d.Confidence, d.CreatedAt.UnixMilli(),
	)
	return err
}

// Count returns how many detections satisfy m. A zero LessonID matches every lesson.
func (r *DetectionRepository) Count(m Match) (int, error) {
	query := `SELECT COUNT(*) FROM detections
		 WHERE label = ? AND confidence >= ? AND created_at >= ?`
	args := []any{m.Label, m.MinConfidence, m.Since.UnixMilli()}
	if m.LessonID != 0 {
		query += ` AND lesson_id = ?`
		args = append(args, m.LessonID)
	}

	var n int
	if err := r.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Recent returns up to limit detections, newest first.
func (r *DetectionRepository) Recent(limit int) ([]Detection, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(
		`SELECT id, COALESCE(session_id, ''), lesson_id, label, confidence, created_at
		 FROM detections ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	detections := make([]Detection, 0, limit)
	for rows.Next() {
		var d Detection
		var ms int64
		if err := rows.Scan(&d.ID, &d.SessionID, &d.LessonID, &d.Label, &d.Confidence, &ms); err != nil {
			return nil, err
		}
		d.CreatedAt = time.UnixMilli(ms)
		detections = append(detections, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return detections, nil
}

// Summary aggregates detections per label at or above minConfidence.
type Summary struct {
	Label         string  `json:"label"`
	Count         int     `json:"count"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// Summarize groups accepted detections by label, most frequent first.
func (r *DetectionRepository) Summarize(minConfidence float64) ([]Summary, error) {
	rows, err := r.db.Query(
		`SELECT label, COUNT(*), AVG(confidence)
		 FROM detections WHERE confidence >= ?
		 GROUP BY label ORDER BY COUNT(*) DESC, label`,
		minConfidence,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.Label, &s.Count, &s.AvgConfidence); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
