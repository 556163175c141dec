package store

// runMigrations creates the schema. Every statement is idempotent.
func (s *Store) runMigrations() error {
	migrations := []string{
		// One row per assessment attempt
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			lesson_id INTEGER NOT NULL,
			started_at INTEGER NOT NULL -- unix ms
		)`,

		// Every published prediction
		`CREATE TABLE IF NOT EXISTS detections (
			id TEXT PRIMARY KEY,
			session_id TEXT REFERENCES sessions(id) ON DELETE SET NULL,
			lesson_id INTEGER NOT NULL DEFAULT 0,
			label TEXT NOT NULL,
			confidence REAL NOT NULL,
			created_at INTEGER NOT NULL -- unix ms
		)`,

		// Lessons whose assessment has been passed
		`CREATE TABLE IF NOT EXISTS progress (
			lesson_id INTEGER PRIMARY KEY,
			title TEXT NOT NULL,
			completed_at INTEGER NOT NULL -- unix ms
		)`,

		`CREATE INDEX IF NOT EXISTS idx_detections_lesson_label ON detections(lesson_id, label, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_created_at ON detections(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}
