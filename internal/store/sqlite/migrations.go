package sqlite

import "fmt"

// RunMigrations applies the migrations newer than the database's
// user_version, so ALTER statements run exactly once.
func (s *Storage) RunMigrations() error {
	var version int
	if err := s.db.Get(&version, `PRAGMA user_version`); err != nil {
		return err
	}
	for i := version; i < len(migrations); i++ {
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, i+1)); err != nil {
			return err
		}
	}
	return nil
}

// Exception origins. Feed imports only ever replace their own rows.
const (
	originUser = "user"
	originFeed = "feed"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id VARCHAR NOT NULL PRIMARY KEY,
		title VARCHAR NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		starts_at VARCHAR NOT NULL,
		ends_at VARCHAR NOT NULL,
		time_zone VARCHAR NOT NULL DEFAULT '',
		all_day BOOLEAN NOT NULL DEFAULT 0,
		recurrence VARCHAR NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS events_starts_at ON events (starts_at)`,
	`CREATE TABLE IF NOT EXISTS event_tags (
		event_id VARCHAR NOT NULL,
		tag_id VARCHAR NOT NULL,
		PRIMARY KEY (event_id, tag_id),
		FOREIGN KEY (event_id) REFERENCES events (id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS event_exceptions (
		event_id VARCHAR NOT NULL,
		date VARCHAR NOT NULL,
		PRIMARY KEY (event_id, date),
		FOREIGN KEY (event_id) REFERENCES events (id) ON DELETE CASCADE
	)`,
	`ALTER TABLE event_exceptions ADD COLUMN origin VARCHAR NOT NULL DEFAULT 'user'`,
}
