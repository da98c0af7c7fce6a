package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Session lifecycle states as persisted.
const (
	StatusActive    = "active"
	StatusFinished  = "finished"
	StatusAbandoned = "abandoned"
)

// ErrNotFound reports a session id with no persisted row.
var ErrNotFound = errors.New("session not found")

// Row is one persisted session. State is the module's opaque blob exactly
// as the engine encoded it, so a resumed process replays from the same
// stream position.
type Row struct {
	ID        string `gorm:"primaryKey"`
	Game      string `gorm:"index"`
	Players   string // JSON array of participant ids
	Seed      string
	Status    string `gorm:"index"`
	Winner    string
	Turn      int
	State     []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName pins the table so schema changes stay deliberate.
func (Row) TableName() string { return "game_sessions" }

// Store wraps the sqlite session table.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

// OpenStore opens (or creates) the sqlite database at path. An empty path
// yields a shared in-memory database, which tests use.
func OpenStore(path string, log zerolog.Logger) (*Store, error) {
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("session: open sqlite at %q: %w", path, err)
	}
	if err := db.AutoMigrate(&Row{}); err != nil {
		return nil, fmt.Errorf("session: migrate: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Save upserts a session row.
func (s *Store) Save(row *Row) error {
	if err := s.db.Save(row).Error; err != nil {
		return fmt.Errorf("session: save %s: %w", row.ID, err)
	}
	return nil
}

// Load fetches one session row.
func (s *Store) Load(id string) (*Row, error) {
	var row Row
	err := s.db.First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", id, err)
	}
	return &row, nil
}

// List returns the most recently touched sessions.
func (s *Store) List(limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []Row
	if err := s.db.Order("updated_at desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	return rows, nil
}

// Finished returns finished rows, optionally filtered by game slug.
func (s *Store) Finished(game string) ([]Row, error) {
	q := s.db.Where("status = ?", StatusFinished)
	if game != "" {
		q = q.Where("game = ?", game)
	}
	var rows []Row
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("session: finished: %w", err)
	}
	return rows, nil
}

// AbandonStale marks active sessions untouched since the cutoff as
// abandoned. It runs once at startup so sessions orphaned by a crash do not
// linger as playable.
func (s *Store) AbandonStale(cutoff time.Time) (int64, error) {
	res := s.db.Model(&Row{}).
		Where("status = ? AND updated_at < ?", StatusActive, cutoff).
		Update("status", StatusAbandoned)
	if res.Error != nil {
		return 0, fmt.Errorf("session: abandon stale: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.log.Info().Int64("count", res.RowsAffected).Msg("abandoned stale sessions")
	}
	return res.RowsAffected, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
