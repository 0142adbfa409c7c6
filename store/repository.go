package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yanayukhimuk/Logging/core"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrSessionNotFound is returned by GetByID for an unknown id
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository stores brainstorm sessions
type SessionRepository interface {
	List(ctx context.Context) ([]Session, error)
	GetByID(ctx context.Context, id uint) (*Session, error)
	Add(ctx context.Context, session *Session) error
	Update(ctx context.Context, session *Session) error
}

// Open opens the sqlite database at dsn and migrates the schema. SQL
// statements go to logger at Debug, slow queries at Warning and failures
// at Error. A nil logger silences them.
func Open(dsn string, logger *core.Logger) (*gorm.DB, error) {
	config := &gorm.Config{
		Logger:  gormlogger.Discard,
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
	if logger != nil {
		config.Logger = NewGormLogger(logger)
	}

	db, err := gorm.Open(sqlite.Open(dsn), config)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dsn, err)
	}
	if err := db.AutoMigrate(&Session{}, &Idea{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// Close closes the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GormSessionRepository implements SessionRepository with gorm
type GormSessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a repository over db
func NewSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

// List returns every session with its ideas, newest first
func (r *GormSessionRepository) List(ctx context.Context) ([]Session, error) {
	var sessions []Session
	err := r.db.WithContext(ctx).
		Preload("Ideas", func(db *gorm.DB) *gorm.DB { return db.Order("date_created") }).
		Order("date_created DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// GetByID returns one session with its ideas
func (r *GormSessionRepository) GetByID(ctx context.Context, id uint) (*Session, error) {
	var session Session
	err := r.db.WithContext(ctx).
		Preload("Ideas", func(db *gorm.DB) *gorm.DB { return db.Order("date_created") }).
		First(&session, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %d: %w", id, err)
	}
	return &session, nil
}

// Add inserts a new session; DateCreated defaults to now
func (r *GormSessionRepository) Add(ctx context.Context, session *Session) error {
	if session.DateCreated.IsZero() {
		session.DateCreated = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("failed to add session: %w", err)
	}
	return nil
}

// Update saves the session and any new or changed ideas
func (r *GormSessionRepository) Update(ctx context.Context, session *Session) error {
	now := time.Now().UTC()
	for i := range session.Ideas {
		if session.Ideas[i].DateCreated.IsZero() {
			session.Ideas[i].DateCreated = now
		}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Save upserts, so an unknown id has to be rejected first
		var existing Session
		if err := tx.Select("id").First(&existing, session.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(session).Error
	})
	if err != nil {
		return fmt.Errorf("failed to update session %d: %w", session.ID, err)
	}
	return nil
}
