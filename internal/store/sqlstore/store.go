// Package sqlstore persists chat state with GORM on SQLite.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var _ core.Store = (*Store)(nil)

type Store struct {
	db *gorm.DB
}

// Open connects to dsn (a file path or ":memory:") and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers anyway; one connection also keeps ":memory:" a single database.
	sqlDB.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	log.Info().Str("module", "store.sql").Str("dsn", dsn).Msg("database ready")
	return s, nil
}

func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(&userRecord{}, &roomRecord{}, &memberRecord{}, &messageRecord{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	err := s.db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_rooms_active_name ON rooms(name) WHERE is_active = 1").Error
	if err != nil {
		return fmt.Errorf("failed to create room name index: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	rec := fromUser(u)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return s.userConflict(ctx, u)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// userConflict names the field that collided.
func (s *Store) userConflict(ctx context.Context, u *domain.User) error {
	var n int64
	s.db.WithContext(ctx).Model(&userRecord{}).Where("username = ?", u.Username).Count(&n)
	if n > 0 {
		return domain.Conflict("Username already exists")
	}
	return domain.Conflict("Email already registered")
}

func (s *Store) getUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	var rec userRecord
	if err := s.db.WithContext(ctx).First(&rec, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound("User not found")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return rec.toDomain(), nil
}

func (s *Store) GetUserByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return s.getUser(ctx, "id = ?", string(id))
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.getUser(ctx, "username = ?", username)
}

func (s *Store) UpdateUserStatus(ctx context.Context, id domain.UserID, status domain.UserStatus, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&userRecord{}).Where("id = ?", string(id)).
		Updates(map[string]any{"status": string(status), "last_seen": at.UTC()})
	if err := res.Error; err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("User not found")
	}
	return nil
}

func (s *Store) CreateRoom(ctx context.Context, r *domain.Room) error {
	rec := fromRoom(r)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.Conflict("Room name already exists")
		}
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

func (s *Store) GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	var rec roomRecord
	err := s.db.WithContext(ctx).Preload("Members", func(db *gorm.DB) *gorm.DB {
		return db.Order("joined_at, user_id")
	}).First(&rec, "id = ?", string(id)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound("Room not found")
		}
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	return rec.toDomain(), nil
}

func (s *Store) ListRooms(ctx context.Context) ([]*domain.Room, error) {
	var recs []roomRecord
	err := s.db.WithContext(ctx).Preload("Members", func(db *gorm.DB) *gorm.DB {
		return db.Order("joined_at, user_id")
	}).Where("is_active = ?", true).Order("last_activity DESC").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	out := make([]*domain.Room, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toDomain())
	}
	return out, nil
}

func (s *Store) AddMember(ctx context.Context, id domain.RoomID, user domain.UserID, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := touch(tx, id, at); err != nil {
			return err
		}
		m := memberRecord{RoomID: string(id), UserID: string(user), JoinedAt: at.UTC()}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
			return fmt.Errorf("failed to add member: %w", err)
		}
		return nil
	})
}

func (s *Store) RemoveMember(ctx context.Context, id domain.RoomID, user domain.UserID, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := touch(tx, id, at); err != nil {
			return err
		}
		err := tx.Where("room_id = ? AND user_id = ?", string(id), string(user)).Delete(&memberRecord{}).Error
		if err != nil {
			return fmt.Errorf("failed to remove member: %w", err)
		}
		return nil
	})
}

func (s *Store) UpdateActivity(ctx context.Context, id domain.RoomID, at time.Time) error {
	return touch(s.db.WithContext(ctx), id, at)
}

func touch(db *gorm.DB, id domain.RoomID, at time.Time) error {
	res := db.Model(&roomRecord{}).Where("id = ?", string(id)).Update("last_activity", at.UTC())
	if err := res.Error; err != nil {
		return fmt.Errorf("failed to update room activity: %w", err)
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("Room not found")
	}
	return nil
}

func (s *Store) DeactivateRoom(ctx context.Context, id domain.RoomID) error {
	res := s.db.WithContext(ctx).Model(&roomRecord{}).Where("id = ?", string(id)).Update("is_active", false)
	if err := res.Error; err != nil {
		return fmt.Errorf("failed to deactivate room: %w", err)
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("Room not found")
	}
	return nil
}

func (s *Store) AddMessage(ctx context.Context, m *domain.Message) error {
	rec := fromMessage(m)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to add message: %w", err)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, room domain.RoomID, page, perPage int) ([]*domain.Message, error) {
	offset, ok := domain.PageOffset(page, perPage)
	if !ok || perPage < 1 {
		return []*domain.Message{}, nil
	}
	var recs []messageRecord
	err := s.db.WithContext(ctx).Where("room_id = ?", string(room)).
		Order("timestamp DESC").Order("id DESC").
		Offset(offset).Limit(perPage).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	out := make([]*domain.Message, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toDomain())
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
