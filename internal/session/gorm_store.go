package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	dbpkg "github.com/mymunastore/aretenvi/internal/db"
	"github.com/mymunastore/aretenvi/internal/types"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(driver, dsn string) (*GormStore, error) {
	gormDB, err := dbpkg.OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open gorm store: %w", err)
	}

	return NewGormStoreWithDB(gormDB)
}

func NewGormStoreWithDB(gormDB *gorm.DB) (*GormStore, error) {
	if gormDB == nil {
		return nil, fmt.Errorf("gorm db is required")
	}
	store := &GormStore{db: gormDB}
	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

// DB exposes the underlying handle so other components can share it.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) migrate() error {
	if err := s.db.AutoMigrate(&conversationRow{}); err != nil {
		return fmt.Errorf("migrate conversation store: %w", err)
	}
	return nil
}

func (s *GormStore) GetActive(ctx context.Context, key string) (Record, error) {
	if err := validateKey(key); err != nil {
		return Record{}, err
	}
	row, err := takeActive(s.db.WithContext(ctx), key)
	if err != nil {
		return Record{}, err
	}
	return row.toRecord(), nil
}

func (s *GormStore) Latest(ctx context.Context, key string) (Record, error) {
	if err := validateKey(key); err != nil {
		return Record{}, err
	}
	var rows []conversationRow
	err := s.db.WithContext(ctx).
		Where("correlation_key = ?", key).
		Order("created_at DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return Record{}, fmt.Errorf("get latest conversation: %w", err)
	}
	if len(rows) == 0 {
		return Record{}, ErrNotFound
	}
	return rows[0].toRecord(), nil
}

func (s *GormStore) Create(ctx context.Context, key string, initial types.Step, in Interaction) (Record, error) {
	if err := validateKey(key); err != nil {
		return Record{}, err
	}
	if !initial.Valid() || initial.Terminal() {
		return Record{}, fmt.Errorf("invalid initial step %q", initial)
	}

	rec := newRecord(key, initial, in)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&conversationRow{}).Where("active_key = ?", key).Count(&count).Error; err != nil {
			return fmt.Errorf("check active conversation: %w", err)
		}
		if count > 0 {
			return ErrActiveExists
		}
		row := conversationRowFromRecord(rec)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrActiveExists) {
			// The unique active_key index rejects a concurrent create.
			if _, getErr := s.GetActive(ctx, key); getErr == nil {
				return Record{}, ErrActiveExists
			}
		}
		return Record{}, err
	}
	return rec, nil
}

func (s *GormStore) Update(ctx context.Context, key string, from, to types.Step, patch types.Fields, in Interaction) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateTransition(from, to); err != nil {
		return err
	}
	return s.mutateActive(ctx, key, func(rec Record) (Record, error) {
		if rec.Step != from {
			return Record{}, ErrStepMismatch
		}
		return applyUpdate(rec, to, patch, in), nil
	})
}

func (s *GormStore) Touch(ctx context.Context, key string, in Interaction) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.mutateActive(ctx, key, func(rec Record) (Record, error) {
		return applyTouch(rec, in), nil
	})
}

func (s *GormStore) Complete(ctx context.Context, key string, ref string, in Interaction) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if ref == "" {
		return fmt.Errorf("registration reference is required")
	}
	return s.mutateActive(ctx, key, func(rec Record) (Record, error) {
		if rec.Step != types.StepConfirmation {
			return Record{}, ErrStepMismatch
		}
		return applyEnd(rec, types.StepCompleted, ref, EndReasonCompleted, in), nil
	})
}

func (s *GormStore) Reset(ctx context.Context, key string, reason EndReason, in Interaction) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if reason == "" || reason == EndReasonCompleted {
		reason = EndReasonAbandoned
	}
	return s.mutateActive(ctx, key, func(rec Record) (Record, error) {
		return applyEnd(rec, rec.Step, "", reason, in), nil
	})
}

func (s *GormStore) ExpireIdle(ctx context.Context, before time.Time) (int, error) {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&conversationRow{}).
		Where("session_active = ? AND last_interaction_at < ?", true, before.UTC()).
		Updates(map[string]any{
			"session_active": false,
			"active_key":     nil,
			"end_reason":     string(EndReasonExpired),
			"revision":       gorm.Expr("revision + 1"),
			"updated_at":     now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("expire idle conversations: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *GormStore) History(ctx context.Context, key string, limit int) ([]Record, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).
		Model(&conversationRow{}).
		Where("correlation_key = ?", key).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []conversationRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get conversation history: %w", err)
	}
	out := make([]Record, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = row.toRecord()
	}
	return out, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}

// mutateActive loads the active record for key, applies fn and writes the
// result back only if nobody else bumped the revision in between.
func (s *GormStore) mutateActive(ctx context.Context, key string, fn func(Record) (Record, error)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := takeActive(tx, key)
		if err != nil {
			return err
		}
		next, err := fn(row.toRecord())
		if err != nil {
			return err
		}
		res := tx.Model(&conversationRow{}).
			Where("id = ? AND revision = ?", row.ID, row.Revision).
			Updates(updateColumns(next))
		if res.Error != nil {
			return fmt.Errorf("update conversation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrStepMismatch
		}
		return nil
	})
}

func takeActive(db *gorm.DB, key string) (conversationRow, error) {
	var row conversationRow
	err := db.Where("active_key = ?", key).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return conversationRow{}, ErrNotFound
		}
		return conversationRow{}, fmt.Errorf("get active conversation: %w", err)
	}
	return row, nil
}

func updateColumns(rec Record) map[string]any {
	row := conversationRowFromRecord(rec)
	return map[string]any{
		"active_key":          row.ActiveKey,
		"current_step":        row.CurrentStep,
		"collected_fields":    row.CollectedFields,
		"session_active":      row.SessionActive,
		"registration_ref":    row.RegistrationRef,
		"end_reason":          row.EndReason,
		"revision":            row.Revision,
		"last_message_id":     row.LastMessageID,
		"last_reply":          row.LastReply,
		"last_interaction_at": row.LastInteractionAt,
		"updated_at":          row.UpdatedAt,
	}
}
