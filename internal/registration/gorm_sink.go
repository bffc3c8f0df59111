package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	dbpkg "github.com/mymunastore/aretenvi/internal/db"
	"github.com/mymunastore/aretenvi/internal/types"
)

type GormSink struct {
	db   *gorm.DB
	opts options
}

func NewGormSink(driver, dsn string, opts ...Option) (*GormSink, error) {
	gormDB, err := dbpkg.OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open gorm sink: %w", err)
	}
	return NewGormSinkWithDB(gormDB, opts...)
}

// NewGormSinkWithDB shares an already opened database, typically the one
// backing the conversation store.
func NewGormSinkWithDB(gormDB *gorm.DB, opts ...Option) (*GormSink, error) {
	if gormDB == nil {
		return nil, fmt.Errorf("gorm db is required")
	}
	sink := &GormSink{db: gormDB, opts: newOptions(opts)}
	if err := sink.db.AutoMigrate(&registrationRow{}); err != nil {
		return nil, fmt.Errorf("migrate registration sink: %w", err)
	}
	return sink, nil
}

func (s *GormSink) Finalize(ctx context.Context, sub Submission) (types.Registration, error) {
	if err := validateSubmission(sub); err != nil {
		return types.Registration{}, err
	}
	db := s.db.WithContext(ctx)

	if existing, err := s.byConversation(db, sub.ConversationID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return types.Registration{}, err
	}

	now := s.opts.now()
	for attempt := 0; attempt < s.opts.maxAttempts; attempt++ {
		ref, err := s.opts.allocate(now, func(candidate string) (bool, error) {
			var count int64
			if err := db.Model(&registrationRow{}).Where("reference_number = ?", candidate).Count(&count).Error; err != nil {
				return false, fmt.Errorf("check reference number: %w", err)
			}
			return count > 0, nil
		})
		if err != nil {
			return types.Registration{}, err
		}

		reg := s.opts.build(sub, ref, now)
		row := registrationRowFromRegistration(reg)
		err = db.Create(&row).Error
		if err == nil {
			return reg, nil
		}
		if !dbpkg.IsDuplicateKey(err) {
			return types.Registration{}, fmt.Errorf("create registration: %w", err)
		}
		// Either another delivery finalized this conversation first or the
		// reference was taken between the check and the insert.
		if existing, lookupErr := s.byConversation(db, sub.ConversationID); lookupErr == nil {
			return existing, nil
		}
	}
	return types.Registration{}, ErrReferenceExhausted
}

func (s *GormSink) Lookup(ctx context.Context, ref string) (types.Registration, error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	if ref == "" {
		return types.Registration{}, ErrNotFound
	}
	var row registrationRow
	err := s.db.WithContext(ctx).Where("reference_number = ?", ref).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Registration{}, ErrNotFound
		}
		return types.Registration{}, fmt.Errorf("lookup registration: %w", err)
	}
	return row.toRegistration(), nil
}

func (s *GormSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}

func (s *GormSink) byConversation(db *gorm.DB, conversationID string) (types.Registration, error) {
	var row registrationRow
	err := db.Where("conversation_id = ?", conversationID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Registration{}, ErrNotFound
		}
		return types.Registration{}, fmt.Errorf("get registration by conversation: %w", err)
	}
	return row.toRegistration(), nil
}
