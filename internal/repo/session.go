package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kodbank/kodbank/internal/models"
)

// CreateSession persists one issued token. The SID is a fresh UUID; on the
// off chance of a collision the insert is retried once with a new SID, then
// the collision is reported instead of being silently ignored.
func (r *GormRepo) CreateSession(ctx context.Context, userUID uint, token string, expiresAt time.Time) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		session := models.Session{
			SID:       uuid.NewString(),
			Token:     token,
			UserUID:   userUID,
			ExpiresAt: expiresAt,
		}
		err := r.DB.WithContext(ctx).Create(&session).Error
		if err == nil {
			return session.SID, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

// DeleteSessionByToken is idempotent: deleting an absent token is a no-op.
func (r *GormRepo) DeleteSessionByToken(ctx context.Context, token string) error {
	return r.DB.WithContext(ctx).Where("token = ?", token).Delete(&models.Session{}).Error
}

func (r *GormRepo) FindSessionByToken(ctx context.Context, token string) (*models.Session, error) {
	var session models.Session
	if err := r.DB.WithContext(ctx).Where("token = ?", token).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

// PurgeExpiredSessions removes rows whose expiry has passed and reports how
// many were dropped.
func (r *GormRepo) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	result := r.DB.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&models.Session{})
	return result.RowsAffected, result.Error
}
