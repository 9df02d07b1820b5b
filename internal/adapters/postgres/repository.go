package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/nabilkencana/eportofolio-auth/internal/domain"
)

type UserRepository interface {
	// CreateWithProfile persists the user and an empty linked profile as
	// one atomic unit.
	CreateWithProfile(ctx context.Context, user *domain.User) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByIDWithProfile(ctx context.Context, id string) (*domain.User, error)
	// SetRefreshToken overwrites the stored refresh token unconditionally
	// (login and registration).
	SetRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	// RotateRefreshToken replaces the stored refresh token only if the
	// current column value still equals presented. Returns false when the
	// row was not updated, i.e. a concurrent rotation already superseded
	// the presented token.
	RotateRefreshToken(ctx context.Context, userID, presented, next string, expiresAt time.Time) (bool, error)
	ClearRefreshToken(ctx context.Context, userID string) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

type AchievementRepository interface {
	Create(ctx context.Context, a *domain.Achievement) error
	FindByID(ctx context.Context, id string) (*domain.Achievement, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Achievement, error)
	Update(ctx context.Context, a *domain.Achievement) error
	Delete(ctx context.Context, id string) error
}

type userRepo struct{ db *gorm.DB }

type achievementRepo struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &userRepo{db: db} }

func NewAchievementRepository(db *gorm.DB) AchievementRepository { return &achievementRepo{db: db} }

func (r *userRepo) CreateWithProfile(ctx context.Context, user *domain.User) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		return tx.Create(&domain.Profile{UserID: user.ID}).Error
	})
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) FindByIDWithProfile(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).Preload("Profile").Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) SetRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"refresh_token":            token,
			"refresh_token_expires_at": expiresAt,
		}).Error
}

func (r *userRepo) RotateRefreshToken(ctx context.Context, userID, presented, next string, expiresAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ? AND refresh_token = ?", userID, presented).
		Updates(map[string]interface{}{
			"refresh_token":            next,
			"refresh_token_expires_at": expiresAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *userRepo) ClearRefreshToken(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"refresh_token":            nil,
			"refresh_token_expires_at": nil,
		}).Error
}

func (r *userRepo) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return r.db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", userID).
		Update("password_hash", passwordHash).Error
}

func (r *achievementRepo) Create(ctx context.Context, a *domain.Achievement) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *achievementRepo) FindByID(ctx context.Context, id string) (*domain.Achievement, error) {
	var achievement domain.Achievement
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&achievement).Error; err != nil {
		return nil, err
	}
	return &achievement, nil
}

func (r *achievementRepo) ListByUser(ctx context.Context, userID string) ([]domain.Achievement, error) {
	var achievements []domain.Achievement
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("achieved_at DESC").Find(&achievements).Error; err != nil {
		return nil, err
	}
	return achievements, nil
}

func (r *achievementRepo) Update(ctx context.Context, a *domain.Achievement) error {
	return r.db.WithContext(ctx).Save(a).Error
}

func (r *achievementRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Achievement{}).Error
}
