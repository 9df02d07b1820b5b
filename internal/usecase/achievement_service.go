package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	repo "github.com/nabilkencana/eportofolio-auth/internal/adapters/postgres"
	"github.com/nabilkencana/eportofolio-auth/internal/adapters/storage"
	"github.com/nabilkencana/eportofolio-auth/internal/domain"
	"github.com/nabilkencana/eportofolio-auth/internal/retry"
	pkglog "github.com/nabilkencana/eportofolio-auth/pkg/log"
)

type AchievementInput struct {
	Title       string
	Description string
	Category    string
	Issuer      string
	AchievedAt  time.Time
}

type AchievementService interface {
	Create(ctx context.Context, traceID, userID string, in AchievementInput) (*domain.Achievement, error)
	Get(ctx context.Context, traceID, principalID, id string) (*domain.Achievement, error)
	List(ctx context.Context, traceID, userID string) ([]domain.Achievement, error)
	Update(ctx context.Context, traceID, principalID, id string, in AchievementInput) (*domain.Achievement, error)
	Delete(ctx context.Context, traceID, principalID, id string) error
	AttachCertificate(ctx context.Context, traceID, principalID, id, filename string, data []byte) (*domain.Achievement, error)
}

type achievementService struct {
	logger       pkglog.Logger
	achievements repo.AchievementRepository
	media        storage.Client
	exec         *retry.Executor
}

func NewAchievementService(logger pkglog.Logger, achievements repo.AchievementRepository, media storage.Client, exec *retry.Executor) AchievementService {
	return &achievementService{logger: logger, achievements: achievements, media: media, exec: exec}
}

func (s *achievementService) Create(ctx context.Context, traceID, userID string, in AchievementInput) (*domain.Achievement, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, domain.ValidationError("invalid_title", "title is required")
	}
	achievement := &domain.Achievement{
		UserID:      userID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Category:    in.Category,
		Issuer:      in.Issuer,
		AchievedAt:  in.AchievedAt,
	}
	err := s.exec.Do(ctx, "createAchievement", func(ctx context.Context) error {
		return s.achievements.Create(ctx, achievement)
	})
	if err != nil {
		return nil, domain.InternalError("achievement_create_failed", "failed to create achievement", err)
	}
	s.logger.Info().Str("trace_id", traceID).Str("user_id", userID).Str("achievement_id", achievement.ID).Msg("achievement created")
	return achievement, nil
}

func (s *achievementService) Get(ctx context.Context, traceID, principalID, id string) (*domain.Achievement, error) {
	return s.loadOwned(ctx, principalID, id)
}

func (s *achievementService) List(ctx context.Context, traceID, userID string) ([]domain.Achievement, error) {
	var achievements []domain.Achievement
	err := s.exec.Do(ctx, "listAchievements", func(ctx context.Context) error {
		list, lerr := s.achievements.ListByUser(ctx, userID)
		if lerr != nil {
			return lerr
		}
		achievements = list
		return nil
	})
	if err != nil {
		return nil, domain.InternalError("achievement_list_failed", "failed to list achievements", err)
	}
	return achievements, nil
}

func (s *achievementService) Update(ctx context.Context, traceID, principalID, id string, in AchievementInput) (*domain.Achievement, error) {
	achievement, err := s.loadOwned(ctx, principalID, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Title) != "" {
		achievement.Title = strings.TrimSpace(in.Title)
	}
	if in.Description != "" {
		achievement.Description = in.Description
	}
	if in.Category != "" {
		achievement.Category = in.Category
	}
	if in.Issuer != "" {
		achievement.Issuer = in.Issuer
	}
	if !in.AchievedAt.IsZero() {
		achievement.AchievedAt = in.AchievedAt
	}
	err = s.exec.Do(ctx, "updateAchievement", func(ctx context.Context) error {
		return s.achievements.Update(ctx, achievement)
	})
	if err != nil {
		return nil, domain.InternalError("achievement_update_failed", "failed to update achievement", err)
	}
	s.logger.Info().Str("trace_id", traceID).Str("achievement_id", id).Msg("achievement updated")
	return achievement, nil
}

func (s *achievementService) Delete(ctx context.Context, traceID, principalID, id string) error {
	achievement, err := s.loadOwned(ctx, principalID, id)
	if err != nil {
		return err
	}
	if s.media != nil && achievement.CertificateURL != nil {
		if derr := s.media.Delete(ctx, *achievement.CertificateURL); derr != nil {
			s.logger.Warn().Str("trace_id", traceID).Str("achievement_id", id).Err(derr).Msg("certificate cleanup failed")
		}
	}
	err = s.exec.Do(ctx, "deleteAchievement", func(ctx context.Context) error {
		return s.achievements.Delete(ctx, id)
	})
	if err != nil {
		return domain.InternalError("achievement_delete_failed", "failed to delete achievement", err)
	}
	s.logger.Info().Str("trace_id", traceID).Str("achievement_id", id).Msg("achievement deleted")
	return nil
}

func (s *achievementService) AttachCertificate(ctx context.Context, traceID, principalID, id, filename string, data []byte) (*domain.Achievement, error) {
	achievement, err := s.loadOwned(ctx, principalID, id)
	if err != nil {
		return nil, err
	}
	if s.media == nil {
		return nil, domain.InternalError("media_unconfigured", "media storage is not configured", nil)
	}
	url, err := s.media.Upload(ctx, "certificates", filename, data)
	if err != nil {
		return nil, domain.InternalError("certificate_upload_failed", "failed to upload certificate", err)
	}
	achievement.CertificateURL = &url
	err = s.exec.Do(ctx, "attachCertificate", func(ctx context.Context) error {
		return s.achievements.Update(ctx, achievement)
	})
	if err != nil {
		return nil, domain.InternalError("achievement_update_failed", "failed to update achievement", err)
	}
	s.logger.Info().Str("trace_id", traceID).Str("achievement_id", id).Msg("certificate attached")
	return achievement, nil
}

// loadOwned fetches the achievement and enforces ownership. Existence is
// checked first: a missing resource is reported as not found even to a
// caller who would not own it.
func (s *achievementService) loadOwned(ctx context.Context, principalID, id string) (*domain.Achievement, error) {
	var achievement *domain.Achievement
	err := s.exec.Do(ctx, "findAchievementByID", func(ctx context.Context) error {
		a, ferr := s.achievements.FindByID(ctx, id)
		if ferr != nil {
			return ferr
		}
		achievement = a
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFoundError("achievement_not_found", "achievement not found")
		}
		return nil, domain.InternalError("achievement_load_failed", "failed to load achievement", err)
	}
	if achievement.UserID != principalID {
		return nil, domain.AuthorizationError("forbidden", "you do not own this resource")
	}
	return achievement, nil
}
