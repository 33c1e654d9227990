package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/confmail/mailbatch/internal/domain"
)

type RequestRepository interface {
	Create(ctx context.Context, req *domain.Request) error
	ExistsByDigest(ctx context.Context, digest string) (bool, error)
	GetByDigest(ctx context.Context, digest string) (*domain.Request, error)
	// ListByBatch returns a batch's requests in insertion order.
	ListByBatch(ctx context.Context, batchID string) ([]domain.Request, error)
	CountByBatch(ctx context.Context, batchID string) (added int64, sent int64, err error)
	MarkSent(ctx context.Context, digest string) error
	DeleteByBatch(ctx context.Context, batchID string) error
}

type GormRequestRepo struct {
	db *gorm.DB
}

func NewGormRequestRepo(db *gorm.DB) *GormRequestRepo {
	return &GormRequestRepo{db: db}
}

func (r *GormRequestRepo) Create(ctx context.Context, req *domain.Request) error {
	model, err := requestModelFromDomain(req)
	if err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateRequest
		}
		return err
	}
	return nil
}

func (r *GormRequestRepo) ExistsByDigest(ctx context.Context, digest string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&RequestModel{}).
		Where("digest = ?", digest).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormRequestRepo) GetByDigest(ctx context.Context, digest string) (*domain.Request, error) {
	var model RequestModel
	err := r.db.WithContext(ctx).First(&model, "digest = ?", digest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return requestModelToDomain(&model)
}

func (r *GormRequestRepo) ListByBatch(ctx context.Context, batchID string) ([]domain.Request, error) {
	var models []RequestModel
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("added ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	requests := make([]domain.Request, 0, len(models))
	for i := range models {
		request, err := requestModelToDomain(&models[i])
		if err != nil {
			return nil, err
		}
		requests = append(requests, *request)
	}

	return requests, nil
}

func (r *GormRequestRepo) CountByBatch(ctx context.Context, batchID string) (int64, int64, error) {
	var added int64
	err := r.db.WithContext(ctx).
		Model(&RequestModel{}).
		Where("batch_id = ?", batchID).
		Count(&added).Error
	if err != nil {
		return 0, 0, err
	}

	var sent int64
	err = r.db.WithContext(ctx).
		Model(&RequestModel{}).
		Where("batch_id = ? AND sent = ?", batchID, true).
		Count(&sent).Error
	if err != nil {
		return 0, 0, err
	}

	return added, sent, nil
}

func (r *GormRequestRepo) MarkSent(ctx context.Context, digest string) error {
	result := r.db.WithContext(ctx).
		Model(&RequestModel{}).
		Where("digest = ?", digest).
		Update("sent", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormRequestRepo) DeleteByBatch(ctx context.Context, batchID string) error {
	return r.db.WithContext(ctx).Delete(&RequestModel{}, "batch_id = ?", batchID).Error
}
