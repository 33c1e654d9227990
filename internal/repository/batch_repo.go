package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/confmail/mailbatch/internal/domain"
)

type BatchRepository interface {
	Create(ctx context.Context, b *domain.Batch) error
	GetByID(ctx context.Context, batchID string) (*domain.Batch, error)
	List(ctx context.Context) ([]domain.Batch, error)
	// Delete removes the batch row only; cascading request removal is the
	// request repository's concern. Deleting an absent batch is a no-op.
	Delete(ctx context.Context, batchID string) error
}

type GormBatchRepo struct {
	db *gorm.DB
}

func NewGormBatchRepo(db *gorm.DB) *GormBatchRepo {
	return &GormBatchRepo{db: db}
}

func (r *GormBatchRepo) Create(ctx context.Context, b *domain.Batch) error {
	model, err := batchModelFromDomain(b)
	if err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateBatch
		}
		return err
	}
	return nil
}

func (r *GormBatchRepo) GetByID(ctx context.Context, batchID string) (*domain.Batch, error) {
	var model BatchModel
	err := r.db.WithContext(ctx).First(&model, "batch_id = ?", batchID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrBatchNotFound
	}
	if err != nil {
		return nil, err
	}
	return batchModelToDomain(&model)
}

func (r *GormBatchRepo) List(ctx context.Context) ([]domain.Batch, error) {
	var models []BatchModel
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	batches := make([]domain.Batch, 0, len(models))
	for i := range models {
		batch, err := batchModelToDomain(&models[i])
		if err != nil {
			return nil, err
		}
		batches = append(batches, *batch)
	}

	return batches, nil
}

func (r *GormBatchRepo) Delete(ctx context.Context, batchID string) error {
	return r.db.WithContext(ctx).Delete(&BatchModel{}, "batch_id = ?", batchID).Error
}

// isUniqueViolation covers both gorm's translated error and the raw sqlite
// constraint message.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
