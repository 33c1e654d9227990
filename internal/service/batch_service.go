package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/confmail/mailbatch/internal/domain"
	"github.com/confmail/mailbatch/internal/provider"
	"github.com/confmail/mailbatch/internal/repository"
	"github.com/confmail/mailbatch/internal/template"
)

// Batch listing selectors. No persisted "active" flag exists; active and all
// are documented synonyms for every batch.
const (
	SelectorActive = "active"
	SelectorAll    = "all"
)

// BatchService owns the batches collection: creation with a one-time token
// snapshot, listing with send accounting, and cascading removal.
type BatchService struct {
	batches  repository.BatchRepository
	requests repository.RequestRepository
	mailer   provider.Mailer
	logger   *zap.Logger
}

func NewBatchService(
	batches repository.BatchRepository,
	requests repository.RequestRepository,
	mailer provider.Mailer,
	logger *zap.Logger,
) (*BatchService, error) {
	if batches == nil || requests == nil {
		return nil, fmt.Errorf("batch and request repositories are required")
	}
	if mailer == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchService{
		batches:  batches,
		requests: requests,
		mailer:   mailer,
		logger:   logger,
	}, nil
}

// Create registers a new batch, fetching the template's token contract once.
// The token snapshot never refreshes afterwards.
func (s *BatchService) Create(ctx context.Context, batchID, templateKey string) (*domain.Batch, error) {
	batch := &domain.Batch{
		BatchID:     strings.TrimSpace(batchID),
		TemplateKey: strings.TrimSpace(templateKey),
		CreatedAt:   time.Now().UTC(),
	}
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	_, err := s.batches.GetByID(ctx, batch.BatchID)
	if err == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateBatch, batch.BatchID)
	}
	if !errors.Is(err, domain.ErrBatchNotFound) {
		return nil, err
	}

	tpl, err := s.mailer.GetTemplate(ctx, batch.TemplateKey)
	if err != nil {
		return nil, err
	}
	batch.Tokens = template.ExtractTokens(tpl.Subject, tpl.HTMLContent)

	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, err
	}

	s.logger.Info("batch created",
		zap.String("batchId", batch.BatchID),
		zap.String("templateKey", batch.TemplateKey),
		zap.Strings("tokens", batch.Tokens),
	)

	return batch, nil
}

// List returns one summary row per selected batch with its ingestion and
// delivery counts. A literal batch id that does not exist yields an empty
// listing, not an error.
func (s *BatchService) List(ctx context.Context, selector string) ([]domain.BatchSummary, error) {
	var batches []domain.Batch

	switch strings.TrimSpace(selector) {
	case "", SelectorActive, SelectorAll:
		all, err := s.batches.List(ctx)
		if err != nil {
			return nil, err
		}
		batches = all
	default:
		batch, err := s.batches.GetByID(ctx, strings.TrimSpace(selector))
		if errors.Is(err, domain.ErrBatchNotFound) {
			return []domain.BatchSummary{}, nil
		}
		if err != nil {
			return nil, err
		}
		batches = []domain.Batch{*batch}
	}

	summaries := make([]domain.BatchSummary, 0, len(batches))
	for _, batch := range batches {
		added, sent, err := s.requests.CountByBatch(ctx, batch.BatchID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, domain.BatchSummary{
			BatchID: batch.BatchID,
			Added:   added,
			Sent:    sent,
			Tokens:  batch.Tokens,
		})
	}

	return summaries, nil
}

// Remove deletes a batch and all of its requests. Removing an absent batch is
// a no-op. Requests go first so an interrupted removal cannot leave orphaned
// digests blocking a re-import.
func (s *BatchService) Remove(ctx context.Context, batchID string) error {
	if err := s.requests.DeleteByBatch(ctx, batchID); err != nil {
		return err
	}
	if err := s.batches.Delete(ctx, batchID); err != nil {
		return err
	}

	s.logger.Info("batch removed", zap.String("batchId", batchID))
	return nil
}

// Templates lists the delivery provider's templates.
func (s *BatchService) Templates(ctx context.Context) ([]provider.TemplateInfo, error) {
	return s.mailer.ListTemplates(ctx)
}
