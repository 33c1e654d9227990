package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/confmail/mailbatch/internal/domain"
	"github.com/confmail/mailbatch/internal/repository"
)

// TokenWarning reports how many incoming rows lack a declared token.
type TokenWarning struct {
	Token   string
	Missing int
}

// ConfirmPolicy decides whether an import with missing-token warnings may
// proceed. The CLI installs an interactive prompt; embeddings supply their
// own policy.
type ConfirmPolicy func(warnings []TokenWarning) bool

// DeclineOnWarnings aborts any import with missing tokens, the safe default
// for non-interactive callers.
func DeclineOnWarnings([]TokenWarning) bool { return false }

// IngestService validates and deduplicates recipient rows into a batch.
type IngestService struct {
	batches  repository.BatchRepository
	requests repository.RequestRepository
	confirm  ConfirmPolicy
	logger   *zap.Logger

	now func() time.Time
}

func NewIngestService(
	batches repository.BatchRepository,
	requests repository.RequestRepository,
	confirm ConfirmPolicy,
	logger *zap.Logger,
) (*IngestService, error) {
	if batches == nil || requests == nil {
		return nil, fmt.Errorf("batch and request repositories are required")
	}
	if confirm == nil {
		confirm = DeclineOnWarnings
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &IngestService{
		batches:  batches,
		requests: requests,
		confirm:  confirm,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Add appends recipient rows to a batch. Rows missing declared tokens trigger
// the confirm policy before anything is persisted; duplicate content (by
// digest, store-wide) and absent sender/recipient fields reject the import.
func (s *IngestService) Add(ctx context.Context, batchID string, items []domain.Fields) error {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return err
	}

	required := append(append([]string{}, batch.Tokens...), domain.FieldCategories)

	var warnings []TokenWarning
	for _, token := range required {
		missing := 0
		for _, item := range items {
			if _, ok := item[token]; !ok {
				missing++
			}
		}
		if missing > 0 {
			warnings = append(warnings, TokenWarning{Token: token, Missing: missing})
		}
	}

	if len(warnings) > 0 {
		for _, warning := range warnings {
			s.logger.Warn("token missing from rows to be added",
				zap.String("batchId", batchID),
				zap.String("token", warning.Token),
				zap.Int("rows", warning.Missing),
			)
		}
		if !s.confirm(warnings) {
			return fmt.Errorf("%w: missing tokens were not confirmed", domain.ErrUserAborted)
		}
	}

	for i, item := range items {
		digest := item.Digest()

		exists, err := s.requests.ExistsByDigest(ctx, digest)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: row %d was already added", domain.ErrDuplicateRequest, i+1)
		}

		if err := item.ValidateRequired(); err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}

		request := &domain.Request{
			ID:      uuid.NewString(),
			BatchID: batch.BatchID,
			Digest:  digest,
			Fields:  item.Clone(),
			Added:   s.now().UTC(),
			Sent:    false,
		}
		if err := s.requests.Create(ctx, request); err != nil {
			return err
		}
	}

	s.logger.Info("rows added to batch",
		zap.String("batchId", batchID),
		zap.Int("rows", len(items)),
	)

	return nil
}

// AddCSV parses header-mapped rows from a CSV source and delegates to Add.
// Cell values stay raw strings; row order is preserved.
func (s *IngestService) AddCSV(ctx context.Context, batchID string, source io.Reader) error {
	reader := csv.NewReader(source)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: csv source is empty", domain.ErrValidation)
	}
	if err != nil {
		return fmt.Errorf("%w: failed to read csv header: %v", domain.ErrValidation, err)
	}

	var items []domain.Fields
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: failed to read csv row %d: %v", domain.ErrValidation, len(items)+1, err)
		}

		item := make(domain.Fields, len(header))
		for i, column := range header {
			item[column] = record[i]
		}
		items = append(items, item)
	}

	return s.Add(ctx, batchID, items)
}
