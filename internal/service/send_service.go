package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/confmail/mailbatch/internal/domain"
	"github.com/confmail/mailbatch/internal/provider"
	"github.com/confmail/mailbatch/internal/repository"
)

// QuotaAll sends every currently-unsent request in the batch.
const QuotaAll = "all"

// Progress is invoked after each successful delivery.
type Progress func(sent, quota int)

// SendService is the resumable dispatcher: it walks a batch's requests in
// insertion order, delivers each unsent one, and persists the sent flag
// before moving on, so an interrupted run loses at most the in-flight send.
type SendService struct {
	batches  repository.BatchRepository
	requests repository.RequestRepository
	mailer   provider.Mailer
	logger   *zap.Logger

	progress Progress
	readFile func(string) ([]byte, error)
}

func NewSendService(
	batches repository.BatchRepository,
	requests repository.RequestRepository,
	mailer provider.Mailer,
	logger *zap.Logger,
) (*SendService, error) {
	if batches == nil || requests == nil {
		return nil, fmt.Errorf("batch and request repositories are required")
	}
	if mailer == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SendService{
		batches:  batches,
		requests: requests,
		mailer:   mailer,
		logger:   logger,
		readFile: os.ReadFile,
	}, nil
}

// OnProgress registers a callback fired after each delivered request.
func (s *SendService) OnProgress(fn Progress) {
	s.progress = fn
}

// SendBatch delivers up to the requested quota of unsent requests. Already
// sent requests are skipped and never count toward the quota. Returns the
// number delivered in this run; a delivery failure stops the run and leaves
// the failing request unsent for a later rerun.
func (s *SendService) SendBatch(ctx context.Context, batchID, howMany string) (int, error) {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return 0, err
	}

	pending, err := s.requests.ListByBatch(ctx, batchID)
	if err != nil {
		return 0, err
	}

	quota, err := parseQuota(howMany, pending)
	if err != nil {
		return 0, err
	}
	if quota <= 0 {
		return 0, nil
	}

	sent := 0
	for i := range pending {
		request := &pending[i]
		if request.Sent {
			continue
		}

		msg, err := s.buildMessage(request.Fields, batch.TemplateKey)
		if err != nil {
			return sent, err
		}
		if err := s.mailer.Send(ctx, msg); err != nil {
			return sent, err
		}
		if err := s.requests.MarkSent(ctx, request.Digest); err != nil {
			return sent, err
		}

		sent++
		if s.progress != nil {
			s.progress(sent, quota)
		}
		s.logger.Debug("request delivered",
			zap.String("batchId", batchID),
			zap.String("digest", request.Digest),
			zap.Int("sent", sent),
			zap.Int("quota", quota),
		)

		if sent >= quota {
			break
		}
	}

	s.logger.Info("send run finished",
		zap.String("batchId", batchID),
		zap.Int("sent", sent),
		zap.Int("quota", quota),
	)

	return sent, nil
}

// SendTest delivers the batch's first request to the supplied address as a
// preview. Any cc and recipient-name fields are stripped, and nothing is
// persisted: the request stays unsent and no digest bookkeeping happens.
func (s *SendService) SendTest(ctx context.Context, batchID, toEmail string) error {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return err
	}

	pending, err := s.requests.ListByBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return fmt.Errorf("%w: batch %q has no requests to preview", domain.ErrNotFound, batchID)
	}

	fields := pending[0].Fields.Clone()
	delete(fields, domain.FieldCcEmail)
	delete(fields, domain.FieldCcName)
	delete(fields, domain.FieldToName)
	fields[domain.FieldToEmail] = toEmail

	msg, err := s.buildMessage(fields, batch.TemplateKey)
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, msg)
}

// buildMessage renders a request's field mapping into a delivery payload:
// recipient and sender addresses, the full mapping as substitution data,
// split categories, and an optional file attachment.
func (s *SendService) buildMessage(fields domain.Fields, templateKey string) (*provider.Message, error) {
	if err := fields.ValidateRequired(); err != nil {
		return nil, err
	}

	msg := &provider.Message{
		To: provider.EmailAddress{
			Email: fields[domain.FieldToEmail],
			Name:  fields[domain.FieldToName],
		},
		From: provider.EmailAddress{
			Email: fields[domain.FieldFromEmail],
			Name:  fields[domain.FieldFromName],
		},
		TemplateID: templateKey,
		Data:       fields,
		Categories: fields.Categories(),
	}

	if path, ok := fields[domain.FieldAttachment]; ok {
		content, err := s.readFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrAttachmentRead, path, err)
		}
		msg.Attachments = append(msg.Attachments, provider.Attachment{
			Filename: path,
			Content:  content,
		})
	}

	return msg, nil
}

// parseQuota resolves a quota argument against the batch's current requests:
// "all" counts the unsent requests, "N%" takes an integer percentage of the
// whole batch (integer truncation), and a bare integer is the literal count.
func parseQuota(howMany string, requests []domain.Request) (int, error) {
	trimmed := strings.TrimSpace(howMany)

	if trimmed == "" || trimmed == QuotaAll {
		unsent := 0
		for _, request := range requests {
			if !request.Sent {
				unsent++
			}
		}
		return unsent, nil
	}

	if strings.HasSuffix(trimmed, "%") {
		pct, err := strconv.Atoi(strings.TrimSuffix(trimmed, "%"))
		if err != nil || pct < 0 {
			return 0, fmt.Errorf("%w: invalid percentage quota %q", domain.ErrValidation, howMany)
		}
		return len(requests) * pct / 100, nil
	}

	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid quota %q", domain.ErrValidation, howMany)
	}
	return n, nil
}
